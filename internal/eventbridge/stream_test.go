package eventbridge_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/arc-self/rtps/internal/eventbridge"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoveryEventJSONRoundTrip(t *testing.T) {
	ev := eventbridge.DiscoveryEvent{
		Kind:      "participant_discovered",
		GUID:      "0102030405060708090a0b0c00000001c1",
		TopicName: "square",
		TypeName:  "ShapeType",
		Timestamp: time.Unix(1000, 0).UTC(),
	}

	data, err := json.Marshal(ev)
	require.NoError(t, err)

	var got eventbridge.DiscoveryEvent
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, ev, got)
}

func TestDiscoveryEventOmitsEmptyTopicAndType(t *testing.T) {
	ev := eventbridge.DiscoveryEvent{Kind: "participant_lost", GUID: "x", Timestamp: time.Unix(1000, 0).UTC()}
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "topic_name")
	assert.NotContains(t, string(data), "type_name")
}

func TestStreamSubjectsAndName(t *testing.T) {
	assert.Equal(t, "RTPS_EVENTS", eventbridge.StreamRTPSEvents)
	assert.Equal(t, "RTPS_EVENTS.discovery.>", eventbridge.SubjectDiscovery)
}
