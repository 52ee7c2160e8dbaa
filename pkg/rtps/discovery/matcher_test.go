package discovery_test

import (
	"testing"

	"github.com/arc-self/rtps/pkg/rtps/discovery"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchWriterToReadersFiltersByTopicAndType(t *testing.T) {
	local := discovery.LocalEndpointInfo{TopicName: "square", TypeName: "ShapeType", Profile: qos.Default()}
	remotes := []discovery.EndpointProxy{
		{TopicName: "square", TypeName: "ShapeType", Profile: qos.Default()},
		{TopicName: "circle", TypeName: "ShapeType", Profile: qos.Default()},
		{TopicName: "square", TypeName: "OtherType", Profile: qos.Default()},
	}

	matches := discovery.MatchWriterToReaders(local, remotes)
	require.Len(t, matches, 1)
	assert.Equal(t, qos.Compatible, matches[0].Incompatibility)
}

func TestMatchWriterToReadersFlagsIncompatibleQoS(t *testing.T) {
	local := discovery.LocalEndpointInfo{TopicName: "square", TypeName: "ShapeType", Profile: qos.Default()}
	requested := qos.Default()
	requested.Reliability.Kind = qos.Reliable
	remotes := []discovery.EndpointProxy{
		{TopicName: "square", TypeName: "ShapeType", Profile: requested},
	}

	matches := discovery.MatchWriterToReaders(local, remotes)
	require.Len(t, matches, 1)
	assert.Equal(t, qos.IncompatibleReliability, matches[0].Incompatibility)
}

func TestMatchReaderToWritersUsesWriterAsOffered(t *testing.T) {
	localReader := discovery.LocalEndpointInfo{TopicName: "square", TypeName: "ShapeType", Profile: qos.Default()}
	localReader.Profile.Reliability.Kind = qos.Reliable

	offeredBestEffort := discovery.EndpointProxy{TopicName: "square", TypeName: "ShapeType", Profile: qos.Default()}
	matches := discovery.MatchReaderToWriters(localReader, []discovery.EndpointProxy{offeredBestEffort})
	require.Len(t, matches, 1)
	assert.Equal(t, qos.IncompatibleReliability, matches[0].Incompatibility)

	offeredReliable := offeredBestEffort
	offeredReliable.Profile.Reliability.Kind = qos.Reliable
	matches = discovery.MatchReaderToWriters(localReader, []discovery.EndpointProxy{offeredReliable})
	require.Len(t, matches, 1)
	assert.Equal(t, qos.Compatible, matches[0].Incompatibility)
}

func TestMatchWriterToReadersEmptyWhenNoneMatch(t *testing.T) {
	local := discovery.LocalEndpointInfo{TopicName: "square", TypeName: "ShapeType"}
	matches := discovery.MatchWriterToReaders(local, []discovery.EndpointProxy{
		{TopicName: "other", TypeName: "ShapeType"},
	})
	assert.Empty(t, matches)
}
