package discovery_test

import (
	"testing"
	"time"

	"github.com/arc-self/rtps/pkg/rtps/discovery"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantDatabaseObserveReportsFirstSightingOnly(t *testing.T) {
	db := discovery.NewParticipantDatabase()
	now := time.Unix(1000, 0)
	p := discovery.ParticipantProxy{GuidPrefix: wire.GuidPrefix{1}, LeaseDuration: 10 * time.Second}

	assert.True(t, db.Observe(p, now))
	assert.False(t, db.Observe(p, now.Add(time.Second)))

	got, ok := db.Get(p.GuidPrefix)
	require.True(t, ok)
	assert.Equal(t, p.GuidPrefix, got.GuidPrefix)
}

func TestParticipantDatabaseSweepExpiredRemovesStaleEntries(t *testing.T) {
	db := discovery.NewParticipantDatabase()
	now := time.Unix(1000, 0)
	p := discovery.ParticipantProxy{GuidPrefix: wire.GuidPrefix{1}, LeaseDuration: time.Second}
	db.Observe(p, now)

	assert.Empty(t, db.SweepExpired(now.Add(500*time.Millisecond)))
	expired := db.SweepExpired(now.Add(2 * time.Second))
	require.Len(t, expired, 1)
	assert.Equal(t, p.GuidPrefix, expired[0])

	_, ok := db.Get(p.GuidPrefix)
	assert.False(t, ok)
}

func TestParticipantDatabaseIgnoreDropsAndBlocksFutureObserve(t *testing.T) {
	db := discovery.NewParticipantDatabase()
	now := time.Unix(1000, 0)
	p := discovery.ParticipantProxy{GuidPrefix: wire.GuidPrefix{1}, LeaseDuration: 10 * time.Second}
	db.Observe(p, now)
	db.Ignore(p.GuidPrefix)

	_, ok := db.Get(p.GuidPrefix)
	assert.False(t, ok)

	assert.False(t, db.Observe(p, now))
	_, ok = db.Get(p.GuidPrefix)
	assert.False(t, ok)
}

func TestParticipantDatabaseRemove(t *testing.T) {
	db := discovery.NewParticipantDatabase()
	now := time.Unix(1000, 0)
	p := discovery.ParticipantProxy{GuidPrefix: wire.GuidPrefix{1}}
	db.Observe(p, now)
	db.Remove(p.GuidPrefix)

	_, ok := db.Get(p.GuidPrefix)
	assert.False(t, ok)
}

func TestIgnoredEndpointsTracksEachEntityKindIndependently(t *testing.T) {
	e := discovery.NewIgnoredEndpoints()
	writer := wire.GUID{Prefix: wire.GuidPrefix{1}}
	reader := wire.GUID{Prefix: wire.GuidPrefix{2}}

	assert.False(t, e.IsWriterIgnored(writer))
	assert.False(t, e.IsReaderIgnored(reader))
	assert.False(t, e.IsTopicIgnored("square"))

	e.IgnorePublication(writer)
	e.IgnoreSubscription(reader)
	e.IgnoreTopic("square")

	assert.True(t, e.IsWriterIgnored(writer))
	assert.True(t, e.IsReaderIgnored(reader))
	assert.True(t, e.IsTopicIgnored("square"))

	assert.False(t, e.IsReaderIgnored(writer))
	assert.False(t, e.IsTopicIgnored("circle"))
}

func TestParticipantDatabaseZeroLeaseNeverExpires(t *testing.T) {
	db := discovery.NewParticipantDatabase()
	now := time.Unix(1000, 0)
	p := discovery.ParticipantProxy{GuidPrefix: wire.GuidPrefix{1}}
	db.Observe(p, now)

	expired := db.SweepExpired(now.Add(365 * 24 * time.Hour))
	assert.Empty(t, expired)
}
