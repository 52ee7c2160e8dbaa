package qos_test

import (
	"testing"
	"time"

	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/stretchr/testify/assert"
)

func TestCheckCompatibleDefaultProfilesMatch(t *testing.T) {
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(qos.Default(), qos.Default()))
}

func TestCheckCompatibleReliabilityMismatch(t *testing.T) {
	offered := qos.Default()
	requested := qos.Default()
	requested.Reliability.Kind = qos.Reliable
	assert.Equal(t, qos.IncompatibleReliability, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleReliableOfferedSatisfiesBestEffortRequest(t *testing.T) {
	offered := qos.Default()
	offered.Reliability.Kind = qos.Reliable
	requested := qos.Default()
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleDurability(t *testing.T) {
	offered := qos.Default()
	offered.Durability.Kind = qos.Volatile
	requested := qos.Default()
	requested.Durability.Kind = qos.TransientLocal
	assert.Equal(t, qos.IncompatibleDurability, qos.CheckCompatible(offered, requested))

	offered.Durability.Kind = qos.Persistent
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleDeadline(t *testing.T) {
	offered := qos.Default()
	offered.Deadline.Period = 2 * time.Second
	requested := qos.Default()
	requested.Deadline.Period = time.Second
	assert.Equal(t, qos.IncompatibleDeadline, qos.CheckCompatible(offered, requested))

	offered.Deadline.Period = 500 * time.Millisecond
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleLatencyBudget(t *testing.T) {
	offered := qos.Default()
	offered.LatencyBudget.Duration = 2 * time.Second
	requested := qos.Default()
	requested.LatencyBudget.Duration = time.Second
	assert.Equal(t, qos.IncompatibleLatencyBudget, qos.CheckCompatible(offered, requested))

	offered.LatencyBudget.Duration = 500 * time.Millisecond
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleOwnershipMustMatchExactly(t *testing.T) {
	offered := qos.Default()
	offered.Ownership.Kind = qos.Exclusive
	requested := qos.Default()
	requested.Ownership.Kind = qos.Shared
	assert.Equal(t, qos.IncompatibleOwnership, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleDestinationOrder(t *testing.T) {
	offered := qos.Default()
	requested := qos.Default()
	requested.DestinationOrder.Kind = qos.BySourceTimestamp
	assert.Equal(t, qos.IncompatibleDestinationOrder, qos.CheckCompatible(offered, requested))

	offered.DestinationOrder.Kind = qos.BySourceTimestamp
	assert.Equal(t, qos.Compatible, qos.CheckCompatible(offered, requested))
}

func TestCheckCompatibleLiveliness(t *testing.T) {
	offered := qos.Default()
	offered.Liveliness.LeaseDuration = 2 * time.Second
	requested := qos.Default()
	requested.Liveliness.LeaseDuration = time.Second
	assert.Equal(t, qos.IncompatibleLiveliness, qos.CheckCompatible(offered, requested))
}

func TestMutableAfterEnable(t *testing.T) {
	assert.True(t, qos.MutableAfterEnable("Deadline"))
	assert.True(t, qos.MutableAfterEnable("Partition"))
	assert.False(t, qos.MutableAfterEnable("Reliability"))
	assert.False(t, qos.MutableAfterEnable("History"))
}

func TestIncompatibilityString(t *testing.T) {
	assert.Equal(t, "RELIABILITY", qos.IncompatibleReliability.String())
	assert.Equal(t, "COMPATIBLE", qos.Compatible.String())
}
