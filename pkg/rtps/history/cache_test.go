package history_test

import (
	"testing"

	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writerGuid(key byte) wire.GUID {
	var prefix wire.GuidPrefix
	prefix[0] = key
	return wire.GUID{Prefix: prefix, EntityId: wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}}
}

func change(writer wire.GUID, instance byte, sn wire.SequenceNumber) history.CacheChange {
	var h [16]byte
	h[0] = instance
	return history.CacheChange{
		Kind:           history.ChangeAlive,
		WriterGuid:     writer,
		InstanceHandle: h,
		SequenceNumber: sn,
		Data:           []byte{byte(sn)},
	}
}

func TestCacheKeepLastEvictsOldestPerInstance(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepLast, Depth: 2}, qos.ResourceLimits{})
	w := writerGuid(1)
	c.Add(change(w, 1, 1))
	c.Add(change(w, 1, 2))
	c.Add(change(w, 1, 3))

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, wire.SequenceNumber(2), all[0].SequenceNumber)
	assert.Equal(t, wire.SequenceNumber(3), all[1].SequenceNumber)
}

func TestCacheKeepLastIsPerInstance(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepLast, Depth: 1}, qos.ResourceLimits{})
	w := writerGuid(1)
	c.Add(change(w, 1, 1))
	c.Add(change(w, 2, 2))

	require.Equal(t, 2, c.Len())
	_, ok := c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(2)
	assert.True(t, ok)
}

func TestCacheKeepAllRespectsMaxSamples(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{MaxSamples: 2})
	w := writerGuid(1)
	c.Add(change(w, 1, 1))
	c.Add(change(w, 2, 2))
	c.Add(change(w, 3, 3))

	all := c.All()
	require.Len(t, all, 2)
	assert.Equal(t, wire.SequenceNumber(2), all[0].SequenceNumber)
	assert.Equal(t, wire.SequenceNumber(3), all[1].SequenceNumber)
}

func TestCacheDedupByWriterAndSequenceNumber(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	w1 := writerGuid(1)
	w2 := writerGuid(2)
	c.Add(change(w1, 1, 5))
	c.Add(change(w1, 1, 5)) // duplicate: same writer+sn, overwrites in place
	c.Add(change(w2, 1, 5)) // different writer, same sn: distinct entry

	assert.Equal(t, 2, c.Len())
}

func TestCacheRangeAndMinMax(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	w := writerGuid(1)
	for _, sn := range []wire.SequenceNumber{1, 3, 5, 7} {
		c.Add(change(w, 1, sn))
	}
	lo, hi := c.MinMax()
	assert.Equal(t, wire.SequenceNumber(1), lo)
	assert.Equal(t, wire.SequenceNumber(7), hi)

	got := c.Range(3, 5)
	require.Len(t, got, 2)
	assert.Equal(t, wire.SequenceNumber(3), got[0].SequenceNumber)
	assert.Equal(t, wire.SequenceNumber(5), got[1].SequenceNumber)
}

func TestCacheMinMaxEmpty(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	lo, hi := c.MinMax()
	assert.Equal(t, wire.SequenceNumberUnknown, lo)
	assert.Equal(t, wire.SequenceNumberUnknown, hi)
}

func TestCacheRemoveBySequenceNumber(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	w := writerGuid(1)
	c.Add(change(w, 1, 1))
	c.Add(change(w, 1, 2))
	c.RemoveBySequenceNumber(1)

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get(1)
	assert.False(t, ok)
}

func TestCacheRemoveWhere(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	w := writerGuid(1)
	c.Add(change(w, 1, 1))
	c.Add(change(w, 2, 2))
	c.RemoveWhere(func(ch history.CacheChange) bool { return ch.InstanceHandle[0] == 1 })

	require.Equal(t, 1, c.Len())
	all := c.All()
	assert.Equal(t, byte(2), all[0].InstanceHandle[0])
}

func TestCacheOrderedBySequenceNumberOnInsert(t *testing.T) {
	c := history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
	w := writerGuid(1)
	c.Add(change(w, 1, 5))
	c.Add(change(w, 1, 1))
	c.Add(change(w, 1, 3))

	all := c.All()
	require.Len(t, all, 3)
	assert.Equal(t, []wire.SequenceNumber{1, 3, 5}, []wire.SequenceNumber{
		all[0].SequenceNumber, all[1].SequenceNumber, all[2].SequenceNumber,
	})
}
