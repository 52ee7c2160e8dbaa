package writer_test

import (
	"testing"

	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/proxy"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/arc-self/rtps/pkg/rtps/writer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendCall struct {
	locators []wire.Locator
	sms      []wire.Submessage
}

type fakeSender struct {
	calls []sendCall
}

func (f *fakeSender) SendTo(locators []wire.Locator, sms []wire.Submessage) {
	f.calls = append(f.calls, sendCall{locators: locators, sms: sms})
}

func testGuid(key byte, kind wire.EntityKind) wire.GUID {
	var prefix wire.GuidPrefix
	prefix[0] = key
	return wire.GUID{Prefix: prefix, EntityId: wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: kind}}
}

func newCache() *history.Cache {
	return history.New(qos.History{Kind: qos.HistoryKeepAll}, qos.ResourceLimits{})
}

func TestStatefulWriterSendPendingDataSendsUnsentChangesThenHeartbeat(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 0, nil)

	reader := proxy.NewReaderProxy(testGuid(2, wire.EntityKindUserReaderWithKey), []wire.Locator{wire.NewLocatorUDPv4(10, 0, 0, 1, 7411)}, nil, true)
	w.MatchReader(reader)

	var instance [16]byte
	w.Write(instance, []byte("a"), wire.Time{})
	w.Write(instance, []byte("b"), wire.Time{})
	w.SendPendingData()

	require.Len(t, sender.calls, 1)
	sms := sender.calls[0].sms
	require.Len(t, sms, 3) // two DATA + one HEARTBEAT
	d0, ok := sms[0].(wire.Data)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(1), d0.WriterSN)
	d1, ok := sms[1].(wire.Data)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(2), d1.WriterSN)
	hb, ok := sms[2].(wire.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(2), hb.LastSN)

	// A second flush with nothing new still heartbeats a reliable reader.
	sender.calls = nil
	w.SendPendingData()
	require.Len(t, sender.calls, 1)
	require.Len(t, sender.calls[0].sms, 1)
	_, ok = sender.calls[0].sms[0].(wire.Heartbeat)
	assert.True(t, ok)
}

func TestStatefulWriterProcessAckNackRetransmitsRequestedChanges(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 0, nil)
	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))

	var instance [16]byte
	w.Write(instance, []byte("a"), wire.Time{})
	w.Write(instance, []byte("b"), wire.Time{})
	sender.calls = nil

	w.ProcessAckNack(remote, wire.AckNack{
		ReaderSNState: wire.NewSequenceNumberSetFromSlice(1, []wire.SequenceNumber{1}),
		Count:         1,
	})

	require.Len(t, sender.calls, 1)
	sms := sender.calls[0].sms
	require.Len(t, sms, 1)
	d, ok := sms[0].(wire.Data)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(1), d.WriterSN)
}

func TestStatefulWriterProcessAckNackSendsGapForEvictedChanges(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	cache := newCache()
	w := writer.NewStatefulWriter(guid, qos.Default(), cache, sender, 0, nil)
	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))

	var instance [16]byte
	w.Write(instance, []byte("a"), wire.Time{})
	cache.RemoveBySequenceNumber(1) // simulate eviction before the reader catches up

	w.ProcessAckNack(remote, wire.AckNack{
		ReaderSNState: wire.NewSequenceNumberSetFromSlice(1, []wire.SequenceNumber{1}),
		Count:         1,
	})

	require.Len(t, sender.calls, 1)
	sms := sender.calls[0].sms
	require.Len(t, sms, 1)
	g, ok := sms[0].(wire.Gap)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(1), g.GapStart)
}

func TestStatefulWriterProcessAckNackIgnoresStaleCount(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 0, nil)
	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))

	w.ProcessAckNack(remote, wire.AckNack{Count: 2})
	sender.calls = nil
	w.ProcessAckNack(remote, wire.AckNack{Count: 1})
	assert.Empty(t, sender.calls)
}

func TestStatefulWriterUnmatchReaderStopsDelivery(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 0, nil)
	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))
	w.UnmatchReader(remote)

	assert.Empty(t, w.Proxies())
	w.SendPendingData()
	assert.Empty(t, sender.calls)
}

func TestStatefulWriterSendPendingDataFragmentsOversizedChanges(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 4, nil)

	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))

	var instance [16]byte
	w.Write(instance, []byte("abcdefg"), wire.Time{}) // 7 bytes, fragment size 4 -> 2 fragments
	w.SendPendingData()

	require.Len(t, sender.calls, 1)
	sms := sender.calls[0].sms
	require.Len(t, sms, 4) // two DATA_FRAG, one HEARTBEAT_FRAG, and the usual sample-range HEARTBEAT

	f0, ok := sms[0].(wire.DataFrag)
	require.True(t, ok)
	assert.Equal(t, wire.FragmentNumber(1), f0.FragmentStartingNum)
	assert.Equal(t, []byte("abcd"), f0.Fragment)

	f1, ok := sms[1].(wire.DataFrag)
	require.True(t, ok)
	assert.Equal(t, wire.FragmentNumber(2), f1.FragmentStartingNum)
	assert.Equal(t, []byte("efg"), f1.Fragment)

	hf, ok := sms[2].(wire.HeartbeatFrag)
	require.True(t, ok)
	assert.Equal(t, wire.FragmentNumber(2), hf.LastFragmentNum)

	hb, ok := sms[3].(wire.Heartbeat)
	require.True(t, ok)
	assert.Equal(t, wire.SequenceNumber(1), hb.LastSN)
}

func TestStatefulWriterProcessNackFragRetransmitsRequestedFragment(t *testing.T) {
	guid := testGuid(1, wire.EntityKindUserWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatefulWriter(guid, qos.Default(), newCache(), sender, 4, nil)
	remote := testGuid(2, wire.EntityKindUserReaderWithKey)
	w.MatchReader(proxy.NewReaderProxy(remote, nil, nil, true))

	var instance [16]byte
	w.Write(instance, []byte("abcdefg"), wire.Time{})
	sender.calls = nil

	w.ProcessNackFrag(remote, wire.NackFrag{
		WriterSN:            1,
		FragmentNumberState: wire.NewFragmentNumberSetFromSlice(2, []wire.FragmentNumber{2}),
		Count:               1,
	})

	require.Len(t, sender.calls, 1)
	sms := sender.calls[0].sms
	require.Len(t, sms, 1)
	df, ok := sms[0].(wire.DataFrag)
	require.True(t, ok)
	assert.Equal(t, wire.FragmentNumber(2), df.FragmentStartingNum)
	assert.Equal(t, []byte("efg"), df.Fragment)
}

func TestStatelessWriterWriteSendsImmediatelyWithIncrementingSN(t *testing.T) {
	guid := testGuid(1, wire.EntityKindBuiltinWriterWithKey)
	sender := &fakeSender{}
	target := wire.NewLocatorUDPv4(239, 255, 0, 1, 7400)
	w := writer.NewStatelessWriter(guid, sender, []wire.Locator{target})

	w.Write([]byte("hello"))
	w.Write([]byte("world"))

	require.Len(t, sender.calls, 2)
	d0 := sender.calls[0].sms[0].(wire.Data)
	d1 := sender.calls[1].sms[0].(wire.Data)
	assert.Equal(t, wire.SequenceNumber(1), d0.WriterSN)
	assert.Equal(t, wire.SequenceNumber(2), d1.WriterSN)
	assert.Equal(t, []wire.Locator{target}, sender.calls[0].locators)
}

func TestStatelessWriterAddTargetDeduplicates(t *testing.T) {
	guid := testGuid(1, wire.EntityKindBuiltinWriterWithKey)
	sender := &fakeSender{}
	w := writer.NewStatelessWriter(guid, sender, nil)
	loc := wire.NewLocatorUDPv4(10, 0, 0, 5, 7411)
	w.AddTarget(loc)
	w.AddTarget(loc)

	w.Write([]byte("x"))
	require.Len(t, sender.calls, 1)
	assert.Equal(t, []wire.Locator{loc}, sender.calls[0].locators)
}
