package receiver_test

import (
	"testing"

	"github.com/arc-self/rtps/pkg/rtps/receiver"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dataCall struct {
	writerGuid wire.GUID
	d          wire.Data
	ts         wire.Time
}

type fakeReader struct {
	id    wire.EntityId
	data  []dataCall
	gaps  []wire.Gap
	hbs   []wire.Heartbeat
	frags []wire.DataFrag
	hbfs  []wire.HeartbeatFrag
}

func (f *fakeReader) HandleData(writerGuid wire.GUID, d wire.Data, ts wire.Time) {
	f.data = append(f.data, dataCall{writerGuid, d, ts})
}
func (f *fakeReader) HandleDataFrag(_ wire.GUID, df wire.DataFrag, _ wire.Time) {
	f.frags = append(f.frags, df)
}
func (f *fakeReader) HandleGap(_ wire.GUID, g wire.Gap)              { f.gaps = append(f.gaps, g) }
func (f *fakeReader) HandleHeartbeat(_ wire.GUID, hb wire.Heartbeat) { f.hbs = append(f.hbs, hb) }
func (f *fakeReader) HandleHeartbeatFrag(_ wire.GUID, hf wire.HeartbeatFrag) {
	f.hbfs = append(f.hbfs, hf)
}

type fakeWriter struct {
	id    wire.EntityId
	acks  []wire.AckNack
	nacks []wire.NackFrag
}

func (f *fakeWriter) ProcessAckNack(_ wire.GUID, an wire.AckNack) { f.acks = append(f.acks, an) }
func (f *fakeWriter) ProcessNackFrag(_ wire.GUID, nf wire.NackFrag) {
	f.nacks = append(f.nacks, nf)
}

type fakeEntities struct {
	readers map[wire.EntityId]*fakeReader
	writers map[wire.EntityId]*fakeWriter
}

func (e *fakeEntities) ReaderByEntityId(id wire.EntityId) (receiver.ReaderTarget, bool) {
	r, ok := e.readers[id]
	return r, ok
}
func (e *fakeEntities) WriterByEntityId(id wire.EntityId) (receiver.WriterTarget, bool) {
	w, ok := e.writers[id]
	return w, ok
}
func (e *fakeEntities) AllReaders() []receiver.ReaderTarget {
	out := make([]receiver.ReaderTarget, 0, len(e.readers))
	for _, r := range e.readers {
		out = append(out, r)
	}
	return out
}
func (e *fakeEntities) AllWriters() []receiver.WriterTarget {
	out := make([]receiver.WriterTarget, 0, len(e.writers))
	for _, w := range e.writers {
		out = append(out, w)
	}
	return out
}

func guidFor(prefixByte byte, id wire.EntityId) wire.GUID {
	var p wire.GuidPrefix
	p[0] = prefixByte
	return wire.GUID{Prefix: p, EntityId: id}
}

func TestReceiverDispatchesDataToTargetedReader(t *testing.T) {
	readerId := wire.EntityId{Key: [3]byte{0, 0, 9}, Kind: wire.EntityKindUserReaderWithKey}
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	fr := &fakeReader{id: readerId}
	ent := &fakeEntities{readers: map[wire.EntityId]*fakeReader{readerId: fr}}
	r := receiver.New(ent, nil)

	msg := wire.Message{
		Header: wire.MessageHeader{GuidPrefix: wire.GuidPrefix{9}},
		Submessages: []wire.Submessage{
			wire.InfoTs{Timestamp: wire.Time{Seconds: 5}},
			wire.Data{ReaderId: readerId, WriterId: writerId, WriterSN: 1, HasPayload: true, Payload: []byte("x")},
		},
	}
	r.Process(msg)

	require.Len(t, fr.data, 1)
	assert.Equal(t, guidFor(9, writerId), fr.data[0].writerGuid)
	assert.Equal(t, wire.Time{Seconds: 5}, fr.data[0].ts)
}

func TestReceiverFansOutEntityIdUnknownToAllReaders(t *testing.T) {
	r1 := &fakeReader{}
	r2 := &fakeReader{}
	ent := &fakeEntities{readers: map[wire.EntityId]*fakeReader{
		{Key: [3]byte{0, 0, 1}}: r1,
		{Key: [3]byte{0, 0, 2}}: r2,
	}}
	recv := receiver.New(ent, nil)

	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.Data{ReaderId: wire.EntityIdUnknown, WriterSN: 1, HasPayload: true},
		},
	}
	recv.Process(msg)

	assert.Len(t, r1.data, 1)
	assert.Len(t, r2.data, 1)
}

func TestReceiverDispatchesAckNackToTargetedWriter(t *testing.T) {
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	fw := &fakeWriter{id: writerId}
	ent := &fakeEntities{writers: map[wire.EntityId]*fakeWriter{writerId: fw}}
	r := receiver.New(ent, nil)

	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.AckNack{WriterId: writerId, Count: 1},
		},
	}
	r.Process(msg)

	require.Len(t, fw.acks, 1)
	assert.Equal(t, wire.Count(1), fw.acks[0].Count)
}

func TestReceiverDropsSubmessagesForUnknownEntity(t *testing.T) {
	ent := &fakeEntities{readers: map[wire.EntityId]*fakeReader{}}
	r := receiver.New(ent, nil)

	unknownReader := wire.EntityId{Key: [3]byte{9, 9, 9}, Kind: wire.EntityKindUserReaderWithKey}
	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.Data{ReaderId: unknownReader, WriterSN: 1, HasPayload: true},
		},
	}
	assert.NotPanics(t, func() { r.Process(msg) })
}

func TestReceiverDispatchesDataFragAndHeartbeatFragToTargetedReader(t *testing.T) {
	readerId := wire.EntityId{Key: [3]byte{0, 0, 9}, Kind: wire.EntityKindUserReaderWithKey}
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	fr := &fakeReader{id: readerId}
	ent := &fakeEntities{readers: map[wire.EntityId]*fakeReader{readerId: fr}}
	r := receiver.New(ent, nil)

	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.DataFrag{ReaderId: readerId, WriterId: writerId, WriterSN: 1, FragmentStartingNum: 1, SampleSize: 4, Fragment: []byte("ab")},
			wire.HeartbeatFrag{ReaderId: readerId, WriterId: writerId, WriterSN: 1, LastFragmentNum: 2, Count: 1},
		},
	}
	r.Process(msg)

	require.Len(t, fr.frags, 1)
	require.Len(t, fr.hbfs, 1)
	assert.Equal(t, wire.SequenceNumber(1), fr.frags[0].WriterSN)
}

func TestReceiverDispatchesNackFragToTargetedWriter(t *testing.T) {
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	fw := &fakeWriter{id: writerId}
	ent := &fakeEntities{writers: map[wire.EntityId]*fakeWriter{writerId: fw}}
	r := receiver.New(ent, nil)

	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.NackFrag{WriterId: writerId, WriterSN: 1, Count: 1},
		},
	}
	r.Process(msg)

	require.Len(t, fw.nacks, 1)
}

func TestReceiverInfoTsInvalidateClearsTimestamp(t *testing.T) {
	readerId := wire.EntityId{Key: [3]byte{0, 0, 9}, Kind: wire.EntityKindUserReaderWithKey}
	fr := &fakeReader{id: readerId}
	ent := &fakeEntities{readers: map[wire.EntityId]*fakeReader{readerId: fr}}
	r := receiver.New(ent, nil)

	msg := wire.Message{
		Submessages: []wire.Submessage{
			wire.InfoTs{Timestamp: wire.Time{Seconds: 5}},
			wire.InfoTs{Invalidate: true},
			wire.Data{ReaderId: readerId, WriterSN: 1, HasPayload: true},
		},
	}
	r.Process(msg)

	require.Len(t, fr.data, 1)
	assert.Equal(t, wire.TimeInvalid, fr.data[0].ts)
}
