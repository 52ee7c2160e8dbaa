package wire_test

import (
	"testing"

	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGUID(key byte) wire.GUID {
	var prefix wire.GuidPrefix
	prefix[0] = key
	return wire.GUID{Prefix: prefix, EntityId: wire.EntityId{Key: [3]byte{key, 1, 2}, Kind: wire.EntityKindUserWriterWithKey}}
}

func TestMessageHeaderRoundTrip(t *testing.T) {
	hdr := wire.MessageHeader{
		Version:    wire.ProtocolVersion24,
		VendorId:   wire.VendorIdThis,
		GuidPrefix: testGUID(7).Prefix,
	}
	w := wire.NewWriter(true)
	hdr.Encode(w)
	require.Len(t, w.Bytes(), wire.RTPSHeaderSize)

	got, err := wire.DecodeMessageHeader(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, hdr, got)
}

func TestMessageHeaderBadMagic(t *testing.T) {
	buf := make([]byte, wire.RTPSHeaderSize)
	copy(buf, "XXXX")
	_, err := wire.DecodeMessageHeader(buf)
	assert.Error(t, err)
}

func TestSubmessageHeaderRoundTrip(t *testing.T) {
	for _, le := range []bool{true, false} {
		h := wire.SubmessageHeader{Kind: wire.SubmessageHeartbeat, OctetsToNextHeader: 28}
		if le {
			h.Flags |= wire.FlagLittleEndian
		}
		w := wire.NewWriter(le)
		h.Encode(w)
		got, err := wire.DecodeSubmessageHeader(w.Bytes())
		require.NoError(t, err)
		assert.Equal(t, h, got)
		assert.Equal(t, le, got.LittleEndian())
	}
}

func TestSequenceNumberRoundTrip(t *testing.T) {
	cases := []wire.SequenceNumber{0, 1, 42, wire.SequenceNumberUnknown, 1 << 40, -(1 << 40)}
	for _, sn := range cases {
		w := wire.NewWriter(true)
		w.WriteSequenceNumber(sn)
		r := wire.NewReader(w.Bytes(), true)
		got, err := r.ReadSequenceNumber()
		require.NoError(t, err)
		assert.Equal(t, sn, got)
	}
}

func TestSequenceNumberSetMembersAndContains(t *testing.T) {
	members := []wire.SequenceNumber{5, 6, 9, 12}
	set := wire.NewSequenceNumberSetFromSlice(5, members)
	assert.Equal(t, members, set.Members())
	assert.True(t, set.Contains(9))
	assert.False(t, set.Contains(7))
	assert.False(t, set.Empty())
}

func TestSequenceNumberSetRoundTrip(t *testing.T) {
	set := wire.NewSequenceNumberSetFromSlice(10, []wire.SequenceNumber{10, 15, 20, 41})
	w := wire.NewWriter(false)
	w.WriteSequenceNumberSet(set)
	r := wire.NewReader(w.Bytes(), false)
	got, err := r.ReadSequenceNumberSet()
	require.NoError(t, err)
	assert.Equal(t, set.Members(), got.Members())
}

func TestFragmentNumberSetMembers(t *testing.T) {
	set := wire.FragmentNumberSet{Base: 1, NumBits: 4, Bitmap: []uint32{0xA0000000}}
	assert.Equal(t, []wire.FragmentNumber{1, 3}, set.Members())
}

func TestParameterListRoundTripPreservesUnknownParams(t *testing.T) {
	var pl wire.ParameterList
	pl.Add(wire.PidTopicName, []byte("square\x00"))
	pl.Params = append(pl.Params, wire.Parameter{Id: 0x7fff, Value: []byte{1, 2, 3, 4}})

	w := wire.NewWriter(true)
	pl.Encode(w)

	r := wire.NewReader(w.Bytes(), true)
	got, err := wire.DecodeParameterList(r)
	require.NoError(t, err)
	require.Equal(t, pl.Len(), got.Len())

	name, ok := got.Get(wire.PidTopicName)
	require.True(t, ok)
	assert.Equal(t, "square\x00\x00", string(name)) // Add pads the 7-byte value to 8

	unknown, ok := got.Get(0x7fff)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, unknown)
}

func TestParameterListMissingSentinelErrors(t *testing.T) {
	r := wire.NewReader([]byte{0x05, 0x00, 0x00, 0x00}, true)
	_, err := wire.DecodeParameterList(r)
	assert.Error(t, err)
}

// roundTripSubmessage encodes sm, decodes it back, and returns the result
// alongside the header used to frame it.
func roundTripSubmessage(t *testing.T, sm wire.Submessage, littleEndian bool) wire.Submessage {
	t.Helper()
	buf := wire.EncodeSubmessage(nil, sm, littleEndian)
	h, err := wire.DecodeSubmessageHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, sm.Kind(), h.Kind)
	body := buf[4 : 4+int(h.OctetsToNextHeader)]
	got, err := wire.DecodeSubmessageBody(h, body)
	require.NoError(t, err)
	return got
}

func TestSubmessageRoundTrip(t *testing.T) {
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	readerId := wire.EntityId{Key: [3]byte{0, 0, 2}, Kind: wire.EntityKindUserReaderWithKey}

	cases := []struct {
		name string
		sm   wire.Submessage
	}{
		{"Pad", wire.Pad{}},
		{"DataWithPayload", wire.Data{
			ReaderId: wire.EntityIdUnknown, WriterId: writerId,
			WriterSN: 7, HasPayload: true, Payload: []byte("hello"),
		}},
		{"DataKeyOnly", wire.Data{
			ReaderId: readerId, WriterId: writerId,
			WriterSN: 9, KeyOnly: true, Payload: []byte{1, 2, 3, 4},
		}},
		{"Gap", wire.Gap{
			ReaderId: readerId, WriterId: writerId,
			GapStart: 3, GapList: wire.NewSequenceNumberSetFromSlice(3, []wire.SequenceNumber{3, 4, 5}),
		}},
		{"Heartbeat", wire.Heartbeat{
			ReaderId: readerId, WriterId: writerId,
			FirstSN: 1, LastSN: 10, Count: 4, Final: true,
		}},
		{"HeartbeatFrag", wire.HeartbeatFrag{
			ReaderId: readerId, WriterId: writerId, WriterSN: 2, LastFragmentNum: 6, Count: 1,
		}},
		{"AckNack", wire.AckNack{
			ReaderId: readerId, WriterId: writerId,
			ReaderSNState: wire.NewSequenceNumberSetFromSlice(5, []wire.SequenceNumber{5, 7}),
			Count:         3, Final: true,
		}},
		{"NackFrag", wire.NackFrag{
			ReaderId: readerId, WriterId: writerId, WriterSN: 8,
			FragmentNumberState: wire.FragmentNumberSet{Base: 1, NumBits: 2, Bitmap: []uint32{0xC0000000}},
			Count:               2,
		}},
		{"InfoTs", wire.InfoTs{Timestamp: wire.Time{Seconds: 100, Fraction: 42}}},
		{"InfoTsInvalidate", wire.InfoTs{Invalidate: true, Timestamp: wire.TimeInvalid}},
		{"InfoDst", wire.InfoDst{GuidPrefix: testGUID(3).Prefix}},
		{"InfoSrc", wire.InfoSrc{Version: wire.ProtocolVersion24, VendorId: wire.VendorIdThis, GuidPrefix: testGUID(4).Prefix}},
		{"InfoReplyUnicastOnly", wire.InfoReply{
			UnicastLocators: []wire.Locator{wire.NewLocatorUDPv4(127, 0, 0, 1, 7410)},
		}},
		{"InfoReplyWithMulticast", wire.InfoReply{
			UnicastLocators:   []wire.Locator{wire.NewLocatorUDPv4(127, 0, 0, 1, 7410)},
			HasMulticast:      true,
			MulticastLocators: []wire.Locator{wire.NewLocatorUDPv4(239, 255, 0, 1, 7400)},
		}},
		{"InfoReplyIP4", wire.InfoReplyIP4{
			UnicastLocator: wire.NewLocatorUDPv4(10, 0, 0, 2, 7411),
		}},
		{"InfoReplyIP4WithMulticast", wire.InfoReplyIP4{
			UnicastLocator:   wire.NewLocatorUDPv4(10, 0, 0, 2, 7411),
			HasMulticast:     true,
			MulticastLocator: wire.NewLocatorUDPv4(239, 255, 0, 1, 7400),
		}},
	}

	for _, tc := range cases {
		for _, le := range []bool{true, false} {
			t.Run(tc.name, func(t *testing.T) {
				got := roundTripSubmessage(t, tc.sm, le)
				assert.Equal(t, tc.sm, got)
			})
		}
	}
}

func TestDataInlineQosRoundTrip(t *testing.T) {
	var pl wire.ParameterList
	pl.Add(wire.PidTopicName, []byte("square\x00"))
	sm := wire.Data{
		ReaderId:   wire.EntityIdUnknown,
		WriterId:   wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey},
		WriterSN:   1,
		InlineQos:  pl,
		HasPayload: true,
		Payload:    []byte("payload"),
	}
	got := roundTripSubmessage(t, sm, true).(wire.Data)
	assert.Equal(t, sm.WriterSN, got.WriterSN)
	assert.Equal(t, sm.Payload, got.Payload)
	name, ok := got.InlineQos.Get(wire.PidTopicName)
	require.True(t, ok)
	assert.Equal(t, "square\x00\x00", string(name)) // Add pads the 7-byte value to 8
}

func TestMessageRoundTripMultipleSubmessages(t *testing.T) {
	hdr := wire.MessageHeader{Version: wire.ProtocolVersion24, VendorId: wire.VendorIdThis, GuidPrefix: testGUID(1).Prefix}
	writerId := wire.EntityId{Key: [3]byte{0, 0, 1}, Kind: wire.EntityKindUserWriterWithKey}
	sms := []wire.Submessage{
		wire.InfoTs{Timestamp: wire.Time{Seconds: 1, Fraction: 0}},
		wire.Data{ReaderId: wire.EntityIdUnknown, WriterId: writerId, WriterSN: 1, HasPayload: true, Payload: []byte("a")},
		wire.Heartbeat{ReaderId: wire.EntityIdUnknown, WriterId: writerId, FirstSN: 1, LastSN: 1, Count: 1},
	}
	buf := wire.EncodeMessage(hdr, sms, true)

	msg, err := wire.DecodeMessage(buf)
	require.NoError(t, err)
	assert.Equal(t, hdr, msg.Header)
	require.Len(t, msg.Submessages, len(sms))
	for i, sm := range sms {
		assert.Equal(t, sm, msg.Submessages[i])
	}
}

func TestDecodeMessageSkipsUnknownSubmessageKind(t *testing.T) {
	hdr := wire.MessageHeader{Version: wire.ProtocolVersion24, VendorId: wire.VendorIdThis, GuidPrefix: testGUID(2).Prefix}
	w := wire.NewWriter(true)
	hdr.Encode(w)
	buf := w.Bytes()

	unknown := wire.SubmessageHeader{Kind: wire.SubmessageKind(0x99), Flags: wire.FlagLittleEndian, OctetsToNextHeader: 4}
	hw := wire.NewWriter(true)
	unknown.Encode(hw)
	buf = append(buf, hw.Bytes()...)
	buf = append(buf, 0, 0, 0, 0)

	buf = wire.EncodeSubmessage(buf, wire.Pad{}, true)

	msg, err := wire.DecodeMessage(buf)
	require.NoError(t, err)
	require.Len(t, msg.Submessages, 1)
	assert.Equal(t, wire.SubmessagePad, msg.Submessages[0].Kind())
}
