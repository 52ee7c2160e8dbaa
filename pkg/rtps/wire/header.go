package wire

import "fmt"

// SubmessageKind identifies the kind of an RTPS submessage (spec.md §4.1).
type SubmessageKind byte

const (
	SubmessagePad           SubmessageKind = 0x01
	SubmessageAckNack       SubmessageKind = 0x06
	SubmessageHeartbeat     SubmessageKind = 0x07
	SubmessageGap           SubmessageKind = 0x08
	SubmessageInfoTs        SubmessageKind = 0x09
	SubmessageInfoSrc       SubmessageKind = 0x0c
	SubmessageInfoReplyIP4  SubmessageKind = 0x0d
	SubmessageInfoDst       SubmessageKind = 0x0e
	SubmessageInfoReply     SubmessageKind = 0x0f
	SubmessageNackFrag      SubmessageKind = 0x12
	SubmessageHeartbeatFrag SubmessageKind = 0x13
	SubmessageData          SubmessageKind = 0x15
	SubmessageDataFrag      SubmessageKind = 0x16
)

func (k SubmessageKind) String() string {
	switch k {
	case SubmessagePad:
		return "PAD"
	case SubmessageAckNack:
		return "ACKNACK"
	case SubmessageHeartbeat:
		return "HEARTBEAT"
	case SubmessageGap:
		return "GAP"
	case SubmessageInfoTs:
		return "INFO_TS"
	case SubmessageInfoSrc:
		return "INFO_SRC"
	case SubmessageInfoReplyIP4:
		return "INFO_REPLY_IP4"
	case SubmessageInfoDst:
		return "INFO_DST"
	case SubmessageInfoReply:
		return "INFO_REPLY"
	case SubmessageNackFrag:
		return "NACK_FRAG"
	case SubmessageHeartbeatFrag:
		return "HEARTBEAT_FRAG"
	case SubmessageData:
		return "DATA"
	case SubmessageDataFrag:
		return "DATA_FRAG"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(k))
	}
}

// FlagLittleEndian is bit 0 of every submessage's flags byte.
const FlagLittleEndian byte = 0x01

// SubmessageHeader is the 4-byte header prefixing every submessage.
type SubmessageHeader struct {
	Kind                SubmessageKind
	Flags               byte
	OctetsToNextHeader  uint16
}

// LittleEndian reports whether bit 0 of Flags is set.
func (h SubmessageHeader) LittleEndian() bool { return h.Flags&FlagLittleEndian != 0 }

// DecodeSubmessageHeader reads a 4-byte submessage header from buf. The
// kind/flags bytes are endian-agnostic single bytes; the length field is
// decoded in the endianness given by the header's own flags (bit 0).
func DecodeSubmessageHeader(buf []byte) (SubmessageHeader, error) {
	if len(buf) < 4 {
		return SubmessageHeader{}, errShortBuffer("submessage header", 4, len(buf))
	}
	h := SubmessageHeader{
		Kind:  SubmessageKind(buf[0]),
		Flags: buf[1],
	}
	order := byteOrder(h.LittleEndian())
	h.OctetsToNextHeader = order.Uint16(buf[2:4])
	return h, nil
}

// Encode appends the 4-byte header to w. octetsToNextHeader must already
// reflect the length of the body that follows (or 0 for "to end of
// datagram", only valid on the last submessage).
func (h SubmessageHeader) Encode(w *Writer) {
	w.u8(byte(h.Kind))
	w.u8(h.Flags)
	w.u16(h.OctetsToNextHeader)
}

// RTPSHeaderSize is the length of the fixed RTPS message header (spec.md §6).
const RTPSHeaderSize = 20

// RTPSMagic is the 4-byte ASCII "RTPS" magic at the start of every datagram.
var RTPSMagic = [4]byte{'R', 'T', 'P', 'S'}

// MessageHeader is the 20-byte header prefixing every RTPS datagram.
type MessageHeader struct {
	Version    ProtocolVersion
	VendorId   VendorId
	GuidPrefix GuidPrefix
}

// DecodeMessageHeader reads the fixed 20-byte RTPS message header.
func DecodeMessageHeader(buf []byte) (MessageHeader, error) {
	var h MessageHeader
	if len(buf) < RTPSHeaderSize {
		return h, errShortBuffer("message header", RTPSHeaderSize, len(buf))
	}
	if buf[0] != RTPSMagic[0] || buf[1] != RTPSMagic[1] || buf[2] != RTPSMagic[2] || buf[3] != RTPSMagic[3] {
		return h, fmt.Errorf("wire: bad RTPS magic %q", buf[0:4])
	}
	h.Version = ProtocolVersion{Major: buf[4], Minor: buf[5]}
	h.VendorId = VendorId{buf[6], buf[7]}
	copy(h.GuidPrefix[:], buf[8:20])
	return h, nil
}

// Encode appends the 20-byte RTPS message header to w.
func (h MessageHeader) Encode(w *Writer) {
	w.Raw(RTPSMagic[:])
	w.WriteProtocolVersion(h.Version)
	w.WriteVendorId(h.VendorId)
	w.WriteGuidPrefix(h.GuidPrefix)
}
