package wire

import "fmt"

// Submessage is any decoded submessage body (spec.md §4.1).
type Submessage interface {
	Kind() SubmessageKind
}

// Message is one fully decoded RTPS datagram: the fixed header plus the
// ordered sequence of submessages it carried, in wire order. INFO_*
// submessages are left in place rather than pre-applied so callers (the
// message receiver) can track the running interpretation state the spec
// requires (spec.md §5, MessageReceiver).
type Message struct {
	Header      MessageHeader
	Submessages []Submessage
}

// DecodeMessage decodes one complete RTPS datagram. Unknown submessage
// kinds are skipped using their own OctetsToNextHeader rather than
// aborting decode of the rest of the datagram (spec.md §4.1).
func DecodeMessage(buf []byte) (Message, error) {
	var m Message
	hdr, err := DecodeMessageHeader(buf)
	if err != nil {
		return m, err
	}
	m.Header = hdr
	pos := RTPSHeaderSize
	for pos < len(buf) {
		if len(buf)-pos < 4 {
			return m, fmt.Errorf("wire: trailing %d bytes too short for a submessage header", len(buf)-pos)
		}
		h, err := DecodeSubmessageHeader(buf[pos:])
		if err != nil {
			return m, err
		}
		bodyStart := pos + 4
		bodyLen := int(h.OctetsToNextHeader)
		isLast := h.OctetsToNextHeader == 0
		if isLast {
			bodyLen = len(buf) - bodyStart
		}
		if bodyStart+bodyLen > len(buf) {
			return m, fmt.Errorf("wire: submessage %s body length %d exceeds datagram", h.Kind, bodyLen)
		}
		body := buf[bodyStart : bodyStart+bodyLen]
		sm, err := DecodeSubmessageBody(h, body)
		if err != nil {
			// A malformed or unknown submessage is skipped via its own
			// octets_to_next_header, never aborting decode of the rest of
			// the datagram: a later submessage (e.g. INFO_DST, or the next
			// DATA) can still be interpreted (spec.md §7).
			pos = bodyStart + bodyLen
			if isLast {
				break
			}
			continue
		}
		m.Submessages = append(m.Submessages, sm)
		pos = bodyStart + bodyLen
		if isLast {
			break
		}
	}
	return m, nil
}

type unknownKindError struct{ kind SubmessageKind }

func (e unknownKindError) Error() string {
	return fmt.Sprintf("wire: unknown submessage kind 0x%02x", byte(e.kind))
}

// EncodeMessage appends hdr and every submessage in sms, in order, to a
// fresh buffer and returns it. The last submessage's OctetsToNextHeader
// is left as its true body length (this implementation never relies on
// the "extends to end of datagram" shorthand when encoding, only when
// decoding messages from other implementations).
func EncodeMessage(hdr MessageHeader, sms []Submessage, littleEndian bool) []byte {
	w := NewWriter(littleEndian)
	hdr.Encode(w)
	buf := w.Bytes()
	for _, sm := range sms {
		buf = EncodeSubmessage(buf, sm, littleEndian)
	}
	return buf
}
