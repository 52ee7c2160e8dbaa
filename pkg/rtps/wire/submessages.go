package wire

import "fmt"

// Submessage flag bits beyond the shared endianness bit (bit 0), one
// block per submessage kind (spec.md §4.1).
const (
	FlagDataInlineQos byte = 0x02
	FlagDataPayload   byte = 0x04
	FlagDataKey       byte = 0x08

	FlagHeartbeatFinal      byte = 0x02
	FlagHeartbeatLiveliness byte = 0x04

	FlagAckNackFinal byte = 0x02

	FlagInfoTsInvalidate byte = 0x02

	FlagDataFragInlineQos byte = 0x02
	FlagDataFragKey       byte = 0x04
)

// Pad is a no-op submessage used for alignment/padding.
type Pad struct{}

func (Pad) Kind() SubmessageKind { return SubmessagePad }

// Data carries a serialized sample and optional inline QoS (spec.md §4.1).
type Data struct {
	ReaderId    EntityId
	WriterId    EntityId
	WriterSN    SequenceNumber
	InlineQos   ParameterList
	HasPayload  bool
	KeyOnly     bool // serialized payload represents only the key (dispose/unregister)
	Payload     []byte
}

func (Data) Kind() SubmessageKind { return SubmessageData }

// Gap informs a reader that a sequence-number range is irrelevant.
type Gap struct {
	ReaderId EntityId
	WriterId EntityId
	GapStart SequenceNumber
	GapList  SequenceNumberSet
}

func (Gap) Kind() SubmessageKind { return SubmessageGap }

// Heartbeat advertises a writer's available sequence-number range.
type Heartbeat struct {
	ReaderId    EntityId
	WriterId    EntityId
	FirstSN     SequenceNumber
	LastSN      SequenceNumber
	Count       Count
	Final       bool
	Liveliness  bool
}

func (Heartbeat) Kind() SubmessageKind { return SubmessageHeartbeat }

// HeartbeatFrag advertises the fragments available for one sample.
type HeartbeatFrag struct {
	ReaderId        EntityId
	WriterId        EntityId
	WriterSN        SequenceNumber
	LastFragmentNum FragmentNumber
	Count           Count
}

func (HeartbeatFrag) Kind() SubmessageKind { return SubmessageHeartbeatFrag }

// AckNack reports a reader's highest contiguous received sn plus a bitmap
// of missing sns.
type AckNack struct {
	ReaderId      EntityId
	WriterId      EntityId
	ReaderSNState SequenceNumberSet
	Count         Count
	Final         bool
}

func (AckNack) Kind() SubmessageKind { return SubmessageAckNack }

// NackFrag requests specific fragments of one sample.
type NackFrag struct {
	ReaderId        EntityId
	WriterId        EntityId
	WriterSN        SequenceNumber
	FragmentNumberState FragmentNumberSet
	Count           Count
}

func (NackFrag) Kind() SubmessageKind { return SubmessageNackFrag }

// FragmentNumberSet is structurally identical to a SequenceNumberSet but
// its base is a FragmentNumber (spec.md §4.1).
type FragmentNumberSet struct {
	Base    FragmentNumber
	NumBits uint32
	Bitmap  []uint32
}

// Members returns the fragment numbers contained in the set, ascending.
func (s FragmentNumberSet) Members() []FragmentNumber {
	var out []FragmentNumber
	for d := uint32(0); d < s.NumBits; d++ {
		word := int(d / 32)
		if word >= len(s.Bitmap) {
			break
		}
		if s.Bitmap[word]&(1<<(31-(d%32))) != 0 {
			out = append(out, s.Base+FragmentNumber(d))
		}
	}
	return out
}

// InfoTs sets the timestamp applied to subsequent DATA submessages in the
// same datagram; Invalidate clears it.
type InfoTs struct {
	Invalidate bool
	Timestamp  Time
}

func (InfoTs) Kind() SubmessageKind { return SubmessageInfoTs }

// InfoDst specifies the intended destination GuidPrefix.
type InfoDst struct {
	GuidPrefix GuidPrefix
}

func (InfoDst) Kind() SubmessageKind { return SubmessageInfoDst }

// InfoSrc overrides the source GuidPrefix/vendor/version for the
// remainder of the datagram.
type InfoSrc struct {
	Version    ProtocolVersion
	VendorId   VendorId
	GuidPrefix GuidPrefix
}

func (InfoSrc) Kind() SubmessageKind { return SubmessageInfoSrc }

// InfoReply updates reply locators (unicast/multicast) for the remainder
// of the datagram.
type InfoReply struct {
	UnicastLocators   []Locator
	HasMulticast      bool
	MulticastLocators []Locator
}

func (InfoReply) Kind() SubmessageKind { return SubmessageInfoReply }

// InfoReplyIP4 is the compact IPv4-only form of InfoReply.
type InfoReplyIP4 struct {
	UnicastLocator   Locator
	HasMulticast     bool
	MulticastLocator Locator
}

func (InfoReplyIP4) Kind() SubmessageKind { return SubmessageInfoReplyIP4 }

// DataFrag carries one fragment of a large serialized sample.
type DataFrag struct {
	ReaderId             EntityId
	WriterId             EntityId
	WriterSN             SequenceNumber
	FragmentStartingNum  FragmentNumber
	FragmentsInSubmessage uint16
	FragmentSize         uint16
	SampleSize           uint32
	InlineQos            ParameterList
	KeyOnly              bool
	Fragment             []byte
}

func (DataFrag) Kind() SubmessageKind { return SubmessageDataFrag }

// ---- Decode ----

// DecodeSubmessageBody decodes the body of a submessage given its already
// decoded header and the body bytes (header.OctetsToNextHeader, or the
// remainder of the datagram on the last submessage). An unknown
// submessage kind returns an error; DecodeMessage treats that error like
// any other and skips the submessage using header.OctetsToNextHeader.
func DecodeSubmessageBody(h SubmessageHeader, body []byte) (Submessage, error) {
	r := NewReader(body, h.LittleEndian())
	switch h.Kind {
	case SubmessagePad:
		return Pad{}, nil
	case SubmessageData:
		return decodeData(h, r)
	case SubmessageDataFrag:
		return decodeDataFrag(h, r)
	case SubmessageGap:
		return decodeGap(r)
	case SubmessageHeartbeat:
		return decodeHeartbeat(h, r)
	case SubmessageHeartbeatFrag:
		return decodeHeartbeatFrag(r)
	case SubmessageAckNack:
		return decodeAckNack(h, r)
	case SubmessageNackFrag:
		return decodeNackFrag(r)
	case SubmessageInfoTs:
		return decodeInfoTs(h, r)
	case SubmessageInfoDst:
		return decodeInfoDst(r)
	case SubmessageInfoSrc:
		return decodeInfoSrc(r)
	case SubmessageInfoReply:
		return decodeInfoReply(r)
	case SubmessageInfoReplyIP4:
		return decodeInfoReplyIP4(r)
	default:
		return nil, unknownKindError{kind: h.Kind}
	}
}

func decodeData(h SubmessageHeader, r *Reader) (Data, error) {
	var d Data
	if _, err := r.u16(); err != nil { // extraFlags, reserved
		return d, err
	}
	octetsToInlineQos, err := r.u16()
	if err != nil {
		return d, err
	}
	afterInlineQosOffset := r.Pos() + int(octetsToInlineQos)
	if d.ReaderId, err = r.ReadEntityId(); err != nil {
		return d, err
	}
	if d.WriterId, err = r.ReadEntityId(); err != nil {
		return d, err
	}
	if d.WriterSN, err = r.ReadSequenceNumber(); err != nil {
		return d, err
	}
	if r.Pos() < afterInlineQosOffset {
		if err := r.Skip(afterInlineQosOffset - r.Pos()); err != nil {
			return d, err
		}
	}
	if h.Flags&FlagDataInlineQos != 0 {
		pl, err := DecodeParameterList(r)
		if err != nil {
			return d, err
		}
		d.InlineQos = pl
	}
	d.HasPayload = h.Flags&FlagDataPayload != 0
	d.KeyOnly = h.Flags&FlagDataKey != 0
	if d.HasPayload || d.KeyOnly {
		d.Payload = append([]byte(nil), r.buf[r.pos:]...)
	}
	return d, nil
}

func decodeDataFrag(h SubmessageHeader, r *Reader) (DataFrag, error) {
	var d DataFrag
	if _, err := r.u16(); err != nil {
		return d, err
	}
	octetsToInlineQos, err := r.u16()
	if err != nil {
		return d, err
	}
	afterInlineQosOffset := r.Pos() + int(octetsToInlineQos)
	if d.ReaderId, err = r.ReadEntityId(); err != nil {
		return d, err
	}
	if d.WriterId, err = r.ReadEntityId(); err != nil {
		return d, err
	}
	if d.WriterSN, err = r.ReadSequenceNumber(); err != nil {
		return d, err
	}
	if d.FragmentStartingNum, err = r.ReadFragmentNumber(); err != nil {
		return d, err
	}
	fragsIn, err := r.u16()
	if err != nil {
		return d, err
	}
	d.FragmentsInSubmessage = fragsIn
	fragSize, err := r.u16()
	if err != nil {
		return d, err
	}
	d.FragmentSize = fragSize
	sampleSize, err := r.u32()
	if err != nil {
		return d, err
	}
	d.SampleSize = sampleSize
	if r.Pos() < afterInlineQosOffset {
		if err := r.Skip(afterInlineQosOffset - r.Pos()); err != nil {
			return d, err
		}
	}
	if h.Flags&FlagDataFragInlineQos != 0 {
		pl, err := DecodeParameterList(r)
		if err != nil {
			return d, err
		}
		d.InlineQos = pl
	}
	d.KeyOnly = h.Flags&FlagDataFragKey != 0
	d.Fragment = append([]byte(nil), r.buf[r.pos:]...)
	return d, nil
}

func decodeGap(r *Reader) (Gap, error) {
	var g Gap
	var err error
	if g.ReaderId, err = r.ReadEntityId(); err != nil {
		return g, err
	}
	if g.WriterId, err = r.ReadEntityId(); err != nil {
		return g, err
	}
	if g.GapStart, err = r.ReadSequenceNumber(); err != nil {
		return g, err
	}
	if g.GapList, err = r.ReadSequenceNumberSet(); err != nil {
		return g, err
	}
	return g, nil
}

func decodeHeartbeat(h SubmessageHeader, r *Reader) (Heartbeat, error) {
	var hb Heartbeat
	var err error
	if hb.ReaderId, err = r.ReadEntityId(); err != nil {
		return hb, err
	}
	if hb.WriterId, err = r.ReadEntityId(); err != nil {
		return hb, err
	}
	if hb.FirstSN, err = r.ReadSequenceNumber(); err != nil {
		return hb, err
	}
	if hb.LastSN, err = r.ReadSequenceNumber(); err != nil {
		return hb, err
	}
	if hb.Count, err = r.ReadCount(); err != nil {
		return hb, err
	}
	hb.Final = h.Flags&FlagHeartbeatFinal != 0
	hb.Liveliness = h.Flags&FlagHeartbeatLiveliness != 0
	return hb, nil
}

func decodeHeartbeatFrag(r *Reader) (HeartbeatFrag, error) {
	var hf HeartbeatFrag
	var err error
	if hf.ReaderId, err = r.ReadEntityId(); err != nil {
		return hf, err
	}
	if hf.WriterId, err = r.ReadEntityId(); err != nil {
		return hf, err
	}
	if hf.WriterSN, err = r.ReadSequenceNumber(); err != nil {
		return hf, err
	}
	if hf.LastFragmentNum, err = r.ReadFragmentNumber(); err != nil {
		return hf, err
	}
	if hf.Count, err = r.ReadCount(); err != nil {
		return hf, err
	}
	return hf, nil
}

func decodeAckNack(h SubmessageHeader, r *Reader) (AckNack, error) {
	var an AckNack
	var err error
	if an.ReaderId, err = r.ReadEntityId(); err != nil {
		return an, err
	}
	if an.WriterId, err = r.ReadEntityId(); err != nil {
		return an, err
	}
	if an.ReaderSNState, err = r.ReadSequenceNumberSet(); err != nil {
		return an, err
	}
	if an.Count, err = r.ReadCount(); err != nil {
		return an, err
	}
	an.Final = h.Flags&FlagAckNackFinal != 0
	return an, nil
}

func decodeNackFrag(r *Reader) (NackFrag, error) {
	var nf NackFrag
	var err error
	if nf.ReaderId, err = r.ReadEntityId(); err != nil {
		return nf, err
	}
	if nf.WriterId, err = r.ReadEntityId(); err != nil {
		return nf, err
	}
	if nf.WriterSN, err = r.ReadSequenceNumber(); err != nil {
		return nf, err
	}
	base, err := r.ReadFragmentNumber()
	if err != nil {
		return nf, err
	}
	numBits, err := r.u32()
	if err != nil {
		return nf, err
	}
	nWords := (int(numBits) + 31) / 32
	words := make([]uint32, nWords)
	for i := 0; i < nWords; i++ {
		if words[i], err = r.u32(); err != nil {
			return nf, err
		}
	}
	nf.FragmentNumberState = FragmentNumberSet{Base: base, NumBits: numBits, Bitmap: words}
	if nf.Count, err = r.ReadCount(); err != nil {
		return nf, err
	}
	return nf, nil
}

func decodeInfoTs(h SubmessageHeader, r *Reader) (InfoTs, error) {
	var it InfoTs
	it.Invalidate = h.Flags&FlagInfoTsInvalidate != 0
	if it.Invalidate {
		it.Timestamp = TimeInvalid
		return it, nil
	}
	t, err := r.ReadTime()
	if err != nil {
		return it, err
	}
	it.Timestamp = t
	return it, nil
}

func decodeInfoDst(r *Reader) (InfoDst, error) {
	var id InfoDst
	p, err := r.ReadGuidPrefix()
	if err != nil {
		return id, err
	}
	id.GuidPrefix = p
	return id, nil
}

func decodeInfoSrc(r *Reader) (InfoSrc, error) {
	var is InfoSrc
	if _, err := r.Bytes(4); err != nil { // unused/reserved
		return is, err
	}
	v, err := r.ReadProtocolVersion()
	if err != nil {
		return is, err
	}
	is.Version = v
	vid, err := r.ReadVendorId()
	if err != nil {
		return is, err
	}
	is.VendorId = vid
	p, err := r.ReadGuidPrefix()
	if err != nil {
		return is, err
	}
	is.GuidPrefix = p
	return is, nil
}

func decodeInfoReply(r *Reader) (InfoReply, error) {
	var ir InfoReply
	n, err := r.u32()
	if err != nil {
		return ir, err
	}
	for i := uint32(0); i < n; i++ {
		l, err := r.ReadLocator()
		if err != nil {
			return ir, err
		}
		ir.UnicastLocators = append(ir.UnicastLocators, l)
	}
	if r.Remaining() == 0 {
		return ir, nil
	}
	m, err := r.u32()
	if err != nil {
		return ir, err
	}
	ir.HasMulticast = true
	for i := uint32(0); i < m; i++ {
		l, err := r.ReadLocator()
		if err != nil {
			return ir, err
		}
		ir.MulticastLocators = append(ir.MulticastLocators, l)
	}
	return ir, nil
}

func decodeInfoReplyIP4(r *Reader) (InfoReplyIP4, error) {
	var ir InfoReplyIP4
	l, err := r.ReadLocator()
	if err != nil {
		return ir, err
	}
	ir.UnicastLocator = l
	if r.Remaining() == 0 {
		return ir, nil
	}
	m, err := r.ReadLocator()
	if err != nil {
		return ir, err
	}
	ir.HasMulticast = true
	ir.MulticastLocator = m
	return ir, nil
}

// ---- Encode ----

// EncodeSubmessage appends the full submessage (header + body) for sm to
// dst, using the given endianness, and returns the new slice.
func EncodeSubmessage(dst []byte, sm Submessage, littleEndian bool) []byte {
	bodyW := NewWriter(littleEndian)
	flags := byte(0)
	if littleEndian {
		flags |= FlagLittleEndian
	}

	switch v := sm.(type) {
	case Pad:
		// no body
	case Data:
		encodeData(bodyW, v)
		if v.InlineQos.Len() > 0 {
			flags |= FlagDataInlineQos
		}
		if v.HasPayload {
			flags |= FlagDataPayload
		}
		if v.KeyOnly {
			flags |= FlagDataKey
		}
	case DataFrag:
		encodeDataFrag(bodyW, v)
		if v.InlineQos.Len() > 0 {
			flags |= FlagDataFragInlineQos
		}
		if v.KeyOnly {
			flags |= FlagDataFragKey
		}
	case Gap:
		encodeGap(bodyW, v)
	case Heartbeat:
		encodeHeartbeat(bodyW, v)
		if v.Final {
			flags |= FlagHeartbeatFinal
		}
		if v.Liveliness {
			flags |= FlagHeartbeatLiveliness
		}
	case HeartbeatFrag:
		encodeHeartbeatFrag(bodyW, v)
	case AckNack:
		encodeAckNack(bodyW, v)
		if v.Final {
			flags |= FlagAckNackFinal
		}
	case NackFrag:
		encodeNackFrag(bodyW, v)
	case InfoTs:
		encodeInfoTs(bodyW, v)
		if v.Invalidate {
			flags |= FlagInfoTsInvalidate
		}
	case InfoDst:
		encodeInfoDst(bodyW, v)
	case InfoSrc:
		encodeInfoSrc(bodyW, v)
	case InfoReply:
		encodeInfoReply(bodyW, v)
	case InfoReplyIP4:
		encodeInfoReplyIP4(bodyW, v)
	default:
		panic(fmt.Sprintf("wire: EncodeSubmessage: unhandled type %T", sm))
	}

	body := bodyW.Bytes()
	h := SubmessageHeader{Kind: sm.Kind(), Flags: flags, OctetsToNextHeader: uint16(len(body))}
	headerW := NewWriter(littleEndian)
	h.Encode(headerW)
	dst = append(dst, headerW.Bytes()...)
	dst = append(dst, body...)
	return dst
}

func encodeData(w *Writer, d Data) {
	w.u16(0) // extraFlags
	placeholderPos := w.Len()
	w.u16(0) // octetsToInlineQos, patched below
	w.WriteEntityId(d.ReaderId)
	w.WriteEntityId(d.WriterId)
	w.WriteSequenceNumber(d.WriterSN)
	octetsToInlineQos := w.Len() - (placeholderPos + 2)
	patchU16(w, placeholderPos, uint16(octetsToInlineQos), w.order)
	if d.InlineQos.Len() > 0 {
		d.InlineQos.Encode(w)
	}
	if d.HasPayload || d.KeyOnly {
		w.Raw(d.Payload)
	}
}

func encodeDataFrag(w *Writer, d DataFrag) {
	w.u16(0)
	placeholderPos := w.Len()
	w.u16(0)
	w.WriteEntityId(d.ReaderId)
	w.WriteEntityId(d.WriterId)
	w.WriteSequenceNumber(d.WriterSN)
	w.WriteFragmentNumber(d.FragmentStartingNum)
	w.u16(d.FragmentsInSubmessage)
	w.u16(d.FragmentSize)
	w.u32(d.SampleSize)
	octetsToInlineQos := w.Len() - (placeholderPos + 2)
	patchU16(w, placeholderPos, uint16(octetsToInlineQos), w.order)
	if d.InlineQos.Len() > 0 {
		d.InlineQos.Encode(w)
	}
	w.Raw(d.Fragment)
}

func patchU16(w *Writer, pos int, v uint16, littleEndian bool) {
	b := make([]byte, 2)
	byteOrder(littleEndian).PutUint16(b, v)
	copy(w.buf[pos:pos+2], b)
}

func encodeGap(w *Writer, g Gap) {
	w.WriteEntityId(g.ReaderId)
	w.WriteEntityId(g.WriterId)
	w.WriteSequenceNumber(g.GapStart)
	w.WriteSequenceNumberSet(g.GapList)
}

func encodeHeartbeat(w *Writer, hb Heartbeat) {
	w.WriteEntityId(hb.ReaderId)
	w.WriteEntityId(hb.WriterId)
	w.WriteSequenceNumber(hb.FirstSN)
	w.WriteSequenceNumber(hb.LastSN)
	w.WriteCount(hb.Count)
}

func encodeHeartbeatFrag(w *Writer, hf HeartbeatFrag) {
	w.WriteEntityId(hf.ReaderId)
	w.WriteEntityId(hf.WriterId)
	w.WriteSequenceNumber(hf.WriterSN)
	w.WriteFragmentNumber(hf.LastFragmentNum)
	w.WriteCount(hf.Count)
}

func encodeAckNack(w *Writer, an AckNack) {
	w.WriteEntityId(an.ReaderId)
	w.WriteEntityId(an.WriterId)
	w.WriteSequenceNumberSet(an.ReaderSNState)
	w.WriteCount(an.Count)
}

func encodeNackFrag(w *Writer, nf NackFrag) {
	w.WriteEntityId(nf.ReaderId)
	w.WriteEntityId(nf.WriterId)
	w.WriteSequenceNumber(nf.WriterSN)
	w.WriteFragmentNumber(nf.FragmentNumberState.Base)
	w.u32(nf.FragmentNumberState.NumBits)
	for _, word := range nf.FragmentNumberState.Bitmap {
		w.u32(word)
	}
	w.WriteCount(nf.Count)
}

func encodeInfoTs(w *Writer, it InfoTs) {
	if !it.Invalidate {
		w.WriteTime(it.Timestamp)
	}
}

func encodeInfoDst(w *Writer, id InfoDst) {
	w.WriteGuidPrefix(id.GuidPrefix)
}

func encodeInfoSrc(w *Writer, is InfoSrc) {
	w.Pad(4)
	w.WriteProtocolVersion(is.Version)
	w.WriteVendorId(is.VendorId)
	w.WriteGuidPrefix(is.GuidPrefix)
}

func encodeInfoReply(w *Writer, ir InfoReply) {
	w.u32(uint32(len(ir.UnicastLocators)))
	for _, l := range ir.UnicastLocators {
		w.WriteLocator(l)
	}
	if ir.HasMulticast {
		w.u32(uint32(len(ir.MulticastLocators)))
		for _, l := range ir.MulticastLocators {
			w.WriteLocator(l)
		}
	}
}

func encodeInfoReplyIP4(w *Writer, ir InfoReplyIP4) {
	w.WriteLocator(ir.UnicastLocator)
	if ir.HasMulticast {
		w.WriteLocator(ir.MulticastLocator)
	}
}
