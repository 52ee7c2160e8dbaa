package wire

import "fmt"

// Reader walks a byte slice decoding RTPS wire elements with a fixed
// endianness, tracking how many bytes have been consumed so callers can
// compute octets_to_next_header framing.
type Reader struct {
	buf   []byte
	pos   int
	order bool // true == little-endian
}

// NewReader creates a Reader over buf using the given endianness flag
// (bit 0 of a submessage header's flags byte).
func NewReader(buf []byte, littleEndian bool) *Reader {
	return &Reader{buf: buf, order: littleEndian}
}

// Remaining returns the number of unconsumed bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Bytes returns n raw bytes advancing the cursor.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, errShortBuffer("raw bytes", n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if r.Remaining() < n {
		return errShortBuffer("skip", n, r.Remaining())
	}
	r.pos += n
	return nil
}

// Align pads the cursor up to the next multiple of n bytes (CDR alignment).
func (r *Reader) Align(n int) error {
	pad := (n - (r.pos % n)) % n
	if pad == 0 {
		return nil
	}
	return r.Skip(pad)
}

func (r *Reader) u8() (byte, error) {
	b, err := r.Bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) u16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return byteOrder(r.order).Uint16(b), nil
}

func (r *Reader) u32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return byteOrder(r.order).Uint32(b), nil
}

func (r *Reader) i32() (int32, error) {
	u, err := r.u32()
	return int32(u), err
}

// ReadGuidPrefix reads the 12-byte GuidPrefix.
func (r *Reader) ReadGuidPrefix() (GuidPrefix, error) {
	var p GuidPrefix
	b, err := r.Bytes(GuidPrefixSize)
	if err != nil {
		return p, err
	}
	copy(p[:], b)
	return p, nil
}

// ReadEntityId reads a 4-byte EntityId (3-byte key + 1-byte kind).
func (r *Reader) ReadEntityId() (EntityId, error) {
	var e EntityId
	b, err := r.Bytes(EntityIDSize)
	if err != nil {
		return e, err
	}
	copy(e.Key[:], b[:3])
	e.Kind = EntityKind(b[3])
	return e, nil
}

// ReadGUID reads a 16-byte GUID.
func (r *Reader) ReadGUID() (GUID, error) {
	var g GUID
	prefix, err := r.ReadGuidPrefix()
	if err != nil {
		return g, err
	}
	eid, err := r.ReadEntityId()
	if err != nil {
		return g, err
	}
	return GUID{Prefix: prefix, EntityId: eid}, nil
}

// ReadSequenceNumber reads a SequenceNumber: (high int32, low uint32).
func (r *Reader) ReadSequenceNumber() (SequenceNumber, error) {
	hi, err := r.i32()
	if err != nil {
		return 0, err
	}
	lo, err := r.u32()
	if err != nil {
		return 0, err
	}
	return seqFromParts(hi, lo), nil
}

// ReadLocator reads a (kind int32, port uint32, address[16]) Locator.
func (r *Reader) ReadLocator() (Locator, error) {
	var l Locator
	kind, err := r.i32()
	if err != nil {
		return l, err
	}
	port, err := r.u32()
	if err != nil {
		return l, err
	}
	addr, err := r.Bytes(16)
	if err != nil {
		return l, err
	}
	l.Kind = LocatorKind(kind)
	l.Port = port
	copy(l.Address[:], addr)
	return l, nil
}

// ReadTime reads an RTPS Time (seconds int32, fraction uint32).
func (r *Reader) ReadTime() (Time, error) {
	var t Time
	s, err := r.i32()
	if err != nil {
		return t, err
	}
	f, err := r.u32()
	if err != nil {
		return t, err
	}
	return Time{Seconds: s, Fraction: f}, nil
}

// ReadProtocolVersion reads the 2-byte (major, minor) version.
func (r *Reader) ReadProtocolVersion() (ProtocolVersion, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return ProtocolVersion{}, err
	}
	return ProtocolVersion{Major: b[0], Minor: b[1]}, nil
}

// ReadVendorId reads the 2-byte vendor ID.
func (r *Reader) ReadVendorId() (VendorId, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return VendorId{}, err
	}
	return VendorId{b[0], b[1]}, nil
}

// ReadCount reads a monotonically increasing Count (int32).
func (r *Reader) ReadCount() (Count, error) {
	v, err := r.i32()
	return Count(v), err
}

// ReadFragmentNumber reads a FragmentNumber (uint32).
func (r *Reader) ReadFragmentNumber() (FragmentNumber, error) {
	v, err := r.u32()
	return FragmentNumber(v), err
}

// ReadSequenceNumberSet decodes a SequenceNumberSet: base SequenceNumber,
// num_bits uint32, then ceil(num_bits/32) bitmap words (spec.md §4.1).
func (r *Reader) ReadSequenceNumberSet() (SequenceNumberSet, error) {
	var set SequenceNumberSet
	base, err := r.ReadSequenceNumber()
	if err != nil {
		return set, err
	}
	numBits, err := r.u32()
	if err != nil {
		return set, err
	}
	if numBits > 256 {
		return set, fmt.Errorf("wire: sequence number set num_bits %d exceeds 256", numBits)
	}
	nWords := (int(numBits) + 31) / 32
	words := make([]uint32, nWords)
	for i := 0; i < nWords; i++ {
		w, err := r.u32()
		if err != nil {
			return set, err
		}
		words[i] = w
	}
	set.Base = base
	set.NumBits = numBits
	set.Bitmap = words
	return set, nil
}

// --- Writer ---

// Writer appends encoded RTPS wire elements to an in-memory buffer.
type Writer struct {
	buf   []byte
	order bool
}

// NewWriter creates a Writer using the given endianness flag.
func NewWriter(littleEndian bool) *Writer {
	return &Writer{order: littleEndian}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) { w.buf = append(w.buf, b...) }

// Pad appends n zero bytes.
func (w *Writer) Pad(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// Align pads the buffer up to the next multiple of n bytes.
func (w *Writer) Align(n int) {
	pad := (n - (len(w.buf) % n)) % n
	w.Pad(pad)
}

func (w *Writer) u8(v byte) { w.buf = append(w.buf, v) }

func (w *Writer) u16(v uint16) {
	b := make([]byte, 2)
	byteOrder(w.order).PutUint16(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) u32(v uint32) {
	b := make([]byte, 4)
	byteOrder(w.order).PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) i32(v int32) { w.u32(uint32(v)) }

// WriteGuidPrefix appends a 12-byte GuidPrefix.
func (w *Writer) WriteGuidPrefix(p GuidPrefix) { w.Raw(p[:]) }

// WriteEntityId appends a 4-byte EntityId.
func (w *Writer) WriteEntityId(e EntityId) {
	w.Raw(e.Key[:])
	w.u8(byte(e.Kind))
}

// WriteGUID appends a 16-byte GUID.
func (w *Writer) WriteGUID(g GUID) {
	w.WriteGuidPrefix(g.Prefix)
	w.WriteEntityId(g.EntityId)
}

// WriteSequenceNumber appends a SequenceNumber as (high int32, low uint32).
func (w *Writer) WriteSequenceNumber(s SequenceNumber) {
	w.i32(s.high())
	w.u32(s.low())
}

// WriteLocator appends a Locator.
func (w *Writer) WriteLocator(l Locator) {
	w.i32(int32(l.Kind))
	w.u32(l.Port)
	w.Raw(l.Address[:])
}

// WriteTime appends an RTPS Time.
func (w *Writer) WriteTime(t Time) {
	w.i32(t.Seconds)
	w.u32(t.Fraction)
}

// WriteProtocolVersion appends the 2-byte (major, minor) version.
func (w *Writer) WriteProtocolVersion(v ProtocolVersion) {
	w.u8(v.Major)
	w.u8(v.Minor)
}

// WriteVendorId appends the 2-byte vendor ID.
func (w *Writer) WriteVendorId(v VendorId) {
	w.u8(v[0])
	w.u8(v[1])
}

// WriteCount appends a Count.
func (w *Writer) WriteCount(c Count) { w.i32(int32(c)) }

// WriteFragmentNumber appends a FragmentNumber.
func (w *Writer) WriteFragmentNumber(f FragmentNumber) { w.u32(uint32(f)) }

// WriteSequenceNumberSet appends a SequenceNumberSet: exactly
// ceil(NumBits/32) bitmap words, the count ReadSequenceNumberSet expects.
func (w *Writer) WriteSequenceNumberSet(s SequenceNumberSet) {
	w.WriteSequenceNumber(s.Base)
	w.u32(s.NumBits)
	nWords := (int(s.NumBits) + 31) / 32
	for i := 0; i < nWords; i++ {
		var word uint32
		if i < len(s.Bitmap) {
			word = s.Bitmap[i]
		}
		w.u32(word)
	}
}
