package wire

// SequenceNumberSet represents a compact bitmap of sequence numbers
// relative to a base (spec.md §4.1): bit delta_n set means base+delta_n
// is a member of the set. Used by AckNack (missing sns) and Gap
// (irrelevant sns).
type SequenceNumberSet struct {
	Base    SequenceNumber
	NumBits uint32
	Bitmap  []uint32
}

// EncodedLen returns the wire length in bytes: 12 + 4*ceil(num_bits/32).
func (s SequenceNumberSet) EncodedLen() int {
	nWords := (int(s.NumBits) + 31) / 32
	return 12 + 4*nWords
}

// NewSequenceNumberSetFromSlice builds a SequenceNumberSet containing
// exactly the given sequence numbers, all of which must be >= base.
func NewSequenceNumberSetFromSlice(base SequenceNumber, members []SequenceNumber) SequenceNumberSet {
	maxDelta := uint32(0)
	for _, m := range members {
		d := uint32(m - base)
		if d+1 > maxDelta {
			maxDelta = d + 1
		}
	}
	if maxDelta > 256 {
		maxDelta = 256
	}
	nWords := (int(maxDelta) + 31) / 32
	if nWords == 0 {
		nWords = 1
	}
	words := make([]uint32, nWords)
	for _, m := range members {
		d := uint32(m - base)
		if d >= maxDelta {
			continue
		}
		words[d/32] |= 1 << (31 - (d % 32))
	}
	return SequenceNumberSet{Base: base, NumBits: maxDelta, Bitmap: words}
}

// Members returns the sequence numbers contained in the set, ascending.
func (s SequenceNumberSet) Members() []SequenceNumber {
	var out []SequenceNumber
	for d := uint32(0); d < s.NumBits; d++ {
		word := int(d / 32)
		if word >= len(s.Bitmap) {
			break
		}
		if s.Bitmap[word]&(1<<(31-(d%32))) != 0 {
			out = append(out, s.Base+SequenceNumber(d))
		}
	}
	return out
}

// Contains reports whether sn is a member of the set.
func (s SequenceNumberSet) Contains(sn SequenceNumber) bool {
	if sn < s.Base {
		return false
	}
	d := uint32(sn - s.Base)
	if d >= s.NumBits {
		return false
	}
	word := int(d / 32)
	if word >= len(s.Bitmap) {
		return false
	}
	return s.Bitmap[word]&(1<<(31-(d%32))) != 0
}

// Empty reports whether the set contains no members.
func (s SequenceNumberSet) Empty() bool {
	return len(s.Members()) == 0
}

// NewFragmentNumberSetFromSlice builds a FragmentNumberSet containing
// exactly the given fragment numbers, all of which must be >= base. Used
// by NACK_FRAG to request specific missing fragments of one sample.
func NewFragmentNumberSetFromSlice(base FragmentNumber, members []FragmentNumber) FragmentNumberSet {
	maxDelta := uint32(0)
	for _, m := range members {
		d := uint32(m - base)
		if d+1 > maxDelta {
			maxDelta = d + 1
		}
	}
	if maxDelta > 256 {
		maxDelta = 256
	}
	nWords := (int(maxDelta) + 31) / 32
	if nWords == 0 {
		nWords = 1
	}
	words := make([]uint32, nWords)
	for _, m := range members {
		d := uint32(m - base)
		if d >= maxDelta {
			continue
		}
		words[d/32] |= 1 << (31 - (d % 32))
	}
	return FragmentNumberSet{Base: base, NumBits: maxDelta, Bitmap: words}
}
