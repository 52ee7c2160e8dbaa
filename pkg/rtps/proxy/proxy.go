// Package proxy implements ReaderProxy and WriterProxy: the per-matched-
// peer state a stateful writer/reader keeps about the other side of the
// match (spec.md §3).
//
// Grounded on sanket-sapate-arc-core's cdc-worker replication cursor
// (clientXLogPos plus the set of unflushed positions): a proxy is that
// same "what has the peer acknowledged, what is still outstanding"
// bookkeeping, one instance per matched endpoint instead of one per
// connection.
package proxy

import (
	"sync"

	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// ReaderProxy is a stateful writer's view of one matched reader: what it
// has acknowledged, what it's still missing, and the heartbeat/acknack
// counters driving retransmission (spec.md §3).
type ReaderProxy struct {
	mu sync.Mutex

	RemoteGuid       wire.GUID
	UnicastLocators  []wire.Locator
	MulticastLocators []wire.Locator
	IsReliable       bool

	highestSentSN wire.SequenceNumber
	ackedSN       wire.SequenceNumber
	requestedSNs  map[wire.SequenceNumber]struct{}

	heartbeatCount     wire.Count
	heartbeatFragCount wire.Count
	lastAckNackCount   wire.Count
	lastNackFragCount  wire.Count
}

// NewReaderProxy creates a ReaderProxy for a newly matched reader.
func NewReaderProxy(remote wire.GUID, unicast, multicast []wire.Locator, reliable bool) *ReaderProxy {
	return &ReaderProxy{
		RemoteGuid:        remote,
		UnicastLocators:   unicast,
		MulticastLocators: multicast,
		IsReliable:        reliable,
		highestSentSN:     wire.SequenceNumberZero,
		ackedSN:           wire.SequenceNumberZero,
		requestedSNs:      make(map[wire.SequenceNumber]struct{}),
	}
}

// Locators returns the proxy's unicast locators, falling back to
// multicast when no unicast locator was advertised.
func (p *ReaderProxy) Locators() []wire.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.UnicastLocators) > 0 {
		return p.UnicastLocators
	}
	return p.MulticastLocators
}

// MarkSent records that sn has been sent (or is being sent) to this reader.
func (p *ReaderProxy) MarkSent(sn wire.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sn > p.highestSentSN {
		p.highestSentSN = sn
	}
}

// HighestSentSN returns the highest sequence number sent so far.
func (p *ReaderProxy) HighestSentSN() wire.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highestSentSN
}

// ApplyAckNack updates acked/requested state from a received AckNack,
// returning true if the reader's count indicates this is a new AckNack
// rather than a stale duplicate (spec.md §3 AckNack processing).
func (p *ReaderProxy) ApplyAckNack(ackedSN wire.SequenceNumber, missing []wire.SequenceNumber, count wire.Count) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.lastAckNackCount {
		return false
	}
	p.lastAckNackCount = count
	if ackedSN > p.ackedSN {
		p.ackedSN = ackedSN
	}
	p.requestedSNs = make(map[wire.SequenceNumber]struct{}, len(missing))
	for _, sn := range missing {
		p.requestedSNs[sn] = struct{}{}
	}
	return true
}

// RequestedChanges returns the sequence numbers the reader has asked to
// be retransmitted, ascending.
func (p *ReaderProxy) RequestedChanges() []wire.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.SequenceNumber, 0, len(p.requestedSNs))
	for sn := range p.requestedSNs {
		out = append(out, sn)
	}
	sortSNs(out)
	return out
}

// ClearRequested drops sn from the outstanding-retransmit set once it's
// been resent.
func (p *ReaderProxy) ClearRequested(sn wire.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.requestedSNs, sn)
}

// AckedSN returns the highest sequence number the reader has
// acknowledged as received.
func (p *ReaderProxy) AckedSN() wire.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ackedSN
}

// NextHeartbeatCount returns the next monotonically increasing
// heartbeat count for this proxy.
func (p *ReaderProxy) NextHeartbeatCount() wire.Count {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeatCount++
	return p.heartbeatCount
}

// NextHeartbeatFragCount returns the next monotonically increasing
// HEARTBEAT_FRAG count for this proxy, tracked separately from the
// whole-sample heartbeat count (spec.md §4.2).
func (p *ReaderProxy) NextHeartbeatFragCount() wire.Count {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heartbeatFragCount++
	return p.heartbeatFragCount
}

// ApplyNackFrag reports whether a received NACK_FRAG's count is new, not
// a stale or duplicate resend, mirroring ApplyAckNack's staleness check
// (spec.md §4.2).
func (p *ReaderProxy) ApplyNackFrag(count wire.Count) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.lastNackFragCount {
		return false
	}
	p.lastNackFragCount = count
	return true
}

func sortSNs(sns []wire.SequenceNumber) {
	for i := 1; i < len(sns); i++ {
		for j := i; j > 0 && sns[j-1] > sns[j]; j-- {
			sns[j-1], sns[j] = sns[j], sns[j-1]
		}
	}
}

// WriterProxy is a stateful reader's view of one matched writer: the
// highest contiguous sequence number received, the set of sequence
// numbers known missing, and the acknack counter driving repair
// requests (spec.md §3).
type WriterProxy struct {
	mu sync.Mutex

	RemoteGuid        wire.GUID
	UnicastLocators   []wire.Locator
	MulticastLocators []wire.Locator

	receivedSNs   map[wire.SequenceNumber]struct{}
	irrelevantSNs map[wire.SequenceNumber]struct{}
	highestSeenSN wire.SequenceNumber

	acknackCount           wire.Count
	nackFragCount          wire.Count
	lastHeartbeatCount     wire.Count
	lastHeartbeatFragCount wire.Count

	fragments map[wire.SequenceNumber]*fragmentAssembly
}

// fragmentAssembly accumulates the fragments of one not-yet-complete
// sample (spec.md §4.2).
type fragmentAssembly struct {
	sampleSize   uint32
	fragmentSize uint16
	chunks       map[wire.FragmentNumber][]byte
	received     uint32
}

// NewWriterProxy creates a WriterProxy for a newly matched writer.
func NewWriterProxy(remote wire.GUID, unicast, multicast []wire.Locator) *WriterProxy {
	return &WriterProxy{
		RemoteGuid:        remote,
		UnicastLocators:   unicast,
		MulticastLocators: multicast,
		receivedSNs:       make(map[wire.SequenceNumber]struct{}),
		irrelevantSNs:     make(map[wire.SequenceNumber]struct{}),
		highestSeenSN:     wire.SequenceNumberZero,
		fragments:         make(map[wire.SequenceNumber]*fragmentAssembly),
	}
}

// ReceivedChange records that sn has been received from this writer.
func (p *WriterProxy) ReceivedChange(sn wire.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receivedSNs[sn] = struct{}{}
	if sn > p.highestSeenSN {
		p.highestSeenSN = sn
	}
}

// IrrelevantChange records that sn was marked irrelevant by a GAP and
// should never be requested.
func (p *WriterProxy) IrrelevantChange(sn wire.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.irrelevantSNs[sn] = struct{}{}
	if sn > p.highestSeenSN {
		p.highestSeenSN = sn
	}
}

// IrrelevantRange marks every sn in [lo, hi] irrelevant.
func (p *WriterProxy) IrrelevantRange(lo, hi wire.SequenceNumber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for sn := lo; sn <= hi; sn++ {
		p.irrelevantSNs[sn] = struct{}{}
		if sn > p.highestSeenSN {
			p.highestSeenSN = sn
		}
	}
}

// ObserveHeartbeat raises the proxy's notion of the highest available
// sequence number from a HEARTBEAT's lastSN and reports whether count is
// new. A heartbeat whose count is not greater than the last one seen is
// a stale or reordered duplicate and must be ignored entirely (spec.md
// §4.3).
func (p *WriterProxy) ObserveHeartbeat(lastSN wire.SequenceNumber, count wire.Count) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.lastHeartbeatCount {
		return false
	}
	p.lastHeartbeatCount = count
	if lastSN > p.highestSeenSN {
		p.highestSeenSN = lastSN
	}
	return true
}

// ObserveHeartbeatFrag reports whether a received HEARTBEAT_FRAG's count
// is new, mirroring ObserveHeartbeat's staleness check but tracked on its
// own counter since the two submessages count independently (spec.md
// §4.2).
func (p *WriterProxy) ObserveHeartbeatFrag(count wire.Count) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if count <= p.lastHeartbeatFragCount {
		return false
	}
	p.lastHeartbeatFragCount = count
	return true
}

// StoreFragment records one fragment of sn's sample, starting at
// fragment number fragStart, and reports the reassembled payload once
// every fragment covering sampleSize bytes has arrived (spec.md §4.2).
func (p *WriterProxy) StoreFragment(sn wire.SequenceNumber, fragStart wire.FragmentNumber, fragmentSize uint16, sampleSize uint32, data []byte) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.fragments[sn]
	if !ok {
		a = &fragmentAssembly{sampleSize: sampleSize, fragmentSize: fragmentSize, chunks: make(map[wire.FragmentNumber][]byte)}
		p.fragments[sn] = a
	}
	if _, dup := a.chunks[fragStart]; !dup {
		a.chunks[fragStart] = data
		a.received += uint32(len(data))
	}
	if a.received < a.sampleSize || a.fragmentSize == 0 {
		return nil, false
	}
	total := (a.sampleSize + uint32(a.fragmentSize) - 1) / uint32(a.fragmentSize)
	payload := make([]byte, 0, a.sampleSize)
	for i := wire.FragmentNumber(1); i <= wire.FragmentNumber(total); i++ {
		payload = append(payload, a.chunks[i]...)
	}
	delete(p.fragments, sn)
	return payload, true
}

// MissingFragments returns the fragment numbers in [1, lastFragment] not
// yet stored for sn, ascending, for building a NACK_FRAG request
// (spec.md §4.2).
func (p *WriterProxy) MissingFragments(sn wire.SequenceNumber, lastFragment wire.FragmentNumber) []wire.FragmentNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, haveAssembly := p.fragments[sn]
	var out []wire.FragmentNumber
	for i := wire.FragmentNumber(1); i <= lastFragment; i++ {
		if haveAssembly {
			if _, got := a.chunks[i]; got {
				continue
			}
		}
		out = append(out, i)
	}
	return out
}

// MissingChanges returns every sequence number in [1, highestSeenSN]
// that has been neither received nor marked irrelevant, ascending
// (spec.md §3 AckNack generation).
func (p *WriterProxy) MissingChanges() []wire.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []wire.SequenceNumber
	for sn := wire.SequenceNumber(1); sn <= p.highestSeenSN; sn++ {
		if _, ok := p.receivedSNs[sn]; ok {
			continue
		}
		if _, ok := p.irrelevantSNs[sn]; ok {
			continue
		}
		out = append(out, sn)
	}
	return out
}

// HighestContiguous returns the highest sn N such that every sn in
// [1, N] has been received or marked irrelevant.
func (p *WriterProxy) HighestContiguous() wire.SequenceNumber {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := wire.SequenceNumber(0)
	for {
		next := n + 1
		_, received := p.receivedSNs[next]
		_, irrelevant := p.irrelevantSNs[next]
		if !received && !irrelevant {
			break
		}
		n = next
	}
	return n
}

// NextAckNackCount returns the next monotonically increasing AckNack
// count for this proxy.
func (p *WriterProxy) NextAckNackCount() wire.Count {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.acknackCount++
	return p.acknackCount
}

// NextNackFragCount returns the next monotonically increasing
// NACK_FRAG count for this proxy.
func (p *WriterProxy) NextNackFragCount() wire.Count {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nackFragCount++
	return p.nackFragCount
}

// Locators returns the proxy's unicast locators, falling back to
// multicast.
func (p *WriterProxy) Locators() []wire.Locator {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.UnicastLocators) > 0 {
		return p.UnicastLocators
	}
	return p.MulticastLocators
}
