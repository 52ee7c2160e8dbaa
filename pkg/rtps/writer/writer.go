// Package writer implements the stateful (reliable, ack/nack-driven) and
// stateless (best-effort, used for SPDP) writer protocol engines
// (spec.md §3/§4.3).
//
// Grounded on sanket-sapate-arc-core's notification-service cron
// scheduler (packages/go-core adjacent, internal/scheduler/cron.go) for
// the "periodic tick drives outbound traffic" shape, generalized here
// from a single cron job firing HTTP calls to a per-matched-reader
// heartbeat/retransmit cycle.
package writer

import (
	"sync"

	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/proxy"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"go.uber.org/zap"
)

// Sender abstracts "serialize these submessages and put them on the
// wire to these locators" so the writer engines don't depend on
// transport.Transport directly (keeps this package transport-agnostic
// and easy to test with a fake).
type Sender interface {
	SendTo(locators []wire.Locator, sms []wire.Submessage)
}

// StatefulWriter is a reliable writer: it tracks one ReaderProxy per
// matched reader, sends heartbeats, and repairs gaps on request
// (spec.md §3/§4.3).
type StatefulWriter struct {
	mu sync.Mutex

	Guid    wire.GUID
	Profile qos.Profile
	Cache   *history.Cache
	Sender  Sender
	Log     *zap.Logger

	// FragmentSize is the maximum payload a single DATA or DATA_FRAG
	// submessage may carry. Samples larger than this are split into a
	// DATA_FRAG sequence followed by a HEARTBEAT_FRAG instead of a single
	// DATA (spec.md §4.2). Zero disables fragmentation.
	FragmentSize uint32

	nextSN  wire.SequenceNumber
	proxies map[wire.GUID]*proxy.ReaderProxy
}

// NewStatefulWriter creates a StatefulWriter for the given endpoint GUID.
// fragmentSize bounds the payload of a single DATA/DATA_FRAG submessage;
// samples larger than it are fragmented, and zero disables fragmentation
// entirely (spec.md §4.2).
func NewStatefulWriter(guid wire.GUID, profile qos.Profile, cache *history.Cache, sender Sender, fragmentSize uint32, log *zap.Logger) *StatefulWriter {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatefulWriter{
		Guid:         guid,
		Profile:      profile,
		Cache:        cache,
		Sender:       sender,
		FragmentSize: fragmentSize,
		Log:          log,
		proxies:      make(map[wire.GUID]*proxy.ReaderProxy),
	}
}

// MatchReader adds (or replaces) the ReaderProxy for a newly matched
// reader (spec.md §4.5 endpoint matching).
func (w *StatefulWriter) MatchReader(p *proxy.ReaderProxy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.proxies[p.RemoteGuid] = p
	w.Log.Debug("writer matched reader", zap.Stringer("writer", loggableGUID{w.Guid}), zap.Stringer("reader", loggableGUID{p.RemoteGuid}))
}

// UnmatchReader removes a reader's proxy, e.g. on lease expiry.
func (w *StatefulWriter) UnmatchReader(remote wire.GUID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.proxies, remote)
}

// Proxies returns a snapshot of the currently matched ReaderProxies.
func (w *StatefulWriter) Proxies() []*proxy.ReaderProxy {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*proxy.ReaderProxy, 0, len(w.proxies))
	for _, p := range w.proxies {
		out = append(out, p)
	}
	return out
}

// Write adds a new sample to the history cache with the next sequence
// number and returns it; callers flush it to matched readers on the
// next SendPendingData tick (spec.md §3 writer change creation).
func (w *StatefulWriter) Write(instance [16]byte, data []byte, ts wire.Time) history.CacheChange {
	w.mu.Lock()
	w.nextSN++
	sn := w.nextSN
	w.mu.Unlock()
	ch := history.CacheChange{
		Kind:            history.ChangeAlive,
		WriterGuid:      w.Guid,
		InstanceHandle:  instance,
		SequenceNumber:  sn,
		SourceTimestamp: ts,
		Data:            data,
	}
	w.Cache.Add(ch)
	return ch
}

// SendPendingData sends every change not yet sent to each matched
// reader, then a HEARTBEAT advertising the available sn range
// (spec.md §4.3 reliable writer behavior).
func (w *StatefulWriter) SendPendingData() {
	lo, hi := w.Cache.MinMax()
	for _, p := range w.Proxies() {
		sent := p.HighestSentSN()
		start := sent + 1
		if lo > start {
			start = lo
		}
		var sms []wire.Submessage
		for _, ch := range w.Cache.Range(start, hi) {
			if w.FragmentSize > 0 && uint32(len(ch.Data)) > w.FragmentSize {
				sms = append(sms, toDataFragSubmessages(w.Guid.EntityId, ch, w.FragmentSize)...)
				sms = append(sms, wire.HeartbeatFrag{
					ReaderId:        wire.EntityIdUnknown,
					WriterId:        w.Guid.EntityId,
					WriterSN:        ch.SequenceNumber,
					LastFragmentNum: wire.FragmentNumber(fragmentCount(uint32(len(ch.Data)), w.FragmentSize)),
					Count:           p.NextHeartbeatFragCount(),
				})
			} else {
				sms = append(sms, toDataSubmessage(w.Guid.EntityId, ch))
			}
			p.MarkSent(ch.SequenceNumber)
		}
		if p.IsReliable || len(sms) > 0 {
			sms = append(sms, wire.Heartbeat{
				ReaderId: wire.EntityIdUnknown,
				WriterId: w.Guid.EntityId,
				FirstSN:  maxSN(lo, 1),
				LastSN:   hi,
				Count:    p.NextHeartbeatCount(),
				Final:    !p.IsReliable,
			})
		}
		if len(sms) > 0 {
			w.Sender.SendTo(p.Locators(), sms)
		}
	}
}

// ProcessAckNack applies a received AckNack to the matching proxy and
// retransmits any requested changes still in the cache, or a GAP for
// requested sns that have already been evicted (spec.md §3 repair).
func (w *StatefulWriter) ProcessAckNack(remote wire.GUID, an wire.AckNack) {
	w.mu.Lock()
	p, ok := w.proxies[remote]
	w.mu.Unlock()
	if !ok {
		return
	}
	missing := an.ReaderSNState.Members()
	ackedSN := an.ReaderSNState.Base - 1
	if !p.ApplyAckNack(ackedSN, missing, an.Count) {
		return
	}
	var sms []wire.Submessage
	var gapSNs []wire.SequenceNumber
	for _, sn := range p.RequestedChanges() {
		if ch, ok := w.Cache.Get(sn); ok {
			sms = append(sms, toDataSubmessage(w.Guid.EntityId, ch))
			p.ClearRequested(sn)
		} else {
			gapSNs = append(gapSNs, sn)
			p.ClearRequested(sn)
		}
	}
	if len(gapSNs) > 0 {
		sms = append(sms, wire.Gap{
			ReaderId: p.RemoteGuid.EntityId,
			WriterId: w.Guid.EntityId,
			GapStart: gapSNs[0],
			GapList:  wire.NewSequenceNumberSetFromSlice(gapSNs[0], gapSNs),
		})
	}
	if len(sms) > 0 {
		w.Sender.SendTo(p.Locators(), sms)
	}
}

// ProcessNackFrag retransmits the specific missing fragments of one
// sample a reader requested, or a GAP if the sample has already been
// evicted from the cache (spec.md §4.2, mirrors ProcessAckNack).
func (w *StatefulWriter) ProcessNackFrag(remote wire.GUID, nf wire.NackFrag) {
	w.mu.Lock()
	p, ok := w.proxies[remote]
	w.mu.Unlock()
	if !ok {
		return
	}
	if !p.ApplyNackFrag(nf.Count) {
		return
	}
	ch, ok := w.Cache.Get(nf.WriterSN)
	if !ok {
		w.Sender.SendTo(p.Locators(), []wire.Submessage{wire.Gap{
			ReaderId: p.RemoteGuid.EntityId,
			WriterId: w.Guid.EntityId,
			GapStart: nf.WriterSN,
			GapList:  wire.NewSequenceNumberSetFromSlice(nf.WriterSN, []wire.SequenceNumber{nf.WriterSN}),
		}})
		return
	}
	fragmentSize := w.FragmentSize
	sampleSize := uint32(len(ch.Data))
	if fragmentSize == 0 {
		fragmentSize = sampleSize
	}
	var sms []wire.Submessage
	for _, fn := range nf.FragmentNumberState.Members() {
		start := (uint32(fn) - 1) * fragmentSize
		if start >= sampleSize {
			continue
		}
		end := start + fragmentSize
		if end > sampleSize {
			end = sampleSize
		}
		sms = append(sms, wire.DataFrag{
			ReaderId:              p.RemoteGuid.EntityId,
			WriterId:              w.Guid.EntityId,
			WriterSN:              nf.WriterSN,
			FragmentStartingNum:   fn,
			FragmentsInSubmessage: 1,
			FragmentSize:          uint16(fragmentSize),
			SampleSize:            sampleSize,
			KeyOnly:               ch.Kind != history.ChangeAlive,
			Fragment:              ch.Data[start:end],
		})
	}
	if len(sms) > 0 {
		w.Sender.SendTo(p.Locators(), sms)
	}
}

func toDataSubmessage(writerId wire.EntityId, ch history.CacheChange) wire.Data {
	return wire.Data{
		ReaderId:   wire.EntityIdUnknown,
		WriterId:   writerId,
		WriterSN:   ch.SequenceNumber,
		HasPayload: ch.Kind == history.ChangeAlive,
		KeyOnly:    ch.Kind != history.ChangeAlive,
		Payload:    ch.Data,
	}
}

// fragmentCount returns how many fragments of fragmentSize bytes cover a
// sample of sampleSize bytes.
func fragmentCount(sampleSize, fragmentSize uint32) int {
	if fragmentSize == 0 {
		return 1
	}
	return int((sampleSize + fragmentSize - 1) / fragmentSize)
}

// toDataFragSubmessages splits ch's payload into a sequence of DATA_FRAG
// submessages of at most fragmentSize bytes each, one fragment per
// submessage (spec.md §4.2).
func toDataFragSubmessages(writerId wire.EntityId, ch history.CacheChange, fragmentSize uint32) []wire.Submessage {
	sampleSize := uint32(len(ch.Data))
	n := fragmentCount(sampleSize, fragmentSize)
	sms := make([]wire.Submessage, 0, n)
	for i := 0; i < n; i++ {
		start := uint32(i) * fragmentSize
		end := start + fragmentSize
		if end > sampleSize {
			end = sampleSize
		}
		sms = append(sms, wire.DataFrag{
			ReaderId:              wire.EntityIdUnknown,
			WriterId:              writerId,
			WriterSN:              ch.SequenceNumber,
			FragmentStartingNum:   wire.FragmentNumber(i + 1),
			FragmentsInSubmessage: 1,
			FragmentSize:          uint16(fragmentSize),
			SampleSize:            sampleSize,
			KeyOnly:               ch.Kind != history.ChangeAlive,
			Fragment:              ch.Data[start:end],
		})
	}
	return sms
}

func maxSN(a, b wire.SequenceNumber) wire.SequenceNumber {
	if a > b {
		return a
	}
	return b
}

// StatelessWriter is a best-effort writer: no reader proxies, no
// retransmission. Used for SPDP participant announcements (spec.md
// §4.3: "best-effort, no tracking, used for SPDP").
type StatelessWriter struct {
	Guid   wire.GUID
	Sender Sender

	mu      sync.Mutex
	targets []wire.Locator
	nextSN  wire.SequenceNumber
}

// NewStatelessWriter creates a StatelessWriter sending to a fixed set of
// locators (typically the SPDP multicast group).
func NewStatelessWriter(guid wire.GUID, sender Sender, targets []wire.Locator) *StatelessWriter {
	return &StatelessWriter{Guid: guid, Sender: sender, targets: targets}
}

// AddTarget appends an additional destination locator, e.g. a
// best-effort user endpoint picking up a newly matched reader's locator
// (spec.md §4.5) since a stateless writer keeps no ReaderProxy to derive
// it from later.
func (w *StatelessWriter) AddTarget(l wire.Locator) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.targets {
		if existing == l {
			return
		}
	}
	w.targets = append(w.targets, l)
}

// Write sends data immediately as a DATA submessage with the next
// sequence number; no history is retained since no reader ever NACKs a
// stateless writer.
func (w *StatelessWriter) Write(data []byte) {
	w.mu.Lock()
	w.nextSN++
	sn := w.nextSN
	targets := w.targets
	w.mu.Unlock()
	sm := wire.Data{
		ReaderId:   wire.EntityIdUnknown,
		WriterId:   w.Guid.EntityId,
		WriterSN:   sn,
		HasPayload: true,
		Payload:    data,
	}
	w.Sender.SendTo(targets, []wire.Submessage{sm})
}

type loggableGUID struct{ g wire.GUID }

func (l loggableGUID) String() string { return l.g.String() }
