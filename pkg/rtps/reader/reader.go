// Package reader implements the stateful (reliable, acknack-emitting)
// and stateless (best-effort) reader protocol engines (spec.md
// §3/§4.3).
//
// Grounded on sanket-sapate-arc-core's cdc-worker receive loop
// (cmd/worker/main.go): a blocking read of one wire message, a branch
// on its leading type byte, and a periodic "standby status update" ack
// — the direct model for StatefulReader.HandleData / .emitAckNack.
package reader

import (
	"sync"

	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/proxy"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"go.uber.org/zap"
)

// Sender is the same send abstraction used by package writer, kept
// separate to avoid a dependency cycle between writer and reader.
type Sender interface {
	SendTo(locators []wire.Locator, sms []wire.Submessage)
}

// SampleHandler is invoked for every sample a reader delivers to the
// application, in delivery order (spec.md §3 DataReader read/take).
type SampleHandler func(history.CacheChange)

// StatefulReader is a reliable reader: it tracks one WriterProxy per
// matched writer and emits AckNack submessages requesting missing
// sequence numbers (spec.md §3/§4.3).
type StatefulReader struct {
	mu sync.Mutex

	Guid    wire.GUID
	Profile qos.Profile
	Cache   *history.Cache
	Sender  Sender
	OnData  SampleHandler
	Log     *zap.Logger

	proxies map[wire.GUID]*proxy.WriterProxy
}

// NewStatefulReader creates a StatefulReader for the given endpoint GUID.
func NewStatefulReader(guid wire.GUID, profile qos.Profile, cache *history.Cache, sender Sender, onData SampleHandler, log *zap.Logger) *StatefulReader {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatefulReader{
		Guid:    guid,
		Profile: profile,
		Cache:   cache,
		Sender:  sender,
		OnData:  onData,
		Log:     log,
		proxies: make(map[wire.GUID]*proxy.WriterProxy),
	}
}

// MatchWriter adds (or replaces) the WriterProxy for a newly matched writer.
func (r *StatefulReader) MatchWriter(p *proxy.WriterProxy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.proxies[p.RemoteGuid] = p
	r.Log.Debug("reader matched writer", zap.Stringer("reader", loggableGUID{r.Guid}), zap.Stringer("writer", loggableGUID{p.RemoteGuid}))
}

// UnmatchWriter removes a writer's proxy, e.g. on lease expiry.
func (r *StatefulReader) UnmatchWriter(remote wire.GUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.proxies, remote)
}

// Proxies returns a snapshot of the currently matched WriterProxies.
func (r *StatefulReader) Proxies() []*proxy.WriterProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*proxy.WriterProxy, 0, len(r.proxies))
	for _, p := range r.proxies {
		out = append(out, p)
	}
	return out
}

func (r *StatefulReader) proxyFor(remote wire.GUID) *proxy.WriterProxy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.proxies[remote]
}

// HandleData applies a received DATA submessage from writerGuid: records
// it in the proxy and the history cache, then delivers it to OnData
// (spec.md §3 reader change processing). Duplicate sequence numbers are
// accepted idempotently.
func (r *StatefulReader) HandleData(writerGuid wire.GUID, d wire.Data, ts wire.Time) {
	p := r.proxyFor(writerGuid)
	if p == nil {
		return
	}
	p.ReceivedChange(d.WriterSN)
	kind := history.ChangeAlive
	if d.KeyOnly {
		kind = history.ChangeNotAliveDisposed
	}
	ch := history.CacheChange{
		Kind:            kind,
		WriterGuid:      writerGuid,
		SequenceNumber:  d.WriterSN,
		SourceTimestamp: ts,
		Data:            d.Payload,
	}
	r.Cache.Add(ch)
	if r.OnData != nil {
		r.OnData(ch)
	}
}

// HandleDataFrag applies one fragment of a large sample from writerGuid,
// accumulating it in the writer proxy's reassembly buffer. Once every
// fragment covering the sample has arrived it is delivered exactly like
// a complete HandleData (spec.md §4.2).
func (r *StatefulReader) HandleDataFrag(writerGuid wire.GUID, df wire.DataFrag, ts wire.Time) {
	p := r.proxyFor(writerGuid)
	if p == nil {
		return
	}
	payload, complete := p.StoreFragment(df.WriterSN, df.FragmentStartingNum, df.FragmentSize, df.SampleSize, df.Fragment)
	if !complete {
		return
	}
	p.ReceivedChange(df.WriterSN)
	kind := history.ChangeAlive
	if df.KeyOnly {
		kind = history.ChangeNotAliveDisposed
	}
	ch := history.CacheChange{
		Kind:            kind,
		WriterGuid:      writerGuid,
		SequenceNumber:  df.WriterSN,
		SourceTimestamp: ts,
		Data:            payload,
	}
	r.Cache.Add(ch)
	if r.OnData != nil {
		r.OnData(ch)
	}
}

// HandleHeartbeatFrag applies a received HEARTBEAT_FRAG, requesting any
// fragment of the advertised sample this reader hasn't seen yet via a
// NACK_FRAG (spec.md §4.2, mirrors HandleHeartbeat/emitAckNack).
func (r *StatefulReader) HandleHeartbeatFrag(writerGuid wire.GUID, hf wire.HeartbeatFrag) {
	p := r.proxyFor(writerGuid)
	if p == nil {
		return
	}
	if !p.ObserveHeartbeatFrag(hf.Count) {
		return
	}
	missing := p.MissingFragments(hf.WriterSN, hf.LastFragmentNum)
	if len(missing) == 0 {
		return
	}
	nf := wire.NackFrag{
		ReaderId:            r.Guid.EntityId,
		WriterId:            p.RemoteGuid.EntityId,
		WriterSN:            hf.WriterSN,
		FragmentNumberState: wire.NewFragmentNumberSetFromSlice(missing[0], missing),
		Count:               p.NextNackFragCount(),
	}
	r.Sender.SendTo(p.Locators(), []wire.Submessage{nf})
}

// HandleGap applies a received GAP submessage, marking the covered
// sequence numbers irrelevant so they're never requested (spec.md §3).
func (r *StatefulReader) HandleGap(writerGuid wire.GUID, g wire.Gap) {
	p := r.proxyFor(writerGuid)
	if p == nil {
		return
	}
	if g.GapStart < g.GapList.Base {
		p.IrrelevantRange(g.GapStart, g.GapList.Base-1)
	}
	for _, sn := range g.GapList.Members() {
		p.IrrelevantChange(sn)
	}
}

// HandleHeartbeat applies a received HEARTBEAT: raises the proxy's
// notion of the writer's available range and, unless the heartbeat is
// FINAL with nothing missing, emits an AckNack requesting any gap
// (spec.md §3/§4.3).
func (r *StatefulReader) HandleHeartbeat(writerGuid wire.GUID, hb wire.Heartbeat) {
	p := r.proxyFor(writerGuid)
	if p == nil {
		return
	}
	if !p.ObserveHeartbeat(hb.LastSN, hb.Count) {
		return
	}
	missing := p.MissingChanges()
	if hb.Final && len(missing) == 0 {
		return
	}
	r.emitAckNack(p, missing)
}

func (r *StatefulReader) emitAckNack(p *proxy.WriterProxy, missing []wire.SequenceNumber) {
	base := p.HighestContiguous() + 1
	set := wire.NewSequenceNumberSetFromSlice(base, missing)
	an := wire.AckNack{
		ReaderId:      r.Guid.EntityId,
		WriterId:      p.RemoteGuid.EntityId,
		ReaderSNState: set,
		Count:         p.NextAckNackCount(),
		Final:         len(missing) == 0,
	}
	r.Sender.SendTo(p.Locators(), []wire.Submessage{an})
}

// SendPeriodicAckNack emits an AckNack for every matched writer,
// requesting whatever is currently missing (spec.md §5 periodic
// acknack, driven by the participant's metatraffic sender task).
func (r *StatefulReader) SendPeriodicAckNack() {
	for _, p := range r.Proxies() {
		r.emitAckNack(p, p.MissingChanges())
	}
}

// StatelessReader is a best-effort reader: no tracking, no AckNacks,
// used for SPDP participant discovery (spec.md §4.3).
type StatelessReader struct {
	Guid   wire.GUID
	Cache  *history.Cache
	OnData SampleHandler
}

// NewStatelessReader creates a StatelessReader.
func NewStatelessReader(guid wire.GUID, cache *history.Cache, onData SampleHandler) *StatelessReader {
	return &StatelessReader{Guid: guid, Cache: cache, OnData: onData}
}

// HandleGap is a no-op: best-effort readers never track missing sns.
func (r *StatelessReader) HandleGap(wire.GUID, wire.Gap) {}

// HandleHeartbeat is a no-op: best-effort readers never acknack.
func (r *StatelessReader) HandleHeartbeat(wire.GUID, wire.Heartbeat) {}

// HandleHeartbeatFrag is a no-op: best-effort readers never nackfrag.
func (r *StatelessReader) HandleHeartbeatFrag(wire.GUID, wire.HeartbeatFrag) {}

// HandleDataFrag delivers a fragmented sample's single fragment as-is,
// without reassembly: best-effort readers (SPDP) never send payloads
// large enough to fragment, so this only needs to satisfy ReaderTarget.
func (r *StatelessReader) HandleDataFrag(writerGuid wire.GUID, df wire.DataFrag, ts wire.Time) {
	r.HandleData(writerGuid, wire.Data{
		ReaderId:   df.ReaderId,
		WriterId:   df.WriterId,
		WriterSN:   df.WriterSN,
		HasPayload: !df.KeyOnly,
		KeyOnly:    df.KeyOnly,
		Payload:    df.Fragment,
	}, ts)
}

// HandleData stores and delivers a received sample unconditionally; out
// of order or duplicate delivery is acceptable for best-effort readers.
func (r *StatelessReader) HandleData(writerGuid wire.GUID, d wire.Data, ts wire.Time) {
	ch := history.CacheChange{
		Kind:            history.ChangeAlive,
		WriterGuid:      writerGuid,
		SequenceNumber:  d.WriterSN,
		SourceTimestamp: ts,
		Data:            d.Payload,
	}
	r.Cache.Add(ch)
	if r.OnData != nil {
		r.OnData(ch)
	}
}

type loggableGUID struct{ g wire.GUID }

func (l loggableGUID) String() string { return l.g.String() }
