// Package participant implements the DomainParticipant: the unique
// owner of every built-in and user-defined entity, the discovery
// database, and the seven-task concurrency envelope that drives RTPS
// traffic (spec.md §2/§5).
//
// Grounded on sanket-sapate-arc-core's service main.go pattern
// (discovery-service/cmd/api/main.go, notification-service's cron
// scheduler): signal.NotifyContext for graceful shutdown, one goroutine
// per long-lived duty selecting on ctx.Done() against a ticker, and a
// sync.WaitGroup joined on shutdown — the model this package scales
// from "a handful of background jobs" to the seven tasks spec.md §5
// requires.
package participant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/arc-self/rtps/internal/config"
	"github.com/arc-self/rtps/internal/eventbridge"
	"github.com/arc-self/rtps/internal/telemetry"
	"github.com/arc-self/rtps/pkg/dds"
	"github.com/arc-self/rtps/pkg/rtps/discovery"
	"github.com/arc-self/rtps/pkg/rtps/history"
	proxypkg "github.com/arc-self/rtps/pkg/rtps/proxy"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/receiver"
	"github.com/arc-self/rtps/pkg/rtps/reader"
	"github.com/arc-self/rtps/pkg/rtps/transport"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/arc-self/rtps/pkg/rtps/writer"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// sender is the shared writer.Sender/reader.Sender implementation: it
// wraps one transport in a full RTPS message (20-byte header plus
// submessages) and sends it (spec.md §6).
type sender struct {
	guidPrefix wire.GuidPrefix
	transport  transport.Transport
	log        *zap.Logger
}

func (s *sender) SendTo(locators []wire.Locator, sms []wire.Submessage) {
	if len(sms) == 0 || len(locators) == 0 {
		return
	}
	hdr := wire.MessageHeader{Version: wire.ProtocolVersion24, VendorId: wire.VendorIdThis, GuidPrefix: s.guidPrefix}
	buf := wire.EncodeMessage(hdr, sms, true)
	if err := s.transport.Send(locators, buf); err != nil {
		s.log.Warn("send failed", zap.Error(err))
	}
}

// builtinEndpoint bundles a reliable SEDP writer/reader pair sharing one
// entity kind slot (publications, subscriptions, or topics).
type builtinEndpoint struct {
	writer *writer.StatefulWriter
	reader *reader.StatefulReader
}

// Participant is the DomainParticipant: owns every entity and runs the
// task group (spec.md §2/§5).
type Participant struct {
	Guid   wire.GUID
	Config config.ParticipantConfig
	Log    *zap.Logger

	metaMulticastTransport transport.Transport
	metaUnicastTransport   transport.Transport
	defaultTransport       transport.Transport

	metaMulticastSender *sender
	metaUnicastSender   *sender
	defaultSender       *sender

	spdpWriter *writer.StatelessWriter
	spdpReader *reader.StatelessReader
	spdpCache  *history.Cache

	sedpPub   builtinEndpoint
	sedpSub   builtinEndpoint
	sedpTopic builtinEndpoint

	db      *discovery.ParticipantDatabase
	ignored *discovery.IgnoredEndpoints

	metrics     *telemetry.ParticipantMetrics
	eventBridge *eventbridge.Client

	mu          sync.RWMutex
	publishers  map[wire.GUID]*dds.Publisher
	subscribers map[wire.GUID]*dds.Subscriber
	topics      map[wire.GUID]*dds.Topic

	readerTargets map[wire.EntityId]receiver.ReaderTarget
	writerTargets map[wire.EntityId]receiver.WriterTarget

	userWriters map[wire.EntityId]*userWriter
	userReaders map[wire.EntityId]*userReader

	// userProxyUnmatchers lets a lease-expiry sweep cascade removal of a
	// remote participant's proxies across every reliable user endpoint,
	// keyed by the remote endpoint GUID that owns the proxy.
	userProxyUnmatchers map[wire.GUID]func()

	pendingSPDP   []discovery.ParticipantProxy
	pendingSPDPMu sync.Mutex

	announceCh chan struct{}
	cronSched  *cron.Cron

	nextEntityKey uint32

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// userWriter bundles a locally created DataWriter's protocol engine,
// tagged by which kind it is since StatelessWriter has no ReaderProxy
// tracking to match against (spec.md §4.3).
type userWriter struct {
	info      discovery.LocalEndpointInfo
	stateful  *writer.StatefulWriter
	stateless *writer.StatelessWriter
}

type userReader struct {
	info      discovery.LocalEndpointInfo
	stateful  *reader.StatefulReader
	stateless *reader.StatelessReader
}

// New builds a Participant bound to the transports implied by cfg
// (spec.md §6 well-known port formula) but does not yet start its task
// group — call Start for that.
func New(cfg config.ParticipantConfig, log *zap.Logger, metrics *telemetry.ParticipantMetrics, eb *eventbridge.Client) (*Participant, error) {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := newGuidPrefix()
	guid := wire.GUID{Prefix: prefix, EntityId: wire.EntityIdParticipant}

	metaMulticastPort := 7400 + 250*cfg.DomainID
	metaUnicastPort := 7400 + 250*cfg.DomainID + 10 + 2*cfg.ParticipantID
	defaultUnicastPort := 7400 + 250*cfg.DomainID + 11 + 2*cfg.ParticipantID

	metaMulticastT, err := transport.NewMulticast("239.255.0.1", metaMulticastPort)
	if err != nil {
		return nil, fmt.Errorf("participant: metatraffic multicast: %w", err)
	}
	metaUnicastT, err := transport.NewUnicast(metaUnicastPort)
	if err != nil {
		return nil, fmt.Errorf("participant: metatraffic unicast: %w", err)
	}
	defaultT, err := transport.NewUnicast(defaultUnicastPort)
	if err != nil {
		return nil, fmt.Errorf("participant: default unicast: %w", err)
	}

	p := &Participant{
		Guid:        guid,
		Config:      cfg,
		Log:         log,
		metrics:     metrics,
		eventBridge: eb,

		metaMulticastTransport: metaMulticastT,
		metaUnicastTransport:   metaUnicastT,
		defaultTransport:       defaultT,

		db:      discovery.NewParticipantDatabase(),
		ignored: discovery.NewIgnoredEndpoints(),

		publishers:  make(map[wire.GUID]*dds.Publisher),
		subscribers: make(map[wire.GUID]*dds.Subscriber),
		topics:      make(map[wire.GUID]*dds.Topic),

		readerTargets: make(map[wire.EntityId]receiver.ReaderTarget),
		writerTargets: make(map[wire.EntityId]receiver.WriterTarget),

		userWriters:         make(map[wire.EntityId]*userWriter),
		userReaders:         make(map[wire.EntityId]*userReader),
		userProxyUnmatchers: make(map[wire.GUID]func()),

		announceCh: make(chan struct{}, 1),
	}

	p.metaMulticastSender = &sender{guidPrefix: prefix, transport: metaMulticastT, log: log}
	p.metaUnicastSender = &sender{guidPrefix: prefix, transport: metaUnicastT, log: log}
	p.defaultSender = &sender{guidPrefix: prefix, transport: defaultT, log: log}

	p.setupBuiltinEndpoints()

	if cfg.AnnounceCronExpr != "" {
		p.cronSched = cron.New()
		if _, err := p.cronSched.AddFunc(cfg.AnnounceCronExpr, p.AssertLiveliness); err != nil {
			return nil, fmt.Errorf("participant: announce cron expr: %w", err)
		}
	}

	return p, nil
}

func newGuidPrefix() wire.GuidPrefix {
	var prefix wire.GuidPrefix
	id := uuid.New()
	copy(prefix[:], id[:12])
	return prefix
}

func (p *Participant) setupBuiltinEndpoints() {
	reliableProfile := qos.Profile{
		Reliability: qos.Reliability{Kind: qos.Reliable},
		History:     qos.History{Kind: qos.HistoryKeepAll},
	}

	spdpGuid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: wire.EntityIdSPDPWriter}
	spdpTargets := []wire.Locator{wire.NewLocatorUDPv4(239, 255, 0, 1, 7400+250*p.Config.DomainID)}
	p.spdpWriter = writer.NewStatelessWriter(spdpGuid, p.metaMulticastSender, spdpTargets)
	p.spdpCache = history.New(qos.History{Kind: qos.HistoryKeepLast, Depth: 1}, qos.ResourceLimits{})
	p.spdpReader = reader.NewStatelessReader(
		wire.GUID{Prefix: p.Guid.Prefix, EntityId: wire.EntityIdSPDPReader},
		p.spdpCache,
		p.onSPDPSample,
	)

	p.sedpPub = p.newBuiltinPair(wire.EntityIdSEDPPubWriter, wire.EntityIdSEDPPubReader, reliableProfile, p.onSEDPData)
	p.sedpSub = p.newBuiltinPair(wire.EntityIdSEDPSubWriter, wire.EntityIdSEDPSubReader, reliableProfile, p.onSEDPData)
	p.sedpTopic = p.newBuiltinPair(wire.EntityIdSEDPTopicsWriter, wire.EntityIdSEDPTopicsReader, reliableProfile, p.onSEDPData)

	p.readerTargets[wire.EntityIdSEDPPubReader] = p.sedpPub.reader
	p.readerTargets[wire.EntityIdSEDPSubReader] = p.sedpSub.reader
	p.readerTargets[wire.EntityIdSEDPTopicsReader] = p.sedpTopic.reader
	p.writerTargets[wire.EntityIdSEDPPubWriter] = p.sedpPub.writer
	p.writerTargets[wire.EntityIdSEDPSubWriter] = p.sedpSub.writer
	p.writerTargets[wire.EntityIdSEDPTopicsWriter] = p.sedpTopic.writer
}

func (p *Participant) newBuiltinPair(writerEntityId, readerEntityId wire.EntityId, profile qos.Profile, onData reader.SampleHandler) builtinEndpoint {
	wGuid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: writerEntityId}
	rGuid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: readerEntityId}
	wCache := history.New(profile.History, profile.ResourceLimits)
	rCache := history.New(profile.History, profile.ResourceLimits)
	w := writer.NewStatefulWriter(wGuid, profile, wCache, p.metaUnicastSender, p.Config.FragmentSize, p.Log)
	r := reader.NewStatefulReader(rGuid, profile, rCache, p.metaUnicastSender, onData, p.Log)
	return builtinEndpoint{writer: w, reader: r}
}

// onSPDPSample decodes a received SPDP sample into the pending queue for
// task #4 to process (spec.md §5 task separation: receive tasks never
// do discovery bookkeeping inline).
func (p *Participant) onSPDPSample(ch history.CacheChange) {
	r := wire.NewReader(ch.Data, true)
	pl, err := wire.DecodeParameterList(r)
	if err != nil {
		p.Log.Debug("dropping malformed SPDP sample", zap.Error(err))
		return
	}
	proxy := discovery.DecodeSPDP(pl)
	if proxy.GuidPrefix == p.Guid.Prefix {
		return // our own announcement, looped back via multicast
	}
	if proxy.DomainId != p.Config.DomainID || proxy.DomainTag != p.Config.DomainTag {
		p.Log.Debug("ignoring SPDP sample from a different domain",
			zap.Uint32("remote_domain_id", proxy.DomainId), zap.String("remote_domain_tag", proxy.DomainTag))
		return
	}
	p.pendingSPDPMu.Lock()
	p.pendingSPDP = append(p.pendingSPDP, proxy)
	p.pendingSPDPMu.Unlock()
}

// onSEDPData is a no-op: the SEDP
// discovery matcher task (task #5) reads straight from the built-in
// readers' history caches rather than a side queue, since those caches
// already hold every undeleted discovered writer/reader/topic sample.
func (p *Participant) onSEDPData(history.CacheChange) {}

// Start launches the seven long-lived tasks (spec.md §5) and returns
// immediately; call Stop to shut them down.
func (p *Participant) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.spawn(func() { p.runReceiver(ctx, p.metaMulticastTransport, p.metaUnicastSender) })
	p.spawn(func() { p.runReceiver(ctx, p.metaUnicastTransport, p.metaUnicastSender) })
	p.spawn(func() { p.runDefaultTraffic(ctx) })
	p.spawn(func() { p.runSPDPMatcher(ctx) })
	p.spawn(func() { p.runSEDPMatcher(ctx) })
	p.spawn(func() { p.runMetatrafficSender(ctx) })
	p.spawn(func() { p.runAnnouncer(ctx) })

	if p.cronSched != nil {
		p.cronSched.Start()
	}
}

func (p *Participant) spawn(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		fn()
	}()
}

// Stop cancels every task and waits for them to return (spec.md §5
// "shutdown_tasks sets the flag and joins every task").
func (p *Participant) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	if p.cronSched != nil {
		<-p.cronSched.Stop().Done()
	}
	p.wg.Wait()
	p.metaMulticastTransport.Close()
	p.metaUnicastTransport.Close()
	p.defaultTransport.Close()
	if p.eventBridge != nil {
		p.eventBridge.Close()
	}
}

// runReceiver is tasks #1/#2: block on transport.Recv, decode, dispatch
// (spec.md §5).
func (p *Participant) runReceiver(ctx context.Context, t transport.Transport, _ *sender) {
	rcv := receiver.New(p, p.Log)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		dgram, err := t.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		msg, err := wire.DecodeMessage(dgram.Payload)
		if err != nil {
			p.Log.Debug("dropping malformed datagram", zap.Error(err))
			continue
		}
		rcv.Process(msg)
	}
}

// runDefaultTraffic is task #3: receives user traffic and, on the same
// cadence, flushes pending user writer data (spec.md §5).
func (p *Participant) runDefaultTraffic(ctx context.Context) {
	rcv := receiver.New(p, p.Log)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		dgram, err := p.defaultTransport.Recv(ctx)
		if err == nil {
			if msg, decErr := wire.DecodeMessage(dgram.Payload); decErr == nil {
				rcv.Process(msg)
			}
		} else if ctx.Err() != nil {
			return
		}
		p.flushUserWriters()
	}
}

// flushUserWriters sends pending data and acknacks for every
// user-defined stateful writer/reader (spec.md §5 task 3: default
// traffic handling shares the receive-then-flush cadence with the
// metatraffic sender, but over the default unicast transport).
func (p *Participant) flushUserWriters() {
	p.mu.RLock()
	writers := make([]*writer.StatefulWriter, 0, len(p.userWriters))
	for _, uw := range p.userWriters {
		if uw.stateful != nil {
			writers = append(writers, uw.stateful)
		}
	}
	readers := make([]*reader.StatefulReader, 0, len(p.userReaders))
	for _, ur := range p.userReaders {
		if ur.stateful != nil {
			readers = append(readers, ur.stateful)
		}
	}
	p.mu.RUnlock()
	for _, w := range writers {
		w.SendPendingData()
	}
	for _, r := range readers {
		r.SendPeriodicAckNack()
	}
}

// runSPDPMatcher is task #4: every 500ms, drains pending SPDP samples
// and matches newly discovered participants; also sweeps lease expiry
// (spec.md §5/§4.5).
func (p *Participant) runSPDPMatcher(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drainSPDP()
			p.sweepLeases()
		}
	}
}

func (p *Participant) drainSPDP() {
	p.pendingSPDPMu.Lock()
	batch := p.pendingSPDP
	p.pendingSPDP = nil
	p.pendingSPDPMu.Unlock()

	for _, proxy := range batch {
		isNew := p.db.Observe(proxy, time.Now())
		if !isNew {
			continue
		}
		p.Log.Info("discovered participant", zap.Stringer("prefix", loggablePrefix{proxy.GuidPrefix}))
		if p.metrics != nil {
			p.metrics.ParticipantsDiscovered.Add(context.Background(), 1)
		}
		p.addMatchedParticipant(proxy)
		if p.eventBridge != nil {
			p.eventBridge.PublishDiscoveryEvent(eventbridge.SubjectDiscovery, eventbridge.DiscoveryEvent{
				Kind:      "participant_discovered",
				GUID:      fmt.Sprintf("%x", proxy.GuidPrefix[:]),
				Timestamp: time.Now(),
			})
		}
	}
}

// addMatchedParticipant creates a ReaderProxy/WriterProxy on every
// built-in SEDP endpoint toward the newly discovered participant's
// metatraffic locators (spec.md §4.5 add_matched_participant).
func (p *Participant) addMatchedParticipant(remote discovery.ParticipantProxy) {
	unicast := remote.MetatrafficUnicastLocators
	multicast := remote.MetatrafficMulticastLocators

	matchPair := func(be builtinEndpoint, writerEntityId, readerEntityId wire.EntityId) {
		wGuid := wire.GUID{Prefix: remote.GuidPrefix, EntityId: writerEntityId}
		be.reader.MatchWriter(proxypkg.NewWriterProxy(wGuid, unicast, multicast))
		rGuid := wire.GUID{Prefix: remote.GuidPrefix, EntityId: readerEntityId}
		be.writer.MatchReader(proxypkg.NewReaderProxy(rGuid, unicast, multicast, true))
	}
	matchPair(p.sedpPub, wire.EntityIdSEDPPubWriter, wire.EntityIdSEDPPubReader)
	matchPair(p.sedpSub, wire.EntityIdSEDPSubWriter, wire.EntityIdSEDPSubReader)
	matchPair(p.sedpTopic, wire.EntityIdSEDPTopicsWriter, wire.EntityIdSEDPTopicsReader)
}

// sweepLeases removes expired participants and cascades proxy removal
// across every built-in and user endpoint (spec.md §4.5/§8).
func (p *Participant) sweepLeases() {
	expired := p.db.SweepExpired(time.Now())
	for _, prefix := range expired {
		p.Log.Info("participant lease expired", zap.Stringer("prefix", loggablePrefix{prefix}))
		if p.metrics != nil {
			p.metrics.ParticipantsLost.Add(context.Background(), 1)
		}
		p.removeParticipant(prefix)
	}
}

// removeParticipant purges every proxy whose remote GuidPrefix matches
// prefix from every built-in and user-defined endpoint (spec.md §4.5
// Participant removal, §8 Discovery cascade).
func (p *Participant) removeParticipant(prefix wire.GuidPrefix) {
	p.sedpPub.reader.UnmatchWriter(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPPubWriter})
	p.sedpPub.writer.UnmatchReader(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPPubReader})
	p.sedpSub.reader.UnmatchWriter(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPSubWriter})
	p.sedpSub.writer.UnmatchReader(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPSubReader})
	p.sedpTopic.reader.UnmatchWriter(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPTopicsWriter})
	p.sedpTopic.writer.UnmatchReader(wire.GUID{Prefix: prefix, EntityId: wire.EntityIdSEDPTopicsReader})

	p.mu.RLock()
	defer p.mu.RUnlock()
	for remote, unmatch := range p.userProxyUnmatchers {
		if remote.Prefix == prefix {
			unmatch()
		}
	}
}

// runSEDPMatcher is task #5: every 500ms, evaluates every discovered
// writer/reader sample against local endpoints and wires up matches
// whose QoS is compatible (spec.md §5/§4.5).
func (p *Participant) runSEDPMatcher(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.matchSEDP()
		}
	}
}

func (p *Participant) matchSEDP() {
	discoveredWriters := p.filterIgnoredWriters(decodeEndpoints(p.sedpPub.reader.Cache.All()))
	discoveredReaders := p.filterIgnoredReaders(decodeEndpoints(p.sedpSub.reader.Cache.All()))

	p.mu.RLock()
	writers := make(map[wire.EntityId]*userWriter, len(p.userWriters))
	for k, v := range p.userWriters {
		writers[k] = v
	}
	readers := make(map[wire.EntityId]*userReader, len(p.userReaders))
	for k, v := range p.userReaders {
		readers[k] = v
	}
	p.mu.RUnlock()

	for _, uw := range writers {
		for _, m := range discovery.MatchWriterToReaders(uw.info, discoveredReaders) {
			p.applyWriterMatch(uw, m)
		}
	}
	for _, ur := range readers {
		for _, m := range discovery.MatchReaderToWriters(ur.info, discoveredWriters) {
			p.applyReaderMatch(ur, m)
		}
	}
}

// FindTopic blocks until a topic named name is known in the domain,
// either created locally or discovered via the built-in topics endpoint,
// or until timeout elapses. It is one of only two DCPS operations
// allowed to block (spec.md §5 "Suspension points") and honors its
// timeout exactly, returning a dds.Timeout error at the deadline.
func (p *Participant) FindTopic(ctx context.Context, name string, timeout time.Duration) (*dds.Topic, error) {
	if t := p.findLocalTopic(name); t != nil {
		return t, nil
	}
	if t := p.findDiscoveredTopic(name); t != nil {
		return t, nil
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, &dds.Error{Code: dds.Timeout, Msg: "find_topic cancelled: " + ctx.Err().Error()}
		case <-deadline:
			return nil, &dds.Error{Code: dds.Timeout, Msg: "find_topic: topic " + name + " not discovered within timeout"}
		case <-ticker.C:
			if t := p.findLocalTopic(name); t != nil {
				return t, nil
			}
			if t := p.findDiscoveredTopic(name); t != nil {
				return t, nil
			}
		}
	}
}

func (p *Participant) findLocalTopic(name string) *dds.Topic {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, t := range p.topics {
		if t.Name == name {
			return t
		}
	}
	return nil
}

// findDiscoveredTopic synthesizes a read-only Topic handle from a remote
// DiscoveredTopicData sample; the caller must still create its own
// TypeSupport to attach a DataReader since CDR (de)serialization is
// application-defined (spec.md §1).
func (p *Participant) findDiscoveredTopic(name string) *dds.Topic {
	for _, ch := range p.sedpTopic.reader.Cache.All() {
		if ch.Kind != history.ChangeAlive {
			continue
		}
		r := wire.NewReader(ch.Data, true)
		pl, err := wire.DecodeParameterList(r)
		if err != nil {
			continue
		}
		td := discovery.DecodeTopic(pl)
		if td.TopicName != name || p.ignored.IsTopicIgnored(td.TopicName) {
			continue
		}
		t := &dds.Topic{Guid: td.Guid, Name: td.TopicName, Type: dds.TypeSupport{TypeName: td.TypeName}, Profile: td.Profile}
		t.Enable()
		return t
	}
	return nil
}

// filterIgnoredWriters drops every discovered writer excluded by
// ignore_publication or belonging to an ignore_topic'd topic, applied as
// the matcher's first filter before QoS compatibility is even considered
// (spec.md §9(iii)).
func (p *Participant) filterIgnoredWriters(writers []discovery.EndpointProxy) []discovery.EndpointProxy {
	out := writers[:0]
	for _, w := range writers {
		if p.ignored.IsWriterIgnored(w.Guid) || p.ignored.IsTopicIgnored(w.TopicName) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// filterIgnoredReaders is filterIgnoredWriters' mirror for
// ignore_subscription.
func (p *Participant) filterIgnoredReaders(readers []discovery.EndpointProxy) []discovery.EndpointProxy {
	out := readers[:0]
	for _, r := range readers {
		if p.ignored.IsReaderIgnored(r.Guid) || p.ignored.IsTopicIgnored(r.TopicName) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// IgnoreParticipant excludes a remote participant from discovery,
// dropping it immediately if already known (spec.md §9(iii)
// ignore_participant).
func (p *Participant) IgnoreParticipant(prefix wire.GuidPrefix) {
	p.db.Ignore(prefix)
	p.removeParticipant(prefix)
}

// IgnorePublication excludes a remote writer from future matching
// (spec.md §9(iii) ignore_publication). Proxies already matched before
// the call are left in place until the remote participant is removed
// (lease expiry or IgnoreParticipant); SEDP match passes do not unmatch
// them.
func (p *Participant) IgnorePublication(guid wire.GUID) {
	p.ignored.IgnorePublication(guid)
}

// IgnoreSubscription excludes a remote reader from future matching
// (spec.md §9(iii) ignore_subscription).
func (p *Participant) IgnoreSubscription(guid wire.GUID) {
	p.ignored.IgnoreSubscription(guid)
}

// IgnoreTopic excludes every writer and reader on name from future
// matching and hides it from FindTopic (spec.md §9(iii) ignore_topic).
func (p *Participant) IgnoreTopic(name string) {
	p.ignored.IgnoreTopic(name)
}

func decodeEndpoints(changes []history.CacheChange) []discovery.EndpointProxy {
	out := make([]discovery.EndpointProxy, 0, len(changes))
	for _, ch := range changes {
		if ch.Kind != history.ChangeAlive {
			continue
		}
		r := wire.NewReader(ch.Data, true)
		pl, err := wire.DecodeParameterList(r)
		if err != nil {
			continue
		}
		out = append(out, discovery.DecodeEndpoint(pl))
	}
	return out
}

// applyWriterMatch wires a local writer to a newly matched remote reader
// once QoS compatibility holds (spec.md §4.5 add_matched_reader). An
// incompatible match only increments the IncompatibleQos metric; no
// OfferedIncompatibleQos status is signalled on the owning DataWriter.
func (p *Participant) applyWriterMatch(uw *userWriter, m discovery.Match) {
	if m.Incompatibility != qos.Compatible {
		if p.metrics != nil {
			p.metrics.IncompatibleQos.Add(context.Background(), 1)
		}
		return
	}
	switch {
	case uw.stateful != nil:
		rp := proxypkg.NewReaderProxy(m.Remote.Guid, m.Remote.UnicastLocators, m.Remote.MulticastLocators,
			m.Remote.Profile.Reliability.Kind == qos.Reliable)
		uw.stateful.MatchReader(rp)
		p.mu.Lock()
		p.userProxyUnmatchers[m.Remote.Guid] = func() { uw.stateful.UnmatchReader(m.Remote.Guid) }
		p.mu.Unlock()
	case uw.stateless != nil:
		if l := firstLocator(m.Remote.UnicastLocators, m.Remote.MulticastLocators); l != wire.LocatorInvalid {
			uw.stateless.AddTarget(l)
		}
	}
	if p.metrics != nil {
		p.metrics.ProxiesMatched.Add(context.Background(), 1)
	}
}

// applyReaderMatch wires a local reader to a newly matched remote writer
// (spec.md §4.5 add_matched_writer). Best-effort readers need no proxy:
// StatelessReader already accepts DATA from any writer addressed to its
// entity id.
func (p *Participant) applyReaderMatch(ur *userReader, m discovery.Match) {
	if m.Incompatibility != qos.Compatible {
		if p.metrics != nil {
			p.metrics.IncompatibleQos.Add(context.Background(), 1)
		}
		return
	}
	if ur.stateful != nil {
		wp := proxypkg.NewWriterProxy(m.Remote.Guid, m.Remote.UnicastLocators, m.Remote.MulticastLocators)
		ur.stateful.MatchWriter(wp)
		p.mu.Lock()
		p.userProxyUnmatchers[m.Remote.Guid] = func() { ur.stateful.UnmatchWriter(m.Remote.Guid) }
		p.mu.Unlock()
	}
	if p.metrics != nil {
		p.metrics.ProxiesMatched.Add(context.Background(), 1)
	}
}

func firstLocator(lists ...[]wire.Locator) wire.Locator {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return wire.LocatorInvalid
}

// runMetatrafficSender is task #6: every 500ms, flushes pending output
// on every built-in writer/reader (spec.md §5).
func (p *Participant) runMetatrafficSender(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sedpPub.writer.SendPendingData()
			p.sedpSub.writer.SendPendingData()
			p.sedpTopic.writer.SendPendingData()
			p.sedpPub.reader.SendPeriodicAckNack()
			p.sedpSub.reader.SendPeriodicAckNack()
			p.sedpTopic.reader.SendPeriodicAckNack()
			if p.metrics != nil {
				p.metrics.HeartbeatsSent.Add(context.Background(), 1)
			}
		}
	}
}

// runAnnouncer is task #7: every lease_duration/3, or on demand via
// announceCh, publishes this participant's SpdpDiscoveredParticipantData
// (spec.md §5).
func (p *Participant) runAnnouncer(ctx context.Context) {
	period := p.Config.AnnouncePeriod()
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	p.announceNow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.announceNow()
		case <-p.announceCh:
			p.announceNow()
		}
	}
}

// AssertLiveliness triggers an out-of-cycle SPDP announcement, the
// MANUALLY_ASSERTED liveliness mechanism (spec.md §9 Open Question iii:
// assert_liveliness is implemented, not a stub).
func (p *Participant) AssertLiveliness() {
	select {
	case p.announceCh <- struct{}{}:
	default:
	}
}

func (p *Participant) announceNow() {
	proxy := discovery.ParticipantProxy{
		GuidPrefix:                   p.Guid.Prefix,
		ProtocolVersion:              wire.ProtocolVersion24,
		VendorId:                     wire.VendorIdThis,
		DomainId:                     p.Config.DomainID,
		DomainTag:                    p.Config.DomainTag,
		MetatrafficUnicastLocators:   []wire.Locator{p.metaUnicastTransport.LocalLocator()},
		MetatrafficMulticastLocators: []wire.Locator{wire.NewLocatorUDPv4(239, 255, 0, 1, 7400+250*p.Config.DomainID)},
		DefaultUnicastLocators:       []wire.Locator{p.defaultTransport.LocalLocator()},
		BuiltinEndpointSet:           discovery.DefaultBuiltinEndpointSet,
		LeaseDuration:                p.Config.LeaseDuration,
	}
	pl := discovery.EncodeSPDP(proxy)
	w := wire.NewWriter(true)
	pl.Encode(w)
	p.spdpWriter.Write(w.Bytes())
}

type loggablePrefix struct{ p wire.GuidPrefix }

func (l loggablePrefix) String() string { return fmt.Sprintf("%x", l.p[:]) }
