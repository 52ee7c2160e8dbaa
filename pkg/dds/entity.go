package dds

import (
	"context"
	"sync"
	"time"

	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/reader"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/arc-self/rtps/pkg/rtps/writer"
)

// TypeSupport is the application-provided (de)serialization contract for
// one topic type (spec.md §1: "assumed to be provided by the application
// as a pair of functions per topic type"). KeyOf is optional; a nil
// KeyOf means the topic is keyless and every sample belongs to the
// single instance identified by the writer's GUID.
type TypeSupport struct {
	TypeName    string
	Serialize   func(sample interface{}) ([]byte, error)
	Deserialize func(data []byte) (interface{}, error)
	KeyOf       func(sample interface{}) [16]byte
}

// Topic is a named, typed data channel within a domain (spec.md §4.6).
type Topic struct {
	Guid    wire.GUID
	Name    string
	Type    TypeSupport
	Profile qos.Profile
	enabled bool
}

// Enable marks the topic enabled; a no-op if already enabled
// (spec.md §4.6 enabled flag, idempotent per DDS semantics).
func (t *Topic) Enable() { t.enabled = true }

// Enabled reports whether the topic has been enabled.
func (t *Topic) Enabled() bool { return t.enabled }

// InstanceHandle returns the topic's DCPS instance handle (spec.md §3:
// "instance handles exposed to the DCPS layer are isomorphic to GUIDs").
func (t *Topic) InstanceHandle() [16]byte { return guidToHandle(t.Guid) }

func guidToHandle(g wire.GUID) [16]byte {
	var h [16]byte
	copy(h[:12], g.Prefix[:])
	copy(h[12:15], g.EntityId.Key[:])
	h[15] = byte(g.EntityId.Kind)
	return h
}

// writerEngine abstracts the reliable (StatefulWriter) and best-effort
// (StatelessWriter) writer engines behind one call shape so DataWriter
// doesn't need to branch on reliability at every write (spec.md §4.2/
// §4.3 "stateful vs stateless").
type writerEngine interface {
	WriteSample(instance [16]byte, data []byte, ts wire.Time)
	// AllAcknowledged reports whether every reliable matched reader has
	// acknowledged every sample in the writer's history cache (spec.md §5
	// wait_for_acknowledgments). Best-effort engines have no readers to
	// wait on and always report true.
	AllAcknowledged() bool
}

type statefulWriterEngine struct{ w *writer.StatefulWriter }

func (e statefulWriterEngine) WriteSample(instance [16]byte, data []byte, ts wire.Time) {
	e.w.Write(instance, data, ts)
}

func (e statefulWriterEngine) AllAcknowledged() bool {
	_, highest := e.w.Cache.MinMax()
	for _, p := range e.w.Proxies() {
		if p.IsReliable && p.AckedSN() < highest {
			return false
		}
	}
	return true
}

type statelessWriterEngine struct{ w *writer.StatelessWriter }

func (e statelessWriterEngine) WriteSample(instance [16]byte, data []byte, ts wire.Time) {
	e.w.Write(data)
}

func (e statelessWriterEngine) AllAcknowledged() bool { return true }

// NewStatefulWriterEngine adapts a *writer.StatefulWriter to writerEngine.
func NewStatefulWriterEngine(w *writer.StatefulWriter) writerEngine { return statefulWriterEngine{w} }

// NewStatelessWriterEngine adapts a *writer.StatelessWriter to writerEngine.
func NewStatelessWriterEngine(w *writer.StatelessWriter) writerEngine {
	return statelessWriterEngine{w}
}

// DataWriter publishes samples of one Topic (spec.md §4.6).
type DataWriter struct {
	mu      sync.Mutex
	Guid    wire.GUID
	Topic   *Topic
	Profile qos.Profile
	Status  *StatusSet
	enabled bool
	deleted bool
	engine  writerEngine
	now     func() wire.Time
}

func newDataWriterStatus() *StatusSet {
	return NewStatusSet(OfferedDeadlineMissed, OfferedIncompatibleQos, LivelinessLost, PublicationMatched)
}

// NewDataWriter wires a DataWriter to its protocol engine. now supplies
// the source timestamp applied to each written sample (injected so
// tests can control it).
func NewDataWriter(guid wire.GUID, topic *Topic, profile qos.Profile, engine writerEngine, now func() wire.Time) *DataWriter {
	return &DataWriter{Guid: guid, Topic: topic, Profile: profile, Status: newDataWriterStatus(), engine: engine, now: now}
}

// Enable enables the writer; writes before enabling return NotEnabled.
func (w *DataWriter) Enable() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = true
}

// Write serializes sample with the topic's TypeSupport and hands it to
// the writer engine, returning NotEnabled / AlreadyDeleted as
// appropriate (spec.md §4.6/§7).
func (w *DataWriter) Write(sample interface{}) error {
	w.mu.Lock()
	if w.deleted {
		w.mu.Unlock()
		return newErr(AlreadyDeleted, "data writer already deleted")
	}
	if !w.enabled {
		w.mu.Unlock()
		return newErr(NotEnabled, "data writer not enabled")
	}
	w.mu.Unlock()

	data, err := w.Topic.Type.Serialize(sample)
	if err != nil {
		return newErr(BadParameter, "serialize: "+err.Error())
	}
	instance := guidToHandle(w.Guid)
	if w.Topic.Type.KeyOf != nil {
		instance = w.Topic.Type.KeyOf(sample)
	}
	ts := wire.TimeInvalid
	if w.now != nil {
		ts = w.now()
	}
	w.engine.WriteSample(instance, data, ts)
	return nil
}

// SetQos validates and applies new policies, rejecting changes to
// immutable policies once enabled (spec.md §4.6 "QoS (get/set with
// mutability rules)").
func (w *DataWriter) SetQos(p qos.Profile) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.enabled {
		if p.Reliability.Kind != w.Profile.Reliability.Kind {
			return newErr(ImmutablePolicy, "RELIABILITY cannot change after enable")
		}
		if p.Durability.Kind != w.Profile.Durability.Kind {
			return newErr(ImmutablePolicy, "DURABILITY cannot change after enable")
		}
		if p.History != w.Profile.History {
			return newErr(ImmutablePolicy, "HISTORY cannot change after enable")
		}
	}
	w.Profile = p
	return nil
}

// WaitForAcknowledgments blocks until every matched reliable reader has
// acknowledged all samples written so far, or until timeout elapses,
// whichever comes first. It is one of only two DCPS operations allowed
// to block (spec.md §5 "Suspension points") and honors its timeout
// exactly, returning a Timeout error at the deadline.
func (w *DataWriter) WaitForAcknowledgments(ctx context.Context, timeout time.Duration) error {
	w.mu.Lock()
	deleted := w.deleted
	w.mu.Unlock()
	if deleted {
		return newErr(AlreadyDeleted, "data writer already deleted")
	}
	if w.engine.AllAcknowledged() {
		return nil
	}

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return newErr(Timeout, "wait_for_acknowledgments cancelled: "+ctx.Err().Error())
		case <-deadline:
			return newErr(Timeout, "wait_for_acknowledgments: deadline exceeded")
		case <-ticker.C:
			if w.engine.AllAcknowledged() {
				return nil
			}
		}
	}
}

// SampleState distinguishes samples the application has already read.
type SampleState int

const (
	NotRead SampleState = iota
	Read
)

// ViewState tracks whether this is the first sample seen for an
// instance_handle (spec.md §4.3: "NEW on first alive sample, NOT_NEW
// thereafter until NotAlive transitions").
type ViewState int

const (
	NewView ViewState = iota
	NotNewView
)

// InstanceState mirrors history.ChangeKind at the DCPS boundary.
type InstanceState int

const (
	InstanceAlive InstanceState = iota
	InstanceNotAliveDisposed
	InstanceNotAliveNoWriters
)

// SampleInfo accompanies every sample handed back by Read/Take
// (spec.md §4.3, DDS §7 sample/view/instance state).
type SampleInfo struct {
	SampleState    SampleState
	ViewState      ViewState
	InstanceState  InstanceState
	SourceTimestamp wire.Time
	InstanceHandle [16]byte
}

// Sample is one delivered, deserialized value plus its SampleInfo.
type Sample struct {
	Data interface{}
	Info SampleInfo
}

// DataReader subscribes to samples of one Topic (spec.md §4.6).
type DataReader struct {
	mu      sync.Mutex
	Guid    wire.GUID
	Topic   *Topic
	Profile qos.Profile
	Status  *StatusSet
	Cache   *history.Cache
	enabled bool
	deleted bool

	readStates map[wire.SequenceNumber]SampleState
	viewStates map[[16]byte]ViewState
}

func newDataReaderStatus() *StatusSet {
	return NewStatusSet(DataAvailable, SampleLost, SampleRejected, LivelinessChanged,
		RequestedDeadlineMissed, RequestedIncompatibleQos, SubscriptionMatched)
}

// NewDataReader wires a DataReader over a shared history cache; the
// cache is populated by the reader protocol engine's OnData callback.
func NewDataReader(guid wire.GUID, topic *Topic, profile qos.Profile, cache *history.Cache) *DataReader {
	return &DataReader{
		Guid: guid, Topic: topic, Profile: profile, Status: newDataReaderStatus(), Cache: cache,
		readStates: make(map[wire.SequenceNumber]SampleState),
		viewStates: make(map[[16]byte]ViewState),
	}
}

// Enable enables the reader; Read/Take before enabling return NotEnabled.
func (r *DataReader) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}

// OnDataHandler returns a reader.SampleHandler suitable for wiring into
// a reader.StatefulReader/StatelessReader's OnData callback: it only
// updates DataAvailable status, since the cache itself is shared and
// already updated by the engine before this callback runs.
func (r *DataReader) OnDataHandler() reader.SampleHandler {
	return func(history.CacheChange) {
		r.Status.Signal(DataAvailable)
	}
}

// Read returns every sample currently in the cache, marking them Read
// but leaving them in the cache (spec.md §4.6, DDS read semantics).
func (r *DataReader) Read() ([]Sample, error) {
	return r.collect(false)
}

// Take returns every sample currently in the cache and removes them
// (spec.md §4.6, DDS take semantics).
func (r *DataReader) Take() ([]Sample, error) {
	return r.collect(true)
}

func (r *DataReader) collect(remove bool) ([]Sample, error) {
	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return nil, newErr(AlreadyDeleted, "data reader already deleted")
	}
	if !r.enabled {
		r.mu.Unlock()
		return nil, newErr(NotEnabled, "data reader not enabled")
	}
	r.mu.Unlock()

	changes := r.Cache.All() // already sn-ordered per writer (spec.md §5 ordering guarantees)
	if len(changes) == 0 {
		return nil, newErr(NoData, "no samples available")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, 0, len(changes))
	for _, ch := range changes {
		_, seenBefore := r.viewStates[ch.InstanceHandle]
		view := NotNewView
		if !seenBefore {
			view = NewView
		}
		if ch.Kind != history.ChangeAlive {
			// NotAlive resets view state: the next alive sample for this
			// instance (should the instance come back) is NEW again
			// (spec.md §4.3).
			delete(r.viewStates, ch.InstanceHandle)
		} else {
			r.viewStates[ch.InstanceHandle] = NotNewView
		}

		state := r.readStates[ch.SequenceNumber]
		info := SampleInfo{
			SampleState:     state,
			ViewState:       view,
			InstanceState:   instanceStateOf(ch.Kind),
			SourceTimestamp: ch.SourceTimestamp,
			InstanceHandle:  ch.InstanceHandle,
		}
		var data interface{}
		if ch.Kind == history.ChangeAlive && r.Topic.Type.Deserialize != nil {
			v, err := r.Topic.Type.Deserialize(ch.Data)
			if err != nil {
				r.Status.Signal(SampleRejected)
				continue
			}
			data = v
		}
		out = append(out, Sample{Data: data, Info: info})
		r.readStates[ch.SequenceNumber] = Read
		if remove {
			r.Cache.RemoveBySequenceNumber(ch.SequenceNumber)
			delete(r.readStates, ch.SequenceNumber)
		}
	}
	return out, nil
}

func instanceStateOf(k history.ChangeKind) InstanceState {
	switch k {
	case history.ChangeNotAliveDisposed, history.ChangeNotAliveUnregistered:
		return InstanceNotAliveDisposed
	default:
		return InstanceAlive
	}
}

// Publisher owns a set of DataWriters (spec.md §4.6).
type Publisher struct {
	mu       sync.Mutex
	Guid     wire.GUID
	Profile  qos.Profile
	writers  map[wire.GUID]*DataWriter
	enabled  bool
}

// NewPublisher creates an empty Publisher.
func NewPublisher(guid wire.GUID, profile qos.Profile) *Publisher {
	return &Publisher{Guid: guid, Profile: profile, writers: make(map[wire.GUID]*DataWriter)}
}

// Enable enables the publisher.
func (p *Publisher) Enable() { p.enabled = true }

// AddWriter registers a newly created DataWriter under this publisher.
func (p *Publisher) AddWriter(w *DataWriter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writers[w.Guid] = w
}

// DeleteWriter removes a DataWriter; fails with PreconditionNotMet if
// unknown (spec.md §4.6/§7).
func (p *Publisher) DeleteWriter(guid wire.GUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.writers[guid]
	if !ok {
		return newErr(PreconditionNotMet, "data writer not owned by this publisher")
	}
	w.mu.Lock()
	w.deleted = true
	w.mu.Unlock()
	delete(p.writers, guid)
	return nil
}

// Writers returns every DataWriter currently owned by this publisher.
func (p *Publisher) Writers() []*DataWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*DataWriter, 0, len(p.writers))
	for _, w := range p.writers {
		out = append(out, w)
	}
	return out
}

// Subscriber owns a set of DataReaders (spec.md §4.6).
type Subscriber struct {
	mu      sync.Mutex
	Guid    wire.GUID
	Profile qos.Profile
	readers map[wire.GUID]*DataReader
	enabled bool
}

// NewSubscriber creates an empty Subscriber.
func NewSubscriber(guid wire.GUID, profile qos.Profile) *Subscriber {
	return &Subscriber{Guid: guid, Profile: profile, readers: make(map[wire.GUID]*DataReader)}
}

// Enable enables the subscriber.
func (s *Subscriber) Enable() { s.enabled = true }

// AddReader registers a newly created DataReader under this subscriber.
func (s *Subscriber) AddReader(r *DataReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[r.Guid] = r
}

// DeleteReader removes a DataReader; fails with PreconditionNotMet if
// unknown.
func (s *Subscriber) DeleteReader(guid wire.GUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.readers[guid]
	if !ok {
		return newErr(PreconditionNotMet, "data reader not owned by this subscriber")
	}
	r.mu.Lock()
	r.deleted = true
	r.mu.Unlock()
	delete(s.readers, guid)
	return nil
}

// Readers returns every DataReader currently owned by this subscriber.
func (s *Subscriber) Readers() []*DataReader {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*DataReader, 0, len(s.readers))
	for _, r := range s.readers {
		out = append(out, r)
	}
	return out
}
