package discovery

import (
	"sync"
	"time"

	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// discoveredParticipant is the database's bookkeeping around one remote
// participant: its proxy plus the lease deadline (spec.md §3 "removed
// when the lease duration elapses without a refresh").
type discoveredParticipant struct {
	proxy      ParticipantProxy
	deadline   time.Time
	ignored    bool
}

// ParticipantDatabase tracks every remote participant this participant
// has discovered via SPDP, their lease deadlines, and the
// explicitly-ignored set (spec.md §3 Lifecycles, §4.5 Participant
// removal).
//
// Grounded on sanket-sapate-arc-core's discovery-service scan_poller,
// which keeps an in-memory map of known peers refreshed on each poll and
// sweeps expired entries on a timer — the same shape applied here to
// RTPS lease accounting instead of service-health polling.
type ParticipantDatabase struct {
	mu      sync.Mutex
	known   map[wire.GuidPrefix]*discoveredParticipant
	ignored map[wire.GuidPrefix]struct{}
}

// NewParticipantDatabase creates an empty database.
func NewParticipantDatabase() *ParticipantDatabase {
	return &ParticipantDatabase{
		known:   make(map[wire.GuidPrefix]*discoveredParticipant),
		ignored: make(map[wire.GuidPrefix]struct{}),
	}
}

// Observe records (or refreshes) a participant seen via SPDP. Returns
// true if this is a newly discovered participant (not previously known
// or previously expired), which should trigger SEDP add_matched_participant
// on every built-in endpoint (spec.md §4.5).
func (d *ParticipantDatabase) Observe(p ParticipantProxy, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, isIgnored := d.ignored[p.GuidPrefix]; isIgnored {
		return false
	}
	existing, known := d.known[p.GuidPrefix]
	lease := p.LeaseDuration
	if lease <= 0 {
		lease = 100 * 365 * 24 * time.Hour
	}
	if known {
		existing.proxy = p
		existing.deadline = now.Add(lease)
		return false
	}
	d.known[p.GuidPrefix] = &discoveredParticipant{proxy: p, deadline: now.Add(lease)}
	return true
}

// Ignore marks a participant as explicitly ignored: it is removed if
// known, and future SPDP samples from it are dropped (spec.md §3
// Lifecycles "or when explicitly ignored").
func (d *ParticipantDatabase) Ignore(prefix wire.GuidPrefix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ignored[prefix] = struct{}{}
	delete(d.known, prefix)
}

// Get returns the known proxy for prefix, if any.
func (d *ParticipantDatabase) Get(prefix wire.GuidPrefix) (ParticipantProxy, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.known[prefix]
	if !ok {
		return ParticipantProxy{}, false
	}
	return p.proxy, true
}

// All returns every currently known participant proxy.
func (d *ParticipantDatabase) All() []ParticipantProxy {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]ParticipantProxy, 0, len(d.known))
	for _, p := range d.known {
		out = append(out, p.proxy)
	}
	return out
}

// Remove deletes a participant unconditionally, e.g. on receipt of a
// NotAliveDisposed SPDP sample (spec.md §4.5 Participant removal).
func (d *ParticipantDatabase) Remove(prefix wire.GuidPrefix) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.known, prefix)
}

// IgnoredEndpoints tracks remote publications, subscriptions, and topics
// explicitly excluded from matching via ignore_publication/
// ignore_subscription/ignore_topic (spec.md §9(iii)), the same
// ignored-set shape as ParticipantDatabase one level down the entity
// hierarchy.
type IgnoredEndpoints struct {
	mu         sync.Mutex
	writers    map[wire.GUID]struct{}
	readers    map[wire.GUID]struct{}
	topicNames map[string]struct{}
}

// NewIgnoredEndpoints creates an empty set.
func NewIgnoredEndpoints() *IgnoredEndpoints {
	return &IgnoredEndpoints{
		writers:    make(map[wire.GUID]struct{}),
		readers:    make(map[wire.GUID]struct{}),
		topicNames: make(map[string]struct{}),
	}
}

// IgnorePublication excludes a remote writer from future matching.
func (e *IgnoredEndpoints) IgnorePublication(guid wire.GUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.writers[guid] = struct{}{}
}

// IgnoreSubscription excludes a remote reader from future matching.
func (e *IgnoredEndpoints) IgnoreSubscription(guid wire.GUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.readers[guid] = struct{}{}
}

// IgnoreTopic excludes a topic name from future matching and from
// find_topic discovery.
func (e *IgnoredEndpoints) IgnoreTopic(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.topicNames[name] = struct{}{}
}

// IsWriterIgnored reports whether guid has been ignore_publication'd.
func (e *IgnoredEndpoints) IsWriterIgnored(guid wire.GUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.writers[guid]
	return ok
}

// IsReaderIgnored reports whether guid has been ignore_subscription'd.
func (e *IgnoredEndpoints) IsReaderIgnored(guid wire.GUID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.readers[guid]
	return ok
}

// IsTopicIgnored reports whether name has been ignore_topic'd.
func (e *IgnoredEndpoints) IsTopicIgnored(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.topicNames[name]
	return ok
}

// SweepExpired removes every participant whose lease has elapsed as of
// now and returns their GuidPrefixes so the caller can cascade proxy
// removal across every built-in and user-defined endpoint (spec.md §4.5,
// §8 "lease expiry" scenario).
func (d *ParticipantDatabase) SweepExpired(now time.Time) []wire.GuidPrefix {
	d.mu.Lock()
	defer d.mu.Unlock()
	var expired []wire.GuidPrefix
	for prefix, p := range d.known {
		if now.After(p.deadline) {
			expired = append(expired, prefix)
		}
	}
	for _, prefix := range expired {
		delete(d.known, prefix)
	}
	return expired
}
