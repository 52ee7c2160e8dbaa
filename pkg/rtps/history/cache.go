// Package history implements the per-endpoint HistoryCache (spec.md §3):
// the ordered store of samples a writer or reader keeps, bounded by the
// HISTORY QoS policy (KEEP_ALL or KEEP_LAST(depth)).
//
// Grounded on sanket-sapate-arc-core's cdc-worker receive loop, which
// keeps an in-memory ordered window of unacknowledged WAL positions —
// the same shape as a writer's unacknowledged-changes window, expressed
// here as a slice kept sorted by sequence number under a mutex rather
// than a channel, since callers need range/predicate queries a channel
// can't offer.
package history

import (
	"sync"

	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// ChangeKind classifies why a CacheChange exists (spec.md §3).
type ChangeKind int

const (
	ChangeAlive ChangeKind = iota
	ChangeNotAliveDisposed
	ChangeNotAliveUnregistered
)

// CacheChange is one sample held in a HistoryCache.
type CacheChange struct {
	Kind           ChangeKind
	WriterGuid     wire.GUID
	InstanceHandle [16]byte
	SequenceNumber wire.SequenceNumber
	SourceTimestamp wire.Time
	Data           []byte
}

// Cache is a thread-safe ordered store of CacheChanges, bounded per the
// HISTORY (and, for KEEP_LAST, per-instance) QoS policy.
type Cache struct {
	mu      sync.Mutex
	history qos.History
	limits  qos.ResourceLimits
	changes []CacheChange // kept sorted ascending by SequenceNumber
}

// New creates an empty Cache governed by the given HISTORY and
// RESOURCE_LIMITS policies.
func New(history qos.History, limits qos.ResourceLimits) *Cache {
	return &Cache{history: history, limits: limits}
}

// Add inserts a change in sequence-number order, evicting per the
// HISTORY policy: KEEP_ALL never evicts (bounded only by
// RESOURCE_LIMITS.MaxSamples); KEEP_LAST(depth) evicts the oldest change
// for the same instance once depth is exceeded (spec.md §3 edge cases).
func (c *Cache) Add(ch CacheChange) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Ordering is by SequenceNumber alone: cross-writer order is
	// unspecified anyway (spec.md §5), but a reader's cache aggregates
	// changes from every matched writer, so the no-duplicate invariant
	// is keyed on (WriterGuid, SequenceNumber), not SequenceNumber alone.
	i := 0
	for i < len(c.changes) && c.changes[i].SequenceNumber < ch.SequenceNumber {
		i++
	}
	for j := i; j < len(c.changes) && c.changes[j].SequenceNumber == ch.SequenceNumber; j++ {
		if c.changes[j].WriterGuid == ch.WriterGuid {
			c.changes[j] = ch
			return
		}
	}
	c.changes = append(c.changes, CacheChange{})
	copy(c.changes[i+1:], c.changes[i:])
	c.changes[i] = ch

	if c.history.Kind == qos.HistoryKeepLast {
		c.evictKeepLastLocked(ch.InstanceHandle)
	}
	if c.limits.MaxSamples > 0 && len(c.changes) > c.limits.MaxSamples {
		c.changes = c.changes[len(c.changes)-c.limits.MaxSamples:]
	}
}

func (c *Cache) evictKeepLastLocked(instance [16]byte) {
	depth := c.history.Depth
	if depth <= 0 {
		return
	}
	count := 0
	cutoff := -1
	for i := len(c.changes) - 1; i >= 0; i-- {
		if c.changes[i].InstanceHandle != instance {
			continue
		}
		count++
		if count > depth {
			cutoff = i
			break
		}
	}
	if cutoff < 0 {
		return
	}
	out := c.changes[:0]
	for i, ch := range c.changes {
		if i == cutoff && ch.InstanceHandle == instance {
			continue
		}
		out = append(out, ch)
	}
	c.changes = out
}

// RemoveBySequenceNumber deletes the change with the given sn, if present.
func (c *Cache) RemoveBySequenceNumber(sn wire.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.changes {
		if ch.SequenceNumber == sn {
			c.changes = append(c.changes[:i], c.changes[i+1:]...)
			return
		}
	}
}

// RemoveWhere deletes every change for which pred returns true.
func (c *Cache) RemoveWhere(pred func(CacheChange) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.changes[:0]
	for _, ch := range c.changes {
		if !pred(ch) {
			out = append(out, ch)
		}
	}
	c.changes = out
}

// Get returns the change with the given sn, if present.
func (c *Cache) Get(sn wire.SequenceNumber) (CacheChange, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.changes {
		if ch.SequenceNumber == sn {
			return ch, true
		}
	}
	return CacheChange{}, false
}

// Range returns every change with lo <= sn <= hi, ascending.
func (c *Cache) Range(lo, hi wire.SequenceNumber) []CacheChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []CacheChange
	for _, ch := range c.changes {
		if ch.SequenceNumber >= lo && ch.SequenceNumber <= hi {
			out = append(out, ch)
		}
	}
	return out
}

// All returns every change currently held, ascending by sn.
func (c *Cache) All() []CacheChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CacheChange, len(c.changes))
	copy(out, c.changes)
	return out
}

// MinMax returns the lowest and highest sequence numbers held, or
// (SequenceNumberUnknown, SequenceNumberUnknown) when empty.
func (c *Cache) MinMax() (wire.SequenceNumber, wire.SequenceNumber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.changes) == 0 {
		return wire.SequenceNumberUnknown, wire.SequenceNumberUnknown
	}
	return c.changes[0].SequenceNumber, c.changes[len(c.changes)-1].SequenceNumber
}

// Len returns the number of changes currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.changes)
}
