package dds

import "sync"

// StatusKind enumerates the status conditions every reader/writer must
// maintain (spec.md §7).
type StatusKind int

const (
	DataAvailable StatusKind = iota
	SampleLost
	SampleRejected
	LivelinessChanged
	RequestedDeadlineMissed
	RequestedIncompatibleQos
	SubscriptionMatched
	OfferedDeadlineMissed
	OfferedIncompatibleQos
	LivelinessLost
	PublicationMatched
)

// Status is one status condition's count, reset on read (spec.md §7:
// "each has a count and count_change that resets on status read").
type Status struct {
	mu          sync.Mutex
	totalCount  int32
	lastReadCount int32
}

// Increment bumps the total count, e.g. on a new SubscriptionMatched
// event.
func (s *Status) Increment() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalCount++
}

// Read returns (total_count, count_change) and resets count_change to 0.
func (s *Status) Read() (total, change int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total = s.totalCount
	change = s.totalCount - s.lastReadCount
	s.lastReadCount = s.totalCount
	return total, change
}

// StatusSet holds every status condition an entity maintains, indexed
// by StatusKind.
type StatusSet struct {
	mu   sync.Mutex
	byKind map[StatusKind]*Status
}

// NewStatusSet creates a StatusSet with every kind pre-allocated at zero.
func NewStatusSet(kinds ...StatusKind) *StatusSet {
	s := &StatusSet{byKind: make(map[StatusKind]*Status, len(kinds))}
	for _, k := range kinds {
		s.byKind[k] = &Status{}
	}
	return s
}

// Signal increments the named status, creating it if this entity didn't
// pre-declare it (defensive: all entities should pre-declare via
// NewStatusSet).
func (s *StatusSet) Signal(k StatusKind) {
	s.mu.Lock()
	st, ok := s.byKind[k]
	if !ok {
		st = &Status{}
		s.byKind[k] = st
	}
	s.mu.Unlock()
	st.Increment()
}

// Read returns the (total, change) pair for k.
func (s *StatusSet) Read(k StatusKind) (total, change int32) {
	s.mu.Lock()
	st, ok := s.byKind[k]
	s.mu.Unlock()
	if !ok {
		return 0, 0
	}
	return st.Read()
}
