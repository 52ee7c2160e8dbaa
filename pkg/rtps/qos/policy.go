// Package qos implements the DDS QoS policy types and the reader/writer
// compatibility rules of spec.md §4.5.
//
// Grounded on sanket-sapate-arc-core's config layer
// (packages/go-core/config) for the "plain struct + Validate()" shape —
// QoS policies are expressed the same way as that package's
// configuration structs, not as a generic key/value bag.
package qos

import "time"

// ReliabilityKind selects at-most-once vs reliable delivery.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// Reliability is the RELIABILITY QoS policy.
type Reliability struct {
	Kind          ReliabilityKind
	MaxBlockingTime time.Duration
}

// DurabilityKind selects whether late-joining readers receive history.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// Durability is the DURABILITY QoS policy.
type Durability struct {
	Kind DurabilityKind
}

// Deadline is the DEADLINE QoS policy: the maximum expected period
// between samples of the same instance.
type Deadline struct {
	Period time.Duration // 0 means infinite
}

// LatencyBudget is the LATENCY_BUDGET QoS policy, a non-binding hint.
type LatencyBudget struct {
	Duration time.Duration
}

// LivelinessKind selects how liveliness is asserted.
type LivelinessKind int

const (
	Automatic LivelinessKind = iota
	ManualByParticipant
	ManualByTopic
)

// Liveliness is the LIVELINESS QoS policy.
type Liveliness struct {
	Kind       LivelinessKind
	LeaseDuration time.Duration // 0 means infinite
}

// OwnershipKind selects shared vs exclusive instance ownership.
type OwnershipKind int

const (
	Shared OwnershipKind = iota
	Exclusive
)

// Ownership is the OWNERSHIP QoS policy.
type Ownership struct {
	Kind OwnershipKind
}

// OwnershipStrength breaks ties between EXCLUSIVE-ownership writers.
type OwnershipStrength struct {
	Value int32
}

// DestinationOrderKind selects how a reader orders samples of the same
// instance received from different writers.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// DestinationOrder is the DESTINATION_ORDER QoS policy.
type DestinationOrder struct {
	Kind DestinationOrderKind
}

// HistoryKind selects how many samples per instance a cache retains.
type HistoryKind int

const (
	HistoryKeepLast HistoryKind = iota
	HistoryKeepAll
)

// History is the HISTORY QoS policy.
type History struct {
	Kind  HistoryKind
	Depth int // meaningful only when Kind == HistoryKeepLast
}

// ResourceLimits is the RESOURCE_LIMITS QoS policy.
type ResourceLimits struct {
	MaxSamples             int // 0 means unbounded
	MaxInstances           int
	MaxSamplesPerInstance  int
}

// Lifespan is the LIFESPAN QoS policy: how long a sample remains valid
// after being written.
type Lifespan struct {
	Duration time.Duration // 0 means infinite
}

// PresentationAccessScope selects the granularity at which a subscriber
// presents coherent/ordered changes.
type PresentationAccessScope int

const (
	InstancePresentation PresentationAccessScope = iota
	TopicPresentation
	GroupPresentation
)

// Presentation is the PRESENTATION QoS policy.
type Presentation struct {
	AccessScope PresentationAccessScope
	CoherentAccess bool
	OrderedAccess  bool
}

// Partition is the PARTITION QoS policy: the set of partition name
// expressions an endpoint belongs to.
type Partition struct {
	Names []string
}

// Profile bundles every policy attached to a DataWriter or DataReader
// (spec.md §4.4/§4.5). Default() returns the RTPS default profile:
// BEST_EFFORT, VOLATILE, KEEP_LAST(1), SHARED ownership. The zero-value
// Profile differs from it only in History.Depth, which is 0.
type Profile struct {
	Reliability       Reliability
	Durability        Durability
	Deadline          Deadline
	LatencyBudget     LatencyBudget
	Liveliness        Liveliness
	Ownership         Ownership
	OwnershipStrength OwnershipStrength
	DestinationOrder  DestinationOrder
	History           History
	ResourceLimits    ResourceLimits
	Lifespan          Lifespan
	Partition         Partition
}

// Default returns the RTPS built-in default Profile (spec.md §4.4).
func Default() Profile {
	return Profile{
		History: History{Kind: HistoryKeepLast, Depth: 1},
	}
}

// MutableAfterEnable reports whether policy p may be changed with
// set_qos after the owning entity has been enabled (spec.md §4.5). Only
// a handful of policies are mutable post-enable in DDS; the rest return
// IMMUTABLE_POLICY if changed.
func MutableAfterEnable(policyName string) bool {
	switch policyName {
	case "Deadline", "LatencyBudget", "OwnershipStrength", "Partition", "Lifespan":
		return true
	default:
		return false
	}
}

// Incompatibility enumerates which policy made a writer/reader pair
// incompatible (spec.md §4.5).
type Incompatibility int

const (
	Compatible Incompatibility = iota
	IncompatibleReliability
	IncompatibleDurability
	IncompatibleDeadline
	IncompatibleLiveliness
	IncompatibleDestinationOrder
	IncompatibleOwnership
	IncompatibleLatencyBudget
)

func (i Incompatibility) String() string {
	switch i {
	case Compatible:
		return "COMPATIBLE"
	case IncompatibleReliability:
		return "RELIABILITY"
	case IncompatibleDurability:
		return "DURABILITY"
	case IncompatibleDeadline:
		return "DEADLINE"
	case IncompatibleLiveliness:
		return "LIVELINESS"
	case IncompatibleDestinationOrder:
		return "DESTINATION_ORDER"
	case IncompatibleOwnership:
		return "OWNERSHIP"
	case IncompatibleLatencyBudget:
		return "LATENCY_BUDGET"
	default:
		return "UNKNOWN"
	}
}

// CheckCompatible applies the RxO (request/offered) compatibility rules
// of spec.md §4.5: a reader (requested) may match a writer (offered)
// only if, for each ordered policy, the offered value is "at least as
// strong" as the requested value. Returns Compatible when every check
// passes, otherwise the first failing policy.
func CheckCompatible(offered, requested Profile) Incompatibility {
	if requested.Reliability.Kind == Reliable && offered.Reliability.Kind == BestEffort {
		return IncompatibleReliability
	}
	if !durabilityAtLeast(offered.Durability.Kind, requested.Durability.Kind) {
		return IncompatibleDurability
	}
	if requested.Deadline.Period > 0 {
		if offered.Deadline.Period == 0 || offered.Deadline.Period > requested.Deadline.Period {
			return IncompatibleDeadline
		}
	}
	if requested.LatencyBudget.Duration > 0 {
		if offered.LatencyBudget.Duration > requested.LatencyBudget.Duration {
			return IncompatibleLatencyBudget
		}
	}
	if requested.Liveliness.Kind > offered.Liveliness.Kind {
		return IncompatibleLiveliness
	}
	if requested.Liveliness.LeaseDuration > 0 {
		if offered.Liveliness.LeaseDuration == 0 || offered.Liveliness.LeaseDuration > requested.Liveliness.LeaseDuration {
			return IncompatibleLiveliness
		}
	}
	if requested.DestinationOrder.Kind > offered.DestinationOrder.Kind {
		return IncompatibleDestinationOrder
	}
	if requested.Ownership.Kind != offered.Ownership.Kind {
		return IncompatibleOwnership
	}
	return Compatible
}

func durabilityAtLeast(offered, requested DurabilityKind) bool {
	return offered >= requested
}
