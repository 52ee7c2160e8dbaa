// Package discovery implements SPDP (participant discovery) and SEDP
// (endpoint discovery), including the QoS-compatibility matcher that
// turns discovery samples into matched proxies, and the discovered-
// participant database with lease-expiry cascading removal (spec.md
// §3/§4.5).
//
// Grounded on sanket-sapate-arc-core's discovery-service
// (cmd/api/scan_poller.go): a periodic poller that refreshes a registry
// of known peers and expires stale ones on a lease timer — the direct
// model for this package's ParticipantDatabase.
package discovery

import (
	"time"

	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// ParticipantProxy is the decoded form of an SpdpDiscoveredParticipantData
// sample (spec.md §3).
type ParticipantProxy struct {
	GuidPrefix               wire.GuidPrefix
	ProtocolVersion          wire.ProtocolVersion
	VendorId                 wire.VendorId
	DomainId                 uint32
	DomainTag                string
	MetatrafficUnicastLocators   []wire.Locator
	MetatrafficMulticastLocators []wire.Locator
	DefaultUnicastLocators       []wire.Locator
	DefaultMulticastLocators     []wire.Locator
	BuiltinEndpointSet       uint32
	ManualLivelinessCount    wire.Count
	LeaseDuration            time.Duration
}

// BuiltinEndpointSet bits (RTPS 2.4 spec table 9.14, subset used here).
const (
	BuiltinDisabled                       uint32 = 0
	BuiltinParticipantDetector             uint32 = 1 << 0
	BuiltinParticipantAnnouncer             uint32 = 1 << 1
	BuiltinPublicationsAnnouncer            uint32 = 1 << 2
	BuiltinPublicationsDetector             uint32 = 1 << 3
	BuiltinSubscriptionsAnnouncer           uint32 = 1 << 4
	BuiltinSubscriptionsDetector            uint32 = 1 << 5
	BuiltinTopicsAnnouncer                  uint32 = 1 << 6
	BuiltinTopicsDetector                   uint32 = 1 << 7
)

// DefaultBuiltinEndpointSet is what this implementation always advertises:
// it runs all six built-in SEDP endpoints plus SPDP.
const DefaultBuiltinEndpointSet = BuiltinParticipantAnnouncer | BuiltinParticipantDetector |
	BuiltinPublicationsAnnouncer | BuiltinPublicationsDetector |
	BuiltinSubscriptionsAnnouncer | BuiltinSubscriptionsDetector |
	BuiltinTopicsAnnouncer | BuiltinTopicsDetector

// EncodeSPDP serializes p as a ParameterList (spec.md §3/§4.5).
func EncodeSPDP(p ParticipantProxy) wire.ParameterList {
	var pl wire.ParameterList
	pl.Add(wire.PidParticipantGuid, encodeGuidPrefix(p.GuidPrefix))
	pl.Add(wire.PidProtocolVersion, []byte{p.ProtocolVersion.Major, p.ProtocolVersion.Minor})
	pl.Add(wire.PidVendorId, []byte{p.VendorId[0], p.VendorId[1]})
	for _, l := range p.MetatrafficUnicastLocators {
		pl.Add(wire.PidMetatrafficUnicastLocator, encodeLocator(l))
	}
	for _, l := range p.MetatrafficMulticastLocators {
		pl.Add(wire.PidMetatrafficMulticastLocator, encodeLocator(l))
	}
	for _, l := range p.DefaultUnicastLocators {
		pl.Add(wire.PidDefaultUnicastLocator, encodeLocator(l))
	}
	for _, l := range p.DefaultMulticastLocators {
		pl.Add(wire.PidDefaultMulticastLocator, encodeLocator(l))
	}
	pl.Add(wire.PidBuiltinEndpointSet, encodeU32(p.BuiltinEndpointSet))
	pl.Add(wire.PidParticipantManualLivelinessCount, encodeU32(uint32(p.ManualLivelinessCount)))
	pl.Add(wire.PidParticipantLeaseDuration, encodeDuration(p.LeaseDuration))
	pl.Add(wire.PidDomainId, encodeU32(p.DomainId))
	if p.DomainTag != "" {
		pl.Add(wire.PidDomainTag, encodeString(p.DomainTag))
	}
	return pl
}

// DecodeSPDP parses a ParameterList into a ParticipantProxy. Unknown or
// malformed individual parameters are skipped rather than failing the
// whole sample (spec.md §7: discovery parsing is best-effort).
func DecodeSPDP(pl wire.ParameterList) ParticipantProxy {
	var p ParticipantProxy
	if v, ok := pl.Get(wire.PidParticipantGuid); ok && len(v) >= 12 {
		copy(p.GuidPrefix[:], v[:12])
	}
	if v, ok := pl.Get(wire.PidProtocolVersion); ok && len(v) >= 2 {
		p.ProtocolVersion = wire.ProtocolVersion{Major: v[0], Minor: v[1]}
	}
	if v, ok := pl.Get(wire.PidVendorId); ok && len(v) >= 2 {
		p.VendorId = wire.VendorId{v[0], v[1]}
	}
	for _, param := range pl.Params {
		switch param.Id {
		case wire.PidMetatrafficUnicastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				p.MetatrafficUnicastLocators = append(p.MetatrafficUnicastLocators, l)
			}
		case wire.PidMetatrafficMulticastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				p.MetatrafficMulticastLocators = append(p.MetatrafficMulticastLocators, l)
			}
		case wire.PidDefaultUnicastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				p.DefaultUnicastLocators = append(p.DefaultUnicastLocators, l)
			}
		case wire.PidDefaultMulticastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				p.DefaultMulticastLocators = append(p.DefaultMulticastLocators, l)
			}
		case wire.PidBuiltinEndpointSet:
			if len(param.Value) >= 4 {
				p.BuiltinEndpointSet = decodeU32(param.Value)
			}
		case wire.PidParticipantManualLivelinessCount:
			if len(param.Value) >= 4 {
				p.ManualLivelinessCount = wire.Count(decodeU32(param.Value))
			}
		case wire.PidParticipantLeaseDuration:
			if len(param.Value) >= 8 {
				p.LeaseDuration = decodeDuration(param.Value)
			}
		case wire.PidDomainId:
			if len(param.Value) >= 4 {
				p.DomainId = decodeU32(param.Value)
			}
		case wire.PidDomainTag:
			p.DomainTag = decodeString(param.Value)
		}
	}
	return p
}

func encodeGuidPrefix(p wire.GuidPrefix) []byte { return append([]byte(nil), p[:]...) }

func encodeLocator(l wire.Locator) []byte {
	w := wire.NewWriter(false)
	w.WriteLocator(l)
	return w.Bytes()
}

func decodeLocator(b []byte) (wire.Locator, bool) {
	r := wire.NewReader(b, false)
	l, err := r.ReadLocator()
	if err != nil {
		return wire.Locator{}, false
	}
	return l, true
}

func encodeU32(v uint32) []byte {
	w := wire.NewWriter(false)
	return append(w.Bytes(), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func decodeU32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func encodeDuration(d time.Duration) []byte {
	sec := int32(d / time.Second)
	frac := uint32((d % time.Second) * (1 << 32) / time.Second)
	w := wire.NewWriter(false)
	w.WriteTime(wire.Time{Seconds: sec, Fraction: frac})
	return w.Bytes()
}

func decodeDuration(b []byte) time.Duration {
	r := wire.NewReader(b, false)
	t, err := r.ReadTime()
	if err != nil {
		return 0
	}
	return time.Duration(t.Seconds)*time.Second + time.Duration(t.Fraction)*time.Second/(1<<32)
}
