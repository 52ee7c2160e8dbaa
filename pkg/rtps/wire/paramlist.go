package wire

import "fmt"

// ParameterId identifies the semantic meaning of one entry in a
// ParameterList (spec.md §4.2): the CDR parameter-list encoding used by
// SPDP/SEDP discovery samples and DATA inline QoS.
type ParameterId uint16

// Well-known parameter IDs used by discovery and inline QoS (RTPS 2.4
// spec table 9.12, subset exercised by this implementation).
const (
	PidPad                     ParameterId = 0x0000
	PidSentinel                ParameterId = 0x0001
	PidParticipantGuid         ParameterId = 0x0050
	PidEndpointGuid            ParameterId = 0x005a
	PidGroupGuid               ParameterId = 0x0052
	PidTopicName               ParameterId = 0x0005
	PidTypeName                ParameterId = 0x0007
	PidProtocolVersion         ParameterId = 0x0015
	PidVendorId                ParameterId = 0x0016
	PidDefaultUnicastLocator   ParameterId = 0x0031
	PidDefaultMulticastLocator ParameterId = 0x0048
	PidMetatrafficUnicastLocator   ParameterId = 0x0032
	PidMetatrafficMulticastLocator ParameterId = 0x0033
	PidParticipantLeaseDuration    ParameterId = 0x0002
	PidBuiltinEndpointSet          ParameterId = 0x0058
	PidParticipantManualLivelinessCount ParameterId = 0x0034
	PidReliability              ParameterId = 0x001a
	PidDurability               ParameterId = 0x001d
	PidDeadline                 ParameterId = 0x0023
	PidLatencyBudget            ParameterId = 0x0027
	PidLiveliness               ParameterId = 0x001b
	PidOwnership                ParameterId = 0x001f
	PidOwnershipStrength        ParameterId = 0x0006
	PidDestinationOrder         ParameterId = 0x0025
	PidHistory                  ParameterId = 0x0040
	PidResourceLimits           ParameterId = 0x0041
	PidLifespan                 ParameterId = 0x002b
	PidPresentation              ParameterId = 0x0021
	PidPartition                 ParameterId = 0x0029
	PidKeyHash                   ParameterId = 0x0070
	PidStatusInfo                ParameterId = 0x0071
	PidDomainId                  ParameterId = 0x000f
	PidDomainTag                 ParameterId = 0x4014
)

// Parameter is one (id, value) entry of a ParameterList. Value is the raw
// CDR-encoded bytes of the parameter, already padded to a 4-byte
// boundary per the wire format; callers interested in structured QoS
// values decode Value themselves (pkg/rtps/qos).
type Parameter struct {
	Id    ParameterId
	Value []byte
}

// ParameterList is an ordered sequence of Parameters terminated on the
// wire by PID_SENTINEL. Used by SPDP/SEDP discovery data and DATA inline
// QoS (spec.md §4.2).
type ParameterList struct {
	Params []Parameter
}

// Len returns the number of parameters (not including the sentinel).
func (pl ParameterList) Len() int { return len(pl.Params) }

// Get returns the first parameter with the given id, if present.
func (pl ParameterList) Get(id ParameterId) ([]byte, bool) {
	for _, p := range pl.Params {
		if p.Id == id {
			return p.Value, true
		}
	}
	return nil, false
}

// Add appends a parameter, padding value to a 4-byte boundary.
func (pl *ParameterList) Add(id ParameterId, value []byte) {
	padded := value
	if rem := len(value) % 4; rem != 0 {
		padded = append(append([]byte(nil), value...), make([]byte, 4-rem)...)
	}
	pl.Params = append(pl.Params, Parameter{Id: id, Value: padded})
}

// DecodeParameterList reads parameters from r until PID_SENTINEL or the
// reader is exhausted. Unknown parameter ids are kept as opaque entries
// rather than rejected, per spec.md §4.2 ("unknown parameters must be
// preserved/ignored, not fatal").
func DecodeParameterList(r *Reader) (ParameterList, error) {
	var pl ParameterList
	for {
		if r.Remaining() < 4 {
			return pl, fmt.Errorf("wire: parameter list missing PID_SENTINEL")
		}
		idRaw, err := r.u16()
		if err != nil {
			return pl, err
		}
		length, err := r.u16()
		if err != nil {
			return pl, err
		}
		id := ParameterId(idRaw)
		if id == PidSentinel {
			return pl, nil
		}
		value, err := r.Bytes(int(length))
		if err != nil {
			return pl, fmt.Errorf("wire: parameter 0x%04x length %d: %w", idRaw, length, err)
		}
		pl.Params = append(pl.Params, Parameter{Id: id, Value: append([]byte(nil), value...)})
	}
}

// Encode appends the wire form of pl, including the terminating
// PID_SENTINEL, to w.
func (pl ParameterList) Encode(w *Writer) {
	for _, p := range pl.Params {
		w.u16(uint16(p.Id))
		w.u16(uint16(len(p.Value)))
		w.Raw(p.Value)
	}
	w.u16(uint16(PidSentinel))
	w.u16(0)
}
