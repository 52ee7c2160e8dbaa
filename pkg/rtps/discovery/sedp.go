package discovery

import (
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// EndpointProxy is the common shape of a discovered writer or reader
// (spec.md §3: DiscoveredWriterData / DiscoveredReaderData).
type EndpointProxy struct {
	Guid            wire.GUID
	TopicName       string
	TypeName        string
	UnicastLocators   []wire.Locator
	MulticastLocators []wire.Locator
	Profile         qos.Profile
}

// DiscoveredTopicData is the public TopicBuiltinTopicData plus effective
// topic QoS (spec.md §3).
type DiscoveredTopicData struct {
	Guid      wire.GUID
	TopicName string
	TypeName  string
	Profile   qos.Profile
}

// EncodeEndpoint serializes a discovered writer/reader as a ParameterList.
func EncodeEndpoint(e EndpointProxy) wire.ParameterList {
	var pl wire.ParameterList
	pl.Add(wire.PidEndpointGuid, encodeGUID(e.Guid))
	pl.Add(wire.PidTopicName, encodeString(e.TopicName))
	pl.Add(wire.PidTypeName, encodeString(e.TypeName))
	for _, l := range e.UnicastLocators {
		pl.Add(wire.PidDefaultUnicastLocator, encodeLocator(l))
	}
	for _, l := range e.MulticastLocators {
		pl.Add(wire.PidDefaultMulticastLocator, encodeLocator(l))
	}
	encodeProfile(&pl, e.Profile)
	return pl
}

// DecodeEndpoint parses a ParameterList into a discovered writer/reader.
// Malformed individual parameters are skipped (spec.md §7).
func DecodeEndpoint(pl wire.ParameterList) EndpointProxy {
	var e EndpointProxy
	if v, ok := pl.Get(wire.PidEndpointGuid); ok && len(v) >= 16 {
		e.Guid = decodeGUID(v)
	}
	if v, ok := pl.Get(wire.PidTopicName); ok {
		e.TopicName = decodeString(v)
	}
	if v, ok := pl.Get(wire.PidTypeName); ok {
		e.TypeName = decodeString(v)
	}
	for _, param := range pl.Params {
		switch param.Id {
		case wire.PidDefaultUnicastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				e.UnicastLocators = append(e.UnicastLocators, l)
			}
		case wire.PidDefaultMulticastLocator:
			if l, ok := decodeLocator(param.Value); ok {
				e.MulticastLocators = append(e.MulticastLocators, l)
			}
		}
	}
	e.Profile = decodeProfile(pl)
	return e
}

// EncodeTopic serializes a locally-owned topic's discovery data as a
// ParameterList (spec.md §3 DiscoveredTopicData, published on the
// built-in topics-announcer endpoint by create_topic).
func EncodeTopic(t DiscoveredTopicData) wire.ParameterList {
	var pl wire.ParameterList
	pl.Add(wire.PidEndpointGuid, encodeGUID(t.Guid))
	pl.Add(wire.PidTopicName, encodeString(t.TopicName))
	pl.Add(wire.PidTypeName, encodeString(t.TypeName))
	encodeProfile(&pl, t.Profile)
	return pl
}

// DecodeTopic parses a ParameterList into a DiscoveredTopicData. Malformed
// individual parameters are skipped (spec.md §7).
func DecodeTopic(pl wire.ParameterList) DiscoveredTopicData {
	var t DiscoveredTopicData
	if v, ok := pl.Get(wire.PidEndpointGuid); ok && len(v) >= 16 {
		t.Guid = decodeGUID(v)
	}
	if v, ok := pl.Get(wire.PidTopicName); ok {
		t.TopicName = decodeString(v)
	}
	if v, ok := pl.Get(wire.PidTypeName); ok {
		t.TypeName = decodeString(v)
	}
	t.Profile = decodeProfile(pl)
	return t
}

func encodeGUID(g wire.GUID) []byte {
	w := wire.NewWriter(false)
	w.WriteGUID(g)
	return w.Bytes()
}

func decodeGUID(b []byte) wire.GUID {
	r := wire.NewReader(b, false)
	g, _ := r.ReadGUID()
	return g
}

func encodeString(s string) []byte {
	b := []byte(s)
	out := make([]byte, 4+len(b)+1)
	n := uint32(len(b) + 1)
	out[0], out[1], out[2], out[3] = byte(n>>24), byte(n>>16), byte(n>>8), byte(n)
	copy(out[4:], b)
	return out
}

func decodeString(b []byte) string {
	if len(b) < 4 {
		return ""
	}
	n := decodeU32(b[:4])
	if n == 0 || int(4+n) > len(b)+1 {
		return ""
	}
	end := 4 + int(n) - 1
	if end > len(b) {
		end = len(b)
	}
	return string(b[4:end])
}

// encodeProfile flattens the subset of QoS policies relevant to endpoint
// matching (spec.md §4.5) into the parameter list.
func encodeProfile(pl *wire.ParameterList, p qos.Profile) {
	pl.Add(wire.PidReliability, []byte{byte(p.Reliability.Kind)})
	pl.Add(wire.PidDurability, []byte{byte(p.Durability.Kind)})
	pl.Add(wire.PidOwnership, []byte{byte(p.Ownership.Kind)})
	pl.Add(wire.PidDestinationOrder, []byte{byte(p.DestinationOrder.Kind)})
	pl.Add(wire.PidLiveliness, []byte{byte(p.Liveliness.Kind)})
	pl.Add(wire.PidDeadline, encodeDuration(p.Deadline.Period))
	pl.Add(wire.PidLatencyBudget, encodeDuration(p.LatencyBudget.Duration))
}

func decodeProfile(pl wire.ParameterList) qos.Profile {
	p := qos.Default()
	if v, ok := pl.Get(wire.PidReliability); ok && len(v) >= 1 {
		p.Reliability.Kind = qos.ReliabilityKind(v[0])
	}
	if v, ok := pl.Get(wire.PidDurability); ok && len(v) >= 1 {
		p.Durability.Kind = qos.DurabilityKind(v[0])
	}
	if v, ok := pl.Get(wire.PidOwnership); ok && len(v) >= 1 {
		p.Ownership.Kind = qos.OwnershipKind(v[0])
	}
	if v, ok := pl.Get(wire.PidDestinationOrder); ok && len(v) >= 1 {
		p.DestinationOrder.Kind = qos.DestinationOrderKind(v[0])
	}
	if v, ok := pl.Get(wire.PidLiveliness); ok && len(v) >= 1 {
		p.Liveliness.Kind = qos.LivelinessKind(v[0])
	}
	if v, ok := pl.Get(wire.PidDeadline); ok && len(v) >= 8 {
		p.Deadline.Period = decodeDuration(v)
	}
	if v, ok := pl.Get(wire.PidLatencyBudget); ok && len(v) >= 8 {
		p.LatencyBudget.Duration = decodeDuration(v)
	}
	return p
}
