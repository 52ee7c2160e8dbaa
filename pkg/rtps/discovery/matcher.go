package discovery

import (
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// LocalEndpointInfo is the subset of a local DataWriter/DataReader's
// identity the matcher needs: it deliberately doesn't depend on
// package writer/reader so discovery stays free of a dependency on the
// DCPS layer that owns those concrete types (spec.md §4.5).
type LocalEndpointInfo struct {
	Guid              wire.GUID
	TopicName         string
	TypeName          string
	Profile           qos.Profile
	UnicastLocators   []wire.Locator
	MulticastLocators []wire.Locator
}

// Match pairs one local endpoint with one discovered remote endpoint,
// with the QoS verdict that decided whether they should be connected.
type Match struct {
	Local           LocalEndpointInfo
	Remote          EndpointProxy
	Incompatibility qos.Incompatibility
}

// MatchWriterToReaders evaluates a local writer against every discovered
// remote reader on the same topic/type, offered=writer QoS,
// requested=reader QoS (spec.md §4.5 RxO compatibility).
func MatchWriterToReaders(local LocalEndpointInfo, remoteReaders []EndpointProxy) []Match {
	var out []Match
	for _, r := range remoteReaders {
		if r.TopicName != local.TopicName || r.TypeName != local.TypeName {
			continue
		}
		out = append(out, Match{
			Local:           local,
			Remote:          r,
			Incompatibility: qos.CheckCompatible(local.Profile, r.Profile),
		})
	}
	return out
}

// MatchReaderToWriters evaluates a local reader against every discovered
// remote writer on the same topic/type, offered=writer QoS,
// requested=reader QoS.
func MatchReaderToWriters(local LocalEndpointInfo, remoteWriters []EndpointProxy) []Match {
	var out []Match
	for _, w := range remoteWriters {
		if w.TopicName != local.TopicName || w.TypeName != local.TypeName {
			continue
		}
		out = append(out, Match{
			Local:           local,
			Remote:          w,
			Incompatibility: qos.CheckCompatible(w.Profile, local.Profile),
		})
	}
	return out
}
