package participant

import (
	"time"

	"github.com/arc-self/rtps/pkg/dds"
	"github.com/arc-self/rtps/pkg/rtps/discovery"
	"github.com/arc-self/rtps/pkg/rtps/history"
	"github.com/arc-self/rtps/pkg/rtps/qos"
	"github.com/arc-self/rtps/pkg/rtps/reader"
	"github.com/arc-self/rtps/pkg/rtps/receiver"
	"github.com/arc-self/rtps/pkg/rtps/wire"
	"github.com/arc-self/rtps/pkg/rtps/writer"
)

// allocEntityId mints a fresh user entity id from a counter starting at
// 1. Its key may equal a built-in entity key (spec.md §6: built-ins
// occupy the low, well-known keys); the user entity kind keeps the
// EntityId as a whole distinct from every built-in one.
func (p *Participant) allocEntityId(kind wire.EntityKind) wire.EntityId {
	p.mu.Lock()
	p.nextEntityKey++
	n := p.nextEntityKey
	p.mu.Unlock()
	return wire.EntityId{Key: [3]byte{byte(n >> 16), byte(n >> 8), byte(n)}, Kind: kind}
}

func guidToInstanceHandle(g wire.GUID) [16]byte {
	var h [16]byte
	copy(h[:12], g.Prefix[:])
	copy(h[12:15], g.EntityId.Key[:])
	h[15] = byte(g.EntityId.Kind)
	return h
}

func toRTPSTime(t time.Time) wire.Time {
	sec := t.Unix()
	frac := uint32((uint64(t.Nanosecond()) << 32) / 1e9)
	return wire.Time{Seconds: int32(sec), Fraction: frac}
}

// CreateTopic registers a new Topic and announces it on the built-in
// topics endpoint so find_topic can discover it from a remote
// participant (spec.md §4.6 create_topic, §3 DiscoveredTopicData).
func (p *Participant) CreateTopic(name string, ts dds.TypeSupport, profile qos.Profile) *dds.Topic {
	guid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: p.allocEntityId(wire.EntityKindUserWriterNoKey)}
	t := &dds.Topic{Guid: guid, Name: name, Type: ts, Profile: profile}
	t.Enable()
	p.mu.Lock()
	p.topics[guid] = t
	p.mu.Unlock()

	pl := discovery.EncodeTopic(discovery.DiscoveredTopicData{
		Guid: guid, TopicName: name, TypeName: ts.TypeName, Profile: profile,
	})
	w := wire.NewWriter(true)
	pl.Encode(w)
	p.sedpTopic.writer.Write(guidToInstanceHandle(guid), w.Bytes(), toRTPSTime(time.Now()))
	return t
}

// CreatePublisher creates a new Publisher (spec.md §4.6 create_publisher).
func (p *Participant) CreatePublisher(profile qos.Profile) *dds.Publisher {
	guid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: p.allocEntityId(wire.EntityKindUserWriterNoKey)}
	pub := dds.NewPublisher(guid, profile)
	pub.Enable()
	p.mu.Lock()
	p.publishers[guid] = pub
	p.mu.Unlock()
	return pub
}

// CreateSubscriber creates a new Subscriber (spec.md §4.6 create_subscriber).
func (p *Participant) CreateSubscriber(profile qos.Profile) *dds.Subscriber {
	guid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: p.allocEntityId(wire.EntityKindUserReaderNoKey)}
	sub := dds.NewSubscriber(guid, profile)
	sub.Enable()
	p.mu.Lock()
	p.subscribers[guid] = sub
	p.mu.Unlock()
	return sub
}

// CreateDataWriter builds a protocol engine for topic (stateful if
// profile is RELIABLE, stateless if BEST_EFFORT), wires it into the
// receive-dispatch and SEDP-matching tables, publishes a
// DiscoveredWriterData sample, and returns the DCPS-facing DataWriter
// (spec.md §4.6 create_datawriter).
func (p *Participant) CreateDataWriter(pub *dds.Publisher, topic *dds.Topic, profile qos.Profile) *dds.DataWriter {
	kind := wire.EntityKindUserWriterNoKey
	if topic.Type.KeyOf != nil {
		kind = wire.EntityKindUserWriterWithKey
	}
	entityId := p.allocEntityId(kind)
	guid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: entityId}
	cache := history.New(profile.History, profile.ResourceLimits)
	now := func() wire.Time { return toRTPSTime(time.Now()) }

	uw := &userWriter{info: discovery.LocalEndpointInfo{
		Guid: guid, TopicName: topic.Name, TypeName: topic.Type.TypeName, Profile: profile,
		UnicastLocators: []wire.Locator{p.defaultTransport.LocalLocator()},
	}}

	var dw *dds.DataWriter
	if profile.Reliability.Kind == qos.Reliable {
		sw := writer.NewStatefulWriter(guid, profile, cache, p.defaultSender, p.Config.FragmentSize, p.Log)
		uw.stateful = sw
		p.mu.Lock()
		p.writerTargets[entityId] = sw
		p.mu.Unlock()
		dw = dds.NewDataWriter(guid, topic, profile, dds.NewStatefulWriterEngine(sw), now)
	} else {
		sw := writer.NewStatelessWriter(guid, p.defaultSender, nil)
		uw.stateless = sw
		dw = dds.NewDataWriter(guid, topic, profile, dds.NewStatelessWriterEngine(sw), now)
	}

	p.mu.Lock()
	p.userWriters[entityId] = uw
	p.mu.Unlock()

	dw.Enable()
	pub.AddWriter(dw)

	p.publishEndpointDiscovery(p.sedpPub.writer, discovery.EndpointProxy{
		Guid: guid, TopicName: topic.Name, TypeName: topic.Type.TypeName,
		UnicastLocators: uw.info.UnicastLocators, Profile: profile,
	})
	return dw
}

// CreateDataReader builds a protocol engine for topic (stateful if
// profile is RELIABLE, stateless if BEST_EFFORT), wires it into the
// receive-dispatch and SEDP-matching tables, publishes a
// DiscoveredReaderData sample, and returns the DCPS-facing DataReader
// (spec.md §4.6 create_datareader).
func (p *Participant) CreateDataReader(sub *dds.Subscriber, topic *dds.Topic, profile qos.Profile) *dds.DataReader {
	kind := wire.EntityKindUserReaderNoKey
	if topic.Type.KeyOf != nil {
		kind = wire.EntityKindUserReaderWithKey
	}
	entityId := p.allocEntityId(kind)
	guid := wire.GUID{Prefix: p.Guid.Prefix, EntityId: entityId}
	cache := history.New(profile.History, profile.ResourceLimits)

	dr := dds.NewDataReader(guid, topic, profile, cache)
	dr.Enable()
	sub.AddReader(dr)

	ur := &userReader{info: discovery.LocalEndpointInfo{
		Guid: guid, TopicName: topic.Name, TypeName: topic.Type.TypeName, Profile: profile,
		UnicastLocators: []wire.Locator{p.defaultTransport.LocalLocator()},
	}}

	target := dr.OnDataHandler()
	if profile.Reliability.Kind == qos.Reliable {
		sr := reader.NewStatefulReader(guid, profile, cache, p.defaultSender, target, p.Log)
		ur.stateful = sr
		p.mu.Lock()
		p.readerTargets[entityId] = sr
		p.mu.Unlock()
	} else {
		sr := reader.NewStatelessReader(guid, cache, target)
		ur.stateless = sr
		p.mu.Lock()
		p.readerTargets[entityId] = sr
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.userReaders[entityId] = ur
	p.mu.Unlock()

	p.publishEndpointDiscovery(p.sedpSub.writer, discovery.EndpointProxy{
		Guid: guid, TopicName: topic.Name, TypeName: topic.Type.TypeName,
		UnicastLocators: ur.info.UnicastLocators, Profile: profile,
	})
	return dr
}

func (p *Participant) publishEndpointDiscovery(sedpWriter *writer.StatefulWriter, ep discovery.EndpointProxy) {
	pl := discovery.EncodeEndpoint(ep)
	w := wire.NewWriter(true)
	pl.Encode(w)
	sedpWriter.Write(guidToInstanceHandle(ep.Guid), w.Bytes(), toRTPSTime(time.Now()))
}

// --- receiver.EntityLookup ---

// ReaderByEntityId resolves a locally-owned reader engine by entity id,
// covering both the built-in SPDP reader and every user-defined reader.
func (p *Participant) ReaderByEntityId(id wire.EntityId) (receiver.ReaderTarget, bool) {
	if id == wire.EntityIdSPDPReader {
		return p.spdpReader, true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.readerTargets[id]
	return t, ok
}

// WriterByEntityId resolves a locally-owned writer engine by entity id.
func (p *Participant) WriterByEntityId(id wire.EntityId) (receiver.WriterTarget, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	t, ok := p.writerTargets[id]
	return t, ok
}

// AllReaders returns every reader this participant owns, built-in and
// user-defined, for ENTITYID_UNKNOWN fan-out (spec.md §4.1).
func (p *Participant) AllReaders() []receiver.ReaderTarget {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]receiver.ReaderTarget, 0, len(p.readerTargets)+1)
	out = append(out, p.spdpReader)
	for _, t := range p.readerTargets {
		out = append(out, t)
	}
	return out
}

// AllWriters returns every writer this participant owns, built-in and
// user-defined, for ENTITYID_UNKNOWN fan-out.
func (p *Participant) AllWriters() []receiver.WriterTarget {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]receiver.WriterTarget, 0, len(p.writerTargets))
	for _, t := range p.writerTargets {
		out = append(out, t)
	}
	return out
}
