// Package transport implements the datagram transport RTPS runs over:
// UDP unicast and multicast sockets, wrapped behind a small interface so
// the protocol engines never touch net.UDPConn directly (spec.md §6).
//
// Grounded on sanket-sapate-arc-core's notification-service scheduler
// (packages wrapping a blocking recv loop behind a channel-friendly
// interface) and cdc-worker's use of a single long-lived connection for
// both reading and periodic acknowledgement writes — the model for this
// package's decision (DESIGN.md Open Question 1) to reuse the unicast
// receive socket for outgoing metatraffic sends instead of dialing a
// transient socket per send.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/arc-self/rtps/pkg/rtps/wire"
)

// Datagram is one received UDP payload plus the locator it arrived from.
type Datagram struct {
	From    wire.Locator
	Payload []byte
}

// Transport sends and receives RTPS datagrams. A single Transport may be
// shared by multiple protocol engines (spec.md §5: the unicast receive
// socket doubles as the send socket for metatraffic).
type Transport interface {
	// Send writes payload to every locator in dsts. Unreachable locators
	// are logged by the caller, not treated as fatal (spec.md §6).
	Send(dsts []wire.Locator, payload []byte) error
	// Recv blocks until a datagram arrives or ctx is done.
	Recv(ctx context.Context) (Datagram, error)
	// LocalLocator returns the locator this transport is bound to.
	LocalLocator() wire.Locator
	Close() error
}

// UDPTransport is the concrete UDP implementation of Transport.
type UDPTransport struct {
	conn  *net.UDPConn
	local wire.Locator
}

// NewUnicast binds a UDP socket on the given port (0 picks an ephemeral
// port) and returns a Transport over it.
func NewUnicast(port uint32) (*UDPTransport, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(port)})
	if err != nil {
		return nil, fmt.Errorf("transport: listen unicast udp: %w", err)
	}
	return newFromConn(conn)
}

// NewMulticast joins the given multicast group on the given port and
// returns a Transport receiving datagrams sent to that group.
func NewMulticast(group string, port uint32) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: int(port)}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: join multicast group %s:%d: %w", group, port, err)
	}
	return newFromConn(conn)
}

func newFromConn(conn *net.UDPConn) (*UDPTransport, error) {
	laddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("transport: unexpected local addr type %T", conn.LocalAddr())
	}
	a := laddr.IP.To4()
	var locator wire.Locator
	if a != nil {
		locator = wire.NewLocatorUDPv4(a[0], a[1], a[2], a[3], uint32(laddr.Port))
	} else {
		locator = wire.NewLocatorUDPv4(0, 0, 0, 0, uint32(laddr.Port))
	}
	return &UDPTransport{conn: conn, local: locator}, nil
}

// Send writes payload to every destination locator, best-effort: a
// failed write to one locator doesn't stop attempts to the others.
func (t *UDPTransport) Send(dsts []wire.Locator, payload []byte) error {
	var firstErr error
	for _, l := range dsts {
		a, b, c, d := l.IPv4()
		addr := &net.UDPAddr{IP: net.IPv4(a, b, c, d), Port: int(l.Port)}
		if _, err := t.conn.WriteToUDP(payload, addr); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("transport: send to %s: %w", addr, err)
		}
	}
	return firstErr
}

// Recv blocks until a datagram arrives or ctx is done. A fixed poll
// interval is used to re-check ctx.Done() around the blocking read,
// mirroring the ticker-driven cancellation pattern used by this
// implementation's periodic tasks (spec.md §5).
func (t *UDPTransport) Recv(ctx context.Context) (Datagram, error) {
	buf := make([]byte, 65536)
	for {
		select {
		case <-ctx.Done():
			return Datagram{}, ctx.Err()
		default:
		}
		t.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, raddr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return Datagram{}, fmt.Errorf("transport: recv: %w", err)
		}
		a := raddr.IP.To4()
		var from wire.Locator
		if a != nil {
			from = wire.NewLocatorUDPv4(a[0], a[1], a[2], a[3], uint32(raddr.Port))
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])
		return Datagram{From: from, Payload: payload}, nil
	}
}

// LocalLocator returns the locator this transport is bound to.
func (t *UDPTransport) LocalLocator() wire.Locator { return t.local }

// Close releases the underlying socket.
func (t *UDPTransport) Close() error { return t.conn.Close() }
