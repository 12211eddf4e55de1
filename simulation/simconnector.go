// Package simulation provides an in-memory ConnProvider so the probe
// exchange can be exercised deterministically, without sockets or kernel
// timestamping support.
package simulation

import (
	"errors"
	"net"
	"net/netip"
	"sync"
	"time"

	"go.uber.org/zap"

	"example.com/probed/base/netbase"
)

var simHost = netip.MustParseAddr("::1")

var (
	errAddrInUse   = errors.New("simulated address already in use")
	errBacklogFull = errors.New("simulated listener backlog full")
)

// SimConnector routes packets between simulated connections through an
// in-memory bus. Setting TXTimestampErr makes every error-queue fetch fail,
// which models kernel timestamping being active on a different interface
// than the one traffic egresses on.
type SimConnector struct {
	Log            *zap.Logger
	TXTimestampErr error

	mu        sync.Mutex
	conns     map[netip.AddrPort]*SimConnection
	nextPort  uint16
	txCounter uint32
}

func NewSimConnector(log *zap.Logger) *SimConnector {
	return &SimConnector{
		Log:      log,
		conns:    make(map[netip.AddrPort]*SimConnection),
		nextPort: 10000,
	}
}

func (s *SimConnector) listen(port uint16) (*SimConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if port == 0 {
		for {
			port = s.nextPort
			s.nextPort++
			if _, ok := s.conns[netip.AddrPortFrom(simHost, port)]; !ok {
				break
			}
		}
	}
	laddr := netip.AddrPortFrom(simHost, port)
	if _, ok := s.conns[laddr]; ok {
		return nil, errAddrInUse
	}
	c := &SimConnection{
		Log:       s.Log,
		connector: s,
		laddr:     laddr,
		input:     make(chan simPacket, 16),
		done:      make(chan struct{}),
	}
	s.conns[laddr] = c
	return c, nil
}

func (s *SimConnector) drop(laddr netip.AddrPort) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, laddr)
}

func (s *SimConnector) route(pkt simPacket) {
	s.mu.Lock()
	dst, ok := s.conns[pkt.target]
	s.mu.Unlock()
	if !ok {
		// Datagram to nowhere, dropped like the real network would.
		return
	}
	select {
	case dst.input <- pkt:
	default:
		s.Log.Debug("simulated queue overflow, dropping packet",
			zap.Stringer("to", pkt.target))
	}
}

func (s *SimConnector) ListenEndpoints(port uint16) (netbase.Connection, net.Listener, error) {
	conn, err := s.listen(port)
	if err != nil {
		return nil, nil, err
	}
	ln := newSimListener(conn.laddr)
	return conn, ln, nil
}

func (s *SimConnector) ListenPacket(network string, address string) (netbase.Connection, error) {
	return s.listen(0)
}

func (s *SimConnector) EnableTimestamping(n netbase.Connection, localHostIface string) error {
	return nil
}

func (s *SimConnector) SetDSCP(n netbase.Connection, dscp uint8) error {
	return nil
}

func (s *SimConnector) ReadTXTimestamp(n netbase.Connection) (time.Time, uint32, error) {
	if s.TXTimestampErr != nil {
		return time.Time{}, 0, s.TXTimestampErr
	}
	s.mu.Lock()
	s.txCounter++
	id := s.txCounter
	s.mu.Unlock()
	return time.Now(), id, nil
}

var _ netbase.ConnProvider = (*SimConnector)(nil)
