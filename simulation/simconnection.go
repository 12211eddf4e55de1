package simulation

import (
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

type simPacket struct {
	b      []byte
	source netip.AddrPort
	target netip.AddrPort
}

// SimConnection is an in-memory datagram endpoint registered with a
// SimConnector.
type SimConnection struct {
	Log *zap.Logger

	connector *SimConnector
	laddr     netip.AddrPort
	input     chan simPacket

	mu       sync.Mutex
	deadline time.Time
	closed   bool
	done     chan struct{}
}

func (c *SimConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return net.ErrClosed
	}
	c.closed = true
	close(c.done)
	c.connector.drop(c.laddr)
	return nil
}

func (c *SimConnection) ReadMsgUDPAddrPort(buf []byte, oob []byte) (n int, oobn int, flags int, addr netip.AddrPort, err error) {
	c.mu.Lock()
	dl := c.deadline
	c.mu.Unlock()

	var timeout <-chan time.Time
	if !dl.IsZero() {
		d := time.Until(dl)
		if d <= 0 {
			return 0, 0, 0, netip.AddrPort{}, os.ErrDeadlineExceeded
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case pkt := <-c.input:
		n = copy(buf, pkt.b)
		// No ancillary data in simulation; timestamp extraction fails the
		// same way it does on a socket without timestamping enabled.
		return n, 0, 0, pkt.source, nil
	case <-timeout:
		return 0, 0, 0, netip.AddrPort{}, os.ErrDeadlineExceeded
	case <-c.done:
		return 0, 0, 0, netip.AddrPort{}, net.ErrClosed
	}
}

func (c *SimConnection) WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return 0, net.ErrClosed
	}
	pkt := simPacket{b: append([]byte(nil), b...), source: c.laddr, target: addr}
	c.connector.route(pkt)
	return len(b), nil
}

func (c *SimConnection) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deadline = t
	return nil
}

func (c *SimConnection) LocalAddr() net.Addr {
	return net.UDPAddrFromAddrPort(c.laddr)
}
