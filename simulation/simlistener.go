package simulation

import (
	"net"
	"net/netip"
	"sync"
)

const simBacklog = 10

// SimListener is an in-memory control channel listener. Dialed connections
// queue up to the backlog until accepted, like a kernel listen queue.
type SimListener struct {
	addr netip.AddrPort

	mu      sync.Mutex
	pending chan net.Conn
	closed  bool
}

func newSimListener(addr netip.AddrPort) *SimListener {
	return &SimListener{
		addr:    addr,
		pending: make(chan net.Conn, simBacklog),
	}
}

// Dial connects to the listener and returns the client side of the
// connection before any Accept call is made.
func (l *SimListener) Dial() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, net.ErrClosed
	}
	client, server := net.Pipe()
	select {
	case l.pending <- server:
		return client, nil
	default:
		_ = client.Close()
		_ = server.Close()
		return nil, errBacklogFull
	}
}

func (l *SimListener) Accept() (net.Conn, error) {
	c, ok := <-l.pending
	if !ok {
		return nil, net.ErrClosed
	}
	return c, nil
}

func (l *SimListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return net.ErrClosed
	}
	l.closed = true
	close(l.pending)
	return nil
}

func (l *SimListener) Addr() net.Addr {
	return net.TCPAddrFromAddrPort(l.addr)
}
