package netbase

import (
	"net"
	"net/netip"
	"time"
)

// Connection is the probe-facing view of a bound datagram socket. It is
// satisfied by *net.UDPConn; simulated connections implement it for tests.
type Connection interface {
	Close() error
	ReadMsgUDPAddrPort(buf []byte, oob []byte) (n int, oobn int, flags int, addr netip.AddrPort, err error)
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
	SetDeadline(t time.Time) error
	LocalAddr() net.Addr
}

var _ Connection = (*net.UDPConn)(nil)

// ConnProvider creates probe endpoints and performs the socket-level
// operations the probe layer needs on them.
type ConnProvider interface {
	ListenEndpoints(port uint16) (Connection, net.Listener, error)
	ListenPacket(network string, address string) (Connection, error)
	EnableTimestamping(n Connection, localHostIface string) error
	SetDSCP(n Connection, dscp uint8) error
	ReadTXTimestamp(n Connection) (time.Time, uint32, error)
}
