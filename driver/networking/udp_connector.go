package networking

import (
	"net"
	"time"

	"github.com/libp2p/go-reuseport"
	"go.uber.org/zap"

	"example.com/probed/base/netbase"
	"example.com/probed/net/probe"
	"example.com/probed/net/udp"
)

// UDPConnector provides probe endpoints backed by real sockets.
type UDPConnector struct {
	Log *zap.Logger
}

func (c *UDPConnector) ListenEndpoints(port uint16) (netbase.Connection, net.Listener, error) {
	uconn, ln, err := probe.ListenEndpoints(c.Log, port)
	if err != nil {
		return nil, nil, err
	}
	return uconn, ln, nil
}

func (c *UDPConnector) ListenPacket(network string, address string) (netbase.Connection, error) {
	conn, err := reuseport.ListenPacket(network, address)
	if err != nil {
		return nil, err
	}
	return conn.(netbase.Connection), nil
}

func (c *UDPConnector) EnableTimestamping(n netbase.Connection, localHostIface string) error {
	return udp.EnableTimestamping(n.(*net.UDPConn), localHostIface)
}

func (c *UDPConnector) SetDSCP(n netbase.Connection, dscp uint8) error {
	return udp.SetDSCP(n.(*net.UDPConn), dscp)
}

func (c *UDPConnector) ReadTXTimestamp(n netbase.Connection) (time.Time, uint32, error) {
	return udp.ReadTXTimestamp(n.(*net.UDPConn))
}

var _ netbase.ConnProvider = (*UDPConnector)(nil)
