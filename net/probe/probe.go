// Package probe implements the timestamped probe packet exchange: binding
// the probe and control endpoints, and sending/receiving fixed-size probe
// datagrams together with their kernel or userland timestamps.
package probe

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"example.com/probed/base/netbase"
	"example.com/probed/net/udp"
)

// DATALEN is the fixed probe datagram size. Every probe exchange carries
// exactly this many payload bytes; the bytes themselves are opaque here.
const DATALEN = 48

// TimestampMode selects where the transmit timestamp of a probe comes from.
type TimestampMode int

const (
	// TimestampModeKernel reads the transmit timestamp from the socket's
	// error queue after the send.
	TimestampModeKernel TimestampMode = iota
	// TimestampModeUserland reads the system clock immediately before the
	// send.
	TimestampModeUserland
)

var errTXTimestamp = errors.New("failed to read TX timestamp")

// Packet is one probe exchange: the peer address, the fixed-size payload,
// and the timestamp associated with its receive or transmit. A zero Ts
// means no timestamp could be obtained.
type Packet struct {
	Addr netip.AddrPort
	Data [DATALEN]byte
	Ts   time.Time
}

// Recv performs a single datagram receive into pkt, capturing the peer
// address and, when the kernel delivers one, the receive timestamp. The
// payload is zeroed before the receive so a failed or short receive never
// leaves stale bytes from a previous exchange. A missing receive timestamp
// is logged but does not fail the call; the packet data remains valid.
func Recv(log *zap.Logger, conn netbase.Connection, pkt *Packet) error {
	pkt.Data = [DATALEN]byte{}
	pkt.Ts = time.Time{}
	oob := make([]byte, udp.ControlMessageLen)
	_, oobn, _, addr, err := conn.ReadMsgUDPAddrPort(pkt.Data[:], oob)
	if err != nil {
		log.Info("failed to receive packet", zap.Error(err))
		return err
	}
	pkt.Addr = addr
	ts, err := udp.TimestampFromOOBData(oob[:oobn])
	if err != nil {
		log.Error("failed to read RX timestamp", zap.Error(err))
		return nil
	}
	pkt.Ts = ts
	return nil
}

// Sender transmits probe datagrams and reports their transmit timestamps.
// Mode decides the timestamp source; Connector performs the error-queue
// fetch in kernel mode and may be nil in userland mode.
type Sender struct {
	Log       *zap.Logger
	Mode      TimestampMode
	Connector netbase.ConnProvider
}

// Send transmits data to addr on conn and returns the transmit timestamp.
// In kernel mode a send whose timestamp cannot be retrieved is reported as
// failed even though the bytes left the socket; a probe without a
// timestamp is useless to the caller.
func (s *Sender) Send(conn netbase.Connection, addr netip.AddrPort, data *[DATALEN]byte) (time.Time, error) {
	var ts time.Time
	if s.Mode == TimestampModeUserland {
		ts = time.Now()
	}
	if _, err := conn.WriteToUDPAddrPort(data[:], addr); err != nil {
		s.Log.Info("failed to send packet", zap.Error(err))
		return time.Time{}, err
	}
	if s.Mode == TimestampModeKernel {
		txts, _, err := s.Connector.ReadTXTimestamp(conn)
		if err != nil {
			s.Log.Error("failed to read TX timestamp", zap.Error(err))
			return time.Time{}, errTXTimestamp
		}
		ts = txts
	}
	return ts, nil
}

// ListenEndpoints binds the two listening endpoints on port: a dual-stack
// UDP socket for probe exchanges and a dual-stack TCP listener on the same
// port for control traffic. Option failures that only affect restart
// latency or address-family reach are logged and ignored; everything else
// fails the bind. Should be run only once.
func ListenEndpoints(log *zap.Logger, port uint16) (*net.UDPConn, *net.TCPListener, error) {
	log.Info("binding port", zap.Uint16("port", port))
	lc := net.ListenConfig{Control: sockoptControl(log, false)}
	pconn, err := lc.ListenPacket(context.Background(), "udp", wildcardAddr(port))
	if err != nil {
		return nil, nil, err
	}
	uconn := pconn.(*net.UDPConn)
	if port == 0 {
		port = uint16(uconn.LocalAddr().(*net.UDPAddr).Port)
	}
	lc = net.ListenConfig{Control: sockoptControl(log, true)}
	ln, err := lc.Listen(context.Background(), "tcp", wildcardAddr(port))
	if err != nil {
		_ = uconn.Close()
		return nil, nil, err
	}
	return uconn, ln.(*net.TCPListener), nil
}

func wildcardAddr(port uint16) string {
	return net.JoinHostPort("::", strconv.Itoa(int(port)))
}

// sockoptControl clears IPV6_V6ONLY so IPv4-mapped peers are reachable and,
// for the control listener, sets SO_REUSEADDR so a restarted process does
// not wait out the address-linger timer. Both are best-effort.
func sockoptControl(log *zap.Logger, reuseAddr bool) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		return c.Control(func(fd uintptr) {
			err := unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
			if err != nil {
				log.Error("failed to clear IPV6_V6ONLY", zap.Error(err))
			}
			if reuseAddr {
				err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if err != nil {
					log.Error("failed to set SO_REUSEADDR", zap.Error(err))
				}
			}
		})
	}
}
