package probe_test

import (
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"example.com/probed/net/probe"
	"example.com/probed/simulation"
)

func listenLoopback(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRoundTripLoopback(t *testing.T) {
	a := listenLoopback(t)
	b := listenLoopback(t)
	raddr := b.LocalAddr().(*net.UDPAddr).AddrPort()

	// Connector is nil on purpose: userland mode must never touch the
	// error queue.
	s := &probe.Sender{Log: zap.NewNop(), Mode: probe.TimestampModeUserland}
	var data [probe.DATALEN]byte
	for i := range data {
		data[i] = byte(i)
	}

	before := time.Now()
	ts, err := s.Send(a, raddr, &data)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	after := time.Now()
	if ts.IsZero() {
		t.Error("expected a userland TX timestamp")
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("TX timestamp %v outside send window [%v, %v]", ts, before, after)
	}

	_ = b.SetDeadline(time.Now().Add(time.Second))
	var pkt probe.Packet
	if err := probe.Recv(zap.NewNop(), b, &pkt); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if pkt.Data != data {
		t.Error("payload mismatch after round trip")
	}
	want := a.LocalAddr().(*net.UDPAddr).AddrPort()
	if pkt.Addr != want {
		t.Errorf("peer address = %v, want %v", pkt.Addr, want)
	}
}

func TestRecvZeroFillOnFailedReceive(t *testing.T) {
	conn := listenLoopback(t)
	var pkt probe.Packet
	for i := range pkt.Data {
		pkt.Data[i] = 0xff
	}
	pkt.Ts = time.Now()

	_ = conn.SetDeadline(time.Now().Add(-time.Second))
	if err := probe.Recv(zap.NewNop(), conn, &pkt); err == nil {
		t.Fatal("expected receive to fail")
	}
	if pkt.Data != [probe.DATALEN]byte{} {
		t.Error("stale payload bytes left after failed receive")
	}
	if !pkt.Ts.IsZero() {
		t.Error("stale timestamp left after failed receive")
	}
}

func TestKernelModeSend(t *testing.T) {
	sim := simulation.NewSimConnector(zap.NewNop())
	conn, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	target, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	raddr := target.LocalAddr().(*net.UDPAddr).AddrPort()

	s := &probe.Sender{Log: zap.NewNop(), Mode: probe.TimestampModeKernel, Connector: sim}
	var data [probe.DATALEN]byte
	ts, err := s.Send(conn, raddr, &data)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ts.IsZero() {
		t.Error("expected a kernel TX timestamp")
	}
}

func TestKernelModeSendTimestampFailure(t *testing.T) {
	sim := simulation.NewSimConnector(zap.NewNop())
	sim.TXTimestampErr = errors.New("timestamping active on another interface")
	conn, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	target, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	raddr := target.LocalAddr().(*net.UDPAddr).AddrPort()

	s := &probe.Sender{Log: zap.NewNop(), Mode: probe.TimestampModeKernel, Connector: sim}
	var data [probe.DATALEN]byte
	if _, err := s.Send(conn, raddr, &data); err == nil {
		t.Fatal("expected send to fail without a TX timestamp")
	}

	// The datagram itself still left the socket.
	_ = target.SetDeadline(time.Now().Add(time.Second))
	var pkt probe.Packet
	if err := probe.Recv(zap.NewNop(), target, &pkt); err != nil {
		t.Fatalf("probe was not delivered: %v", err)
	}
}

func TestListenEndpointsPortConflict(t *testing.T) {
	log := zap.NewNop()
	uconn, ln, err := probe.ListenEndpoints(log, 0)
	if err != nil {
		t.Fatalf("ListenEndpoints: %v", err)
	}
	defer func() { _ = uconn.Close() }()
	defer func() { _ = ln.Close() }()

	port := uint16(uconn.LocalAddr().(*net.UDPAddr).Port)
	if _, _, err := probe.ListenEndpoints(log, port); err == nil {
		t.Fatal("expected rebinding the same port to fail")
	}
}

func TestListenEndpointsDualStack(t *testing.T) {
	uconn, ln, err := probe.ListenEndpoints(zap.NewNop(), 0)
	if err != nil {
		t.Fatalf("ListenEndpoints: %v", err)
	}
	defer func() { _ = uconn.Close() }()
	defer func() { _ = ln.Close() }()

	port := uint16(uconn.LocalAddr().(*net.UDPAddr).Port)
	portStr := strconv.Itoa(int(port))

	// The control listener queues connections before any Accept call.
	c, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", portStr), time.Second)
	if err != nil {
		t.Fatalf("control channel not reachable before accept: %v", err)
	}
	defer func() { _ = c.Close() }()

	payload := make([]byte, probe.DATALEN)
	payload[0] = 0x42

	for _, network := range []string{"udp4", "udp6"} {
		host := "127.0.0.1"
		if network == "udp6" {
			host = "::1"
		}
		peer, err := net.Dial(network, net.JoinHostPort(host, portStr))
		if err != nil {
			if network == "udp6" {
				t.Skipf("IPv6 loopback unavailable: %v", err)
			}
			t.Fatalf("Dial %s: %v", network, err)
		}
		if _, err := peer.Write(payload); err != nil {
			t.Fatalf("Write %s: %v", network, err)
		}
		_ = uconn.SetDeadline(time.Now().Add(time.Second))
		var pkt probe.Packet
		if err := probe.Recv(zap.NewNop(), uconn, &pkt); err != nil {
			t.Fatalf("Recv %s: %v", network, err)
		}
		if pkt.Data[0] != 0x42 {
			t.Errorf("unexpected payload via %s", network)
		}
		_ = peer.Close()
	}
}
