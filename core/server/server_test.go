package server_test

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"example.com/probed/core/client"
	"example.com/probed/core/netcore"
	"example.com/probed/core/server"
	"example.com/probed/net/probe"
	"example.com/probed/simulation"
)

var sim *simulation.SimConnector

func TestMain(m *testing.M) {
	sim = simulation.NewSimConnector(zap.NewNop())
	netcore.RegisterConnProvider(sim)
	m.Run()
}

func TestProbeReflector(t *testing.T) {
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sconn, _, err := server.StartProbeServer(ctx, log, 0, "", 0, probe.TimestampModeKernel)
	if err != nil {
		t.Fatalf("StartProbeServer: %v", err)
	}
	saddr := sconn.LocalAddr().(*net.UDPAddr).AddrPort()

	cconn, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	s := &probe.Sender{Log: log, Mode: probe.TimestampModeKernel, Connector: sim}
	var data [probe.DATALEN]byte
	for i := range data {
		data[i] = byte(0xa0 ^ i)
	}
	if _, err := s.Send(cconn, saddr, &data); err != nil {
		t.Fatalf("Send: %v", err)
	}

	_ = cconn.SetDeadline(time.Now().Add(time.Second))
	var pkt probe.Packet
	if err := probe.Recv(log, cconn, &pkt); err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if pkt.Data != data {
		t.Error("reflected payload does not match the probe")
	}
	if pkt.Addr != saddr {
		t.Errorf("reflection came from %v, want %v", pkt.Addr, saddr)
	}
}

func TestProbeRound(t *testing.T) {
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sconn, _, err := server.StartProbeServer(ctx, log, 0, "", 0, probe.TimestampModeKernel)
	if err != nil {
		t.Fatalf("StartProbeServer: %v", err)
	}
	saddr := sconn.LocalAddr().(*net.UDPAddr).AddrPort()

	cconn, err := sim.ListenPacket("udp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	s := &probe.Sender{Log: log, Mode: probe.TimestampModeKernel, Connector: sim}
	var data [probe.DATALEN]byte
	if _, err := client.MeasureRTT(ctx, log, s, cconn, saddr, &data); err != nil {
		t.Fatalf("MeasureRTT: %v", err)
	}
}

func TestControlChannelBacklog(t *testing.T) {
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, ln, err := server.StartProbeServer(ctx, log, 0, "", 0, probe.TimestampModeKernel)
	if err != nil {
		t.Fatalf("StartProbeServer: %v", err)
	}
	c, err := ln.(*simulation.SimListener).Dial()
	if err != nil {
		t.Fatalf("control dial: %v", err)
	}
	if _, err := c.Write([]byte("hello")); err != nil {
		t.Fatalf("control write: %v", err)
	}
	_ = c.Close()
}

func TestEndpointConflict(t *testing.T) {
	log := zap.NewNop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sconn, _, err := server.StartProbeServer(ctx, log, 0, "", 0, probe.TimestampModeKernel)
	if err != nil {
		t.Fatalf("StartProbeServer: %v", err)
	}
	port := uint16(sconn.LocalAddr().(*net.UDPAddr).Port)
	if _, _, err := server.StartProbeServer(ctx, log, port, "", 0, probe.TimestampModeKernel); err == nil {
		t.Fatal("expected binding an in-use port to fail")
	}
}
