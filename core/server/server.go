package server

import (
	"context"
	"io"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.uber.org/zap"

	"example.com/probed/base/metrics"
	"example.com/probed/base/netbase"
	"example.com/probed/core/netcore"
	"example.com/probed/net/probe"
)

var (
	pktsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.ServerPktsReceivedN,
		Help: metrics.ServerPktsReceivedH,
	})
	pktsReflected = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.ServerPktsReflectedN,
		Help: metrics.ServerPktsReflectedH,
	})
	tstampErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.ServerTstampErrsN,
		Help: metrics.ServerTstampErrsH,
	})
	ctrlConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: metrics.ServerCtrlConnsN,
		Help: metrics.ServerCtrlConnsH,
	})
)

// StartProbeServer binds the probe and control endpoints and starts the
// reflector and control accept loops. The returned handles are the bound
// probe socket and control listener; they stay open for the lifetime of
// the process.
func StartProbeServer(ctx context.Context, log *zap.Logger, port uint16,
	iface string, dscp uint8, tsMode probe.TimestampMode) (netbase.Connection, net.Listener, error) {
	conn, ln, err := netcore.ListenEndpoints(port)
	if err != nil {
		return nil, nil, err
	}
	if err := netcore.EnableTimestamping(conn, iface); err != nil {
		log.Error("failed to enable timestamping", zap.Error(err))
	}
	if dscp != 0 {
		if err := netcore.SetDSCP(conn, dscp); err != nil {
			log.Error("failed to set DSCP", zap.Error(err))
		}
	}
	go runProbeServer(ctx, log, conn, tsMode)
	go runControlServer(ctx, log, ln)
	return conn, ln, nil
}

// runProbeServer reflects every received probe back to its sender over the
// same socket. The payload is returned unchanged; its contents belong to
// the protocol layer.
func runProbeServer(ctx context.Context, log *zap.Logger, conn netbase.Connection, tsMode probe.TimestampMode) {
	s := &probe.Sender{Log: log, Mode: tsMode, Connector: netcore.ConnProvider()}
	var pkt probe.Packet
	for {
		err := probe.Recv(log, conn, &pkt)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		pktsReceived.Inc()
		if pkt.Ts.IsZero() {
			tstampErrs.Inc()
		}
		data := pkt.Data
		if _, err := s.Send(conn, pkt.Addr, &data); err != nil {
			tstampErrs.Inc()
			continue
		}
		pktsReflected.Inc()
	}
}

// runControlServer accepts control channel connections. The bytes
// exchanged over them are defined by the protocol layer; this loop only
// tracks and drains them.
func runControlServer(ctx context.Context, log *zap.Logger, ln net.Listener) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Info("failed to accept control connection", zap.Error(err))
			continue
		}
		log.Debug("control connection accepted", zap.Stringer("from", c.RemoteAddr()))
		ctrlConns.Inc()
		go func() {
			defer ctrlConns.Dec()
			defer func() { _ = c.Close() }()
			_, _ = io.Copy(io.Discard, c)
		}()
	}
}
