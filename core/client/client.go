package client

import (
	"context"
	"encoding/binary"
	"errors"
	"net/netip"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.uber.org/zap"

	"example.com/probed/base/metrics"
	"example.com/probed/base/netbase"
	"example.com/probed/core/netcore"
	"example.com/probed/net/probe"
)

const replyTimeout = 1 * time.Second

var errNoReply = errors.New("no probe reply received")

// sameAddrPort compares peer addresses modulo the IPv4-mapped form a
// dual-stack socket reports for IPv4 peers.
func sameAddrPort(a, b netip.AddrPort) bool {
	return a.Addr().Unmap() == b.Addr().Unmap() && a.Port() == b.Port()
}

var (
	rounds = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.ClientRoundsN,
		Help: metrics.ClientRoundsH,
	})
	roundErrs = promauto.NewCounter(prometheus.CounterOpts{
		Name: metrics.ClientRoundErrsN,
		Help: metrics.ClientRoundErrsH,
	})
)

// MeasureRTT performs one probe round against raddr: send the payload,
// await the reflected copy, and pair the transmit timestamp with the
// receive timestamp. Replies from other peers are discarded. When the
// kernel provides no receive timestamp the clock is read instead, so a
// round degrades in precision rather than failing.
func MeasureRTT(ctx context.Context, log *zap.Logger, s *probe.Sender,
	conn netbase.Connection, raddr netip.AddrPort, data *[probe.DATALEN]byte) (time.Duration, error) {
	txts, err := s.Send(conn, raddr, data)
	if err != nil {
		return 0, err
	}
	deadline := time.Now().Add(replyTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	var pkt probe.Packet
	for {
		if err := probe.Recv(log, conn, &pkt); err != nil {
			return 0, errNoReply
		}
		if sameAddrPort(pkt.Addr, raddr) {
			break
		}
		log.Debug("discarding packet from unexpected peer", zap.Stringer("from", pkt.Addr))
	}
	rxts := pkt.Ts
	if rxts.IsZero() {
		rxts = time.Now()
	}
	return rxts.Sub(txts), nil
}

// RunProber sends probe rounds to raddr at the given interval until ctx is
// done, logging each round's RTT.
func RunProber(ctx context.Context, log *zap.Logger, raddr netip.AddrPort,
	iface string, dscp uint8, tsMode probe.TimestampMode, interval time.Duration) error {
	conn, err := netcore.ListenPacket("udp", ":0")
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	if err := netcore.EnableTimestamping(conn, iface); err != nil {
		log.Error("failed to enable timestamping", zap.Error(err))
	}
	if dscp != 0 {
		if err := netcore.SetDSCP(conn, dscp); err != nil {
			log.Error("failed to set DSCP", zap.Error(err))
		}
	}
	s := &probe.Sender{Log: log, Mode: tsMode, Connector: netcore.ConnProvider()}
	var (
		data [probe.DATALEN]byte
		seq  uint64
	)
	for {
		seq++
		binary.BigEndian.PutUint64(data[:8], seq)
		rounds.Inc()
		rtt, err := MeasureRTT(ctx, log, s, conn, raddr, &data)
		if err != nil {
			roundErrs.Inc()
			log.Info("probe round failed", zap.Uint64("seq", seq), zap.Error(err))
		} else {
			log.Info("probe round", zap.Uint64("seq", seq),
				zap.Stringer("to", raddr), zap.Duration("rtt", rtt))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
