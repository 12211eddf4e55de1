package benchmark

import (
	"context"
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"go.uber.org/zap"

	"example.com/probed/core/client"
	"example.com/probed/core/netcore"
	"example.com/probed/net/probe"
)

// RunBenchmark performs rounds probe exchanges against raddr as fast as
// replies come back and prints an RTT percentile summary.
func RunBenchmark(log *zap.Logger, raddr netip.AddrPort, tsMode probe.TimestampMode, roundsTotal int) {
	ctx := context.Background()

	conn, err := netcore.ListenPacket("udp", ":0")
	if err != nil {
		log.Fatal("failed to listen for packets", zap.Error(err))
	}
	defer func() { _ = conn.Close() }()
	if err := netcore.EnableTimestamping(conn, ""); err != nil {
		log.Error("failed to enable timestamping", zap.Error(err))
	}

	s := &probe.Sender{Log: zap.NewNop(), Mode: tsMode, Connector: netcore.ConnProvider()}
	// 1 us to 1 s, 3 significant digits
	hg := hdrhistogram.New(1, 1_000_000, 3)

	var data [probe.DATALEN]byte
	errs := 0
	t0 := time.Now()
	for seq := uint64(1); seq <= uint64(roundsTotal); seq++ {
		binary.BigEndian.PutUint64(data[:8], seq)
		rtt, err := client.MeasureRTT(ctx, zap.NewNop(), s, conn, raddr, &data)
		if err != nil {
			errs++
			continue
		}
		if err := hg.RecordValue(rtt.Microseconds()); err != nil {
			log.Debug("failed to record RTT", zap.Duration("rtt", rtt), zap.Error(err))
		}
	}
	elapsed := time.Since(t0)

	fmt.Printf("rounds: %d, failed: %d, elapsed: %s\n", roundsTotal, errs, elapsed)
	fmt.Printf("RTT (us): min %d, p50 %d, p90 %d, p99 %d, max %d\n",
		hg.Min(), hg.ValueAtQuantile(50), hg.ValueAtQuantile(90),
		hg.ValueAtQuantile(99), hg.Max())
}
