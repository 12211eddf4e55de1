// probed latency/path-quality probe daemon

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/mmcloughlin/profile"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"example.com/probed/benchmark"
	"example.com/probed/core"
	"example.com/probed/core/client"
	"example.com/probed/core/netcore"
	"example.com/probed/core/server"
	"example.com/probed/driver/networking"
)

const defaultMetricsAddr = "127.0.0.1:8080"

var (
	log *zap.Logger
)

func initLogger(verbose bool) {
	c := zap.NewDevelopmentConfig()
	c.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = func(
		caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
		p := caller.TrimmedPath()
		if len(p) > 30 {
			p = "..." + p[len(p)-27:]
		}
		enc.AppendString(fmt.Sprintf("%30s", p))
	}
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	var err error
	log, err = c.Build()
	if err != nil {
		panic(err)
	}
}

func runMonitor(log *zap.Logger, addr string) {
	if addr == "" {
		addr = defaultMetricsAddr
	}
	http.Handle("/metrics", promhttp.Handler())
	err := http.ListenAndServe(addr, nil)
	log.Fatal("failed to serve metrics", zap.Error(err))
}

func runServer(configFile string) {
	ctx := context.Background()

	var cfg core.SvcConfig
	core.LoadConfig(&cfg, configFile, log)

	lnet := &networking.UDPConnector{Log: log}
	netcore.RegisterConnProvider(lnet)

	_, _, err := server.StartProbeServer(ctx, log, core.Port(cfg),
		cfg.Interface, core.Dscp(cfg, log), core.TimestampMode(cfg))
	if err != nil {
		log.Fatal("failed to bind probe endpoints", zap.Error(err))
	}

	runMonitor(log, cfg.MetricsAddr)
}

func runClient(configFile, remoteAddrStr string) {
	ctx := context.Background()

	var cfg core.SvcConfig
	if configFile != "" {
		core.LoadConfig(&cfg, configFile, log)
	}
	if remoteAddrStr == "" {
		remoteAddrStr = cfg.RemoteAddr
	}
	raddr, err := netip.ParseAddrPort(remoteAddrStr)
	if err != nil {
		log.Fatal("failed to parse remote address",
			zap.String("remote", remoteAddrStr), zap.Error(err))
	}
	interval := 1 * time.Second
	if cfg.Interval != "" {
		interval, err = time.ParseDuration(cfg.Interval)
		if err != nil {
			log.Fatal("failed to parse probe interval", zap.Error(err))
		}
	}

	lnet := &networking.UDPConnector{Log: log}
	netcore.RegisterConnProvider(lnet)

	err = client.RunProber(ctx, log, raddr,
		cfg.Interface, core.Dscp(cfg, log), core.TimestampMode(cfg), interval)
	if err != nil {
		log.Fatal("prober stopped", zap.Error(err))
	}
}

func runBenchmark(remoteAddrStr string, rounds int) {
	raddr, err := netip.ParseAddrPort(remoteAddrStr)
	if err != nil {
		log.Fatal("failed to parse remote address",
			zap.String("remote", remoteAddrStr), zap.Error(err))
	}

	lnet := &networking.UDPConnector{Log: zap.NewNop()}
	netcore.RegisterConnProvider(lnet)

	benchmark.RunBenchmark(log, raddr, core.TimestampMode(core.SvcConfig{}), rounds)
}

func exitWithUsage() {
	fmt.Println("usage: probed server|client|benchmark|x [options]")
	os.Exit(1)
}

func main() {
	var (
		verbose       bool
		configFile    string
		remoteAddrStr string
		rounds        int
		profileCPU    bool
	)

	serverFlags := flag.NewFlagSet("server", flag.ExitOnError)
	clientFlags := flag.NewFlagSet("client", flag.ExitOnError)
	benchmarkFlags := flag.NewFlagSet("benchmark", flag.ExitOnError)

	serverFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	serverFlags.StringVar(&configFile, "config", "", "Config file")
	serverFlags.BoolVar(&profileCPU, "profile-cpu", false, "Enable profiling")

	clientFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	clientFlags.StringVar(&configFile, "config", "", "Config file")
	clientFlags.StringVar(&remoteAddrStr, "remote", "", "Remote address")

	benchmarkFlags.BoolVar(&verbose, "verbose", false, "Verbose logging")
	benchmarkFlags.StringVar(&remoteAddrStr, "remote", "", "Remote address")
	benchmarkFlags.IntVar(&rounds, "rounds", 10000, "Number of probe rounds")
	benchmarkFlags.BoolVar(&profileCPU, "profile-cpu", false, "Enable profiling")

	if len(os.Args) < 2 {
		exitWithUsage()
	}

	switch os.Args[1] {
	case "server":
		err := serverFlags.Parse(os.Args[2:])
		if err != nil || serverFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		if profileCPU {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		runServer(configFile)
	case "client":
		err := clientFlags.Parse(os.Args[2:])
		if err != nil || clientFlags.NArg() != 0 {
			exitWithUsage()
		}
		if configFile == "" && remoteAddrStr == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		runClient(configFile, remoteAddrStr)
	case "benchmark":
		err := benchmarkFlags.Parse(os.Args[2:])
		if err != nil || benchmarkFlags.NArg() != 0 {
			exitWithUsage()
		}
		if remoteAddrStr == "" {
			exitWithUsage()
		}
		initLogger(verbose)
		if profileCPU {
			defer profile.Start(profile.CPUProfile).Stop()
		}
		runBenchmark(remoteAddrStr, rounds)
	case "x":
		runX()
	default:
		exitWithUsage()
	}
}
