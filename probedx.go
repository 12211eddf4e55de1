// Driver for quick experiments

package main

import (
	"context"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"example.com/probed/core/client"
	"example.com/probed/core/netcore"
	"example.com/probed/driver/networking"
	"example.com/probed/net/probe"
)

func runX() {
	initLogger(true)

	lnet := &networking.UDPConnector{Log: log}
	netcore.RegisterConnProvider(lnet)

	uconn, _, err := netcore.ListenEndpoints(0)
	if err != nil {
		log.Fatal("failed to bind probe endpoints", zap.Error(err))
	}
	port := uint16(uconn.LocalAddr().(*net.UDPAddr).Port)
	raddr := netip.AddrPortFrom(netip.MustParseAddr("::1"), port)

	s := &probe.Sender{Log: log, Mode: probe.TimestampModeUserland, Connector: lnet}
	var data [probe.DATALEN]byte
	rtt, err := client.MeasureRTT(context.Background(), log, s, uconn, raddr, &data)
	if err != nil {
		log.Fatal("failed to probe self", zap.Error(err))
	}
	log.Debug("self probe", zap.Duration("rtt", rtt))
}
