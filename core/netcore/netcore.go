package netcore

import (
	"net"
	"sync/atomic"
	"time"

	"example.com/probed/base/netbase"
)

var lnetprovider atomic.Value

func RegisterConnProvider(n netbase.ConnProvider) {
	if n == nil {
		panic("conn provider must not be nil")
	}
	if swapped := lnetprovider.CompareAndSwap(nil, n); !swapped {
		panic("conn provider already registered, can only register one")
	}
}

// ConnProvider returns the registered provider for callers that hold on to
// it, such as senders doing error-queue timestamp fetches.
func ConnProvider() netbase.ConnProvider {
	return getNetProvider()
}

func getNetProvider() netbase.ConnProvider {
	c := lnetprovider.Load().(netbase.ConnProvider)
	if c == nil {
		panic("no conn provider registered")
	}
	return c
}

func ListenEndpoints(port uint16) (netbase.Connection, net.Listener, error) {
	return getNetProvider().ListenEndpoints(port)
}

func ListenPacket(network string, address string) (netbase.Connection, error) {
	return getNetProvider().ListenPacket(network, address)
}

func EnableTimestamping(n netbase.Connection, localHostIface string) error {
	return getNetProvider().EnableTimestamping(n, localHostIface)
}

func SetDSCP(n netbase.Connection, dscp uint8) error {
	return getNetProvider().SetDSCP(n, dscp)
}

func ReadTXTimestamp(n netbase.Connection) (time.Time, uint32, error) {
	return getNetProvider().ReadTXTimestamp(n)
}
