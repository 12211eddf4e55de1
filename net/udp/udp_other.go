//go:build !linux

package udp

import (
	"errors"
	"net"
	"time"
)

var errUnsupported = errors.New("kernel timestamping not supported on this platform")

func EnableTimestamping(conn *net.UDPConn, iface string) error {
	return errUnsupported
}

func SetDSCP(conn *net.UDPConn, dscp uint8) error {
	return errUnsupported
}

func TimestampFromOOBData(oob []byte) (time.Time, error) {
	return time.Time{}, errTimestampNotFound
}

func ReadTXTimestamp(conn *net.UDPConn) (time.Time, uint32, error) {
	return time.Time{}, 0, errUnsupported
}
