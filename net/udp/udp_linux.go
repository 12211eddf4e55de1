//go:build linux

package udp

import (
	"net"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// EnableTimestamping requests software TX/RX timestamps on conn. If iface is
// nonempty, hardware timestamping is additionally enabled on that interface.
// Timestamps for traffic leaving another interface are then not generated;
// the error-queue fetch reports them as missing.
func EnableTimestamping(conn *net.UDPConn, iface string) error {
	sconn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var res error
	err = sconn.Control(func(fd uintptr) {
		flags := unix.SOF_TIMESTAMPING_SOFTWARE |
			unix.SOF_TIMESTAMPING_RX_SOFTWARE |
			unix.SOF_TIMESTAMPING_TX_SOFTWARE |
			unix.SOF_TIMESTAMPING_OPT_ID |
			unix.SOF_TIMESTAMPING_OPT_TSONLY
		if iface != "" {
			cfg := unix.HwTstampConfig{
				Tx_type:   unix.HWTSTAMP_TX_ON,
				Rx_filter: unix.HWTSTAMP_FILTER_ALL,
			}
			res = unix.IoctlSetHwTstamp(int(fd), iface, &cfg)
			if res != nil {
				return
			}
			flags |= unix.SOF_TIMESTAMPING_RAW_HARDWARE |
				unix.SOF_TIMESTAMPING_RX_HARDWARE |
				unix.SOF_TIMESTAMPING_TX_HARDWARE
		}
		res = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_TIMESTAMPING, flags)
	})
	if err != nil {
		return err
	}
	return res
}

// SetDSCP sets the DSCP marking for traffic sent on conn. Both the IPv6 and
// the IPv4 option are set, the socket is dual-stack.
func SetDSCP(conn *net.UDPConn, dscp uint8) error {
	sconn, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var res error
	err = sconn.Control(func(fd uintptr) {
		tc := int(dscp) << 2
		res = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_TCLASS, tc)
		if res != nil {
			return
		}
		res = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, tc)
	})
	if err != nil {
		return err
	}
	return res
}

func timestampFromCmsgData(data []byte) (time.Time, error) {
	if uintptr(len(data)) < unsafe.Sizeof(unix.ScmTimestamping{}) {
		return time.Time{}, errUnexpectedData
	}
	tss := (*unix.ScmTimestamping)(unsafe.Pointer(unsafe.SliceData(data)))
	// Slot 2 holds the raw hardware timestamp, slot 0 the software one.
	if ts := tss.Ts[2]; ts.Sec != 0 || ts.Nsec != 0 {
		return time.Unix(ts.Unix()), nil
	}
	if ts := tss.Ts[0]; ts.Sec != 0 || ts.Nsec != 0 {
		return time.Unix(ts.Unix()), nil
	}
	return time.Time{}, errTimestampNotFound
}

// TimestampFromOOBData extracts the kernel receive timestamp from the
// ancillary data of a receive. It fails when no timestamping control
// message is present.
func TimestampFromOOBData(oob []byte) (time.Time, error) {
	for len(oob) > 0 {
		h, data, rem, err := unix.ParseOneSocketControlMessage(oob)
		if err != nil {
			return time.Time{}, errUnexpectedData
		}
		if h.Level == unix.SOL_SOCKET &&
			(h.Type == unix.SCM_TIMESTAMPING || h.Type == unix.SO_TIMESTAMPING_NEW) {
			return timestampFromCmsgData(data)
		}
		oob = rem
	}
	return time.Time{}, errTimestampNotFound
}

// ReadTXTimestamp drains one transmit timestamp notification from the
// socket's error queue. It returns the timestamp and the kernel's send
// counter for matching the notification to a send. The receive is
// nonblocking at the kernel's discretion only in the sense that a missing
// notification surfaces as an error; the caller decides how to interpret
// absence.
func ReadTXTimestamp(conn *net.UDPConn) (time.Time, uint32, error) {
	sconn, err := conn.SyscallConn()
	if err != nil {
		return time.Time{}, 0, err
	}
	var (
		ts  time.Time
		id  uint32
		res error
	)
	err = sconn.Control(func(fd uintptr) {
		oob := make([]byte, ControlMessageLen)
		var oobn int
		_, oobn, _, _, res = unix.Recvmsg(int(fd), nil, oob, unix.MSG_ERRQUEUE)
		if res != nil {
			return
		}
		ts, id, res = txTimestampFromOOBData(oob[:oobn])
	})
	if err != nil {
		return time.Time{}, 0, err
	}
	if res != nil {
		return time.Time{}, 0, res
	}
	return ts, id, nil
}

func txTimestampFromOOBData(oob []byte) (time.Time, uint32, error) {
	var (
		ts    time.Time
		id    uint32
		tsSet bool
	)
	for len(oob) > 0 {
		h, data, rem, err := unix.ParseOneSocketControlMessage(oob)
		if err != nil {
			return time.Time{}, 0, errUnexpectedData
		}
		switch {
		case h.Level == unix.SOL_SOCKET &&
			(h.Type == unix.SCM_TIMESTAMPING || h.Type == unix.SO_TIMESTAMPING_NEW):
			ts, err = timestampFromCmsgData(data)
			if err != nil {
				return time.Time{}, 0, err
			}
			tsSet = true
		case (h.Level == unix.IPPROTO_IP && h.Type == unix.IP_RECVERR) ||
			(h.Level == unix.IPPROTO_IPV6 && h.Type == unix.IPV6_RECVERR):
			if uintptr(len(data)) < unsafe.Sizeof(unix.SockExtendedErr{}) {
				return time.Time{}, 0, errUnexpectedData
			}
			se := (*unix.SockExtendedErr)(unsafe.Pointer(unsafe.SliceData(data)))
			if se.Origin == unix.SO_EE_ORIGIN_TIMESTAMPING {
				id = se.Data
			}
		}
		oob = rem
	}
	if !tsSet {
		return time.Time{}, 0, errTimestampNotFound
	}
	return ts, id, nil
}
