// Package udp provides the kernel timestamping primitives for probe
// sockets: enabling SO_TIMESTAMPING, extracting receive timestamps from
// ancillary data, and fetching transmit timestamps from the error queue.
package udp

import "errors"

// ControlMessageLen is the size of the ancillary data buffer passed to the
// kernel on every receive, large enough for the timestamping control
// messages plus the extended error record.
const ControlMessageLen = 512

var (
	errTimestampNotFound = errors.New("failed to read timestamp from out of band data")
	errUnexpectedData    = errors.New("failed to read out of band data")
)
