// Package transport implements a congestion-controlled reliable byte stream
// over a simulated path.
package transport

import (
	"errors"
)

// ErrRetransmissionExhausted is reported when a segment has been retransmitted
// the maximum number of times and its timer fires again.
var ErrRetransmissionExhausted = errors.New("retransmission limit exhausted")

// ErrInvalidOptions is wrapped by option validation failures
var ErrInvalidOptions = errors.New("invalid transport options")

// Mode is the congestion control state of a sender
type Mode int

const (
	SlowStart Mode = iota
	CongestionAvoidance
	FastRecovery
	Loss
)

func (m Mode) String() string {
	switch m {
	case SlowStart:
		return "slow_start"
	case CongestionAvoidance:
		return "congestion_avoidance"
	case FastRecovery:
		return "fast_recovery"
	case Loss:
		return "loss"
	default:
		return "unknown"
	}
}
