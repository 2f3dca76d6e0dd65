package transport

import (
	"fmt"
	"time"
)

// Options tunes a sender
type Options struct {
	SegmentSize     int
	InitialWindow   int // segments
	InitialRTO      time.Duration
	MinRTO          time.Duration
	MaxRTO          time.Duration
	MaxRetransmits  int
	DupAckThreshold int
	HeaderBytes     int
}

// DefaultOptions returns RFC 6298 timer defaults, a one-segment initial window
// and the header overhead of an option-less IPv4/TCP packet.
func DefaultOptions() Options {
	return Options{
		SegmentSize:     536,
		InitialWindow:   1,
		InitialRTO:      time.Second,
		MinRTO:          200 * time.Millisecond,
		MaxRTO:          60 * time.Second,
		MaxRetransmits:  6,
		DupAckThreshold: 3,
		HeaderBytes:     HeaderOverhead(),
	}
}

// Validate checks the option ranges
func (o Options) Validate() error {
	switch {
	case o.SegmentSize <= 0:
		return fmt.Errorf("%w: segment size must be positive, got %d", ErrInvalidOptions, o.SegmentSize)
	case o.InitialWindow < 1:
		return fmt.Errorf("%w: initial window must be at least 1, got %d", ErrInvalidOptions, o.InitialWindow)
	case o.MinRTO <= 0 || o.MaxRTO < o.MinRTO:
		return fmt.Errorf("%w: rto bounds [%v, %v]", ErrInvalidOptions, o.MinRTO, o.MaxRTO)
	case o.InitialRTO < o.MinRTO || o.InitialRTO > o.MaxRTO:
		return fmt.Errorf("%w: initial rto %v outside [%v, %v]", ErrInvalidOptions, o.InitialRTO, o.MinRTO, o.MaxRTO)
	case o.MaxRetransmits < 1:
		return fmt.Errorf("%w: max retransmits must be at least 1, got %d", ErrInvalidOptions, o.MaxRetransmits)
	case o.DupAckThreshold < 1:
		return fmt.Errorf("%w: duplicate ack threshold must be at least 1, got %d", ErrInvalidOptions, o.DupAckThreshold)
	case o.HeaderBytes < 0:
		return fmt.Errorf("%w: header bytes cannot be negative", ErrInvalidOptions)
	}
	return nil
}
