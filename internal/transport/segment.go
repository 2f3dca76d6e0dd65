package transport

import (
	"time"
)

// Segment carries Size payload bytes starting at byte offset Seq
type Segment struct {
	Flow           int
	Seq            int64
	Size           int
	SentAt         time.Duration
	Retransmission bool
	Header         int
}

// WireSize is the payload plus header bytes
func (s Segment) WireSize() int { return s.Size + s.Header }

// End is the offset just past the payload
func (s Segment) End() int64 { return s.Seq + int64(s.Size) }

// Ack cumulatively acknowledges every byte below AckNo. EchoSentAt and
// EchoRetransmission copy the segment that triggered it.
type Ack struct {
	Flow               int
	AckNo              int64
	EchoSentAt         time.Duration
	EchoRetransmission bool
	Header             int
}

// WireSize is the header-only size of an ack
func (a Ack) WireSize() int { return a.Header }
