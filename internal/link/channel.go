package link

import (
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
)

// DropReason says why a channel discarded a frame
type DropReason string

const (
	DropLoss  DropReason = "loss"
	DropQueue DropReason = "queue"
)

// ChannelStats are the per-channel counters
type ChannelStats struct {
	Sent       int64 `json:"sent" yaml:"sent"`
	Bytes      int64 `json:"bytes" yaml:"bytes"`
	Delivered  int64 `json:"delivered" yaml:"delivered"`
	Lost       int64 `json:"lost" yaml:"lost"`
	QueueDrops int64 `json:"queue_drops" yaml:"queue_drops"`
}

// Channel is one direction of an installed link. Frames are serialized back
// to back; at most maxWaiting frames wait behind the one on the wire, so up to
// maxWaiting+1 frames are in the channel at once.
type Channel struct {
	name       string
	link       Link
	eng        *engine.Engine
	loss       LossSource
	maxWaiting int
	logger     *slog.Logger

	busyUntil time.Duration
	inSystem  int
	stats     ChannelStats
	onDrop    func(Frame, DropReason)
}

// NewChannel installs link on the engine. maxWaiting counts queued frames
// only, not the one being serialized; maxWaiting <= 0 means unbounded.
func NewChannel(name string, eng *engine.Engine, l Link, loss LossSource, maxWaiting int) *Channel {
	return &Channel{
		name:       name,
		link:       l,
		eng:        eng,
		loss:       loss,
		maxWaiting: maxWaiting,
		logger:     eng.Logger(),
	}
}

// Name returns the channel label
func (c *Channel) Name() string { return c.name }

// Link returns the immutable link description
func (c *Channel) Link() Link { return c.link }

// Stats returns a copy of the counters
func (c *Channel) Stats() ChannelStats { return c.stats }

// OnDrop registers a hook called for every discarded frame
func (c *Channel) OnDrop(fn func(Frame, DropReason)) {
	c.onDrop = fn
}

// waiting is the number of frames queued behind the one on the wire
func (c *Channel) waiting() int {
	if c.inSystem == 0 {
		return 0
	}
	return c.inSystem - 1
}

// Send puts frame on the channel. deliver runs at the arrival time unless the
// frame is lost or the queue is full. It reports whether the frame was accepted.
func (c *Channel) Send(frame Frame, deliver func(Frame)) bool {
	if c.maxWaiting > 0 && c.waiting() >= c.maxWaiting {
		c.stats.QueueDrops++
		c.drop(frame, DropQueue)
		return false
	}

	now := c.eng.Now()
	start := now
	if c.busyUntil > start {
		start = c.busyUntil
	}
	size := frame.WireSize()
	c.busyUntil = start + c.link.Rate().TxTime(size)
	c.inSystem++
	c.stats.Sent++
	c.stats.Bytes += int64(size)

	arrival, ok := c.link.Transmit(frame, start, c.loss)

	if _, err := c.eng.ScheduleAt(c.busyUntil, engine.EventKindTransmit, func() {
		c.inSystem--
	}); err != nil {
		return false
	}

	if !ok {
		c.stats.Lost++
		c.drop(frame, DropLoss)
		return true
	}

	if _, err := c.eng.ScheduleAt(arrival, engine.EventKindArrival, func() {
		c.stats.Delivered++
		deliver(frame)
	}); err != nil {
		return false
	}
	return true
}

func (c *Channel) drop(frame Frame, reason DropReason) {
	c.logger.Debug("Frame dropped",
		"channel", c.name,
		"reason", reason,
		"size", frame.WireSize(),
		"sim_time", c.eng.Now())
	if c.onDrop != nil {
		c.onDrop(frame, reason)
	}
}
