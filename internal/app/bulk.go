// Package app holds the traffic generators and sinks attached to transport flows.
package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/transport"
)

// BulkSender writes as fast as the congestion window allows
type BulkSender struct {
	eng     *engine.Engine
	sender  *transport.Sender
	logger  *slog.Logger
	total   int64
	written int64
	running bool
	err     error
}

// NewBulkSender attaches a bulk application to sender
func NewBulkSender(eng *engine.Engine, sender *transport.Sender) *BulkSender {
	b := &BulkSender{
		eng:    eng,
		sender: sender,
		logger: eng.Logger().With("flow", sender.Flow()),
	}
	sender.OnWindowOpen(b.fill)
	sender.OnFailure(b.onFailure)
	return b
}

// Install schedules Start at start and Stop at stop
func (b *BulkSender) Install(start, stop time.Duration, totalBytes int64) error {
	if stop < start {
		return fmt.Errorf("stop %v before start %v", stop, start)
	}
	if _, err := b.eng.ScheduleAt(start, engine.EventKindApp, func() { b.Start(totalBytes) }); err != nil {
		return err
	}
	if _, err := b.eng.ScheduleAt(stop, engine.EventKindApp, b.Stop); err != nil {
		return err
	}
	return nil
}

// Start begins sending totalBytes; zero means no limit
func (b *BulkSender) Start(totalBytes int64) {
	b.total = totalBytes
	b.running = true
	b.logger.Debug("Bulk sender started", "total_bytes", totalBytes, "sim_time", b.eng.Now())
	b.fill()
}

// Stop halts the application and closes its connection
func (b *BulkSender) Stop() {
	if !b.running {
		return
	}
	b.running = false
	b.sender.Close()
	b.logger.Debug("Bulk sender stopped", "written", b.written, "sim_time", b.eng.Now())
}

// fill hands segment-sized chunks to the sender while its window has room
func (b *BulkSender) fill() {
	seg := int64(b.sender.SegmentSize())
	for b.running && !b.exhausted() && b.sender.Room() >= seg {
		n := seg
		if b.total > 0 && b.total-b.written < n {
			n = b.total - b.written
		}
		b.written += n
		b.sender.Write(int(n))
	}
}

func (b *BulkSender) exhausted() bool {
	return b.total > 0 && b.written >= b.total
}

func (b *BulkSender) onFailure(err error) {
	b.err = err
	b.running = false
	b.logger.Warn("Connection failed", "error", err, "sim_time", b.eng.Now())
}

// Err returns the connection failure, if any
func (b *BulkSender) Err() error { return b.err }
