package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

var (
	// ErrScheduling is wrapped by every scheduling failure. It is fatal for the run.
	ErrScheduling = errors.New("scheduling error")

	// ErrNegativeDelay is returned when an event is scheduled in the past
	ErrNegativeDelay = fmt.Errorf("%w: negative delay", ErrScheduling)

	// ErrEngineStopped is returned when an event is scheduled after Stop
	ErrEngineStopped = fmt.Errorf("%w: engine stopped", ErrScheduling)
)

// Engine is the discrete-event simulation kernel. Exactly one action runs at
// a time; actions schedule further events.
type Engine struct {
	eventQueue *EventQueue
	simTime    *utils.SimTime
	logger     *slog.Logger

	seq       uint64
	processed int64
	cancelled int64
	stopped   atomic.Bool
	err       error
}

// Stats is a snapshot of engine progress
type Stats struct {
	SimTime         time.Duration `json:"sim_time"`
	EventsProcessed int64         `json:"events_processed"`
	EventsCancelled int64         `json:"events_cancelled"`
	EventsPending   int           `json:"events_pending"`
}

// NewEngine creates an engine with its clock at zero
func NewEngine() *Engine {
	return &Engine{
		eventQueue: NewEventQueue(),
		simTime:    utils.NewSimTime(),
		logger:     logger.Default,
	}
}

// SetLogger sets the engine's logger
func (e *Engine) SetLogger(l *slog.Logger) {
	e.logger = l
}

// Logger returns the engine's logger
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// Now returns the current simulation time
func (e *Engine) Now() time.Duration {
	return e.simTime.Now()
}

// Schedule runs action after delay. A negative delay or a stopped engine
// returns an error that is also latched and returned by Run.
func (e *Engine) Schedule(delay time.Duration, kind EventKind, action func()) (EventHandle, error) {
	if delay < 0 {
		return EventHandle{}, e.latch(fmt.Errorf("%w: %v for %s event", ErrNegativeDelay, delay, kind))
	}
	return e.ScheduleAt(e.simTime.Now()+delay, kind, action)
}

// ScheduleAt runs action at an absolute simulation time
func (e *Engine) ScheduleAt(at time.Duration, kind EventKind, action func()) (EventHandle, error) {
	if e.stopped.Load() {
		return EventHandle{}, e.latch(fmt.Errorf("%w: cannot schedule %s event", ErrEngineStopped, kind))
	}
	if now := e.simTime.Now(); at < now {
		return EventHandle{}, e.latch(fmt.Errorf("%w: %v before now (%v) for %s event", ErrNegativeDelay, at, now, kind))
	}
	e.seq++
	ev := &Event{Time: at, Kind: kind, seq: e.seq, action: action}
	e.eventQueue.Schedule(ev)
	return EventHandle{ev: ev}, nil
}

// Cancel tombstones a pending event. It is a no-op for fired or cancelled events.
func (e *Engine) Cancel(h EventHandle) {
	if !h.Pending() {
		return
	}
	h.ev.cancelled = true
	atomic.AddInt64(&e.cancelled, 1)
}

func (e *Engine) latch(err error) error {
	if e.err == nil {
		e.err = err
		e.logger.Error("Scheduling failed", "error", err, "sim_time", e.simTime.Now())
	}
	return err
}

// Err returns the latched scheduling error, if any
func (e *Engine) Err() error {
	return e.err
}

// Run executes events in order until the queue drains or the next event lies
// after until. until <= 0 runs until the queue is empty. When a stop time is
// given the clock finishes at it.
func (e *Engine) Run(ctx context.Context, until time.Duration) error {
	e.logger.Debug("Starting event loop", "until", until, "pending", e.eventQueue.Size())

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Simulation cancelled", "sim_time", e.simTime.Now())
			return ctx.Err()
		default:
		}

		if e.err != nil {
			return e.err
		}
		if e.stopped.Load() {
			break
		}

		next := e.eventQueue.Peek()
		if next == nil || (until > 0 && next.Time > until) {
			break
		}
		event := e.eventQueue.Next()

		if err := e.simTime.Set(event.Time); err != nil {
			return e.latch(fmt.Errorf("%w: %v", ErrScheduling, err))
		}
		event.fired = true
		atomic.AddInt64(&e.processed, 1)

		e.logger.Debug("Processing event",
			"kind", event.Kind,
			"sim_time", event.Time,
			"seq", event.seq)

		if event.action != nil {
			event.action()
		}
	}

	if e.err != nil {
		return e.err
	}
	if until > 0 && e.simTime.Now() < until && !e.stopped.Load() {
		_ = e.simTime.Set(until)
	}

	e.logger.Debug("Event loop finished",
		"sim_time", e.simTime.Now(),
		"events_processed", atomic.LoadInt64(&e.processed))
	return nil
}

// Stop ends the event loop after the current action; later scheduling fails
func (e *Engine) Stop() {
	e.stopped.Store(true)
	e.logger.Debug("Simulation stopped", "sim_time", e.simTime.Now())
}

// Stopped reports whether Stop was called
func (e *Engine) Stopped() bool {
	return e.stopped.Load()
}

// Stats returns current simulation statistics (thread-safe)
func (e *Engine) Stats() Stats {
	return Stats{
		SimTime:         e.simTime.Now(),
		EventsProcessed: atomic.LoadInt64(&e.processed),
		EventsCancelled: atomic.LoadInt64(&e.cancelled),
		EventsPending:   e.eventQueue.Size(),
	}
}
