package engine

import (
	"container/heap"
	"sync"
	"time"
)

// EventKind labels an event for logging and statistics
type EventKind string

const (
	// EventKindTransmit is a frame leaving a channel's transmitter
	EventKindTransmit EventKind = "transmit"

	// EventKindArrival is a frame reaching the far end of a channel
	EventKindArrival EventKind = "arrival"

	// EventKindTimer is a transport retransmission timer
	EventKindTimer EventKind = "timer"

	// EventKindApp is an application start, stop or send opportunity
	EventKindApp EventKind = "app"

	// EventKindTrace is a trace or monitoring hook
	EventKindTrace EventKind = "trace"
)

// Event is a scheduled action. Events run in (Time, seq) order.
type Event struct {
	Time      time.Duration
	Kind      EventKind
	seq       uint64
	action    func()
	cancelled bool
	fired     bool
	index     int
}

// EventHandle refers to a scheduled event. The zero value refers to nothing.
type EventHandle struct {
	ev *Event
}

// Pending reports whether the event is still waiting to fire
func (h EventHandle) Pending() bool {
	return h.ev != nil && !h.ev.cancelled && !h.ev.fired
}

// Time returns the instant the event is scheduled for
func (h EventHandle) Time() time.Duration {
	if h.ev == nil {
		return 0
	}
	return h.ev.Time
}

// EventQueue is a priority queue of events ordered by time, then insertion order
type EventQueue struct {
	events []*Event
	mu     sync.RWMutex
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	eq := &EventQueue{
		events: make([]*Event, 0),
	}
	heap.Init(eq)
	return eq
}

// Len returns the number of events in the queue, tombstones included
func (eq *EventQueue) Len() int {
	return len(eq.events)
}

// Less compares two events by time and insertion order
func (eq *EventQueue) Less(i, j int) bool {
	if eq.events[i].Time != eq.events[j].Time {
		return eq.events[i].Time < eq.events[j].Time
	}
	return eq.events[i].seq < eq.events[j].seq
}

// Swap swaps two events in the queue
func (eq *EventQueue) Swap(i, j int) {
	eq.events[i], eq.events[j] = eq.events[j], eq.events[i]
	eq.events[i].index = i
	eq.events[j].index = j
}

// Push adds an event to the queue
func (eq *EventQueue) Push(x interface{}) {
	ev := x.(*Event)
	ev.index = len(eq.events)
	eq.events = append(eq.events, ev)
}

// Pop removes and returns the last event of the heap slice
func (eq *EventQueue) Pop() interface{} {
	old := eq.events
	n := len(old)
	event := old[n-1]
	old[n-1] = nil // avoid memory leak
	event.index = -1
	eq.events = old[0 : n-1]
	return event
}

// Schedule adds an event to the queue (thread-safe)
func (eq *EventQueue) Schedule(event *Event) {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	heap.Push(eq, event)
}

// Next removes and returns the next live event, discarding tombstones (thread-safe)
func (eq *EventQueue) Next() *Event {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for eq.Len() > 0 {
		ev := heap.Pop(eq).(*Event)
		if !ev.cancelled {
			return ev
		}
	}
	return nil
}

// Peek returns the next live event without removing it (thread-safe)
func (eq *EventQueue) Peek() *Event {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for eq.Len() > 0 {
		if !eq.events[0].cancelled {
			return eq.events[0]
		}
		heap.Pop(eq)
	}
	return nil
}

// Clear removes all events from the queue (thread-safe)
func (eq *EventQueue) Clear() {
	eq.mu.Lock()
	defer eq.mu.Unlock()
	for _, ev := range eq.events {
		ev.cancelled = true
	}
	eq.events = make([]*Event, 0)
	heap.Init(eq)
}

// Size returns the current queue size, tombstones included (thread-safe)
func (eq *EventQueue) Size() int {
	eq.mu.RLock()
	defer eq.mu.RUnlock()
	return eq.Len()
}

// IsEmpty returns true if no live event remains
func (eq *EventQueue) IsEmpty() bool {
	return eq.Peek() == nil
}
