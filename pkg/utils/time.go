package utils

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// SimTime is a virtual clock measured from the start of a simulation. Only the
// engine advances it; other goroutines may read it to report progress.
type SimTime struct {
	mu      sync.RWMutex
	current time.Duration
}

// NewSimTime creates a clock at virtual time zero
func NewSimTime() *SimTime {
	return &SimTime{}
}

// Now returns the current simulation time
func (st *SimTime) Now() time.Duration {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.current
}

// Set moves the clock to t. The clock never runs backwards.
func (st *SimTime) Set(t time.Duration) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if t < st.current {
		return fmt.Errorf("sim time cannot move backwards: %v -> %v", st.current, t)
	}
	st.current = t
	return nil
}

// SecondsToDuration converts fractional seconds to a time.Duration
func SecondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// TimeToMs converts time.Duration to milliseconds
func TimeToMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return d.String()
	}
	if d < time.Millisecond {
		return d.Round(time.Microsecond).String()
	}
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
