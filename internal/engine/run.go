package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
)

// RunManager manages the lifecycle of a simulation run
type RunManager struct {
	run    *models.Run
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunManager creates a new run manager
func NewRunManager(runID string) *RunManager {
	ctx, cancel := context.WithCancel(context.Background())

	return &RunManager{
		run: &models.Run{
			ID:       runID,
			Status:   models.RunStatusPending,
			Metadata: make(map[string]string),
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start marks the run as started
func (rm *RunManager) Start() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.run.Status = models.RunStatusRunning
	rm.run.StartTime = time.Now()
}

// Complete marks the run as completed with the engine's final statistics
func (rm *RunManager) Complete(stats Stats) {
	rm.finish(models.RunStatusCompleted, stats, nil)
}

// Fail marks the run as failed. A context cancellation is recorded as cancelled.
func (rm *RunManager) Fail(stats Stats, err error) {
	status := models.RunStatusFailed
	if errors.Is(err, context.Canceled) {
		status = models.RunStatusCancelled
	}
	rm.finish(status, stats, err)
}

func (rm *RunManager) finish(status models.RunStatus, stats Stats, err error) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.run.Status.Terminal() {
		return
	}
	rm.run.Status = status
	rm.run.EndTime = time.Now()
	rm.run.WallDuration = rm.run.EndTime.Sub(rm.run.StartTime)
	rm.run.SimTime = stats.SimTime
	rm.run.EventsProcessed = stats.EventsProcessed
	if err != nil {
		rm.run.Error = err.Error()
	}
}

// Cancel cancels the run's context
func (rm *RunManager) Cancel() {
	rm.cancel()
}

// Context returns the run's context
func (rm *RunManager) Context() context.Context {
	return rm.ctx
}

// GetRun returns the current run state (thread-safe)
func (rm *RunManager) GetRun() *models.Run {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	runCopy := *rm.run
	runCopy.Metadata = make(map[string]string, len(rm.run.Metadata))
	for k, v := range rm.run.Metadata {
		runCopy.Metadata[k] = v
	}
	return &runCopy
}

// SetMetadata sets a metadata value
func (rm *RunManager) SetMetadata(key, value string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.run.Metadata[key] = value
}

// GetMetadata gets a metadata value
func (rm *RunManager) GetMetadata(key string) (string, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	value, ok := rm.run.Metadata[key]
	return value, ok
}
