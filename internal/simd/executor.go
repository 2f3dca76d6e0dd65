package simd

import (
	"fmt"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/engine"
	"github.com/GoSim-25-26J-441/tcpsim/internal/scenario"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// progressInterval is the simulated time between clock updates of a live run
const progressInterval = 100 * time.Millisecond

type liveRun struct {
	manager *engine.RunManager
	clock   *utils.SimTime
}

// RunExecutor manages asynchronous run execution and per-run cancellation.
type RunExecutor struct {
	store    *RunStore
	notifier *Notifier

	mu   sync.Mutex
	live map[string]*liveRun
	wg   sync.WaitGroup
}

// NewRunExecutor creates an executor. notifier may be nil.
func NewRunExecutor(store *RunStore, notifier *Notifier) *RunExecutor {
	return &RunExecutor{
		store:    store,
		notifier: notifier,
		live:     make(map[string]*liveRun),
	}
}

// Start begins executing a run asynchronously and returns its RUNNING state.
func (e *RunExecutor) Start(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	e.mu.Lock()
	if _, running := e.live[runID]; running {
		e.mu.Unlock()
		return rec, nil
	}
	lr := &liveRun{
		manager: engine.NewRunManager(runID),
		clock:   utils.NewSimTime(),
	}
	for k, v := range rec.Run.Metadata {
		lr.manager.SetMetadata(k, v)
	}
	lr.manager.Start()
	if err := e.store.Update(lr.manager.GetRun()); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.live[runID] = lr
	e.mu.Unlock()

	e.wg.Add(1)
	go e.execute(rec, lr)

	updated, _ := e.store.Get(runID)
	return updated, nil
}

// Stop cancels a pending or running run and marks it cancelled.
func (e *RunExecutor) Stop(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, ErrRunIDMissing
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if rec.Run.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrRunTerminal, runID)
	}

	updated, err := e.store.Cancel(runID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	lr, running := e.live[runID]
	e.mu.Unlock()
	if running {
		lr.manager.Cancel()
	} else {
		// never started, so nobody else will notify
		e.notify(runID)
	}
	return updated, nil
}

// SimTime returns the simulated time reached by a run
func (e *RunExecutor) SimTime(runID string) (time.Duration, bool) {
	e.mu.Lock()
	lr, running := e.live[runID]
	e.mu.Unlock()
	if running {
		return lr.clock.Now(), true
	}
	rec, ok := e.store.Get(runID)
	if !ok {
		return 0, false
	}
	return rec.Run.SimTime, true
}

// Wait blocks until every started run has finished
func (e *RunExecutor) Wait() {
	e.wg.Wait()
	if e.notifier != nil {
		e.notifier.Wait()
	}
}

func (e *RunExecutor) execute(rec *RunRecord, lr *liveRun) {
	defer e.wg.Done()
	runID := rec.Run.ID
	log := logger.ForRun(runID)

	cfg := rec.Config.Clone()
	// traces are served from memory
	cfg.Tracing.Enabled = true

	res, err := scenario.Run(lr.manager.Context(), cfg,
		scenario.WithLogger(log),
		scenario.WithProgress(progressInterval, func(t time.Duration) {
			_ = lr.clock.Set(t)
		}))
	if err != nil {
		lr.manager.Fail(engine.Stats{SimTime: lr.clock.Now()}, err)
		log.Warn("run ended with error", "error", err)
	} else {
		lr.manager.Complete(res.Stats)
	}

	if finishErr := e.store.Finish(lr.manager.GetRun(), res); finishErr != nil {
		log.Error("failed to record run result", "error", finishErr)
	}

	e.mu.Lock()
	delete(e.live, runID)
	e.mu.Unlock()
	lr.manager.Cancel()

	e.notify(runID)
}

func (e *RunExecutor) notify(runID string) {
	if e.notifier == nil {
		return
	}
	if rec, ok := e.store.Get(runID); ok {
		e.notifier.Notify(rec)
	}
}
