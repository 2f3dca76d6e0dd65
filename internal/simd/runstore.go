package simd

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/GoSim-25-26J-441/tcpsim/internal/scenario"
	"github.com/GoSim-25-26J-441/tcpsim/internal/trace"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	ErrRunExists    = errors.New("run already exists")
	ErrRunTerminal  = errors.New("run is terminal")
	ErrRunIDMissing = errors.New("run_id is required")
	ErrRunIDInvalid = errors.New("run_id cannot contain '/' or ':'")
)

// RunRecord is a run together with its input and, once completed, its results
type RunRecord struct {
	Run         *models.Run
	Config      *config.Config
	CallbackURL string
	Summary     *scenario.Summary
	FlowStats   []models.FlowStats
	Traces      *trace.Sink

	seq uint64
}

func (r *RunRecord) clone() *RunRecord {
	cp := *r
	run := *r.Run
	run.Metadata = make(map[string]string, len(r.Run.Metadata))
	for k, v := range r.Run.Metadata {
		run.Metadata[k] = v
	}
	cp.Run = &run
	return &cp
}

// RunStore keeps every run in memory
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*RunRecord
	seq  uint64
}

func NewRunStore() *RunStore {
	return &RunStore{
		runs: make(map[string]*RunRecord),
	}
}

// Create registers a pending run. An empty runID gets a generated one.
func (s *RunStore) Create(runID string, cfg *config.Config, callbackURL string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if runID == "" {
		runID = utils.GenerateRunID()
	}
	if strings.ContainsAny(runID, "/:") {
		return nil, fmt.Errorf("%w: %s", ErrRunIDInvalid, runID)
	}
	if _, exists := s.runs[runID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRunExists, runID)
	}

	s.seq++
	rec := &RunRecord{
		Run: &models.Run{
			ID:       runID,
			Status:   models.RunStatusPending,
			Metadata: map[string]string{"experiment": cfg.Name, "topology": cfg.Topology, "transport": cfg.Transport},
		},
		Config:      cfg,
		CallbackURL: callbackURL,
		seq:         s.seq,
	}
	s.runs[runID] = rec
	return rec.clone(), nil
}

// Get returns a snapshot of a run
func (s *RunStore) Get(runID string) (*RunRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runID]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// List returns runs in creation order, optionally filtered by status
func (s *RunStore) List(limit, offset int, status models.RunStatus) []*RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	all := make([]*RunRecord, 0, len(s.runs))
	for _, rec := range s.runs {
		if status == "" || rec.Run.Status == status {
			all = append(all, rec)
		}
	}
	slices.SortFunc(all, func(a, b *RunRecord) int { return int(a.seq) - int(b.seq) })

	if offset >= len(all) {
		return []*RunRecord{}
	}
	all = all[offset:]
	out := make([]*RunRecord, 0, minInt(limit, len(all)))
	for _, rec := range all[:minInt(limit, len(all))] {
		out = append(out, rec.clone())
	}
	return out
}

// Update replaces the run state. Terminal runs are never modified.
func (s *RunStore) Update(run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	if rec.Run.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrRunTerminal, run.ID)
	}
	cp := *run
	rec.Run = &cp
	return nil
}

// Cancel marks a pending or running run as cancelled
func (s *RunStore) Cancel(runID string) (*RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if !rec.Run.Status.Terminal() {
		rec.Run.Status = models.RunStatusCancelled
	}
	return rec.clone(), nil
}

// Finish records the final run state. A run already cancelled keeps its
// status but takes the final statistics. Results are kept for completed runs only.
func (s *RunStore) Finish(run *models.Run, res *scenario.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, run.ID)
	}
	if rec.Run.Status.Terminal() {
		rec.Run.StartTime = run.StartTime
		rec.Run.EndTime = run.EndTime
		rec.Run.WallDuration = run.WallDuration
		rec.Run.SimTime = run.SimTime
		rec.Run.EventsProcessed = run.EventsProcessed
		return nil
	}
	cp := *run
	rec.Run = &cp
	if res != nil && run.Status == models.RunStatusCompleted {
		rec.Summary = res.Summary
		rec.FlowStats = res.FlowStats
		rec.Traces = res.Traces
	}
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
