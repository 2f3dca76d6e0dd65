package simd

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/internal/trace"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/config"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

const maxListLimit = 1000

type HTTPServer struct {
	mux      *http.ServeMux
	store    *RunStore
	Executor *RunExecutor
}

func NewHTTPServer(store *RunStore, executor *RunExecutor) *HTTPServer {
	s := &HTTPServer{
		mux:      http.NewServeMux(),
		store:    store,
		Executor: executor,
	}

	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/v1/runs", s.handleRuns)
	s.mux.HandleFunc("/v1/runs/", s.handleRunByID)

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// runView is the JSON form of a run
type runView struct {
	ID              string            `json:"id"`
	Status          models.RunStatus  `json:"status"`
	StartTime       string            `json:"start_time,omitempty"`
	EndTime         string            `json:"end_time,omitempty"`
	WallDurationMs  int64             `json:"wall_duration_ms,omitempty"`
	SimTimeMs       float64           `json:"sim_time_ms"`
	EventsProcessed int64             `json:"events_processed"`
	Error           string            `json:"error,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func newRunView(rec *RunRecord, executor *RunExecutor) runView {
	simTime := rec.Run.SimTime
	if executor != nil && rec.Run.Status == models.RunStatusRunning {
		if live, ok := executor.SimTime(rec.Run.ID); ok {
			simTime = live
		}
	}
	return runView{
		ID:              rec.Run.ID,
		Status:          rec.Run.Status,
		StartTime:       formatTime(rec.Run.StartTime),
		EndTime:         formatTime(rec.Run.EndTime),
		WallDurationMs:  rec.Run.WallDuration.Milliseconds(),
		SimTimeMs:       utils.TimeToMs(simTime),
		EventsProcessed: rec.Run.EventsProcessed,
		Error:           rec.Run.Error,
		Metadata:        rec.Run.Metadata,
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleRuns handles /v1/runs
func (s *HTTPServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateRun(w, r)
	case http.MethodGet:
		s.handleListRuns(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRunByID handles /v1/runs/{id}, /v1/runs/{id}:stop, /v1/runs/{id}/summary and /v1/runs/{id}/traces
func (s *HTTPServer) handleRunByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/runs/")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	route := func(suffix, method string, h func(http.ResponseWriter, *http.Request, string)) bool {
		if !strings.HasSuffix(path, suffix) {
			return false
		}
		if r.Method != method {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return true
		}
		h(w, r, strings.TrimSuffix(path, suffix))
		return true
	}

	switch {
	case route(":stop", http.MethodPost, s.handleStopRun):
	case route("/summary", http.MethodGet, s.handleSummary):
	case route("/traces", http.MethodGet, s.handleTraces):
	case strings.Contains(path, "/"):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		route("", http.MethodGet, s.handleGetRun)
	}
}

type createRunRequest struct {
	RunID       string          `json:"run_id,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	ConfigYAML  string          `json:"config_yaml,omitempty"`
	CallbackURL string          `json:"callback_url,omitempty"`
}

func (req createRunRequest) parseConfig() (*config.Config, error) {
	switch {
	case len(req.Config) > 0 && req.ConfigYAML != "":
		return nil, errors.New("only one of config and config_yaml may be set")
	case len(req.Config) > 0:
		return config.ParseConfigJSON(req.Config)
	case req.ConfigYAML != "":
		return config.ParseConfigYAMLString(req.ConfigYAML)
	}
	return nil, errors.New("config or config_yaml is required")
}

// handleCreateRun handles POST /v1/runs
func (s *HTTPServer) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	cfg, err := req.parseConfig()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validateCallbackURL(req.CallbackURL); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.store.Create(req.RunID, cfg, req.CallbackURL)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	started, err := s.Executor.Start(rec.Run.ID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	logger.Info("run created (HTTP)", "run_id", started.Run.ID)
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"run": newRunView(started, s.Executor),
	})
}

// handleListRuns handles GET /v1/runs with pagination and filtering
func (s *HTTPServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
			if limit > maxListLimit {
				limit = maxListLimit
			}
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	status, ok := parseRunStatus(q.Get("status"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	runs := s.store.List(limit, offset, status)
	views := make([]runView, 0, len(runs))
	for _, rec := range runs {
		views = append(views, newRunView(rec, s.Executor))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"runs": views,
		"pagination": map[string]any{
			"limit":  limit,
			"offset": offset,
			"count":  len(views),
		},
	})
}

func parseRunStatus(v string) (models.RunStatus, bool) {
	if v == "" {
		return "", true
	}
	status := models.RunStatus(strings.ToLower(v))
	switch status {
	case models.RunStatusPending, models.RunStatusRunning, models.RunStatusCompleted,
		models.RunStatusFailed, models.RunStatusCancelled:
		return status, true
	}
	return "", false
}

func (s *HTTPServer) handleGetRun(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": newRunView(rec, s.Executor),
	})
}

func (s *HTTPServer) handleStopRun(w http.ResponseWriter, _ *http.Request, runID string) {
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	logger.Info("run cancelled (HTTP)", "run_id", runID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run": newRunView(updated, s.Executor),
	})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, _ *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Summary == nil {
		s.writeError(w, http.StatusPreconditionFailed, "summary not available")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"summary":    rec.Summary.GoodputSummary,
		"flow_stats": rec.FlowStats,
	})
}

type tracePoint struct {
	T float64 `json:"t"`
	V float64 `json:"v"`
}

type traceView struct {
	Node   int          `json:"node"`
	Flow   int          `json:"flow"`
	Metric string       `json:"metric"`
	Points []tracePoint `json:"points"`
}

func parseIntParam(v string) (*int, error) {
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *HTTPServer) handleTraces(w http.ResponseWriter, r *http.Request, runID string) {
	rec, ok := s.store.Get(runID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if rec.Traces == nil {
		s.writeError(w, http.StatusPreconditionFailed, "traces not available")
		return
	}

	q := r.URL.Query()
	node, err := parseIntParam(q.Get("node"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid node: "+err.Error())
		return
	}
	flow, err := parseIntParam(q.Get("flow"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid flow: "+err.Error())
		return
	}

	streams := rec.Traces.Select(trace.Filter{Node: node, Flow: flow, Metric: q.Get("metric")})
	views := make([]traceView, 0, len(streams))
	for _, st := range streams {
		key := st.Key()
		v := traceView{Node: key.Node, Flow: key.Flow, Metric: key.Metric}
		for _, p := range st.Points() {
			v.Points = append(v.Points, tracePoint{T: p.At.Seconds(), V: p.Value})
		}
		views = append(views, v)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"streams": views,
	})
}

func (s *HTTPServer) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrRunExists), errors.Is(err, ErrRunTerminal):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrRunIDMissing), errors.Is(err, ErrRunIDInvalid):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
