package simd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/tcpsim/pkg/logger"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/models"
	"github.com/GoSim-25-26J-441/tcpsim/pkg/utils"
)

// ErrInvalidCallbackURL is returned for callback URLs that are not absolute http(s) URLs
var ErrInvalidCallbackURL = errors.New("invalid callback_url")

// NotificationPayload is the JSON body posted to the callback URL
type NotificationPayload struct {
	RunID     string                 `json:"run_id"`
	Status    models.RunStatus       `json:"status"`
	SimTimeMs float64                `json:"sim_time_ms"`
	Error     string                 `json:"error,omitempty"`
	Summary   *models.GoodputSummary `json:"summary,omitempty"`
	Timestamp int64                  `json:"timestamp"`
}

// Notifier posts terminal run states to callback URLs
type Notifier struct {
	httpClient *http.Client
	maxRetries int
	backoff    *utils.ExponentialBackoff
	secret     string

	wg sync.WaitGroup
}

// NewNotifier creates a notifier. A non-empty secret is sent in the
// X-Simulation-Callback-Secret header.
func NewNotifier(secret string) *Notifier {
	return &Notifier{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxRetries: 3,
		backoff:    utils.NewExponentialBackoff(time.Second, 30*time.Second, 2),
		secret:     secret,
	}
}

func validateCallbackURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCallbackURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidCallbackURL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidCallbackURL)
	}
	return nil
}

// Notify sends the run state in the background and returns immediately
func (n *Notifier) Notify(rec *RunRecord) {
	if rec == nil || rec.Run == nil || rec.CallbackURL == "" {
		return
	}

	finalURL := strings.ReplaceAll(rec.CallbackURL, "{run_id}", rec.Run.ID)
	payload := NotificationPayload{
		RunID:     rec.Run.ID,
		Status:    rec.Run.Status,
		SimTimeMs: utils.TimeToMs(rec.Run.SimTime),
		Error:     rec.Run.Error,
		Timestamp: time.Now().UTC().UnixMilli(),
	}
	if rec.Summary != nil {
		payload.Summary = &rec.Summary.GoodputSummary
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.send(finalURL, payload)
	}()
}

// Wait blocks until every pending notification has finished
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) send(callbackURL string, payload NotificationPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal notification payload", "run_id", payload.RunID, "error", err)
		return
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			delay := n.backoff.NextDelay(attempt - 1)
			logger.Debug("retrying notification",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt,
				"delay", delay)
			time.Sleep(delay)
		}

		req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
		if err != nil {
			lastErr = fmt.Errorf("failed to create request: %w", err)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "tcpsim/1.0")
		if n.secret != "" {
			req.Header.Set("X-Simulation-Callback-Secret", n.secret)
		}

		resp, err := n.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			logger.Warn("notification attempt failed",
				"callback_url", callbackURL,
				"run_id", payload.RunID,
				"attempt", attempt+1,
				"error", err)
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			logger.Info("notification sent",
				"run_id", payload.RunID,
				"status", payload.Status,
				"status_code", resp.StatusCode)
			return
		}
		lastErr = fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		logger.Warn("notification returned non-2xx status",
			"callback_url", callbackURL,
			"run_id", payload.RunID,
			"status_code", resp.StatusCode,
			"response_body", string(respBody),
			"attempt", attempt+1)
	}

	logger.Error("failed to send notification after retries",
		"callback_url", callbackURL,
		"run_id", payload.RunID,
		"max_retries", n.maxRetries,
		"last_error", lastErr)
}
