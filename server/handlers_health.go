package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// ingestionStaleAfter is how old the last successful poll may be before
// readiness reports the pipeline as stalled. The poll loop normally ticks
// every few seconds; recovery retries every ten.
const ingestionStaleAfter = 2 * time.Minute

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed system checks.
// The ingestion check is the operational liveness signal: the poll loop retries
// forever and never reports a terminal failure, so a stale last-success
// timestamp is the only way to see it wedged from outside.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"credentials", func() error {
			var count int
			err := h.db.QueryRowContext(r.Context(),
				"SELECT COUNT(*) FROM oauth_tokens WHERE provider IN ($1, $2)",
				youtubeapi.ProviderBot, youtubeapi.ProviderStreamer).Scan(&count)
			if err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("missing OAuth tokens")
			}
			return nil
		}},
		{"ingestion", func() error {
			last := telemetry.LastPollSuccess()
			if last.IsZero() {
				return fmt.Errorf("no successful poll yet")
			}
			if age := time.Since(last); age > ingestionStaleAfter {
				return fmt.Errorf("last successful poll %s ago", age.Round(time.Second))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
