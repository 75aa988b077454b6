package telemetry

import (
	"context"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	Init() // second call must not re-register (promauto panics on duplicates)

	if MessagesIngested == nil || LastPollSuccessGauge == nil {
		t.Fatal("Init() did not register metrics")
	}

	// Helpers must be safe to call once initialized.
	IncMessagesIngested()
	IncDuplicatesSkipped()
	IncMappingErrors()
	IncStorageErrors()
	IncPollFailures()
	IncRecoveries()
	IncMessagesSent()
	IncSendFailures()
	AddSubscribersDropped(2)
	SetSubscribers(3)
}

func TestLastPollSuccess(t *testing.T) {
	if got := LastPollSuccess(); !got.IsZero() {
		t.Fatalf("LastPollSuccess() before any poll = %v, want zero time", got)
	}
	now := time.Now()
	SetLastPollSuccess(now)
	got := LastPollSuccess()
	if !got.Equal(now) {
		t.Errorf("LastPollSuccess() = %v, want %v", got, now)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation(empty ctx) = %q, want empty", got)
	}
	ctx = WithCorrelation(ctx, "corr-123")
	if got := GetCorrelation(ctx); got != "corr-123" {
		t.Errorf("GetCorrelation() = %q, want corr-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr() returned nil")
	}
}
