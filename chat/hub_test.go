package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/onnwee/chat-relay/telemetry"
)

func TestHub_FanOutPreservesOrder(t *testing.T) {
	h := NewHub(8)
	a := h.Subscribe()
	defer a.Close()
	b := h.Subscribe()
	defer b.Close()

	for i := 0; i < 5; i++ {
		h.Publish(Message{YouTubeID: fmt.Sprintf("m%d", i)})
	}

	for name, sub := range map[string]*Subscription{"a": a, "b": b} {
		for i := 0; i < 5; i++ {
			msg := <-sub.Events()
			if want := fmt.Sprintf("m%d", i); msg.YouTubeID != want {
				t.Errorf("subscriber %s message %d = %q, want %q", name, i, msg.YouTubeID, want)
			}
		}
	}
}

func TestHub_SlowSubscriberDroppedOthersUnaffected(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe()
	fast := h.Subscribe()
	defer fast.Close()

	// Fill slow's buffer without draining it; the third publish overflows it.
	for i := 0; i < 3; i++ {
		h.Publish(Message{YouTubeID: fmt.Sprintf("m%d", i)})
		// Keep fast drained so it never overflows.
		<-fast.Events()
	}

	if got := h.Len(); got != 1 {
		t.Fatalf("Len() = %d after overflow, want 1", got)
	}

	// The dropped subscription's channel is closed after its buffered messages.
	seen := 0
	for range slow.Events() {
		seen++
	}
	if seen != 2 {
		t.Errorf("slow subscriber drained %d buffered messages, want 2", seen)
	}

	// The surviving subscription still receives.
	h.Publish(Message{YouTubeID: "after"})
	if msg := <-fast.Events(); msg.YouTubeID != "after" {
		t.Errorf("fast subscriber got %q after drop, want %q", msg.YouTubeID, "after")
	}
}

func TestHub_PublishWithNoSubscribers(t *testing.T) {
	h := NewHub(4)
	// Must not block or panic.
	h.Publish(Message{YouTubeID: "m1"})
	if h.Len() != 0 {
		t.Errorf("Len() = %d, want 0", h.Len())
	}
}

func TestSubscription_CloseIdempotent(t *testing.T) {
	h := NewHub(4)
	s := h.Subscribe()
	s.Close()
	s.Close() // second close must not panic

	if h.Len() != 0 {
		t.Errorf("Len() = %d after close, want 0", h.Len())
	}
	if _, ok := <-s.Events(); ok {
		t.Error("Events() still open after Close")
	}

	// Publishing after close only reaches live subscriptions.
	h.Publish(Message{YouTubeID: "m1"})
}

func TestHub_SubscriberGaugeTracksChurn(t *testing.T) {
	telemetry.Init()
	h := NewHub(4)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := h.Subscribe()
			h.Publish(Message{YouTubeID: "m"})
			s.Close()
		}()
	}
	wg.Wait()

	keep := h.Subscribe()
	defer keep.Close()

	if got := testutil.ToFloat64(telemetry.SubscribersGauge); got != float64(h.Len()) {
		t.Errorf("subscribers gauge = %v after churn, want %d", got, h.Len())
	}
}

func TestHub_LateSubscriberMissesEarlierMessages(t *testing.T) {
	h := NewHub(4)
	h.Publish(Message{YouTubeID: "before"})

	s := h.Subscribe()
	defer s.Close()
	h.Publish(Message{YouTubeID: "after"})

	if msg := <-s.Events(); msg.YouTubeID != "after" {
		t.Errorf("late subscriber got %q, want %q", msg.YouTubeID, "after")
	}
}
