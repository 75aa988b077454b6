package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/chat-relay/telemetry"
)

// ErrBroadcastEnded is returned by an UpstreamClient when a list call succeeds
// but the broadcast is over (the upstream omits the item list entirely). It
// drives recovery, never a caller-visible failure.
var ErrBroadcastEnded = errors.New("broadcast ended")

// ErrNoActiveBroadcast is returned by ActiveLiveChatID when no broadcast is
// currently live for the authenticated identity.
var ErrNoActiveBroadcast = errors.New("no active broadcast")

// UpstreamClient is the slice of the YouTube API the fetcher needs.
type UpstreamClient interface {
	// ListLiveChat fetches one page of chat for liveChatID. pageToken is empty
	// on the first call after (re)resolution.
	ListLiveChat(ctx context.Context, liveChatID, pageToken string) (*Page, error)
	// ActiveLiveChatID resolves the live chat id of the most recent active
	// broadcast for the streamer identity.
	ActiveLiveChatID(ctx context.Context) (string, error)
}

// Store is the persistence gate in front of the hub.
type Store interface {
	// InsertIfAbsent stores msg unless its youtube id was already seen.
	// inserted reports whether this call created the row; a concurrent
	// duplicate insert is success with inserted=false.
	InsertIfAbsent(ctx context.Context, msg Message) (inserted bool, err error)
}

// LiveChatRef is the shared handle to the currently active live chat id. The
// fetcher updates it on recovery; the send path reads it. Safe for concurrent
// use.
type LiveChatRef struct {
	mu sync.RWMutex
	id string
}

func NewLiveChatRef(id string) *LiveChatRef { return &LiveChatRef{id: id} }

func (r *LiveChatRef) Get() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.id
}

func (r *LiveChatRef) Set(id string) {
	r.mu.Lock()
	r.id = id
	r.mu.Unlock()
}

// Fetcher owns the poll loop. It runs for the lifetime of the process; its only
// exit is context cancellation. Failures are local: they move the loop between
// polling and recovering and are logged, never propagated.
type Fetcher struct {
	Client UpstreamClient
	Store  Store
	Hub    *Hub
	// Ref holds the active live chat id. If its initial value is empty the
	// fetcher starts in recovery.
	Ref *LiveChatRef
	// RecoveryBackoff is the sleep between failed broadcast resolutions.
	// Defaults to 10s.
	RecoveryBackoff time.Duration
	// DefaultPollInterval is used when the upstream omits pollingIntervalMillis.
	DefaultPollInterval time.Duration

	now func() time.Time
}

const (
	defaultRecoveryBackoff = 10 * time.Second
	defaultPollInterval    = 5 * time.Second
)

// Run polls until ctx is cancelled. The returned error is always ctx.Err().
func (f *Fetcher) Run(ctx context.Context) error {
	if f.now == nil {
		f.now = time.Now
	}
	backoff := f.RecoveryBackoff
	if backoff <= 0 {
		backoff = defaultRecoveryBackoff
	}
	fallbackInterval := f.DefaultPollInterval
	if fallbackInterval <= 0 {
		fallbackInterval = defaultPollInterval
	}

	pageToken := ""
	if f.Ref.Get() == "" {
		if err := f.recover(ctx, backoff); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := f.Client.ListLiveChat(ctx, f.Ref.Get(), pageToken)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrBroadcastEnded) {
				slog.Info("live chat listing reports broadcast ended")
			} else {
				slog.Error("live chat listing failed", slog.Any("err", err))
			}
			telemetry.IncPollFailures()
			if err := f.recover(ctx, backoff); err != nil {
				return err
			}
			pageToken = ""
			continue
		}

		pageToken = page.NextPageToken
		f.ingestPage(ctx, page)
		telemetry.SetLastPollSuccess(f.now())

		interval := page.PollInterval
		if interval <= 0 {
			interval = fallbackInterval
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// ingestPage maps, persists and publishes one page of items, in upstream order.
// Per-item failures are logged and skipped; the page is never aborted.
func (f *Fetcher) ingestPage(ctx context.Context, page *Page) {
	for _, it := range page.Items {
		if it.Type != textMessageEvent {
			continue
		}
		msg, err := MapItem(it, f.now())
		if err != nil {
			telemetry.IncMappingErrors()
			slog.Error("failed to map chat item", slog.Any("err", err))
			continue
		}
		inserted, err := f.Store.InsertIfAbsent(ctx, msg)
		if err != nil {
			// Storage outage: fail loudly for this message, keep the loop alive.
			// The message is not published because it is not durable.
			telemetry.IncStorageErrors()
			slog.Error("failed to persist chat message",
				slog.String("youtube_id", msg.YouTubeID), slog.Any("err", err))
			continue
		}
		if !inserted {
			telemetry.IncDuplicatesSkipped()
			slog.Debug("skipping duplicate chat message", slog.String("youtube_id", msg.YouTubeID))
			continue
		}
		telemetry.IncMessagesIngested()
		slog.Info("chat message", slog.String("author", msg.DisplayName), slog.String("message", msg.Message))
		f.Hub.Publish(msg)
	}
}

// recover resolves the active broadcast's live chat id, retrying forever with a
// fixed backoff. On success it adopts the new id; the caller clears the page
// token. Returns only ctx.Err().
func (f *Fetcher) recover(ctx context.Context, backoff time.Duration) error {
	slog.Info("resolving active broadcast live chat id")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := f.Client.ActiveLiveChatID(ctx)
		if err == nil && id != "" {
			if id != f.Ref.Get() {
				slog.Info("adopted live chat id", slog.String("live_chat_id", id))
			}
			f.Ref.Set(id)
			telemetry.IncRecoveries()
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrNoActiveBroadcast) || err == nil {
			slog.Warn("no active broadcast; retrying", slog.Duration("backoff", backoff))
		} else {
			slog.Error("live chat id resolution failed; retrying",
				slog.Duration("backoff", backoff), slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
