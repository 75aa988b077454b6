// Package server exposes the HTTP API: chat message send/list/stream, OAuth
// flows for both YouTube identities, health, readiness, and metrics. It
// includes permissive CORS for development and injects correlation IDs into
// request contexts for consistent logging.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/db"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// maxOAuthStates caps the in-memory OAuth state store.
const maxOAuthStates = 10000

// Sender posts one outbound message into the active live chat.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// oauthState is one pending OAuth flow: which identity started it and when it
// stops being valid.
type oauthState struct {
	provider string
	expiry   time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	ctx    context.Context
	db     *sql.DB
	store  *db.MessageStore
	hub    *chat.Hub
	sender Sender
	// auth maps identity query values (bot, streamer) to their OAuth services.
	auth map[string]*youtubeapi.Service

	stateStore map[string]oauthState
	stateMu    sync.RWMutex
}

// NewHandlers creates a Handlers instance with the given dependencies. Any of
// sender/auth may be nil when the corresponding feature is not configured; the
// affected endpoints then report that instead of panicking.
func NewHandlers(ctx context.Context, dbx *sql.DB, store *db.MessageStore, hub *chat.Hub, sender Sender, auth map[string]*youtubeapi.Service) *Handlers {
	return &Handlers{
		ctx:        ctx,
		db:         dbx,
		store:      store,
		hub:        hub,
		sender:     sender,
		auth:       auth,
		stateStore: make(map[string]oauthState),
	}
}

// cleanExpiredStates removes expired OAuth states. Callers hold stateMu.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, st := range h.stateStore {
		if now.After(st.expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState records a pending flow, cleaning up expired entries as needed.
func (h *Handlers) addOAuthState(state, provider string, expiry time.Time) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// Refusing to add past the cap fails the flow, which beats unbounded
	// growth from unfinished redirects.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = oauthState{provider: provider, expiry: expiry}
}

// takeOAuthState validates and consumes a state value, returning the provider
// that started the flow.
func (h *Handlers) takeOAuthState(state string) (string, bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	st, ok := h.stateStore[state]
	if !ok || time.Now().After(st.expiry) {
		return "", false
	}
	delete(h.stateStore, state)
	return st.provider, true
}
