package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/chat-relay/telemetry"
	"github.com/onnwee/chat-relay/youtubeapi"
)

// HandleMessages dispatches /messages: GET lists stored history, POST sends a
// message into the live chat as the bot identity.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleMessagesList(w, r)
	case http.MethodPost:
		h.handleMessageSend(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMessagesList returns persisted messages, newest first.
// Params: limit (default 50, max 500), offset.
func (h *Handlers) handleMessagesList(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := parseIntQuery(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	msgs, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Error("failed to list chat messages", slog.Any("err", err))
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(msgs)
}

// handleMessageSend validates and forwards one outbound message. Rejections
// (empty, too long, refused by the API) are 422; a missing live chat target is
// 503 because it resolves itself when a broadcast goes live.
func (h *Handlers) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	if h.sender == nil {
		http.Error(w, "sending not configured", http.StatusServiceUnavailable)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if err := h.sender.Send(r.Context(), body.Message); err != nil {
		log := telemetry.LoggerWithCorr(r.Context())
		switch {
		case errors.Is(err, youtubeapi.ErrSendRejected):
			log.Warn("chat message rejected", slog.Any("err", err))
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		case errors.Is(err, youtubeapi.ErrNoLiveChat):
			log.Warn("chat send with no active live chat")
			http.Error(w, "no active live chat", http.StatusServiceUnavailable)
		default:
			log.Error("chat send failed", slog.Any("err", err))
			http.Error(w, "send failed", http.StatusBadGateway)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// sseKeepAlive is how often an idle stream emits a comment line so proxies
// don't reap the connection.
const sseKeepAlive = 15 * time.Second

// HandleMessagesStream streams newly ingested messages over Server-Sent
// Events. A client sees only messages published after it connected; history is
// served by GET /messages. The stream ends when the client disconnects or the
// subscription is dropped for falling behind.
func (h *Handlers) HandleMessagesStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub := h.hub.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	enc := json.NewEncoder(w)
	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-sub.Events():
			if !ok {
				// Dropped by the overflow policy; the client reconnects.
				telemetry.LoggerWithCorr(ctx).Warn("chat stream subscription dropped")
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(msg); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
