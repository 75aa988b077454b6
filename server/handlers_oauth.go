package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// identityParam maps the ?identity= query value to a provider key registered
// in h.auth. Defaults to the bot identity.
func (h *Handlers) identityService(r *http.Request) (string, bool) {
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = "bot"
	}
	_, ok := h.auth[identity]
	return identity, ok
}

// HandleYouTubeOAuthStart initiates the OAuth flow for one identity by
// redirecting to Google's consent screen.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	if len(h.auth) == 0 {
		http.Error(w, "youtube oauth not configured (need YT_CLIENT_ID + YT_REDIRECT_URI)", http.StatusBadRequest)
		return
	}
	identity, ok := h.identityService(r)
	if !ok {
		http.Error(w, "unknown identity (want bot or streamer)", http.StatusBadRequest)
		return
	}
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, identity, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.auth[identity].AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback handles the redirect back from Google and stores
// the tokens under the identity that started the flow.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	identity, ok := h.takeOAuthState(st)
	if !ok {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	svc, ok := h.auth[identity]
	if !ok {
		http.Error(w, "unknown identity", http.StatusBadRequest)
		return
	}
	tok, err := svc.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":                "ok",
		"identity":              identity,
		"expiry":                tok.Expiry,
		"access_token_present":  tok.AccessToken != "",
		"refresh_token_present": tok.RefreshToken != "",
	}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
