package server_test

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/onnwee/chat-relay/chat"
	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/db"
	"github.com/onnwee/chat-relay/server"
	"github.com/onnwee/chat-relay/youtubeapi"
)

func oauthHandlers(t *testing.T) *server.Handlers {
	t.Helper()
	t.Setenv("YT_CLIENT_ID", "client-id")
	t.Setenv("YT_CLIENT_SECRET", "client-secret")
	t.Setenv("YT_REDIRECT_URI", "http://localhost:8080/auth/youtube/callback")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	tokens := &db.TokenStoreAdapter{}
	auth := map[string]*youtubeapi.Service{
		"bot":      youtubeapi.New(cfg, tokens, youtubeapi.ProviderBot),
		"streamer": youtubeapi.New(cfg, tokens, youtubeapi.ProviderStreamer),
	}
	return server.NewHandlers(context.Background(), nil, nil, chat.NewHub(4), nil, auth)
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestOAuthStart_RedirectsToConsent(t *testing.T) {
	ts := newTestServer(t, oauthHandlers(t))

	resp, err := noRedirectClient().Get(ts.URL + "/auth/youtube/start?identity=streamer")
	if err != nil {
		t.Fatalf("GET /auth/youtube/start: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want 302", resp.StatusCode)
	}
	loc, err := url.Parse(resp.Header.Get("Location"))
	if err != nil {
		t.Fatalf("bad Location header: %v", err)
	}
	if !strings.Contains(loc.Host, "accounts.google.com") {
		t.Errorf("redirect host = %q, want Google consent screen", loc.Host)
	}
	q := loc.Query()
	if q.Get("client_id") != "client-id" || q.Get("state") == "" {
		t.Errorf("consent URL query = %v, want client_id and state", q)
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want offline (refresh token required)", q.Get("access_type"))
	}
}

func TestOAuthStart_UnknownIdentity(t *testing.T) {
	ts := newTestServer(t, oauthHandlers(t))

	resp, err := http.Get(ts.URL + "/auth/youtube/start?identity=admin")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOAuthStart_NotConfigured(t *testing.T) {
	h := server.NewHandlers(context.Background(), nil, nil, chat.NewHub(4), nil, nil)
	ts := newTestServer(t, h)

	resp, err := http.Get(ts.URL + "/auth/youtube/start")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestOAuthCallback_RejectsBadState(t *testing.T) {
	ts := newTestServer(t, oauthHandlers(t))

	for name, path := range map[string]string{
		"missing params": "/auth/youtube/callback",
		"unknown state":  "/auth/youtube/callback?code=abc&state=never-issued",
	} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("%s: GET: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, resp.StatusCode)
		}
	}
}
