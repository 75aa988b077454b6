package youtubeapi

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/onnwee/chat-relay/config"
	"github.com/onnwee/chat-relay/testutil"
)

type fakeTokenStore struct {
	access, refresh string
	expiry          time.Time
	scope           string

	upserts int
}

func (f *fakeTokenStore) UpsertOAuthToken(ctx context.Context, provider, accessToken, refreshToken string, expiry time.Time, scope string) error {
	f.access, f.refresh, f.expiry, f.scope = accessToken, refreshToken, expiry, scope
	f.upserts++
	return nil
}

func (f *fakeTokenStore) GetOAuthToken(ctx context.Context, provider string) (string, string, time.Time, string, error) {
	return f.access, f.refresh, f.expiry, f.scope, nil
}

func testConfig() *config.Config {
	return &config.Config{
		YTClientID:     "client-id",
		YTClientSecret: "client-secret",
		YTRedirectURI:  "http://localhost:8080/auth/youtube/callback",
	}
}

func TestNew_ScopeParsing(t *testing.T) {
	cfg := testConfig()
	cfg.YTScopes = "scope.a, scope.b scope.c"
	s := New(cfg, &fakeTokenStore{}, ProviderBot)

	u, err := url.Parse(s.AuthCodeURL("st"))
	if err != nil {
		t.Fatalf("AuthCodeURL() not a URL: %v", err)
	}
	if got := u.Query().Get("scope"); got != "scope.a scope.b scope.c" {
		t.Errorf("scope = %q, want the three parsed scopes", got)
	}
}

func TestAuthCodeURL(t *testing.T) {
	s := New(testConfig(), &fakeTokenStore{}, ProviderStreamer)
	u, err := url.Parse(s.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("AuthCodeURL() not a URL: %v", err)
	}
	q := u.Query()
	if q.Get("state") != "state-1" || q.Get("client_id") != "client-id" {
		t.Errorf("query = %v, want state and client_id", q)
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want offline", q.Get("access_type"))
	}
}

func TestRefreshIfNeeded_FreshTokenSkipsRefresh(t *testing.T) {
	ts := &fakeTokenStore{
		access:  "fresh-access",
		refresh: "refresh-1",
		expiry:  time.Now().Add(time.Hour),
	}
	s := New(testConfig(), ts, ProviderBot)

	tok, err := s.refreshIfNeeded(context.Background())
	if err != nil {
		t.Fatalf("refreshIfNeeded() error = %v", err)
	}
	if tok.AccessToken != "fresh-access" {
		t.Errorf("AccessToken = %q, want stored token", tok.AccessToken)
	}
	if ts.upserts != 0 {
		t.Errorf("upserts = %d, want 0 for a fresh token", ts.upserts)
	}
}

func TestRefreshIfNeeded_NoTokenStored(t *testing.T) {
	s := New(testConfig(), &fakeTokenStore{}, ProviderBot)
	if _, err := s.refreshIfNeeded(context.Background()); err == nil {
		t.Error("refreshIfNeeded() with empty store expected error")
	}
}

func TestRefresh_EmptyRefreshToken(t *testing.T) {
	s := New(testConfig(), &fakeTokenStore{}, ProviderBot)
	if _, _, _, _, err := s.Refresh(context.Background(), ""); err == nil {
		t.Error("Refresh(\"\") expected error")
	}
}

// Client with an endpoint override must hit the mock instead of the real API.
func TestClient_EndpointOverride(t *testing.T) {
	m := testutil.NewMockYouTubeServer(t)
	m.MockActiveBroadcast("lc-mock")

	ts := &fakeTokenStore{
		access:  "access",
		refresh: "refresh",
		expiry:  time.Now().Add(time.Hour),
	}
	s := New(testConfig(), ts, ProviderStreamer)
	s.endpoint = m.URL

	svc, err := s.Client(context.Background())
	if err != nil {
		t.Fatalf("Client() error = %v", err)
	}
	resp, err := svc.LiveBroadcasts.List([]string{"snippet"}).BroadcastStatus("active").Do()
	if err != nil {
		t.Fatalf("LiveBroadcasts.List() error = %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].Snippet.LiveChatId != "lc-mock" {
		t.Errorf("response = %+v, want the mocked broadcast", resp.Items)
	}
}

func TestProviderNames(t *testing.T) {
	if p := New(testConfig(), &fakeTokenStore{}, ProviderBot).Provider(); p != "youtube-bot" {
		t.Errorf("Provider() = %q, want youtube-bot", p)
	}
	if p := New(testConfig(), &fakeTokenStore{}, ProviderStreamer).Provider(); p != "youtube-streamer" {
		t.Errorf("Provider() = %q, want youtube-streamer", p)
	}
}
