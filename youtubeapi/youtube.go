// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data API
// for the live chat pipeline. Two identities share the same client credentials:
// the streamer identity lists chat and resolves the active broadcast, the bot
// identity inserts outbound messages. Tokens are persisted via the provided
// TokenStore interface so they can be refreshed and reused across restarts.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/chat-relay/config"
)

// Provider keys in the oauth_tokens table, one per identity.
const (
	ProviderBot      = "youtube-bot"
	ProviderStreamer = "youtube-streamer"
)

type TokenStore interface {
	UpsertOAuthToken(ctx context.Context, provider string, accessToken string, refreshToken string, expiry time.Time, scope string) error
	GetOAuthToken(ctx context.Context, provider string) (accessToken string, refreshToken string, expiry time.Time, scope string, err error)
}

// Service is one authenticated identity against the YouTube API.
type Service struct {
	cfg      *config.Config
	db       TokenStore
	oauth    *oauth2.Config
	provider string
	// endpoint overrides the API base URL; used by tests to point at a mock.
	endpoint string
}

func New(cfg *config.Config, ts TokenStore, provider string) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		if fields := strings.Fields(s); len(fields) > 0 {
			scopes = fields
		}
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, db: ts, oauth: oauth, provider: provider}
}

func (s *Service) Provider() string { return s.provider }

// AuthCodeURL builds the consent URL for this identity. ApprovalForce makes
// Google return a refresh token even on re-consent.
func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and persists them under this
// identity's provider key.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	scope := strings.Join(s.oauth.Scopes, " ")
	if err := s.db.UpsertOAuthToken(ctx, s.provider, tok.AccessToken, tok.RefreshToken, tok.Expiry, scope); err != nil {
		return nil, fmt.Errorf("persist token: %w", err)
	}
	return tok, nil
}

// refreshIfNeeded loads the stored token and refreshes it when it is within
// two minutes of expiry. A refreshed token is persisted before use.
func (s *Service) refreshIfNeeded(ctx context.Context) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := s.db.GetOAuthToken(ctx, s.provider)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, fmt.Errorf("no token stored for %s", s.provider)
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, err
	}
	if newTok.RefreshToken == "" {
		newTok.RefreshToken = refresh
	}
	if err := s.db.UpsertOAuthToken(ctx, s.provider, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, scope); err != nil {
		return nil, fmt.Errorf("persist refreshed token: %w", err)
	}
	return newTok, nil
}

// Refresh performs a one-shot refresh against Google from a bare refresh token.
// It matches the oauth.RefreshFunc signature used by the background refresher.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
	if refreshToken == "" {
		return "", "", time.Time{}, "", errors.New("empty refresh token")
	}
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", "", time.Time{}, "", err
	}
	return tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "), nil
}

// Client returns a YouTube API client authenticated as this identity.
func (s *Service) Client(ctx context.Context) (*yt.Service, error) {
	tok, err := s.refreshIfNeeded(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{option.WithHTTPClient(s.oauth.Client(ctx, tok))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	return yt.NewService(ctx, opts...)
}
