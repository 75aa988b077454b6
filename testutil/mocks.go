package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// MockYouTubeServer is a test server standing in for the YouTube Data API.
// Point a client at it with option.WithEndpoint(m.URL). Handlers are keyed by
// "METHOD /resource/path" relative to the youtube/v3 base.
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server.
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if i := strings.Index(path, "/youtube/v3"); i >= 0 {
			path = path[i+len("/youtube/v3"):]
		}
		if handler, ok := m.Handlers[r.Method+" "+path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *MockYouTubeServer) respondJSON(key string, body map[string]any) {
	m.Handlers[key] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // test mock response
	}
}

// MockLiveChatList serves one page of live chat items.
func (m *MockYouTubeServer) MockLiveChatList(items []map[string]any, nextPageToken string, pollMillis int64) {
	m.respondJSON("GET /liveChat/messages", map[string]any{
		"items":                 items,
		"nextPageToken":         nextPageToken,
		"pollingIntervalMillis": pollMillis,
	})
}

// MockLiveChatEnded serves a list response with the items field absent, which
// is how the API signals that the broadcast is over.
func (m *MockYouTubeServer) MockLiveChatEnded() {
	m.respondJSON("GET /liveChat/messages", map[string]any{
		"pollingIntervalMillis": 0,
	})
}

// MockLiveChatListError serves an API error for the list call.
func (m *MockYouTubeServer) MockLiveChatListError(code int, reason string) {
	m.Handlers["GET /liveChat/messages"] = apiError(code, reason)
}

// MockActiveBroadcast serves one active broadcast carrying liveChatID.
func (m *MockYouTubeServer) MockActiveBroadcast(liveChatID string) {
	m.respondJSON("GET /liveBroadcasts", map[string]any{
		"items": []map[string]any{
			{"snippet": map[string]any{"liveChatId": liveChatID}},
		},
	})
}

// MockNoActiveBroadcast serves an empty broadcast list.
func (m *MockYouTubeServer) MockNoActiveBroadcast() {
	m.respondJSON("GET /liveBroadcasts", map[string]any{
		"items": []map[string]any{},
	})
}

// MockInsertOK accepts live chat message inserts.
func (m *MockYouTubeServer) MockInsertOK() {
	m.respondJSON("POST /liveChat/messages", map[string]any{
		"id": "inserted-message-id",
	})
}

// MockInsertError rejects live chat message inserts with an API error.
func (m *MockYouTubeServer) MockInsertError(code int, reason string) {
	m.Handlers["POST /liveChat/messages"] = apiError(code, reason)
}

// apiError renders the googleapi error envelope.
func apiError(code int, reason string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"error": map[string]any{
				"code":    code,
				"message": reason,
				"errors":  []map[string]any{{"reason": reason, "message": reason}},
			},
		})
	}
}
