package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// MockUser is a Helix user object as served by MockTwitchServer.
type MockUser struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// MockTwitchServer creates a test server that mocks Twitch Helix and id.twitch.tv responses
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc

	mu    sync.Mutex
	calls map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// HelixURL is the base URL to hand a Helix client.
func (m *MockTwitchServer) HelixURL() string { return m.URL + "/helix" }

// ValidateURL is the token validation endpoint.
func (m *MockTwitchServer) ValidateURL() string { return m.URL + "/oauth2/validate" }

// TokenURL is the client-credentials token endpoint.
func (m *MockTwitchServer) TokenURL() string { return m.URL + "/oauth2/token" }

// Calls reports how many requests hit path.
func (m *MockTwitchServer) Calls(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[path]
}

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	m.Handlers[path] = h
	m.mu.Unlock()
}

// MockUsers adds a handler for /helix/users that answers the requested logins it knows.
func (m *MockTwitchServer) MockUsers(users ...MockUser) {
	m.handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Client-Id") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		data := []MockUser{}
		for _, login := range r.URL.Query()["login"] {
			for _, u := range users {
				if strings.EqualFold(u.Login, login) {
					data = append(data, u)
				}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data}) //nolint:errcheck // test mock response
	})
}

// MockValidate adds a handler for /oauth2/validate that accepts token.
// Any other token gets a 401.
func (m *MockTwitchServer) MockValidate(token, login string, scopes []string, expiresIn int) {
	m.handle("/oauth2/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "OAuth "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"status": 401, "message": "invalid access token"}) //nolint:errcheck // test mock response
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"client_id":  "test-client",
			"login":      login,
			"user_id":    "1",
			"scopes":     scopes,
			"expires_in": expiresIn,
		})
	})
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	})
}
