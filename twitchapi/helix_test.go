package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newHelixServer(t *testing.T, users []User, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users" {
			t.Errorf("path = %s, want /users", r.URL.Path)
		}
		if r.Header.Get("Client-Id") != "test-client-id" {
			t.Errorf("missing or wrong Client-Id header")
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing or wrong Authorization header")
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}
		want := map[string]bool{}
		for _, l := range r.URL.Query()["login"] {
			want[l] = true
		}
		var out []User
		for _, u := range users {
			if want[u.Login] {
				out = append(out, u)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"data": out})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(url string) *HelixClient {
	return &HelixClient{ClientID: "test-client-id", Tokens: StaticToken("test-token"), BaseURL: url}
}

func TestHelixClient_GetUser(t *testing.T) {
	users := []User{
		{ID: "1", Login: "alice", DisplayName: "Alice", ProfileImageURL: "https://img/alice.png"},
		{ID: "2", Login: "bob", DisplayName: "Bob"},
	}
	srv := newHelixServer(t, users, http.StatusOK)
	client := testClient(srv.URL)

	tests := []struct {
		name    string
		login   string
		wantID  string
		wantErr error
		errText string
	}{
		{name: "found", login: "alice", wantID: "1"},
		{name: "case insensitive", login: "ALICE", wantID: "1"},
		{name: "not found", login: "carol", wantErr: ErrUserNotFound},
		{name: "empty login", login: "  ", errText: "login empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := client.GetUser(context.Background(), tt.login)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("GetUser() error = %v, want %v", err, tt.wantErr)
				}
			case tt.errText != "":
				if err == nil || !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("GetUser() error = %v, want containing %q", err, tt.errText)
				}
			default:
				if err != nil {
					t.Fatalf("GetUser() unexpected error = %v", err)
				}
				if u.ID != tt.wantID {
					t.Errorf("GetUser().ID = %s, want %s", u.ID, tt.wantID)
				}
			}
		})
	}
}

func TestHelixClient_GetUsersBatch(t *testing.T) {
	srv := newHelixServer(t, []User{{ID: "1", Login: "alice"}, {ID: "2", Login: "bob"}}, http.StatusOK)
	got, err := testClient(srv.URL).GetUsers(context.Background(), "alice", "bob", "ghost")
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("GetUsers returned %d users, want 2", len(got))
	}

	many := make([]string, maxLoginsPerRequest+1)
	for i := range many {
		many[i] = "u" + strings.Repeat("x", i%5+1) + string(rune('a'+i%26))
	}
	if _, err := testClient(srv.URL).GetUsers(context.Background(), many...); err == nil {
		t.Error("GetUsers accepted more than the Helix limit")
	}
}

func TestHelixClient_ProfileImageURL(t *testing.T) {
	srv := newHelixServer(t, []User{{ID: "1", Login: "alice", ProfileImageURL: "https://img/alice.png"}}, http.StatusOK)
	url, err := testClient(srv.URL).ProfileImageURL(context.Background(), "alice")
	if err != nil || url != "https://img/alice.png" {
		t.Errorf("ProfileImageURL = %q, %v", url, err)
	}
}

func TestHelixClient_Errors(t *testing.T) {
	unauth := newHelixServer(t, nil, http.StatusUnauthorized)
	if _, err := testClient(unauth.URL).GetUser(context.Background(), "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("401 error = %v, want ErrUnauthorized", err)
	}

	broken := newHelixServer(t, nil, http.StatusInternalServerError)
	_, err := testClient(broken.URL).GetUser(context.Background(), "alice")
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("500 error = %v", err)
	}

	noTokens := &HelixClient{ClientID: "x", BaseURL: broken.URL}
	if _, err := noTokens.GetUser(context.Background(), "alice"); err == nil {
		t.Error("client without token provider succeeded")
	}

	if _, err := StaticToken("").Token(context.Background()); err == nil {
		t.Error("empty StaticToken returned no error")
	}
}
