package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/config"
	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/testutil"
	"github.com/onnwee/chat-panels/twitchapi"
)

const testToken = "tok123"

// fakeTransport exposes deliver while Run is active.
type fakeTransport struct {
	mu      sync.Mutex
	deliver func(chat.Event)
	started chan struct{}
}

func (f *fakeTransport) Run(ctx context.Context, deliver func(chat.Event)) error {
	f.mu.Lock()
	f.deliver = deliver
	f.mu.Unlock()
	close(f.started)
	<-ctx.Done()
	f.mu.Lock()
	f.deliver = nil
	f.mu.Unlock()
	return ctx.Err()
}

type fixture struct {
	srv      *httptest.Server
	sessions *session.Manager
	store    *kv.Memory
	twitch   *testutil.MockTwitchServer
	cfg      *config.Config

	mu         sync.Mutex
	transports []*fakeTransport
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := &config.Config{
		TwitchClientID:    "cid",
		TwitchRedirectURI: "http://localhost:8080/auth/twitch/callback",
		TwitchScopes:      config.DefaultScopes,
	}
	for _, m := range mutate {
		m(cfg)
	}

	f := &fixture{store: kv.NewMemory(), twitch: testutil.NewMockTwitchServer(t), cfg: cfg}
	f.twitch.MockUsers(
		testutil.MockUser{ID: "1", Login: "viewer", DisplayName: "Viewer"},
		testutil.MockUser{ID: "2", Login: "somechan", DisplayName: "SomeChan", ProfileImageURL: "https://img/somechan.png"},
		testutil.MockUser{ID: "3", Login: "alice", DisplayName: "Alice", ProfileImageURL: "https://img/alice.png"},
	)
	f.twitch.MockValidate(testToken, "viewer", []string{"chat:read", "chat:edit"}, 3600)

	helix := &twitchapi.HelixClient{ClientID: "cid", Tokens: twitchapi.StaticToken(testToken), BaseURL: f.twitch.HelixURL()}
	f.sessions = session.NewManager(session.Options{
		KV:     f.store,
		Tokens: f.store,
		Users:  helix,
		NewTransport: func(session.Params) (chat.Transport, error) {
			ft := &fakeTransport{started: make(chan struct{})}
			f.mu.Lock()
			f.transports = append(f.transports, ft)
			f.mu.Unlock()
			return ft, nil
		},
		AvatarTimeout: time.Second,
	})
	t.Cleanup(f.sessions.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.srv = httptest.NewServer(NewMux(ctx, Deps{
		Config:    cfg,
		Sessions:  f.sessions,
		KV:        f.store,
		Tokens:    f.store,
		Validator: &twitchapi.Validator{URL: f.twitch.ValidateURL()},
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// startSession stores a token and starts a session through the login form.
func (f *fixture) startSession(t *testing.T) *fakeTransport {
	t.Helper()
	if err := f.store.SaveToken(context.Background(), kv.Token{AccessToken: testToken}); err != nil {
		t.Fatal(err)
	}
	res := f.do(t, http.MethodPost, "/session", map[string]string{"username": "viewer", "channel": "somechan"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("POST /session = %d: %s", res.StatusCode, readBody(t, res))
	}
	res.Body.Close()
	return f.lastTransport(t)
}

func (f *fixture) lastTransport(t *testing.T) *fakeTransport {
	t.Helper()
	f.mu.Lock()
	if len(f.transports) == 0 {
		f.mu.Unlock()
		t.Fatal("no transport created")
	}
	ft := f.transports[len(f.transports)-1]
	f.mu.Unlock()
	select {
	case <-ft.started:
	case <-time.After(2 * time.Second):
		t.Fatal("transport never started")
	}
	return ft
}

func (ft *fakeTransport) send(t *testing.T, ev chat.Event) {
	t.Helper()
	ft.mu.Lock()
	d := ft.deliver
	ft.mu.Unlock()
	if d == nil {
		t.Fatal("transport not running")
	}
	d(ev)
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return res
}

func readBody(t *testing.T, res *http.Response) string {
	t.Helper()
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func decodeBody(t *testing.T, res *http.Response, v any) {
	t.Helper()
	defer res.Body.Close()
	if err := json.NewDecoder(res.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
