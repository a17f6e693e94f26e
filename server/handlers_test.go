package server

import (
	"bufio"
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/chat-panels/chat"
	"github.com/onnwee/chat-panels/config"
	"github.com/onnwee/chat-panels/kv"
	"github.com/onnwee/chat-panels/session"
	"github.com/onnwee/chat-panels/view"
)

func TestHealthzWithoutDB(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/healthz", nil)
	if body := readBody(t, res); res.StatusCode != http.StatusOK || body != "ok" {
		t.Errorf("healthz = %d %q", res.StatusCode, body)
	}
}

func TestReadyz(t *testing.T) {
	f := newFixture(t)
	var ready map[string]string
	res := f.do(t, http.MethodGet, "/readyz", nil)
	decodeBody(t, res, &ready)
	if res.StatusCode != http.StatusOK || ready["status"] != "ready" {
		t.Errorf("readyz = %d %v", res.StatusCode, ready)
	}

	f = newFixture(t, func(c *config.Config) { c.TwitchClientID = "" })
	var notReady map[string]string
	res = f.do(t, http.MethodGet, "/readyz", nil)
	decodeBody(t, res, &notReady)
	if res.StatusCode != http.StatusServiceUnavailable || notReady["failed_check"] != "oauth_config" {
		t.Errorf("readyz without oauth = %d %v", res.StatusCode, notReady)
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodGet, f.srv.URL+"/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-1")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if got := res.Header.Get("X-Correlation-ID"); got != "corr-1" {
		t.Errorf("X-Correlation-ID = %q", got)
	}

	res = f.do(t, http.MethodGet, "/healthz", nil)
	res.Body.Close()
	if res.Header.Get("X-Correlation-ID") == "" {
		t.Error("expected generated correlation id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/metrics", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("/metrics = %d", res.StatusCode)
	}
}

// oauthStart runs /auth/twitch/start and returns the issued state.
func oauthStart(t *testing.T, f *fixture, query string) string {
	t.Helper()
	res := f.do(t, http.MethodGet, "/auth/twitch/start"+query, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusFound {
		t.Fatalf("start = %d, want 302", res.StatusCode)
	}
	loc, err := url.Parse(res.Header.Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	q := loc.Query()
	if q.Get("response_type") != "token" || q.Get("client_id") != "cid" || q.Get("scope") != "chat:read chat:edit" {
		t.Errorf("authorize url = %s", loc)
	}
	if q.Get("state") == "" {
		t.Fatal("authorize url has no state")
	}
	return q.Get("state")
}

func TestOAuthStart(t *testing.T) {
	f := newFixture(t)
	oauthStart(t, f, "?username=Viewer&channel=SomeChan")
	ctx := context.Background()
	if got := kv.GetString(ctx, f.store, kv.KeyUsername, ""); got != "Viewer" {
		t.Errorf("stored username = %q", got)
	}
	if got := kv.GetString(ctx, f.store, kv.KeyChannelName, ""); got != "SomeChan" {
		t.Errorf("stored channel = %q", got)
	}

	unconfigured := newFixture(t, func(c *config.Config) { c.TwitchRedirectURI = "" })
	res := unconfigured.do(t, http.MethodGet, "/auth/twitch/start", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("start without oauth config = %d, want 400", res.StatusCode)
	}
}

func TestOAuthCallbackServesPage(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/auth/twitch/callback", nil)
	body := readBody(t, res)
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/html") || !strings.Contains(body, "/auth/twitch/token") {
		t.Errorf("callback page = %q (%s)", res.Header.Get("Content-Type"), body)
	}
}

func TestOAuthTokenStartsSession(t *testing.T) {
	f := newFixture(t)
	st := oauthStart(t, f, "?username=someoneelse&channel=somechan")

	frag := url.Values{"access_token": {testToken}, "state": {st}, "scope": {"chat:read"}}.Encode()
	res := f.do(t, http.MethodPost, "/auth/twitch/token", map[string]string{"fragment": frag})
	var out struct {
		Status  string         `json:"status"`
		Session session.Status `json:"session"`
	}
	decodeBody(t, res, &out)
	if res.StatusCode != http.StatusOK || out.Status != "started" {
		t.Fatalf("token = %d %+v", res.StatusCode, out)
	}
	if !out.Session.Active || out.Session.Channel != "somechan" {
		t.Errorf("session = %+v", out.Session)
	}
	// the token owner wins over the typed username
	if out.Session.Username != "viewer" {
		t.Errorf("session username = %q, want token owner viewer", out.Session.Username)
	}

	tok, ok, err := f.store.LoadToken(context.Background())
	if err != nil || !ok || tok.AccessToken != testToken {
		t.Fatalf("stored token = %+v %v %v", tok, ok, err)
	}
	if tok.Scope != "chat:read chat:edit" {
		t.Errorf("stored scope = %q", tok.Scope)
	}
	if tok.ExpiresAt.IsZero() {
		t.Error("expected expiry from validation")
	}

	// state is single use
	res = f.do(t, http.MethodPost, "/auth/twitch/token", map[string]string{"access_token": testToken, "state": st})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("reused state = %d, want 400", res.StatusCode)
	}
}

func TestOAuthTokenRejections(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body func(state string) map[string]string
		want int
	}{
		{"unknown state", func(string) map[string]string {
			return map[string]string{"access_token": testToken, "state": "nope"}
		}, http.StatusBadRequest},
		{"denied", func(st string) map[string]string {
			return map[string]string{"fragment": "error=access_denied&state=" + st}
		}, http.StatusUnauthorized},
		{"invalid token", func(st string) map[string]string {
			return map[string]string{"access_token": "bogus", "state": st}
		}, http.StatusUnauthorized},
		{"missing token", func(st string) map[string]string {
			return map[string]string{"state": st}
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := oauthStart(t, f, "")
			res := f.do(t, http.MethodPost, "/auth/twitch/token", tt.body(st))
			res.Body.Close()
			if res.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
	if _, ok, _ := f.store.LoadToken(context.Background()); ok {
		t.Error("rejected flows stored a token")
	}
}

func TestSessionLoginRequiresAuth(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodPost, "/session", map[string]string{"username": "viewer", "channel": "somechan"})
	var out map[string]string
	decodeBody(t, res, &out)
	if res.StatusCode != http.StatusUnauthorized || out["status"] != "auth_required" {
		t.Fatalf("login without token = %d %v", res.StatusCode, out)
	}
	if !strings.Contains(out["authorize_url"], "response_type=token") {
		t.Errorf("authorize_url = %q", out["authorize_url"])
	}
	if got := kv.GetString(context.Background(), f.store, kv.KeyChannelName, ""); got != "somechan" {
		t.Errorf("login form not persisted: channel = %q", got)
	}

	res = f.do(t, http.MethodPost, "/session", map[string]string{"username": " ", "channel": "x"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("blank username = %d, want 400", res.StatusCode)
	}
}

func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	f.startSession(t)

	var st session.Status
	res := f.do(t, http.MethodGet, "/session", nil)
	decodeBody(t, res, &st)
	if !st.Active || st.Username != "viewer" || st.Channel != "somechan" {
		t.Errorf("status = %+v", st)
	}

	res = f.do(t, http.MethodDelete, "/session", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE = %d, want 204", res.StatusCode)
	}
	res = f.do(t, http.MethodDelete, "/session", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE = %d, want 404", res.StatusCode)
	}
}

func TestChatMessages(t *testing.T) {
	f := newFixture(t)
	res := f.do(t, http.MethodGet, "/chat/messages", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("messages without session = %d, want 404", res.StatusCode)
	}

	ft := f.startSession(t)
	now := time.Now()
	ft.send(t, chat.Event{Username: "alice", Text: "hi", ReceivedAt: now})
	ft.send(t, chat.Event{Username: "alice", Text: "hi", ReceivedAt: now.Add(time.Second)})
	ft.send(t, chat.Event{Username: "bob", Text: "yo", ReceivedAt: now.Add(2 * time.Second)})
	ft.send(t, chat.Event{Username: "viewer", Text: "mine", Self: true, ReceivedAt: now})

	var msgs []chat.ChatMessage
	eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/chat/messages", nil)
		decodeBody(t, res, &msgs)
		return len(msgs) == 2
	}, "expected two accepted messages")
	if msgs[0].Username != "alice" || msgs[1].Username != "bob" {
		t.Errorf("messages = %+v", msgs)
	}

	res = f.do(t, http.MethodGet, "/chat/messages?since=1", nil)
	decodeBody(t, res, &msgs)
	if len(msgs) != 1 || msgs[0].Seq != 2 {
		t.Errorf("since=1 = %+v", msgs)
	}
}

func TestViewEndpoint(t *testing.T) {
	f := newFixture(t)
	var v view.View
	res := f.do(t, http.MethodGet, "/view", nil)
	decodeBody(t, res, &v)
	if v.Mode != view.Grouped || len(v.Panels) != 0 {
		t.Errorf("empty view = %+v", v)
	}

	ft := f.startSession(t)
	ft.send(t, chat.Event{Username: "alice", Text: "one", ReceivedAt: time.Now()})
	ft.send(t, chat.Event{Username: "bob", Text: "two", ReceivedAt: time.Now()})
	eventually(t, func() bool {
		res := f.do(t, http.MethodGet, "/view", nil)
		decodeBody(t, res, &v)
		return len(v.Panels) == 2
	}, "expected two panels")
	if v.Panels[0].Username != "bob" {
		t.Errorf("most recent panel = %q, want bob", v.Panels[0].Username)
	}
}

func TestSettingsSteps(t *testing.T) {
	f := newFixture(t)

	var s session.Settings
	res := f.do(t, http.MethodPost, "/settings/font-size/increase", nil)
	decodeBody(t, res, &s)
	if s.Style.FontSize != view.DefaultFontSize+view.FontSizeStep {
		t.Errorf("font size = %d", s.Style.FontSize)
	}
	res = f.do(t, http.MethodPost, "/settings/box-size/decrease", nil)
	decodeBody(t, res, &s)
	if s.Style.BoxSize != view.DefaultBoxSize-view.BoxSizeStep {
		t.Errorf("box size = %d", s.Style.BoxSize)
	}
	res = f.do(t, http.MethodPost, "/settings/timestamps/toggle", nil)
	decodeBody(t, res, &s)
	if s.Style.ShowTimestamps != !view.DefaultStyle().ShowTimestamps {
		t.Errorf("timestamps = %v", s.Style.ShowTimestamps)
	}
	if got := kv.GetInt(context.Background(), f.store, kv.KeyFontSize, 0); got != s.Style.FontSize {
		t.Errorf("persisted font size = %d", got)
	}

	for _, path := range []string{"/settings/font-size/sideways", "/settings/nothing"} {
		res := f.do(t, http.MethodPost, path, nil)
		res.Body.Close()
		if res.StatusCode != http.StatusNotFound {
			t.Errorf("POST %s = %d, want 404", path, res.StatusCode)
		}
	}
	res = f.do(t, http.MethodGet, "/settings/font-size/increase", nil)
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET step = %d, want 405", res.StatusCode)
	}
}

func TestSettingsLayout(t *testing.T) {
	f := newFixture(t)

	var s session.Settings
	res := f.do(t, http.MethodPut, "/settings/layout", map[string]string{"mode": "flat"})
	decodeBody(t, res, &s)
	if s.Layout != view.Flat {
		t.Errorf("layout = %q", s.Layout)
	}
	if got := kv.GetString(context.Background(), f.store, kv.KeyChatLayout, ""); got != "flat" {
		t.Errorf("persisted layout = %q", got)
	}
	res = f.do(t, http.MethodPost, "/settings/layout/toggle", nil)
	decodeBody(t, res, &s)
	if s.Layout != view.Grouped {
		t.Errorf("toggled layout = %q", s.Layout)
	}
	res = f.do(t, http.MethodPut, "/settings/layout", map[string]string{"mode": "diagonal"})
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown mode = %d, want 400", res.StatusCode)
	}
}

func TestSettingsPut(t *testing.T) {
	f := newFixture(t)
	var s session.Settings
	res := f.do(t, http.MethodPut, "/settings", map[string]any{"layout": "flat", "font_size": 999})
	decodeBody(t, res, &s)
	if s.Layout != view.Flat || s.Style.FontSize != view.MaxFontSize {
		t.Errorf("settings = %+v", s)
	}
	if s.Style.BoxSize != view.DefaultBoxSize {
		t.Errorf("untouched box size = %d", s.Style.BoxSize)
	}

	res = f.do(t, http.MethodGet, "/settings", nil)
	decodeBody(t, res, &s)
	if s.Style.FontSize != view.MaxFontSize {
		t.Errorf("GET settings = %+v", s)
	}
}

func TestChatStreamDeliversMessages(t *testing.T) {
	f := newFixture(t)
	ft := f.startSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/chat/stream", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	eventually(t, func() bool { return f.sessions.Hub().Len() > 0 }, "stream never subscribed")
	ft.send(t, chat.Event{Username: "alice", Text: "streamed", ReceivedAt: time.Now()})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before message")
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"text":"streamed"`) {
				return
			}
		case <-deadline:
			t.Fatal("no message event received")
		}
	}
}
