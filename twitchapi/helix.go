// Package twitchapi talks to the Twitch identity provider and the Helix users
// endpoint: implicit-grant authorize URLs, token validation and profile lookups.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/onnwee/chat-panels/telemetry"
)

// DefaultHelixURL is the production Helix base URL.
const DefaultHelixURL = "https://api.twitch.tv/helix"

// maxLoginsPerRequest is the Helix limit for /users?login=.
const maxLoginsPerRequest = 100

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrUnauthorized is returned when Helix rejects the bearer token.
	ErrUnauthorized = errors.New("helix: unauthorized")
)

// TokenProvider supplies the bearer token for Helix calls.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed user access token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("empty access token")
	}
	return string(s), nil
}

// User is the subset of a Helix user object the app renders.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
	OfflineImageURL string `json:"offline_image_url"`
	BroadcasterType string `json:"broadcaster_type"`
	Description     string `json:"description"`
}

// HelixClient calls Helix with a Client-Id and bearer token.
type HelixClient struct {
	ClientID   string
	Tokens     TokenProvider
	BaseURL    string // defaults to DefaultHelixURL
	HTTPClient *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultHelixURL
}

// GetUsers resolves logins to user objects. Unknown logins are simply absent
// from the result. At most 100 logins may be passed per call.
func (hc *HelixClient) GetUsers(ctx context.Context, logins ...string) ([]User, error) {
	q := url.Values{}
	for _, l := range logins {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			q.Add("login", l)
		}
	}
	if len(q["login"]) == 0 {
		return nil, errors.New("login empty")
	}
	if len(q["login"]) > maxLoginsPerRequest {
		return nil, fmt.Errorf("too many logins: %d > %d", len(q["login"]), maxLoginsPerRequest)
	}
	if hc.Tokens == nil {
		return nil, errors.New("helix client has no token provider")
	}

	endpoint := hc.baseURL() + "/users?" + q.Encode()
	ctx, span := telemetry.StartSpan(ctx, "twitchapi", "helix.get_users",
		telemetry.HTTPMethodAttr(http.MethodGet), telemetry.HTTPURLAttr(hc.baseURL()+"/users"))
	defer span.End()

	tok, err := hc.Tokens.Token(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("helix token: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.SetSpanHTTPStatus(span, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		telemetry.RecordError(span, ErrUnauthorized)
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("helix users failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
		telemetry.RecordError(span, err)
		return nil, err
	}

	var body struct {
		Data []User `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("decode helix users: %w", err)
	}
	telemetry.SetSpanSuccess(span)
	return body.Data, nil
}

// GetUser resolves a single login.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (*User, error) {
	users, err := hc.GetUsers(ctx, login)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Login, login) {
			return &users[i], nil
		}
	}
	if len(users) == 1 {
		return &users[0], nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUserNotFound, login)
}

// ProfileImageURL returns the avatar URL for login.
func (hc *HelixClient) ProfileImageURL(ctx context.Context, login string) (string, error) {
	u, err := hc.GetUser(ctx, login)
	if err != nil {
		return "", err
	}
	return u.ProfileImageURL, nil
}
