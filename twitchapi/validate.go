package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultValidateURL is the identity provider's token validation endpoint.
const DefaultValidateURL = "https://id.twitch.tv/oauth2/validate"

// ErrTokenInvalid means the provider rejected the token (expired or revoked).
var ErrTokenInvalid = errors.New("twitch token invalid")

// Validation is the validate endpoint's description of a token.
type Validation struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// ExpiresAt converts ExpiresIn to an absolute time; zero when the token does not expire.
func (v *Validation) ExpiresAt(now time.Time) time.Time {
	if v.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(v.ExpiresIn) * time.Second)
}

// Validator checks user access tokens.
type Validator struct {
	URL        string // defaults to DefaultValidateURL
	HTTPClient *http.Client
}

// Validate asks the provider about token. A 401 yields ErrTokenInvalid.
func (v *Validator) Validate(ctx context.Context, token string) (*Validation, error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), "oauth:")
	if token == "" {
		return nil, ErrTokenInvalid
	}
	endpoint := v.URL
	if endpoint == "" {
		endpoint = DefaultValidateURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "OAuth "+token)
	hc := v.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrTokenInvalid
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("twitch validate failed: %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out Validation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode validate response: %w", err)
	}
	return &out, nil
}

// ValidateToken validates against the production endpoint.
func ValidateToken(ctx context.Context, token string) (*Validation, error) {
	return (&Validator{}).Validate(ctx, token)
}
