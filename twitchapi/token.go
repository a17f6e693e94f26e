package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/twitch"
)

// AppTokenSource fetches and caches a Twitch app access (client credentials)
// token. App tokens can read Helix users but cannot join chat.
type AppTokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string // defaults to twitch.Endpoint.TokenURL
	HTTPClient   *http.Client

	once sync.Once
	src  oauth2.TokenSource
}

func (ts *AppTokenSource) init() {
	cfg := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     ts.TokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = twitch.Endpoint.TokenURL
	}
	ctx := context.Background()
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	ts.src = cfg.TokenSource(ctx)
}

// Token returns a cached or freshly fetched app token.
func (ts *AppTokenSource) Token(ctx context.Context) (string, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return "", errors.New("missing client id/secret for twitch app token")
	}
	ts.once.Do(ts.init)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	tok, err := ts.src.Token()
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("empty access_token in twitch response")
	}
	return tok.AccessToken, nil
}
