package twitchapi

import (
	"errors"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// DefaultScopes are requested when none are configured.
const DefaultScopes = "chat:read chat:edit"

// ParseScopes splits a comma or space separated scope list.
func ParseScopes(scopes string) []string {
	return strings.Fields(strings.ReplaceAll(scopes, ",", " "))
}

// OAuthConfig returns an oauth2 config for the Twitch identity provider.
func OAuthConfig(clientID, clientSecret, redirectURI, scopes string) *oauth2.Config {
	if strings.TrimSpace(scopes) == "" {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       ParseScopes(scopes),
		Endpoint:     twitch.Endpoint,
	}
}

// BuildImplicitAuthorizeURL builds the implicit-grant authorize URL. The
// provider redirects back with the access token in the URL fragment.
func BuildImplicitAuthorizeURL(clientID, redirectURI, scopes, state string) (string, error) {
	if clientID == "" || redirectURI == "" {
		return "", errors.New("missing clientID or redirectURI")
	}
	cfg := OAuthConfig(clientID, "", redirectURI, scopes)
	return cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("response_type", "token")), nil
}

// FragmentParams is what the implicit grant puts in the redirect fragment.
type FragmentParams struct {
	AccessToken string
	State       string
	Scope       string
	Error       string
}

// ParseFragment reads the redirect fragment ("#access_token=...&state=...").
func ParseFragment(fragment string) FragmentParams {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	v, err := url.ParseQuery(fragment)
	if err != nil {
		return FragmentParams{}
	}
	return FragmentParams{
		AccessToken: v.Get("access_token"),
		State:       v.Get("state"),
		Scope:       v.Get("scope"),
		Error:       v.Get("error"),
	}
}

// TokenFromFragment returns the access token in fragment, or "".
func TokenFromFragment(fragment string) string {
	return ParseFragment(fragment).AccessToken
}
