package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestValidator_Validate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "OAuth good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"client_id":"cid","login":"viewer","user_id":"42","scopes":["chat:read","chat:edit"],"expires_in":3600}`))
		case "OAuth broken":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"status":401,"message":"invalid access token"}`))
		}
	}))
	defer srv.Close()
	v := &Validator{URL: srv.URL}
	ctx := context.Background()

	got, err := v.Validate(ctx, "oauth:good")
	if err != nil {
		t.Fatalf("Validate(good): %v", err)
	}
	if got.Login != "viewer" || got.UserID != "42" || len(got.Scopes) != 2 {
		t.Errorf("Validation = %+v", got)
	}
	now := time.Now()
	if exp := got.ExpiresAt(now); !exp.Equal(now.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v", exp)
	}

	if _, err := v.Validate(ctx, "revoked"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Validate(revoked) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := v.Validate(ctx, ""); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Validate(empty) error = %v, want ErrTokenInvalid", err)
	}
	if _, err := v.Validate(ctx, "broken"); err == nil || errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Validate(broken) error = %v, want transient error", err)
	}
}

func TestValidationNoExpiry(t *testing.T) {
	if !(&Validation{}).ExpiresAt(time.Now()).IsZero() {
		t.Error("ExpiresAt with zero expires_in should be zero")
	}
}
