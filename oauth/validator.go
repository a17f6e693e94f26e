// Package oauth schedules periodic validation of the stored Twitch user token.
// Twitch requires apps to validate user tokens at least hourly and to stop using
// a token once validation reports it revoked.
package oauth

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/chat-panels/twitchapi"
)

// CheckFunc validates the current token. Returning an error wrapping
// twitchapi.ErrTokenInvalid triggers the invalid callback; other errors are
// treated as transient.
type CheckFunc func(ctx context.Context) error

// StartValidator launches a goroutine that calls check every interval (with
// ±20% jitter) until ctx is done. onInvalid runs after each invalid result.
func StartValidator(ctx context.Context, interval time.Duration, check CheckFunc, onInvalid func(ctx context.Context)) {
	if interval <= 0 {
		interval = time.Hour
	}
	// Spread the first check so restarts do not validate in lockstep.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval/10) + 1))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			runCheck(ctx, check, onInvalid)
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextInterval(interval)):
			}
		}
	}()
}

func runCheck(ctx context.Context, check CheckFunc, onInvalid func(ctx context.Context)) {
	ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := check(ctx2)
	cancel()
	switch {
	case err == nil:
		slog.Debug("token validated", slog.String("component", "oauth_validator"))
	case errors.Is(err, twitchapi.ErrTokenInvalid):
		slog.Warn("stored twitch token is no longer valid", slog.String("component", "oauth_validator"))
		if onInvalid != nil {
			onInvalid(ctx)
		}
	case ctx.Err() != nil:
	default:
		slog.Warn("token validation failed", slog.Any("err", err), slog.String("component", "oauth_validator"))
	}
}

func nextInterval(interval time.Duration) time.Duration {
	jitterRange := int64(interval / 5)
	if jitterRange <= 0 {
		return interval
	}
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	next := interval + time.Duration(rand.Int63n(jitterRange*2)-jitterRange)
	if next < interval/2 {
		next = interval / 2
	}
	return next
}
