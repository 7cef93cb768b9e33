package apns

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gateway "github.com/tinywideclouds/go-apns-service/pkg/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/dispatch"
	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

// ErrTokenInvalidated is returned without contacting APNs when the target
// token was previously reported invalid.
var ErrTokenInvalidated = errors.New("device token previously reported invalid")

// TokenGuard is a Sender decorator that consults an InvalidTokenStore before
// sending and records tokens APNs rejects as invalid.
type TokenGuard struct {
	next   Sender
	store  dispatch.InvalidTokenStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenGuard wraps next. A zero ttl keeps records until they are cleared.
func NewTokenGuard(next Sender, store dispatch.InvalidTokenStore, ttl time.Duration, logger *slog.Logger) *TokenGuard {
	return &TokenGuard{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With("component", "TokenGuard"),
		now:    time.Now,
	}
}

func (g *TokenGuard) Send(ctx context.Context, n *push.Notification) (*gateway.Response, error) {
	token := n.Target()

	if token != "" {
		rec, err := g.store.Lookup(ctx, token)
		switch {
		case err != nil:
			// The registry is advisory; an unavailable store must not stop delivery.
			g.logger.Warn("Invalid token lookup failed, sending anyway", "err", err)
		case rec != nil:
			return nil, fmt.Errorf("%w: %s since %s", ErrTokenInvalidated, rec.Reason, rec.Since.Format(time.RFC3339))
		}
	}

	res, err := g.next.Send(ctx, n)
	if err != nil {
		return nil, err
	}

	if !res.Successful && res.Reason.IsTokenInvalid() && token != "" {
		g.record(ctx, token, res)
	}
	return res, nil
}

func (g *TokenGuard) record(ctx context.Context, token string, res *gateway.Response) {
	now := g.now()
	rec := dispatch.InvalidToken{
		Token:  token,
		Reason: res.Reason.String(),
		Since:  now,
	}
	if !res.Timestamp.IsZero() {
		rec.Since = res.Timestamp
	}
	if g.ttl > 0 {
		rec.ExpiresAt = now.Add(g.ttl)
	}

	if err := g.store.MarkInvalid(ctx, rec); err != nil {
		g.logger.Error("Failed to record invalid token", "reason", rec.Reason, "err", err)
		return
	}
	g.logger.Info("Recorded invalid device token", "token", gateway.RedactToken(rec.Token), "reason", rec.Reason)
}
