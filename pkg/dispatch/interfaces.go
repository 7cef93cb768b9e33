// Package dispatch holds the contracts shared between the push relay and its storage.
package dispatch

import (
	"context"
	"time"
)

// InvalidToken records that APNs reported a device token as no longer usable.
type InvalidToken struct {
	Token  string `json:"token" firestore:"token"`
	Reason string `json:"reason" firestore:"reason"`
	// Since is when APNs says the token stopped being valid, or when the
	// rejection was received if APNs gave no timestamp.
	Since time.Time `json:"since" firestore:"since"`
	// ExpiresAt is when the record stops blocking sends. Zero never expires.
	ExpiresAt time.Time `json:"expires_at,omitempty" firestore:"expires_at,omitempty"`
}

// Expired reports whether the record no longer applies at now.
func (t InvalidToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

// InvalidTokenStore remembers tokens APNs rejected so the relay can stop
// sending to them.
type InvalidTokenStore interface {
	// MarkInvalid adds or replaces the record for rec.Token.
	MarkInvalid(ctx context.Context, rec InvalidToken) error

	// Lookup returns the live record for token, or nil if there is none.
	Lookup(ctx context.Context, token string) (*InvalidToken, error)

	// Clear removes the record for token. Clearing an unknown token is not an error.
	Clear(ctx context.Context, token string) error

	// List returns every live record.
	List(ctx context.Context) ([]InvalidToken, error)
}
