package apns

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultRefreshInterval is how long a provider token is reused. APNs rejects
// tokens older than an hour and throttles refreshes more often than every 20 minutes.
const DefaultRefreshInterval = 20 * time.Minute

// Signer signs the header.claims part of a provider token and returns the raw
// signature bytes.
type Signer interface {
	Sign(signingInput []byte) ([]byte, error)
}

// ES256Signer signs with ECDSA P-256 and SHA-256, producing the fixed 64 byte
// r||s signature JWS expects.
type ES256Signer struct {
	key *ecdsa.PrivateKey
}

func NewES256Signer(key *ecdsa.PrivateKey) (*ES256Signer, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: key is nil", ErrInvalidKey)
	}
	if key.Curve == nil || key.Curve.Params().Name != elliptic.P256().Params().Name {
		return nil, fmt.Errorf("%w: key must be on the P-256 curve", ErrInvalidKey)
	}
	return &ES256Signer{key: key}, nil
}

func (s *ES256Signer) Sign(signingInput []byte) ([]byte, error) {
	return jwt.SigningMethodES256.Sign(string(signingInput), s.key)
}

// PublicKey returns the verification key, mostly useful in tests.
func (s *ES256Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

type tokenClaims struct {
	Iss string `json:"iss"`
	Iat int64  `json:"iat"`
}

// TokenAuthority produces provider tokens and caches each one until the
// refresh interval has passed. It is safe for concurrent use; each authority
// owns its own cache.
type TokenAuthority struct {
	signer  Signer
	keyID   string
	teamID  string
	refresh time.Duration
	now     func() time.Time

	mu       sync.Mutex
	bearer   string
	issuedAt time.Time
}

type TokenOption func(*TokenAuthority)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) TokenOption {
	return func(a *TokenAuthority) {
		if d > 0 {
			a.refresh = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) TokenOption {
	return func(a *TokenAuthority) {
		if now != nil {
			a.now = now
		}
	}
}

func NewTokenAuthority(signer Signer, keyID, teamID string, opts ...TokenOption) (*TokenAuthority, error) {
	if signer == nil {
		return nil, fmt.Errorf("%w: signer", ErrMissingCredential)
	}
	if strings.TrimSpace(keyID) == "" {
		return nil, fmt.Errorf("%w: key id", ErrMissingCredential)
	}
	if strings.TrimSpace(teamID) == "" {
		return nil, fmt.Errorf("%w: team id", ErrMissingCredential)
	}
	a := &TokenAuthority{
		signer:  signer,
		keyID:   keyID,
		teamID:  teamID,
		refresh: DefaultRefreshInterval,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *TokenAuthority) KeyID() string  { return a.keyID }
func (a *TokenAuthority) TeamID() string { return a.teamID }

// Token returns the cached provider token, generating a new one first if none
// exists or the cached one is at least the refresh interval old.
func (a *TokenAuthority) Token() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if a.bearer != "" && now.Sub(a.issuedAt) < a.refresh {
		return a.bearer, nil
	}

	bearer, err := a.generate(now)
	if err != nil {
		return "", err
	}
	a.bearer = bearer
	a.issuedAt = now
	return bearer, nil
}

func (a *TokenAuthority) generate(now time.Time) (string, error) {
	header, err := json.Marshal(tokenHeader{Alg: jwt.SigningMethodES256.Alg(), Kid: a.keyID})
	if err != nil {
		return "", fmt.Errorf("failed to encode token header: %w", err)
	}
	claims, err := json.Marshal(tokenClaims{Iss: a.teamID, Iat: now.Unix()})
	if err != nil {
		return "", fmt.Errorf("failed to encode token claims: %w", err)
	}

	unsigned := encodeSegment(header) + "." + encodeSegment(claims)
	sig, err := a.signer.Sign([]byte(unsigned))
	if err != nil {
		return "", fmt.Errorf("failed to sign provider token: %w", err)
	}
	return unsigned + "." + encodeSegment(sig), nil
}

func encodeSegment(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
