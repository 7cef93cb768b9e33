package apns_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

type MockSigner struct {
	mock.Mock
}

func (m *MockSigner) Sign(signingInput []byte) ([]byte, error) {
	args := m.Called(signingInput)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func callConcurrently(t *testing.T, n int, authority *apns.TokenAuthority) []string {
	t.Helper()
	var wg sync.WaitGroup
	tokens := make([]string, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = authority.Token()
		}(i)
	}
	close(start)
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}
	return tokens
}

func TestTokenAuthority_SignsOncePerWindow(t *testing.T) {
	clock := newFakeClock()
	signer := new(MockSigner)
	signer.On("Sign", mock.Anything).Return([]byte("signature"), nil)

	authority, err := apns.NewTokenAuthority(signer, "KEY", "TEAM", apns.WithClock(clock.Now))
	require.NoError(t, err)

	first := callConcurrently(t, 32, authority)
	signer.AssertNumberOfCalls(t, "Sign", 1)
	for _, tok := range first {
		assert.Equal(t, first[0], tok)
	}

	clock.Advance(19 * time.Minute)
	again, err := authority.Token()
	require.NoError(t, err)
	assert.Equal(t, first[0], again)
	signer.AssertNumberOfCalls(t, "Sign", 1)

	// At the threshold the cached token is stale.
	clock.Advance(time.Minute)
	second := callConcurrently(t, 32, authority)
	signer.AssertNumberOfCalls(t, "Sign", 2)
	assert.NotEqual(t, first[0], second[0])
	for _, tok := range second {
		assert.Equal(t, second[0], tok)
	}
}

func TestTokenAuthority_RefreshInterval(t *testing.T) {
	clock := newFakeClock()
	signer := new(MockSigner)
	signer.On("Sign", mock.Anything).Return([]byte("sig"), nil)

	authority, err := apns.NewTokenAuthority(signer, "KEY", "TEAM",
		apns.WithClock(clock.Now), apns.WithRefreshInterval(time.Minute))
	require.NoError(t, err)

	_, err = authority.Token()
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = authority.Token()
	require.NoError(t, err)

	signer.AssertNumberOfCalls(t, "Sign", 2)
}

func TestTokenAuthority_InstancesDoNotShareCache(t *testing.T) {
	signerA := new(MockSigner)
	signerA.On("Sign", mock.Anything).Return([]byte("a"), nil)
	signerB := new(MockSigner)
	signerB.On("Sign", mock.Anything).Return([]byte("b"), nil)

	a, err := apns.NewTokenAuthority(signerA, "KEY", "TEAM")
	require.NoError(t, err)
	b, err := apns.NewTokenAuthority(signerB, "KEY", "TEAM")
	require.NoError(t, err)

	tokA, err := a.Token()
	require.NoError(t, err)
	tokB, err := b.Token()
	require.NoError(t, err)

	assert.NotEqual(t, tokA, tokB)
	signerA.AssertNumberOfCalls(t, "Sign", 1)
	signerB.AssertNumberOfCalls(t, "Sign", 1)
}

func TestTokenAuthority_SignerFailureIsNotCached(t *testing.T) {
	signer := new(MockSigner)
	signer.On("Sign", mock.Anything).Return(nil, errors.New("hsm offline")).Once()
	signer.On("Sign", mock.Anything).Return([]byte("sig"), nil).Once()

	authority, err := apns.NewTokenAuthority(signer, "KEY", "TEAM")
	require.NoError(t, err)

	_, err = authority.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hsm offline")

	tok, err := authority.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	signer.AssertExpectations(t)
}

func TestTokenAuthority_TokenFormat(t *testing.T) {
	clock := newFakeClock()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	signer, err := apns.NewES256Signer(key)
	require.NoError(t, err)

	authority, err := apns.NewTokenAuthority(signer, "ABC123DEFG", "DEF123GHIJ", apns.WithClock(clock.Now))
	require.NoError(t, err)

	tok, err := authority.Token()
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Equal(t, `{"alg":"ES256","kid":"ABC123DEFG"}`, string(header))

	claims, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Equal(t, `{"iss":"DEF123GHIJ","iat":1772366400}`, string(claims))

	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, sig, 64)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (interface{}, error) {
		return signer.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"ES256"}), jwt.WithoutClaimsValidation())
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "ABC123DEFG", parsed.Header["kid"])
}

func TestNewTokenAuthority_Validation(t *testing.T) {
	signer := new(MockSigner)

	_, err := apns.NewTokenAuthority(nil, "KEY", "TEAM")
	assert.ErrorIs(t, err, apns.ErrMissingCredential)
	_, err = apns.NewTokenAuthority(signer, "", "TEAM")
	assert.ErrorIs(t, err, apns.ErrMissingCredential)
	_, err = apns.NewTokenAuthority(signer, "KEY", " ")
	assert.ErrorIs(t, err, apns.ErrMissingCredential)
}

func TestNewES256Signer_Validation(t *testing.T) {
	_, err := apns.NewES256Signer(nil)
	assert.ErrorIs(t, err, apns.ErrInvalidKey)

	p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	_, err = apns.NewES256Signer(p384)
	assert.ErrorIs(t, err, apns.ErrInvalidKey)
}
