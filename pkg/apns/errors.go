package apns

import "errors"

// Configuration errors, returned from constructors.
var (
	ErrInvalidCertificate = errors.New("provided certificate does not appear to be a valid APNs certificate")
	ErrMissingCredential  = errors.New("missing APNs credential")
	ErrInvalidKey         = errors.New("invalid APNs signing key")
)

// Precondition errors, returned from Send before any request is built.
var (
	ErrVoipOnlyCertificate = errors.New("provided certificate can only be used to send voip pushes")
	ErrUnknownPushType     = errors.New("unsupported push type")
	ErrMissingDeviceToken  = errors.New("notification has no device or voip token")
)

// ErrTransport wraps network failures. Cancellation is reported by wrapping the
// context error instead, so callers can tell the two apart with errors.Is.
var ErrTransport = errors.New("apns transport failed")
