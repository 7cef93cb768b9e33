package apns

import (
	"crypto/sha256"
	"encoding/hex"
)

// RedactToken returns a short, stable reference to a device token for logs.
// It is the first 12 hex digits of the token's sha256, the same digest the
// invalid token store keys its records by.
func RedactToken(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:12]
}
