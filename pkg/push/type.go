package push

import (
	"fmt"
	"strings"
)

// Type is the apns-push-type of a notification.
type Type int

const (
	// TypeUnknown only exists so malformed input can be rejected.
	TypeUnknown Type = iota
	TypeAlert
	TypeBackground
	TypeVoip
)

// String returns the lowercase name APNs expects in the apns-push-type header.
func (t Type) String() string {
	switch t {
	case TypeAlert:
		return "alert"
	case TypeBackground:
		return "background"
	case TypeVoip:
		return "voip"
	default:
		return "unknown"
	}
}

// ParseType maps a push type name to a Type. Matching is case-insensitive.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alert":
		return TypeAlert, nil
	case "background":
		return TypeBackground, nil
	case "voip":
		return TypeVoip, nil
	default:
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

func (t Type) MarshalText() ([]byte, error) {
	if t == TypeUnknown {
		return nil, ErrUnknownType
	}
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
