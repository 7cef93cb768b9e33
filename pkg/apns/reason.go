package apns

// Reason classifies a gateway response. The set is closed: strings APNs sends
// that are not listed here map to ReasonUnknown. New reasons must be appended.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonSuccess

	// 400
	ReasonBadCollapseID
	ReasonBadDeviceToken
	ReasonBadExpirationDate
	ReasonBadMessageID
	ReasonBadPriority
	ReasonBadTopic
	ReasonDeviceTokenNotForTopic
	ReasonDuplicateHeaders
	ReasonIdleTimeout
	ReasonInvalidPushType
	ReasonMissingDeviceToken
	ReasonMissingTopic
	ReasonPayloadEmpty
	ReasonTopicDisallowed

	// 403
	ReasonBadCertificate
	ReasonBadCertificateEnvironment
	ReasonExpiredProviderToken
	ReasonForbidden
	ReasonInvalidProviderToken
	ReasonMissingProviderToken
	ReasonUnrelatedKeyIDInToken

	// 404, 405
	ReasonBadPath
	ReasonMethodNotAllowed

	// 410
	ReasonExpiredToken
	ReasonUnregistered

	// 413, 429
	ReasonPayloadTooLarge
	ReasonTooManyProviderTokenUpdates
	ReasonTooManyRequests

	// 500, 503
	ReasonInternalServerError
	ReasonServiceUnavailable
	ReasonShutdown
)

// reasonNames holds the exact strings APNs uses.
var reasonNames = map[Reason]string{
	ReasonUnknown:                     "Unknown",
	ReasonSuccess:                     "Success",
	ReasonBadCollapseID:               "BadCollapseId",
	ReasonBadDeviceToken:              "BadDeviceToken",
	ReasonBadExpirationDate:           "BadExpirationDate",
	ReasonBadMessageID:                "BadMessageId",
	ReasonBadPriority:                 "BadPriority",
	ReasonBadTopic:                    "BadTopic",
	ReasonDeviceTokenNotForTopic:      "DeviceTokenNotForTopic",
	ReasonDuplicateHeaders:            "DuplicateHeaders",
	ReasonIdleTimeout:                 "IdleTimeout",
	ReasonInvalidPushType:             "InvalidPushType",
	ReasonMissingDeviceToken:          "MissingDeviceToken",
	ReasonMissingTopic:                "MissingTopic",
	ReasonPayloadEmpty:                "PayloadEmpty",
	ReasonTopicDisallowed:             "TopicDisallowed",
	ReasonBadCertificate:              "BadCertificate",
	ReasonBadCertificateEnvironment:   "BadCertificateEnvironment",
	ReasonExpiredProviderToken:        "ExpiredProviderToken",
	ReasonForbidden:                   "Forbidden",
	ReasonInvalidProviderToken:        "InvalidProviderToken",
	ReasonMissingProviderToken:        "MissingProviderToken",
	ReasonUnrelatedKeyIDInToken:       "UnrelatedKeyIdInToken",
	ReasonBadPath:                     "BadPath",
	ReasonMethodNotAllowed:            "MethodNotAllowed",
	ReasonExpiredToken:                "ExpiredToken",
	ReasonUnregistered:                "Unregistered",
	ReasonPayloadTooLarge:             "PayloadTooLarge",
	ReasonTooManyProviderTokenUpdates: "TooManyProviderTokenUpdates",
	ReasonTooManyRequests:             "TooManyRequests",
	ReasonInternalServerError:         "InternalServerError",
	ReasonServiceUnavailable:          "ServiceUnavailable",
	ReasonShutdown:                    "Shutdown",
}

var reasonsByName = func() map[string]Reason {
	m := make(map[string]Reason, len(reasonNames))
	for r, s := range reasonNames {
		m[s] = r
	}
	return m
}()

// ParseReason maps an APNs reason string to a Reason. Matching is exact.
func ParseReason(s string) Reason {
	if r, ok := reasonsByName[s]; ok {
		return r
	}
	return ReasonUnknown
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return reasonNames[ReasonUnknown]
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	*r = ParseReason(string(b))
	return nil
}

// IsTokenInvalid reports whether the device token should be discarded.
func (r Reason) IsTokenInvalid() bool {
	switch r {
	case ReasonBadDeviceToken, ReasonUnregistered, ReasonExpiredToken, ReasonDeviceTokenNotForTopic:
		return true
	}
	return false
}
