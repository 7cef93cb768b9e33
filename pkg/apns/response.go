package apns

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Response is the outcome of a notification the gateway answered. A rejection
// is a Response with Successful == false, not an error.
type Response struct {
	Successful bool
	Reason     Reason
	// ReasonString is the raw reason APNs sent, or diagnostic text when the
	// error body could not be read. Empty on success.
	ReasonString string
	StatusCode   int
	// ApnsID echoes the apns-id response header.
	ApnsID string
	// Timestamp is set for 410 responses: the last time APNs confirmed the
	// token was no longer valid.
	Timestamp time.Time
}

type errorBody struct {
	Reason    string `json:"reason"`
	Timestamp *int64 `json:"timestamp,omitempty"`
}

// classify turns a status and body into a Response. It never fails: bodies
// that cannot be parsed degrade to ReasonUnknown.
func classify(status int, body []byte, apnsID string) *Response {
	if status == http.StatusOK {
		return &Response{
			Successful: true,
			Reason:     ReasonSuccess,
			StatusCode: status,
			ApnsID:     apnsID,
		}
	}

	res := &Response{StatusCode: status, ApnsID: apnsID}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Reason == "" {
		raw := string(body)
		if raw == "" {
			raw = "Not specified"
		}
		res.Reason = ReasonUnknown
		res.ReasonString = fmt.Sprintf("Status: %d, reason: %s.", status, raw)
		return res
	}

	res.Reason = ParseReason(eb.Reason)
	res.ReasonString = eb.Reason
	if eb.Timestamp != nil {
		res.Timestamp = time.UnixMilli(*eb.Timestamp).UTC()
	}
	return res
}
