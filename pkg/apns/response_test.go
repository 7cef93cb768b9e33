package apns

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Run("Success - 200 has no reason text", func(t *testing.T) {
		res := classify(http.StatusOK, []byte(`{"ignored":true}`), "id-1")
		assert.True(t, res.Successful)
		assert.Equal(t, ReasonSuccess, res.Reason)
		assert.Empty(t, res.ReasonString)
		assert.Equal(t, "id-1", res.ApnsID)
	})

	t.Run("Known reason", func(t *testing.T) {
		res := classify(http.StatusBadRequest, []byte(`{"reason":"BadDeviceToken"}`), "")
		assert.False(t, res.Successful)
		assert.Equal(t, ReasonBadDeviceToken, res.Reason)
		assert.Equal(t, "BadDeviceToken", res.ReasonString)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.True(t, res.Timestamp.IsZero())
	})

	t.Run("Unregistered with millisecond timestamp", func(t *testing.T) {
		res := classify(http.StatusGone, []byte(`{"reason":"Unregistered","timestamp":1700000000123}`), "")
		assert.Equal(t, ReasonUnregistered, res.Reason)
		assert.Equal(t, time.UnixMilli(1700000000123).UTC(), res.Timestamp)
		assert.True(t, res.Reason.IsTokenInvalid())
	})

	t.Run("Unrecognised reason keeps raw text", func(t *testing.T) {
		res := classify(http.StatusBadRequest, []byte(`{"reason":"SomethingNew"}`), "")
		assert.Equal(t, ReasonUnknown, res.Reason)
		assert.Equal(t, "SomethingNew", res.ReasonString)
	})

	t.Run("Unparseable body degrades to unknown", func(t *testing.T) {
		res := classify(http.StatusInternalServerError, []byte(`<html>oops</html>`), "")
		assert.False(t, res.Successful)
		assert.Equal(t, ReasonUnknown, res.Reason)
		assert.Contains(t, res.ReasonString, "500")
		assert.Contains(t, res.ReasonString, "<html>oops</html>")
	})

	t.Run("Empty body degrades to unknown", func(t *testing.T) {
		res := classify(http.StatusServiceUnavailable, nil, "")
		assert.Equal(t, ReasonUnknown, res.Reason)
		assert.Equal(t, "Status: 503, reason: Not specified.", res.ReasonString)
	})

	t.Run("Bad timestamp type degrades to unknown", func(t *testing.T) {
		res := classify(http.StatusGone, []byte(`{"reason":"Unregistered","timestamp":"soon"}`), "")
		assert.Equal(t, ReasonUnknown, res.Reason)
		assert.Contains(t, res.ReasonString, "410")
	})
}

func TestReason_RoundTrip(t *testing.T) {
	for r, name := range reasonNames {
		assert.Equal(t, name, r.String())
		assert.Equal(t, r, ParseReason(name))
	}
	assert.Equal(t, ReasonUnknown, ParseReason("baddevicetoken"))
	assert.Equal(t, "Unknown", Reason(-1).String())

	b, err := ReasonTooManyRequests.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, "TooManyRequests", string(b))
}
