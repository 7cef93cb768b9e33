package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"

	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

// maxRequestBody bounds a push request; APNs payloads are at most 4KB (5KB voip).
const maxRequestBody = 64 << 10

// PushDispatcher sends one relay request to APNs.
type PushDispatcher interface {
	Dispatch(ctx context.Context, req relay.Request) (*apns.Response, error)
}

type PushAPI struct {
	Dispatcher PushDispatcher
	Logger     *slog.Logger
}

func NewPushAPI(dispatcher PushDispatcher, logger *slog.Logger) *PushAPI {
	return &PushAPI{
		Dispatcher: dispatcher,
		Logger:     logger,
	}
}

// PushResult is the JSON body returned for every answer APNs gave.
type PushResult struct {
	Successful   bool       `json:"successful"`
	Reason       string     `json:"reason"`
	Diagnostic   string     `json:"diagnostic,omitempty"`
	StatusCode   int        `json:"status_code"`
	ApnsID       string     `json:"apns_id,omitempty"`
	Timestamp    *time.Time `json:"timestamp,omitempty"`
	TokenInvalid bool       `json:"token_invalid,omitempty"`
}

func newPushResult(res *apns.Response) PushResult {
	out := PushResult{
		Successful:   res.Successful,
		Reason:       res.Reason.String(),
		Diagnostic:   res.ReasonString,
		StatusCode:   res.StatusCode,
		ApnsID:       res.ApnsID,
		TokenInvalid: res.Reason.IsTokenInvalid(),
	}
	if !res.Timestamp.IsZero() {
		ts := res.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// SendHandler relays one push. Accepted pushes answer 200, APNs rejections 422
// with the classified reason; requests that never reached APNs map to 400, 410,
// 502 or 503.
func (api *PushAPI) SendHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req relay.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		api.Logger.Warn("SendHandler: JSON Decode failed", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, "invalid push request json")
		return
	}

	res, err := api.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		status, msg := statusForError(err)
		api.Logger.Warn("SendHandler: push not delivered", "user", userID, "status", status, "err", err)
		response.WriteJSONError(w, status, msg)
		return
	}

	status := http.StatusOK
	if !res.Successful {
		status = http.StatusUnprocessableEntity
	}
	api.Logger.Info("SendHandler: push relayed", "user", userID, "successful", res.Successful, "reason", res.Reason.String())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(newPushResult(res)); err != nil {
		api.Logger.Error("SendHandler: failed to write response", "err", err)
	}
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, relay.ErrInvalidRequest),
		errors.Is(err, apns.ErrUnknownPushType),
		errors.Is(err, apns.ErrMissingDeviceToken),
		errors.Is(err, apns.ErrVoipOnlyCertificate):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, relay.ErrTokenInvalidated):
		return http.StatusGone, err.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "push aborted"
	case errors.Is(err, apns.ErrTransport):
		return http.StatusBadGateway, "apns unreachable"
	default:
		return http.StatusInternalServerError, "push failed"
	}
}
