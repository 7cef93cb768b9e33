package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
)

// Dispatcher sends one relay request to APNs.
type Dispatcher interface {
	Dispatch(ctx context.Context, req relay.Request) (*apns.Response, error)
}

// NewProcessor creates the stage that hands each decoded request to the
// dispatcher.
//
// Returning an error nacks the message for redelivery, so only failures that
// can succeed on a later attempt are returned: transport errors and
// cancellation. Requests APNs rejected, or that can never be sent, are acked.
func NewProcessor(
	dispatcher Dispatcher,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[relay.Request] {

	return func(ctx context.Context, original messagepipeline.Message, request *relay.Request) error {
		procLogger := logger.With(
			"push_type", request.PushType.String(),
			"pubsub_msg_id", original.ID,
		)

		res, err := dispatcher.Dispatch(ctx, *request)
		if err != nil {
			if isPermanent(err) {
				procLogger.Warn("Dropping push that cannot be sent", "err", err)
				return nil
			}
			procLogger.Error("APNs dispatch failed", "err", err)
			return err // Retryable
		}

		if !res.Successful {
			procLogger.Warn("APNs rejected push", "reason", res.Reason.String(), "status", res.StatusCode)
			return nil
		}

		procLogger.Info("APNs accepted push", "apns_id", res.ApnsID)
		return nil
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, relay.ErrInvalidRequest) ||
		errors.Is(err, relay.ErrTokenInvalidated) ||
		errors.Is(err, apns.ErrUnknownPushType) ||
		errors.Is(err, apns.ErrMissingDeviceToken) ||
		errors.Is(err, apns.ErrVoipOnlyCertificate)
}
