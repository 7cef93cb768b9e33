// Package pipeline feeds push requests arriving over Pub/Sub into the dispatcher.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
)

// PushRequestTransformer decodes a message payload into a relay.Request. The
// payload is the same JSON the HTTP endpoint accepts; numbers in data maps stay
// json.Number (see relay.Request.UnmarshalJSON).
func PushRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*relay.Request, bool, error) {
	var req relay.Request

	// Unknown push types fail here too, via push.Type's UnmarshalText.
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal push request from message %s: %w", msg.ID, err)
	}

	return &req, false, nil
}
