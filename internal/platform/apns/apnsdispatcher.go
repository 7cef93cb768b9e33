// Package apns turns relay push requests into APNs notifications and sends them.
package apns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	gateway "github.com/tinywideclouds/go-apns-service/pkg/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

// ErrInvalidRequest wraps every reason a Request could not become a notification.
var ErrInvalidRequest = errors.New("invalid push request")

// Sender defines the subset of the gateway client the dispatcher uses.
// This allows mocking for unit tests.
type Sender interface {
	Send(ctx context.Context, n *push.Notification) (*gateway.Response, error)
}

type AlertContent struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	Body     string `json:"body"`
}

// Request is the relay's wire form of a single push.
type Request struct {
	PushType push.Type `json:"push_type"`
	// Token is the device token, or the voip token for voip pushes.
	Token string `json:"token"`

	Alert            *AlertContent `json:"alert,omitempty"`
	Badge            *int          `json:"badge,omitempty"`
	Sound            string        `json:"sound,omitempty"`
	Category         string        `json:"category,omitempty"`
	ContentAvailable bool          `json:"content_available,omitempty"`
	MutableContent   bool          `json:"mutable_content,omitempty"`

	Priority *int `json:"priority,omitempty"`
	// Expiration is in unix seconds; 0 asks for a single delivery attempt.
	Expiration *int64 `json:"expiration,omitempty"`
	ID         string `json:"id,omitempty"`
	CollapseID string `json:"collapse_id,omitempty"`

	// Data is merged into the top level of the payload, ApsData into aps.
	Data    map[string]any `json:"data,omitempty"`
	ApsData map[string]any `json:"aps_data,omitempty"`
}

// UnmarshalJSON keeps numbers in Data and ApsData as json.Number so integers
// reach the payload exactly as the caller sent them.
func (r *Request) UnmarshalJSON(b []byte) error {
	type wire Request
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var w wire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*r = Request(w)
	return nil
}

// Notification builds the push described by r. Errors wrap ErrInvalidRequest
// and the builder error that rejected the request.
func (r Request) Notification() (*push.Notification, error) {
	n, err := r.build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return n, nil
}

func (r Request) build() (*push.Notification, error) {
	n := push.New(r.PushType)

	if r.PushType == push.TypeVoip {
		if err := n.AddVoipToken(r.Token); err != nil {
			return nil, err
		}
	} else if err := n.AddToken(r.Token); err != nil {
		return nil, err
	}

	if r.ContentAvailable {
		if err := n.AddContentAvailable(); err != nil {
			return nil, err
		}
	}
	if r.MutableContent {
		n.AddMutableContent()
	}
	if r.Alert != nil {
		if err := n.AddAlertWithSubtitle(r.Alert.Title, r.Alert.Subtitle, r.Alert.Body); err != nil {
			return nil, err
		}
	}
	if r.Badge != nil {
		if err := n.AddBadge(*r.Badge); err != nil {
			return nil, err
		}
	}
	if r.Sound != "" {
		if err := n.AddSound(r.Sound); err != nil {
			return nil, err
		}
	}
	if r.Category != "" {
		if err := n.AddCategory(r.Category); err != nil {
			return nil, err
		}
	}

	if r.Priority != nil {
		if err := n.SetPriority(*r.Priority); err != nil {
			return nil, err
		}
	}
	if r.Expiration != nil {
		if *r.Expiration < 0 {
			return nil, fmt.Errorf("expiration must not be negative, got %d", *r.Expiration)
		}
		if *r.Expiration == 0 {
			n.AddImmediateExpiration()
		} else {
			n.AddExpiration(time.Unix(*r.Expiration, 0))
		}
	}
	if r.ID != "" {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("id: %w", err)
		}
		n.SetID(id)
	}
	if r.CollapseID != "" {
		if err := n.SetCollapseID(r.CollapseID); err != nil {
			return nil, err
		}
	}

	for _, k := range slices.Sorted(maps.Keys(r.Data)) {
		if err := n.AddCustomProperty(k, r.Data[k]); err != nil {
			return nil, err
		}
	}
	for _, k := range slices.Sorted(maps.Keys(r.ApsData)) {
		if err := n.AddCustomApsProperty(k, r.ApsData[k]); err != nil {
			return nil, err
		}
	}
	return n, nil
}

type Dispatcher struct {
	sender Sender
	logger *slog.Logger
}

func NewDispatcher(sender Sender, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		logger: logger.With("component", "APNSDispatcher"),
	}
}

// Dispatch builds and sends one push. A gateway rejection is returned as a
// Response, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*gateway.Response, error) {
	n, err := req.Notification()
	if err != nil {
		return nil, err
	}

	res, err := d.sender.Send(ctx, n)
	if err != nil {
		return nil, err
	}

	if !res.Successful {
		// Map APNs error reasons to our "Invalid" concept
		if res.Reason.IsTokenInvalid() {
			d.logger.Info("Device token is no longer valid", "token", gateway.RedactToken(req.Token), "reason", res.ReasonString)
		} else {
			d.logger.Warn("APNs rejected notification", "reason", res.ReasonString, "status", res.StatusCode)
		}
	}
	return res, nil
}
