package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tinywideclouds/go-apns-service/apnsservice"
	"github.com/tinywideclouds/go-apns-service/apnsservice/config"
	relay "github.com/tinywideclouds/go-apns-service/internal/platform/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/apns"
	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

// errRejected is returned when APNs answered but did not accept the push.
var errRejected = errors.New("notification rejected by APNs")

type sendOptions struct {
	pushType         string
	token            string
	title            string
	subtitle         string
	body             string
	badge            int
	sound            string
	category         string
	contentAvailable bool
	mutableContent   bool
	priority         int
	expiration       int64
	immediate        bool
	id               string
	collapseID       string
	data             map[string]string
	timeout          time.Duration
}

func sendCmd() *cobra.Command {
	return newSendCmd(&sendOptions{})
}

func newSendCmd(opts *sendOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one notification",
		Long: `Send one notification and print the classified APNs answer as JSON.

Examples:
  # Alert with title and body
  apnspush send --token 740f4707... --title "Hello" --body "World"

  # Silent background refresh
  apnspush send --type background --token 740f4707... --content-available

  # Voip push with custom data against the sandbox
  apnspush send --sandbox --type voip --token 3f2a... --data call_id=42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd)
			if err != nil {
				return err
			}
			return runSend(cmd.Context(), req, opts.timeout, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.pushType, "type", "t", "alert", "Push type: alert, background, voip")
	f.StringVar(&opts.token, "token", "", "Device token (voip token for voip pushes)")
	f.StringVar(&opts.title, "title", "", "Alert title")
	f.StringVar(&opts.subtitle, "subtitle", "", "Alert subtitle")
	f.StringVar(&opts.body, "body", "", "Alert body")
	f.IntVar(&opts.badge, "badge", 0, "Badge number")
	f.StringVar(&opts.sound, "sound", "", `Sound name, "default" for the system sound`)
	f.StringVar(&opts.category, "category", "", "Notification category")
	f.BoolVar(&opts.contentAvailable, "content-available", false, "Mark as a silent content update")
	f.BoolVar(&opts.mutableContent, "mutable-content", false, "Allow a notification service extension to modify the push")
	f.IntVar(&opts.priority, "priority", 0, "apns-priority, 0-10")
	f.Int64Var(&opts.expiration, "expiration", 0, "apns-expiration as unix seconds")
	f.BoolVar(&opts.immediate, "immediate", false, "Expire immediately if not deliverable")
	f.StringVar(&opts.id, "id", "", "apns-id (UUID)")
	f.StringVar(&opts.collapseID, "collapse-id", "", "apns-collapse-id")
	f.StringToStringVar(&opts.data, "data", nil, "Custom top-level payload keys, key=value")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Give up after this long")
	_ = cmd.MarkFlagRequired("token")

	return cmd
}

// request maps the flags onto a relay request. Optional numeric flags only
// count when they were given on the command line.
func (o *sendOptions) request(cmd *cobra.Command) (relay.Request, error) {
	pushType, err := push.ParseType(o.pushType)
	if err != nil {
		return relay.Request{}, err
	}
	req := relay.Request{
		PushType:         pushType,
		Token:            o.token,
		Sound:            o.sound,
		Category:         o.category,
		ContentAvailable: o.contentAvailable,
		MutableContent:   o.mutableContent,
		ID:               o.id,
		CollapseID:       o.collapseID,
	}
	if o.title != "" || o.subtitle != "" || o.body != "" {
		req.Alert = &relay.AlertContent{Title: o.title, Subtitle: o.subtitle, Body: o.body}
	}

	flags := cmd.Flags()
	if flags.Changed("badge") {
		req.Badge = &o.badge
	}
	if flags.Changed("priority") {
		req.Priority = &o.priority
	}
	switch {
	case o.immediate && flags.Changed("expiration"):
		return relay.Request{}, fmt.Errorf("--immediate and --expiration are mutually exclusive")
	case o.immediate:
		zero := int64(0)
		req.Expiration = &zero
	case flags.Changed("expiration"):
		req.Expiration = &o.expiration
	}

	if len(o.data) > 0 {
		req.Data = make(map[string]any, len(o.data))
		for k, v := range o.data {
			req.Data[k] = v
		}
	}
	return req, nil
}

func runSend(ctx context.Context, req relay.Request, timeout time.Duration, out io.Writer) error {
	logger := newLogger()

	cfg, err := config.Load(configFile, logger)
	if err != nil {
		return err
	}
	if sandbox {
		cfg.APNS.Sandbox = true
	}

	client, err := apnsservice.NewAPNSClient(cfg.APNS, logger)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := relay.NewDispatcher(client, logger).Dispatch(ctx, req)
	if err != nil {
		return err
	}
	return writeResult(out, res)
}

type sendResult struct {
	Successful bool   `json:"successful"`
	Reason     string `json:"reason"`
	Diagnostic string `json:"diagnostic,omitempty"`
	StatusCode int    `json:"status_code"`
	ApnsID     string `json:"apns_id,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

func writeResult(out io.Writer, res *apns.Response) error {
	result := sendResult{
		Successful: res.Successful,
		Reason:     res.Reason.String(),
		Diagnostic: res.ReasonString,
		StatusCode: res.StatusCode,
		ApnsID:     res.ApnsID,
	}
	if !res.Timestamp.IsZero() {
		result.Timestamp = res.Timestamp.Format(time.RFC3339Nano)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}
	if !res.Successful {
		return fmt.Errorf("%w: %s", errRejected, res.Reason)
	}
	return nil
}
