// Package apns sends notifications to the Apple Push Notification service.
//
// A Client authenticates either with a TLS client certificate (configured on
// the HTTP transport) or with provider tokens from a TokenAuthority. Send
// returns a Response for every answer the gateway gives, including rejections;
// errors are reserved for bad input, transport failures and cancellation.
package apns

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

// maxResponseBody bounds how much of an error body is read.
const maxResponseBody = 64 << 10

// HTTPClient defines the subset of *http.Client the Client uses. The transport
// should speak HTTP/2; APNs does not accept HTTP/1.1.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	http     HTTPClient
	resolver Resolver
	tokens   *TokenAuthority
	voipOnly bool
	logger   *slog.Logger
}

type clientOptions struct {
	sandbox    bool
	backupPort bool
	logger     *slog.Logger
}

type Option func(*clientOptions)

// WithSandbox targets the development gateway.
func WithSandbox() Option {
	return func(o *clientOptions) { o.sandbox = true }
}

// WithBackupPort uses port 2197 instead of 443.
func WithBackupPort() Option {
	return func(o *clientOptions) { o.backupPort = true }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func applyOptions(opts []Option) clientOptions {
	o := clientOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewCertificateClient creates a client for certificate authentication. The
// certificate itself must already be configured on httpClient's TLS transport;
// cert is only read to derive the topic.
func NewCertificateClient(httpClient HTTPClient, cert *x509.Certificate, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client", ErrMissingCredential)
	}
	topic, err := TopicFromCertificate(cert)
	if err != nil {
		return nil, err
	}
	bundleID, voipOnly := certificateIdentity(topic)
	o := applyOptions(opts)

	return &Client{
		http: httpClient,
		resolver: Resolver{
			Sandbox:    o.sandbox,
			BackupPort: o.backupPort,
			BundleID:   bundleID,
		},
		voipOnly: voipOnly,
		logger:   o.logger.With("component", "APNSClient", "auth", "certificate", "bundle_id", bundleID),
	}, nil
}

// NewTokenClient creates a client that authenticates every request with a
// bearer token from authority.
func NewTokenClient(httpClient HTTPClient, authority *TokenAuthority, bundleID string, opts ...Option) (*Client, error) {
	if httpClient == nil {
		return nil, fmt.Errorf("%w: http client", ErrMissingCredential)
	}
	if authority == nil {
		return nil, fmt.Errorf("%w: token authority", ErrMissingCredential)
	}
	if strings.TrimSpace(bundleID) == "" {
		return nil, fmt.Errorf("%w: bundle id", ErrMissingCredential)
	}
	o := applyOptions(opts)

	return &Client{
		http: httpClient,
		resolver: Resolver{
			Sandbox:    o.sandbox,
			BackupPort: o.backupPort,
			BundleID:   bundleID,
		},
		tokens: authority,
		logger: o.logger.With("component", "APNSClient", "auth", "token", "bundle_id", bundleID),
	}, nil
}

func (c *Client) BundleID() string { return c.resolver.BundleID }

// UsesCertificate reports whether the client authenticates with a certificate.
func (c *Client) UsesCertificate() bool { return c.tokens == nil }

// VoipOnly reports whether the client's certificate only allows voip pushes.
func (c *Client) VoipOnly() bool { return c.voipOnly }

// Send delivers n and classifies the gateway's answer. A non-nil error means no
// answer was obtained: invalid input, a transport failure (ErrTransport) or
// cancellation (wrapping ctx.Err()).
func (c *Client) Send(ctx context.Context, n *push.Notification) (*Response, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: notification is nil", ErrMissingDeviceToken)
	}
	if c.voipOnly && n.Type() != push.TypeVoip {
		return nil, ErrVoipOnlyCertificate
	}

	req, err := c.newRequest(ctx, n)
	if err != nil {
		return nil, err
	}

	log := c.logger.With("push_type", n.Type().String(), "token", RedactToken(n.Target()))
	log.Debug("Sending APNs notification", "host", req.URL.Host)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, log, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, c.transportError(ctx, log, err)
	}

	res := classify(resp.StatusCode, body, resp.Header.Get("apns-id"))
	if res.Successful {
		log.Debug("APNs accepted notification", "apns_id", res.ApnsID)
	} else {
		log.Warn("APNs rejected notification", "reason", res.ReasonString, "status", res.StatusCode)
	}
	return res, nil
}

func (c *Client) newRequest(ctx context.Context, n *push.Notification) (*http.Request, error) {
	topic, err := c.resolver.Topic(n.Type())
	if err != nil {
		return nil, err
	}
	url, err := c.resolver.URL(n)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(n.GeneratePayload())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apns-priority", strconv.Itoa(n.Priority()))
	req.Header.Set("apns-push-type", n.Type().String())
	req.Header.Set("apns-topic", topic)

	if exp, ok := n.Expiration(); ok {
		req.Header.Set("apns-expiration", expirationHeader(exp.IsZero(), exp.Unix()))
	}
	if id := n.ID(); id != uuid.Nil {
		req.Header.Set("apns-id", id.String())
	}
	if cid := n.CollapseID(); cid != "" {
		req.Header.Set("apns-collapse-id", cid)
	}

	if c.tokens != nil {
		bearer, err := c.tokens.Token()
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return req, nil
}

func expirationHeader(immediate bool, unix int64) string {
	if immediate {
		return "0"
	}
	return strconv.FormatInt(unix, 10)
}

func (c *Client) transportError(ctx context.Context, log *slog.Logger, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Info("APNs send cancelled", "err", ctxErr)
		return fmt.Errorf("apns send aborted: %w", ctxErr)
	}
	// url.Error carries the request URL, which ends in the device token.
	var ue *url.Error
	if errors.As(err, &ue) {
		err = fmt.Errorf("%s: %w", ue.Op, ue.Err)
	}
	log.Error("APNs transport failed", "err", err)
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
