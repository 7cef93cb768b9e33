package apns

import (
	"fmt"
	"strconv"

	"github.com/tinywideclouds/go-apns-service/pkg/push"
)

const (
	ProductionHost = "https://api.push.apple.com"
	SandboxHost    = "https://api.sandbox.push.apple.com"

	DefaultPort = 443
	BackupPort  = 2197

	devicePath = "/3/device/"
	voipSuffix = ".voip"
)

// Resolver computes the request URL and apns-topic for a notification.
type Resolver struct {
	Sandbox    bool
	BackupPort bool
	BundleID   string
}

// URL returns the endpoint for n, using its device token or else its voip token.
func (r Resolver) URL(n *push.Notification) (string, error) {
	target := n.Target()
	if target == "" {
		return "", ErrMissingDeviceToken
	}
	host := ProductionHost
	if r.Sandbox {
		host = SandboxHost
	}
	port := DefaultPort
	if r.BackupPort {
		port = BackupPort
	}
	return host + ":" + strconv.Itoa(port) + devicePath + target, nil
}

// Topic returns the bundle id for alert and background pushes and the bundle id
// with ".voip" appended for voip pushes.
func (r Resolver) Topic(t push.Type) (string, error) {
	switch t {
	case push.TypeAlert, push.TypeBackground:
		return r.BundleID, nil
	case push.TypeVoip:
		return r.BundleID + voipSuffix, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownPushType, t)
	}
}
