// Package push builds APNs notifications and their JSON payloads.
//
// A Notification is assembled with mutators that validate as they go: a call
// that would put the notification into an invalid state returns an error and
// leaves the notification unchanged. Once handed to a sender it should not be
// mutated. A Notification is not safe for concurrent mutation.
package push

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-apns-service/pkg/payload"
)

// DefaultSound plays the system notification sound.
const DefaultSound = "default"

const (
	defaultPriority    = 10
	backgroundPriority = 5
	maxCollapseIDBytes = 64
)

// ApsKey is the reserved top-level payload key holding the Apple-defined fields.
const ApsKey = "aps"

// Alert is the user-visible part of an alert push.
type Alert struct {
	Title    string
	Subtitle string
	Body     string
}

type Notification struct {
	pushType  Type
	token     string
	voipToken string

	customPriority *int

	alert       *Alert
	alertAsText bool

	badge    *int
	sound    string
	category string

	contentAvailable bool
	mutableContent   bool

	expiration    time.Time
	hasExpiration bool

	id         uuid.UUID
	collapseID string

	custom    *payload.Map
	customAps *payload.Map
}

// New starts a notification of the given push type.
func New(t Type) *Notification {
	return &Notification{pushType: t}
}

func (n *Notification) Type() Type { return n.pushType }

// Token returns the device token, empty for voip pushes.
func (n *Notification) Token() string { return n.token }

// VoipToken returns the voip token, empty for non-voip pushes.
func (n *Notification) VoipToken() string { return n.voipToken }

// Target returns whichever token has been set.
func (n *Notification) Target() string {
	if n.token != "" {
		return n.token
	}
	return n.voipToken
}

// Priority returns the explicit priority, or 5 for background pushes and 10 otherwise.
func (n *Notification) Priority() int {
	if n.customPriority != nil {
		return *n.customPriority
	}
	if n.pushType == TypeBackground {
		return backgroundPriority
	}
	return defaultPriority
}

// Expiration returns the expiration instant and whether one was set.
// A zero time with ok == true means the notification expires immediately.
func (n *Notification) Expiration() (t time.Time, ok bool) {
	return n.expiration, n.hasExpiration
}

// ID returns the apns-id, or uuid.Nil when the gateway should assign one.
func (n *Notification) ID() uuid.UUID { return n.id }

func (n *Notification) CollapseID() string { return n.collapseID }

func (n *Notification) Alert() (Alert, bool) {
	if n.alert == nil {
		return Alert{}, false
	}
	return *n.alert, true
}

func (n *Notification) Badge() (int, bool) {
	if n.badge == nil {
		return 0, false
	}
	return *n.badge, true
}

func (n *Notification) Sound() string    { return n.sound }
func (n *Notification) Category() string { return n.category }

func (n *Notification) IsContentAvailable() bool { return n.contentAvailable }
func (n *Notification) IsMutableContent() bool   { return n.mutableContent }

// AddContentAvailable marks the push as a silent content update.
// It is rejected when a badge or sound has already been added.
func (n *Notification) AddContentAvailable() error {
	if n.badge != nil || n.sound != "" {
		return ErrContentAvailable
	}
	n.contentAvailable = true
	return nil
}

func (n *Notification) AddMutableContent() {
	n.mutableContent = true
}

// AddAlertBody sets an alert that is sent as a bare string.
func (n *Notification) AddAlertBody(body string) error {
	return n.setAlert("", "", body)
}

// AddAlert sets an alert with a title and body. An empty title sends the body
// as a bare string.
func (n *Notification) AddAlert(title, body string) error {
	return n.setAlert(title, "", body)
}

// AddAlertWithSubtitle sets an alert with title, subtitle and body. An empty
// title sends the body as a bare string.
func (n *Notification) AddAlertWithSubtitle(title, subtitle, body string) error {
	return n.setAlert(title, subtitle, body)
}

func (n *Notification) setAlert(title, subtitle, body string) error {
	if body == "" {
		return fmt.Errorf("alert body: %w", ErrEmptyValue)
	}
	n.alert = &Alert{Title: title, Subtitle: subtitle, Body: body}
	n.alertAsText = title == ""
	return nil
}

func (n *Notification) SetPriority(priority int) error {
	if priority < 0 || priority > 10 {
		return fmt.Errorf("%w: got %d", ErrPriorityRange, priority)
	}
	n.customPriority = &priority
	return nil
}

func (n *Notification) AddBadge(badge int) error {
	if n.contentAvailable {
		return ErrContentAvailable
	}
	if n.badge != nil {
		return ErrBadgeAlreadySet
	}
	n.badge = &badge
	return nil
}

// AddSound sets the sound name. Use DefaultSound for the system sound.
func (n *Notification) AddSound(sound string) error {
	if isBlank(sound) {
		return fmt.Errorf("sound: %w", ErrEmptyValue)
	}
	if n.contentAvailable {
		return ErrContentAvailable
	}
	if n.sound != "" {
		return ErrSoundAlreadySet
	}
	n.sound = sound
	return nil
}

func (n *Notification) AddCategory(category string) error {
	if isBlank(category) {
		return fmt.Errorf("category: %w", ErrEmptyValue)
	}
	if n.category != "" {
		return ErrCategoryAlreadySet
	}
	n.category = category
	return nil
}

// AddExpiration sets the instant after which APNs stops trying to deliver.
// Passing the zero time is the same as AddImmediateExpiration.
func (n *Notification) AddExpiration(at time.Time) {
	n.expiration = at
	n.hasExpiration = true
}

// AddImmediateExpiration asks APNs to attempt delivery once and not store the push.
func (n *Notification) AddImmediateExpiration() {
	n.expiration = time.Time{}
	n.hasExpiration = true
}

// AddToken sets the device token for alert and background pushes.
func (n *Notification) AddToken(token string) error {
	if isBlank(token) {
		return fmt.Errorf("token: %w", ErrEmptyValue)
	}
	if n.hasToken() {
		return ErrTokenAlreadySet
	}
	if n.pushType == TypeVoip {
		return ErrVoipTokenRequired
	}
	n.token = token
	return nil
}

// AddVoipToken sets the voip token for voip pushes.
func (n *Notification) AddVoipToken(voipToken string) error {
	if isBlank(voipToken) {
		return fmt.Errorf("voip token: %w", ErrEmptyValue)
	}
	if n.hasToken() {
		return ErrTokenAlreadySet
	}
	if n.pushType != TypeVoip {
		return ErrVoipTokenNotVoip
	}
	n.voipToken = voipToken
	return nil
}

// SetID sets the apns-id header. uuid.Nil clears it.
func (n *Notification) SetID(id uuid.UUID) {
	n.id = id
}

// SetCollapseID sets the apns-collapse-id header, at most 64 bytes.
func (n *Notification) SetCollapseID(id string) error {
	if len(id) > maxCollapseIDBytes {
		return fmt.Errorf("collapse id is %d bytes, max %d", len(id), maxCollapseIDBytes)
	}
	n.collapseID = id
	return nil
}

// AddCustomProperty adds a key to the top level of the payload. The value is
// converted with payload.ValueOf.
func (n *Notification) AddCustomProperty(key string, value any) error {
	if key == ApsKey {
		return fmt.Errorf("%w: %q", ErrReservedProperty, key)
	}
	if n.custom == nil {
		n.custom = payload.NewMap()
	}
	return addProperty(n.custom, key, value)
}

// AddCustomApsProperty adds a key inside the aps dictionary. Keys the builder
// writes itself (alert, badge, sound...) win over custom ones at generation.
func (n *Notification) AddCustomApsProperty(key string, value any) error {
	if n.customAps == nil {
		n.customAps = payload.NewMap()
	}
	return addProperty(n.customAps, key, value)
}

func addProperty(m *payload.Map, key string, value any) error {
	if key == "" {
		return fmt.Errorf("property key: %w", ErrEmptyValue)
	}
	if m.Has(key) {
		return fmt.Errorf("%w: %q", ErrDuplicateProperty, key)
	}
	v, err := payload.ValueOf(value)
	if err != nil {
		return fmt.Errorf("property %q: %w", key, err)
	}
	m.Set(key, v)
	return nil
}

// GeneratePayload builds the JSON body for the current state. It does not
// modify the notification.
func (n *Notification) GeneratePayload() *payload.Map {
	aps := payload.NewMap()

	if n.contentAvailable {
		aps.Set("content-available", payload.String("1"))
	}
	if n.mutableContent {
		aps.Set("mutable-content", payload.String("1"))
	}
	if n.alert != nil {
		aps.Set("alert", n.alertValue())
	}
	if n.badge != nil {
		aps.Set("badge", payload.Int(int64(*n.badge)))
	}
	if n.sound != "" {
		aps.Set("sound", payload.String(n.sound))
	}
	if n.category != "" {
		aps.Set("category", payload.String(n.category))
	}

	root := payload.NewMap()
	root.Set(ApsKey, payload.Object(aps))

	if n.custom != nil {
		for _, k := range n.custom.Keys() {
			v, _ := n.custom.Get(k)
			root.SetIfAbsent(k, v)
		}
	}
	if n.customAps != nil {
		for _, k := range n.customAps.Keys() {
			v, _ := n.customAps.Get(k)
			aps.SetIfAbsent(k, v)
		}
	}
	return root
}

func (n *Notification) alertValue() payload.Value {
	if n.alertAsText {
		return payload.String(n.alert.Body)
	}
	obj := payload.NewMap()
	obj.Set("title", payload.String(n.alert.Title))
	if n.alert.Subtitle != "" {
		obj.Set("subtitle", payload.String(n.alert.Subtitle))
	}
	obj.Set("body", payload.String(n.alert.Body))
	return payload.Object(obj)
}

func (n *Notification) hasToken() bool {
	return n.token != "" || n.voipToken != ""
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
