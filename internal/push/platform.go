package push

import (
	"context"
	"encoding/json"
	"fmt"
)

// Permission is the platform notification permission.
type Permission int

const (
	PermissionDefault Permission = iota
	PermissionGranted
	PermissionDenied
	// PermissionUnsupported means the platform has no notification API.
	// It is terminal and kept apart from a user's explicit denial.
	PermissionUnsupported
)

var permissionNames = map[Permission]string{
	PermissionDefault:     "default",
	PermissionGranted:     "granted",
	PermissionDenied:      "denied",
	PermissionUnsupported: "unsupported",
}

func (p Permission) String() string {
	if s, ok := permissionNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Permission(%d)", int(p))
}

// MarshalJSON encodes the permission by name.
func (p Permission) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// ParsePermission maps a platform permission name to a Permission.
func ParsePermission(s string) (Permission, error) {
	for p, name := range permissionNames {
		if name == s {
			return p, nil
		}
	}
	return PermissionDefault, fmt.Errorf("unknown permission %q", s)
}

// NotificationOptions mirrors the platform's notification options.
type NotificationOptions struct {
	Body  string         `json:"body,omitempty"`
	Icon  string         `json:"icon,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Badge string         `json:"badge,omitempty"`
}

// Subscription is a push subscription issued by the platform.
type Subscription struct {
	Endpoint string `json:"endpoint"`
	P256DH   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Registration is the installed background worker that manages push
// subscriptions and persistent notifications.
type Registration interface {
	// Subscription returns the active subscription, or nil when none exists.
	Subscription(ctx context.Context) (*Subscription, error)

	// Subscribe creates a new subscription.
	Subscribe(ctx context.Context) (*Subscription, error)

	// ShowNotification displays a notification managed by the platform's
	// notification center.
	ShowNotification(title string, opts NotificationOptions) error

	// OnUpdate registers fn to be called when a new worker version is found.
	OnUpdate(fn func())
}

// Platform is the notification capability of the host.
type Platform interface {
	// Supported reports whether the host has a notification API at all.
	Supported() bool

	// Permission returns the current permission without prompting.
	Permission() Permission

	// RequestPermission prompts the user and returns the resulting state.
	RequestPermission(ctx context.Context) (Permission, error)

	// Register installs or looks up the background worker registration.
	Register(ctx context.Context) (Registration, error)

	// Notify shows a bare notification without a registration.
	Notify(title string, opts NotificationOptions) error
}

// Unsupported is a Platform for hosts without any notification API.
type Unsupported struct{}

var _ Platform = Unsupported{}

func (Unsupported) Supported() bool        { return false }
func (Unsupported) Permission() Permission { return PermissionUnsupported }

func (Unsupported) RequestPermission(context.Context) (Permission, error) {
	return PermissionUnsupported, nil
}

func (Unsupported) Register(context.Context) (Registration, error) {
	return nil, ErrUnsupported
}

func (Unsupported) Notify(string, NotificationOptions) error {
	return ErrUnsupported
}
