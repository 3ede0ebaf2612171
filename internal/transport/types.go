// Package transport defines notification surfaces: the places a reminder can
// be shown (a terminal, a Telegram chat).
package transport

import (
	"context"
	"fmt"
	"time"
)

// Permission is the user's decision about showing notifications.
type Permission string

const (
	PermissionDefault Permission = "default" // not decided yet; may prompt
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// ParsePermission maps config values; "prompt" and "" mean undecided.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "granted":
		return PermissionGranted, nil
	case "denied":
		return PermissionDenied, nil
	case "", "prompt", "default":
		return PermissionDefault, nil
	}
	return "", fmt.Errorf("unknown permission %q (want granted|denied|prompt)", s)
}

// Message is one notification. Tag identifies it so that a newer message
// with the same tag replaces the previous one instead of stacking.
type Message struct {
	Tag   string
	Title string
	Body  string
}

// Ref points to a displayed message so it can be dismissed later.
type Ref struct {
	Surface   string
	ID        string
	ChatID    int64
	MessageID int
}

// Surface shows and dismisses notifications.
type Surface interface {
	Name() string
	// Supported reports whether the surface can show anything at all.
	Supported() bool
	Permission() Permission
	// RequestPermission prompts the user if the permission is undecided and
	// returns the resulting state.
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, m Message) (Ref, error)
	Dismiss(ctx context.Context, ref Ref) error
}

// RetryAfterError is returned by surfaces that were told to back off.
type RetryAfterError struct {
	After time.Duration
	Err   error
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("retry after %s: %v", e.After, e.Err)
}

func (e *RetryAfterError) Unwrap() error { return e.Err }
