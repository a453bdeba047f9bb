package picker

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthorizationDenied indicates the library refused access. It is
	// never fatal: the session simply has no library items.
	ErrAuthorizationDenied = errors.New("library access denied")

	// ErrNoPreview indicates a selection was attempted before the item had
	// a visual. Retry once the preview loads.
	ErrNoPreview = errors.New("no preview available")

	// ErrSelectionLimit indicates the maximum selection count was reached.
	ErrSelectionLimit = errors.New("selection limit exceeded")

	// ErrAssetMissing indicates a selected asset no longer exists in the
	// library. Finish drops such assets silently.
	ErrAssetMissing = errors.New("asset no longer exists")

	// ErrDecodeFailed indicates an asset could not be decoded.
	ErrDecodeFailed = errors.New("decode failed")

	// ErrSessionClosed indicates the session already finished or was cancelled.
	ErrSessionClosed = errors.New("session closed")

	// ErrNotActive indicates a selection was attempted before any items loaded.
	ErrNotActive = errors.New("session not active")

	// ErrOutOfWindow indicates a library position beyond the fetched window.
	ErrOutOfWindow = errors.New("position outside loaded window")

	// ErrUnknownPosition indicates an external position that was never added.
	ErrUnknownPosition = errors.New("unknown position")
)

// RejectReason classifies a refused selection.
type RejectReason int

const (
	RejectNoPreview RejectReason = iota
	RejectLimitExceeded
)

func (r RejectReason) String() string {
	if r == RejectLimitExceeded {
		return "limit_exceeded"
	}
	return "no_preview"
}

// RejectedError is returned by Session.RequestSelect when a selection is
// refused. The core performs no UI action; callers surface Message.
type RejectedError struct {
	Position Position
	Reason   RejectReason

	// Message is the user-facing text for RejectLimitExceeded.
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("select %s: %v", e.Position, e.Unwrap())
}

// Unwrap maps the reason onto ErrNoPreview or ErrSelectionLimit.
func (e *RejectedError) Unwrap() error {
	if e.Reason == RejectLimitExceeded {
		return ErrSelectionLimit
	}
	return ErrNoPreview
}
