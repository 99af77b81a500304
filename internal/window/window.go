// Package window locates the target application window for capture.
package window

import "errors"

// Info describes a resolved top-level window. Width/Height are the client
// area, not the outer frame. An Info is a point-in-time snapshot; callers
// re-resolve before every capture attempt.
type Info struct {
	Handle uintptr
	Title  string
	Width  int
	Height int
}

// Locator finds windows by title substring.
type Locator interface {
	// Find returns the first visible top-level window whose title contains
	// pattern (case-insensitive), or nil if no window matches. A nil result
	// is not an error; it means "not found yet".
	Find(pattern string) (*Info, error)

	// List returns all visible top-level windows with a non-empty title.
	List() ([]Info, error)
}

// ErrNotSupported is returned on platforms without window enumeration.
var ErrNotSupported = errors.New("window enumeration not supported on this platform")

// ErrGone is returned by Bounds when the handle no longer refers to a live
// window. Callers treat it as "the tracked application exited".
var ErrGone = errors.New("window no longer exists")

// NewLocator returns the platform locator.
func NewLocator() Locator {
	return newPlatformLocator()
}

// Bounds returns the current client area of handle in screen coordinates.
// Unlike Info, which is a snapshot, Bounds re-reads the live window so capture
// can follow it as it moves.
func Bounds(handle uintptr) (x, y, w, h int, err error) {
	return platformBounds(handle)
}
