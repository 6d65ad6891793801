// Package malpractice turns raw browser environment signals into violation
// kinds and decides how a session escalates them.
package malpractice

import (
	"strings"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// SignalType is the DOM event a signal was captured from.
type SignalType string

const (
	SignalContextMenu      SignalType = "contextmenu"
	SignalKeyDown          SignalType = "keydown"
	SignalPaste            SignalType = "paste"
	SignalVisibilityChange SignalType = "visibilitychange"
	SignalBlur             SignalType = "blur"
	SignalFullscreenChange SignalType = "fullscreenchange"
	SignalFullscreenError  SignalType = "fullscreenerror"
)

// Signal is one environment event forwarded by the browser shell.
type Signal struct {
	Type SignalType `json:"type" binding:"required,oneof=contextmenu keydown paste visibilitychange blur fullscreenchange fullscreenerror"`

	// keydown
	Key   string `json:"key,omitempty"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Meta  bool   `json:"meta,omitempty"`

	// paste: MIME types of the clipboard items
	ClipboardTypes []string `json:"clipboardTypes,omitempty"`

	// visibilitychange: document hidden after the change
	Hidden bool `json:"hidden,omitempty"`

	// fullscreenchange: a fullscreen element is present after the change
	Fullscreen bool `json:"fullscreen,omitempty"`

	// fullscreenerror
	Message string `json:"message,omitempty"`

	At time.Time `json:"at,omitempty"`
}

// Classification is the result of Classify.
type Classification struct {
	Kind model.ViolationKind
	// Debounced kinds are only reported when the trailing debounce fires.
	Debounced bool
}

// Classify maps a signal to a violation. ok is false for signals that are not
// violations. examStarted gates fullscreen exits.
func Classify(sig Signal, examStarted bool) (c Classification, ok bool) {
	switch sig.Type {
	case SignalContextMenu:
		return Classification{Kind: model.ViolationRightClick}, true

	case SignalKeyDown:
		if IsScreenshotChord(sig) {
			return Classification{Kind: model.ViolationScreenshotKey}, true
		}
		if sig.Key == "Escape" || sig.Key == "F11" {
			return Classification{Kind: model.ViolationCriticalAction}, true
		}

	case SignalPaste:
		for _, t := range sig.ClipboardTypes {
			if strings.Contains(t, "image") {
				return Classification{Kind: model.ViolationClipboardImage}, true
			}
		}

	case SignalVisibilityChange:
		return Classification{Kind: model.ViolationTabSwitch, Debounced: true}, true

	case SignalBlur:
		return Classification{Kind: model.ViolationWindowBlur, Debounced: true}, true

	case SignalFullscreenChange:
		if !sig.Fullscreen && examStarted {
			return Classification{Kind: model.ViolationFullscreenExit}, true
		}
	}
	return Classification{}, false
}

// IsScreenshotChord reports whether a keydown is one of the OS screenshot
// shortcuts.
func IsScreenshotChord(sig Signal) bool {
	if sig.Key == "PrintScreen" {
		return true
	}
	if !strings.EqualFold(sig.Key, "s") {
		return false
	}
	return sig.Meta || (sig.Ctrl && sig.Alt) || (sig.Ctrl && sig.Shift)
}
