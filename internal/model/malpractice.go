package model

import "time"

// ViolationKind is the closed taxonomy of detected malpractice.
type ViolationKind string

const (
	ViolationRightClick     ViolationKind = "right_click"
	ViolationScreenshotKey  ViolationKind = "screenshot_key"
	ViolationCriticalAction ViolationKind = "critical_action"
	ViolationClipboardImage ViolationKind = "clipboard_image"
	ViolationTabSwitch      ViolationKind = "tab_switch"
	ViolationWindowBlur     ViolationKind = "window_blur"
	ViolationFullscreenExit ViolationKind = "fullscreen_exit"
)

// ViolationKinds lists every kind in display order.
var ViolationKinds = []ViolationKind{
	ViolationRightClick,
	ViolationScreenshotKey,
	ViolationCriticalAction,
	ViolationClipboardImage,
	ViolationTabSwitch,
	ViolationWindowBlur,
	ViolationFullscreenExit,
}

// Valid reports whether k belongs to the taxonomy.
func (k ViolationKind) Valid() bool {
	for _, v := range ViolationKinds {
		if v == k {
			return true
		}
	}
	return false
}

// MalpracticeEvent is one detected violation, as logged to the backend and
// the local audit table.
type MalpracticeEvent struct {
	StudentID  string        `json:"studentId"`
	CourseID   string        `json:"courseId"`
	Type       ViolationKind `json:"type"`
	RecordedAt time.Time     `json:"recordedAt"`
}
