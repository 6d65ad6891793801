package malpractice

import (
	"testing"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		sig       Signal
		started   bool
		wantKind  model.ViolationKind
		debounced bool
		wantOK    bool
	}{
		{"right click", Signal{Type: SignalContextMenu}, true, model.ViolationRightClick, false, true},
		{"print screen", Signal{Type: SignalKeyDown, Key: "PrintScreen"}, true, model.ViolationScreenshotKey, false, true},
		{"alt print screen", Signal{Type: SignalKeyDown, Key: "PrintScreen", Alt: true}, true, model.ViolationScreenshotKey, false, true},
		{"meta shift s", Signal{Type: SignalKeyDown, Key: "S", Meta: true, Shift: true}, true, model.ViolationScreenshotKey, false, true},
		{"ctrl alt s", Signal{Type: SignalKeyDown, Key: "S", Ctrl: true, Alt: true}, true, model.ViolationScreenshotKey, false, true},
		{"meta s lowercase", Signal{Type: SignalKeyDown, Key: "s", Meta: true}, true, model.ViolationScreenshotKey, false, true},
		{"ctrl shift s", Signal{Type: SignalKeyDown, Key: "S", Ctrl: true, Shift: true}, true, model.ViolationScreenshotKey, false, true},
		{"plain s", Signal{Type: SignalKeyDown, Key: "s"}, true, "", false, false},
		{"ctrl s", Signal{Type: SignalKeyDown, Key: "s", Ctrl: true}, true, "", false, false},
		{"escape", Signal{Type: SignalKeyDown, Key: "Escape"}, true, model.ViolationCriticalAction, false, true},
		{"f11", Signal{Type: SignalKeyDown, Key: "F11"}, true, model.ViolationCriticalAction, false, true},
		{"paste image", Signal{Type: SignalPaste, ClipboardTypes: []string{"text/plain", "image/png"}}, true, model.ViolationClipboardImage, false, true},
		{"paste text", Signal{Type: SignalPaste, ClipboardTypes: []string{"text/plain"}}, true, "", false, false},
		{"visibility", Signal{Type: SignalVisibilityChange, Hidden: true}, true, model.ViolationTabSwitch, true, true},
		{"blur", Signal{Type: SignalBlur}, true, model.ViolationWindowBlur, true, true},
		{"fullscreen exit started", Signal{Type: SignalFullscreenChange}, true, model.ViolationFullscreenExit, false, true},
		{"fullscreen exit not started", Signal{Type: SignalFullscreenChange}, false, "", false, false},
		{"fullscreen enter", Signal{Type: SignalFullscreenChange, Fullscreen: true}, true, "", false, false},
		{"fullscreen error", Signal{Type: SignalFullscreenError}, true, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Classify(tt.sig, tt.started)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, tt.debounced, c.Debounced)
		})
	}
}
