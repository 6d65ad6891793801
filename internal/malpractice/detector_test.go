package malpractice

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	mu     sync.Mutex
	events []model.MalpracticeEvent
}

func (r *fakeReporter) Report(_ context.Context, ev *model.MalpracticeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
	return nil
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type recorder struct {
	mu    sync.Mutex
	kinds []model.ViolationKind
}

func (r *recorder) record(k model.ViolationKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, k)
}

func (r *recorder) snapshot() []model.ViolationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ViolationKind(nil), r.kinds...)
}

func newTestDetector(rec *recorder, rep Reporter, debounce time.Duration) *Detector {
	return NewDetector(DetectorConfig{
		StudentID:   "s1",
		CourseID:    "c1",
		Debounce:    debounce,
		Reporter:    rep,
		OnViolation: rec.record,
		Log:         zerolog.Nop(),
	})
}

func TestDetector_IgnoresSignalsUntilInstalled(t *testing.T) {
	rec := &recorder{}
	d := newTestDetector(rec, nil, 10*time.Millisecond)

	d.Observe(Signal{Type: SignalContextMenu})
	assert.Empty(t, rec.snapshot())

	dispose := d.Install()
	d.Observe(Signal{Type: SignalContextMenu})
	dispose()
	d.Observe(Signal{Type: SignalContextMenu})

	assert.Equal(t, []model.ViolationKind{model.ViolationRightClick}, rec.snapshot())
}

func TestDetector_InstallDisposeIdempotent(t *testing.T) {
	d := newTestDetector(&recorder{}, nil, 10*time.Millisecond)

	dispose := d.Install()
	again := d.Install()
	require.True(t, d.Installed())

	dispose()
	again()
	dispose()
	assert.False(t, d.Installed())
}

func TestDetector_ReportsFireAndForget(t *testing.T) {
	rep := &fakeReporter{}
	d := newTestDetector(&recorder{}, rep, 10*time.Millisecond)
	defer d.Install()()

	d.Observe(Signal{Type: SignalKeyDown, Key: "PrintScreen"})

	assert.Eventually(t, func() bool { return rep.count() == 1 }, time.Second, 5*time.Millisecond)
	rep.mu.Lock()
	defer rep.mu.Unlock()
	assert.Equal(t, model.ViolationScreenshotKey, rep.events[0].Type)
	assert.Equal(t, "c1", rep.events[0].CourseID)
}

func TestDetector_TrailingDebounceCollapsesBursts(t *testing.T) {
	rec := &recorder{}
	d := newTestDetector(rec, nil, 40*time.Millisecond)
	defer d.Install()()

	for i := 0; i < 5; i++ {
		d.Observe(Signal{Type: SignalBlur})
		time.Sleep(5 * time.Millisecond)
	}

	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []model.ViolationKind{model.ViolationWindowBlur}, rec.snapshot())
}

func TestDetector_TabSwitchReadsVisibilityAtFireTime(t *testing.T) {
	rec := &recorder{}
	d := newTestDetector(rec, nil, 30*time.Millisecond)
	defer d.Install()()

	d.Observe(Signal{Type: SignalVisibilityChange, Hidden: true})
	d.Observe(Signal{Type: SignalVisibilityChange, Hidden: false})
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, rec.snapshot())

	d.Observe(Signal{Type: SignalVisibilityChange, Hidden: true})
	assert.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, model.ViolationTabSwitch, rec.snapshot()[0])
}

func TestDetector_DisposeCancelsPendingDebounce(t *testing.T) {
	rec := &recorder{}
	d := newTestDetector(rec, nil, 30*time.Millisecond)
	dispose := d.Install()

	d.Observe(Signal{Type: SignalBlur})
	dispose()
	time.Sleep(80 * time.Millisecond)

	assert.Empty(t, rec.snapshot())
}

func TestDetector_FullscreenExitOnlyWhileStarted(t *testing.T) {
	rec := &recorder{}
	started := false
	var mu sync.Mutex
	d := NewDetector(DetectorConfig{
		OnViolation: rec.record,
		ExamStarted: func() bool { mu.Lock(); defer mu.Unlock(); return started },
		Log:         zerolog.Nop(),
	})
	defer d.Install()()

	d.Observe(Signal{Type: SignalFullscreenChange})
	assert.Empty(t, rec.snapshot())

	mu.Lock()
	started = true
	mu.Unlock()
	d.Observe(Signal{Type: SignalFullscreenChange})
	assert.Equal(t, []model.ViolationKind{model.ViolationFullscreenExit}, rec.snapshot())
}
