package malpractice

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const DefaultDebounce = time.Second

// Reporter logs a violation to the backend. Calls are fire-and-forget.
type Reporter interface {
	Report(ctx context.Context, ev *model.MalpracticeEvent) error
}

// DetectorConfig wires a Detector to one exam session.
type DetectorConfig struct {
	StudentID string
	CourseID  string
	Debounce  time.Duration
	Reporter  Reporter
	// ExamStarted gates fullscreen exits. It is called without the detector
	// lock held.
	ExamStarted func() bool
	// OnViolation receives every classified violation.
	OnViolation func(kind model.ViolationKind)
	Log         zerolog.Logger
}

// Detector owns the listener state of one session. Signals are ignored unless
// the detector is installed.
type Detector struct {
	cfg DetectorConfig
	log zerolog.Logger

	mu         sync.Mutex
	installed  bool
	generation uint64
	timers     map[model.ViolationKind]*time.Timer
	hidden     bool
	dispose    func()
}

// NewDetector creates an uninstalled Detector.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.ExamStarted == nil {
		cfg.ExamStarted = func() bool { return true }
	}
	return &Detector{
		cfg: cfg,
		log: cfg.Log.With().
			Str("component", "malpractice_detector").
			Str("student_id", cfg.StudentID).
			Str("course_id", cfg.CourseID).
			Logger(),
		timers: make(map[model.ViolationKind]*time.Timer),
	}
}

// Install starts accepting signals and returns the disposer. Installing an
// already installed detector returns the existing disposer. The disposer is
// idempotent.
func (d *Detector) Install() (dispose func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.installed {
		return d.dispose
	}
	d.installed = true
	d.generation++

	var once sync.Once
	d.dispose = func() {
		once.Do(d.uninstall)
	}
	d.log.Debug().Msg("Malpractice listeners installed")
	return d.dispose
}

func (d *Detector) uninstall() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.installed = false
	for kind, t := range d.timers {
		t.Stop()
		delete(d.timers, kind)
	}
	d.log.Debug().Msg("Malpractice listeners removed")
}

// Installed reports whether signals are currently accepted.
func (d *Detector) Installed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.installed
}

// Observe classifies one signal. Immediate violations are reported before
// Observe returns; debounced ones when their timer fires.
func (d *Detector) Observe(sig Signal) {
	started := d.cfg.ExamStarted()

	d.mu.Lock()
	if !d.installed {
		d.mu.Unlock()
		return
	}

	if sig.Type == SignalFullscreenError {
		d.mu.Unlock()
		d.log.Warn().Str("message", sig.Message).Msg("Fullscreen request failed")
		return
	}
	if sig.Type == SignalVisibilityChange {
		d.hidden = sig.Hidden
	}

	c, ok := Classify(sig, started)
	if !ok {
		d.mu.Unlock()
		return
	}

	if c.Debounced {
		d.schedule(c.Kind)
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.emit(c.Kind)
}

// schedule (re)arms the trailing debounce timer of kind. Caller holds d.mu.
func (d *Detector) schedule(kind model.ViolationKind) {
	if t, ok := d.timers[kind]; ok {
		t.Stop()
	}
	gen := d.generation
	d.timers[kind] = time.AfterFunc(d.cfg.Debounce, func() {
		d.fire(kind, gen)
	})
}

func (d *Detector) fire(kind model.ViolationKind, gen uint64) {
	d.mu.Lock()
	if !d.installed || d.generation != gen {
		d.mu.Unlock()
		return
	}
	delete(d.timers, kind)
	// Visibility is read when the debounce fires, not when the signal arrived.
	if kind == model.ViolationTabSwitch && !d.hidden {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	d.emit(kind)
}

func (d *Detector) emit(kind model.ViolationKind) {
	d.log.Info().Str("kind", string(kind)).Msg("Malpractice detected")

	if d.cfg.Reporter != nil {
		ev := &model.MalpracticeEvent{
			StudentID:  d.cfg.StudentID,
			CourseID:   d.cfg.CourseID,
			Type:       kind,
			RecordedAt: time.Now(),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := d.cfg.Reporter.Report(ctx, ev); err != nil {
				d.log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to log malpractice")
			}
		}()
	}

	if d.cfg.OnViolation != nil {
		d.cfg.OnViolation(kind)
	}
}
