// Package haptics maps feedback intensities to vibration patterns.
//
// Feedback is never on the critical path: a disabled preference, a device
// without vibration, and a failing device call all end in a silent no-op.
package haptics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/momsterhelpdesk-bot/mom-tribe-finder-sub002/internal/prefs"
)

// Intensity is a feedback strength.
type Intensity string

const (
	Light  Intensity = "light"
	Medium Intensity = "medium"
	Heavy  Intensity = "heavy"
	Error  Intensity = "error"
)

// Patterns alternate vibration and pause durations, starting with vibration.
var patterns = map[Intensity][]time.Duration{
	Light:  {10 * time.Millisecond},
	Medium: {25 * time.Millisecond},
	Heavy:  {50 * time.Millisecond},
	Error:  {30 * time.Millisecond, 50 * time.Millisecond, 30 * time.Millisecond},
}

// Pattern returns the vibration pattern for i, or nil for an unknown
// intensity.
func Pattern(i Intensity) []time.Duration {
	p, ok := patterns[i]
	if !ok {
		return nil
	}
	return append([]time.Duration(nil), p...)
}

// ParseIntensity validates a raw intensity name.
func ParseIntensity(s string) (Intensity, error) {
	i := Intensity(s)
	if _, ok := patterns[i]; !ok {
		return "", fmt.Errorf("unknown haptic intensity %q", s)
	}
	return i, nil
}

// Vibrator is the device vibration capability.
type Vibrator interface {
	Vibrate(pattern []time.Duration) error
}

// Preferences persists the enabled flag.
type Preferences interface {
	Get(ctx context.Context, key prefs.Key) (bool, bool)
	Set(ctx context.Context, key prefs.Key, value bool) error
}

// Engine triggers haptic feedback.
type Engine struct {
	device Vibrator
	prefs  Preferences
	logger *slog.Logger

	mu      sync.Mutex
	enabled bool
	writes  sync.WaitGroup
}

// NewEngine creates an engine. device may be nil when the platform has no
// vibration capability. Haptics start enabled until Load says otherwise.
func NewEngine(device Vibrator, p Preferences, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		device:  device,
		prefs:   p,
		logger:  logger.With("component", "haptics"),
		enabled: true,
	}
}

// Load reads the persisted preference. An unset preference, or nobody
// signed in, means enabled. Call it again whenever the signed-in user
// changes.
func (e *Engine) Load(ctx context.Context) {
	v, ok := e.prefs.Get(ctx, prefs.HapticEnabled)
	if !ok {
		v = true
	}
	e.mu.Lock()
	e.enabled = v
	e.mu.Unlock()
}

// Enabled reports the in-memory state.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enabled
}

// Supported reports whether the device can vibrate at all.
func (e *Engine) Supported() bool {
	return e.device != nil
}

// Trigger plays the pattern for i. It reports whether the device was asked
// to vibrate and succeeded.
func (e *Engine) Trigger(i Intensity) (played bool) {
	if !e.Enabled() || e.device == nil {
		return false
	}
	pattern, ok := patterns[i]
	if !ok {
		return false
	}

	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Debug("vibration panicked", "intensity", i, "panic", rec)
			played = false
		}
	}()

	if err := e.device.Vibrate(pattern); err != nil {
		e.logger.Debug("vibration failed", "intensity", i, "error", err)
		return false
	}
	return true
}

// Toggle changes the enabled state immediately and persists it in the
// background. A failed write is logged and does not roll back the toggle.
func (e *Engine) Toggle(ctx context.Context, enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	e.writes.Add(1)
	go func() {
		defer e.writes.Done()
		if err := e.prefs.Set(ctx, prefs.HapticEnabled, enabled); err != nil {
			e.logger.Warn("failed to persist haptic preference", "enabled", enabled, "error", err)
		}
	}()
}

// Wait blocks until every background write started by Toggle has finished.
func (e *Engine) Wait() {
	e.writes.Wait()
}
