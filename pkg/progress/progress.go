// Package progress is the visual feedback collaborator used during long flash
// operations. None of it affects correctness; Nop is a valid implementation.
package progress

import (
	"github.com/hashicorp/go-hclog"
)

// Phase names the running operation.
type Phase string

const (
	PhaseBackup    Phase = "backup"
	PhaseRestore   Phase = "restore"
	PhaseErase     Phase = "erase"
	PhaseEraseSRAM Phase = "erase-sram"
	PhaseRelocate  Phase = "relocate"
	PhaseSettings  Phase = "settings"
	PhaseSelfTest  Phase = "selftest"
)

// Progress describes a progress bar state.
type Progress struct {
	Phase Phase

	// Current is the step being worked on (0-based), Total the step count.
	Current int
	Total   int
}

// Percentage returns the completion percentage (0.0 to 100.0).
func (p Progress) Percentage() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Current) * 100 / float64(p.Total)
}

// Indicator receives progress. Step animates the busy indicator and is
// called at least once per page, so implementations must return quickly.
type Indicator interface {
	Init(p Progress)
	Draw(p Progress)
	Step()
	Clear()
}

// Nop discards all progress.
type Nop struct{}

func (Nop) Init(Progress) {}
func (Nop) Draw(Progress) {}
func (Nop) Step()         {}
func (Nop) Clear()        {}

// Logger reports progress through hclog, at most once per Every percent.
type Logger struct {
	logger hclog.Logger
	every  float64
	last   float64
	steps  int
}

// NewLogger creates a Logger reporting every `every` percent.
func NewLogger(logger hclog.Logger, every float64) *Logger {
	if every <= 0 {
		every = 10
	}
	return &Logger{logger: logger, every: every}
}

func (l *Logger) Init(p Progress) {
	l.last = 0
	l.steps = 0
	l.logger.Info("⏳ Starting", "phase", p.Phase, "steps", p.Total)
}

func (l *Logger) Draw(p Progress) {
	pct := p.Percentage()
	if pct-l.last < l.every {
		return
	}
	l.last = pct
	l.logger.Debug("⏳ Progress", "phase", p.Phase, "step", p.Current, "total", p.Total, "percent", int(pct))
}

func (l *Logger) Step() {
	l.steps++
}

func (l *Logger) Clear() {
	l.logger.Trace("✅ Indicator cleared", "steps", l.steps)
}

// Recorder counts calls. Tests use it to check that long operations keep the
// indicator alive.
type Recorder struct {
	Inits  []Progress
	Draws  []Progress
	Steps  int
	Clears int
}

func (r *Recorder) Init(p Progress) { r.Inits = append(r.Inits, p) }
func (r *Recorder) Draw(p Progress) { r.Draws = append(r.Draws, p) }
func (r *Recorder) Step()           { r.Steps++ }
func (r *Recorder) Clear()          { r.Clears++ }
