// Package progress holds the per-execution WorkflowProgress and publishes
// every change to a display collaborator.
package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kingrea/jaegis/internal/mode"
)

// InitialPhase is the phase name reported right after Initialize.
const InitialPhase = "Initializing"

var (
	// ErrProgressRegression is returned when an update would lower progress.
	ErrProgressRegression = errors.New("progress: value would decrease")
	// ErrProgressOutOfRange is returned for values outside 0..100.
	ErrProgressOutOfRange = errors.New("progress: value must be between 0 and 100")
)

// Status is the lifecycle state of one execution.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	// StatusHandedOff means the sequence ended by handing work to the
	// activated agents (fullDevelopment).
	StatusHandedOff Status = "handed_off"
	// StatusStopped means the user declined a gate.
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further updates are expected.
func (s Status) Terminal() bool {
	return s != StatusRunning && s != ""
}

// WorkflowProgress is the state a display renders.
type WorkflowProgress struct {
	Mode           mode.Mode `json:"mode"`
	Phase          string    `json:"phase"`
	Progress       int       `json:"progress"`
	CompletedTasks []string  `json:"completed_tasks"`
	RemainingTasks []string  `json:"remaining_tasks"`
	Status         Status    `json:"status"`
	Error          string    `json:"error,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to another goroutine or persist.
func (p WorkflowProgress) Clone() WorkflowProgress {
	out := p
	out.CompletedTasks = append([]string{}, p.CompletedTasks...)
	out.RemainingTasks = append([]string{}, p.RemainingTasks...)
	return out
}

// Partial carries the fields an Update changes. Nil fields are left alone.
type Partial struct {
	Phase    *string
	Progress *int
}

// Step is the common Partial that sets both fields.
func Step(phase string, value int) Partial {
	return Partial{Phase: &phase, Progress: &value}
}

// Display is the status-display collaborator. OnProgress fires once per
// Update and never for any other change.
type Display interface {
	OnProgress(WorkflowProgress)
}

// Finisher is implemented by displays that want the terminal state. It is
// called once by Finish or Fail, in place of a further OnProgress.
type Finisher interface {
	OnFinish(WorkflowProgress)
}

// DisplayFunc adapts a function into a Display.
type DisplayFunc func(WorkflowProgress)

// OnProgress executes f(p).
func (f DisplayFunc) OnProgress(p WorkflowProgress) {
	if f != nil {
		f(p)
	}
}

// Logger matches logging.Logger's Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes a Reporter.
type Option func(*Reporter)

// WithLogger records no-op and rejected updates.
func WithLogger(l Logger) Option {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(r *Reporter) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// Reporter owns one WorkflowProgress. It is safe for concurrent use so
// monitors can take snapshots while an execution mutates it.
type Reporter struct {
	mu          sync.RWMutex
	state       WorkflowProgress
	initialized bool
	display     Display
	logger      Logger
	clock       func() time.Time
}

// NewReporter creates a reporter forwarding to display (which may be nil).
func NewReporter(display Display, opts ...Option) *Reporter {
	r := &Reporter{
		display: display,
		logger:  nopLogger{},
		clock:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Initialize resets the state for a fresh execution of m. It does not notify
// the display; the first notification is the first phase update.
func (r *Reporter) Initialize(m mode.Mode) (WorkflowProgress, error) {
	if !m.Valid() {
		return WorkflowProgress{}, &mode.InvalidModeError{Value: string(m)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = WorkflowProgress{
		Mode:           m,
		Phase:          InitialPhase,
		Progress:       0,
		CompletedTasks: []string{},
		RemainingTasks: mode.Tasks(m),
		Status:         StatusRunning,
		UpdatedAt:      r.clock(),
	}
	r.initialized = true
	return r.state.Clone(), nil
}

// Update merges the supplied fields and forwards the merged state.
// Calling it before Initialize is a logged no-op.
func (r *Reporter) Update(p Partial) error {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		r.logger.Printf("progress: update before initialize ignored")
		return nil
	}
	if p.Progress != nil {
		value := *p.Progress
		if value < 0 || value > 100 {
			r.mu.Unlock()
			return fmt.Errorf("%w: got %d", ErrProgressOutOfRange, value)
		}
		if value < r.state.Progress {
			current := r.state.Progress
			r.mu.Unlock()
			r.logger.Printf("progress: rejected regression %d -> %d", current, value)
			return fmt.Errorf("%w: %d -> %d", ErrProgressRegression, current, value)
		}
		r.state.Progress = value
	}
	if p.Phase != nil {
		r.state.Phase = *p.Phase
	}
	snapshot := r.touchLocked()
	r.mu.Unlock()
	r.publish(snapshot)
	return nil
}

// CompleteTask moves name from the remaining list to the completed list.
// Names outside the static task list are still recorded as completed. The
// display is not notified; the next Update or Finish carries the change.
func (r *Reporter) CompleteTask(name string) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		r.logger.Printf("progress: complete %q before initialize ignored", name)
		return
	}
	if !contains(r.state.CompletedTasks, name) {
		r.state.CompletedTasks = append(r.state.CompletedTasks, name)
	}
	r.state.RemainingTasks = remove(r.state.RemainingTasks, name)
	r.state.UpdatedAt = r.clock()
	r.mu.Unlock()
}

// Finish marks the execution with a terminal, non-failed status.
func (r *Reporter) Finish(status Status) {
	r.setStatus(status, "")
}

// Fail marks the execution failed. Phase and progress stay where they were.
func (r *Reporter) Fail(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	r.setStatus(StatusFailed, msg)
}

func (r *Reporter) setStatus(status Status, errMsg string) {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return
	}
	r.state.Status = status
	r.state.Error = errMsg
	snapshot := r.touchLocked()
	r.mu.Unlock()
	if f, ok := r.display.(Finisher); ok {
		f.OnFinish(snapshot)
	}
}

// Snapshot returns a copy of the current state.
func (r *Reporter) Snapshot() WorkflowProgress {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.Clone()
}

// Initialized reports whether Initialize has been called.
func (r *Reporter) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

func (r *Reporter) touchLocked() WorkflowProgress {
	r.state.UpdatedAt = r.clock()
	return r.state.Clone()
}

func (r *Reporter) publish(snapshot WorkflowProgress) {
	if r.display != nil {
		r.display.OnProgress(snapshot)
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func remove(values []string, target string) []string {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
