package orchestrator

import (
	"context"
	"time"

	"github.com/kingrea/jaegis/internal/mode"
)

// PhaseRequest is handed to a PhaseWorker for each phase.
type PhaseRequest struct {
	SessionID string
	Mode      mode.Mode
	Phase     mode.Phase
	Index     int
	Context   ExecutionContext
}

// PhaseResult is what a worker reports back. Both fields are optional.
type PhaseResult struct {
	Summary   string
	Artifacts []string
}

// PhaseWorker does the actual work of a phase. The executor only sequences
// phases and keeps the books.
type PhaseWorker interface {
	Execute(ctx context.Context, req PhaseRequest) (PhaseResult, error)
}

// WorkerFunc adapts a function into a PhaseWorker.
type WorkerFunc func(context.Context, PhaseRequest) (PhaseResult, error)

// Execute executes f(ctx, req).
func (f WorkerFunc) Execute(ctx context.Context, req PhaseRequest) (PhaseResult, error) {
	return f(ctx, req)
}

// DelayWorker stands in for real work by waiting Delay per phase. A zero
// delay returns immediately.
type DelayWorker struct {
	Delay time.Duration
}

func (w DelayWorker) Execute(ctx context.Context, req PhaseRequest) (PhaseResult, error) {
	if err := ctx.Err(); err != nil {
		return PhaseResult{}, err
	}
	if w.Delay <= 0 {
		return PhaseResult{}, nil
	}
	timer := time.NewTimer(w.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return PhaseResult{}, ctx.Err()
	case <-timer.C:
		return PhaseResult{}, nil
	}
}
