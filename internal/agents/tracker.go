// Package agents tracks which agents are shown as active for a mode. Agents
// are display labels here; nothing in this package runs them.
package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kingrea/jaegis/internal/eventbridge"
)

// AgentID is an opaque agent identifier.
type AgentID string

// ErrActivation matches every *ActivationError via errors.Is.
var ErrActivation = errors.New("agent activation failed")

// ActivationError wraps a failure from the event bus during activation.
type ActivationError struct {
	Agents []AgentID
	Cause  error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("agents: activate %d agent(s): %v", len(e.Agents), e.Cause)
}

func (e *ActivationError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrActivation) match.
func (e *ActivationError) Is(target error) bool { return target == ErrActivation }

// ActivatedPayload is the body of the agentsActivated event.
type ActivatedPayload struct {
	Agents    []AgentID `json:"agents"`
	Timestamp string    `json:"timestamp"`
}

// Tracker holds the active set. The set is replaced wholesale on every
// activation, never merged.
type Tracker struct {
	mu      sync.RWMutex
	active  []AgentID
	emitter eventbridge.Emitter
	clock   func() time.Time
}

// NewTracker creates a tracker that announces activations through emitter.
// A nil emitter makes activation purely local.
func NewTracker(emitter eventbridge.Emitter) *Tracker {
	return &Tracker{emitter: emitter, clock: time.Now}
}

// WithClock swaps the clock used for event timestamps.
func (t *Tracker) WithClock(clock func() time.Time) *Tracker {
	if clock != nil {
		t.clock = clock
	}
	return t
}

// Activate replaces the active set with ids. Blank IDs are dropped and
// duplicates collapse to their first occurrence. The previous set is kept
// when the event cannot be delivered.
func (t *Tracker) Activate(ctx context.Context, ids []AgentID) (eventbridge.Event, error) {
	next := Normalize(ids)
	now := t.clock()
	event := eventbridge.New(eventbridge.EventAgentsActivated, ActivatedPayload{
		Agents:    append([]AgentID{}, next...),
		Timestamp: eventbridge.Timestamp(now),
	}, now)
	if t.emitter != nil {
		if err := t.emitter.Emit(ctx, event); err != nil {
			return eventbridge.Event{}, &ActivationError{Agents: next, Cause: err}
		}
	}
	t.mu.Lock()
	t.active = next
	t.mu.Unlock()
	return event, nil
}

// Active returns a copy of the active set, in activation order. Never nil.
func (t *Tracker) Active() []AgentID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]AgentID, len(t.active))
	copy(out, t.active)
	return out
}

// Normalize trims IDs, drops blanks and collapses duplicates keeping order.
func Normalize(ids []AgentID) []AgentID {
	out := make([]AgentID, 0, len(ids))
	seen := make(map[AgentID]struct{}, len(ids))
	for _, id := range ids {
		trimmed := AgentID(strings.TrimSpace(string(id)))
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// FromStrings converts plain strings (flags, config) into AgentIDs.
func FromStrings(values []string) []AgentID {
	out := make([]AgentID, 0, len(values))
	for _, v := range values {
		out = append(out, AgentID(v))
	}
	return out
}
