package eventbridge

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion identifies the status contract exposed via /health.
const ProtocolVersion = "1.0.0"

// Event names published by the orchestrator.
const (
	EventAgentsActivated      = "agentsActivated"
	EventWorkspaceInitialized = "workspaceInitialized"
	EventDocumentsRequested   = "documentsRequested"
	EventModeCompleted        = "modeCompleted"
	EventModeFailed           = "modeFailed"

	// Wildcard subscribes to every event name.
	Wildcard = "*"
)

// ErrBusClosed is returned when emitting on a closed bus.
var ErrBusClosed = errors.New("eventbridge: bus closed")

// Event is one notification handed to the host.
type Event struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// New builds an event stamped with a fresh ID and the given time (UTC).
func New(name string, payload any, now time.Time) Event {
	if now.IsZero() {
		now = time.Now()
	}
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: now.UTC(),
		Payload:   payload,
	}
}

// Normalize applies defaults and canonical formatting before validation.
func (e *Event) Normalize() {
	if e == nil {
		return
	}
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.Name = strings.TrimSpace(e.Name)
	e.SessionID = strings.TrimSpace(e.SessionID)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
}

// Validate enforces baseline requirements for outgoing events.
func (e Event) Validate() error {
	if e.Name == "" {
		return errors.New("eventbridge: event name is required")
	}
	if e.Name == Wildcard {
		return errors.New("eventbridge: event name must not be the wildcard")
	}
	return nil
}

// Emitter is the event-bus collaborator the orchestrator publishes through.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// EmitterFunc adapts a function into an Emitter.
type EmitterFunc func(context.Context, Event) error

// Emit executes f(ctx, e).
func (f EmitterFunc) Emit(ctx context.Context, e Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, e)
}

// Logger records bridge status information. It matches logging.Logger's signature.
type Logger interface {
	Printf(format string, args ...any)
}

// Timestamp renders t the way event payloads carry it.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
