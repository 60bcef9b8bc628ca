// internal/mode/mode.go
//
// Defines the eight workflow modes and the fixed phase sequence each one
// drives. The tables here are data: the orchestrator reads them, it never
// derives them.

package mode

import (
	"errors"
	"fmt"
	"strings"
)

// Mode selects which phase sequence an execution runs.
type Mode string

const (
	Documentation       Mode = "documentation"
	FullDevelopment     Mode = "fullDevelopment"
	ContinueProject     Mode = "continueProject"
	TaskOverview        Mode = "taskOverview"
	DebugMode           Mode = "debugMode"
	ContinuousExecution Mode = "continuousExecution"
	FeatureGapAnalysis  Mode = "featureGapAnalysis"
	GitHubIntegration   Mode = "githubIntegration"
)

// ErrInvalidMode matches every *InvalidModeError via errors.Is.
var ErrInvalidMode = errors.New("invalid mode")

// InvalidModeError reports a mode string outside the recognized set.
type InvalidModeError struct {
	Value string
}

func (e *InvalidModeError) Error() string {
	return fmt.Sprintf("mode: %q is not a recognized mode (want one of %s)", e.Value, strings.Join(Names(), ", "))
}

// Is lets errors.Is(err, ErrInvalidMode) match.
func (e *InvalidModeError) Is(target error) bool {
	return target == ErrInvalidMode
}

var ordered = []Mode{
	Documentation,
	FullDevelopment,
	ContinueProject,
	TaskOverview,
	DebugMode,
	ContinuousExecution,
	FeatureGapAnalysis,
	GitHubIntegration,
}

// All returns the recognized modes in declaration order.
func All() []Mode {
	out := make([]Mode, len(ordered))
	copy(out, ordered)
	return out
}

// Names returns the recognized mode identifiers as strings.
func Names() []string {
	names := make([]string, len(ordered))
	for i, m := range ordered {
		names[i] = string(m)
	}
	return names
}

// Parse resolves a mode identifier. Matching is exact after trimming
// surrounding whitespace.
func Parse(value string) (Mode, error) {
	candidate := Mode(strings.TrimSpace(value))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", &InvalidModeError{Value: value}
}

// Valid reports whether m is one of the eight recognized modes.
func (m Mode) Valid() bool {
	_, ok := definitions[m]
	return ok
}

func (m Mode) String() string {
	return string(m)
}

// Description returns a one-line summary of the mode.
func (m Mode) Description() string {
	return definitions[m].description
}
