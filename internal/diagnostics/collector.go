// Package diagnostics turns raw editor diagnostics into the flat Issue list
// debug mode reports.
package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// RawSeverity is the editor-side severity of a diagnostic.
type RawSeverity string

const (
	RawError       RawSeverity = "Error"
	RawWarning     RawSeverity = "Warning"
	RawInformation RawSeverity = "Information"
	RawHint        RawSeverity = "Hint"
)

// UnmarshalJSON accepts either the severity name or the editor's numeric
// enum (0 = Error, 1 = Warning, 2 = Information, 3 = Hint).
func (s *RawSeverity) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*s = RawSeverity(name)
		return nil
	}
	var code int
	if err := json.Unmarshal(data, &code); err != nil {
		return fmt.Errorf("diagnostics: severity must be a string or number: %s", data)
	}
	switch code {
	case 0:
		*s = RawError
	case 1:
		*s = RawWarning
	case 2:
		*s = RawInformation
	case 3:
		*s = RawHint
	default:
		*s = RawSeverity(fmt.Sprintf("%d", code))
	}
	return nil
}

// Position is a zero-based location.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character,omitempty"`
}

// Range spans a diagnostic.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end,omitempty"`
}

// Diagnostic is one raw record from the diagnostics collaborator.
type Diagnostic struct {
	Severity RawSeverity `json:"severity"`
	Message  string      `json:"message"`
	Range    Range       `json:"range"`
	Source   string      `json:"source,omitempty"`
}

// Snapshot maps a file reference (path or file:// URI) to its diagnostics.
type Snapshot map[string][]Diagnostic

// Severity of a classified Issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// CategoryQuality is the only category produced today.
const CategoryQuality = "quality"

// Issue is a classified diagnostic.
type Issue struct {
	Severity   Severity `json:"severity"`
	Category   string   `json:"category"`
	Message    string   `json:"message"`
	File       string   `json:"file"`
	Line       int      `json:"line"`
	CanAutoFix bool     `json:"can_auto_fix"`
}

// Source is the diagnostics collaborator.
type Source interface {
	Diagnostics(ctx context.Context) (Snapshot, error)
}

// SourceFunc adapts a function into a Source.
type SourceFunc func(context.Context) (Snapshot, error)

// Diagnostics executes f(ctx).
func (f SourceFunc) Diagnostics(ctx context.Context) (Snapshot, error) {
	return f(ctx)
}

// Logger matches logging.Logger's Printf.
type Logger interface {
	Printf(format string, args ...any)
}

// Option customizes a Collector.
type Option func(*Collector)

// WithIncludeWarnings keeps warning and info diagnostics instead of dropping
// them. Off by default: only error-level diagnostics become issues.
func WithIncludeWarnings(include bool) Option {
	return func(c *Collector) {
		c.includeWarnings = include
	}
}

// WithLogger records unavailable sources.
func WithLogger(l Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// Collector classifies diagnostics from a Source.
type Collector struct {
	source          Source
	includeWarnings bool
	logger          Logger
}

// NewCollector builds a collector over source (which may be nil).
func NewCollector(source Source, opts ...Option) *Collector {
	c := &Collector{source: source, logger: nopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Collect returns the issues in the current snapshot, ordered by file and
// then by source order. It never fails: an unavailable source yields an
// empty list.
func (c *Collector) Collect(ctx context.Context) []Issue {
	issues := []Issue{}
	if c == nil || c.source == nil {
		return issues
	}
	snapshot, err := c.source.Diagnostics(ctx)
	if err != nil {
		c.logger.Printf("diagnostics: source unavailable: %v", err)
		return issues
	}
	return Classify(snapshot, c.includeWarnings)
}

// Classify converts a snapshot into issues.
func Classify(snapshot Snapshot, includeWarnings bool) []Issue {
	issues := []Issue{}
	refs := make([]string, 0, len(snapshot))
	for ref := range snapshot {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		file := filePath(ref)
		for _, d := range snapshot[ref] {
			severity, ok := classify(d.Severity, includeWarnings)
			if !ok {
				continue
			}
			issues = append(issues, Issue{
				Severity:   severity,
				Category:   CategoryQuality,
				Message:    d.Message,
				File:       file,
				Line:       d.Range.Start.Line,
				CanAutoFix: false,
			})
		}
	}
	return issues
}

func classify(raw RawSeverity, includeWarnings bool) (Severity, bool) {
	switch raw {
	case RawError:
		return SeverityCritical, true
	case RawWarning:
		return SeverityWarning, includeWarnings
	case RawInformation, RawHint:
		return SeverityInfo, includeWarnings
	default:
		return "", false
	}
}

// filePath turns file:// URIs into plain paths and leaves anything else as is.
func filePath(ref string) string {
	if !strings.HasPrefix(ref, "file://") {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.Path == "" {
		return ref
	}
	return u.Path
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}
