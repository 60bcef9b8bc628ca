package orchestrator

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/jaegis/internal/agents"
	"github.com/kingrea/jaegis/internal/config"
	"github.com/kingrea/jaegis/internal/diagnostics"
	"github.com/kingrea/jaegis/internal/eventbridge"
	"github.com/kingrea/jaegis/internal/mode"
	"github.com/kingrea/jaegis/internal/progress"
)

// ProjectAnalysis is the upstream description of the project a mode runs
// against. Only RecommendedAgents drives behaviour.
type ProjectAnalysis struct {
	ProjectType       string           `yaml:"project_type" json:"project_type,omitempty"`
	RecommendedAgents []agents.AgentID `yaml:"recommended_agents" json:"recommended_agents"`
	Notes             string           `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// LoadAnalysis reads a ProjectAnalysis from a YAML file.
func LoadAnalysis(path string) (ProjectAnalysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ProjectAnalysis{}, fmt.Errorf("orchestrator: read analysis: %w", err)
	}
	return ParseAnalysis(data)
}

// ParseAnalysis decodes YAML analysis data. Agent IDs are normalized.
func ParseAnalysis(data []byte) (ProjectAnalysis, error) {
	var analysis ProjectAnalysis
	if err := yaml.Unmarshal(data, &analysis); err != nil {
		return ProjectAnalysis{}, fmt.Errorf("orchestrator: parse analysis: %w", err)
	}
	analysis.ProjectType = strings.TrimSpace(analysis.ProjectType)
	analysis.RecommendedAgents = agents.Normalize(analysis.RecommendedAgents)
	return analysis, nil
}

// Preferences is the user-preference collaborator. *config.Config
// satisfies it.
type Preferences interface {
	Bool(key string, def bool) bool
}

// MapPreferences serves preferences from a map; missing keys use the default.
type MapPreferences map[string]bool

// Bool returns the stored value or def.
func (m MapPreferences) Bool(key string, def bool) bool {
	if v, ok := m[key]; ok {
		return v
	}
	return def
}

// UserPreferences is the resolved preference set of one execution.
type UserPreferences struct {
	AutoActivateAgents    bool `json:"auto_activate_agents"`
	EnableMonitoring      bool `json:"enable_monitoring"`
	ProgressNotifications bool `json:"progress_notifications"`
}

func resolvePreferences(p Preferences) UserPreferences {
	if p == nil {
		p = MapPreferences(nil)
	}
	return UserPreferences{
		AutoActivateAgents:    p.Bool(config.PrefAutoActivateAgents, true),
		EnableMonitoring:      p.Bool(config.PrefEnableMonitoring, true),
		ProgressNotifications: p.Bool(config.PrefProgressNotifications, true),
	}
}

// ExecutionContext is built once per execution and never changes after.
type ExecutionContext struct {
	SessionID         string           `json:"session_id"`
	Mode              mode.Mode        `json:"mode"`
	ProjectRoot       string           `json:"project_root"`
	ProjectAnalysis   ProjectAnalysis  `json:"project_analysis"`
	SelectedAgents    []agents.AgentID `json:"selected_agents"`
	UserPreferences   UserPreferences  `json:"user_preferences"`
	ExistingArtifacts []string         `json:"existing_artifacts"`
}

// Session is the result of one ExecuteMode call. Chained executions hang
// off Next.
type Session struct {
	ID           string                    `json:"id"`
	Mode         mode.Mode                 `json:"mode"`
	Context      ExecutionContext          `json:"context"`
	Progress     progress.WorkflowProgress `json:"progress"`
	ActiveAgents []agents.AgentID          `json:"active_agents"`
	Issues       []diagnostics.Issue       `json:"issues"`
	Events       []eventbridge.Event       `json:"events"`
	Results      []PhaseOutcome            `json:"results,omitempty"`
	Choice       string                    `json:"choice,omitempty"`
	Error        string                    `json:"error,omitempty"`
	StartedAt    time.Time                 `json:"started_at"`
	FinishedAt   time.Time                 `json:"finished_at,omitempty"`
	Next         *Session                  `json:"next,omitempty"`
}

// PhaseOutcome records what a worker reported for one phase.
type PhaseOutcome struct {
	Phase     string        `json:"phase"`
	Summary   string        `json:"summary,omitempty"`
	Artifacts []string      `json:"artifacts,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Status is shorthand for the progress status.
func (s *Session) Status() progress.Status {
	if s == nil {
		return ""
	}
	return s.Progress.Status
}

// Last follows the Next chain to the final session.
func (s *Session) Last() *Session {
	if s == nil {
		return nil
	}
	cur := s
	for cur.Next != nil {
		cur = cur.Next
	}
	return cur
}

// Clone copies the session. Next is shared, since chained sessions are
// finished before they are linked.
func (s *Session) Clone() Session {
	if s == nil {
		return Session{}
	}
	out := *s
	out.Context.SelectedAgents = append([]agents.AgentID{}, s.Context.SelectedAgents...)
	out.Context.ExistingArtifacts = append([]string{}, s.Context.ExistingArtifacts...)
	out.Progress = s.Progress.Clone()
	out.ActiveAgents = append([]agents.AgentID{}, s.ActiveAgents...)
	out.Issues = append([]diagnostics.Issue{}, s.Issues...)
	out.Events = append([]eventbridge.Event{}, s.Events...)
	out.Results = append([]PhaseOutcome{}, s.Results...)
	return out
}
