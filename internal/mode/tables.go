package mode

// Phase is a named step in a mode's sequence together with the progress
// value reported when the step starts.
type Phase struct {
	Name     string
	Progress int
	// Gate, when set, is presented before the phase runs. Choosing anything
	// other than Gate.Accept stops the sequence.
	Gate *Prompt
}

// Prompt is a user choice offered at a branch point.
type Prompt struct {
	Message string
	Options []string
	// Accept is the option that lets a gated phase proceed.
	Accept string
	// Chain maps an option to the mode that runs next.
	Chain map[string]Mode
	// Action maps an option to a host-side action name that is published
	// as an event instead of chaining a mode.
	Action map[string]string
}

// NextMode returns the mode chained from the given option, if any.
func (p *Prompt) NextMode(option string) (Mode, bool) {
	if p == nil || p.Chain == nil {
		return "", false
	}
	next, ok := p.Chain[option]
	return next, ok
}

// ActionFor returns the host action bound to the given option, if any.
func (p *Prompt) ActionFor(option string) (string, bool) {
	if p == nil || p.Action == nil {
		return "", false
	}
	action, ok := p.Action[option]
	return action, ok
}

// Host actions published when a completion prompt option asks for them.
const (
	ActionOpenDocuments = "documentsRequested"
)

type definition struct {
	description string
	phases      []Phase
	tasks       []string
	completion  *Prompt
}

var developmentGate = &Prompt{
	Message: "Development plan ready. Continue with recommended agents?",
	Options: []string{"Continue", "Cancel"},
	Accept:  "Continue",
}

var definitions = map[Mode]definition{
	Documentation: {
		description: "Generate PRD, architecture and checklist documents for the project",
		phases: []Phase{
			{Name: "Project Analysis", Progress: 10},
			{Name: "PRD Development", Progress: 30},
			{Name: "Architecture Design", Progress: 60},
			{Name: "Checklist Creation", Progress: 90},
			{Name: "Documentation Complete", Progress: 100},
		},
		tasks: []string{
			"Project Analysis",
			"PRD Development",
			"Architecture Design",
			"Checklist Creation",
			"Documentation Complete",
		},
		completion: &Prompt{
			Message: "Documentation complete. What would you like to do next?",
			Options: []string{"Open Documents", "Start Full Development", "Done"},
			Chain:   map[string]Mode{"Start Full Development": FullDevelopment},
			Action:  map[string]string{"Open Documents": ActionOpenDocuments},
		},
	},
	FullDevelopment: {
		description: "Plan development and hand off to the recommended agents",
		phases: []Phase{
			{Name: "Development Planning", Progress: 10},
			{Name: "Development in Progress", Progress: 50, Gate: developmentGate},
		},
		tasks: []string{
			"Development Planning",
			"Development in Progress",
			"Quality Validation",
		},
	},
	ContinueProject: {
		description: "Analyze an existing project and find where to pick up",
		phases: []Phase{
			{Name: "Analyzing Existing Project", Progress: 20},
			{Name: "Identifying Continuation Points", Progress: 60},
			{Name: "Project Analysis Complete", Progress: 100},
		},
		tasks: []string{
			"Analyzing Existing Project",
			"Identifying Continuation Points",
			"Project Analysis Complete",
		},
		completion: &Prompt{
			Message: "Continuation points identified. Continue development with recommended agents?",
			Options: []string{"Continue Development", "Not Now"},
			Chain:   map[string]Mode{"Continue Development": FullDevelopment},
		},
	},
	TaskOverview: {
		description: "Summarize the task structure as a dashboard",
		phases: []Phase{
			{Name: "Analyzing Task Structure", Progress: 30},
			{Name: "Generating Dashboard", Progress: 70},
			{Name: "Task Overview Complete", Progress: 100},
		},
		tasks: []string{
			"Analyzing Task Structure",
			"Generating Dashboard",
			"Task Overview Complete",
		},
	},
	DebugMode: {
		description: "Collect editor diagnostics and classify them into issues",
		phases: []Phase{
			{Name: "Running Diagnostics", Progress: 25},
			{Name: "Analyzing Issues", Progress: 60},
			{Name: "Debug Analysis Complete", Progress: 100},
		},
		tasks: []string{
			"Running Diagnostics",
			"Analyzing Issues",
			"Debug Analysis Complete",
		},
	},
	ContinuousExecution: {
		description: "Run analysis, planning, implementation and validation back to back",
		phases: []Phase{
			{Name: "Autonomous Execution Started", Progress: 10},
			{Name: "Autonomous Analysis", Progress: 25},
			{Name: "Autonomous Planning", Progress: 45},
			{Name: "Autonomous Implementation", Progress: 65},
			{Name: "Autonomous Validation", Progress: 85},
			{Name: "Autonomous Execution Complete", Progress: 100},
		},
		tasks: []string{
			"Autonomous Analysis",
			"Autonomous Planning",
			"Autonomous Implementation",
			"Autonomous Validation",
			"Autonomous Execution Complete",
		},
	},
	FeatureGapAnalysis: {
		description: "Compare current features against industry standards",
		phases: []Phase{
			{Name: "Analyzing Current Features", Progress: 20},
			{Name: "Comparing with Industry Standards", Progress: 50},
			{Name: "Generating Recommendations", Progress: 80},
			{Name: "Feature Gap Analysis Complete", Progress: 100},
		},
		tasks: []string{
			"Analyzing Current Features",
			"Comparing with Industry Standards",
			"Generating Recommendations",
			"Feature Gap Analysis Complete",
		},
		completion: &Prompt{
			Message: "Recommendations ready. Start full development to close the gaps?",
			Options: []string{"Start Full Development", "Not Now"},
			Chain:   map[string]Mode{"Start Full Development": FullDevelopment},
		},
	},
	GitHubIntegration: {
		description: "Prepare repository structure, README and documentation for GitHub",
		phases: []Phase{
			{Name: "Analyzing Repository Structure", Progress: 20},
			{Name: "Generating README", Progress: 50},
			{Name: "Creating Documentation", Progress: 80},
			{Name: "GitHub Integration Complete", Progress: 100},
		},
		tasks: []string{
			"Analyzing Repository Structure",
			"Generating README",
			"Creating Documentation",
			"GitHub Integration Complete",
		},
	},
}

// Phases returns a copy of the mode's phase sequence. Unknown modes yield nil.
func Phases(m Mode) []Phase {
	def, ok := definitions[m]
	if !ok {
		return nil
	}
	out := make([]Phase, len(def.phases))
	copy(out, def.phases)
	return out
}

// Tasks returns a copy of the mode's static task list.
func Tasks(m Mode) []string {
	def, ok := definitions[m]
	if !ok {
		return nil
	}
	out := make([]string, len(def.tasks))
	copy(out, def.tasks)
	return out
}

// Terminal returns the last phase of the mode's sequence.
func Terminal(m Mode) (Phase, bool) {
	def, ok := definitions[m]
	if !ok || len(def.phases) == 0 {
		return Phase{}, false
	}
	return def.phases[len(def.phases)-1], true
}

// CompletionPrompt returns the choice offered after the terminal phase, or
// nil when the mode ends without one.
func CompletionPrompt(m Mode) *Prompt {
	return definitions[m].completion
}
