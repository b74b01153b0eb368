package exploration

// Status values for an exploration run.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusStopped   = "stopped"
)

// Persona identifies the analytical viewpoint applied during stage 2 and the
// final analysis.
type Persona string

const (
	PersonaUXDesigner     Persona = "ux_designer"
	PersonaQAEngineer     Persona = "qa_engineer"
	PersonaProductManager Persona = "product_manager"
)

// Valid reports whether p is a known persona slug.
func (p Persona) Valid() bool {
	switch p {
	case PersonaUXDesigner, PersonaQAEngineer, PersonaProductManager:
		return true
	}
	return false
}

// Display returns the human-readable persona name.
func (p Persona) Display() string {
	switch p {
	case PersonaUXDesigner:
		return "UX Designer"
	case PersonaQAEngineer:
		return "QA Engineer"
	case PersonaProductManager:
		return "Product Manager"
	}
	return string(p)
}

// MaxDepth bounds accepted on a start request.
const (
	MinDepth = 3
	MaxDepth = 12
)

// Exploration is the top-level persisted state for one exploration run.
type Exploration struct {
	ID               string  `json:"id"`
	AppName          string  `json:"app_name"`
	Category         string  `json:"category"`
	Persona          Persona `json:"persona"`
	CustomNavigation string  `json:"custom_navigation,omitempty"`
	MaxDepth         int     `json:"max_depth"`
	SaveToMemory     bool    `json:"save_to_memory"`
	Status           string  `json:"status"`
	CurrentStage     int     `json:"current_stage"`
	Error            string  `json:"error,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	CompletedAt      string  `json:"completed_at,omitempty"`
}

// StageCount is the number of pipeline stages.
const StageCount = 4

// StageName returns the display name for a stage number.
func StageName(stage int) string {
	switch stage {
	case 1:
		return "Basic Exploration"
	case 2:
		return "Persona Analysis"
	case 3:
		return "Stress Testing"
	case 4:
		return "Final Analysis"
	}
	return "Unknown"
}

// StageResult is the raw artifact produced by one pipeline stage.
type StageResult struct {
	Stage      int    `json:"stage"`
	Content    string `json:"content"`
	ProducedAt string `json:"produced_at"`
}

// Stage status values, as streamed to listeners.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// ProgressEvent is one update on the progress channel. Percentage is in
// [-1,100]; 100 and negative values are terminal. Keepalive events carry no
// percentage and must be ignored functionally by consumers.
type ProgressEvent struct {
	Message    string `json:"message,omitempty"`
	Percentage int    `json:"percentage"`
	Timestamp  string `json:"timestamp,omitempty"`
	Keepalive  bool   `json:"keepalive,omitempty"`
}

// Terminal reports whether this event ends the progress stream.
func (e ProgressEvent) Terminal() bool {
	return !e.Keepalive && (e.Percentage >= 100 || e.Percentage < 0)
}

// Log event types.
const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogWarning = "warning"
	LogError   = "error"
	LogAgent   = "agent"
)

// LogEvent is one entry on the log channel.
type LogEvent struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	Keepalive bool   `json:"keepalive,omitempty"`
}

// StageStatusEvent is one update on the stage channel. For a given stage the
// status moves pending -> running -> completed|failed exactly once per run.
type StageStatusEvent struct {
	Stage     int    `json:"stage"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Keepalive bool   `json:"keepalive,omitempty"`
}
