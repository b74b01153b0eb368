package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Result is the final structured analysis merging all four stages. Created
// once at the end of stage 4 and immutable afterwards. Blocks that the
// analysis call must supply are pointers so a missing block is detectable as
// a schema failure instead of decaying to a zero value.
type Result struct {
	Summary              string               `json:"summary"`
	Positive             []PositiveFinding    `json:"positive"`
	Issues               []Issue              `json:"issues"`
	Recommendations      []Recommendation     `json:"recommendations"`
	AppMetadata          *AppMetadata         `json:"app_metadata"`
	ExplorationCoverage  *ExplorationCoverage `json:"exploration_coverage"`
	NavigationMetrics    *NavigationMetrics   `json:"navigation_metrics"`
	InteractionFeedback  *InteractionFeedback `json:"interaction_feedback"`
	VisualHierarchy      *VisualHierarchy     `json:"visual_hierarchy"`
	Consistency          *Consistency         `json:"consistency"`
	ErrorHandling        *ErrorHandling       `json:"error_handling"`
	UXConfidenceScore    *UXConfidenceScore   `json:"ux_confidence_score"`
	ComplexityScore      float64              `json:"complexity_score"`
	DarkPatternsDetected []string             `json:"dark_patterns_detected"`
	ActorAnalysis        []ActorInsight       `json:"actor_analysis"`
	PersonaInsights      *PersonaInsights     `json:"persona_insights"`
}

// PositiveFinding is one thing the app does well.
type PositiveFinding struct {
	Aspect      string `json:"aspect"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

// Issue is one UX problem found during exploration.
type Issue struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Severity    string `json:"severity"` // High | Medium | Low
	Location    string `json:"location"`
	Impact      string `json:"impact"`
}

// Recommendation is one suggested improvement.
type Recommendation struct {
	Recommendation string `json:"recommendation"`
	Priority       string `json:"priority"` // High | Medium | Low
	Rationale      string `json:"rationale"`
	Effort         string `json:"effort"` // High | Medium | Low
}

// AppMetadata summarizes the explored surface.
type AppMetadata struct {
	ScreensDiscovered int      `json:"screens_discovered"`
	TotalInteractions int      `json:"total_interactions"`
	CoreFlows         []string `json:"core_flows"`
}

// ExplorationCoverage quantifies how much of the app the agent reached.
type ExplorationCoverage struct {
	ScreensDiscovered        int     `json:"screens_discovered"`
	ClickableElementsFound   int     `json:"clickable_elements_found"`
	SuccessfulActionsPct     float64 `json:"successful_actions_pct"`
	DeadElementsPct          float64 `json:"dead_elements_pct"`
	NavigationLoopsDetected  bool    `json:"navigation_loops_detected"`
}

// NavigationMetrics describes the app's navigation structure.
type NavigationMetrics struct {
	AvgDepth              float64 `json:"avg_depth"`
	MaxDepth              float64 `json:"max_depth"`
	BacktrackingFrequency string  `json:"backtracking_frequency"` // low | medium | high
	OrphanScreens         int     `json:"orphan_screens"`
	HubScreenCount        int     `json:"hub_screen_count"`
	ArchitectureQuality   string  `json:"architecture_quality"` // poor | moderate | good | excellent
}

// InteractionFeedback rates how the app responds to user actions.
type InteractionFeedback struct {
	VisibleFeedbackRatePct  float64 `json:"visible_feedback_rate_pct"`
	LoadingStatePresencePct float64 `json:"loading_state_presence_pct"`
	ErrorMessageClarity     float64 `json:"error_message_clarity"`
	SilentFailures          int     `json:"silent_failures"`
	FeedbackQuality         string  `json:"feedback_quality"`
}

// VisualHierarchy rates layout clarity.
type VisualHierarchy struct {
	CTAVisibility          float64 `json:"cta_visibility"`
	TapTargetCompliancePct float64 `json:"tap_target_compliance_pct"`
	IconLabelClarity       float64 `json:"icon_label_clarity"`
	ClarityRating          string  `json:"clarity_rating"`
}

// Consistency rates pattern reuse across screens.
type Consistency struct {
	ReusedPatterns          []string `json:"reused_patterns"`
	InconsistentLabels      int      `json:"inconsistent_labels"`
	ActionPlacementVariance string   `json:"action_placement_variance"`
	PatternViolations       int      `json:"pattern_violations"`
}

// ErrorHandling rates failure and recovery behavior.
type ErrorHandling struct {
	PreventableErrors       int     `json:"preventable_errors"`
	RecoveryPathsAvailable  bool    `json:"recovery_paths_available"`
	ErrorExplanationQuality float64 `json:"error_explanation_quality"`
	HandlingRating          string  `json:"handling_rating"`
}

// UXConfidenceScore is the headline score with its contributing factors.
type UXConfidenceScore struct {
	Score   float64          `json:"score"`
	Factors ConfidenceFactor `json:"factors"`
}

// ConfidenceFactor breaks the confidence score down.
type ConfidenceFactor struct {
	ExplorationCoverage    float64 `json:"exploration_coverage"`
	InteractionConsistency float64 `json:"interaction_consistency"`
	FeedbackReliability    float64 `json:"feedback_reliability"`
	RecoveryRobustness     float64 `json:"recovery_robustness"`
}

// ActorInsight describes the app fit for one user archetype.
type ActorInsight struct {
	ActorType        string   `json:"actor_type"`
	NeedsScore       float64  `json:"needs_score"`
	PainPoints       []string `json:"pain_points"`
	RelevantFeatures []string `json:"relevant_features"`
}

// PersonaInsights carries the selected persona's view of the app.
type PersonaInsights struct {
	Persona         string   `json:"persona"`
	KeyObservations []string `json:"key_observations"`
	AlignmentScore  float64  `json:"alignment_score"`
}

// SchemaError reports that the analysis call's output did not match the
// expected structure. Missing blocks are a hard failure, not a default.
type SchemaError struct {
	Reason string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis schema: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("analysis schema: %s", e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Decode parses raw model output into a Result, tolerating a markdown code
// fence around the JSON but nothing else. Any missing required block is a
// SchemaError.
func Decode(raw string) (*Result, error) {
	text := stripFence(strings.TrimSpace(raw))
	if text == "" {
		return nil, &SchemaError{Reason: "empty response"}
	}

	var res Result
	dec := json.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&res); err != nil {
		return nil, &SchemaError{Reason: "invalid JSON", Err: err}
	}
	if dec.More() {
		return nil, &SchemaError{Reason: "trailing data after JSON document"}
	}

	if err := res.validate(); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *Result) validate() error {
	missing := func(field string) error {
		return &SchemaError{Reason: fmt.Sprintf("missing required field %q", field)}
	}
	switch {
	case strings.TrimSpace(r.Summary) == "":
		return missing("summary")
	case r.AppMetadata == nil:
		return missing("app_metadata")
	case r.ExplorationCoverage == nil:
		return missing("exploration_coverage")
	case r.NavigationMetrics == nil:
		return missing("navigation_metrics")
	case r.InteractionFeedback == nil:
		return missing("interaction_feedback")
	case r.VisualHierarchy == nil:
		return missing("visual_hierarchy")
	case r.Consistency == nil:
		return missing("consistency")
	case r.ErrorHandling == nil:
		return missing("error_handling")
	case r.UXConfidenceScore == nil:
		return missing("ux_confidence_score")
	case r.PersonaInsights == nil:
		return missing("persona_insights")
	}
	return nil
}

// stripFence removes a ```json ... ``` (or bare ```) wrapper if present.
func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
