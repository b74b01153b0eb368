package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// Input carries everything the final analysis call needs.
type Input struct {
	AppName  string
	Category string
	Persona  string // display name, e.g. "QA Engineer"
	Combined string // concatenated stage 1-3 output
}

// Service produces a structured analysis from combined stage output. The call
// is synchronous and may take on the order of a minute.
type Service interface {
	Analyze(ctx context.Context, in Input) (*Result, string, error)
}

const defaultModel = "gemini-2.0-flash"

// Analyzer calls the Gemini API with a forced JSON response schema.
type Analyzer struct {
	client *genai.Client
	model  string
}

// NewAnalyzer creates an Analyzer. The API key is read from apiKeyEnv
// (GEMINI_API_KEY when empty).
func NewAnalyzer(ctx context.Context, model, apiKeyEnv string) (*Analyzer, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "GEMINI_API_KEY"
	}
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s is not set", apiKeyEnv)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init: %w", err)
	}
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Analyzer{client: client, model: model}, nil
}

// Analyze sends the combined stage output to the model and decodes the
// structured report. The raw response text is returned alongside the decoded
// result so callers can persist it verbatim.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, string, error) {
	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: responseSchema,
	}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(buildPrompt(in)), cfg)
	if err != nil {
		return nil, "", fmt.Errorf("analysis call: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, "", &SchemaError{Reason: "empty response"}
	}
	raw := resp.Candidates[0].Content.Parts[0].Text

	res, err := Decode(raw)
	if err != nil {
		return nil, raw, err
	}
	return res, raw, nil
}

func buildPrompt(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are analyzing UX exploration data for %s, a %s app.\n", in.AppName, in.Category)
	fmt.Fprintf(&b, "The exploration was conducted from a %s perspective.\n\n", in.Persona)
	b.WriteString("Below is the combined data from all exploration stages:\n\n")
	b.WriteString(in.Combined)
	b.WriteString("\n\nBased on this data, generate a comprehensive UX analysis report matching the response schema. ")
	b.WriteString("Generate the report based ONLY on the actual data provided above; do not invent observations. ")
	b.WriteString("Scores are on a 0-10 scale, percentages on 0-100.")
	return b.String()
}

// responseSchema constrains the model output to the Result shape. Nested
// metric blocks are declared as required objects so a missing block fails at
// the API rather than silently defaulting.
var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary": map[string]any{"type": "string"},
		"positive": map[string]any{
			"type": "array",
			"items": objectOf(map[string]string{
				"aspect": "string", "description": "string", "location": "string",
			}),
		},
		"issues": map[string]any{
			"type": "array",
			"items": objectOf(map[string]string{
				"category": "string", "description": "string", "severity": "string",
				"location": "string", "impact": "string",
			}),
		},
		"recommendations": map[string]any{
			"type": "array",
			"items": objectOf(map[string]string{
				"recommendation": "string", "priority": "string",
				"rationale": "string", "effort": "string",
			}),
		},
		"app_metadata": objectOf(map[string]string{
			"screens_discovered": "integer", "total_interactions": "integer",
		}),
		"exploration_coverage": objectOf(map[string]string{
			"screens_discovered": "integer", "clickable_elements_found": "integer",
			"successful_actions_pct": "number", "dead_elements_pct": "number",
			"navigation_loops_detected": "boolean",
		}),
		"navigation_metrics": objectOf(map[string]string{
			"avg_depth": "number", "max_depth": "number",
			"backtracking_frequency": "string", "orphan_screens": "integer",
			"hub_screen_count": "integer", "architecture_quality": "string",
		}),
		"interaction_feedback": objectOf(map[string]string{
			"visible_feedback_rate_pct": "number", "loading_state_presence_pct": "number",
			"error_message_clarity": "number", "silent_failures": "integer",
			"feedback_quality": "string",
		}),
		"visual_hierarchy": objectOf(map[string]string{
			"cta_visibility": "number", "tap_target_compliance_pct": "number",
			"icon_label_clarity": "number", "clarity_rating": "string",
		}),
		"consistency": objectOf(map[string]string{
			"inconsistent_labels": "integer", "action_placement_variance": "string",
			"pattern_violations": "integer",
		}),
		"error_handling": objectOf(map[string]string{
			"preventable_errors": "integer", "recovery_paths_available": "boolean",
			"error_explanation_quality": "number", "handling_rating": "string",
		}),
		"ux_confidence_score": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"score": map[string]any{"type": "number"},
				"factors": objectOf(map[string]string{
					"exploration_coverage": "number", "interaction_consistency": "number",
					"feedback_reliability": "number", "recovery_robustness": "number",
				}),
			},
			"required": []string{"score", "factors"},
		},
		"complexity_score":       map[string]any{"type": "number"},
		"dark_patterns_detected": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"actor_analysis": map[string]any{
			"type": "array",
			"items": objectOf(map[string]string{
				"actor_type": "string", "needs_score": "number",
			}),
		},
		"persona_insights": objectOf(map[string]string{
			"persona": "string", "alignment_score": "number",
		}),
	},
	"required": []string{
		"summary", "positive", "issues", "recommendations", "app_metadata",
		"exploration_coverage", "navigation_metrics", "interaction_feedback",
		"visual_hierarchy", "consistency", "error_handling",
		"ux_confidence_score", "complexity_score", "dark_patterns_detected",
		"persona_insights",
	},
}

// objectOf builds a schema object whose listed properties are all required.
func objectOf(props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	required := make([]string, 0, len(props))
	for name, typ := range props {
		properties[name] = map[string]any{"type": typ}
		required = append(required, name)
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
