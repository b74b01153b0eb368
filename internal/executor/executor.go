// Package executor drives one exploration through its four stages in strict
// sequence, publishing progress, log, and stage events as it goes and
// persisting artifacts after every stage.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/lucasnoah/droidscope/internal/agent"
	"github.com/lucasnoah/droidscope/internal/analysis"
	"github.com/lucasnoah/droidscope/internal/bus"
	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/exploration"
	"github.com/lucasnoah/droidscope/internal/prompt"
	"github.com/lucasnoah/droidscope/internal/run"
)

// ErrRunActive is returned when a start request arrives while another
// exploration is running.
var ErrRunActive = errors.New("an exploration is already running")

// ErrInvalidInput wraps start-request validation failures.
var ErrInvalidInput = errors.New("invalid input")

// Progress waypoints. Strictly increasing across the pipeline; 100 and -1
// are the only terminal values.
const (
	wpStage1Start = 5
	wpStage1Done  = 25
	wpStage2Start = 30
	wpStage2Done  = 50
	wpStage3Start = 55
	wpStage3Done  = 75
	wpStage4Start = 80
	wpSaving      = 95
	wpDone        = 100
	wpFailed      = -1
)

// Config holds the executor's tunables.
type Config struct {
	TemplateDir string // optional prompt template override directory
	MaxSteps    int    // agent step budget for stages 1-2
	StressSteps int    // reduced budget for the stress stage
}

func (c *Config) defaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 200
	}
	if c.StressSteps <= 0 {
		c.StressSteps = 100
	}
}

// Executor owns the exploration pipeline.
type Executor struct {
	cfg      Config
	store    *exploration.Store
	db       *db.DB
	bus      *bus.Bus
	registry *run.Registry
	agent    agent.Runner
	analyzer analysis.Service
}

// New creates an Executor.
func New(cfg Config, store *exploration.Store, database *db.DB, b *bus.Bus, registry *run.Registry, runner agent.Runner, analyzer analysis.Service) *Executor {
	cfg.defaults()
	return &Executor{
		cfg:      cfg,
		store:    store,
		db:       database,
		bus:      b,
		registry: registry,
		agent:    runner,
		analyzer: analyzer,
	}
}

// StartOpts is a validated-on-entry start request.
type StartOpts struct {
	AppName          string
	Category         string
	Persona          string // persona slug; empty defaults to ux_designer
	CustomNavigation string
	MaxDepth         int // 0 defaults to 6
	SaveToMemory     bool
}

// Start validates opts, claims the single active-run slot, creates the
// exploration, and launches the pipeline on its own goroutine. It returns as
// soon as the run is accepted.
func (e *Executor) Start(opts StartOpts) (*exploration.Exploration, error) {
	if strings.TrimSpace(opts.AppName) == "" {
		return nil, fmt.Errorf("%w: app_name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(opts.Category) == "" {
		return nil, fmt.Errorf("%w: category is required", ErrInvalidInput)
	}
	persona := exploration.Persona(opts.Persona)
	if opts.Persona == "" {
		persona = exploration.PersonaUXDesigner
	}
	if !persona.Valid() {
		return nil, fmt.Errorf("%w: unknown persona %q", ErrInvalidInput, opts.Persona)
	}
	depth := opts.MaxDepth
	if depth == 0 {
		depth = 6
	}
	if depth < exploration.MinDepth || depth > exploration.MaxDepth {
		return nil, fmt.Errorf("%w: max_depth must be between %d and %d", ErrInvalidInput, exploration.MinDepth, exploration.MaxDepth)
	}

	id := uuid.NewString()
	stop, ok := e.registry.TryAcquire(id)
	if !ok {
		return nil, ErrRunActive
	}

	ex, err := e.store.Create(exploration.CreateOpts{
		ID:               id,
		AppName:          opts.AppName,
		Category:         opts.Category,
		Persona:          persona,
		CustomNavigation: opts.CustomNavigation,
		MaxDepth:         depth,
		SaveToMemory:     opts.SaveToMemory,
	})
	if err != nil {
		e.registry.Release()
		return nil, fmt.Errorf("create exploration: %w", err)
	}
	if err := e.db.CreateExploration(ex); err != nil {
		e.registry.Release()
		return nil, fmt.Errorf("record exploration: %w", err)
	}

	go e.run(context.Background(), ex, stop)
	return ex, nil
}

// Stop requests cooperative cancellation of the active run, if any.
func (e *Executor) Stop() bool {
	if !e.registry.RequestStop() {
		return false
	}
	e.bus.PublishLog("Stop requested; finishing the current agent turn before stopping", exploration.LogWarning)
	return true
}

// run executes the whole pipeline. It owns the exploration directory for the
// duration and always releases the registry on exit.
func (e *Executor) run(ctx context.Context, ex *exploration.Exploration, stop *run.Flag) {
	defer e.registry.Release()

	e.bus.PublishLog(fmt.Sprintf("Starting multi-stage exploration for %s...", ex.AppName), exploration.LogInfo)
	e.bus.PublishLog(fmt.Sprintf("Category: %s | Persona: %s", ex.Category, ex.Persona.Display()), exploration.LogInfo)
	for stage := 1; stage <= exploration.StageCount; stage++ {
		e.bus.PublishStage(stage, exploration.StagePending, "")
	}

	for stage := 1; stage <= 3; stage++ {
		if stop.IsSet() {
			e.stopRun(ex)
			return
		}
		if !e.runAgentStage(ctx, ex, stage) {
			return
		}
	}

	if stop.IsSet() {
		e.stopRun(ex)
		return
	}
	if !e.runAnalysisStage(ctx, ex) {
		return
	}

	// Once the analysis result is persisted the run is complete. A stop
	// request that lands during stage 4 arrives too late to take effect.
	e.finish(ex)
}

// runAgentStage executes one of stages 1-3. Returns false if the run is over
// (the stage failed and the terminal events were published).
func (e *Executor) runAgentStage(ctx context.Context, ex *exploration.Exploration, stage int) bool {
	name := exploration.StageName(stage)
	start, done := stageWaypoints(stage)

	if err := e.db.StartStage(ex.ID, stage, stageLabel(ex, stage)); err != nil {
		log.Printf("record stage %d start: %v", stage, err)
	}
	_ = e.db.UpdateExplorationStage(ex.ID, stage)
	_ = e.store.Update(ex.ID, func(x *exploration.Exploration) { x.CurrentStage = stage })

	e.bus.PublishLog(fmt.Sprintf("Starting Stage %d: %s", stage, name), exploration.LogInfo)
	e.bus.PublishStage(stage, exploration.StageRunning, fmt.Sprintf("Starting %s...", strings.ToLower(name)))
	e.bus.PublishProgress(fmt.Sprintf("Stage %d: %s", stage, name), start)

	goal, err := e.stageGoal(ex, stage)
	if err != nil {
		return e.failStage(ex, stage, fmt.Errorf("build stage %d goal: %w", stage, err))
	}

	steps := e.cfg.MaxSteps
	if stage == 3 {
		steps = e.cfg.StressSteps
	}

	runner := e.agent
	if cli, ok := runner.(*agent.CLIRunner); ok {
		runner = cli.WithSessionDir(e.store.SessionDir(ex.ID, stage))
	}

	e.bus.PublishLog(fmt.Sprintf("Agent running for stage %d (budget %d steps)...", stage, steps), exploration.LogAgent)
	report, err := runner.RunTurn(ctx, goal, steps)
	if err != nil {
		return e.failStage(ex, stage, err)
	}
	if strings.TrimSpace(report.Text) == "" {
		return e.failStage(ex, stage, agent.ErrEmptyReport)
	}

	if _, err := e.store.SaveStageResult(ex.ID, stage, report.Text); err != nil {
		return e.failStage(ex, stage, err)
	}
	if err := e.db.CompleteStage(ex.ID, stage, report.Text); err != nil {
		log.Printf("record stage %d completion: %v", stage, err)
	}

	e.bus.PublishStage(stage, exploration.StageCompleted, fmt.Sprintf("%s complete", name))
	e.bus.PublishLog(fmt.Sprintf("Stage %d completed successfully", stage), exploration.LogSuccess)
	e.bus.PublishProgress(fmt.Sprintf("Stage %d completed", stage), done)
	return true
}

// runAnalysisStage executes stage 4: the structured analysis call.
func (e *Executor) runAnalysisStage(ctx context.Context, ex *exploration.Exploration) bool {
	const stage = 4
	name := exploration.StageName(stage)

	if err := e.db.StartStage(ex.ID, stage, name); err != nil {
		log.Printf("record stage %d start: %v", stage, err)
	}
	_ = e.db.UpdateExplorationStage(ex.ID, stage)
	_ = e.store.Update(ex.ID, func(x *exploration.Exploration) { x.CurrentStage = stage })

	e.bus.PublishLog("Starting Stage 4: Final Analysis", exploration.LogInfo)
	e.bus.PublishStage(stage, exploration.StageRunning, "Generating final analysis...")
	e.bus.PublishProgress("Stage 4: Final Analysis", wpStage4Start)

	results, err := e.store.StageResults(ex.ID)
	if err != nil || len(results) == 0 {
		return e.failStage(ex, stage, fmt.Errorf("no stage output available for analysis"))
	}
	var combined strings.Builder
	for _, res := range results {
		fmt.Fprintf(&combined, "\n\n=== STAGE %d: %s ===\n\n", res.Stage, exploration.StageName(res.Stage))
		combined.WriteString(res.Content)
	}

	e.bus.PublishLog("Sending combined stage data for final analysis...", exploration.LogInfo)
	result, raw, err := e.analyzer.Analyze(ctx, analysis.Input{
		AppName:  ex.AppName,
		Category: ex.Category,
		Persona:  ex.Persona.Display(),
		Combined: combined.String(),
	})
	if err != nil {
		return e.failStage(ex, stage, err)
	}

	if err := e.store.SaveAnalysis(ex.ID, []byte(raw)); err != nil {
		return e.failStage(ex, stage, fmt.Errorf("save analysis artifact: %w", err))
	}
	if err := e.db.CompleteStage(ex.ID, stage, raw); err != nil {
		log.Printf("record stage %d completion: %v", stage, err)
	}

	e.bus.PublishStage(stage, exploration.StageCompleted, "Final analysis complete")
	e.bus.PublishLog("Stage 4 completed successfully", exploration.LogSuccess)

	// Persist the result row. A write failure here is reported but not
	// terminal: the analysis artifact is already on disk.
	e.bus.PublishProgress("Saving results to database...", wpSaving)
	if err := e.db.SaveResult(ex.ID, result.Summary, result.UXConfidenceScore.Score, result.ComplexityScore, raw); err != nil {
		e.bus.PublishLog(fmt.Sprintf("Result saved to disk but the database write failed; it may not survive a restart: %v", err), exploration.LogWarning)
		log.Printf("save result for %s: %v", ex.ID, err)
	}
	return true
}

// finish moves the run to Completed and publishes the terminal progress.
func (e *Executor) finish(ex *exploration.Exploration) {
	if err := e.db.UpdateExplorationStatus(ex.ID, exploration.StatusCompleted, ""); err != nil {
		log.Printf("mark %s completed: %v", ex.ID, err)
	}
	_ = e.store.Update(ex.ID, func(x *exploration.Exploration) { x.Status = exploration.StatusCompleted })

	e.bus.PublishLog("All stages completed successfully!", exploration.LogSuccess)
	e.bus.PublishProgress("Exploration completed successfully!", wpDone)
}

// failStage publishes the stage failure, moves the run to Failed, and emits
// the terminal progress event. Always returns false so callers can tail-call
// it.
func (e *Executor) failStage(ex *exploration.Exploration, stage int, cause error) bool {
	msg := cause.Error()
	if err := e.db.FailStage(ex.ID, stage, msg); err != nil {
		log.Printf("record stage %d failure: %v", stage, err)
	}
	e.bus.PublishStage(stage, exploration.StageFailed, msg)

	if err := e.db.UpdateExplorationStatus(ex.ID, exploration.StatusFailed, msg); err != nil {
		log.Printf("mark %s failed: %v", ex.ID, err)
	}
	_ = e.store.Update(ex.ID, func(x *exploration.Exploration) {
		x.Status = exploration.StatusFailed
		x.Error = msg
	})

	e.bus.PublishLog(fmt.Sprintf("Exploration failed: %s", msg), exploration.LogError)
	e.bus.PublishProgress(fmt.Sprintf("Failed: %s", msg), wpFailed)
	return false
}

// stopRun moves the run to Stopped. Partial stage artifacts stay on disk; no
// analysis result exists for the run.
func (e *Executor) stopRun(ex *exploration.Exploration) {
	if err := e.db.UpdateExplorationStatus(ex.ID, exploration.StatusStopped, ""); err != nil {
		log.Printf("mark %s stopped: %v", ex.ID, err)
	}
	_ = e.store.Update(ex.ID, func(x *exploration.Exploration) { x.Status = exploration.StatusStopped })

	e.bus.PublishLog("Exploration stopped by user", exploration.LogWarning)
	e.bus.PublishProgress("Exploration stopped by user", wpFailed)
}

// stageGoal builds the agent goal text for stages 1-3 from the templates,
// the exploration parameters, and earlier stage output.
func (e *Executor) stageGoal(ex *exploration.Exploration, stage int) (string, error) {
	switch stage {
	case 1:
		return prompt.LoadAndRender(prompt.TemplateStage1, e.cfg.TemplateDir, prompt.Vars{
			"app_name": ex.AppName,
			"category": ex.Category,
		})
	case 2:
		personaText, err := prompt.LoadAndRender(prompt.PersonaTemplate(string(ex.Persona)), e.cfg.TemplateDir, prompt.Vars{
			"app_name": ex.AppName,
			"category": ex.Category,
		})
		if err != nil {
			return "", err
		}
		stage1, err := e.store.StageResult(ex.ID, 1)
		if err != nil {
			return "", err
		}
		goal, err := prompt.LoadAndRender(prompt.TemplateStage2, e.cfg.TemplateDir, prompt.Vars{
			"app_name":                       ex.AppName,
			"category":                       ex.Category,
			"persona":                        ex.Persona.Display(),
			"max_depth":                      fmt.Sprintf("%d", ex.MaxDepth),
			"stage1_summary":                 digest(stage1.Content),
			"custom_navigation_instruction": navigationInstruction(ex, "Explore naturally as the persona would."),
		})
		if err != nil {
			return "", err
		}
		return personaText + "\n\n" + goal, nil
	case 3:
		var prior strings.Builder
		for _, n := range []int{1, 2} {
			res, err := e.store.StageResult(ex.ID, n)
			if err != nil {
				return "", err
			}
			prior.WriteString(digest(res.Content))
			prior.WriteString("\n\n")
		}
		return prompt.LoadAndRender(prompt.TemplateStage3, e.cfg.TemplateDir, prompt.Vars{
			"app_name":                      ex.AppName,
			"category":                      ex.Category,
			"prior_summary":                 strings.TrimSpace(prior.String()),
			"custom_navigation_instruction": navigationInstruction(ex, "No custom navigation provided. Simulate imperfect user behavior with random navigation and mistaps."),
		})
	}
	return "", fmt.Errorf("stage %d has no agent goal", stage)
}

// navigationInstruction returns the custom navigation directive, or the
// stage's default behavior when none was given.
func navigationInstruction(ex *exploration.Exploration, fallback string) string {
	if strings.TrimSpace(ex.CustomNavigation) != "" {
		return "Follow these custom navigation instructions: " + ex.CustomNavigation
	}
	return fallback
}

// digest truncates stage output for inclusion in a later stage's goal so the
// goal stays within a sane prompt size.
func digest(content string) string {
	const limit = 4000
	content = strings.TrimSpace(content)
	if len(content) <= limit {
		return content
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "\n[truncated]"
}

func stageWaypoints(stage int) (start, done int) {
	switch stage {
	case 1:
		return wpStage1Start, wpStage1Done
	case 2:
		return wpStage2Start, wpStage2Done
	case 3:
		return wpStage3Start, wpStage3Done
	}
	return wpStage4Start, wpSaving
}

// stageLabel is the stage name recorded in the database; stage 2 carries the
// persona, matching how results are read back for display.
func stageLabel(ex *exploration.Exploration, stage int) string {
	name := exploration.StageName(stage)
	if stage == 2 {
		return fmt.Sprintf("%s (%s)", name, ex.Persona.Display())
	}
	return name
}
