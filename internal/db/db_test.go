package db

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/lucasnoah/droidscope/internal/exploration"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := d.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return d
}

func testExploration(id string) *exploration.Exploration {
	return &exploration.Exploration{
		ID:           id,
		AppName:      "Sample",
		Category:     "Social Media",
		Persona:      exploration.PersonaQAEngineer,
		MaxDepth:     6,
		SaveToMemory: true,
		Status:       exploration.StatusRunning,
		CreatedAt:    "2026-01-02T03:04:05Z",
		UpdatedAt:    "2026-01-02T03:04:05Z",
	}
}

func TestMigrateIdempotent(t *testing.T) {
	d := testDB(t)
	if err := d.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
}

func TestCreateAndGetExploration(t *testing.T) {
	d := testDB(t)

	if err := d.CreateExploration(testExploration("e1")); err != nil {
		t.Fatalf("CreateExploration: %v", err)
	}

	got, err := d.GetExploration("e1")
	if err != nil {
		t.Fatalf("GetExploration: %v", err)
	}
	if got.AppName != "Sample" {
		t.Errorf("AppName = %q", got.AppName)
	}
	if got.Persona != exploration.PersonaQAEngineer {
		t.Errorf("Persona = %q", got.Persona)
	}
	if !got.SaveToMemory {
		t.Error("SaveToMemory should round-trip true")
	}
	if got.Status != exploration.StatusRunning {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestGetExplorationNotFound(t *testing.T) {
	d := testDB(t)

	_, err := d.GetExploration("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateExplorationStatus(t *testing.T) {
	d := testDB(t)
	if err := d.CreateExploration(testExploration("e1")); err != nil {
		t.Fatalf("CreateExploration: %v", err)
	}

	if err := d.UpdateExplorationStatus("e1", exploration.StatusFailed, "stage 2 failed"); err != nil {
		t.Fatalf("UpdateExplorationStatus: %v", err)
	}
	got, err := d.GetExploration("e1")
	if err != nil {
		t.Fatalf("GetExploration: %v", err)
	}
	if got.Status != exploration.StatusFailed {
		t.Errorf("Status = %q", got.Status)
	}
	if got.Error != "stage 2 failed" {
		t.Errorf("Error = %q", got.Error)
	}
	if got.CompletedAt == "" {
		t.Error("terminal status should set completed_at")
	}

	if err := d.UpdateExplorationStatus("missing", exploration.StatusFailed, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("update missing: err = %v, want ErrNotFound", err)
	}
}

func TestStageLifecycle(t *testing.T) {
	d := testDB(t)
	if err := d.CreateExploration(testExploration("e1")); err != nil {
		t.Fatalf("CreateExploration: %v", err)
	}

	if err := d.StartStage("e1", 1, "Basic Exploration"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := d.CompleteStage("e1", 1, "# report"); err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if err := d.StartStage("e1", 2, "Persona Analysis"); err != nil {
		t.Fatalf("StartStage 2: %v", err)
	}
	if err := d.FailStage("e1", 2, "agent failed"); err != nil {
		t.Fatalf("FailStage: %v", err)
	}

	stages, err := d.GetStages("e1")
	if err != nil {
		t.Fatalf("GetStages: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(stages))
	}
	if stages[0].Status != "completed" || stages[0].Content != "# report" {
		t.Errorf("stage 1 = %+v", stages[0])
	}
	if stages[1].Status != "failed" || stages[1].ErrorMessage != "agent failed" {
		t.Errorf("stage 2 = %+v", stages[1])
	}

	// Duplicate stage rows are rejected.
	if err := d.StartStage("e1", 1, "Basic Exploration"); err == nil {
		t.Error("expected error starting a duplicate stage")
	}
	// Completing a never-started stage is an error.
	if err := d.CompleteStage("e1", 4, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("complete unknown stage: err = %v, want ErrNotFound", err)
	}
}

func TestResultRoundTrip(t *testing.T) {
	d := testDB(t)
	if err := d.CreateExploration(testExploration("e1")); err != nil {
		t.Fatalf("CreateExploration: %v", err)
	}

	full := `{"summary":"good","ux_confidence_score":{"score":7.5}}`
	if err := d.SaveResult("e1", "good", 7.5, 4, full); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	got, err := d.GetResult("e1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Summary != "good" || got.UXScore != 7.5 || got.ComplexityScore != 4 {
		t.Errorf("result = %+v", got)
	}
	if got.FullJSON != full {
		t.Errorf("FullJSON = %q", got.FullJSON)
	}

	// Saving again replaces.
	if err := d.SaveResult("e1", "better", 8, 4, full); err != nil {
		t.Fatalf("SaveResult replace: %v", err)
	}
	got, err = d.GetResult("e1")
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Summary != "better" || got.UXScore != 8 {
		t.Errorf("replaced result = %+v", got)
	}
}

func TestGetResultNotFound(t *testing.T) {
	d := testDB(t)
	if _, err := d.GetResult("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := d.LatestResult(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestResult on empty db: err = %v, want ErrNotFound", err)
	}
}

func TestLatestResult(t *testing.T) {
	d := testDB(t)
	for _, id := range []string{"a", "b"} {
		ex := testExploration(id)
		if err := d.CreateExploration(ex); err != nil {
			t.Fatalf("CreateExploration: %v", err)
		}
	}
	if err := d.SaveResult("a", "first", 5, 3, `{}`); err != nil {
		t.Fatalf("SaveResult a: %v", err)
	}
	if err := d.SaveResult("b", "second", 6, 3, `{}`); err != nil {
		t.Fatalf("SaveResult b: %v", err)
	}

	got, err := d.LatestResult()
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if got.ExplorationID != "b" {
		t.Errorf("LatestResult id = %q, want b", got.ExplorationID)
	}
}

func TestListExplorations(t *testing.T) {
	d := testDB(t)

	ex1 := testExploration("e1")
	ex2 := testExploration("e2")
	ex2.Category = "Finance"
	ex2.Persona = exploration.PersonaUXDesigner
	ex2.CreatedAt = "2026-01-03T00:00:00Z"
	for _, ex := range []*exploration.Exploration{ex1, ex2} {
		if err := d.CreateExploration(ex); err != nil {
			t.Fatalf("CreateExploration: %v", err)
		}
	}

	all, err := d.ListExplorations(ListFilter{})
	if err != nil {
		t.Fatalf("ListExplorations: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d explorations, want 2", len(all))
	}
	if all[0].ID != "e2" {
		t.Errorf("newest first: got %q", all[0].ID)
	}

	fin, err := d.ListExplorations(ListFilter{Category: "Finance"})
	if err != nil {
		t.Fatalf("ListExplorations category: %v", err)
	}
	if len(fin) != 1 || fin[0].ID != "e2" {
		t.Errorf("category filter = %+v", fin)
	}

	qa, err := d.ListExplorations(ListFilter{Persona: string(exploration.PersonaQAEngineer)})
	if err != nil {
		t.Fatalf("ListExplorations persona: %v", err)
	}
	if len(qa) != 1 || qa[0].ID != "e1" {
		t.Errorf("persona filter = %+v", qa)
	}

	limited, err := d.ListExplorations(ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListExplorations limit: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit filter returned %d", len(limited))
	}
}

func TestDeleteExplorationCascades(t *testing.T) {
	d := testDB(t)
	if err := d.CreateExploration(testExploration("e1")); err != nil {
		t.Fatalf("CreateExploration: %v", err)
	}
	if err := d.StartStage("e1", 1, "Basic Exploration"); err != nil {
		t.Fatalf("StartStage: %v", err)
	}
	if err := d.SaveResult("e1", "s", 5, 3, `{}`); err != nil {
		t.Fatalf("SaveResult: %v", err)
	}

	if err := d.DeleteExploration("e1"); err != nil {
		t.Fatalf("DeleteExploration: %v", err)
	}
	if _, err := d.GetExploration("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("exploration should be gone, err = %v", err)
	}
	if _, err := d.GetResult("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("result should cascade, err = %v", err)
	}
	stages, err := d.GetStages("e1")
	if err != nil {
		t.Fatalf("GetStages: %v", err)
	}
	if len(stages) != 0 {
		t.Errorf("stages should cascade, got %d", len(stages))
	}

	if err := d.DeleteExploration("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
}
