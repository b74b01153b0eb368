package exploration

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrNotFound is returned when an exploration directory does not exist.
var ErrNotFound = errors.New("exploration not found")

// Store manages per-exploration artifacts on disk. Each exploration owns one
// directory under baseDir containing exploration.json, the raw stage artifacts,
// and the final analysis.json. While a run is active, only its executor writes
// to that directory.
type Store struct {
	baseDir string // defaults to ~/.droidscope/explorations
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// DefaultStore returns a Store at ~/.droidscope/explorations, creating the
// directory if needed.
func DefaultStore() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".droidscope", "explorations")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return &Store{baseDir: dir}, nil
}

// BaseDir returns the store's root directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Dir returns the directory path for a given exploration.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.baseDir, id)
}

func (s *Store) statePath(id string) string {
	return filepath.Join(s.Dir(id), "exploration.json")
}

func (s *Store) stagePath(id string, stage int) string {
	return filepath.Join(s.Dir(id), fmt.Sprintf("stage-%d.md", stage))
}

// AnalysisPath returns the path of the final analysis document for an
// exploration.
func (s *Store) AnalysisPath(id string) string {
	return filepath.Join(s.Dir(id), "analysis.json")
}

// SessionDir returns the directory the automation agent may use for raw
// session byproducts (screenshots, action logs) during a stage.
func (s *Store) SessionDir(id string, stage int) string {
	return filepath.Join(s.Dir(id), "sessions", fmt.Sprintf("stage-%d", stage))
}

// CreateOpts holds the validated start-request fields for a new exploration.
type CreateOpts struct {
	ID               string
	AppName          string
	Category         string
	Persona          Persona
	CustomNavigation string
	MaxDepth         int
	SaveToMemory     bool
}

// Create initialises a new exploration on disk.
func (s *Store) Create(opts CreateOpts) (*Exploration, error) {
	dir := s.Dir(opts.ID)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("exploration %s already exists", opts.ID)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	ex := &Exploration{
		ID:               opts.ID,
		AppName:          opts.AppName,
		Category:         opts.Category,
		Persona:          opts.Persona,
		CustomNavigation: opts.CustomNavigation,
		MaxDepth:         opts.MaxDepth,
		SaveToMemory:     opts.SaveToMemory,
		Status:           StatusRunning,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := writeJSON(s.statePath(opts.ID), ex); err != nil {
		return nil, fmt.Errorf("write exploration.json: %w", err)
	}
	return ex, nil
}

// Get reads the persisted state for an exploration.
func (s *Store) Get(id string) (*Exploration, error) {
	var ex Exploration
	if err := readJSON(s.statePath(id), &ex); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("exploration %s not found", id)
		}
		return nil, err
	}
	return &ex, nil
}

// Update performs an atomic read-modify-write of the exploration state.
func (s *Store) Update(id string, fn func(*Exploration)) error {
	ex, err := s.Get(id)
	if err != nil {
		return err
	}
	fn(ex)
	ex.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	return writeJSON(s.statePath(id), ex)
}

// SaveStageResult writes the raw artifact for a completed stage. Stage n's
// artifact must exist before stage n+1 reads it via StageResult.
func (s *Store) SaveStageResult(id string, stage int, content string) (*StageResult, error) {
	if stage < 1 || stage > StageCount {
		return nil, fmt.Errorf("invalid stage %d", stage)
	}
	if err := writeAtomic(s.stagePath(id, stage), []byte(content)); err != nil {
		return nil, fmt.Errorf("write stage %d artifact: %w", stage, err)
	}
	return &StageResult{
		Stage:      stage,
		Content:    content,
		ProducedAt: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// StageResult reads the raw artifact for a stage. Returns an error if the
// stage has not produced output yet.
func (s *Store) StageResult(id string, stage int) (*StageResult, error) {
	path := s.stagePath(id, stage)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("stage %d result for %s not found", stage, id)
		}
		return nil, fmt.Errorf("read stage %d artifact: %w", stage, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &StageResult{
		Stage:      stage,
		Content:    string(data),
		ProducedAt: info.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

// StageResults returns every stage artifact present for an exploration,
// ordered by stage number.
func (s *Store) StageResults(id string) ([]StageResult, error) {
	var results []StageResult
	for stage := 1; stage <= StageCount; stage++ {
		res, err := s.StageResult(id, stage)
		if err != nil {
			continue // missing stages are skipped, not errors
		}
		results = append(results, *res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Stage < results[j].Stage })
	return results, nil
}

// SaveAnalysis writes the final analysis document for an exploration.
func (s *Store) SaveAnalysis(id string, data []byte) error {
	return writeAtomic(s.AnalysisPath(id), data)
}

// List returns all explorations, optionally filtered by status.
// Pass "" for statusFilter to return all.
func (s *Store) List(statusFilter string) ([]Exploration, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir %s: %w", s.baseDir, err)
	}

	var explorations []Exploration
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ex, err := s.Get(entry.Name())
		if err != nil {
			continue // skip broken entries
		}
		if statusFilter == "" || ex.Status == statusFilter {
			explorations = append(explorations, *ex)
		}
	}

	sort.Slice(explorations, func(i, j int) bool {
		return explorations[i].CreatedAt > explorations[j].CreatedAt
	})
	return explorations, nil
}

// Delete removes all data for an exploration.
func (s *Store) Delete(id string) error {
	dir := s.Dir(id)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("exploration %s: %w", id, ErrNotFound)
	}
	return os.RemoveAll(dir)
}
