package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lucasnoah/droidscope/internal/exploration"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// StageRow represents a row in the exploration_stages table.
type StageRow struct {
	ID            int
	ExplorationID string
	StageNumber   int
	StageName     string
	Status        string
	Content       string
	ErrorMessage  string
	StartedAt     string
	CompletedAt   string
}

// ResultRow represents a row in the exploration_results table.
type ResultRow struct {
	ID              int
	ExplorationID   string
	Summary         string
	UXScore         float64
	ComplexityScore float64
	FullJSON        string
	CreatedAt       string
}

// CreateExploration inserts a new exploration record.
func (d *DB) CreateExploration(ex *exploration.Exploration) error {
	_, err := d.conn.Exec(
		`INSERT INTO explorations (id, app_name, category, persona, custom_navigation, max_depth, save_to_memory, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.AppName, ex.Category, string(ex.Persona), ex.CustomNavigation,
		ex.MaxDepth, ex.SaveToMemory, ex.Status, ex.CreatedAt, ex.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create exploration: %w", err)
	}
	return nil
}

// UpdateExplorationStatus moves an exploration to a new status. Terminal
// statuses also set completed_at.
func (d *DB) UpdateExplorationStatus(id, status, errMsg string) error {
	var res sql.Result
	var err error
	switch status {
	case exploration.StatusCompleted, exploration.StatusFailed, exploration.StatusStopped:
		res, err = d.conn.Exec(
			`UPDATE explorations SET status = ?, error = ?, updated_at = datetime('now'), completed_at = datetime('now') WHERE id = ?`,
			status, errMsg, id,
		)
	default:
		res, err = d.conn.Exec(
			`UPDATE explorations SET status = ?, error = ?, updated_at = datetime('now') WHERE id = ?`,
			status, errMsg, id,
		)
	}
	if err != nil {
		return fmt.Errorf("update exploration status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exploration %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateExplorationStage records the currently running stage number.
func (d *DB) UpdateExplorationStage(id string, stage int) error {
	_, err := d.conn.Exec(
		`UPDATE explorations SET current_stage = ?, updated_at = datetime('now') WHERE id = ?`,
		stage, id,
	)
	if err != nil {
		return fmt.Errorf("update exploration stage: %w", err)
	}
	return nil
}

// GetExploration reads one exploration by id.
func (d *DB) GetExploration(id string) (*exploration.Exploration, error) {
	row := d.conn.QueryRow(
		`SELECT id, app_name, category, persona, COALESCE(custom_navigation,''), max_depth, save_to_memory,
		        status, current_stage, COALESCE(error,''), created_at, updated_at, COALESCE(completed_at,'')
		 FROM explorations WHERE id = ?`, id)
	return scanExploration(row)
}

func scanExploration(row *sql.Row) (*exploration.Exploration, error) {
	var ex exploration.Exploration
	var persona string
	err := row.Scan(&ex.ID, &ex.AppName, &ex.Category, &persona, &ex.CustomNavigation,
		&ex.MaxDepth, &ex.SaveToMemory, &ex.Status, &ex.CurrentStage, &ex.Error,
		&ex.CreatedAt, &ex.UpdatedAt, &ex.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan exploration: %w", err)
	}
	ex.Persona = exploration.Persona(persona)
	return &ex, nil
}

// ListFilter narrows ListExplorations.
type ListFilter struct {
	Category string
	Persona  string
	Limit    int
}

// ListExplorations returns explorations newest first, optionally filtered by
// category and/or persona.
func (d *DB) ListExplorations(f ListFilter) ([]exploration.Exploration, error) {
	query := `SELECT id, app_name, category, persona, COALESCE(custom_navigation,''), max_depth, save_to_memory,
	                 status, current_stage, COALESCE(error,''), created_at, updated_at, COALESCE(completed_at,'')
	          FROM explorations WHERE 1=1`
	var args []any
	if f.Category != "" {
		query += " AND category = ?"
		args = append(args, f.Category)
	}
	if f.Persona != "" {
		query += " AND persona = ?"
		args = append(args, f.Persona)
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list explorations: %w", err)
	}
	defer rows.Close()

	var out []exploration.Exploration
	for rows.Next() {
		var ex exploration.Exploration
		var persona string
		if err := rows.Scan(&ex.ID, &ex.AppName, &ex.Category, &persona, &ex.CustomNavigation,
			&ex.MaxDepth, &ex.SaveToMemory, &ex.Status, &ex.CurrentStage, &ex.Error,
			&ex.CreatedAt, &ex.UpdatedAt, &ex.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan exploration: %w", err)
		}
		ex.Persona = exploration.Persona(persona)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// DeleteExploration removes an exploration and, via cascade, its stages and
// result.
func (d *DB) DeleteExploration(id string) error {
	res, err := d.conn.Exec(`DELETE FROM explorations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete exploration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("exploration %s: %w", id, ErrNotFound)
	}
	return nil
}

// StartStage records a stage as running. Re-running an exploration id is not
// supported, so a duplicate stage row is an error.
func (d *DB) StartStage(explorationID string, stageNumber int, stageName string) error {
	_, err := d.conn.Exec(
		`INSERT INTO exploration_stages (exploration_id, stage_number, stage_name, status, started_at)
		 VALUES (?, ?, ?, 'running', datetime('now'))`,
		explorationID, stageNumber, stageName,
	)
	if err != nil {
		return fmt.Errorf("start stage %d: %w", stageNumber, err)
	}
	return nil
}

// CompleteStage marks a stage completed and stores its raw content.
func (d *DB) CompleteStage(explorationID string, stageNumber int, content string) error {
	res, err := d.conn.Exec(
		`UPDATE exploration_stages SET status = 'completed', content = ?, completed_at = datetime('now')
		 WHERE exploration_id = ? AND stage_number = ?`,
		content, explorationID, stageNumber,
	)
	if err != nil {
		return fmt.Errorf("complete stage %d: %w", stageNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage %d of %s: %w", stageNumber, explorationID, ErrNotFound)
	}
	return nil
}

// FailStage marks a stage failed with an error message.
func (d *DB) FailStage(explorationID string, stageNumber int, errMsg string) error {
	res, err := d.conn.Exec(
		`UPDATE exploration_stages SET status = 'failed', error_message = ?, completed_at = datetime('now')
		 WHERE exploration_id = ? AND stage_number = ?`,
		errMsg, explorationID, stageNumber,
	)
	if err != nil {
		return fmt.Errorf("fail stage %d: %w", stageNumber, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("stage %d of %s: %w", stageNumber, explorationID, ErrNotFound)
	}
	return nil
}

// GetStages returns all stage rows for an exploration, ordered by number.
func (d *DB) GetStages(explorationID string) ([]StageRow, error) {
	rows, err := d.conn.Query(
		`SELECT id, exploration_id, stage_number, stage_name, status,
		        COALESCE(content,''), COALESCE(error_message,''), COALESCE(started_at,''), COALESCE(completed_at,'')
		 FROM exploration_stages WHERE exploration_id = ? ORDER BY stage_number`,
		explorationID,
	)
	if err != nil {
		return nil, fmt.Errorf("get stages: %w", err)
	}
	defer rows.Close()

	var out []StageRow
	for rows.Next() {
		var s StageRow
		if err := rows.Scan(&s.ID, &s.ExplorationID, &s.StageNumber, &s.StageName,
			&s.Status, &s.Content, &s.ErrorMessage, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveResult stores the final analysis for an exploration. Saving twice for
// the same id replaces the previous row.
func (d *DB) SaveResult(explorationID, summary string, uxScore, complexityScore float64, fullJSON string) error {
	_, err := d.conn.Exec(
		`INSERT INTO exploration_results (exploration_id, summary, ux_score, complexity_score, full_json)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(exploration_id) DO UPDATE SET
		   summary = excluded.summary, ux_score = excluded.ux_score,
		   complexity_score = excluded.complexity_score, full_json = excluded.full_json`,
		explorationID, summary, uxScore, complexityScore, fullJSON,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// GetResult returns the stored analysis for an exploration.
func (d *DB) GetResult(explorationID string) (*ResultRow, error) {
	row := d.conn.QueryRow(
		`SELECT id, exploration_id, COALESCE(summary,''), COALESCE(ux_score,0), COALESCE(complexity_score,0), full_json, created_at
		 FROM exploration_results WHERE exploration_id = ?`, explorationID)
	return scanResult(row)
}

// LatestResult returns the most recently stored analysis.
func (d *DB) LatestResult() (*ResultRow, error) {
	row := d.conn.QueryRow(
		`SELECT id, exploration_id, COALESCE(summary,''), COALESCE(ux_score,0), COALESCE(complexity_score,0), full_json, created_at
		 FROM exploration_results ORDER BY created_at DESC, id DESC LIMIT 1`)
	return scanResult(row)
}

func scanResult(row *sql.Row) (*ResultRow, error) {
	var r ResultRow
	err := row.Scan(&r.ID, &r.ExplorationID, &r.Summary, &r.UXScore, &r.ComplexityScore, &r.FullJSON, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan result: %w", err)
	}
	return &r, nil
}
