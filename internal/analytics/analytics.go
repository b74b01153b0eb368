// Package analytics computes aggregate statistics over stored explorations.
package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
}

// Overview holds run counts by terminal status.
type Overview struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Stopped   int `json:"stopped"`
	Running   int `json:"running"`
}

// QueryOverview returns run counts by status.
func QueryOverview(database DB) (*Overview, error) {
	rows, err := database.Conn().Query(`SELECT status, COUNT(*) FROM explorations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query overview: %w", err)
	}
	defer rows.Close()

	var o Overview
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan overview: %w", err)
		}
		o.Total += count
		switch status {
		case "completed":
			o.Completed = count
		case "failed":
			o.Failed = count
		case "stopped":
			o.Stopped = count
		case "running":
			o.Running = count
		}
	}
	return &o, rows.Err()
}

// CategoryStats holds score statistics for one app category.
type CategoryStats struct {
	Category      string  `json:"category"`
	Count         int     `json:"count"`
	AvgUXScore    float64 `json:"avg_ux_score"`
	P50UXScore    float64 `json:"p50_ux_score"`
	AvgComplexity float64 `json:"avg_complexity"`
}

// QueryCategoryStats returns per-category score aggregates over completed
// explorations that have a stored result.
func QueryCategoryStats(database DB) ([]CategoryStats, error) {
	rows, err := database.Conn().Query(`
		SELECT e.category, r.ux_score, r.complexity_score
		FROM explorations e
		JOIN exploration_results r ON r.exploration_id = e.id
		WHERE e.status = 'completed'`)
	if err != nil {
		return nil, fmt.Errorf("query category stats: %w", err)
	}
	defer rows.Close()

	type scores struct{ ux, complexity []float64 }
	byCategory := make(map[string]*scores)
	for rows.Next() {
		var category string
		var ux, complexity float64
		if err := rows.Scan(&category, &ux, &complexity); err != nil {
			return nil, fmt.Errorf("scan category stats: %w", err)
		}
		s := byCategory[category]
		if s == nil {
			s = &scores{}
			byCategory[category] = s
		}
		s.ux = append(s.ux, ux)
		s.complexity = append(s.complexity, complexity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []CategoryStats
	for category, s := range byCategory {
		sort.Float64s(s.ux)
		results = append(results, CategoryStats{
			Category:      category,
			Count:         len(s.ux),
			AvgUXScore:    avg(s.ux),
			P50UXScore:    percentile(s.ux, 50),
			AvgComplexity: avg(s.complexity),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Category < results[j].Category
	})
	return results, nil
}

// PersonaStats holds score statistics for one persona.
type PersonaStats struct {
	Persona    string  `json:"persona"`
	Count      int     `json:"count"`
	AvgUXScore float64 `json:"avg_ux_score"`
}

// QueryPersonaStats returns per-persona score aggregates over completed
// explorations that have a stored result.
func QueryPersonaStats(database DB) ([]PersonaStats, error) {
	rows, err := database.Conn().Query(`
		SELECT e.persona, COUNT(*), AVG(r.ux_score)
		FROM explorations e
		JOIN exploration_results r ON r.exploration_id = e.id
		WHERE e.status = 'completed'
		GROUP BY e.persona
		ORDER BY e.persona`)
	if err != nil {
		return nil, fmt.Errorf("query persona stats: %w", err)
	}
	defer rows.Close()

	var results []PersonaStats
	for rows.Next() {
		var ps PersonaStats
		if err := rows.Scan(&ps.Persona, &ps.Count, &ps.AvgUXScore); err != nil {
			return nil, fmt.Errorf("scan persona stats: %w", err)
		}
		ps.AvgUXScore = round1(ps.AvgUXScore)
		results = append(results, ps)
	}
	return results, rows.Err()
}

// StageFailure holds failure statistics for one pipeline stage.
type StageFailure struct {
	Stage       int     `json:"stage"`
	Runs        int     `json:"runs"`
	Failures    int     `json:"failures"`
	FailureRate float64 `json:"failure_rate_pct"`
}

// QueryStageFailures returns how often each stage fails across all runs that
// reached it.
func QueryStageFailures(database DB) ([]StageFailure, error) {
	rows, err := database.Conn().Query(`
		SELECT stage_number,
			COUNT(*) as runs,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failures
		FROM exploration_stages
		GROUP BY stage_number
		ORDER BY stage_number`)
	if err != nil {
		return nil, fmt.Errorf("query stage failures: %w", err)
	}
	defer rows.Close()

	var results []StageFailure
	for rows.Next() {
		var sf StageFailure
		if err := rows.Scan(&sf.Stage, &sf.Runs, &sf.Failures); err != nil {
			return nil, fmt.Errorf("scan stage failures: %w", err)
		}
		sf.FailureRate = pct(sf.Failures, sf.Runs)
		results = append(results, sf)
	}
	return results, rows.Err()
}

// StageDuration holds wall-clock duration stats for one pipeline stage.
type StageDuration struct {
	Stage int     `json:"stage"`
	Count int     `json:"count"`
	Avg   float64 `json:"avg_minutes"`
	P50   float64 `json:"p50_minutes"`
	P95   float64 `json:"p95_minutes"`
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// QueryStageDurations returns average and percentile durations per stage,
// computed from completed stage rows with both timestamps present.
func QueryStageDurations(database DB) ([]StageDuration, error) {
	rows, err := database.Conn().Query(`
		SELECT stage_number, started_at, completed_at
		FROM exploration_stages
		WHERE status = 'completed'
		AND started_at IS NOT NULL AND completed_at IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("query stage durations: %w", err)
	}
	defer rows.Close()

	byStage := make(map[int][]float64)
	for rows.Next() {
		var stage int
		var startTS, endTS string
		if err := rows.Scan(&stage, &startTS, &endTS); err != nil {
			return nil, fmt.Errorf("scan stage duration: %w", err)
		}
		start, err := parseTimestamp(startTS)
		if err != nil {
			continue
		}
		end, err := parseTimestamp(endTS)
		if err != nil {
			continue
		}
		minutes := end.Sub(start).Minutes()
		if minutes >= 0 {
			byStage[stage] = append(byStage[stage], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []StageDuration
	for stage, durations := range byStage {
		sort.Float64s(durations)
		results = append(results, StageDuration{
			Stage: stage,
			Count: len(durations),
			Avg:   avg(durations),
			P50:   percentile(durations, 50),
			P95:   percentile(durations, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Stage < results[j].Stage
	})
	return results, nil
}

func avg(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return round1(sum / float64(len(vals)))
}

// percentile expects vals to be sorted.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(vals)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(vals) {
		idx = len(vals) - 1
	}
	return round1(vals[idx])
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(n) / float64(total) * 100)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
