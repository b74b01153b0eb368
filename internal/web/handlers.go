package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/lucasnoah/droidscope/internal/analytics"
	"github.com/lucasnoah/droidscope/internal/db"
	"github.com/lucasnoah/droidscope/internal/executor"
	"github.com/lucasnoah/droidscope/internal/exploration"
)

// StartRequest is the POST /api/explorations body.
type StartRequest struct {
	AppName          string `json:"app_name"`
	Category         string `json:"category"`
	Persona          string `json:"persona"`
	CustomNavigation string `json:"custom_navigation"`
	MaxDepth         int    `json:"max_depth"`
	SaveToMemory     bool   `json:"save_to_memory"`
}

func (s *Server) handleExplorations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ex, err := s.exec.Start(executor.StartOpts{
		AppName:          req.AppName,
		Category:         req.Category,
		Persona:          req.Persona,
		CustomNavigation: req.CustomNavigation,
		MaxDepth:         req.MaxDepth,
		SaveToMemory:     req.SaveToMemory,
	})
	switch {
	case errors.Is(err, executor.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, executor.ErrRunActive):
		writeError(w, http.StatusConflict, "an exploration is already running")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"exploration_id": ex.ID,
		"status":         ex.Status,
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.exec.Stop() {
		writeError(w, http.StatusConflict, "no exploration is running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopping": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id, active := s.registry.ActiveID()
	resp := map[string]any{"active": active}
	if active {
		resp["exploration_id"] = id
		if ex, err := s.store.Get(id); err == nil {
			resp["app_name"] = ex.AppName
			resp["current_stage"] = ex.CurrentStage
			resp["stage_name"] = exploration.StageName(ex.CurrentStage)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleExplorationDetail(w http.ResponseWriter, r *http.Request, id string) {
	ex, err := s.db.GetExploration(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "exploration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stages, err := s.db.GetStages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	type stageView struct {
		Stage       int    `json:"stage"`
		Name        string `json:"name"`
		Status      string `json:"status"`
		Error       string `json:"error,omitempty"`
		StartedAt   string `json:"started_at,omitempty"`
		CompletedAt string `json:"completed_at,omitempty"`
	}
	views := make([]stageView, 0, len(stages))
	for _, st := range stages {
		views = append(views, stageView{
			Stage:       st.StageNumber,
			Name:        st.StageName,
			Status:      st.Status,
			Error:       st.ErrorMessage,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"exploration": ex,
		"stages":      views,
	})
}

func (s *Server) handleExplorationDelete(w http.ResponseWriter, r *http.Request, id string) {
	if activeID, active := s.registry.ActiveID(); active && activeID == id {
		writeError(w, http.StatusConflict, "exploration is running; stop it first")
		return
	}
	dbErr := s.db.DeleteExploration(id)
	if dbErr != nil && !errors.Is(dbErr, db.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, dbErr.Error())
		return
	}
	storeErr := s.store.Delete(id)
	if storeErr != nil && !errors.Is(storeErr, exploration.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, storeErr.Error())
		return
	}
	if dbErr != nil && storeErr != nil {
		writeError(w, http.StatusNotFound, "exploration not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	filter := db.ListFilter{
		Category: q.Get("category"),
		Persona:  q.Get("persona"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	items, err := s.db.ListExplorations(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"explorations": items,
		"count":        len(items),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	overview, err := analytics.QueryOverview(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	categories, err := analytics.QueryCategoryStats(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	personas, err := analytics.QueryPersonaStats(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	stages, err := analytics.QueryStageFailures(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"overview":   overview,
		"categories": categories,
		"personas":   personas,
		"stages":     stages,
	})
}

func (s *Server) handleLatestResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	res, err := s.db.LatestResult()
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no results yet")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, res)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/results/"), "/")
	if id == "" {
		s.handleLatestResult(w, r)
		return
	}
	res, err := s.db.GetResult(id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "result not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeResult(w, res)
}

// writeResult emits the stored analysis document verbatim, wrapped with its
// row metadata. FullJSON was validated against the response schema when it
// was produced, so it is embedded raw rather than re-encoded.
func writeResult(w http.ResponseWriter, res *db.ResultRow) {
	writeJSON(w, http.StatusOK, map[string]any{
		"exploration_id":   res.ExplorationID,
		"summary":          res.Summary,
		"ux_score":         res.UXScore,
		"complexity_score": res.ComplexityScore,
		"created_at":       res.CreatedAt,
		"analysis":         json.RawMessage(res.FullJSON),
	})
}
