package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/codequest/quest-engine/internal/catalog"
	"github.com/codequest/quest-engine/internal/evaluator"
	"github.com/codequest/quest-engine/internal/progression"
	"github.com/codequest/quest-engine/internal/sandbox"
)

// Response helpers

type apiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := apiResponse{
		Success: false,
		Error: &apiError{
			Code:    code,
			Message: message,
		},
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondDomainError maps domain errors to HTTP statuses. Infrastructure
// and store failures are 503 so clients know to retry.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrQuestNotFound):
		respondError(w, http.StatusNotFound, "quest_not_found", "quest not found")
	case errors.Is(err, catalog.ErrLevelNotFound):
		respondError(w, http.StatusNotFound, "level_not_found", "level not found")
	case errors.Is(err, catalog.ErrNoMoreHints):
		respondError(w, http.StatusNotFound, "no_more_hints", "No more hints available")
	case errors.Is(err, evaluator.ErrInvalidSubmission):
		respondError(w, http.StatusBadRequest, "invalid_submission", err.Error())
	case errors.Is(err, sandbox.ErrInfrastructure):
		slog.Error("sandbox infrastructure failure", "error", err)
		respondError(w, http.StatusServiceUnavailable, "sandbox_unavailable", "execution environment unavailable, retry later")
	case errors.Is(err, progression.ErrStoreUnavailable):
		slog.Error("progression store failure", "error", err)
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "progression store unavailable, retry later")
	default:
		slog.Error("unhandled error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.runner.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "sandbox not ready")
		return
	}
	if err := s.repo.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "not_ready", "storage not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Submission handlers

type submitRequest struct {
	PlayerID string `json:"player_id"`
	Code     string `json:"code"`
	TestOnly bool   `json:"test_only,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.PlayerID == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "player_id is required")
		return
	}

	result, err := s.evaluator.Submit(r.Context(), evaluator.SubmitRequest{
		PlayerID: req.PlayerID,
		QuestID:  questID,
		Code:     req.Code,
		TestOnly: req.TestOnly,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Hint handler

func (s *Server) handleGetHint(w http.ResponseWriter, r *http.Request) {
	questID := chi.URLParam(r, "questID")

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "hint index must be an integer")
		return
	}

	hint, err := s.catalog.Hint(questID, index)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"quest_id": questID,
		"index":    index,
		"hint":     hint,
	})
}

// Progression handlers

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	levels, err := s.machine.AvailableLevels(r.Context(), playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, levels)
}

func (s *Server) handleListLevelQuests(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	levelID := chi.URLParam(r, "levelID")

	quests, err := s.machine.LevelQuests(r.Context(), playerID, levelID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, quests)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")

	progress, err := s.machine.Progress(r.Context(), playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, progress)
}
