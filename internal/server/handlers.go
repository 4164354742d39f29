package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentmx/agentmx/internal/memory"
	"github.com/agentmx/agentmx/internal/queue"
	"github.com/agentmx/agentmx/internal/scheduler"
	"github.com/agentmx/agentmx/internal/schemas"
)

// RunRequest is the body for POST /run and POST /tasks.
type RunRequest struct {
	Type           string         `json:"type"`
	Payload        map[string]any `json:"payload,omitempty"`
	Priority       int            `json:"priority,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDirectRun launches a pipeline run immediately, bypassing the queue.
// It responds 202 with the run id; the caller polls GET /runs/{id}.
func (s *Server) handleDirectRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		s.errorResponse(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := s.validatePayload(w, req.Type, req.Payload); err != nil {
		return
	}

	timeout := s.cfg.Timeout()
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}

	runID := uuid.New().String()
	go func() {
		// Detached from the request context: closing the HTTP
		// connection must not abort the run. The kill switch still can.
		if _, err := s.pipe.Run(context.Background(), runID, req.Type, req.Payload, timeout); err != nil {
			s.log.WithError(err).WithField("run_id", runID).Error("direct run failed to start")
		}
	}()

	s.jsonResponse(w, http.StatusAccepted, map[string]string{
		"run_id": runID,
		"status": memory.RunStatusRunning,
	})
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		s.errorResponse(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := s.validatePayload(w, req.Type, req.Payload); err != nil {
		return
	}

	id, err := s.queue.Enqueue(r.Context(), req.Type, req.Payload, req.Priority)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]any{
		"task_id": id,
		"status":  queue.StatusQueued,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	tasks, err := s.queue.List(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if tasks == nil {
		tasks = []queue.Task{}
	}
	s.jsonResponse(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.queue.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			s.errorResponse(w, http.StatusNotFound, "task not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, task)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []memory.Run{}
	}
	s.jsonResponse(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, memory.ErrRunNotFound) {
			s.errorResponse(w, http.StatusNotFound, "run not found")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

func (s *Server) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.store.ListArtifacts(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if artifacts == nil {
		artifacts = []memory.Artifact{}
	}
	s.jsonResponse(w, http.StatusOK, artifacts)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Metrics(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, metrics)
}

func (s *Server) handleSchedulerHealth(w http.ResponseWriter, r *http.Request) {
	health, err := scheduler.ReadHealth(s.cfg.SchedulerHealthPath())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if health == nil {
		s.errorResponse(w, http.StatusNotFound, "no health snapshot yet")
		return
	}
	s.jsonResponse(w, http.StatusOK, health)
}

// validatePayload writes the error response itself and returns non-nil when
// the request must not proceed.
func (s *Server) validatePayload(w http.ResponseWriter, taskType string, payload map[string]any) error {
	err := s.validator.ValidatePayload(taskType, payload)
	if err == nil {
		return nil
	}
	var ve *schemas.ValidationError
	if errors.As(err, &ve) {
		s.errorResponse(w, http.StatusUnprocessableEntity, ve.Error())
	} else {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
	return err
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithError(err).Error("failed to encode response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
