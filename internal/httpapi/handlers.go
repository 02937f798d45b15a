package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MimeLyc/content-orchestrator/internal/config"
	"github.com/MimeLyc/content-orchestrator/internal/docstore"
	"github.com/MimeLyc/content-orchestrator/internal/jobs"
	"github.com/MimeLyc/content-orchestrator/internal/service"
	"github.com/MimeLyc/content-orchestrator/pkg/log"
)

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := jobs.JobFilter{
		Type:      jobs.Type(q.Get("type")),
		Status:    jobs.Status(q.Get("status")),
		ParentJob: q.Get("parent"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	list, err := s.store.ListJobs(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	job, err := s.triggers.CreateAndEnqueue(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

type jobDetailResponse struct {
	Job      *jobs.Job      `json:"job"`
	Children []*jobs.Job    `json:"children,omitempty"`
	Progress *progressEntry `json:"progress,omitempty"`
}

type progressEntry struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := jobDetailResponse{Job: job}
	children, err := s.store.ListJobs(r.Context(), jobs.JobFilter{ParentJob: job.ID})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp.Children = children
	if job.TotalKeywords > 0 {
		resp.Progress = &progressEntry{
			Processed: job.ProcessedKeywords,
			Total:     job.TotalKeywords,
			Percent:   job.CompletionPercentage,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRerunJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.triggers.Rerun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.triggers.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	if s.tasks == nil {
		writeJSON(w, http.StatusOK, []*jobs.Task{})
		return
	}
	writeJSON(w, http.StatusOK, s.tasks.List())
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	result, err := s.triggers.Publish(r.Context(), chi.URLParam(r, "collection"), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	settings, err := s.settings.GetRuntimeSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusNotImplemented, "settings store is not configured")
		return
	}
	var req config.RuntimeSettings
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.settings.UpdateRuntimeSettings(req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.apply != nil {
		if err := s.apply(saved); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, saved)
}

type scheduleResponse struct {
	Expression    string    `json:"expression"`
	Next          time.Time `json:"next"`
	Last          time.Time `json:"last"`
	TimeUntilNext string    `json:"time_until_next"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "news scheduler is not configured")
		return
	}
	info, err := s.scheduler.Next(time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse{
		Expression:    info.Expression,
		Next:          info.Next,
		Last:          info.Last,
		TimeUntilNext: info.TimeUntilNext.Round(time.Second).String(),
	})
}

func (s *Server) handleRunNews(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusNotImplemented, "news scheduler is not configured")
		return
	}
	job, err := s.scheduler.RunNow(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound), errors.Is(err, docstore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error("[HTTP] request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}
