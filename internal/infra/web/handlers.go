package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"mbti-report-console/internal/domain"
	"mbti-report-console/internal/domain/model"
	"mbti-report-console/internal/domain/ports/adapter"
	"mbti-report-console/internal/infra/logging"
)

type submitRequest struct {
	Files []string `json:"files"`
}

type triggerRequest struct {
	Fields map[string]string `json:"fields"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.page.Snapshot())
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.reports.Health(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	wf, err := model.ParseWorkflow(chi.URLParam(r, "workflow"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	files := make([]model.Upload, 0, len(req.Files))
	for _, p := range req.Files {
		files = append(files, model.Upload{Filename: filepath.Base(p), Path: p})
	}

	id, err := s.reports.Submit(r.Context(), wf, files)
	if err != nil && id == "" {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.logFor(r).Warn().Err(err).Str("task_id", id).Msg("task accepted but polling not started")
	}
	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: id})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	wf, err := model.ParseWorkflow(chi.URLParam(r, "tab"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	restored := s.reports.ActivateTab(wf)
	writeJSON(w, http.StatusOK, map[string]any{"active": wf, "restored": restored})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	id := model.ControlID(chi.URLParam(r, "control"))
	if err := s.page.Trigger(r.Context(), id, req.Fields); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGroupInsight(w http.ResponseWriter, r *http.Request) {
	var form adapter.GroupInsightRequest
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id, err := s.reports.RequestGroupInsight(r.Context(), form)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, taskResponse{TaskID: id})
}

func (s *Server) handleOpenGroupInsight(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"shown": s.reports.OpenGroupInsight()})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	body, err := s.reports.Download(r.Context(), name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer body.Close()

	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logFor(r).Warn().Err(err).Str("filename", name).Msg("download interrupted")
	}
}

// statusFor maps use-case errors onto HTTP codes.
func statusFor(err error) int {
	var svcErr *domain.ServiceError
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownWorkflow):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingPrecondition),
		errors.Is(err, domain.ErrNoActionBound):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &svcErr):
		if svcErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	ev := s.logFor(r).Warn()
	if code >= http.StatusInternalServerError {
		ev = s.logFor(r).Error()
	}
	ev.Err(err).Int("status", code).Msg("request failed")
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) logFor(r *http.Request) *zerolog.Logger {
	return logging.With(r.Context(), s.log)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
