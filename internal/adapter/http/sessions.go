package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/heatmyhome-form/internal/domain"
	"github.com/couchcryptid/heatmyhome-form/internal/form"
)

// maxImportBody bounds an uploaded results file.
const maxImportBody = 8 << 20

type fieldRequest struct {
	Value string `json:"value"`
	// ApplyTransform defaults to true: an API edit is a committed change.
	ApplyTransform *bool `json:"apply_transform"`
}

type optionRequest struct {
	Option string `json:"option"`
}

type optimisationRequest struct {
	Enabled bool `json:"enabled"`
}

var errBadRequest = errors.New("bad request")

func (s *Server) handleCreate(w http.ResponseWriter, _ *http.Request) {
	sess, err := s.store.Create()
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/sessions/"+sess.ID())
	writeJSON(w, http.StatusCreated, sess.View())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleField(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	f, err := domain.ParseFieldID(chi.URLParam(r, "field"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	var req fieldRequest
	if !s.decode(w, r, &req) {
		return
	}
	apply := req.ApplyTransform == nil || *req.ApplyTransform
	if err := sess.Validate(r.Context(), f, req.Value, apply); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req optionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.SelectAddress(r.Context(), req.Option); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleOptimisation(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req optimisationRequest
	if !s.decode(w, r, &req) {
		return
	}
	sess.SetOptimisation(req.Enabled)
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleNeighbourAddress(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req optionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := sess.SelectNeighbourAddress(r.Context(), req.Option); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleApplyNeighbour(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	f, err := domain.ParseFieldID(chi.URLParam(r, "field"))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if err := sess.ApplyNeighbour(r.Context(), f); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleCancelNeighbour(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.CancelNeighbour(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

// handleImport accepts either a saved-results JSON document or a shareable
// link (or its bare query string) as the request body.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBody))
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: read body: %w", errBadRequest, err))
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		err = sess.ImportFile(r.Context(), body)
	} else {
		err = sess.ImportLink(r.Context(), string(body))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="heatmyhome.json"`)
	writeJSON(w, http.StatusOK, sess.Export())
}

// handleSubmit starts a simulation; its progress is read from the session
// view.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.StartSubmit(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess.View())
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*form.Session, bool) {
	sess, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		s.writeError(w, fmt.Errorf("%w: decode body: %w", errBadRequest, err))
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	body := map[string]string{"error": err.Error()}
	if kind := domain.DispatchKindOf(err); kind != "" {
		body["kind"] = string(kind)
	}
	writeJSON(w, status, body)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, form.ErrSessionNotFound), errors.Is(err, form.ErrSessionClosed):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, form.ErrUnknownOption),
		errors.Is(err, form.ErrIncompleteImport),
		errors.Is(err, form.ErrMalformedImport),
		errors.Is(err, form.ErrNotApplicable):
		return http.StatusBadRequest
	case errors.Is(err, form.ErrNeighbourClosed),
		errors.Is(err, form.ErrPrimaryOwned),
		errors.Is(err, form.ErrNoNeighbourValue),
		domain.DispatchKindOf(err) == domain.DispatchNotReady:
		return http.StatusConflict
	case domain.DispatchKindOf(err) != "":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
