package apihttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"localtube/internal/domain"
	"localtube/internal/usecase"
)

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListSources(w, r)
	case http.MethodPost:
		s.handleCreateSource(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type sourceList struct {
	Items []domain.Source `json:"items"`
	Count int             `json:"count"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeStoreError(w, err, "source not found")
		return
	}

	writeJSON(w, http.StatusOK, sourceList{Items: sources, Count: len(sources)})
}

type createSourceRequest struct {
	URL              string  `json:"url"`
	FetchLastDays    int     `json:"fetch_last_days"`
	RefreshFrequency int     `json:"refresh_frequency"`
	Sponsorblock     string  `json:"sponsorblock"`
	ListTab          *string `json:"list_tab"`
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	if s.createSource == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "create source use case not configured")
		return
	}

	var body createSourceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	// list_tab is accepted for symmetry with update but has no effect
	// here: tab metadata only exists after the first refresh.
	input := usecase.CreateSourceInput{
		URL:              body.URL,
		FetchLastDays:    body.FetchLastDays,
		RefreshFrequency: body.RefreshFrequency,
		Sponsorblock:     body.Sponsorblock,
	}

	// Cap the handler execution time so we never block indefinitely.
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	source, err := s.createSource.Execute(ctx, input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, source)
}

func (s *Server) handleSourceByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sources/")
	if path == "" || strings.Contains(path, "/") {
		http.NotFound(w, r)
		return
	}

	id, err := parseID(path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid source id")
		return
	}
	sourceID := domain.SourceID(id)

	switch r.Method {
	case http.MethodGet:
		s.handleGetSource(w, r, sourceID)
	case http.MethodPut, http.MethodPatch, http.MethodPost:
		s.handleUpdateSource(w, r, sourceID)
	case http.MethodDelete:
		s.handleDeleteSource(w, r, sourceID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request, id domain.SourceID) {
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	source, err := s.store.GetSource(r.Context(), id)
	if err != nil {
		writeStoreError(w, err, "source not found")
		return
	}

	writeJSON(w, http.StatusOK, source)
}

type updateSourceRequest struct {
	URL              *string `json:"url"`
	FetchLastDays    int     `json:"fetch_last_days"`
	RefreshFrequency int     `json:"refresh_frequency"`
	Sponsorblock     string  `json:"sponsorblock"`
	ListTab          *string `json:"list_tab"`
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request, id domain.SourceID) {
	if s.updateSource == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "update source use case not configured")
		return
	}

	var body updateSourceRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json")
		return
	}

	input := usecase.UpdateSourceInput{
		URL:              body.URL,
		FetchLastDays:    body.FetchLastDays,
		RefreshFrequency: body.RefreshFrequency,
		Sponsorblock:     body.Sponsorblock,
		ListTab:          body.ListTab,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	source, err := s.updateSource.Execute(ctx, id, input)
	if err != nil {
		writeUseCaseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, source)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request, id domain.SourceID) {
	if s.store == nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "store not configured")
		return
	}

	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		writeStoreError(w, err, "source not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
