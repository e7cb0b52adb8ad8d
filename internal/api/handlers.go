package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	apperrors "github.com/vytor/wordflash/internal/errors"
	"github.com/vytor/wordflash/internal/logger"
	"github.com/vytor/wordflash/internal/models"
	"github.com/vytor/wordflash/internal/remote"
)

// Server exposes an authoritative remote store over HTTP.
type Server struct {
	Store remote.Store
	// Ping reports whether the backing database is reachable. Optional.
	Ping func(ctx context.Context) error
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger.FromContext(r.Context()).Debug("fetching item: id=%s", id)

	item, err := s.Store.FetchItem(r.Context(), id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	id := chi.URLParam(r, "id")

	base, err := parseBaseTimestamp(r.Header.Get(remote.BaseTimestampHeader))
	if err != nil {
		handleError(w, r, apperrors.NewValidationError(remote.BaseTimestampHeader, err.Error()))
		return
	}

	var item models.VocabularyItem
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&item); err != nil {
		handleError(w, r, apperrors.NewValidationError("body", err.Error()))
		return
	}
	if item.ID == "" {
		item.ID = id
	}
	if item.ID != id {
		handleError(w, r, apperrors.NewValidationError("id", "body id does not match path"))
		return
	}

	log = log.WithFields(map[string]any{"id": id, "base": base})
	stored, err := s.Store.UpsertItem(r.Context(), item, base)
	var conflict *remote.VersionConflictError
	if errors.As(err, &conflict) {
		log.Info("rejecting stale write")
		writeJSON(w, http.StatusConflict, conflict.Current)
		return
	}
	if err != nil {
		handleError(w, r, err)
		return
	}
	log.Debug("item stored")
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	logger.FromContext(r.Context()).Debug("deleting item: id=%s", id)

	if err := s.Store.DeleteItem(r.Context(), id); err != nil {
		handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
