package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/schema"
)

// handleListRegistryEntities returns every registry entry.
//
// Query parameters:
//   - domain: only entries of this domain (light, sensor, ...)
//   - area_id: only entries in this area
func (s *Server) handleListRegistryEntities(w http.ResponseWriter, r *http.Request) {
	domain := r.URL.Query().Get("domain")
	areaID := r.URL.Query().Get("area_id")

	all := s.registry.List()
	entries := make([]entity.Entry, 0, len(all))
	for _, e := range all {
		if domain != "" && e.Domain() != domain {
			continue
		}
		if areaID != "" && e.AreaID != areaID {
			continue
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": entries, "count": len(entries)})
}

func (s *Server) handleGetRegistryEntity(w http.ResponseWriter, r *http.Request) {
	e, err := s.registry.Get(r.Context(), chi.URLParam(r, "entity_id"))
	if err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to get entity")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// handlePutRegistryEntity creates or replaces a registry entry.
func (s *Server) handlePutRegistryEntity(w http.ResponseWriter, r *http.Request) {
	var e entity.Entry
	if !s.decodeBody(w, r, schema.RegistryEntry, &e) {
		return
	}
	e.EntityID = chi.URLParam(r, "entity_id")

	if err := s.registry.Upsert(r.Context(), &e); err != nil {
		if errors.Is(err, entity.ErrInvalidEntityID) || errors.Is(err, entity.ErrInvalidEntry) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("registry upsert failed", "entity_id", e.EntityID, "error", err)
		writeInternalError(w, "failed to save entity")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteRegistryEntity(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), chi.URLParam(r, "entity_id")); err != nil {
		if errors.Is(err, entity.ErrEntityNotFound) {
			writeNotFound(w, "entity not found")
			return
		}
		writeInternalError(w, "failed to delete entity")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAreas returns every area sorted by name.
func (s *Server) handleListAreas(w http.ResponseWriter, _ *http.Request) {
	areas := s.registry.ListAreas()
	writeJSON(w, http.StatusOK, map[string]any{"areas": areas, "count": len(areas)})
}

// handlePutArea creates or renames an area.
func (s *Server) handlePutArea(w http.ResponseWriter, r *http.Request) {
	var a entity.Area
	if !s.decodeBody(w, r, schema.Area, &a) {
		return
	}
	a.ID = chi.URLParam(r, "area_id")

	if err := s.registry.UpsertArea(r.Context(), &a); err != nil {
		if errors.Is(err, entity.ErrInvalidArea) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, "failed to save area")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteArea(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.DeleteArea(r.Context(), chi.URLParam(r, "area_id")); err != nil {
		if errors.Is(err, entity.ErrAreaNotFound) {
			writeNotFound(w, "area not found")
			return
		}
		writeInternalError(w, "failed to delete area")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
