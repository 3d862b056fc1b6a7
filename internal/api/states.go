package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/schema"
)

// stateWrite is the body of POST /api/states/{entity_id}.
type stateWrite struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// handleListStates returns every live state.
func (s *Server) handleListStates(w http.ResponseWriter, _ *http.Request) {
	states := s.states.All()
	writeJSON(w, http.StatusOK, map[string]any{"states": states, "count": len(states)})
}

// handleGetState returns the live state of one entity.
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")

	st, ok := s.states.Get(id)
	if !ok {
		writeNotFound(w, "entity has no state")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleSetState writes the live state of one entity. Returns 201 when the
// entity had no state before.
func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")

	var req stateWrite
	if !s.decodeBody(w, r, schema.StateWrite, &req) {
		return
	}

	existed := s.states.Has(id)
	if _, err := s.states.Set(id, req.State, req.Attributes, entity.OriginLocal); err != nil {
		if errors.Is(err, entity.ErrInvalidEntityID) || errors.Is(err, entity.ErrInvalidState) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		writeInternalError(w, "failed to set state")
		return
	}

	st, _ := s.states.Get(id)
	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	writeJSON(w, status, st)
}

// handleDeleteState removes the live state of one entity.
func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "entity_id")

	if !s.states.Remove(id, entity.OriginLocal) {
		writeNotFound(w, "entity has no state")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
