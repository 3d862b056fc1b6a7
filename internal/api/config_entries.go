package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/couch-control/internal/configentry"
	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
)

// flowStart is the body of POST /api/config/flows.
type flowStart struct {
	Handler string `json:"handler"`
	Kind    string `json:"kind"`
	EntryID string `json:"entry_id"`
}

// handleStartFlow begins a user or options flow and returns its first step.
func (s *Server) handleStartFlow(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeNotFound(w, "config flows not available")
		return
	}

	var req flowStart
	if !s.decodeBody(w, r, schema.FlowStart, &req) {
		return
	}
	kind := configentry.FlowKind(req.Kind)
	if kind == "" {
		kind = configentry.FlowUser
	}

	res, err := s.flows.Start(kind, req.EntryID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSubmitFlow feeds the body to the current step of a flow.
func (s *Server) handleSubmitFlow(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeNotFound(w, "config flows not available")
		return
	}

	var input configentry.FlowInput
	if !s.decodeBody(w, r, schema.FlowInput, &input) {
		return
	}

	res, err := s.flows.Submit(r.Context(), chi.URLParam(r, "flow_id"), input)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAbortFlow(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeNotFound(w, "config flows not available")
		return
	}
	if err := s.flows.Abort(chi.URLParam(r, "flow_id")); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListEntries returns the config entries of the integration with
// whether each one is currently set up.
func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	if s.entries == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []any{}, "count": 0})
		return
	}

	list := s.entries.List(integration.Domain)
	out := make([]map[string]any, 0, len(list))
	for i := range list {
		e := &list[i]
		state := "not_loaded"
		if _, err := s.integration.Lookup(e.ID); err == nil {
			state = "loaded"
		}
		out = append(out, map[string]any{
			"entry_id":   e.ID,
			"domain":     e.Domain,
			"title":      e.Title,
			"version":    e.Version,
			"data":       e.Data,
			"options":    e.Options,
			"created_at": e.CreatedAt,
			"updated_at": e.UpdatedAt,
			"state":      state,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out, "count": len(out)})
}

// handleDeleteEntry removes a config entry. The integration tears the
// entry down and deletes its stored selection.
func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeNotFound(w, "config entry not found")
		return
	}
	if err := s.entries.Delete(r.Context(), chi.URLParam(r, "entry_id")); err != nil {
		if errors.Is(err, configentry.ErrEntryNotFound) {
			writeNotFound(w, "config entry not found")
			return
		}
		s.logger.Error("deleting config entry failed", "error", err)
		writeInternalError(w, "failed to delete config entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFlowError maps flow errors to responses.
func writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, configentry.ErrFlowNotFound):
		writeNotFound(w, "flow not found")
	case errors.Is(err, configentry.ErrEntryNotFound):
		writeNotFound(w, "config entry not found")
	case errors.Is(err, configentry.ErrInvalidFlow):
		writeBadRequest(w, err.Error())
	default:
		writeInternalError(w, "config flow failed")
	}
}
