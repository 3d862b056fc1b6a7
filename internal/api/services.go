package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
	"github.com/nerrad567/couch-control/internal/service"
)

// handleListServices returns the registered services grouped by domain.
func (s *Server) handleListServices(w http.ResponseWriter, _ *http.Request) {
	if s.services == nil {
		writeJSON(w, http.StatusOK, map[string][]string{})
		return
	}
	writeJSON(w, http.StatusOK, s.services.Services())
}

// handleCallService dispatches the request body to a registered service
// and returns the handler's result.
func (s *Server) handleCallService(w http.ResponseWriter, r *http.Request) {
	if s.services == nil {
		writeNotFound(w, "service not found")
		return
	}
	domain := chi.URLParam(r, "domain")
	name := chi.URLParam(r, "service")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return
	}

	result, err := s.services.Call(r.Context(), domain, name, data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
	case errors.Is(err, service.ErrServiceNotFound):
		writeNotFound(w, "service not found: "+domain+"."+name)
	case errors.Is(err, integration.ErrNotConfigured):
		writeNotConfigured(w)
	case errors.Is(err, integration.ErrEntryNotLoaded):
		writeNotFound(w, err.Error())
	case errors.Is(err, schema.ErrInvalidJSON):
		writeBadRequest(w, msgInvalidJSON)
	case integration.IsRequestError(err):
		writeBadRequest(w, requestErrorMessage(err))
	default:
		s.logger.Error("service call failed", "domain", domain, "service", name, "error", err)
		writeInternalError(w, "service call failed")
	}
}
