package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/integration"
	"github.com/nerrad567/couch-control/internal/schema"
)

// entitiesUpdate is the body of POST /api/couch_control/entities.
type entitiesUpdate struct {
	Entities []string `json:"entities"`
}

// handleGetEntities returns the selection of one entry with each entity's
// live state and registry metadata.
//
// Query parameters:
//   - entry_id: the config entry (default: the oldest one)
func (s *Server) handleGetEntities(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.lookupInstance(w, r.URL.Query().Get("entry_id"))
	if !ok {
		return
	}

	ids := inst.Selection()
	detailed := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		detailed = append(detailed, s.describeEntity(id, true))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entities": detailed,
		"count":    len(ids),
	})
}

// handleSetEntities replaces the selection of one entry. Unresolvable ids
// are dropped and reported back with a warning.
func (s *Server) handleSetEntities(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.lookupInstance(w, r.URL.Query().Get("entry_id"))
	if !ok {
		return
	}

	var req entitiesUpdate
	if !s.decodeBody(w, r, schema.EntitiesUpdate, &req) {
		return
	}

	res := inst.Mutator().Replace(req.Entities)
	if err := inst.Flush(r.Context()); err != nil {
		s.logger.Warn("waiting for selection write", "entry_id", inst.EntryID(), "error", err)
	}

	resp := map[string]any{
		"success":  true,
		"entities": res.Entities,
		"count":    len(res.Entities),
	}
	if len(res.Invalid) > 0 {
		resp["invalid_entities"] = res.Invalid
		resp["warning"] = fmt.Sprintf("%d invalid entities were filtered out", len(res.Invalid))
	}

	s.logger.Info("selection updated via API", "entry_id", inst.EntryID(), "entities", len(res.Entities))
	writeJSON(w, http.StatusOK, resp)
}

// handleInfo describes the integration and the size of the selection.
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.lookupInstance(w, r.URL.Query().Get("entry_id"))
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"integration":             integration.Name,
		"version":                 integration.Version,
		"domain":                  integration.Domain,
		"entry_id":                inst.EntryID(),
		"filtered_entities_count": inst.Len(),
		"live_entities_count":     len(inst.Project(s.states.Get)),
		"websocket_endpoint":      wsTypeSubscribeFiltered,
		"status":                  "active",
	})
}

// handleClear empties the selection of one entry.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.lookupInstance(w, r.URL.Query().Get("entry_id"))
	if !ok {
		return
	}

	inst.Mutator().Clear()
	if err := inst.Flush(r.Context()); err != nil {
		s.logger.Warn("waiting for selection write", "entry_id", inst.EntryID(), "error", err)
	}

	s.logger.Info("selection cleared via API", "entry_id", inst.EntryID())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "All filtered entities cleared",
	})
}

// lookupInstance resolves the target entry and writes the error response
// when there is none.
func (s *Server) lookupInstance(w http.ResponseWriter, entryID string) (*integration.Instance, bool) {
	inst, err := s.integration.Lookup(entryID)
	switch {
	case err == nil:
		return inst, true
	case errors.Is(err, integration.ErrNotConfigured):
		writeNotConfigured(w)
	case errors.Is(err, integration.ErrEntryNotLoaded):
		writeNotFound(w, "config entry not loaded: "+entryID)
	default:
		writeInternalError(w, "failed to resolve config entry")
	}
	return nil, false
}

// decodeBody reads the request body and decodes it against the named
// schema. It writes a 400 and returns false on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, name string, dst any) bool {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "failed to read request body")
		return false
	}
	if err := s.schema.Decode(name, data, dst); err != nil {
		writeBadRequest(w, requestErrorMessage(err))
		return false
	}
	return true
}

// requestErrorMessage renders a decode error the way clients expect it.
func requestErrorMessage(err error) string {
	if errors.Is(err, schema.ErrInvalidJSON) {
		return msgInvalidJSON
	}
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return "Invalid data: " + strings.Join(verr.Details, "; ")
	}
	return "Invalid data: " + err.Error()
}

// describeEntity combines the live state and registry entry of id. Missing
// parts are reported as null. full adds timestamps, area and device.
func (s *Server) describeEntity(id string, full bool) map[string]any {
	info := map[string]any{
		"entity_id":  id,
		"state":      nil,
		"attributes": map[string]any{},
	}
	if full {
		info["last_changed"] = nil
		info["last_updated"] = nil
	}

	if st, ok := s.states.Get(id); ok {
		info["state"] = st.State
		info["attributes"] = st.Attributes
		if full {
			info["last_changed"] = st.LastChanged
			info["last_updated"] = st.LastUpdated
		}
	}

	if e, ok := s.registry.Lookup(id); ok {
		info["name"] = nullable(registryName(e))
		info["icon"] = nullable(e.DisplayIcon())
		info["device_class"] = nullable(e.DeviceClass)
		info["unit_of_measurement"] = nullable(e.UnitOfMeasurement)
		if full {
			info["area_id"] = nullable(e.AreaID)
			info["device_id"] = nullable(e.DeviceID)
		}
	}
	return info
}

// registryName is the name override or the original name, without the
// entity ID fallback of DisplayName.
func registryName(e *entity.Entry) string {
	if e.Name != "" {
		return e.Name
	}
	return e.OriginalName
}

// nullable maps an unset string to JSON null.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
