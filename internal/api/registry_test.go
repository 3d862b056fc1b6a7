package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/couch-control/internal/auth"
)

func TestListRegistryEntities_Filters(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		query string
		want  float64
	}{
		{"", 2},
		{"?domain=sensor", 1},
		{"?area_id=kitchen", 2},
		{"?domain=switch", 0},
	}
	for _, tt := range tests {
		w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/registry/entities"+tt.query, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, w.Code)
		}
		if got := decode(t, w)["count"]; got != tt.want {
			t.Errorf("%s: count = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestPutRegistryEntity(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/registry/entities/switch.fan",
		`{"original_name":"Ceiling Fan","area_id":"kitchen"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d (body %s)", w.Code, w.Body.String())
	}
	if !env.registry.Has("switch.fan") {
		t.Fatal("entity not registered")
	}

	w = env.do(t, auth.RoleAdmin, http.MethodGet, "/api/registry/entities/switch.fan", "")
	if got := decode(t, w)["original_name"]; got != "Ceiling Fan" {
		t.Errorf("original_name = %v", got)
	}

	// Registered entities become selectable even without a state.
	env.configure(t)
	w = env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/entities", `{"entities":["switch.fan"]}`)
	if got := decode(t, w)["count"]; got != float64(1) {
		t.Errorf("count = %v, want 1", got)
	}
}

func TestPutRegistryEntity_Invalid(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/registry/entities/Bad-ID", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodPut, "/api/registry/entities/switch.fan", `{"entity_id":"x"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown field status = %d, want 400", w.Code)
	}
}

func TestDeleteRegistryEntity(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/registry/entities/light.kitchen", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/registry/entities/light.kitchen", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestAreas(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPut, "/api/registry/areas/lounge", `{"name":"Lounge"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d (body %s)", w.Code, w.Body.String())
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/registry/areas", "")
	if got := decode(t, w)["count"]; got != float64(2) {
		t.Errorf("count = %v, want 2", got)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/registry/areas/kitchen", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if e, _ := env.registry.Lookup("sensor.temp"); e.AreaID != "" {
		t.Errorf("area_id = %q after area delete", e.AreaID)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/registry/areas/kitchen", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}
