package api

import (
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/nerrad567/couch-control/internal/auth"
	"github.com/nerrad567/couch-control/internal/entity"
)

func TestCouchControl_NotConfigured(t *testing.T) {
	env := testServer(t)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/couch_control/entities", ""},
		{http.MethodPost, "/api/couch_control/entities", `{"entities":["sensor.temp"]}`},
		{http.MethodGet, "/api/couch_control/info", ""},
		{http.MethodPost, "/api/couch_control/clear", ""},
	} {
		w := env.do(t, auth.RoleUser, tc.method, tc.path, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s %s: status = %d, want 400", tc.method, tc.path, w.Code)
			continue
		}
		if msg := decode(t, w)["error"]; msg != "Couch Control not configured" {
			t.Errorf("%s %s: error = %v", tc.method, tc.path, msg)
		}
	}
}

func TestGetEntities_Enriched(t *testing.T) {
	env := testServer(t)
	env.configure(t, "sensor.temp", "light.kitchen", "sensor.humidity")

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/entities", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["count"] != float64(3) {
		t.Errorf("count = %v, want 3", resp["count"])
	}

	entities, ok := resp["entities"].([]any)
	if !ok || len(entities) != 3 {
		t.Fatalf("entities = %v", resp["entities"])
	}

	temp := entities[0].(map[string]any)
	if temp["entity_id"] != "sensor.temp" || temp["state"] != "21.5" {
		t.Errorf("first entity = %v, want sensor.temp with state 21.5", temp)
	}
	if temp["name"] != "Temperature" || temp["unit_of_measurement"] != "°C" || temp["area_id"] != "kitchen" {
		t.Errorf("registry fields = %v", temp)
	}
	if temp["last_changed"] == nil {
		t.Error("last_changed missing for entity with a state")
	}

	light := entities[1].(map[string]any)
	if light["state"] != nil || light["last_changed"] != nil {
		t.Errorf("light.kitchen has no state, got %v", light)
	}
	if light["icon"] != "mdi:lightbulb" {
		t.Errorf("icon = %v, want mdi:lightbulb", light["icon"])
	}
	if attrs, ok := light["attributes"].(map[string]any); !ok || len(attrs) != 0 {
		t.Errorf("attributes = %v, want empty object", light["attributes"])
	}

	humidity := entities[2].(map[string]any)
	if _, ok := humidity["name"]; ok {
		t.Errorf("unregistered entity should carry no registry fields, got %v", humidity)
	}
}

func TestSetEntities_FiltersInvalid(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t)

	w := env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/entities",
		`{"entities":["sensor.temp","light.kitchen","not.a.real.entity"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["success"] != true || resp["count"] != float64(2) {
		t.Errorf("resp = %v", resp)
	}
	if resp["warning"] != "1 invalid entities were filtered out" {
		t.Errorf("warning = %v", resp["warning"])
	}
	invalid, _ := resp["invalid_entities"].([]any)
	if len(invalid) != 1 || invalid[0] != "not.a.real.entity" {
		t.Errorf("invalid_entities = %v", resp["invalid_entities"])
	}

	// The write is flushed before the response.
	got := env.integration.Selection(entry.ID)
	if !slices.Equal(got, []string{"sensor.temp", "light.kitchen"}) {
		t.Errorf("selection = %v", got)
	}
}

func TestSetEntities_AllValidHasNoWarning(t *testing.T) {
	env := testServer(t)
	env.configure(t)

	w := env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/entities", `{"entities":["sensor.temp"]}`)
	resp := decode(t, w)
	if _, ok := resp["warning"]; ok {
		t.Errorf("unexpected warning: %v", resp)
	}
	if _, ok := resp["invalid_entities"]; ok {
		t.Errorf("unexpected invalid_entities: %v", resp)
	}
}

func TestSetEntities_BadBodies(t *testing.T) {
	env := testServer(t)
	env.configure(t, "sensor.temp")

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"not json", `{"entities":`, "Invalid JSON"},
		{"missing entities", `{}`, ""},
		{"wrong type", `{"entities":"sensor.temp"}`, ""},
		{"unknown field", `{"entities":[],"extra":true}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/entities", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			msg, _ := decode(t, w)["error"].(string)
			if tt.wantMsg != "" && msg != tt.wantMsg {
				t.Errorf("error = %q, want %q", msg, tt.wantMsg)
			}
			if tt.wantMsg == "" && !strings.HasPrefix(msg, "Invalid data: ") {
				t.Errorf("error = %q, want an Invalid data message", msg)
			}
		})
	}

	// The selection is untouched.
	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/info", "")
	if decode(t, w)["filtered_entities_count"] != float64(1) {
		t.Error("bad bodies must not change the selection")
	}
}

func TestInfo(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t, "sensor.temp", "sensor.humidity")
	if !env.states.Remove("sensor.humidity", entity.OriginLocal) {
		t.Fatal("sensor.humidity had no live state")
	}

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/info", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	want := map[string]any{
		"integration":             "Couch Control Entity Filter",
		"version":                 "1.0.0",
		"domain":                  "couch_control",
		"entry_id":                entry.ID,
		"filtered_entities_count": float64(2),
		"live_entities_count":     float64(1),
		"websocket_endpoint":      "couch_control/subscribe_filtered",
		"status":                  "active",
	}
	for k, v := range want {
		if resp[k] != v {
			t.Errorf("%s = %v, want %v", k, resp[k], v)
		}
	}
}

func TestClear(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t, "sensor.temp", "light.kitchen")

	w := env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/clear", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["success"] != true || resp["message"] != "All filtered entities cleared" {
		t.Errorf("resp = %v", resp)
	}
	if got := env.integration.Selection(entry.ID); len(got) != 0 {
		t.Errorf("selection after clear = %v", got)
	}
}

func TestEntryIDTargeting(t *testing.T) {
	env := testServer(t)
	first := env.configure(t, "sensor.temp")
	second := env.configure(t, "light.kitchen")

	// Without entry_id the oldest entry is used.
	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/info", "")
	if got := decode(t, w)["entry_id"]; got != first.ID {
		t.Errorf("default entry = %v, want %s", got, first.ID)
	}

	w = env.do(t, auth.RoleUser, http.MethodPost, "/api/couch_control/entities?entry_id="+second.ID,
		`{"entities":["sensor.humidity"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := env.integration.Selection(second.ID); !slices.Equal(got, []string{"sensor.humidity"}) {
		t.Errorf("second selection = %v", got)
	}
	if got := env.integration.Selection(first.ID); !slices.Equal(got, []string{"sensor.temp"}) {
		t.Errorf("first selection changed to %v", got)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/entities?entry_id=nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown entry_id status = %d, want 404", w.Code)
	}
}
