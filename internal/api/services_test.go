package api

import (
	"net/http"
	"slices"
	"testing"

	"github.com/nerrad567/couch-control/internal/auth"
)

func TestServices_RegisteredWithEntry(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleViewer, http.MethodGet, "/api/services", "")
	if _, ok := decode(t, w)["couch_control"]; ok {
		t.Error("services listed before any entry is set up")
	}

	env.configure(t)
	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/services", "")
	names, _ := decode(t, w)["couch_control"].([]any)
	if len(names) != 3 {
		t.Errorf("couch_control services = %v, want 3", names)
	}
}

func TestCallService_AddRemove(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t)

	w := env.do(t, auth.RoleUser, http.MethodPost, "/api/services/couch_control/add_entity", `{"entity_id":"sensor.temp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d (body %s)", w.Code, w.Body.String())
	}
	if got := env.integration.Selection(entry.ID); !slices.Equal(got, []string{"sensor.temp"}) {
		t.Errorf("selection = %v", got)
	}

	w = env.do(t, auth.RoleUser, http.MethodPost, "/api/services/couch_control/set_entities",
		`{"entities":["light.kitchen","sensor.humidity","nope.nope"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("set status = %d", w.Code)
	}
	invalid, _ := decode(t, w)["invalid_entities"].([]any)
	if len(invalid) != 1 {
		t.Errorf("invalid_entities = %v", invalid)
	}

	w = env.do(t, auth.RoleUser, http.MethodPost, "/api/services/couch_control/remove_entity", `{"entity_id":"light.kitchen"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status = %d", w.Code)
	}
	if got := env.integration.Selection(entry.ID); !slices.Equal(got, []string{"sensor.humidity"}) {
		t.Errorf("selection = %v", got)
	}
}

func TestCallService_Errors(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleUser, http.MethodPost, "/api/services/couch_control/add_entity", `{"entity_id":"sensor.temp"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("before setup status = %d, want 404", w.Code)
	}

	env.configure(t)
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"unknown service", "/api/services/couch_control/explode", `{}`, http.StatusNotFound},
		{"missing field", "/api/services/couch_control/add_entity", `{}`, http.StatusBadRequest},
		{"not json", "/api/services/couch_control/add_entity", `entity_id`, http.StatusBadRequest},
		{"unknown entry", "/api/services/couch_control/add_entity", `{"entity_id":"sensor.temp","entry_id":"nope"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, auth.RoleUser, http.MethodPost, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}
