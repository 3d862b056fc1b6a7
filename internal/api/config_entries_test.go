package api

import (
	"net/http"
	"slices"
	"testing"

	"github.com/nerrad567/couch-control/internal/auth"
)

func TestConfigFlow_UserFlow(t *testing.T) {
	env := testServer(t)

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows", `{"handler":"couch_control"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("start status = %d (body %s)", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["type"] != "form" || resp["step_id"] != "group" {
		t.Fatalf("start = %v", resp)
	}
	flowID, _ := resp["flow_id"].(string)

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows/"+flowID, `{"group_by":"area"}`)
	resp = decode(t, w)
	if resp["step_id"] != "user" {
		t.Fatalf("group step = %v", resp)
	}
	placeholders, _ := resp["description_placeholders"].(map[string]any)
	if placeholders["entity_count"] != "2" {
		t.Errorf("entity_count = %v, want 2 registry entities", placeholders["entity_count"])
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows/"+flowID,
		`{"entities":["sensor.temp","gone.entity"]}`)
	resp = decode(t, w)
	if resp["type"] != "create_entry" {
		t.Fatalf("finish = %v", resp)
	}
	entry, _ := resp["result"].(map[string]any)
	entryID, _ := entry["entry_id"].(string)
	if entryID == "" {
		t.Fatalf("no entry in %v", resp)
	}
	if got := env.integration.Selection(entryID); !slices.Equal(got, []string{"sensor.temp"}) {
		t.Errorf("selection = %v", got)
	}

	// The integration is configured as soon as the flow finishes.
	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/info", "")
	if w.Code != http.StatusOK {
		t.Errorf("info after flow status = %d", w.Code)
	}

	// Only one entry is allowed.
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows", `{"handler":"couch_control"}`)
	resp = decode(t, w)
	if resp["type"] != "abort" || resp["reason"] != "already_configured" {
		t.Errorf("second flow = %v", resp)
	}
}

func TestConfigFlow_OptionsFlow(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t, "sensor.temp")

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows",
		`{"handler":"couch_control","kind":"options","entry_id":"`+entry.ID+`"}`)
	flowID, _ := decode(t, w)["flow_id"].(string)

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows/"+flowID, `{}`)
	resp := decode(t, w)
	defaults, _ := resp["defaults"].([]any)
	if resp["step_id"] != "init" || len(defaults) != 1 {
		t.Fatalf("init step = %v", resp)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows/"+flowID,
		`{"entities":["light.kitchen","sensor.humidity"]}`)
	if resp := decode(t, w); resp["type"] != "create_entry" {
		t.Fatalf("finish = %v", resp)
	}
	if got := env.integration.Selection(entry.ID); !slices.Equal(got, []string{"light.kitchen", "sensor.humidity"}) {
		t.Errorf("selection = %v", got)
	}
}

func TestConfigFlow_Errors(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"wrong handler", http.MethodPost, "/api/config/flows", `{"handler":"hue"}`, http.StatusBadRequest},
		{"options without entry", http.MethodPost, "/api/config/flows", `{"handler":"couch_control","kind":"options","entry_id":"nope"}`, http.StatusNotFound},
		{"unknown flow", http.MethodPost, "/api/config/flows/nope", `{}`, http.StatusNotFound},
		{"abort unknown flow", http.MethodDelete, "/api/config/flows/nope", "", http.StatusNotFound},
		{"delete unknown entry", http.MethodDelete, "/api/config/entries/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, auth.RoleAdmin, tt.method, tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	w := env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows", `{"handler":"couch_control"}`)
	flowID, _ := decode(t, w)["flow_id"].(string)
	w = env.do(t, auth.RoleAdmin, http.MethodPost, "/api/config/flows/"+flowID, `{"group_by":"colour"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad group_by status = %d, want 400", w.Code)
	}
	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/config/flows/"+flowID, "")
	if w.Code != http.StatusNoContent {
		t.Errorf("abort status = %d, want 204", w.Code)
	}
}

func TestConfigEntries_ListAndDelete(t *testing.T) {
	env := testServer(t)
	entry := env.configure(t, "sensor.temp")

	w := env.do(t, auth.RoleAdmin, http.MethodGet, "/api/config/entries", "")
	resp := decode(t, w)
	if resp["count"] != float64(1) {
		t.Fatalf("count = %v", resp["count"])
	}
	first := resp["entries"].([]any)[0].(map[string]any)
	if first["entry_id"] != entry.ID || first["state"] != "loaded" {
		t.Errorf("entry = %v", first)
	}

	w = env.do(t, auth.RoleAdmin, http.MethodDelete, "/api/config/entries/"+entry.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = env.do(t, auth.RoleViewer, http.MethodGet, "/api/couch_control/entities", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("entities after delete status = %d, want 400", w.Code)
	}
	if got := env.integration.Selection(entry.ID); len(got) != 0 {
		t.Errorf("stored selection after delete = %v", got)
	}
}
