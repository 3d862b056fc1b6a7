package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func echo(_ context.Context, call Call) (any, error) {
	return string(call.Data), nil
}

func TestRegistry_RegisterCallRemove(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("couch_control", "add_entity", echo); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if !r.Has("couch_control", "add_entity") {
		t.Error("Has() = false after Register")
	}

	got, err := r.Call(context.Background(), "couch_control", "add_entity", json.RawMessage(`{"entity_id":"light.kitchen"}`))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if got != `{"entity_id":"light.kitchen"}` {
		t.Errorf("Call() = %v", got)
	}

	// Empty body becomes an empty object.
	got, _ = r.Call(context.Background(), "couch_control", "add_entity", nil)
	if got != "{}" {
		t.Errorf("Call(nil) = %v, want {}", got)
	}

	if !r.Remove("couch_control", "add_entity") {
		t.Error("Remove() = false")
	}
	if r.Remove("couch_control", "add_entity") {
		t.Error("Remove() twice = true")
	}
	if _, err := r.Call(context.Background(), "couch_control", "add_entity", nil); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("Call(removed) error = %v", err)
	}
	if len(r.Services()) != 0 {
		t.Errorf("Services() = %v, want empty", r.Services())
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("couch_control", "set_entities", echo); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		domain  string
		service string
		h       Handler
		want    error
	}{
		{"duplicate", "couch_control", "set_entities", echo, ErrAlreadyRegistered},
		{"empty domain", "", "x", echo, ErrInvalidService},
		{"upper case", "Couch", "x", echo, ErrInvalidService},
		{"dotted", "couch_control", "a.b", echo, ErrInvalidService},
		{"nil handler", "couch_control", "x", nil, ErrInvalidService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.Register(tt.domain, tt.service, tt.h); !errors.Is(err, tt.want) {
				t.Errorf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegistry_Services(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"set_entities", "add_entity", "remove_entity"} {
		if err := r.Register("couch_control", name, echo); err != nil {
			t.Fatal(err)
		}
	}

	got := r.Services()["couch_control"]
	want := []string{"add_entity", "remove_entity", "set_entities"}
	if len(got) != len(want) {
		t.Fatalf("Services() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Services()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := NewRegistry()
	r.Register("couch_control", "fail", func(context.Context, Call) (any, error) { //nolint:errcheck
		return nil, ErrInvalidCall
	})

	if _, err := r.Call(context.Background(), "couch_control", "fail", nil); !errors.Is(err, ErrInvalidCall) {
		t.Errorf("Call() error = %v, want ErrInvalidCall", err)
	}
}
