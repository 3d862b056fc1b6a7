package configentry

import (
	"context"
	"errors"
	"slices"
	"testing"
)

// fakeSelections resolves a fixed set of ids and records commits.
type fakeSelections struct {
	known     map[string]bool
	current   map[string][]string
	commitErr error
	commits   map[string][]string
}

func newFakeSelections(known ...string) *fakeSelections {
	f := &fakeSelections{
		known:   make(map[string]bool),
		current: make(map[string][]string),
		commits: make(map[string][]string),
	}
	for _, id := range known {
		f.known[id] = true
	}
	return f
}

func (f *fakeSelections) Validate(ids []string) (valid, invalid []string) {
	valid = []string{}
	for _, id := range ids {
		if f.known[id] {
			valid = append(valid, id)
		} else {
			invalid = append(invalid, id)
		}
	}
	return valid, invalid
}

func (f *fakeSelections) Selection(entryID string) []string {
	return slices.Clone(f.current[entryID])
}

func (f *fakeSelections) Commit(_ context.Context, entryID string, ids []string) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits[entryID] = slices.Clone(ids)
	f.current[entryID] = slices.Clone(ids)
	return nil
}

func newTestFlows(t *testing.T, allowMultiple bool) (*Flows, *Manager, *fakeSelections) {
	t.Helper()
	m := newTestManager(t)
	sel := newFakeSelections("light.kitchen", "light.lounge", "sensor.outdoor")
	return NewFlows("couch_control", allowMultiple, m, testCatalog(), sel), m, sel
}

func TestFlows_UserFlowCreatesEntry(t *testing.T) {
	flows, m, _ := newTestFlows(t, false)
	ctx := context.Background()

	res, err := flows.Start(FlowUser, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Type != ResultForm || res.StepID != StepGroup || res.FlowID == "" {
		t.Fatalf("Start() = %+v", res)
	}

	res, err = flows.Submit(ctx, res.FlowID, FlowInput{GroupBy: "domain"})
	if err != nil {
		t.Fatalf("Submit(group) error = %v", err)
	}
	if res.StepID != StepUser || res.GroupBy != GroupDomain {
		t.Fatalf("Submit(group) = %+v", res)
	}
	if res.Placeholders["entity_count"] != "3" {
		t.Errorf("entity_count = %q, want 3", res.Placeholders["entity_count"])
	}
	if len(res.Errors) != 0 {
		t.Errorf("Errors = %v", res.Errors)
	}

	res, err = flows.Submit(ctx, res.FlowID, FlowInput{
		Entities: []string{"__header__.light", "light.kitchen", "light.ghost"},
	})
	if err != nil {
		t.Fatalf("Submit(user) error = %v", err)
	}
	if res.Type != ResultCreateEntry || res.Entry == nil {
		t.Fatalf("Submit(user) = %+v", res)
	}
	if !slices.Equal(res.Entry.Data.Entities, []string{"light.kitchen"}) {
		t.Errorf("Data.Entities = %v", res.Entry.Data.Entities)
	}
	if !slices.Equal(res.Invalid, []string{"light.ghost"}) {
		t.Errorf("Invalid = %v", res.Invalid)
	}
	if res.Entry.Title != DefaultTitle {
		t.Errorf("Title = %q", res.Entry.Title)
	}

	if len(m.List("couch_control")) != 1 {
		t.Error("entry not stored")
	}
	if flows.Len() != 0 {
		t.Errorf("finished flow still tracked")
	}
	if _, err := flows.Submit(ctx, res.FlowID, FlowInput{}); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("Submit(finished) error = %v", err)
	}
}

func TestFlows_AlreadyConfigured(t *testing.T) {
	flows, m, _ := newTestFlows(t, false)
	if _, err := m.Create(context.Background(), "couch_control", DefaultTitle, EntryData{}); err != nil {
		t.Fatal(err)
	}

	res, err := flows.Start(FlowUser, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Type != ResultAbort || res.Reason != ReasonAlreadyConfigured {
		t.Errorf("Start() = %+v", res)
	}
	if flows.Len() != 0 {
		t.Error("aborted flow tracked")
	}
}

func TestFlows_AllowMultiple(t *testing.T) {
	flows, m, _ := newTestFlows(t, true)
	if _, err := m.Create(context.Background(), "couch_control", DefaultTitle, EntryData{}); err != nil {
		t.Fatal(err)
	}

	res, err := flows.Start(FlowUser, "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if res.Type != ResultForm {
		t.Errorf("Start() type = %s, want form", res.Type)
	}
}

func TestFlows_OptionsFlow(t *testing.T) {
	flows, m, sel := newTestFlows(t, false)
	ctx := context.Background()

	entry, _ := m.Create(ctx, "couch_control", DefaultTitle, EntryData{Entities: []string{"light.kitchen"}})
	sel.current[entry.ID] = []string{"light.kitchen"}

	var updated []Entry
	m.OnUpdate(entry.ID, func(e Entry) { updated = append(updated, e) })

	res, err := flows.Start(FlowOptions, entry.ID)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	res, err = flows.Submit(ctx, res.FlowID, FlowInput{})
	if err != nil {
		t.Fatalf("Submit(group) error = %v", err)
	}
	if res.StepID != StepInit {
		t.Fatalf("StepID = %s, want init", res.StepID)
	}
	if !slices.Equal(res.Defaults, []string{"light.kitchen"}) {
		t.Errorf("Defaults = %v", res.Defaults)
	}
	if res.Placeholders["selected_count"] != "1" {
		t.Errorf("selected_count = %q", res.Placeholders["selected_count"])
	}

	res, err = flows.Submit(ctx, res.FlowID, FlowInput{Entities: []string{"sensor.outdoor", "light.lounge"}})
	if err != nil {
		t.Fatalf("Submit(init) error = %v", err)
	}
	if res.Type != ResultCreateEntry {
		t.Fatalf("Submit(init) = %+v", res)
	}

	want := []string{"sensor.outdoor", "light.lounge"}
	if !slices.Equal(sel.commits[entry.ID], want) {
		t.Errorf("committed = %v, want %v", sel.commits[entry.ID], want)
	}
	if len(updated) != 1 || !slices.Equal(updated[0].Options.Entities, want) {
		t.Errorf("update listener saw %+v", updated)
	}
}

func TestFlows_OptionsCommitFailure(t *testing.T) {
	flows, m, sel := newTestFlows(t, false)
	ctx := context.Background()
	entry, _ := m.Create(ctx, "couch_control", DefaultTitle, EntryData{})
	sel.commitErr = errors.New("disk full")

	res, _ := flows.Start(FlowOptions, entry.ID)
	res, _ = flows.Submit(ctx, res.FlowID, FlowInput{})
	res, err := flows.Submit(ctx, res.FlowID, FlowInput{Entities: []string{"light.kitchen"}})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Type != ResultForm || res.Errors["base"] != ErrorUnknown {
		t.Errorf("Submit() = %+v, want form with unknown error", res)
	}
	if flows.Len() != 1 {
		t.Error("failed flow should stay open for retry")
	}
}

func TestFlows_NoEntities(t *testing.T) {
	m := newTestManager(t)
	flows := NewFlows("couch_control", false, m, &fakeCatalog{}, newFakeSelections())

	res, _ := flows.Start(FlowUser, "")
	res, err := flows.Submit(context.Background(), res.FlowID, FlowInput{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if res.Errors["base"] != ErrorNoEntities {
		t.Errorf("Errors = %v, want no_entities", res.Errors)
	}
}

func TestFlows_StartErrors(t *testing.T) {
	flows, m, _ := newTestFlows(t, false)

	if _, err := flows.Start(FlowOptions, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("Start(options, missing) error = %v", err)
	}
	if _, err := flows.Start("reauth", ""); !errors.Is(err, ErrInvalidFlow) {
		t.Errorf("Start(reauth) error = %v", err)
	}

	other, _ := m.Create(context.Background(), "other", "Other", EntryData{})
	if _, err := flows.Start(FlowOptions, other.ID); !errors.Is(err, ErrInvalidFlow) {
		t.Errorf("Start(options, foreign entry) error = %v", err)
	}
}

func TestFlows_InvalidGroupBy(t *testing.T) {
	flows, _, _ := newTestFlows(t, false)

	res, _ := flows.Start(FlowUser, "")
	if _, err := flows.Submit(context.Background(), res.FlowID, FlowInput{GroupBy: "floor"}); !errors.Is(err, ErrInvalidFlow) {
		t.Errorf("Submit(bad group) error = %v", err)
	}

	if err := flows.Abort(res.FlowID); err != nil {
		t.Errorf("Abort() error = %v", err)
	}
	if err := flows.Abort(res.FlowID); !errors.Is(err, ErrFlowNotFound) {
		t.Errorf("Abort(again) error = %v", err)
	}
}
