package configentry

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// FlowKind selects which flow is started.
type FlowKind string

// Flow kinds.
const (
	// FlowUser creates a new entry.
	FlowUser FlowKind = "user"

	// FlowOptions edits an existing entry's selection.
	FlowOptions FlowKind = "options"
)

// Step IDs.
const (
	StepGroup = "group"
	StepUser  = "user"
	StepInit  = "init"
)

// Result types.
const (
	ResultForm        = "form"
	ResultCreateEntry = "create_entry"
	ResultAbort       = "abort"
)

// Error and abort reasons.
const (
	ReasonAlreadyConfigured = "already_configured"
	ErrorNoEntities         = "no_entities"
	ErrorUnknown            = "unknown"
)

// DefaultTitle is the title given to entries created by a user flow.
const DefaultTitle = "Couch Control Entity Filter"

// Selections is what a flow needs from the running integration.
type Selections interface {
	// Validate splits ids into resolvable and unresolvable.
	Validate(ids []string) (valid, invalid []string)

	// Selection returns the current selection of an entry.
	Selection(entryID string) []string

	// Commit writes ids through the mutation path of entryID and waits
	// for them to be stored.
	Commit(ctx context.Context, entryID string, ids []string) error
}

// FlowInput is a submitted step. GroupBy is read at the group step,
// Entities at the picker step.
type FlowInput struct {
	GroupBy  string   `json:"group_by,omitempty"`
	Entities []string `json:"entities,omitempty"`
}

// FlowResult is what a step returns: another form, a finished entry, or
// an abort.
type FlowResult struct {
	FlowID       string            `json:"flow_id"`
	Handler      string            `json:"handler"`
	Type         string            `json:"type"`
	StepID       string            `json:"step_id,omitempty"`
	GroupBy      GroupBy           `json:"group_by,omitempty"`
	Catalog      []Option          `json:"catalog,omitempty"`
	Defaults     []string          `json:"defaults,omitempty"`
	Errors       map[string]string `json:"errors,omitempty"`
	Placeholders map[string]string `json:"description_placeholders,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Entry        *Entry            `json:"result,omitempty"`
	Invalid      []string          `json:"invalid_entities,omitempty"`
}

type flowState struct {
	id      string
	kind    FlowKind
	entryID string
	step    string
	groupBy GroupBy
}

// Flows runs configuration flows for one integration domain.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Steps of the same flow
//     are serialised.
type Flows struct {
	domain        string
	allowMultiple bool
	entries       *Manager
	catalog       CatalogSource
	selections    Selections
	logger        Logger

	mu    sync.Mutex
	flows map[string]*flowState
}

// NewFlows creates a flow runner for domain.
func NewFlows(domain string, allowMultiple bool, entries *Manager, catalog CatalogSource, selections Selections) *Flows {
	return &Flows{
		domain:        domain,
		allowMultiple: allowMultiple,
		entries:       entries,
		catalog:       catalog,
		selections:    selections,
		logger:        noopLogger{},
		flows:         make(map[string]*flowState),
	}
}

// SetLogger sets the logger for the flow runner.
func (f *Flows) SetLogger(logger Logger) {
	f.logger = logger
}

// Start begins a flow and returns its first step.
//
// A user flow aborts with already_configured when an entry exists and
// multiple entries are not allowed. An options flow requires entryID.
func (f *Flows) Start(kind FlowKind, entryID string) (*FlowResult, error) {
	switch kind {
	case FlowUser:
		if !f.allowMultiple && len(f.entries.List(f.domain)) > 0 {
			return &FlowResult{
				FlowID:  uuid.NewString(),
				Handler: f.domain,
				Type:    ResultAbort,
				Reason:  ReasonAlreadyConfigured,
			}, nil
		}
		entryID = ""
	case FlowOptions:
		e, err := f.entries.Get(entryID)
		if err != nil {
			return nil, err
		}
		if e.Domain != f.domain {
			return nil, fmt.Errorf("%w: entry %s belongs to %s", ErrInvalidFlow, entryID, e.Domain)
		}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidFlow, kind)
	}

	st := &flowState{id: uuid.NewString(), kind: kind, entryID: entryID, step: StepGroup}
	f.mu.Lock()
	f.flows[st.id] = st
	f.mu.Unlock()

	f.logger.Debug("flow started", "flow_id", st.id, "kind", kind, "entry_id", entryID)
	return &FlowResult{
		FlowID:  st.id,
		Handler: f.domain,
		Type:    ResultForm,
		StepID:  StepGroup,
		Catalog: []Option{
			{Value: string(GroupNone), Label: "No grouping"},
			{Value: string(GroupDomain), Label: "Group by entity type"},
			{Value: string(GroupArea), Label: "Group by area"},
		},
	}, nil
}

// Submit feeds input to the current step of a flow.
func (f *Flows) Submit(ctx context.Context, flowID string, input FlowInput) (*FlowResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.flows[flowID]
	if !ok {
		return nil, ErrFlowNotFound
	}

	if st.step == StepGroup {
		groupBy, err := ParseGroupBy(input.GroupBy)
		if err != nil {
			return nil, err
		}
		st.groupBy = groupBy
		st.step = StepUser
		if st.kind == FlowOptions {
			st.step = StepInit
		}
		return f.pickerForm(st, nil), nil
	}

	return f.finish(ctx, st, input)
}

// Abort discards a flow.
func (f *Flows) Abort(flowID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.flows[flowID]; !ok {
		return ErrFlowNotFound
	}
	delete(f.flows, flowID)
	return nil
}

// Len returns the number of flows in progress.
func (f *Flows) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flows)
}

func (f *Flows) pickerForm(st *flowState, errs map[string]string) *FlowResult {
	catalog := Catalog(f.catalog, st.groupBy)
	count := selectable(catalog)

	if errs == nil {
		errs = map[string]string{}
	}
	if count == 0 {
		errs["base"] = ErrorNoEntities
	}

	res := &FlowResult{
		FlowID:       st.id,
		Handler:      f.domain,
		Type:         ResultForm,
		StepID:       st.step,
		GroupBy:      st.groupBy,
		Catalog:      catalog,
		Defaults:     []string{},
		Errors:       errs,
		Placeholders: map[string]string{"entity_count": strconv.Itoa(count)},
	}
	if st.kind == FlowOptions {
		res.Defaults = f.selections.Selection(st.entryID)
		res.Placeholders["selected_count"] = strconv.Itoa(len(res.Defaults))
	}
	return res
}

func (f *Flows) finish(ctx context.Context, st *flowState, input FlowInput) (*FlowResult, error) {
	valid, invalid := f.selections.Validate(StripHeaders(input.Entities))
	if len(invalid) > 0 {
		f.logger.Warn("flow dropped unresolvable entities", "flow_id", st.id, "invalid", invalid)
	}

	var entry *Entry
	switch st.kind {
	case FlowUser:
		e, err := f.entries.Create(ctx, f.domain, DefaultTitle, EntryData{Entities: valid})
		if err != nil {
			f.logger.Error("creating config entry failed", "flow_id", st.id, "error", err)
			return f.pickerForm(st, map[string]string{"base": ErrorUnknown}), nil
		}
		entry = e
	case FlowOptions:
		if err := f.selections.Commit(ctx, st.entryID, valid); err != nil {
			f.logger.Error("committing selection failed", "flow_id", st.id, "entry_id", st.entryID, "error", err)
			return f.pickerForm(st, map[string]string{"base": ErrorUnknown}), nil
		}
		e, err := f.entries.UpdateOptions(ctx, st.entryID, EntryData{Entities: valid})
		if err != nil {
			f.logger.Error("updating config entry failed", "flow_id", st.id, "entry_id", st.entryID, "error", err)
			return f.pickerForm(st, map[string]string{"base": ErrorUnknown}), nil
		}
		entry = e
	}

	delete(f.flows, st.id)
	f.logger.Info("flow finished", "flow_id", st.id, "kind", st.kind, "entry_id", entry.ID, "entities", len(valid))
	return &FlowResult{
		FlowID:  st.id,
		Handler: f.domain,
		Type:    ResultCreateEntry,
		Entry:   entry,
		Invalid: invalid,
	}, nil
}
