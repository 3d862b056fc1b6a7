package integration

import (
	"context"

	"github.com/nerrad567/couch-control/internal/configentry"
	"github.com/nerrad567/couch-control/internal/entity"
	"github.com/nerrad567/couch-control/internal/events"
	"github.com/nerrad567/couch-control/internal/selection"
)

// Instance is one running config entry.
type Instance struct {
	entry    configentry.Entry
	cache    *selection.Cache
	filter   *selection.Filter
	store    *selection.Store
	writer   *selection.Writer
	mutator  *selection.Mutator
	listener *events.Subscription[configentry.Change]
}

// EntryID returns the config entry ID.
func (i *Instance) EntryID() string {
	return i.entry.ID
}

// Entry returns a copy of the config entry the instance was set up from.
func (i *Instance) Entry() configentry.Entry {
	return *i.entry.Clone()
}

// Mutator returns the instance's mutation path.
func (i *Instance) Mutator() *selection.Mutator {
	return i.mutator
}

// Selection returns a copy of the current selection.
func (i *Instance) Selection() []string {
	return i.cache.Get()
}

// Flush waits until the latest selection has been written to the store.
func (i *Instance) Flush(ctx context.Context) error {
	return i.writer.Flush(ctx)
}

// Len returns the number of selected entities.
func (i *Instance) Len() int {
	return i.cache.Len()
}

// Project returns the live states of the selected entities in selection
// order, dropping those without a state.
func (i *Instance) Project(states func(id string) (*entity.State, bool)) []entity.State {
	return i.filter.ProjectLookup(states)
}
