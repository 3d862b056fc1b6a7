package configentry

import (
	"slices"
	"time"
)

// EntryData is the typed payload of a config entry. Unknown fields are
// rejected when decoding from the API.
type EntryData struct {
	Entities []string `json:"entities"`
}

// Clone returns a deep copy.
func (d EntryData) Clone() EntryData {
	return EntryData{Entities: slices.Clone(d.Entities)}
}

// Entry is one configured instance of an integration.
type Entry struct {
	ID        string    `json:"entry_id"`
	Domain    string    `json:"domain"`
	Title     string    `json:"title"`
	Version   int       `json:"version"`
	Data      EntryData `json:"data"`
	Options   EntryData `json:"options"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Data = e.Data.Clone()
	c.Options = e.Options.Clone()
	return &c
}

// ChangeKind describes what happened to an entry.
type ChangeKind string

// Change kinds published by the Manager.
const (
	ChangeAdded   ChangeKind = "added"
	ChangeUpdated ChangeKind = "updated"
	ChangeRemoved ChangeKind = "removed"
)

// Change is published on the Manager's bus after an entry is persisted.
type Change struct {
	Kind  ChangeKind
	Entry Entry
}

// EntryVersion is the schema version written to new entries.
const EntryVersion = 1
