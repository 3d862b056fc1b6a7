package selection

import (
	"encoding/json"
	"fmt"
)

// StorageVersion pins the on-disk Record schema.
const StorageVersion = 1

// storageKeyPrefix namespaces selection records in the shared storage.
const storageKeyPrefix = "couch_control"

// Record is the persisted selection envelope.
type Record struct {
	Version  int      `json:"version"`
	Entities []string `json:"entities"`
}

// StorageKey returns the storage key for a config entry's selection.
// An empty entry ID yields the legacy single-instance key.
func StorageKey(entryID string) string {
	if entryID == "" {
		return storageKeyPrefix
	}
	return storageKeyPrefix + "." + entryID
}

// NewRecord wraps a selection at the current version.
func NewRecord(entities []string) Record {
	out := make([]string, len(entities))
	copy(out, entities)
	return Record{Version: StorageVersion, Entities: out}
}

// Encode serialises the record.
func (r Record) Encode() ([]byte, error) {
	if r.Entities == nil {
		r.Entities = []string{}
	}
	return json.Marshal(r)
}

// DecodeRecord parses stored bytes.
//
// Returns ErrCorruptRecord for bytes that are not a record and
// ErrVersionMismatch for a record written by another schema version.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if r.Version != StorageVersion {
		return Record{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, r.Version, StorageVersion)
	}
	if r.Entities == nil {
		r.Entities = []string{}
	}
	return r, nil
}
