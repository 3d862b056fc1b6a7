// Package schema validates request bodies against embedded JSON Schemas.
//
// Every schema sets additionalProperties to false, so unknown fields are
// rejected at the boundary instead of being silently ignored.
package schema

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema names.
const (
	EntitiesUpdate   = "entities_update"
	EntityCall       = "entity_call"
	SetEntitiesCall  = "set_entities_call"
	StateWrite       = "state_write"
	RegistryEntry    = "registry_entry"
	Area             = "area"
	FlowStart        = "flow_start"
	FlowInput        = "flow_input"
	WSUpdateEntities = "ws_update_entities"
)

var (
	// ErrInvalidJSON is returned when the document is not JSON.
	ErrInvalidJSON = errors.New("schema: invalid JSON")

	// ErrInvalidDocument is returned when the document fails its schema.
	ErrInvalidDocument = errors.New("schema: invalid data")

	// ErrUnknownSchema is returned for a name with no embedded schema.
	ErrUnknownSchema = errors.New("schema: unknown schema")
)

// ValidationError lists every schema violation of one document.
type ValidationError struct {
	Schema  string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid data: %s", strings.Join(e.Details, "; "))
}

// Unwrap lets callers test with errors.Is(err, ErrInvalidDocument).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidDocument
}

// Validator holds the compiled schemas.
//
// Thread Safety:
//   - Safe for concurrent use after New returns.
type Validator struct {
	schemas map[string]*gojsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("reading schemas: %w", err)
	}

	v := &Validator{schemas: make(map[string]*gojsonschema.Schema, len(entries))}
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading schema %s: %w", entry.Name(), err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("compiling schema %s: %w", entry.Name(), err)
		}
		v.schemas[strings.TrimSuffix(entry.Name(), ".json")] = compiled
	}
	return v, nil
}

// MustNew is New for package initialisation; it panics on a broken schema.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Names returns the loaded schema names, sorted.
func (v *Validator) Names() []string {
	names := make([]string, 0, len(v.schemas))
	for n := range v.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks raw JSON bytes against the named schema.
func (v *Validator) Validate(name string, data []byte) error {
	if !json.Valid(data) {
		return ErrInvalidJSON
	}
	return v.validate(name, gojsonschema.NewBytesLoader(data))
}

// Decode validates data and then unmarshals it into dst.
func (v *Validator) Decode(name string, data []byte, dst any) error {
	if err := v.Validate(name, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return nil
}

func (v *Validator) validate(name string, doc gojsonschema.JSONLoader) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	result, err := s.Validate(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &ValidationError{Schema: name, Details: details}
}
