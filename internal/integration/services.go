package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/couch-control/internal/schema"
	"github.com/nerrad567/couch-control/internal/service"
)

// Service names registered under Domain.
const (
	ServiceAddEntity    = "add_entity"
	ServiceRemoveEntity = "remove_entity"
	ServiceSetEntities  = "set_entities"
)

type entityCall struct {
	EntityID string `json:"entity_id"`
	EntryID  string `json:"entry_id"`
}

type setEntitiesCall struct {
	Entities []string `json:"entities"`
	EntryID  string   `json:"entry_id"`
}

// registerServices registers all services or none.
func (m *Manager) registerServices() error {
	handlers := []struct {
		name string
		h    service.Handler
	}{
		{ServiceAddEntity, m.handleAddEntity},
		{ServiceRemoveEntity, m.handleRemoveEntity},
		{ServiceSetEntities, m.handleSetEntities},
	}

	for i, s := range handlers {
		if err := m.services.Register(Domain, s.name, s.h); err != nil {
			for _, done := range handlers[:i] {
				m.services.Remove(Domain, done.name)
			}
			return fmt.Errorf("registering %s.%s: %w", Domain, s.name, err)
		}
	}
	m.logger.Debug("services registered", "domain", Domain)
	return nil
}

func (m *Manager) removeServices() {
	for _, name := range []string{ServiceAddEntity, ServiceRemoveEntity, ServiceSetEntities} {
		if !m.services.Remove(Domain, name) {
			m.logger.Warn("service was not registered", "service", Domain+"."+name)
		}
	}
	m.logger.Debug("services removed", "domain", Domain)
}

func (m *Manager) decodeCall(name string, call service.Call, dst any) error {
	if err := m.schema.Decode(name, call.Data, dst); err != nil {
		return fmt.Errorf("%w: %w", service.ErrInvalidCall, err)
	}
	return nil
}

func (m *Manager) handleAddEntity(_ context.Context, call service.Call) (any, error) {
	var req entityCall
	if err := m.decodeCall(schema.EntityCall, call, &req); err != nil {
		return nil, err
	}
	inst, err := m.Lookup(req.EntryID)
	if err != nil {
		return nil, err
	}
	res := inst.mutator.Add(req.EntityID)
	if len(res.Invalid) > 0 {
		m.logger.Warn("entity does not exist", "entity_id", req.EntityID)
	}
	return res, nil
}

func (m *Manager) handleRemoveEntity(_ context.Context, call service.Call) (any, error) {
	var req entityCall
	if err := m.decodeCall(schema.EntityCall, call, &req); err != nil {
		return nil, err
	}
	inst, err := m.Lookup(req.EntryID)
	if err != nil {
		return nil, err
	}
	return inst.mutator.Remove(req.EntityID), nil
}

func (m *Manager) handleSetEntities(_ context.Context, call service.Call) (any, error) {
	var req setEntitiesCall
	if err := m.decodeCall(schema.SetEntitiesCall, call, &req); err != nil {
		return nil, err
	}
	inst, err := m.Lookup(req.EntryID)
	if err != nil {
		return nil, err
	}
	return inst.mutator.Replace(req.Entities), nil
}

// IsRequestError reports whether err should be answered as a client error.
func IsRequestError(err error) bool {
	return errors.Is(err, service.ErrInvalidCall) ||
		errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrEntryNotLoaded)
}
