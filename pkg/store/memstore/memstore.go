// Package memstore provides in-memory implementations of the pkg/store
// interfaces for tests and single-node development. All types are safe
// for concurrent use.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayline/frontdesk/internal/config"
	"github.com/relayline/frontdesk/internal/event"
	"github.com/relayline/frontdesk/pkg/store"
)

var (
	_ store.ConfigStore   = (*ConfigStore)(nil)
	_ store.EventSink     = (*EventSink)(nil)
	_ store.UsageLogger   = (*UsageLogger)(nil)
	_ store.VariableStore = (*VariableStore)(nil)
)

// ConfigStore serves configs from a map.
type ConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*config.CompanyConfig
}

// NewConfigStore builds an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{configs: make(map[string]*config.CompanyConfig)}
}

// Put registers a company's resolved bundle.
func (s *ConfigStore) Put(companyID string, cfg *config.CompanyConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[companyID] = cfg
}

// Load implements store.ConfigStore.
func (s *ConfigStore) Load(ctx context.Context, companyID string) (*config.CompanyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[companyID]
	if !ok {
		return nil, fmt.Errorf("memstore: config for company %q: %w", companyID, store.ErrNotFound)
	}
	return cfg, nil
}

// EventSink appends all written events to a slice.
type EventSink struct {
	mu     sync.Mutex
	events []event.Event

	// Err, when set, is returned by Write. Lets tests verify that a
	// failing sink never affects a turn.
	Err error
}

// Write implements store.EventSink.
func (s *EventSink) Write(ctx context.Context, events []event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything written so far.
func (s *EventSink) Events() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// ByType returns written events of one type.
func (s *EventSink) ByType(t event.Type) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []event.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// UsageLogger appends usage records to a slice.
type UsageLogger struct {
	mu      sync.Mutex
	records []store.UsageRecord
}

// Log implements store.UsageLogger.
func (l *UsageLogger) Log(ctx context.Context, rec store.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of all logged records.
func (l *UsageLogger) Records() []store.UsageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]store.UsageRecord, len(l.records))
	copy(out, l.records)
	return out
}

// VariableStore serves trigger variables from a map.
type VariableStore struct {
	mu   sync.RWMutex
	vars map[string]map[string]string

	// LoadCount counts Load calls, for cache tests.
	LoadCount int
}

// NewVariableStore builds an empty VariableStore.
func NewVariableStore() *VariableStore {
	return &VariableStore{vars: make(map[string]map[string]string)}
}

// Put sets one variable for a company.
func (s *VariableStore) Put(companyID, name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vars[companyID] == nil {
		s.vars[companyID] = make(map[string]string)
	}
	s.vars[companyID][name] = value
}

// Load implements store.VariableStore.
func (s *VariableStore) Load(ctx context.Context, companyID string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LoadCount++
	out := make(map[string]string, len(s.vars[companyID]))
	for k, v := range s.vars[companyID] {
		out[k] = v
	}
	return out, nil
}
