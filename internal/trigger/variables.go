package trigger

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/relayline/frontdesk/pkg/store"
)

// varPattern matches {name} placeholders in answer text.
var varPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Substitute replaces {name} placeholders in text with values from vars.
// Lookup is case-insensitive on the placeholder name; unknown placeholders
// are left untouched so that a missing variable is visible in audit logs
// rather than silently dropped.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	return varPattern.ReplaceAllStringFunc(text, func(m string) string {
		name := strings.ToLower(m[1 : len(m)-1])
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

// VarCache is the shared read-mostly trigger-variable cache, keyed by
// company ID. Loads go through a singleflight group so that concurrent
// first uses of a company trigger exactly one store read (the pending-load
// latch from the concurrency model). Entries are invalidated when the
// config version moves.
//
// All methods are safe for concurrent use.
type VarCache struct {
	store store.VariableStore

	mu      sync.RWMutex
	entries map[string]varEntry
	group   singleflight.Group
}

// varEntry pins a loaded variable map to the config version it was loaded
// under.
type varEntry struct {
	version int64
	vars    map[string]string
}

// NewVarCache creates a cache backed by s. A nil store is valid: Get then
// returns only the defaults passed in.
func NewVarCache(s store.VariableStore) *VarCache {
	return &VarCache{
		store:   s,
		entries: make(map[string]varEntry),
	}
}

// Get returns the merged variable map for companyID at the given config
// version: store values layered over defaults. The store is consulted at
// most once per (company, version); concurrent callers share one load.
func (c *VarCache) Get(ctx context.Context, companyID string, version int64, defaults map[string]string) (map[string]string, error) {
	if c.store == nil {
		return lowerKeys(defaults), nil
	}

	c.mu.RLock()
	e, ok := c.entries[companyID]
	c.mu.RUnlock()

	if !ok || e.version != version {
		key := fmt.Sprintf("%s@%d", companyID, version)
		v, err, _ := c.group.Do(key, func() (any, error) {
			loaded, err := c.store.Load(ctx, companyID)
			if err != nil {
				return nil, err
			}
			ne := varEntry{version: version, vars: lowerKeys(loaded)}
			c.mu.Lock()
			c.entries[companyID] = ne
			c.mu.Unlock()
			return ne, nil
		})
		if err != nil {
			return nil, fmt.Errorf("trigger: load variables for %q: %w", companyID, err)
		}
		e = v.(varEntry)
	}

	merged := lowerKeys(defaults)
	for k, v := range e.vars {
		merged[k] = v
	}
	return merged, nil
}

// Invalidate drops the cached entry for companyID.
func (c *VarCache) Invalidate(companyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, companyID)
}

// lowerKeys returns a copy of m with lowercased keys. Never returns nil.
func lowerKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}
