// Package registry holds the process-wide set of report definitions.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rpattn/reportengine/internal/domain"
)

// Registry maps entity keys to their definitions. It is built once at startup
// and never mutated, so it is safe for concurrent use.
type Registry struct {
	defs map[string]*domain.EntityDefinition
}

// New validates and registers defs.
func New(defs ...domain.EntityDefinition) (*Registry, error) {
	r := &Registry{defs: make(map[string]*domain.EntityDefinition, len(defs))}
	for i := range defs {
		def := defs[i]
		if err := Validate(def); err != nil {
			return nil, err
		}
		if _, exists := r.defs[def.Key]; exists {
			return nil, fmt.Errorf("entity %q registered twice", def.Key)
		}
		r.defs[def.Key] = &def
	}
	return r, nil
}

// Lookup returns the definition registered under key.
func (r *Registry) Lookup(key string) (*domain.EntityDefinition, error) {
	def, ok := r.defs[strings.TrimSpace(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEntity, key)
	}
	return def, nil
}

// Keys returns the registered keys in lexical order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.defs))
	for key := range r.defs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the structural invariants of a definition.
func Validate(def domain.EntityDefinition) error {
	if strings.TrimSpace(def.Key) == "" {
		return errors.New("entity key is required")
	}
	if strings.TrimSpace(def.BaseQuery) == "" {
		return fmt.Errorf("entity %q: base query is required", def.Key)
	}
	if strings.Contains(def.BaseQuery, "?") {
		return fmt.Errorf("entity %q: base query must not contain placeholders", def.Key)
	}
	if strings.Contains(def.OrderBy, "?") {
		return fmt.Errorf("entity %q: order clause must not contain placeholders", def.Key)
	}
	if strings.TrimSpace(def.RBAC.Perm) == "" {
		return fmt.Errorf("entity %q: permission is required", def.Key)
	}
	table := def.Table
	if len(table.Headers) != len(table.Columns) || len(table.Headers) != len(table.Widths) {
		return fmt.Errorf("entity %q: table has %d headers, %d columns and %d widths",
			def.Key, len(table.Headers), len(table.Columns), len(table.Widths))
	}
	for i, column := range table.Columns {
		if column == nil {
			return fmt.Errorf("entity %q: column %d has no extractor", def.Key, i)
		}
	}
	seen := make(map[string]struct{}, len(def.Filters))
	for _, rule := range def.Filters {
		if strings.TrimSpace(rule.Name) == "" {
			return fmt.Errorf("entity %q: filter name is required", def.Key)
		}
		if _, dup := seen[rule.Name]; dup {
			return fmt.Errorf("entity %q: filter %q declared twice", def.Key, rule.Name)
		}
		seen[rule.Name] = struct{}{}
		if rule.Map == nil {
			return fmt.Errorf("entity %q: filter %q has no mapper", def.Key, rule.Name)
		}
	}
	return nil
}
