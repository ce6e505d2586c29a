// Package query turns an entity definition and a filter payload into a
// parameterized SQL statement.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rpattn/reportengine/internal/domain"
)

// ErrPlaceholderMismatch is returned when a filter fragment declares a
// different number of placeholders than its mapper produced arguments.
var ErrPlaceholderMismatch = errors.New("placeholder count does not match argument count")

// Dialect selects the positional placeholder syntax.
type Dialect int

const (
	// Postgres numbers placeholders as $1, $2, ...
	Postgres Dialect = iota
	// MySQL keeps '?' placeholders.
	MySQL
)

// ParseDialect maps a database driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return 0, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Lookup resolves entity keys to definitions.
type Lookup interface {
	Lookup(key string) (*domain.EntityDefinition, error)
}

// Builder assembles report queries.
type Builder struct {
	entities Lookup
	dialect  Dialect
}

// NewBuilder returns a builder emitting placeholders for dialect.
func NewBuilder(entities Lookup, dialect Dialect) *Builder {
	return &Builder{entities: entities, dialect: dialect}
}

// Build resolves key and applies every supplied filter in the definition's
// declared order, followed by the ordering clause.
func (b *Builder) Build(key string, payload domain.FilterPayload) (domain.BuiltQuery, error) {
	def, err := b.entities.Lookup(key)
	if err != nil {
		return domain.BuiltQuery{}, err
	}
	return b.BuildFor(def, payload)
}

// BuildFor builds the query for an already resolved definition.
func (b *Builder) BuildFor(def *domain.EntityDefinition, payload domain.FilterPayload) (domain.BuiltQuery, error) {
	var sql strings.Builder
	sql.WriteString(strings.TrimSpace(def.BaseQuery))
	args := make([]any, 0, len(def.Filters))

	for _, rule := range def.Filters {
		value, ok := payload[rule.Name]
		if !Supplied(value, ok) {
			continue
		}
		ruleArgs := rule.Map(value)
		if want := strings.Count(rule.Fragment, "?"); want != len(ruleArgs) {
			return domain.BuiltQuery{}, fmt.Errorf("%w: entity %q filter %q has %d placeholders and %d arguments",
				ErrPlaceholderMismatch, def.Key, rule.Name, want, len(ruleArgs))
		}
		sql.WriteByte(' ')
		sql.WriteString(b.rebind(strings.TrimSpace(rule.Fragment), len(args)))
		args = append(args, ruleArgs...)
	}

	if orderBy := strings.TrimSpace(def.OrderBy); orderBy != "" {
		sql.WriteByte(' ')
		sql.WriteString(orderBy)
	}

	return domain.BuiltQuery{SQL: sql.String(), Args: args, Def: def}, nil
}

// Supplied reports whether a payload value counts as given. Only absent keys,
// nil and the empty string are treated as omitted; 0 and false are supplied.
func Supplied(value any, present bool) bool {
	if !present || value == nil {
		return false
	}
	if s, ok := value.(string); ok && s == "" {
		return false
	}
	return true
}

// rebind rewrites '?' placeholders in fragment for the builder's dialect.
// offset is the number of arguments already bound.
func (b *Builder) rebind(fragment string, offset int) string {
	if b.dialect != Postgres || !strings.Contains(fragment, "?") {
		return fragment
	}
	var out strings.Builder
	out.Grow(len(fragment) + 4)
	n := offset
	for _, r := range fragment {
		if r == '?' {
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// CountPlaceholders returns the number of positional placeholders in sql for
// the given dialect.
func CountPlaceholders(sql string, dialect Dialect) int {
	if dialect == MySQL {
		return strings.Count(sql, "?")
	}
	count := 0
	for i := 0; i < len(sql)-1; i++ {
		if sql[i] == '$' && sql[i+1] >= '0' && sql[i+1] <= '9' {
			count++
		}
	}
	return count
}
