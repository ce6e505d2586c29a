package registry

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/reportengine/internal/domain"
)

const dateLayout = "2006-01-02"

// Scalar passes the value through as a single argument.
func Scalar(value any) []any {
	return []any{value}
}

// Contains wraps the value in SQL wildcards and repeats it n times, for
// fragments that search several columns with the same term.
func Contains(n int) domain.FilterMapper {
	return func(value any) []any {
		pattern := "%" + strings.TrimSpace(domain.DisplayString(value)) + "%"
		args := make([]any, n)
		for i := range args {
			args[i] = pattern
		}
		return args
	}
}

// Bool parses "true"/"false"/"1"/"0" style values. Unparseable input is
// passed through so the store reports the type error.
func Bool(value any) []any {
	switch v := value.(type) {
	case bool:
		return []any{v}
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return []any{parsed}
		}
	case int:
		return []any{v != 0}
	case float64:
		return []any{v != 0}
	}
	return []any{value}
}

// DayStart parses a YYYY-MM-DD value as the start of that day in loc.
func DayStart(loc *time.Location) domain.FilterMapper {
	return func(value any) []any {
		if day, ok := parseDay(value, loc); ok {
			return []any{day}
		}
		return []any{value}
	}
}

// DayEnd parses a YYYY-MM-DD value as the start of the following day in loc,
// for use with an exclusive upper bound.
func DayEnd(loc *time.Location) domain.FilterMapper {
	return func(value any) []any {
		if day, ok := parseDay(value, loc); ok {
			return []any{day.AddDate(0, 0, 1)}
		}
		return []any{value}
	}
}

func parseDay(value any, loc *time.Location) (time.Time, bool) {
	raw, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// Field returns the raw value stored under name.
func Field(name string) domain.ColumnFunc {
	return func(row domain.Row) any {
		return row[name]
	}
}

// FieldOr returns the value under name, or fallback when it is absent or empty.
func FieldOr(name, fallback string) domain.ColumnFunc {
	return func(row domain.Row) any {
		value, ok := row[name]
		if !ok || value == nil {
			return fallback
		}
		if s, isString := value.(string); isString && strings.TrimSpace(s) == "" {
			return fallback
		}
		return value
	}
}

// TimeField formats a time column in loc using layout.
func TimeField(name, layout string, loc *time.Location) domain.ColumnFunc {
	return func(row domain.Row) any {
		switch v := row[name].(type) {
		case time.Time:
			return v.In(loc).Format(layout)
		case *time.Time:
			if v == nil {
				return ""
			}
			return v.In(loc).Format(layout)
		case nil:
			return ""
		default:
			return domain.DisplayString(v)
		}
	}
}

// BoolField renders a boolean column with the given labels.
func BoolField(name, yes, no string) domain.ColumnFunc {
	return func(row domain.Row) any {
		switch v := row[name].(type) {
		case bool:
			if v {
				return yes
			}
			return no
		case nil:
			return no
		default:
			return fmt.Sprint(v)
		}
	}
}
