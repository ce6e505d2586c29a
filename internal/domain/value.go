package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// DisplayTimeLayout is used for time values without a column specific format.
const DisplayTimeLayout = "2006-01-02 15:04:05"

// DisplayString formats a cell value for human readable output.
func DisplayString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case time.Time:
		return v.Format(DisplayTimeLayout)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.Format(DisplayTimeLayout)
	case fmt.Stringer:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// IsScalar reports whether value can be stored in a spreadsheet cell as is.
func IsScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, time.Time,
		float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}
