package registry

import (
	"time"

	"github.com/rpattn/reportengine/internal/domain"
)

const displayTimeLayout = "02/01/2006 15:04"

// Default returns the registry of built-in reports. Timestamps are filtered
// and displayed in loc.
func Default(loc *time.Location) (*Registry, error) {
	if loc == nil {
		loc = time.UTC
	}
	return New(LogsEntity(loc), UsersEntity(loc))
}

// LogsEntity is the activity log report.
func LogsEntity(loc *time.Location) domain.EntityDefinition {
	return domain.EntityDefinition{
		Key:   "logs",
		Title: "דוח יומן פעילות",
		BaseQuery: `SELECT l.id, l.created_at, l.action, l.subject, l.details, u.full_name AS user_name
FROM logs l
LEFT JOIN users u ON u.id = l.user_id
WHERE 1=1`,
		Filters: []domain.FilterRule{
			{Name: "from", Fragment: "AND l.created_at >= ?", Map: DayStart(loc)},
			{Name: "to", Fragment: "AND l.created_at < ?", Map: DayEnd(loc)},
			{Name: "subject", Fragment: "AND l.subject = ?", Map: Scalar},
			{Name: "user_id", Fragment: "AND l.user_id = ?", Map: Scalar},
			{
				Name:     "q",
				Fragment: "AND (LOWER(l.action) LIKE LOWER(?) OR LOWER(l.subject) LIKE LOWER(?) OR LOWER(l.details) LIKE LOWER(?))",
				Map:      Contains(3),
			},
		},
		OrderBy: "ORDER BY l.created_at DESC",
		Table: domain.TableLayout{
			Headers: []string{"תאריך", "משתמש", "פעולה", "נושא", "פרטים"},
			Columns: []domain.ColumnFunc{
				TimeField("created_at", displayTimeLayout, loc),
				FieldOr("user_name", "מערכת"),
				FieldOr("action", "-"),
				FieldOr("subject", "-"),
				FieldOr("details", ""),
			},
			Widths: []float64{18, 18, 16, 16, 32},
		},
		RBAC: domain.RBAC{Perm: "reports.logs"},
	}
}

// UsersEntity is the user directory report.
func UsersEntity(loc *time.Location) domain.EntityDefinition {
	return domain.EntityDefinition{
		Key:   "users",
		Title: "דוח משתמשים",
		BaseQuery: `SELECT u.id, u.full_name, u.email, u.role, u.active, u.created_at
FROM users u
WHERE 1=1`,
		Filters: []domain.FilterRule{
			{Name: "role", Fragment: "AND u.role = ?", Map: Scalar},
			{Name: "active", Fragment: "AND u.active = ?", Map: Bool},
			{
				Name:     "q",
				Fragment: "AND (LOWER(u.full_name) LIKE LOWER(?) OR LOWER(u.email) LIKE LOWER(?))",
				Map:      Contains(2),
			},
		},
		OrderBy: "ORDER BY u.full_name ASC",
		Table: domain.TableLayout{
			Headers: []string{"שם מלא", "דוא\"ל", "תפקיד", "פעיל", "נוצר"},
			Columns: []domain.ColumnFunc{
				FieldOr("full_name", "-"),
				FieldOr("email", "-"),
				FieldOr("role", "-"),
				BoolField("active", "כן", "לא"),
				TimeField("created_at", displayTimeLayout, loc),
			},
			Widths: []float64{24, 28, 16, 10, 22},
		},
		RBAC: domain.RBAC{Perm: "reports.users"},
	}
}
