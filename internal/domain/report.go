package domain

// Row is a single record returned by an entity's base query. Its shape is
// specific to the entity; only the entity's column functions read it.
type Row map[string]any

// FilterPayload maps filter names to caller supplied values. Values are
// strings, numbers, booleans or nil.
type FilterPayload map[string]any

// FilterMapper turns a supplied filter value into one or more positional
// query arguments.
type FilterMapper func(value any) []any

// ColumnFunc extracts a single cell from a row. Any placeholder for missing
// values is the column's own responsibility.
type ColumnFunc func(row Row) any

// FilterRule is an optional query refinement. Fragment is appended verbatim
// and uses '?' for each argument produced by Map.
type FilterRule struct {
	Name     string
	Fragment string
	Map      FilterMapper
}

// TableLayout describes how rows are projected into cells. Headers, Columns
// and Widths are parallel slices.
type TableLayout struct {
	Headers []string
	Columns []ColumnFunc
	Widths  []float64
}

// RBAC names the permission a principal needs to run a report.
type RBAC struct {
	Perm string
}

// EntityDefinition is the registered, read-only description of a report.
type EntityDefinition struct {
	Key       string
	Title     string
	BaseQuery string
	// Filters are evaluated in declaration order.
	Filters []FilterRule
	OrderBy string
	Table   TableLayout
	RBAC    RBAC
}

// Filter returns the rule declared under name.
func (d *EntityDefinition) Filter(name string) (FilterRule, bool) {
	for _, rule := range d.Filters {
		if rule.Name == name {
			return rule, true
		}
	}
	return FilterRule{}, false
}

// BuiltQuery is a parameterized query ready for execution.
type BuiltQuery struct {
	SQL  string
	Args []any
	Def  *EntityDefinition
}

// Table is a projected result set shared by the tabular exporters.
type Table struct {
	Title   string
	Headers []string
	Widths  []float64
	Rows    [][]any
}

// Project runs every column function against every row, in header order.
func (l TableLayout) Project(rows []Row) [][]any {
	cells := make([][]any, 0, len(rows))
	for _, row := range rows {
		projected := make([]any, len(l.Columns))
		for i, column := range l.Columns {
			projected[i] = column(row)
		}
		cells = append(cells, projected)
	}
	return cells
}

// TableFor projects rows through def's layout.
func TableFor(def *EntityDefinition, rows []Row) Table {
	return Table{
		Title:   def.Title,
		Headers: append([]string(nil), def.Table.Headers...),
		Widths:  append([]float64(nil), def.Table.Widths...),
		Rows:    def.Table.Project(rows),
	}
}
