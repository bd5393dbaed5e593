package metadata

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.uber.org/zap"
)

// ColumnFunc computes a derived column value from the assembled record.
// The record maps field names to their projected values.
type ColumnFunc func(record map[string]any) any

// ColumnConfig selects or derives one displayed column. A config with
// Compute or Expr set is a computed column; Expr strings are compiled
// with expr-lang against the record map when the table is registered.
type ColumnConfig struct {
	Field       string     `json:"field"`
	DisplayName string     `json:"display_name,omitempty"`
	Expr        string     `json:"expr,omitempty"`
	Compute     ColumnFunc `json:"-"`
}

// IsComputed reports whether the column is derived rather than stored.
func (c *ColumnConfig) IsComputed() bool {
	return c.Compute != nil || c.Expr != ""
}

// TableConfig customizes how one entity's table is presented: display
// name, default sort, and an optional explicit column list. When
// Columns is empty the display set is derived from the entity's
// attributes, and Computed columns are appended to it.
type TableConfig struct {
	Entity            string         `json:"entity"`
	DisplayName       string         `json:"display_name,omitempty"`
	DefaultSortField  string         `json:"default_sort_field,omitempty"`
	DefaultSortOrder  string         `json:"default_sort_order,omitempty"`
	DefaultNullsFirst bool           `json:"default_nulls_first,omitempty"`
	Columns           []ColumnConfig `json:"columns,omitempty"`
	Computed          []ColumnConfig `json:"computed,omitempty"`
}

// compilePrograms turns Expr strings into Compute funcs. A column that
// fails to compile keeps a nil Compute and projects as null; the bad
// expression is reported once here instead of on every record.
func (t *TableConfig) compilePrograms(log *zap.Logger) {
	for i := range t.Columns {
		compileColumn(&t.Columns[i], t.Entity, log)
	}
	for i := range t.Computed {
		compileColumn(&t.Computed[i], t.Entity, log)
	}
}

func compileColumn(c *ColumnConfig, entity string, log *zap.Logger) {
	if c.Expr == "" || c.Compute != nil {
		return
	}
	program, err := expr.Compile(c.Expr, expr.AllowUndefinedVariables())
	if err != nil {
		log.Warn("computed column failed to compile",
			zap.String("entity", entity),
			zap.String("field", c.Field),
			zap.Error(err))
		return
	}
	c.Compute = exprFunc(program)
}

func exprFunc(program *vm.Program) ColumnFunc {
	return func(record map[string]any) any {
		out, err := expr.Run(program, record)
		if err != nil {
			return nil
		}
		return out
	}
}
