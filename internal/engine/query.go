package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"dbadmin/internal/codec"
	"dbadmin/internal/metadata"
	"dbadmin/internal/store"
)

const (
	defaultSortOrder = "DESC"
	sortAsc          = "ASC"
	sortDesc         = "DESC"
)

type PageRequest struct {
	Filters    []FilterClause
	Page       int
	Size       int
	SortField  string
	SortOrder  string
	NullsFirst bool
	// SortSupplied distinguishes an explicit sort request from the
	// table-default path.
	SortSupplied bool
}

type PageResult struct {
	Rows       []map[string]any
	Total      int64
	TotalPages int
	SortField  string
	SortOrder  string
	NullsFirst bool
}

// QueryExecutor builds and runs the page and count queries for one
// table. Every column reference is table-qualified because joined
// hierarchies add LEFT JOINs to the base table.
type QueryExecutor struct {
	db         *store.DB
	reg        *metadata.Registry
	translator *PredicateTranslator
	log        *zap.Logger
}

func NewQueryExecutor(db *store.DB, reg *metadata.Registry, translator *PredicateTranslator, log *zap.Logger) *QueryExecutor {
	return &QueryExecutor{db: db, reg: reg, translator: translator, log: log}
}

// Page runs the filtered, sorted, paginated select plus the count query
// sharing the same filter conjunction.
func (e *QueryExecutor) Page(ctx context.Context, model *FieldModel, req PageRequest) (*PageResult, error) {
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Page < 0 {
		req.Page = 0
	}

	conds := e.conditions(model, req.Filters)
	sortField, sortOrder, nullsFirst := e.resolveSort(model, req)

	sel := e.baseSelect(model, e.selectColumns(model)...)
	for _, c := range conds {
		sel = sel.Where(c)
	}
	if sortField != "" {
		sel = sel.OrderBy(orderClause(model.Columns[sortField], sortOrder, nullsFirst))
	}
	sel = sel.Offset(uint64(req.Page) * uint64(req.Size)).Limit(uint64(req.Size))

	sql, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select for %s: %w", model.Entity.Name, err)
	}
	var rows []map[string]any
	if err := store.Select(ctx, e.db.Pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list %s: %w", model.Entity.Name, err)
	}

	count := e.baseSelect(model, "COUNT(*)")
	for _, c := range conds {
		count = count.Where(c)
	}
	csql, cargs, err := count.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count for %s: %w", model.Entity.Name, err)
	}
	var total int64
	if err := store.Get(ctx, e.db.Pool, &total, csql, cargs...); err != nil {
		return nil, fmt.Errorf("count %s: %w", model.Entity.Name, err)
	}

	totalPages := int((total + int64(req.Size) - 1) / int64(req.Size))
	return &PageResult{
		Rows:       rows,
		Total:      total,
		TotalPages: totalPages,
		SortField:  sortField,
		SortOrder:  sortOrder,
		NullsFirst: nullsFirst,
	}, nil
}

// Record fetches one row by identifier, with the same column set the
// list query uses.
func (e *QueryExecutor) Record(ctx context.Context, model *FieldModel, rawID string) (map[string]any, error) {
	if model.IDField == "" {
		return nil, ConfigurationError(fmt.Sprintf("entity %s has no identifier", model.Entity.Name))
	}
	id, err := codec.Parse(model.Kinds[model.IDField], rawID)
	if err != nil || id == nil {
		return nil, store.ErrNotFound
	}

	sel := e.baseSelect(model, e.selectColumns(model)...).
		Where(squirrel.Eq{model.Columns[model.IDField]: id})
	sql, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build detail select for %s: %w", model.Entity.Name, err)
	}
	row := map[string]any{}
	if err := store.Get(ctx, e.db.Pool, &row, sql, args...); err != nil {
		return nil, err
	}
	return row, nil
}

func (e *QueryExecutor) baseSelect(model *FieldModel, columns ...string) squirrel.SelectBuilder {
	base := model.Entity.PrimaryTable()
	idCol := "id"
	if ida := model.Entity.IDAttribute(); ida != nil {
		idCol = ida.StorageColumn()
	}
	sel := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select(columns...).From(base)
	for _, jt := range model.Entity.JoinedTables() {
		sel = sel.LeftJoin(fmt.Sprintf("%s ON %s.%s = %s.%s", jt, jt, idCol, base, idCol))
	}
	return sel
}

// selectColumns renders every addressable field: embedded leaves alias
// their dotted names, to-one fields select the join column, to-many
// fields become correlated COUNT subqueries so one round trip carries
// the collection sizes.
func (e *QueryExecutor) selectColumns(model *FieldModel) []string {
	parentID := ""
	if model.IDField != "" {
		parentID = model.Columns[model.IDField]
	}
	cols := make([]string, 0, len(model.AllFields))
	for _, field := range model.AllFields {
		if model.IsCollection(field) {
			if parentID == "" {
				continue
			}
			if sub := e.countSubquery(model, field, parentID); sub != "" {
				cols = append(cols, fmt.Sprintf("%s AS %q", sub, field))
			}
			continue
		}
		cols = append(cols, fmt.Sprintf("%s AS %q", model.Columns[field], field))
	}
	return cols
}

func (e *QueryExecutor) countSubquery(model *FieldModel, field, parentID string) string {
	attr := model.Attr(field)
	target := e.reg.Entity(attr.Target)
	if target == nil {
		e.log.Warn("collection field targets unknown entity",
			zap.String("field", field), zap.String("target", attr.Target))
		return ""
	}
	if attr.Kind == metadata.KindOneToMany {
		fk := e.translator.backrefColumn(target, model.Entity.Name, attr.MappedBy)
		return fmt.Sprintf("(SELECT COUNT(*) FROM %s rel WHERE rel.%s = %s)",
			target.PrimaryTable(), fk, parentID)
	}
	jt, local, _, ok := e.translator.joinTableFor(model.Entity.Name, attr, target)
	if !ok {
		return ""
	}
	return fmt.Sprintf("(SELECT COUNT(*) FROM %s rel WHERE rel.%s = %s)", jt, local, parentID)
}

// conditions translates the filter clauses into one condition per
// field, combined with AND by the builder. Fields that are neither
// filterable nor relations are dropped with a warning.
func (e *QueryExecutor) conditions(model *FieldModel, filters []FilterClause) []squirrel.Sqlizer {
	byField := make(map[string][]FilterClause)
	var order []string
	for _, f := range filters {
		if !model.Filterable[f.Field] && !model.IsRelation(f.Field) {
			e.log.Warn("filter on non-filterable field dropped",
				zap.String("entity", model.Entity.Name), zap.String("field", f.Field))
			continue
		}
		if _, ok := byField[f.Field]; !ok {
			order = append(order, f.Field)
		}
		byField[f.Field] = append(byField[f.Field], f)
	}

	var conds []squirrel.Sqlizer
	for _, field := range order {
		if cond := e.translator.Translate(model, field, byField[field]); cond != nil {
			conds = append(conds, cond)
		}
	}
	return conds
}

// resolveSort picks the effective sort. An explicit request wins when
// it names a filterable field (sort params arrive as display names);
// otherwise the table default applies; anything still unusable
// degrades to the identifier descending.
func (e *QueryExecutor) resolveSort(model *FieldModel, req PageRequest) (field, order string, nullsFirst bool) {
	cfg := e.reg.Config(model.Entity.Name)

	if req.SortSupplied && req.SortField != "" {
		f := model.FieldByDisplayName(req.SortField)
		if model.Filterable[f] {
			return f, normalizeOrder(req.SortOrder), req.NullsFirst
		}
		e.log.Warn("unsortable sort field, falling back to identifier",
			zap.String("entity", model.Entity.Name), zap.String("field", req.SortField))
		return e.idSort(model)
	}

	if cfg != nil && cfg.DefaultSortField != "" {
		f := model.FieldByDisplayName(cfg.DefaultSortField)
		if model.Filterable[f] {
			return f, normalizeOrder(cfg.DefaultSortOrder), cfg.DefaultNullsFirst
		}
		e.log.Warn("unsortable default sort field, falling back to identifier",
			zap.String("entity", model.Entity.Name), zap.String("field", cfg.DefaultSortField))
	}
	return e.idSort(model)
}

func (e *QueryExecutor) idSort(model *FieldModel) (string, string, bool) {
	if model.IDField == "" {
		return "", sortDesc, false
	}
	return model.IDField, sortDesc, false
}

func normalizeOrder(order string) string {
	if strings.EqualFold(order, sortAsc) {
		return sortAsc
	}
	return defaultSortOrder
}

func orderClause(column, order string, nullsFirst bool) string {
	nulls := "NULLS LAST"
	if nullsFirst {
		nulls = "NULLS FIRST"
	}
	return fmt.Sprintf("%s %s %s", column, order, nulls)
}
