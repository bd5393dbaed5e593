package engine

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"go.uber.org/zap"

	"dbadmin/internal/codec"
	"dbadmin/internal/metadata"
)

// Filter operations. The set is fixed; unknown operations drop the
// clause with a warning.
const (
	OpEquals         = "equals"
	OpNotEqual       = "not equal"
	OpGreaterThan    = "greater than"
	OpLessThan       = "less than"
	OpGreaterOrEqual = "greater than or equal"
	OpLessOrEqual    = "less than or equal"
	OpContains       = "contains"
	OpStartsWith     = "starts with"
	OpEndsWith       = "ends with"
	OpTrue           = "true"
	OpFalse          = "false"
	OpIsNull         = "is null"
	OpIsNotNull      = "is not null"
)

// FilterClause is one parsed filter parameter tuple.
type FilterClause struct {
	Field      string
	Operation  string
	Value      string
	AllowNull  bool
	TreatEmpty bool
}

// PredicateTranslator turns filter clauses into SQL conditions. A
// malformed clause never fails the request; it is logged and dropped.
type PredicateTranslator struct {
	reg *metadata.Registry
	log *zap.Logger
}

func NewPredicateTranslator(reg *metadata.Registry, log *zap.Logger) *PredicateTranslator {
	return &PredicateTranslator{reg: reg, log: log}
}

type filterGroup struct {
	op         string
	allowNull  bool
	treatEmpty bool
	values     []string
}

// Translate builds the condition for all clauses targeting one field.
// Clauses sharing operation and flags are grouped so repeated equality
// becomes a single IN list; groups combine with AND. Returns nil when
// every group drops out.
func (t *PredicateTranslator) Translate(model *FieldModel, field string, clauses []FilterClause) squirrel.Sqlizer {
	var conds []squirrel.Sqlizer
	for _, g := range groupClauses(clauses) {
		var cond squirrel.Sqlizer
		if model.IsCollection(field) {
			cond = t.translateCollection(model, field, g)
		} else {
			cond = t.translateColumn(model, field, g)
		}
		if cond != nil {
			conds = append(conds, cond)
		}
	}
	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	}
	return squirrel.And(conds)
}

// groupClauses buckets clauses by (operation, allowNull, treatEmpty),
// preserving first-seen order.
func groupClauses(clauses []FilterClause) []filterGroup {
	var groups []filterGroup
	index := make(map[[3]string]int)
	for _, c := range clauses {
		key := [3]string{c.Operation, fmt.Sprint(c.AllowNull), fmt.Sprint(c.TreatEmpty)}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, filterGroup{
				op:         c.Operation,
				allowNull:  c.AllowNull,
				treatEmpty: c.TreatEmpty,
			})
		}
		groups[i].values = append(groups[i].values, c.Value)
	}
	return groups
}

// translateColumn handles scalar, embedded and to-one fields. To-one
// fields compare the local join column against the related identifier.
func (t *PredicateTranslator) translateColumn(model *FieldModel, field string, g filterGroup) squirrel.Sqlizer {
	attr := model.Attr(field)
	if attr == nil {
		t.log.Warn("filter on unknown field dropped", zap.String("field", field))
		return nil
	}

	column := model.Columns[field]
	kind := model.Kinds[field]
	if attr.Kind == metadata.KindToOne {
		kind = t.targetIDKind(attr.Target)
	}

	return t.buildCondition(column, kind, attr, g)
}

func (t *PredicateTranslator) buildCondition(column string, kind metadata.Kind, attr *metadata.Attribute, g filterGroup) squirrel.Sqlizer {
	switch g.op {
	case OpIsNull:
		return squirrel.Eq{column: nil}
	case OpIsNotNull:
		return squirrel.NotEq{column: nil}
	case OpTrue, OpFalse:
		if kind != metadata.KindBool {
			t.log.Warn("boolean operation on non-boolean field dropped",
				zap.String("column", column), zap.String("op", g.op))
			return nil
		}
		return squirrel.Eq{column: g.op == OpTrue}
	}

	vals := t.parseValues(kind, attr, g)
	if len(vals) == 0 {
		t.log.Warn("filter group without usable values dropped",
			zap.String("column", column), zap.String("op", g.op))
		return nil
	}

	var cond squirrel.Sqlizer
	if len(vals) > 1 {
		if g.op != OpEquals {
			t.log.Warn("multiple values only supported for equality, group dropped",
				zap.String("column", column), zap.String("op", g.op))
			return nil
		}
		cond = squirrel.Eq{column: vals}
	} else {
		v := vals[0]
		switch g.op {
		case OpEquals:
			cond = squirrel.Eq{column: v}
		case OpNotEqual:
			cond = squirrel.NotEq{column: v}
		case OpGreaterThan:
			cond = squirrel.Gt{column: v}
		case OpLessThan:
			cond = squirrel.Lt{column: v}
		case OpGreaterOrEqual:
			cond = squirrel.GtOrEq{column: v}
		case OpLessOrEqual:
			cond = squirrel.LtOrEq{column: v}
		case OpContains, OpStartsWith, OpEndsWith:
			s, ok := v.(string)
			if !ok {
				t.log.Warn("substring operation on non-string field dropped",
					zap.String("column", column), zap.String("op", g.op))
				return nil
			}
			cond = squirrel.ILike{column: likePattern(g.op, s)}
		default:
			t.log.Warn("unknown filter operation dropped",
				zap.String("column", column), zap.String("op", g.op))
			return nil
		}
	}

	// Equality stays strict; the null-widening flag only loosens the
	// exclusionary operators.
	if g.allowNull && g.op != OpEquals {
		cond = squirrel.Or{cond, squirrel.Eq{column: nil}}
	}
	return cond
}

// parseValues coerces the raw values through the codec. Unparseable
// values are dropped; an empty result drops the group.
func (t *PredicateTranslator) parseValues(kind metadata.Kind, attr *metadata.Attribute, g filterGroup) []any {
	var vals []any
	for _, raw := range g.values {
		if g.treatEmpty && strings.TrimSpace(raw) == "" {
			vals = append(vals, "")
			continue
		}
		v, err := t.parseOne(kind, attr, raw)
		if err != nil {
			t.log.Warn("unparseable filter value dropped",
				zap.String("kind", string(kind)), zap.String("value", raw), zap.Error(err))
			continue
		}
		if v == nil {
			// Null tokens only make sense with is-null operations.
			continue
		}
		vals = append(vals, codec.Normalize(kind, v))
	}
	return vals
}

func (t *PredicateTranslator) parseOne(kind metadata.Kind, attr *metadata.Attribute, raw string) (any, error) {
	if kind.IsBit() && attr != nil {
		return codec.ParseBits(raw, attr.BitLength, kind == metadata.KindBitVarying)
	}
	return codec.Parse(kind, raw)
}

// translateCollection realizes a filter on a to-many field as a
// correlated EXISTS subquery comparing related identifiers, so parent
// rows are never duplicated in the page. is-null means "no related
// rows" and becomes NOT EXISTS.
func (t *PredicateTranslator) translateCollection(model *FieldModel, field string, g filterGroup) squirrel.Sqlizer {
	attr := model.Attr(field)
	target := t.reg.Entity(attr.Target)
	if target == nil {
		t.log.Warn("collection filter targets unknown entity",
			zap.String("field", field), zap.String("target", attr.Target))
		return nil
	}
	parentID := model.Columns[model.IDField]
	if parentID == "" {
		t.log.Warn("collection filter without identifier dropped", zap.String("field", field))
		return nil
	}

	var fromTable, correlation, idColumn string
	idKind := t.targetIDKind(attr.Target)

	if attr.Kind == metadata.KindOneToMany {
		fk := t.backrefColumn(target, model.Entity.Name, attr.MappedBy)
		fromTable = target.PrimaryTable() + " rel"
		correlation = "rel." + fk
		idCol := "id"
		if ida := target.IDAttribute(); ida != nil {
			idCol = ida.StorageColumn()
		}
		idColumn = "rel." + idCol
	} else {
		jt, local, inverse, ok := t.joinTableFor(model.Entity.Name, attr, target)
		if !ok {
			return nil
		}
		fromTable = jt + " rel"
		correlation = "rel." + local
		idColumn = "rel." + inverse
	}

	switch g.op {
	case OpIsNull:
		return squirrel.Expr(fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s WHERE %s = %s)",
			fromTable, correlation, parentID))
	case OpIsNotNull:
		return squirrel.Expr(fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s)",
			fromTable, correlation, parentID))
	}

	inner := t.buildCondition(idColumn, idKind, nil, g)
	if inner == nil {
		return nil
	}
	sql, args, err := inner.ToSql()
	if err != nil {
		t.log.Warn("collection filter failed to render", zap.String("field", field), zap.Error(err))
		return nil
	}
	return squirrel.Expr(fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s = %s AND %s)",
		fromTable, correlation, parentID, sql), args...)
}

// backrefColumn finds the FK column on the target table pointing back
// at the parent: the mapped-by attribute when declared, otherwise the
// first to-one attribute targeting the parent, otherwise the
// conventional "<parent>_id".
func (t *PredicateTranslator) backrefColumn(target *metadata.Entity, parentName, mappedBy string) string {
	if mappedBy != "" {
		if a := target.GetAttribute(mappedBy); a != nil {
			return a.StorageColumn()
		}
	}
	for i := range target.Attributes {
		a := &target.Attributes[i]
		if a.Kind == metadata.KindToOne && a.Target == parentName {
			return a.StorageColumn()
		}
	}
	return strings.ToLower(parentName) + "_id"
}

// joinTableFor resolves the junction table of a many-to-many field,
// swapping columns when this side is the inverse one.
func (t *PredicateTranslator) joinTableFor(parentName string, attr *metadata.Attribute, target *metadata.Entity) (table, local, inverse string, ok bool) {
	if attr.JoinTable != "" {
		local = attr.JoinTableColumn
		if local == "" {
			local = strings.ToLower(parentName) + "_id"
		}
		inverse = attr.InverseJoinColumn
		if inverse == "" {
			inverse = strings.ToLower(attr.Target) + "_id"
		}
		return attr.JoinTable, local, inverse, true
	}
	if attr.MappedBy != "" {
		owner := target.GetAttribute(attr.MappedBy)
		if owner != nil && owner.JoinTable != "" {
			local = owner.InverseJoinColumn
			if local == "" {
				local = strings.ToLower(parentName) + "_id"
			}
			inverse = owner.JoinTableColumn
			if inverse == "" {
				inverse = strings.ToLower(attr.Target) + "_id"
			}
			return owner.JoinTable, local, inverse, true
		}
	}
	t.log.Warn("many-to-many field without join table, filter dropped",
		zap.String("field", attr.Name))
	return "", "", "", false
}

func (t *PredicateTranslator) targetIDKind(entityName string) metadata.Kind {
	if e := t.reg.Entity(entityName); e != nil {
		if ida := e.IDAttribute(); ida != nil {
			return ida.Kind
		}
	}
	return metadata.KindInt64
}

func likePattern(op, value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
	switch op {
	case OpStartsWith:
		return escaped + "%"
	case OpEndsWith:
		return "%" + escaped
	}
	return "%" + escaped + "%"
}
