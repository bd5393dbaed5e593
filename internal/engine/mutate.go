package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"dbadmin/internal/codec"
	"dbadmin/internal/metadata"
	"dbadmin/internal/store"
)

// RecordMutator plans and executes create and update writes. Planning
// is pure: all coercion happens before a transaction opens, so a write
// either applies completely or not at all.
type RecordMutator struct {
	db  *store.DB
	reg *metadata.Registry
	log *zap.Logger
}

func NewRecordMutator(db *store.DB, reg *metadata.Registry, log *zap.Logger) *RecordMutator {
	return &RecordMutator{db: db, reg: reg, log: log}
}

type refCheck struct {
	field    string
	table    string
	idColumn string
	value    any
}

type writePlan struct {
	values map[string]any // unqualified column -> typed value
	refs   []refCheck
}

// planWrite coerces the posted fields into storage values. Collection
// fields are always skipped; the identifier only applies on create;
// foreign keys only apply on create (the edit form never rewires a
// record). Unknown fields and coercion failures become error details.
func (m *RecordMutator) planWrite(model *FieldModel, fields map[string]string, isCreate bool) (*writePlan, []ErrorDetail) {
	plan := &writePlan{values: make(map[string]any)}
	var errs []ErrorDetail

	known := make(map[string]bool, len(model.AllFields))
	for _, f := range model.AllFields {
		known[f] = true
	}
	for key := range fields {
		if !known[key] {
			errs = append(errs, ErrorDetail{Field: key, Message: "Unknown field"})
		}
	}

	for _, field := range model.AllFields {
		raw, posted := fields[field]
		if !posted {
			continue
		}
		attr := model.Attr(field)

		switch {
		case attr.Kind.IsCollection():
			continue
		case attr.ID && !isCreate:
			continue
		case attr.Version:
			continue
		}

		if attr.SourceTable() != "" {
			errs = append(errs, ErrorDetail{Field: field, Message: "Subclass fields are read-only"})
			continue
		}

		if attr.Kind == metadata.KindToOne {
			if !isCreate {
				continue
			}
			m.planForeignKey(plan, model, field, attr, raw, &errs)
			continue
		}

		kind := model.Kinds[field]
		value, err := m.coerce(kind, attr, raw)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: field, Message: err.Error()})
			continue
		}
		if value == nil && !model.Nullable[field] && !attr.ID {
			errs = append(errs, ErrorDetail{Field: field, Message: "Must not be null"})
			continue
		}
		plan.values[unqualified(model.Columns[field])] = value
	}

	return plan, errs
}

func (m *RecordMutator) planForeignKey(plan *writePlan, model *FieldModel, field string, attr *metadata.Attribute, raw string, errs *[]ErrorDetail) {
	column := model.JoinColumns[field]
	if codec.IsNullToken(raw) {
		if !attr.Nullable {
			*errs = append(*errs, ErrorDetail{Field: field, Message: "Must not be null"})
			return
		}
		plan.values[column] = nil
		return
	}

	target := m.reg.Entity(attr.Target)
	if target == nil {
		*errs = append(*errs, ErrorDetail{Field: field, Message: fmt.Sprintf("Unknown target entity %s", attr.Target)})
		return
	}
	idKind := metadata.KindInt64
	idColumn := "id"
	if ida := target.IDAttribute(); ida != nil {
		idKind = ida.Kind
		idColumn = ida.StorageColumn()
	}
	value, err := codec.Parse(idKind, raw)
	if err != nil {
		*errs = append(*errs, ErrorDetail{Field: field, Message: err.Error()})
		return
	}
	plan.values[column] = value
	plan.refs = append(plan.refs, refCheck{
		field:    field,
		table:    target.PrimaryTable(),
		idColumn: idColumn,
		value:    value,
	})
}

func (m *RecordMutator) coerce(kind metadata.Kind, attr *metadata.Attribute, raw string) (any, error) {
	if kind.IsBit() {
		return codec.ParseBits(raw, attr.BitLength, kind == metadata.KindBitVarying)
	}
	v, err := codec.Parse(kind, raw)
	if err != nil {
		return nil, err
	}
	return codec.Normalize(kind, v), nil
}

// Validate runs the same coercions a write would and merges declared
// constraint violations, keyed by field. For create every writable
// field is checked; for update only the posted ones (the edit form
// posts the full record).
func (m *RecordMutator) Validate(model *FieldModel, fields map[string]string, isCreate bool) []ErrorDetail {
	_, errs := m.planWrite(model, fields, isCreate)

	flagged := make(map[string]bool, len(errs))
	for _, e := range errs {
		flagged[e.Field] = true
	}

	for _, field := range model.AllFields {
		if flagged[field] {
			continue
		}
		attr := model.Attr(field)
		if attr.Kind.IsCollection() || attr.ID || attr.Version || attr.SourceTable() != "" {
			continue
		}

		raw, posted := fields[field]
		if !posted {
			if isCreate && !model.Nullable[field] && attr.Kind != metadata.KindToOne {
				errs = append(errs, ErrorDetail{Field: field, Message: "Must not be null"})
			}
			continue
		}
		if attr.MaxLength > 0 && model.Kinds[field] == metadata.KindString && len(raw) > attr.MaxLength {
			errs = append(errs, ErrorDetail{Field: field, Message: fmt.Sprintf("Longer than %d characters", attr.MaxLength)})
		}
	}
	return errs
}

// Create inserts a new record and returns its identifier. Referenced
// records are looked up inside the same transaction; a missing target
// rejects the whole write.
func (m *RecordMutator) Create(ctx context.Context, model *FieldModel, fields map[string]string) (any, error) {
	plan, errs := m.planWrite(model, fields, true)
	if len(errs) > 0 {
		return nil, ValidationError(errs)
	}

	idColumn := m.idColumn(model)
	if ver := model.Entity.VersionAttribute(); ver != nil {
		if _, set := plan.values[ver.StorageColumn()]; !set {
			plan.values[ver.StorageColumn()] = 0
		}
	}

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := m.checkRefs(ctx, tx, plan); err != nil {
		return nil, err
	}

	table := model.Entity.PrimaryTable()
	var sql string
	var args []any
	if len(plan.values) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING %s", table, idColumn)
	} else {
		sql, args, err = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
			Insert(table).
			SetMap(plan.values).
			Suffix("RETURNING " + idColumn).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build insert for %s: %w", table, err)
		}
	}

	var id any
	if err := tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	m.log.Info("record created",
		zap.String("entity", model.Entity.Name), zap.Any("id", id))
	return id, nil
}

// Update applies the posted fields to an existing record. The record
// must exist; a declared version column is incremented with the write.
func (m *RecordMutator) Update(ctx context.Context, model *FieldModel, rawID string, fields map[string]string) error {
	plan, errs := m.planWrite(model, fields, false)
	if len(errs) > 0 {
		return ValidationError(errs)
	}

	idColumn := m.idColumn(model)
	id, err := codec.Parse(model.Kinds[model.IDField], rawID)
	if err != nil || id == nil {
		return NotFoundError(model.Entity.Table, rawID)
	}

	tx, err := m.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	table := model.Entity.PrimaryTable()
	var exists int
	err = store.Get(ctx, tx, &exists,
		fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1", table, idColumn), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return NotFoundError(model.Entity.Table, rawID)
		}
		return fmt.Errorf("load %s/%s: %w", table, rawID, err)
	}

	if err := m.checkRefs(ctx, tx, plan); err != nil {
		return err
	}

	if len(plan.values) > 0 {
		upd := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
			Update(table).
			SetMap(plan.values).
			Where(squirrel.Eq{idColumn: id})
		if ver := model.Entity.VersionAttribute(); ver != nil {
			col := ver.StorageColumn()
			upd = upd.Set(col, squirrel.Expr(col+" + 1"))
		}
		sql, args, err := upd.ToSql()
		if err != nil {
			return fmt.Errorf("build update for %s: %w", table, err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("update %s/%s: %w", table, rawID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	m.log.Info("record updated",
		zap.String("entity", model.Entity.Name), zap.String("id", rawID))
	return nil
}

// checkRefs verifies every referenced record exists before the write
// lands, inside the same transaction.
func (m *RecordMutator) checkRefs(ctx context.Context, tx pgx.Tx, plan *writePlan) error {
	for _, ref := range plan.refs {
		if ref.value == nil {
			continue
		}
		var exists int
		err := store.Get(ctx, tx, &exists,
			fmt.Sprintf("SELECT 1 FROM %s WHERE %s = $1", ref.table, ref.idColumn), ref.value)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ValidationError([]ErrorDetail{{
					Field:   ref.field,
					Message: fmt.Sprintf("Referenced record %v not found in %s", ref.value, ref.table),
				}})
			}
			return fmt.Errorf("check reference %s: %w", ref.field, err)
		}
	}
	return nil
}

func (m *RecordMutator) idColumn(model *FieldModel) string {
	if ida := model.Entity.IDAttribute(); ida != nil {
		return ida.StorageColumn()
	}
	return "id"
}

func unqualified(column string) string {
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}
