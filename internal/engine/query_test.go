package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbadmin/internal/metadata"
)

func newTestExecutor(reg *metadata.Registry) *QueryExecutor {
	return NewQueryExecutor(nil, reg, NewPredicateTranslator(reg, zapNop()), zapNop())
}

func TestSelectColumnsAliasesAndCounts(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	cols := newTestExecutor(reg).selectColumns(model)

	assert.Contains(t, cols, `author.id AS "id"`)
	assert.Contains(t, cols, `author.name AS "name"`)
	assert.Contains(t, cols, `author.address_city AS "address.city"`)
	assert.Contains(t, cols,
		`(SELECT COUNT(*) FROM book rel WHERE rel.author_id = author.id) AS "books"`)
	assert.Contains(t, cols,
		`(SELECT COUNT(*) FROM author_tag rel WHERE rel.author_id = author.id) AS "tags"`)
}

func TestSelectColumnsToOneUsesJoinColumn(t *testing.T) {
	reg := newTestRegistry()
	model := bookModel(reg)
	cols := newTestExecutor(reg).selectColumns(model)

	assert.Contains(t, cols, `book.author_id AS "author"`)
}

func TestPageSQLShape(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	e := newTestExecutor(reg)

	sel := e.baseSelect(model, e.selectColumns(model)...)
	sel = sel.Where(e.conditions(model, []FilterClause{
		{Field: "name", Operation: OpEquals, Value: "Gleb"},
	})[0])
	sel = sel.OrderBy(orderClause(model.Columns["id"], sortDesc, false)).
		Offset(20).Limit(10)

	sql, args, err := sel.ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM author")
	assert.Contains(t, sql, "WHERE author.name = $1")
	assert.Contains(t, sql, "ORDER BY author.id DESC NULLS LAST")
	assert.Contains(t, sql, "LIMIT 10 OFFSET 20")
	assert.Equal(t, []any{"Gleb"}, args)
}

func TestBaseSelectJoinsSubclassTables(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(&metadata.Entity{
		Name: "Vehicle", Table: "vehicle", Inheritance: metadata.InheritanceJoined,
		Attributes: []metadata.Attribute{
			{Name: "id", Kind: metadata.KindInt64, ID: true},
			{Name: "maker", Kind: metadata.KindString},
		},
	})
	reg.Register(&metadata.Entity{
		Name: "Car", Table: "car", Parent: "Vehicle",
		Attributes: []metadata.Attribute{
			{Name: "id", Kind: metadata.KindInt64, ID: true},
			{Name: "doors", Kind: metadata.KindInt32},
		},
	})
	merged := reg.Table("vehicle,car")
	require.NotNil(t, merged)

	e := newTestExecutor(reg)
	model := NewFieldMapper(reg, zapNop()).MapFields(merged)
	sql, _, err := e.baseSelect(model, e.selectColumns(model)...).ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "FROM vehicle")
	assert.Contains(t, sql, "LEFT JOIN car ON car.id = vehicle.id")
	assert.Contains(t, sql, `car.doors AS "doors"`)
}

func TestResolveSortExplicitRequest(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	e := newTestExecutor(reg)

	field, order, nullsFirst := e.resolveSort(model, PageRequest{
		SortField: "name", SortOrder: "asc", NullsFirst: true, SortSupplied: true,
	})
	assert.Equal(t, "name", field)
	assert.Equal(t, sortAsc, order)
	assert.True(t, nullsFirst)
}

func TestResolveSortUnknownFieldDegradesToID(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	e := newTestExecutor(reg)

	for _, bad := range []string{"books", "avatar", "no_such_field"} {
		field, order, nullsFirst := e.resolveSort(model, PageRequest{
			SortField: bad, SortOrder: "ASC", SortSupplied: true,
		})
		assert.Equal(t, "id", field, bad)
		assert.Equal(t, sortDesc, order, bad)
		assert.False(t, nullsFirst, bad)
	}
}

func TestResolveSortTableDefault(t *testing.T) {
	cfg := &metadata.TableConfig{
		Entity:            "Author",
		DefaultSortField:  "name",
		DefaultSortOrder:  "ASC",
		DefaultNullsFirst: true,
	}
	reg := newTestRegistry(cfg)
	model := authorModel(reg)
	e := newTestExecutor(reg)

	field, order, nullsFirst := e.resolveSort(model, PageRequest{})
	assert.Equal(t, "name", field)
	assert.Equal(t, sortAsc, order)
	assert.True(t, nullsFirst)
}

func TestResolveSortComputedDefaultDegradesToID(t *testing.T) {
	cfg := &metadata.TableConfig{
		Entity:           "Author",
		DefaultSortField: "shout",
		Columns: []metadata.ColumnConfig{
			{Field: "name"},
			{Field: "shout", Compute: func(map[string]any) any { return nil }},
		},
	}
	reg := newTestRegistry(cfg)
	model := authorModel(reg)
	e := newTestExecutor(reg)

	field, order, _ := e.resolveSort(model, PageRequest{})
	assert.Equal(t, "id", field)
	assert.Equal(t, sortDesc, order)
}

func TestConditionsDropNonFilterableFields(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	e := newTestExecutor(reg)

	conds := e.conditions(model, []FilterClause{
		{Field: "avatar", Operation: OpEquals, Value: "FF"},
		{Field: "name", Operation: OpEquals, Value: "Gleb"},
	})
	require.Len(t, conds, 1)
	sql, _, err := conds[0].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "author.name = ?", sql)
}

func TestConditionsAcceptRelationFields(t *testing.T) {
	// Collection links filter the target table by its relation field,
	// so relation fields pass even though they are not displayed as
	// filterable.
	reg := newTestRegistry()
	model := bookModel(reg)
	e := newTestExecutor(reg)

	conds := e.conditions(model, []FilterClause{
		{Field: "author", Operation: OpEquals, Value: "7"},
	})
	require.Len(t, conds, 1)
	sql, args, err := conds[0].ToSql()
	require.NoError(t, err)
	assert.Equal(t, "book.author_id = ?", sql)
	assert.Equal(t, []any{int64(7)}, args)
}
