package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbadmin/internal/metadata"
)

func newTestMutator(reg *metadata.Registry) *RecordMutator {
	return NewRecordMutator(nil, reg, zapNop())
}

func detailFields(errs []ErrorDetail) map[string]string {
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		out[e.Field] = e.Message
	}
	return out
}

func TestPlanWriteCreateCoercesValues(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	plan, errs := m.planWrite(model, map[string]string{
		"name":         "Gleb",
		"active":       "true",
		"created":      "2024-03-09 13:45:59",
		"address.city": "Minsk",
		"flags":        "1010",
	}, true)
	require.Empty(t, errs)

	assert.Equal(t, "Gleb", plan.values["name"])
	assert.Equal(t, true, plan.values["active"])
	assert.Equal(t, time.Date(2024, 3, 9, 13, 45, 0, 0, time.UTC), plan.values["created"])
	assert.Equal(t, "Minsk", plan.values["address_city"])
	assert.Equal(t, "1010", plan.values["flags"])
}

func TestPlanWriteSkipsCollectionsAndVersion(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	plan, errs := m.planWrite(model, map[string]string{
		"name":  "Gleb",
		"books": "whatever",
		"tags":  "whatever",
	}, true)
	require.Empty(t, errs)
	assert.NotContains(t, plan.values, "books")
	assert.NotContains(t, plan.values, "tags")
}

func TestPlanWriteIdentifierOnlyOnCreate(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	plan, errs := m.planWrite(model, map[string]string{"id": "5", "name": "x"}, true)
	require.Empty(t, errs)
	assert.Equal(t, int64(5), plan.values["id"])

	plan, errs = m.planWrite(model, map[string]string{"id": "5", "name": "x"}, false)
	require.Empty(t, errs)
	assert.NotContains(t, plan.values, "id")
}

func TestPlanWriteForeignKeyOnCreateOnly(t *testing.T) {
	reg := newTestRegistry()
	model := bookModel(reg)
	m := newTestMutator(reg)

	plan, errs := m.planWrite(model, map[string]string{"title": "Go", "author": "7"}, true)
	require.Empty(t, errs)
	assert.Equal(t, int64(7), plan.values["author_id"])
	require.Len(t, plan.refs, 1)
	assert.Equal(t, "author", plan.refs[0].table)
	assert.Equal(t, "id", plan.refs[0].idColumn)
	assert.Equal(t, int64(7), plan.refs[0].value)

	// The edit form never rewires references.
	plan, errs = m.planWrite(model, map[string]string{"title": "Go", "author": "9"}, false)
	require.Empty(t, errs)
	assert.NotContains(t, plan.values, "author_id")
	assert.Empty(t, plan.refs)
}

func TestPlanWriteNullableForeignKeyCleared(t *testing.T) {
	reg := newTestRegistry()
	model := bookModel(reg)
	m := newTestMutator(reg)

	plan, errs := m.planWrite(model, map[string]string{"title": "Go", "author": ""}, true)
	require.Empty(t, errs)
	require.Contains(t, plan.values, "author_id")
	assert.Nil(t, plan.values["author_id"])
}

func TestPlanWriteRejectsBlankNonNullable(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	_, errs := m.planWrite(model, map[string]string{"name": ""}, true)
	require.Len(t, errs, 1)
	assert.Equal(t, "name", errs[0].Field)
}

func TestPlanWriteRejectsUnknownField(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	_, errs := m.planWrite(model, map[string]string{"name": "x", "bogus": "1"}, true)
	fields := detailFields(errs)
	assert.Contains(t, fields, "bogus")
}

func TestPlanWriteCoercionFailureAborts(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	_, errs := m.planWrite(model, map[string]string{
		"name":    "ok",
		"created": "not a date",
		"flags":   "10207",
	}, true)
	fields := detailFields(errs)
	assert.Contains(t, fields, "created")
	assert.Contains(t, fields, "flags")
	assert.NotContains(t, fields, "name")
}

func TestValidateCreateRequiresNonNullable(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	errs := m.Validate(model, map[string]string{"active": "true"}, true)
	fields := detailFields(errs)
	assert.Contains(t, fields, "name")
	assert.NotContains(t, fields, "created") // nullable
	assert.NotContains(t, fields, "active")
}

func TestValidateMaxLength(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	long := make([]byte, 51)
	for i := range long {
		long[i] = 'a'
	}
	errs := m.Validate(model, map[string]string{"name": string(long)}, false)
	fields := detailFields(errs)
	assert.Contains(t, fields, "name")

	errs = m.Validate(model, map[string]string{"name": "short"}, false)
	assert.Empty(t, errs)
}

func TestValidateUpdateChecksOnlyPostedFields(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	m := newTestMutator(reg)

	errs := m.Validate(model, map[string]string{"active": "false"}, false)
	assert.Empty(t, errs)
}
