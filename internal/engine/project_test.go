package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbadmin/internal/metadata"
)

func newTestProjector(reg *metadata.Registry) *RecordProjector {
	return NewRecordProjector(reg, "/table", zapNop())
}

func TestProjectScalarsAndEmbedded(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	p := newTestProjector(reg)

	row := map[string]any{
		"id": int64(1), "name": "Gleb", "active": true,
		"address.city": "Minsk", "address.zip": "220000",
	}
	view := p.Project(row, model, model.Fields)

	assert.Equal(t, "Gleb", view["name"])
	assert.Equal(t, "Minsk", view["address.city"])
	assert.Nil(t, view["created"])
}

func TestProjectBytesAsUpperHex(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	p := newTestProjector(reg)

	view := p.Project(map[string]any{
		"id": int64(1), "avatar": []byte{0xde, 0xad, 0xbe, 0xef},
	}, model, model.Fields)

	assert.Equal(t, "DEADBEEF", view["avatar"])
}

func TestProjectForeignKeyLink(t *testing.T) {
	reg := newTestRegistry()
	model := bookModel(reg)
	p := newTestProjector(reg)

	view := p.Project(map[string]any{
		"id": int64(3), "title": "Go", "author": int64(7),
	}, model, model.AllFields)

	assert.Equal(t, int64(7), view["author"])
	assert.Equal(t, "/table/author/7", view["author_link"])

	// No link for a null reference.
	view = p.Project(map[string]any{"id": int64(4), "title": "SQL"}, model, model.AllFields)
	assert.Nil(t, view["author"])
	assert.NotContains(t, view, "author_link")
}

func TestProjectCollectionCountsAndLinks(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	p := newTestProjector(reg)

	view := p.Project(map[string]any{
		"id": int64(7), "books": int64(2),
	}, model, model.AllFields)

	assert.Equal(t, int64(2), view["books"])
	assert.Equal(t,
		"/table/book?filterField=author&filterOperation=equals&filterValue=7",
		view["books_link"])
	assert.Equal(t, int64(0), view["tags"])
	assert.Equal(t,
		"/table/tag?filterField=authors&filterOperation=equals&filterValue=7",
		view["tags_link"])
}

func TestProjectComputedColumn(t *testing.T) {
	cfg := &metadata.TableConfig{
		Entity: "Author",
		Columns: []metadata.ColumnConfig{
			{Field: "name"},
			{Field: "shout", Compute: func(r map[string]any) any {
				s, _ := r["name"].(string)
				return s + "!"
			}},
		},
	}
	reg := newTestRegistry(cfg)
	model := authorModel(reg)
	p := newTestProjector(reg)

	view := p.Project(map[string]any{"id": int64(1), "name": "Gleb"}, model, model.Fields)
	assert.Equal(t, "Gleb!", view["shout"])
}

func TestProjectComputedPanicYieldsNil(t *testing.T) {
	cfg := &metadata.TableConfig{
		Entity: "Author",
		Columns: []metadata.ColumnConfig{
			{Field: "boom", Compute: func(map[string]any) any {
				panic("nope")
			}},
		},
	}
	reg := newTestRegistry(cfg)
	model := authorModel(reg)
	p := newTestProjector(reg)

	view := p.Project(map[string]any{"id": int64(1)}, model, model.Fields)
	require.Contains(t, view, "boom")
	assert.Nil(t, view["boom"])
}

func TestProjectCollectionLinkFallbackPluralizes(t *testing.T) {
	reg := newTestRegistry()
	reg.Register(&metadata.Entity{
		Name: "Parent", Table: "parent",
		Attributes: []metadata.Attribute{
			{Name: "id", Kind: metadata.KindInt64, ID: true},
			{Name: "kids", Kind: metadata.KindOneToMany, Target: "Child"},
		},
	})
	reg.Register(&metadata.Entity{
		Name: "Child", Table: "child",
		Attributes: []metadata.Attribute{
			{Name: "id", Kind: metadata.KindInt64, ID: true},
		},
	})
	model := NewFieldMapper(reg, zapNop()).MapFields(reg.Table("parent"))
	p := newTestProjector(reg)

	view := p.Project(map[string]any{"id": int64(5)}, model, model.AllFields)
	assert.Equal(t,
		"/table/child?filterField=parents&filterOperation=equals&filterValue=5",
		view["kids_link"])
}

func TestProjectEmptyCoversEveryField(t *testing.T) {
	reg := newTestRegistry()
	model := authorModel(reg)
	p := newTestProjector(reg)

	view := p.ProjectEmpty(model)
	assert.Len(t, view, len(model.AllFields))
	for _, field := range []string{"name", "address.city", "books", "tags"} {
		assert.Contains(t, view, field)
		assert.Nil(t, view[field])
	}
}
