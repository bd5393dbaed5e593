package engine

import (
	"go.uber.org/zap"

	"dbadmin/internal/metadata"
)

// newTestRegistry registers a small author/book/tag schema covering
// scalars, an embedded value, both collection flavors and a to-one
// back-reference.
func newTestRegistry(configs ...*metadata.TableConfig) *metadata.Registry {
	reg := metadata.NewRegistry(zap.NewNop(), true)
	reg.Load([]*metadata.Entity{
		{
			Name:  "Author",
			Table: "author",
			Attributes: []metadata.Attribute{
				{Name: "id", Kind: metadata.KindInt64, ID: true},
				{Name: "name", Kind: metadata.KindString, MaxLength: 50},
				{Name: "active", Kind: metadata.KindBool},
				{Name: "created", Kind: metadata.KindDateTime, Nullable: true},
				{Name: "avatar", Kind: metadata.KindBytes, Nullable: true},
				{Name: "flags", Kind: metadata.KindBitVarying, BitLength: 8, Nullable: true},
				{Name: "address", Kind: metadata.KindEmbedded, Fields: []metadata.Attribute{
					{Name: "city", Kind: metadata.KindString, Nullable: true},
					{Name: "zip", Kind: metadata.KindString, Nullable: true},
				}},
				{Name: "books", Kind: metadata.KindOneToMany, Target: "Book", MappedBy: "author"},
				{Name: "tags", Kind: metadata.KindManyToMany, Target: "Tag",
					JoinTable: "author_tag", JoinTableColumn: "author_id", InverseJoinColumn: "tag_id"},
			},
		},
		{
			Name:  "Book",
			Table: "book",
			Attributes: []metadata.Attribute{
				{Name: "id", Kind: metadata.KindInt64, ID: true},
				{Name: "title", Kind: metadata.KindString},
				{Name: "published", Kind: metadata.KindDate, Nullable: true},
				{Name: "price", Kind: metadata.KindDecimal, Nullable: true},
				{Name: "author", Kind: metadata.KindToOne, Target: "Author", Nullable: true},
			},
		},
		{
			Name:  "Tag",
			Table: "tag",
			Attributes: []metadata.Attribute{
				{Name: "id", Kind: metadata.KindInt64, ID: true},
				{Name: "label", Kind: metadata.KindString},
				{Name: "authors", Kind: metadata.KindManyToMany, Target: "Author", MappedBy: "tags"},
			},
		},
	}, configs)
	return reg
}

func authorModel(reg *metadata.Registry) *FieldModel {
	return NewFieldMapper(reg, zap.NewNop()).MapFields(reg.Table("author"))
}

func bookModel(reg *metadata.Registry) *FieldModel {
	return NewFieldMapper(reg, zap.NewNop()).MapFields(reg.Table("book"))
}

func zapNop() *zap.Logger {
	return zap.NewNop()
}
