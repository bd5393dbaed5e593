package engine

import (
	"go.uber.org/zap"

	"dbadmin/internal/metadata"
)

// FieldModel is the flattened view of one browsable table: every
// addressable field with its kind, storage column and display wiring.
// Embedded attributes appear as dotted leaves ("address.city"); to-one
// fields map to their local join column; to-many fields carry no column
// of their own.
type FieldModel struct {
	Entity  *metadata.Entity
	IDField string

	// Fields is the display set for list views. AllFields keeps every
	// addressable field in declaration order, relations included, and
	// drives the detail view.
	Fields    []string
	AllFields []string

	Kinds         map[string]metadata.Kind
	TypeNames     map[string]string
	Nullable      map[string]bool
	EmbeddedPaths map[string]string

	// Columns maps a field to its qualified storage column
	// ("table.column"). Relations that hold many records have none.
	Columns map[string]string

	// ForeignKeys and the collection maps name the table a relation
	// field links to, keyed by field. JoinColumns holds the unqualified
	// local FK column of to-one fields.
	ForeignKeys map[string]string
	JoinColumns map[string]string
	OneToMany   map[string]string
	ManyToMany  map[string]string

	Computed     map[string]metadata.ColumnFunc
	DisplayNames map[string]string
	Filterable   map[string]bool

	attrs map[string]*metadata.Attribute
}

// IsRelation reports whether the field is an association.
func (m *FieldModel) IsRelation(field string) bool {
	a := m.attrs[field]
	return a != nil && a.Kind.IsAssociation()
}

// IsCollection reports whether the field holds many related records.
func (m *FieldModel) IsCollection(field string) bool {
	a := m.attrs[field]
	return a != nil && a.Kind.IsCollection()
}

// Attr returns the attribute behind a field, or nil for computed
// columns.
func (m *FieldModel) Attr(field string) *metadata.Attribute {
	return m.attrs[field]
}

// FieldByDisplayName resolves a display name back to its field; sort
// parameters arrive as display names. Falls back to the name itself.
func (m *FieldModel) FieldByDisplayName(name string) string {
	for field, display := range m.DisplayNames {
		if display == name {
			return field
		}
	}
	return name
}

// FieldMapper flattens entities into field models.
type FieldMapper struct {
	reg *metadata.Registry
	log *zap.Logger
}

func NewFieldMapper(reg *metadata.Registry, log *zap.Logger) *FieldMapper {
	return &FieldMapper{reg: reg, log: log}
}

// MapFields builds the field model for one resolved entity. The display
// set is the scalar and embedded fields in declaration order with the
// identifier first; an explicit column list in the table config
// replaces it, and computed columns from the config extend it.
func (f *FieldMapper) MapFields(entity *metadata.Entity) *FieldModel {
	model := &FieldModel{
		Entity:        entity,
		Kinds:         make(map[string]metadata.Kind),
		TypeNames:     make(map[string]string),
		Nullable:      make(map[string]bool),
		EmbeddedPaths: make(map[string]string),
		Columns:       make(map[string]string),
		ForeignKeys:   make(map[string]string),
		JoinColumns:   make(map[string]string),
		OneToMany:     make(map[string]string),
		ManyToMany:    make(map[string]string),
		Computed:      make(map[string]metadata.ColumnFunc),
		DisplayNames:  make(map[string]string),
		Filterable:    make(map[string]bool),
		attrs:         make(map[string]*metadata.Attribute),
	}

	base := entity.PrimaryTable()
	for i := range entity.Attributes {
		a := &entity.Attributes[i]
		table := a.SourceTable()
		if table == "" {
			table = base
		}

		switch {
		case a.Kind == metadata.KindEmbedded:
			outer := a
			for j := range a.Fields {
				leaf := &a.Fields[j]
				field := outer.Name + "." + leaf.Name
				column := leaf.Column
				if column == "" {
					column = outer.Name + "_" + leaf.Name
				}
				model.AllFields = append(model.AllFields, field)
				model.Kinds[field] = leaf.Kind
				model.TypeNames[field] = string(leaf.Kind)
				model.Nullable[field] = leaf.Nullable
				model.EmbeddedPaths[field] = outer.Name
				model.Columns[field] = table + "." + column
				model.DisplayNames[field] = leaf.Name
				model.attrs[field] = leaf
			}

		case a.Kind.IsCollection():
			model.AllFields = append(model.AllFields, a.Name)
			model.TypeNames[a.Name] = metadata.TypeCollection
			model.DisplayNames[a.Name] = a.Name
			model.attrs[a.Name] = a
			target := f.reg.TableNameFor(a.Target)
			if a.Kind == metadata.KindOneToMany {
				model.OneToMany[a.Name] = target
			} else {
				model.ManyToMany[a.Name] = target
			}

		case a.Kind == metadata.KindToOne:
			model.AllFields = append(model.AllFields, a.Name)
			model.TypeNames[a.Name] = a.Target
			model.Nullable[a.Name] = a.Nullable
			model.JoinColumns[a.Name] = a.StorageColumn()
			model.Columns[a.Name] = table + "." + a.StorageColumn()
			model.ForeignKeys[a.Name] = f.reg.TableNameFor(a.Target)
			model.DisplayNames[a.Name] = a.Name
			model.attrs[a.Name] = a

		default:
			if a.ID {
				model.IDField = a.Name
			}
			model.AllFields = append(model.AllFields, a.Name)
			model.Kinds[a.Name] = a.Kind
			model.TypeNames[a.Name] = string(a.Kind)
			model.Nullable[a.Name] = a.Nullable
			model.Columns[a.Name] = table + "." + a.StorageColumn()
			model.DisplayNames[a.Name] = a.Name
			model.attrs[a.Name] = a
		}
	}

	// The identifier leads the field list whatever position it was
	// declared in.
	if model.IDField != "" {
		for i, field := range model.AllFields {
			if field != model.IDField || i == 0 {
				continue
			}
			copy(model.AllFields[1:i+1], model.AllFields[:i])
			model.AllFields[0] = model.IDField
			break
		}
	}

	cfg := f.reg.Config(entity.Name)
	switch {
	case cfg != nil && len(cfg.Columns) > 0:
		for i := range cfg.Columns {
			col := &cfg.Columns[i]
			if col.IsComputed() {
				f.addComputed(model, col)
				continue
			}
			if model.IsRelation(col.Field) {
				f.log.Warn("relation field in column list ignored",
					zap.String("entity", entity.Name),
					zap.String("field", col.Field))
				continue
			}
			if _, ok := model.attrs[col.Field]; !ok {
				f.log.Warn("column list names unknown field",
					zap.String("entity", entity.Name),
					zap.String("field", col.Field))
				continue
			}
			model.Fields = append(model.Fields, col.Field)
			if col.DisplayName != "" {
				model.DisplayNames[col.Field] = col.DisplayName
			}
		}
	default:
		for _, field := range model.AllFields {
			if model.IsRelation(field) {
				continue
			}
			model.Fields = append(model.Fields, field)
		}
		if cfg != nil {
			for i := range cfg.Computed {
				f.addComputed(model, &cfg.Computed[i])
			}
		}
	}

	for _, field := range model.Fields {
		if _, computed := model.Computed[field]; computed {
			continue
		}
		if model.Kinds[field].Filterable() {
			model.Filterable[field] = true
		}
	}

	return model
}

// FilterableFields returns the displayed fields filter clauses may
// target: scalar kinds from the allow-list, never relations, bytes,
// bit strings or computed columns.
func (f *FieldMapper) FilterableFields(entity *metadata.Entity) map[string]bool {
	return f.MapFields(entity).Filterable
}

func (f *FieldMapper) addComputed(model *FieldModel, col *metadata.ColumnConfig) {
	model.Fields = append(model.Fields, col.Field)
	model.Computed[col.Field] = col.Compute
	model.TypeNames[col.Field] = "Computed"
	display := col.Field
	if col.DisplayName != "" {
		display = col.DisplayName
	}
	model.DisplayNames[col.Field] = display
}
