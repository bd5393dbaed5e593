package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"dbadmin/internal/codec"
	"dbadmin/internal/metadata"
)

// RecordProjector turns raw rows into the view records handed to the
// client: computed columns evaluated, bytes rendered as hex, to-many
// counts passed through, and navigation links added under
// "<field>_link" keys.
type RecordProjector struct {
	reg      *metadata.Registry
	basePath string
	log      *zap.Logger
}

func NewRecordProjector(reg *metadata.Registry, basePath string, log *zap.Logger) *RecordProjector {
	return &RecordProjector{reg: reg, basePath: basePath, log: log}
}

// Project builds the view for one row over the given display fields.
func (p *RecordProjector) Project(row map[string]any, model *FieldModel, fields []string) map[string]any {
	// Computed columns see every stored value, not just the displayed
	// ones.
	bag := make(map[string]any, len(model.AllFields))
	for _, field := range model.AllFields {
		bag[field] = row[field]
	}

	view := make(map[string]any, len(fields))
	for _, field := range fields {
		if fn, ok := model.Computed[field]; ok {
			view[field] = p.compute(model, field, fn, bag)
			continue
		}

		value := row[field]
		switch {
		case model.IsCollection(field):
			if value == nil {
				value = int64(0)
			}
			view[field] = value
			p.addCollectionLink(view, model, field, row)
		case model.Kinds[field] == metadata.KindBytes && value != nil:
			view[field] = codec.Format(metadata.KindBytes, value)
		default:
			view[field] = value
			if target, ok := model.ForeignKeys[field]; ok && value != nil {
				view[field+"_link"] = fmt.Sprintf("%s/%s/%v", p.basePath, target, value)
			}
		}
	}
	return view
}

// ProjectEmpty builds the blank record backing a create form: every
// field present with a nil value, collections included so the form
// shape matches the detail view.
func (p *RecordProjector) ProjectEmpty(model *FieldModel) map[string]any {
	view := make(map[string]any, len(model.AllFields))
	for _, field := range model.AllFields {
		view[field] = nil
	}
	return view
}

func (p *RecordProjector) compute(model *FieldModel, field string, fn metadata.ColumnFunc, bag map[string]any) (out any) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("computed column panicked",
				zap.String("entity", model.Entity.Name),
				zap.String("field", field),
				zap.Any("panic", r))
			out = nil
		}
	}()
	return fn(bag)
}

func (p *RecordProjector) addCollectionLink(view map[string]any, model *FieldModel, field string, row map[string]any) {
	if model.IDField == "" {
		return
	}
	id := row[model.IDField]
	if id == nil {
		return
	}
	target := model.OneToMany[field]
	if target == "" {
		target = model.ManyToMany[field]
	}
	if target == "" {
		return
	}

	params := url.Values{}
	params.Set("filterField", p.inverseField(model, field))
	params.Set("filterOperation", OpEquals)
	params.Set("filterValue", fmt.Sprint(id))
	view[field+"_link"] = fmt.Sprintf("%s/%s?%s", p.basePath, target, params.Encode())
}

// inverseField names the field on the target table that points back at
// this record: the mapped-by attribute when declared, otherwise the
// target's own relationship attribute, otherwise the pluralized
// lowercased parent name.
func (p *RecordProjector) inverseField(model *FieldModel, field string) string {
	attr := model.Attr(field)
	if attr.MappedBy != "" {
		return attr.MappedBy
	}
	parent := model.Entity.Name
	if target := p.reg.Entity(attr.Target); target != nil {
		for i := range target.Attributes {
			a := &target.Attributes[i]
			if a.Target != parent {
				continue
			}
			if attr.Kind == metadata.KindOneToMany && a.Kind == metadata.KindToOne {
				return a.Name
			}
			if attr.Kind == metadata.KindManyToMany && a.Kind == metadata.KindManyToMany {
				return a.Name
			}
		}
	}
	return inflection.Plural(strings.ToLower(parent))
}
