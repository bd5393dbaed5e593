package metadata

// Attribute describes one declared attribute of an entity: a scalar
// column, an embedded value object, or an association. Attributes are
// registered declaratively; nothing is introspected at runtime.
type Attribute struct {
	Name     string `json:"name"`
	Kind     Kind   `json:"kind"`
	Nullable bool   `json:"nullable"`
	ID       bool   `json:"id,omitempty"`
	Version  bool   `json:"version,omitempty"`

	// Column overrides the storage column name, which defaults to the
	// attribute name (or the underscore-joined path for embedded leaves).
	Column string `json:"column,omitempty"`

	// MaxLength bounds String values; zero means unbounded.
	MaxLength int `json:"max_length,omitempty"`

	// BitLength is the declared length for Bit and BitVarying. Zero on
	// KindBit means an implicit single bit.
	BitLength int `json:"bit_length,omitempty"`

	// Association wiring. Target names the related entity. JoinColumn is
	// the local FK column for ToOne, defaulting to "<name>_id". MappedBy
	// names the owning attribute on the target for inverse sides.
	Target            string `json:"target,omitempty"`
	JoinColumn        string `json:"join_column,omitempty"`
	MappedBy          string `json:"mapped_by,omitempty"`
	JoinTable         string `json:"join_table,omitempty"`
	JoinTableColumn   string `json:"join_table_column,omitempty"`
	InverseJoinColumn string `json:"inverse_join_column,omitempty"`

	// Fields holds the sub-attributes of an Embedded attribute.
	Fields []Attribute `json:"fields,omitempty"`

	// table is set during inheritance resolution on merged entities so
	// the query layer knows which physical table owns the column.
	table string
}

// StorageColumn returns the column this attribute is stored in. For
// ToOne that is the join column, never the attribute name itself.
func (a *Attribute) StorageColumn() string {
	if a.Kind == KindToOne {
		if a.JoinColumn != "" {
			return a.JoinColumn
		}
		return a.Name + "_id"
	}
	if a.Column != "" {
		return a.Column
	}
	return a.Name
}

// SourceTable returns the physical table owning this attribute's column,
// or empty when the attribute lives in the entity's primary table.
func (a *Attribute) SourceTable() string {
	return a.table
}
