package metadata

import "strings"

// Inheritance strategies. Subclasses carry Parent; the root of a
// hierarchy carries Inheritance.
const (
	InheritanceJoined        = "joined"
	InheritanceSingleTable   = "single_table"
	InheritanceTablePerClass = "table_per_class"
)

type Entity struct {
	Name        string      `json:"name"`
	Table       string      `json:"table"`
	Inheritance string      `json:"inheritance,omitempty"`
	Parent      string      `json:"parent,omitempty"`
	Attributes  []Attribute `json:"attributes"`

	// joinedTables lists the subclass tables of a merged joined-strategy
	// entity, in registration order. Empty for plain entities.
	joinedTables []string
}

// GetAttribute returns a pointer to the attribute with the given name,
// or nil.
func (e *Entity) GetAttribute(name string) *Attribute {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			return &e.Attributes[i]
		}
	}
	return nil
}

// IDAttribute returns the identifier attribute, or nil when the entity
// declares none.
func (e *Entity) IDAttribute() *Attribute {
	for i := range e.Attributes {
		if e.Attributes[i].ID {
			return &e.Attributes[i]
		}
	}
	return nil
}

// VersionAttribute returns the optimistic-version attribute, or nil.
func (e *Entity) VersionAttribute() *Attribute {
	for i := range e.Attributes {
		if e.Attributes[i].Version {
			return &e.Attributes[i]
		}
	}
	return nil
}

// PrimaryTable returns the physical table queries run against. For a
// merged joined-strategy entity the Table field comma-joins every
// participating table; the first segment is the base table.
func (e *Entity) PrimaryTable() string {
	if i := strings.IndexByte(e.Table, ','); i >= 0 {
		return e.Table[:i]
	}
	return e.Table
}

// JoinedTables returns the subclass tables merged into this entity by
// the joined inheritance strategy. The query layer left-joins each of
// them to the primary table on the identifier column.
func (e *Entity) JoinedTables() []string {
	return e.joinedTables
}
