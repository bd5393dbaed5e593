package metadata

// Kind is the declared type of an attribute. The scalar set is closed:
// every kind the engine supports is listed here, and the codec, filter
// and mutation paths all dispatch on it. An attribute whose kind is not
// in this set is a configuration error, not a fallback.
type Kind string

const (
	KindInt16      Kind = "Int16"
	KindInt32      Kind = "Int32"
	KindInt64      Kind = "Int64"
	KindFloat32    Kind = "Float32"
	KindFloat64    Kind = "Float64"
	KindDecimal    Kind = "Decimal"
	KindString     Kind = "String"
	KindBool       Kind = "Bool"
	KindUUID       Kind = "UUID"
	KindDate       Kind = "Date"
	KindTime       Kind = "Time"
	KindTimeTZ     Kind = "TimeTZ"
	KindDateTime   Kind = "DateTime"
	KindDateTimeTZ Kind = "DateTimeTZ"
	KindInstant    Kind = "Instant"
	KindBytes      Kind = "Bytes"
	KindBit        Kind = "Bit"
	KindBitVarying Kind = "BitVarying"

	KindToOne      Kind = "ToOne"
	KindOneToMany  Kind = "OneToMany"
	KindManyToMany Kind = "ManyToMany"
	KindEmbedded   Kind = "Embedded"
)

// TypeCollection is the declared type name reported for to-many fields.
const TypeCollection = "Collection"

// IsAssociation reports whether the kind references another entity.
func (k Kind) IsAssociation() bool {
	switch k {
	case KindToOne, KindOneToMany, KindManyToMany:
		return true
	}
	return false
}

// IsCollection reports whether the kind holds many related records.
func (k Kind) IsCollection() bool {
	return k == KindOneToMany || k == KindManyToMany
}

// IsScalar reports whether the kind maps to a single storage column.
func (k Kind) IsScalar() bool {
	return k != KindEmbedded && !k.IsAssociation() && k != ""
}

// IsTemporal reports whether values of the kind carry a date or time
// component. Temporal values are truncated to the minute on both the
// filter and mutation paths.
func (k Kind) IsTemporal() bool {
	switch k {
	case KindDate, KindTime, KindTimeTZ, KindDateTime, KindDateTimeTZ, KindInstant:
		return true
	}
	return false
}

// IsInteger reports whether the kind is a whole-number kind.
func (k Kind) IsInteger() bool {
	return k == KindInt16 || k == KindInt32 || k == KindInt64
}

// IsBit reports whether the kind is a bit-string kind.
func (k Kind) IsBit() bool {
	return k == KindBit || k == KindBitVarying
}

// Filterable reports whether fields of this kind can back a filter
// clause. Bytes and bit strings are displayed but never filtered.
func (k Kind) Filterable() bool {
	switch k {
	case KindInt16, KindInt32, KindInt64,
		KindFloat32, KindFloat64, KindDecimal,
		KindString, KindBool, KindUUID,
		KindDate, KindTime, KindTimeTZ,
		KindDateTime, KindDateTimeTZ, KindInstant:
		return true
	}
	return false
}
