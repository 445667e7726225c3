package knode

import (
	"fmt"
	"slices"
)

// FieldType is the type of a schema column.
type FieldType int

const (
	FieldTypeInt FieldType = iota
	FieldTypeUInt
	FieldTypeFloat
	FieldTypeBoolean
	FieldTypeString
	FieldTypeBinary
	FieldTypeTimestamp
)

func (t FieldType) String() string {
	switch t {
	case FieldTypeInt:
		return "Int"
	case FieldTypeUInt:
		return "UInt"
	case FieldTypeFloat:
		return "Float"
	case FieldTypeBoolean:
		return "Boolean"
	case FieldTypeString:
		return "String"
	case FieldTypeBinary:
		return "Binary"
	case FieldTypeTimestamp:
		return "Timestamp"
	default:
		return "Unknown"
	}
}

// FieldDefinition describes one column.
type FieldDefinition struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Schema is an ordered set of typed columns. PrimaryIndex lists the positions
// of the columns forming the record key; it may be empty, in which case the
// whole record is the key.
type Schema struct {
	Fields       []FieldDefinition
	PrimaryIndex []int
}

// Field adds a column and returns the schema for chaining.
func (s Schema) Field(def FieldDefinition, primary bool) Schema {
	s.Fields = append(slices.Clone(s.Fields), def)
	if primary {
		s.PrimaryIndex = append(slices.Clone(s.PrimaryIndex), len(s.Fields)-1)
	}
	return s
}

// Equal reports whether both schemas have the same columns and key.
func (s Schema) Equal(other Schema) bool {
	return slices.Equal(s.Fields, other.Fields) && slices.Equal(s.PrimaryIndex, other.PrimaryIndex)
}

// Validate checks that the primary index references existing columns.
func (s Schema) Validate() error {
	for _, idx := range s.PrimaryIndex {
		if idx < 0 || idx >= len(s.Fields) {
			return fmt.Errorf("%w: primary index %d out of range (%d fields)", ErrInvalidSchema, idx, len(s.Fields))
		}
	}
	return nil
}

// SchemaRequired returns the schema connected to port, or ErrMissingInputSchema.
func SchemaRequired(inputs map[PortHandle]Schema, port PortHandle) (Schema, error) {
	schema, ok := inputs[port]
	if !ok {
		return Schema{}, fmt.Errorf("%w: port %d", ErrMissingInputSchema, port)
	}
	return schema, nil
}
