// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package query

// Container classifies how a FieldSpec's value composes with the rest of
// the path: a plain scalar, a nested struct (subquery, recursed into
// directly), a slice (VecFieldId's idx-then-subquery shape), or a map
// (MapFieldId's key-then-subquery shape).
type Container int

const (
	ContainerScalar Container = iota
	ContainerStruct
	ContainerVec
	ContainerMap
)

// FieldSpec describes one named field of a Schema. Get is hand-written,
// non-reflective accessor code (a type assertion plus a struct field
// read) — the Go analogue of a derive macro's generated match arm.
//
// For ContainerScalar, Get returns a value convertible via toField (a
// pointer type means the field is optional: a nil pointer means the field
// is absent, the None case).
//
// For ContainerStruct, Get returns the sub-value (typically a pointer,
// nil meaning absent) and Sub names its Schema.
//
// For ContainerVec, Get returns a VecAccessor over elements of Sub's type.
// For ContainerMap, Get returns a MapAccessor over elements of Sub's type.
type FieldSpec struct {
	// Name is the serialized/query-path name, i.e. after any
	// preferred_name override — callers never see the underlying Go
	// struct field name if they differ.
	Name      string
	Container Container
	Get       func(parent any) any
	Sub       *Schema
}

// Schema is the static field table for one model type, built once at
// package init as a package-level variable (see modelschema.go) — never
// consulted through the reflect package.
type Schema struct {
	Fields []FieldSpec
}

func (s *Schema) find(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// VecAccessor abstracts over a concrete Go slice so Query/AllVariants/Sort
// never need to know the element type.
type VecAccessor interface {
	Len() int
	At(i int) (any, bool)
}

// MapAccessor abstracts over a concrete Go map with string-renderable
// keys (int32 keys are rendered in decimal, matching the dotted string
// form's requirement that a key have no '.').
type MapAccessor interface {
	Keys() []string // sorted, for deterministic iteration
	Get(key string) (any, bool)
}

// toField converts a scalar Get() result to a Field. Returns ok=false for
// a nil pointer (the field is absent on this instance) or an unrecognized
// Go type (a schema-authoring bug).
func toField(v any) (Field, bool) {
	switch t := v.(type) {
	case *uint32:
		if t == nil {
			return Field{}, false
		}
		return U32(*t), true
	case *uint64:
		if t == nil {
			return Field{}, false
		}
		return U64(*t), true
	case *int32:
		if t == nil {
			return Field{}, false
		}
		return I32(*t), true
	case *int64:
		if t == nil {
			return Field{}, false
		}
		return I64(*t), true
	case *float32:
		if t == nil {
			return Field{}, false
		}
		return F32(*t), true
	case *float64:
		if t == nil {
			return Field{}, false
		}
		return F64(*t), true
	case *string:
		if t == nil {
			return Field{}, false
		}
		return Str(*t), true
	case uint32:
		return U32(t), true
	case uint64:
		return U64(t), true
	case int32:
		return I32(t), true
	case int64:
		return I64(t), true
	case float32:
		return F32(t), true
	case float64:
		return F64(t), true
	case string:
		return Str(t), true
	case byte:
		return PidState(t), true
	default:
		return Field{}, false
	}
}
