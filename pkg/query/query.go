// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package query

import "sort"

// Query resolves id against root (a value described by schema), returning
// the addressed scalar Field, or ok=false if the path doesn't exist: an
// unknown field name, a dynamic index/key that's missing or unset, or a
// nil struct/scalar pointer anywhere along the path. Per spec §4.4's
// query(&M, &FieldId<M>) -> Option<Field>.
func Query(schema *Schema, root any, id FieldID) (Field, bool) {
	cur := root
	for i, seg := range id {
		if cur == nil {
			return Field{}, false
		}
		spec, ok := schema.find(seg.Name)
		if !ok {
			return Field{}, false
		}
		switch spec.Container {
		case ContainerScalar:
			if i != len(id)-1 {
				return Field{}, false
			}
			return toField(spec.Get(cur))
		case ContainerStruct:
			cur = spec.Get(cur)
			schema = spec.Sub
		case ContainerVec:
			if !seg.HasIdx {
				return Field{}, false
			}
			va, ok := spec.Get(cur).(VecAccessor)
			if !ok {
				return Field{}, false
			}
			elem, ok := va.At(seg.Idx)
			if !ok {
				return Field{}, false
			}
			cur = elem
			schema = spec.Sub
		case ContainerMap:
			if !seg.HasKey {
				return Field{}, false
			}
			ma, ok := spec.Get(cur).(MapAccessor)
			if !ok {
				return Field{}, false
			}
			elem, ok := ma.Get(seg.Key)
			if !ok {
				return Field{}, false
			}
			cur = elem
			schema = spec.Sub
		}
	}
	return Field{}, false
}

// maxSelfRecursiveDepth bounds AllVariants' descent into a
// self-referential Schema (a tree type like CgroupModelSchema, whose
// "children" field's Sub is itself). Unlike every other Schema here, a
// cgroup tree has no fixed depth at the type level, so naive recursion
// never terminates; capping it at two visits still surfaces one level of
// nested fields (e.g. "children.<key>.cpu.usage_pct") for tab construction
// without enumerating an unbounded tree.
const maxSelfRecursiveDepth = 2

// AllVariants enumerates one FieldID per reachable scalar leaf of schema,
// with every Vec/Map dynamic slot left unset (HasIdx/HasKey false) — spec
// §4.4's all_variant_iter, which "powers tab construction, dump-field
// expansion, and help output" and therefore only needs to describe the
// TYPE's shape, never concrete instance data.
func AllVariants(schema *Schema) []FieldID {
	return allVariants(schema, nil, map[*Schema]int{})
}

func allVariants(schema *Schema, prefix FieldID, depth map[*Schema]int) []FieldID {
	if depth[schema] >= maxSelfRecursiveDepth {
		return nil
	}
	depth[schema]++
	defer func() { depth[schema]-- }()

	var out []FieldID
	for _, spec := range schema.Fields {
		seg := Segment{Name: spec.Name}
		switch spec.Container {
		case ContainerVec:
			seg.Dynamic = DynamicIdx
		case ContainerMap:
			seg.Dynamic = DynamicKey
		}
		path := append(append(FieldID{}, prefix...), seg)
		switch spec.Container {
		case ContainerScalar:
			out = append(out, path)
		case ContainerStruct:
			out = append(out, allVariants(spec.Sub, path, depth)...)
		case ContainerVec, ContainerMap:
			out = append(out, allVariants(spec.Sub, path, depth)...)
		}
	}
	return out
}

// Sort stably reorders rows in place by the Field each resolves to at id,
// per spec §4.4: "rows where query returns None compare as equal to each
// other (tie-broken by original order)". Mirroring the source's derived
// Option<Field> ordering, a None row also always sorts before every Some
// row in ascending order (after Some in descending, i.e. when reverse).
// Rows resolving to mismatched Field kinds (Compare's ok=false) are also
// treated as equal, the same fallback the source's sort_by applies via
// unwrap_or(Ordering::Equal).
func Sort(schema *Schema, rows []any, id FieldID, reverse bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareRows(schema, rows[i], rows[j], id)
		if reverse {
			c = -c
		}
		return c < 0
	})
}

// compareRows returns -1/0/1. None sorts before every Some (matching the
// source's derived Option<Field> ordering); None-None and
// mismatched-Field-kind pairs both collapse to equal, per spec §4.4.
func compareRows(schema *Schema, a, b any, id FieldID) int {
	fa, oka := Query(schema, a, id)
	fb, okb := Query(schema, b, id)
	switch {
	case !oka && !okb:
		return 0
	case !oka:
		return -1
	case !okb:
		return 1
	default:
		cmp, ok := Compare(fa, fb)
		if !ok {
			return 0
		}
		return cmp
	}
}
