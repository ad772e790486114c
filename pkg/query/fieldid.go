// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one hop of a FieldID. Dynamic marks whether this hop also
// carries a dynamic idx/key token (a ContainerVec/ContainerMap field
// consumes two dotted tokens — name, then idx/key — while every other
// kind consumes one). HasIdx/HasKey false means the dynamic slot is
// unset: String renders it as the literal placeholder "<idx>"/"<key>"
// rather than omitting it, per spec §4.4.
type Segment struct {
	Name    string
	Dynamic DynamicKind
	Idx     int
	HasIdx  bool
	Key     string
	HasKey  bool
}

// DynamicKind says whether a Segment's path token is followed by a second,
// dynamic token (and which kind), independent of whether that dynamic
// slot is currently set.
type DynamicKind int

const (
	DynamicNone DynamicKind = iota
	DynamicIdx
	DynamicKey
)

// FieldID is a path from a Schema's root down to one scalar leaf.
type FieldID []Segment

// String renders id in the dotted form spec §4.4 describes: "." separated,
// with unset dynamic slots rendered as the literal placeholders "<idx>" /
// "<key>" and set ones rendered as their literal value.
func (id FieldID) String() string {
	var b strings.Builder
	for i, seg := range id {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Name)
		switch seg.Dynamic {
		case DynamicIdx:
			b.WriteByte('.')
			if seg.HasIdx {
				b.WriteString(strconv.Itoa(seg.Idx))
			} else {
				b.WriteString("<idx>")
			}
		case DynamicKey:
			b.WriteByte('.')
			if seg.HasKey {
				b.WriteString(seg.Key)
			} else {
				b.WriteString("<key>")
			}
		}
	}
	return b.String()
}

// Parse is String's inverse, resolved against schema so it knows, at each
// step, whether a field is a plain scalar/struct (one token) or a
// Vec/Map (two tokens: name then idx/key). Per spec §4.4, this only
// round-trips exactly when a map key itself contains no '.' — a key with
// dots is indistinguishable from further path segments, the same
// limitation the source's BTreeMapFieldId::from_str documents.
func Parse(schema *Schema, s string) (FieldID, error) {
	tokens := strings.Split(s, ".")
	var id FieldID
	for len(tokens) > 0 {
		name := tokens[0]
		tokens = tokens[1:]
		spec, ok := schema.find(name)
		if !ok {
			return nil, fmt.Errorf("query: unknown field %q in %q", name, s)
		}
		seg := Segment{Name: name}
		switch spec.Container {
		case ContainerScalar:
			id = append(id, seg)
			if len(tokens) > 0 {
				return nil, fmt.Errorf("query: trailing path segments after scalar field %q in %q", name, s)
			}
			return id, nil
		case ContainerStruct:
			id = append(id, seg)
			schema = spec.Sub
		case ContainerVec:
			seg.Dynamic = DynamicIdx
			if len(tokens) == 0 {
				return nil, fmt.Errorf("query: missing index for vec field %q in %q", name, s)
			}
			idxTok := tokens[0]
			tokens = tokens[1:]
			if idxTok != "<idx>" {
				idx, err := strconv.Atoi(idxTok)
				if err != nil {
					return nil, fmt.Errorf("query: invalid index %q for field %q in %q", idxTok, name, s)
				}
				seg.Idx, seg.HasIdx = idx, true
			}
			id = append(id, seg)
			schema = spec.Sub
		case ContainerMap:
			seg.Dynamic = DynamicKey
			if len(tokens) == 0 {
				return nil, fmt.Errorf("query: missing key for map field %q in %q", name, s)
			}
			keyTok := tokens[0]
			tokens = tokens[1:]
			if keyTok != "<key>" {
				seg.Key, seg.HasKey = keyTok, true
			}
			id = append(id, seg)
			schema = spec.Sub
		}
	}
	return nil, fmt.Errorf("query: path %q did not terminate in a scalar field", s)
}
