// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

// Package query implements a hand-written, non-reflective field-addressing
// interpreter over the model package's types: a dotted FieldID names a path
// through a model value down to a single scalar Field, every Schema is a
// static table built once at package init (no reflect package calls at
// query time), and AllVariants/Sort build on top of that same table.
package query

import (
	"fmt"
	"strconv"
)

// Kind identifies which alternative of Field is populated.
type Kind int

const (
	KindU32 Kind = iota
	KindU64
	KindI32
	KindI64
	KindF32
	KindF64
	KindStr
	KindPidState
)

// Field is a dynamically-typed scalar query result. Exactly one of the
// typed accessors is meaningful, selected by Kind. Arithmetic and ordering
// are only ever defined between two Fields of the same Kind; mixing kinds
// is a programming error the caller made by querying mismatched paths, not
// a data condition, so Add panics instead of returning an error.
type Field struct {
	kind Kind
	u    uint64
	i    int64
	f    float64
	s    string
}

func U32(v uint32) Field     { return Field{kind: KindU32, u: uint64(v)} }
func U64(v uint64) Field     { return Field{kind: KindU64, u: v} }
func I32(v int32) Field      { return Field{kind: KindI32, i: int64(v)} }
func I64(v int64) Field      { return Field{kind: KindI64, i: v} }
func F32(v float32) Field    { return Field{kind: KindF32, f: float64(v)} }
func F64(v float64) Field    { return Field{kind: KindF64, f: v} }
func Str(v string) Field     { return Field{kind: KindStr, s: v} }
func PidState(v byte) Field  { return Field{kind: KindPidState, s: string(v)} }

func (f Field) Kind() Kind { return f.kind }

func (f Field) U32() uint32    { return uint32(f.u) }
func (f Field) U64() uint64    { return f.u }
func (f Field) I32() int32     { return int32(f.i) }
func (f Field) I64() int64     { return f.i }
func (f Field) F32() float32   { return float32(f.f) }
func (f Field) F64() float64   { return f.f }
func (f Field) Str() string    { return f.s }
func (f Field) PidStateByte() byte { return f.s[0] }

func (f Field) String() string {
	switch f.kind {
	case KindU32:
		return strconv.FormatUint(uint64(f.U32()), 10)
	case KindU64:
		return strconv.FormatUint(f.u, 10)
	case KindI32:
		return strconv.FormatInt(int64(f.I32()), 10)
	case KindI64:
		return strconv.FormatInt(f.i, 10)
	case KindF32:
		return strconv.FormatFloat(float64(f.F32()), 'g', -1, 32)
	case KindF64:
		return strconv.FormatFloat(f.f, 'g', -1, 64)
	case KindStr, KindPidState:
		return f.s
	default:
		return ""
	}
}

// asFloat64 is the common numeric representation every non-string Kind can
// be widened to, used by Compare and Add. Mirrors the source's blanket
// From<Field> for f64 impl, which only ever widens, never narrows.
func (f Field) asFloat64() (float64, bool) {
	switch f.kind {
	case KindU32:
		return float64(f.U32()), true
	case KindU64:
		return float64(f.u), true
	case KindI32:
		return float64(f.I32()), true
	case KindI64:
		return float64(f.i), true
	case KindF32:
		return float64(f.F32()), true
	case KindF64:
		return f.f, true
	default:
		return 0, false
	}
}

// Compare returns -1/0/1 the way sort wants, and ok=false when the two
// Fields are not the same Kind (e.g. one path resolved to a string, the
// other to a number) — the source's PartialOrd impl likewise only ever
// returns Some(_) for matching variants.
func Compare(a, b Field) (int, bool) {
	if a.kind != b.kind {
		return 0, false
	}
	switch a.kind {
	case KindStr, KindPidState:
		switch {
		case a.s < b.s:
			return -1, true
		case a.s > b.s:
			return 1, true
		default:
			return 0, true
		}
	default:
		af, _ := a.asFloat64()
		bf, _ := b.asFloat64()
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
}

// Add sums two same-kind Fields (numeric addition, or string concatenation
// for KindStr). It panics on a Kind mismatch or on an unsupported kind
// (KindPidState): per spec §4.4's Field description, "arithmetic on
// mixed or non-numeric kinds is a programming error (fails loudly)".
func Add(a, b Field) Field {
	if a.kind != b.kind {
		panic(fmt.Sprintf("query.Add: mismatched field kinds %v and %v", a.kind, b.kind))
	}
	switch a.kind {
	case KindU32:
		return U32(a.U32() + b.U32())
	case KindU64:
		return U64(a.u + b.u)
	case KindI32:
		return I32(a.I32() + b.I32())
	case KindI64:
		return I64(a.i + b.i)
	case KindF32:
		return F32(a.F32() + b.F32())
	case KindF64:
		return F64(a.f + b.f)
	case KindStr:
		return Str(a.s + b.s)
	default:
		panic(fmt.Sprintf("query.Add: unsupported field kind %v", a.kind))
	}
}
