// Package types implements the resolved type system of calpha.
//
// Semantic types are canonical values distinct from the syntactic annotations
// in package ast. Basic types are singletons, so they may be compared with ==;
// composite types are compared structurally with Identical, except layouts,
// which are compared by declaration identity.
package types

import (
	"fmt"
	"strings"
)

// ====== Core Type System ======

// TypeKind represents the kind of a type
type TypeKind int

const (
	TypeKindInvalid TypeKind = iota
	TypeKindVoid
	TypeKindBool
	TypeKindInt8
	TypeKindInt16
	TypeKindInt32
	TypeKindInt64
	TypeKindChar

	TypeKindPointer
	TypeKindArray
	TypeKindFunction
	TypeKindLayout
)

// String returns the string representation of a TypeKind
func (tk TypeKind) String() string {
	switch tk {
	case TypeKindVoid:
		return "void"
	case TypeKindBool:
		return "bool"
	case TypeKindInt8:
		return "int8"
	case TypeKindInt16:
		return "int16"
	case TypeKindInt32:
		return "int32"
	case TypeKindInt64:
		return "int64"
	case TypeKindChar:
		return "char"
	case TypeKindPointer:
		return "pointer"
	case TypeKindArray:
		return "array"
	case TypeKindFunction:
		return "function"
	case TypeKindLayout:
		return "layout"
	default:
		return "invalid"
	}
}

// Type is a resolved semantic type. The set of implementations is closed:
// *Basic, *Pointer, *Array, *Func and *Layout.
type Type interface {
	Kind() TypeKind
	String() string
	aType()
}

// Category groups basic types by the operators that accept them.
type Category int

const (
	CategoryNone Category = iota
	CategoryNumeric
	CategoryBoolean
)

// Basic is a predeclared scalar type.
type Basic struct {
	kind     TypeKind
	Name     string
	Size     int64
	Category Category
}

func (b *Basic) Kind() TypeKind { return b.kind }
func (b *Basic) String() string { return b.Name }
func (*Basic) aType()           {}

// Pointer is *Elem. Multiple levels of indirection nest Pointer values.
type Pointer struct {
	Elem Type
}

func (*Pointer) Kind() TypeKind   { return TypeKindPointer }
func (p *Pointer) String() string { return "*" + p.Elem.String() }
func (*Pointer) aType()           {}

// Array is a fixed-length sequence of Elem.
type Array struct {
	Elem Type
	Len  int64
}

func (*Array) Kind() TypeKind   { return TypeKindArray }
func (a *Array) String() string { return fmt.Sprintf("%s[%d]", a.Elem, a.Len) }
func (*Array) aType()           {}

// Func is the type of a function: ordered parameters and a result.
type Func struct {
	Params []Type
	Result Type
}

func (*Func) Kind() TypeKind { return TypeKindFunction }
func (f *Func) String() string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("fn(%s) -> %s", strings.Join(params, ", "), f.Result)
}
func (*Func) aType() {}

// Member is a named field of a layout.
type Member struct {
	Name   string
	Type   Type
	Offset int64
}

// Layout is a record type. Its members, size and alignment are filled in
// by the layout manager once all member types are resolved; until then
// Complete reports false.
type Layout struct {
	Name    string
	Members []*Member
	Size    int64
	Align   int64

	complete bool
}

// NewLayout creates an empty, incomplete layout type.
func NewLayout(name string) *Layout {
	return &Layout{Name: name}
}

func (*Layout) Kind() TypeKind   { return TypeKindLayout }
func (l *Layout) String() string { return l.Name }
func (*Layout) aType()           {}

// Complete reports whether offsets and size have been computed.
func (l *Layout) Complete() bool { return l.complete }

// MarkComplete records that offsets, size and alignment are final.
func (l *Layout) MarkComplete() { l.complete = true }

// Member returns the member with the given name.
func (l *Layout) Member(name string) (*Member, bool) {
	for _, m := range l.Members {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

// ====== Primitive Types ======

var (
	// Invalid marks an expression whose type could not be determined. It is
	// compatible with every type so that one error does not cascade.
	Invalid = &Basic{kind: TypeKindInvalid, Name: "<invalid>"}

	Void  = &Basic{kind: TypeKindVoid, Name: "void"}
	Bool  = &Basic{kind: TypeKindBool, Name: "bool", Size: 1, Category: CategoryBoolean}
	Int8  = &Basic{kind: TypeKindInt8, Name: "int8", Size: 1, Category: CategoryNumeric}
	Int16 = &Basic{kind: TypeKindInt16, Name: "int16", Size: 2, Category: CategoryNumeric}
	Int32 = &Basic{kind: TypeKindInt32, Name: "int32", Size: 4, Category: CategoryNumeric}
	Int64 = &Basic{kind: TypeKindInt64, Name: "int64", Size: 8, Category: CategoryNumeric}
	Char  = &Basic{kind: TypeKindChar, Name: "char", Size: 1, Category: CategoryNumeric}

	// VoidPtr is the bottom pointer type and the type of null.
	VoidPtr = &Pointer{Elem: Void}
)

var basics = map[string]*Basic{
	"void":  Void,
	"bool":  Bool,
	"int8":  Int8,
	"int16": Int16,
	"int32": Int32,
	"int64": Int64,
	"char":  Char,
}

// LookupBasic returns the predeclared type with the given name.
func LookupBasic(name string) (*Basic, bool) {
	b, ok := basics[name]
	return b, ok
}

// ====== Type Properties ======

// IsInvalid reports whether t is the error marker.
func IsInvalid(t Type) bool { return t == nil || t == Type(Invalid) }

// IsNumeric reports whether t is an integer or char type.
func IsNumeric(t Type) bool {
	b, ok := t.(*Basic)
	return ok && b.Category == CategoryNumeric
}

// IsInteger reports whether t is one of the intN types.
func IsInteger(t Type) bool {
	switch t.Kind() {
	case TypeKindInt8, TypeKindInt16, TypeKindInt32, TypeKindInt64:
		return true
	}
	return false
}

// IsBool reports whether t is bool.
func IsBool(t Type) bool { return t.Kind() == TypeKindBool }

// IsVoid reports whether t is void.
func IsVoid(t Type) bool { return t.Kind() == TypeKindVoid }

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool { return t.Kind() == TypeKindPointer }

// IsAggregate reports whether values of t live in memory rather than in a
// register: arrays and layouts.
func IsAggregate(t Type) bool {
	k := t.Kind()
	return k == TypeKindArray || k == TypeKindLayout
}

// IntRange returns the inclusive value range of a numeric basic type.
func IntRange(t Type) (lo, hi int64) {
	switch t.Kind() {
	case TypeKindInt8:
		return -1 << 7, 1<<7 - 1
	case TypeKindChar:
		return 0, 1<<8 - 1
	case TypeKindInt16:
		return -1 << 15, 1<<15 - 1
	case TypeKindInt32:
		return -1 << 31, 1<<31 - 1
	}
	return -1 << 63, 1<<63 - 1
}
