package types

// ====== Type Equivalence ======

// Identical reports whether a and b denote the same type. Basic, pointer,
// array and function types compare structurally; layouts compare by
// declaration identity.
func Identical(a, b Type) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return false
	}

	switch a := a.(type) {
	case *Basic:
		return false // singletons, handled by a == b
	case *Pointer:
		return Identical(a.Elem, b.(*Pointer).Elem)
	case *Array:
		o := b.(*Array)
		return a.Len == o.Len && Identical(a.Elem, o.Elem)
	case *Func:
		o := b.(*Func)
		if len(a.Params) != len(o.Params) || !Identical(a.Result, o.Result) {
			return false
		}
		for i := range a.Params {
			if !Identical(a.Params[i], o.Params[i]) {
				return false
			}
		}
		return true
	case *Layout:
		return false // distinct declarations
	}
	return false
}

// widening lists, for each basic type, the wider types it converts to
// implicitly. No other implicit conversion between basic types exists.
var widening = map[*Basic][]*Basic{
	Int8:  {Int16, Int32, Int64},
	Int16: {Int32, Int64},
	Int32: {Int64},
	Char:  {Int16, Int32, Int64},
}

// Widens reports whether from converts implicitly to to under the widening
// table.
func Widens(from, to Type) bool {
	fb, ok1 := from.(*Basic)
	tb, ok2 := to.(*Basic)
	if !ok1 || !ok2 {
		return false
	}
	for _, w := range widening[fb] {
		if w == tb {
			return true
		}
	}
	return false
}

// AssignableTo reports whether a value of type src may be stored into a
// location of type dst without a cast. Invalid is assignable in both
// directions so that errors do not cascade.
func AssignableTo(src, dst Type) bool {
	if IsInvalid(src) || IsInvalid(dst) {
		return true
	}
	if Identical(src, dst) || Widens(src, dst) {
		return true
	}
	sp, ok1 := src.(*Pointer)
	dp, ok2 := dst.(*Pointer)
	if ok1 && ok2 {
		return IsVoid(sp.Elem) || IsVoid(dp.Elem)
	}
	return false
}

// ConstAssignableTo reports whether the integer constant v may be stored
// into a location of type dst.
func ConstAssignableTo(v int64, dst Type) bool {
	if IsInvalid(dst) {
		return true
	}
	if !IsNumeric(dst) {
		return false
	}
	lo, hi := IntRange(dst)
	return lo <= v && v <= hi
}

// Decay converts an array type to a pointer to its element type. Other
// types are returned unchanged. Decay applies at use sites only.
func Decay(t Type) Type {
	if a, ok := t.(*Array); ok {
		return &Pointer{Elem: a.Elem}
	}
	return t
}

// Wider returns the type of a binary arithmetic expression over numeric
// operands a and b, or nil if neither widens to the other.
func Wider(a, b Type) Type {
	switch {
	case Identical(a, b):
		return a
	case Widens(a, b):
		return b
	case Widens(b, a):
		return a
	}
	return nil
}

// ====== Type Conversion Rules ======

// Convertible reports whether an explicit cast from src to dst is allowed.
// The allowed conversions are: numeric to numeric, integer to pointer and
// back, pointer to pointer, and bool to integer.
func Convertible(src, dst Type) bool {
	if IsInvalid(src) || IsInvalid(dst) {
		return true
	}
	if Identical(src, dst) && !IsVoid(src) {
		return true
	}
	switch {
	case IsNumeric(src) && IsNumeric(dst):
		return true
	case IsInteger(src) && IsPointer(dst), IsPointer(src) && IsInteger(dst):
		return true
	case IsPointer(src) && IsPointer(dst):
		return true
	case IsBool(src) && IsInteger(dst):
		return true
	}
	return false
}
