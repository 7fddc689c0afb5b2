package types

import (
	"testing"
)

func TestIdentical(t *testing.T) {
	a := NewLayout("Point")
	b := NewLayout("Point")

	tests := []struct {
		name string
		x, y Type
		want bool
	}{
		{"same basic", Int32, Int32, true},
		{"distinct basic", Int32, Int64, false},
		{"pointer structural", &Pointer{Elem: Int8}, &Pointer{Elem: Int8}, true},
		{"pointer elem differs", &Pointer{Elem: Int8}, &Pointer{Elem: Char}, false},
		{"array length differs", &Array{Elem: Int32, Len: 4}, &Array{Elem: Int32, Len: 5}, false},
		{"array equal", &Array{Elem: Int32, Len: 4}, &Array{Elem: Int32, Len: 4}, true},
		{"layout same decl", a, a, true},
		{"layout same shape other decl", a, b, false},
		{
			"func equal",
			&Func{Params: []Type{Int32, &Pointer{Elem: Char}}, Result: Void},
			&Func{Params: []Type{Int32, &Pointer{Elem: Char}}, Result: Void},
			true,
		},
		{
			"func arity differs",
			&Func{Params: []Type{Int32}, Result: Void},
			&Func{Params: []Type{Int32, Int32}, Result: Void},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Identical(tt.x, tt.y); got != tt.want {
				t.Errorf("Identical(%s, %s) = %v, want %v", tt.x, tt.y, got, tt.want)
			}
		})
	}
}

func TestAssignableTo(t *testing.T) {
	tests := []struct {
		name     string
		src, dst Type
		want     bool
	}{
		{"widen int8 to int32", Int8, Int32, true},
		{"widen char to int64", Char, Int64, true},
		{"no narrowing", Int64, Int32, false},
		{"char to int8 not in table", Char, Int8, false},
		{"bool to int", Bool, Int32, false},
		{"no pointer covariance", &Pointer{Elem: Int8}, &Pointer{Elem: Int32}, false},
		{"void pointer to any", VoidPtr, &Pointer{Elem: Int32}, true},
		{"any pointer to void pointer", &Pointer{Elem: Int32}, VoidPtr, true},
		{"pointer to int", &Pointer{Elem: Int32}, Int32, false},
		{"array does not decay implicitly here", &Array{Elem: Int32, Len: 2}, &Pointer{Elem: Int32}, false},
		{"invalid is compatible", Invalid, Int32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AssignableTo(tt.src, tt.dst); got != tt.want {
				t.Errorf("AssignableTo(%s, %s) = %v, want %v", tt.src, tt.dst, got, tt.want)
			}
		})
	}

	decayed := Decay(&Array{Elem: Int32, Len: 2})
	if !AssignableTo(decayed, &Pointer{Elem: Int32}) {
		t.Errorf("decayed array should be assignable to *int32, got %s", decayed)
	}
}

func TestConvertible(t *testing.T) {
	l := NewLayout("L")
	tests := []struct {
		name     string
		src, dst Type
		want     bool
	}{
		{"narrowing", Int64, Int8, true},
		{"char to int", Char, Int32, true},
		{"pointer to int", &Pointer{Elem: Char}, Int64, true},
		{"int to pointer", Int64, &Pointer{Elem: Char}, true},
		{"pointer to pointer", &Pointer{Elem: Char}, &Pointer{Elem: Int32}, true},
		{"bool to int", Bool, Int32, true},
		{"int to bool", Int32, Bool, false},
		{"layout to int", l, Int32, false},
		{"array to pointer", &Array{Elem: Int8, Len: 3}, &Pointer{Elem: Int8}, false},
		{"void", Void, Void, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Convertible(tt.src, tt.dst); got != tt.want {
				t.Errorf("Convertible(%s, %s) = %v, want %v", tt.src, tt.dst, got, tt.want)
			}
		})
	}
}

func TestConstAssignableTo(t *testing.T) {
	if !ConstAssignableTo(127, Int8) || ConstAssignableTo(128, Int8) {
		t.Errorf("int8 range check failed")
	}
	if !ConstAssignableTo(255, Char) || ConstAssignableTo(-1, Char) {
		t.Errorf("char range check failed")
	}
	if ConstAssignableTo(1, Bool) {
		t.Errorf("integer constant must not convert to bool")
	}
}

func TestWider(t *testing.T) {
	if got := Wider(Int8, Int32); got != Type(Int32) {
		t.Errorf("Wider(int8, int32) = %v", got)
	}
	if got := Wider(Char, Int8); got != nil {
		t.Errorf("Wider(char, int8) = %v, want nil", got)
	}
}
