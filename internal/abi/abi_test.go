package abi

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/calpha-lang/calpha/internal/types"
)

func TestDefaultTable(t *testing.T) {
	tab := Default()
	be.Equal(t, tab.Version.String(), "1.0.0")

	write, ok := tab.Lookup(1)
	be.True(t, ok)
	be.Equal(t, write.Name, "write")
	be.Equal(t, len(write.Params), 3)
	be.True(t, types.Identical(write.Params[1], &types.Pointer{Elem: types.Char}))
	be.Equal(t, write.Result, types.Type(types.Int64))
	be.Equal(t, write.String(), "write(int32, *char, int64) -> int64")

	_, ok = tab.Lookup(99)
	be.Equal(t, ok, false)

	var numbers []int64
	for _, sc := range tab.Syscalls() {
		numbers = append(numbers, sc.Number)
	}
	be.Equal(t, numbers, []int64{0, 1, 2, 3})
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "major version too new",
			json: `{"abi": "2.1.0", "syscalls": []}`,
			want: "does not satisfy",
		},
		{
			name: "bad version",
			json: `{"abi": "one", "syscalls": []}`,
			want: "invalid abi version",
		},
		{
			name: "duplicate number",
			json: `{"abi": "1.2.0", "syscalls": [
				{"number": 1, "name": "a", "params": [], "result": "void"},
				{"number": 1, "name": "b", "params": [], "result": "void"}]}`,
			want: "defined twice",
		},
		{
			name: "unknown type",
			json: `{"abi": "1.0.0", "syscalls": [{"number": 1, "name": "a", "params": ["float"], "result": "void"}]}`,
			want: "bad parameter type",
		},
		{
			name: "too many params",
			json: `{"abi": "1.0.0", "syscalls": [{"number": 1, "name": "a",
				"params": ["int8","int8","int8","int8","int8","int8","int8"], "result": "void"}]}`,
			want: "exceed the limit",
		},
		{
			name: "unknown field",
			json: `{"abi": "1.0.0", "extra": 1, "syscalls": []}`,
			want: "failed to decode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.json))
			if err == nil {
				t.Fatal("expected error")
			}
			be.True(t, strings.Contains(err.Error(), tt.want))
		})
	}
}

func TestLoadAcceptsMinorVersions(t *testing.T) {
	tab, err := Load(strings.NewReader(`{"abi": "1.4.2", "syscalls": [
		{"number": 60, "name": "exit", "params": ["int64"], "result": "void"},
		{"number": 9, "name": "mmap", "params": ["**char"], "result": "*void"}]}`))
	be.Err(t, err, nil)

	mmap, ok := tab.Lookup(9)
	be.True(t, ok)
	be.Equal(t, mmap.Params[0].String(), "**char")
	be.Equal(t, mmap.Result.String(), "*void")
}
