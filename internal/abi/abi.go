// Package abi loads the syscall contract: the externally defined mapping from
// syscall number to argument and result types. The compiler consumes this
// table as configuration and never derives it.
package abi

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	semver "github.com/Masterminds/semver/v3"

	"github.com/calpha-lang/calpha/internal/types"
)

// Constraint is the range of table versions this compiler understands.
const Constraint = "^1.0.0"

// MaxArgs is the number of argument registers available to a syscall.
const MaxArgs = 6

//go:embed default.json
var defaultTable []byte

// Syscall is the contract for one syscall number.
type Syscall struct {
	Number int64
	Name   string
	Params []types.Type
	Result types.Type
}

func (s *Syscall) String() string {
	params := make([]string, len(s.Params))
	for i, p := range s.Params {
		params[i] = p.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", s.Name, strings.Join(params, ", "), s.Result)
}

// Table maps syscall numbers to their contracts.
type Table struct {
	Version  *semver.Version
	byNumber map[int64]*Syscall
}

type tableFile struct {
	ABI      string `json:"abi"`
	Syscalls []struct {
		Number int64    `json:"number"`
		Name   string   `json:"name"`
		Params []string `json:"params"`
		Result string   `json:"result"`
	} `json:"syscalls"`
}

// Load reads a JSON syscall table and checks its version against
// Constraint.
func Load(r io.Reader) (*Table, error) {
	var f tableFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode syscall table: %w", err)
	}

	version, err := semver.NewVersion(f.ABI)
	if err != nil {
		return nil, fmt.Errorf("invalid abi version %q: %w", f.ABI, err)
	}
	constraint, err := semver.NewConstraint(Constraint)
	if err != nil {
		return nil, err
	}
	if !constraint.Check(version) {
		return nil, fmt.Errorf("abi version %s does not satisfy %s", version, Constraint)
	}

	t := &Table{Version: version, byNumber: make(map[int64]*Syscall)}
	for _, e := range f.Syscalls {
		if _, dup := t.byNumber[e.Number]; dup {
			return nil, fmt.Errorf("syscall %d defined twice", e.Number)
		}
		if len(e.Params) > MaxArgs {
			return nil, fmt.Errorf("syscall %s: %d parameters exceed the limit of %d", e.Name, len(e.Params), MaxArgs)
		}
		sc := &Syscall{Number: e.Number, Name: e.Name}
		for _, p := range e.Params {
			pt, err := parseType(p)
			if err != nil || types.IsVoid(pt) {
				return nil, fmt.Errorf("syscall %s: bad parameter type %q", e.Name, p)
			}
			sc.Params = append(sc.Params, pt)
		}
		if sc.Result, err = parseType(e.Result); err != nil {
			return nil, fmt.Errorf("syscall %s: bad result type %q", e.Name, e.Result)
		}
		t.byNumber[e.Number] = sc
	}
	return t, nil
}

// LoadFile reads a syscall table from disk.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Load(strings.NewReader(string(defaultTable)))
	if err != nil {
		panic(fmt.Sprintf("abi: embedded table: %v", err))
	}
	return t
}

// Lookup returns the contract for a syscall number.
func (t *Table) Lookup(number int64) (*Syscall, bool) {
	sc, ok := t.byNumber[number]
	return sc, ok
}

// Syscalls returns every contract ordered by number.
func (t *Table) Syscalls() []*Syscall {
	out := make([]*Syscall, 0, len(t.byNumber))
	for _, sc := range t.byNumber {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// parseType accepts a basic type name with any number of leading '*'.
func parseType(s string) (types.Type, error) {
	s = strings.TrimSpace(s)
	depth := 0
	for strings.HasPrefix(s, "*") {
		depth++
		s = strings.TrimSpace(s[1:])
	}
	b, ok := types.LookupBasic(s)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", s)
	}
	var t types.Type = b
	for i := 0; i < depth; i++ {
		t = &types.Pointer{Elem: t}
	}
	return t, nil
}
