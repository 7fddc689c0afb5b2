package compiler

import (
	"io/fs"
	"path"

	"github.com/calpha-lang/calpha/internal/ast"
	"github.com/calpha-lang/calpha/internal/diagnostic"
)

// importer loads the transitive imports of a unit. Each file is loaded
// once; an import of a file already seen, including one that closes a
// cycle, contributes nothing.
type importer struct {
	c    *Compiler
	fsys fs.FS
	res  *Result
	seen map[string]bool
}

// resolve returns the statements of every file imported by file,
// dependencies before dependents.
func (r *importer) resolve(file *ast.File) []ast.Stmt {
	var out []ast.Stmt
	for _, s := range file.Stmts {
		imp, ok := s.(*ast.Import)
		if !ok {
			continue
		}
		name := path.Join(path.Dir(file.Name), imp.Path)
		if r.seen[name] {
			continue
		}
		r.seen[name] = true

		if !fs.ValidPath(name) {
			r.res.Diagnostics.Errorf(diagnostic.ImportFailed, imp.Span, "cannot import %q: path escapes the source root", imp.Path)
			continue
		}
		data, err := fs.ReadFile(r.fsys, name)
		if err != nil {
			r.res.Diagnostics.Errorf(diagnostic.ImportFailed, imp.Span, "cannot import %q: %v", imp.Path, err)
			continue
		}

		r.c.log.Debug("import %s from %s", name, file.Name)
		dep := r.c.parse(r.res, name, string(data))
		out = append(out, r.resolve(dep)...)
		out = append(out, dep.Stmts...)
		r.res.Imports = append(r.res.Imports, name)
	}
	return out
}
