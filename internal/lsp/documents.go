package lsp

import (
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/calpha-lang/calpha/internal/compiler"
	"github.com/calpha-lang/calpha/internal/diagnostic"
	"github.com/calpha-lang/calpha/internal/position"
)

// document is an open text document and the last analysis published
// for it.
type document struct {
	uri     string
	version int
	text    string
	files   files

	result   *compiler.Result
	analyzed int
}

// files maps between compile-unit file names and URIs for one document.
// A file: URI compiles as its base name with imports resolved against its
// directory; any other URI compiles in isolation.
type files struct {
	uri  string
	name string
	dir  string
}

func newFiles(uri string) files {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" || u.Path == "" {
		return files{uri: uri, name: "untitled.ca"}
	}
	p := filepath.FromSlash(u.Path)
	return files{uri: uri, name: filepath.Base(p), dir: filepath.Dir(p)}
}

// URI returns the URI of a unit file name, or "" when the file has no
// location on disk.
func (f files) URI(name string) string {
	if name == "" || name == f.name {
		return f.uri
	}
	if f.dir == "" {
		return ""
	}
	p := filepath.Join(f.dir, filepath.FromSlash(name))
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(p)}).String()
}

func (f files) unit(text string) compiler.Unit {
	u := compiler.Unit{Name: f.name, Source: text}
	if f.dir != "" {
		u.FS = os.DirFS(f.dir)
	}
	return u
}

func (s *Server) open(item TextDocumentItem) {
	s.mu.Lock()
	doc := &document{uri: item.URI, version: item.Version, text: item.Text, files: newFiles(item.URI)}
	s.docs[item.URI] = doc
	s.mu.Unlock()
	s.log.Debug("open %s v%d", item.URI, item.Version)
	s.schedule(doc.files, item.Version, item.Text)
}

func (s *Server) change(id VersionedTextDocumentIdentifier, text string) {
	s.mu.Lock()
	doc := s.docs[id.URI]
	if doc == nil {
		s.mu.Unlock()
		s.log.Warn("change for unopened document %s", id.URI)
		return
	}
	doc.version = id.Version
	doc.text = text
	f := doc.files
	s.mu.Unlock()
	s.schedule(f, id.Version, text)
}

// save reanalyzes the current text, since imported files may have
// changed on disk.
func (s *Server) save(uri string) {
	s.mu.Lock()
	doc := s.docs[uri]
	if doc == nil {
		s.mu.Unlock()
		return
	}
	f, version, text := doc.files, doc.version, doc.text
	s.mu.Unlock()
	s.schedule(f, version, text)
}

func (s *Server) close(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[uri]; !ok {
		return
	}
	delete(s.docs, uri)
	s.send("textDocument/publishDiagnostics", &PublishDiagnosticsParams{URI: uri, Diagnostics: []Diagnostic{}})
	for other := range s.related[uri] {
		s.send("textDocument/publishDiagnostics", &PublishDiagnosticsParams{URI: other, Diagnostics: []Diagnostic{}})
	}
	delete(s.related, uri)
}

// schedule analyzes one version of a document in its own goroutine.
func (s *Server) schedule(f files, version int, text string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		res := s.analyze(f.unit(text))
		published := s.publish(f.uri, version, res)
		if s.onAnalyzed != nil {
			s.onAnalyzed(f.uri, version, published)
		}
	}()
}

// publish sends the diagnostics of res if the document is still at
// version. Diagnostics in imported files go to those files' URIs unless
// they are open themselves.
func (s *Server) publish(uri string, version int, res *compiler.Result) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.docs[uri]
	if doc == nil || doc.version != version {
		s.log.Debug("discard analysis of %s v%d", uri, version)
		return false
	}
	doc.result = res
	doc.analyzed = version

	byURI := map[string][]Diagnostic{uri: {}}
	for _, d := range res.Diagnostics {
		target := doc.files.URI(d.Range.Start.Filename)
		if target == "" {
			target = uri
		}
		if _, open := s.docs[target]; open && target != uri {
			continue
		}
		byURI[target] = append(byURI[target], toDiagnostic(res, doc.files, d))
	}

	prev := s.related[uri]
	next := make(map[string]bool)
	for target := range byURI {
		if target != uri {
			next[target] = true
		}
	}
	for target := range prev {
		if !next[target] {
			byURI[target] = []Diagnostic{}
		}
	}
	s.related[uri] = next

	targets := make([]string, 0, len(byURI))
	for target := range byURI {
		if target != uri {
			targets = append(targets, target)
		}
	}
	sort.Strings(targets)

	v := version
	s.send("textDocument/publishDiagnostics", &PublishDiagnosticsParams{URI: uri, Version: &v, Diagnostics: byURI[uri]})
	for _, target := range targets {
		s.send("textDocument/publishDiagnostics", &PublishDiagnosticsParams{URI: target, Diagnostics: byURI[target]})
	}
	s.log.Debug("publish %s v%d: %d diagnostic(s)", uri, version, len(res.Diagnostics))
	return true
}

func toDiagnostic(res *compiler.Result, f files, d diagnostic.Diagnostic) Diagnostic {
	out := Diagnostic{
		Range:    toRange(res, d.Range),
		Severity: int(d.Level),
		Code:     string(d.Code),
		Source:   "calpha",
		Message:  d.Message,
	}
	for _, rel := range d.Related {
		target := f.URI(rel.Range.Start.Filename)
		if target == "" {
			continue
		}
		out.RelatedInformation = append(out.RelatedInformation, DiagnosticRelatedInformation{
			Location: Location{URI: target, Range: toRange(res, rel.Range)},
			Message:  rel.Message,
		})
	}
	return out
}

// toRange converts a source range to protocol coordinates, counting
// characters in UTF-16 units of the file's text.
func toRange(res *compiler.Result, r position.Range) Range {
	sf := res.Source(r.Start.Filename)
	if sf == nil {
		return Range{
			Start: Position{Line: max(r.Start.Line-1, 0), Character: max(r.Start.Column-1, 0)},
			End:   Position{Line: max(r.End.Line-1, 0), Character: max(r.End.Column-1, 0)},
		}
	}
	return Range{Start: positionAt(sf.Content, r.Start.Offset), End: positionAt(sf.Content, r.End.Offset)}
}
