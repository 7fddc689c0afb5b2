// Package lsp implements a Language Server Protocol server for calpha
// over a Content-Length framed JSON-RPC stream.
//
// Every open document is analyzed from scratch on each version, in its
// own goroutine. Results are published only while the document is still
// at the analyzed version; results for superseded versions are dropped.
package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/calpha-lang/calpha/internal/cli"
	"github.com/calpha-lang/calpha/internal/compiler"
)

// ErrExitWithoutShutdown is returned by Run when the client sends exit
// before shutdown.
var ErrExitWithoutShutdown = errors.New("lsp: exit before shutdown")

// Server lifecycle states.
const (
	stateNew int32 = iota
	stateRunning
	stateShutdown
)

// ServerOptions configures the language server.
type ServerOptions struct {
	// Compiler configures the analysis of each document. Its FS is
	// replaced per document by the document's directory.
	Compiler compiler.Options
	// Logger receives server logs; nil is silent.
	Logger *cli.Logger
}

// Server is a language server bound to one input and output stream.
type Server struct {
	in   *bufio.Reader
	out  io.Writer
	log  *cli.Logger
	comp *compiler.Compiler

	writeMu sync.Mutex

	// mu guards docs and related. It is held while publishing so that
	// diagnostics for one document reach the client in version order.
	mu      sync.Mutex
	docs    map[string]*document
	related map[string]map[string]bool

	state atomic.Int32
	wg    sync.WaitGroup

	analyze    func(compiler.Unit) *compiler.Result
	onAnalyzed func(uri string, version int, published bool)
}

// NewServer creates a server reading requests from in and writing
// responses and notifications to out.
func NewServer(in io.Reader, out io.Writer, opts *ServerOptions) *Server {
	if opts == nil {
		opts = &ServerOptions{}
	}
	log := opts.Logger
	if log == nil {
		log = cli.Discard()
	}
	copts := opts.Compiler
	copts.Logger = log
	s := &Server{
		in:      bufio.NewReader(in),
		out:     out,
		log:     log,
		comp:    compiler.New(copts),
		docs:    make(map[string]*document),
		related: make(map[string]map[string]bool),
	}
	s.analyze = s.comp.Analyze
	return s
}

// RunStdio serves on the process's standard streams, logging to stderr.
func RunStdio(ctx context.Context, opts *ServerOptions) error {
	if opts == nil {
		opts = &ServerOptions{}
	}
	if opts.Logger == nil {
		opts.Logger = cli.NewLogger(os.Stderr, false, false)
	}
	return NewServer(os.Stdin, os.Stdout, opts).Run(ctx)
}

// Run processes messages until the client sends exit, the input ends or
// ctx is cancelled. It waits for pending analyses before returning.
func (s *Server) Run(ctx context.Context) error {
	frames := make(chan []byte)
	errc := make(chan error, 1)
	quit := make(chan struct{})
	defer close(quit)
	defer s.wg.Wait()

	go func() {
		for {
			body, err := readFrame(s.in)
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- body:
			case <-quit:
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case body := <-frames:
			var msg message
			if err := json.Unmarshal(body, &msg); err != nil {
				s.reply(json.RawMessage("null"), nil, errorf(CodeParseError, "parse error: %v", err))
				continue
			}
			if msg.Method == "exit" {
				if s.state.Load() != stateShutdown {
					return ErrExitWithoutShutdown
				}
				return nil
			}
			s.handle(&msg)
		}
	}
}

func (s *Server) handle(msg *message) {
	s.log.Debug("lsp <- %s", msg.Method)
	if !msg.isRequest() {
		s.notify(msg)
		return
	}
	result, rerr := s.request(msg)
	if rerr != nil {
		s.log.Debug("lsp %s failed: %s", msg.Method, rerr.Message)
	}
	s.reply(msg.ID, result, rerr)
}

func (s *Server) request(msg *message) (any, *ResponseError) {
	state := s.state.Load()
	switch {
	case msg.Method == "initialize":
		if state != stateNew {
			return nil, errorf(CodeInvalidRequest, "server already initialized")
		}
		return s.initialize(msg.Params)
	case state == stateNew:
		return nil, errorf(CodeServerNotInitialized, "server not initialized")
	case state == stateShutdown:
		return nil, errorf(CodeInvalidRequest, "server is shutting down")
	}

	switch msg.Method {
	case "shutdown":
		s.state.Store(stateShutdown)
		s.log.Info("shutdown requested")
		return nil, nil
	case "textDocument/hover":
		var p TextDocumentPositionParams
		if err := decode(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.hover(p), nil
	case "textDocument/definition":
		var p TextDocumentPositionParams
		if err := decode(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.definition(p), nil
	case "textDocument/references":
		var p ReferenceParams
		if err := decode(msg.Params, &p); err != nil {
			return nil, err
		}
		return s.references(p), nil
	}
	return nil, errorf(CodeMethodNotFound, "method not found: %s", msg.Method)
}

func (s *Server) initialize(raw json.RawMessage) (any, *ResponseError) {
	var p InitializeParams
	if err := decode(raw, &p); err != nil {
		return nil, err
	}
	s.state.Store(stateRunning)
	if p.ClientInfo != nil {
		s.log.Info("initialize from %s %s", p.ClientInfo.Name, p.ClientInfo.Version)
	}
	return &InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    TextDocumentSyncKindFull,
				Save:      &SaveOptions{},
			},
			HoverProvider:      true,
			DefinitionProvider: true,
			ReferencesProvider: true,
		},
		ServerInfo: ServerInfo{Name: "calpha-lsp", Version: cli.Version},
	}, nil
}

// notify handles a notification. Notifications are dropped before
// initialize and after shutdown.
func (s *Server) notify(msg *message) {
	if s.state.Load() != stateRunning {
		return
	}
	switch msg.Method {
	case "initialized":
		s.log.Info("client initialized")
	case "textDocument/didOpen":
		var p DidOpenTextDocumentParams
		if decode(msg.Params, &p) == nil {
			s.open(p.TextDocument)
		}
	case "textDocument/didChange":
		var p DidChangeTextDocumentParams
		if decode(msg.Params, &p) == nil && len(p.ContentChanges) > 0 {
			s.change(p.TextDocument, p.ContentChanges[len(p.ContentChanges)-1].Text)
		}
	case "textDocument/didSave":
		var p DidSaveTextDocumentParams
		if decode(msg.Params, &p) == nil {
			s.save(p.TextDocument.URI)
		}
	case "textDocument/didClose":
		var p DidCloseTextDocumentParams
		if decode(msg.Params, &p) == nil {
			s.close(p.TextDocument.URI)
		}
	default:
		s.log.Debug("ignoring notification %s", msg.Method)
	}
}

func decode(raw json.RawMessage, v any) *ResponseError {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errorf(CodeInvalidParams, "invalid params: %v", err)
	}
	return nil
}

func (s *Server) reply(id json.RawMessage, result any, rerr *ResponseError) {
	resp := response{JSONRPC: "2.0", ID: id, Error: rerr}
	if rerr == nil {
		data, err := json.Marshal(result)
		if err != nil {
			resp.Error = errorf(CodeInternalError, "marshal result: %v", err)
		} else {
			resp.Result = data
		}
	}
	s.write(resp)
}

func (s *Server) send(method string, params any) {
	s.write(notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) write(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := writeFrame(s.out, v); err != nil {
		s.log.Error("%v", fmt.Errorf("lsp: write: %w", err))
	}
}
