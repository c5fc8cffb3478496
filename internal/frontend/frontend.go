// Package frontend turns raw file content into a parsed Source plus
// metadata. Syntax failures are reported per file on a suppressible
// diagnostic channel and never abort a batch.
package frontend

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/foundrylab/pyfoundry/internal/pysrc"
)

// Preprocess is a pure transform applied to a Source after a successful
// parse, before store insertion.
type Preprocess func(*pysrc.Source) *pysrc.Source

// Extension is a pure transform over a file's top-level statements,
// applied after preprocessing.
type Extension func([]pysrc.Statement) []pysrc.Statement

// Options configures a Frontend.
type Options struct {
	// Roots, in precedence order, used to compute root-relative paths
	// when a call site supplies no discovery root. A file outside every
	// root fails soft with a path outcome.
	Roots []string

	Preprocessors []Preprocess
	Extensions    []Extension

	// Diagnostics surfaces per-file syntax errors at warning severity.
	// When false they go to the debug channel.
	Diagnostics bool
}

// Frontend parses individual files.
type Frontend struct {
	roots         []string
	preprocessors []Preprocess
	extensions    []Extension
	diagnostics   bool
}

// New returns a Frontend for the given options.
func New(opts Options) *Frontend {
	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, abs)
		}
	}
	return &Frontend{
		roots:         roots,
		preprocessors: opts.Preprocessors,
		extensions:    opts.Extensions,
		diagnostics:   opts.Diagnostics,
	}
}

// Parse reads and fully parses one file: metadata scan, grammar parse,
// docstring and statement extraction, then preprocess and extension
// hooks. The relative path is computed against root, the file's own
// discovery root; roots can nest, so the handle and qualifier must come
// from the root the catalog found the file under, not from whichever
// configured root happens to contain it. An empty root falls back to
// the configured roots in precedence order. Returns (nil, outcome) on
// any per-file failure; no failure propagates past the file.
func (f *Frontend) Parse(path, root string) (src *pysrc.Source, outcome pysrc.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("frontend.parse.panic", "path", path, "err", r)
			src = nil
			outcome = pysrc.Outcome{Kind: pysrc.OutcomeIOError, Path: path, Message: "unexpected parse failure"}
		}
	}()
	return f.parse(path, root, f.diagnostics, true)
}

// ParseModule is the cheap first-pass parse: it produces only the
// lightweight Module record, with error reporting suppressed.
func (f *Frontend) ParseModule(path, root string) (mod pysrc.Module, outcome pysrc.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("frontend.module.panic", "path", path, "err", r)
			mod = pysrc.Module{}
			outcome = pysrc.Outcome{Kind: pysrc.OutcomeIOError, Path: path, Message: "unexpected parse failure"}
		}
	}()

	src, out := f.parse(path, root, false, false)
	if src == nil {
		return pysrc.Module{}, out
	}
	return pysrc.ModuleOf(src), out
}

// parse is the shared path for both passes. Preprocess and extension
// hooks only run when hooks is set (the full second pass).
func (f *Frontend) parse(path, root string, diagnostics, hooks bool) (*pysrc.Source, pysrc.Outcome) {
	source, err := os.ReadFile(path)
	if err != nil {
		slog.Error("frontend.read.err", "path", path, "err", err)
		return nil, pysrc.IOError(path, err)
	}
	source = stripBOM(source)

	relPath, ok := f.relativize(path, root)
	if !ok {
		return nil, pysrc.PathError(path)
	}

	meta := pysrc.ScanMetadata(source)

	tree, err := parseTree(source)
	if err != nil {
		slog.Error("frontend.grammar.err", "path", path, "err", err)
		return nil, pysrc.IOError(path, err)
	}
	defer tree.Close()

	rootNode := tree.RootNode()
	if msg, line, bad := findSyntaxError(rootNode); bad {
		out := pysrc.SyntaxError(path, msg, line)
		f.diagnose(diagnostics, out)
		return nil, out
	}

	stmts := topLevelStatements(rootNode, source)
	if hooks {
		for _, ext := range f.extensions {
			stmts = ext(stmts)
		}
	}

	src := &pysrc.Source{
		Qualifier:  pysrc.QualifierFor(relPath),
		Handle:     pysrc.HandleFor(relPath),
		Path:       path,
		RelPath:    relPath,
		IsStub:     strings.HasSuffix(relPath, ".pyi"),
		Docstring:  moduleDocstring(rootNode, source),
		Metadata:   meta,
		Statements: stmts,
	}
	if hooks {
		for _, pre := range f.preprocessors {
			src = pre(src)
		}
	}
	return src, pysrc.Parsed(path)
}

// relativize expresses path relative to its discovery root, or to the
// first configured root that contains it when no discovery root is
// given. Fails soft when no root does.
func (f *Frontend) relativize(path, root string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	roots := f.roots
	if root != "" {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return "", false
		}
		roots = []string{absRoot}
	}
	for _, root := range roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return filepath.ToSlash(rel), true
	}
	return "", false
}

// diagnose logs a per-file syntax error on the diagnostic channel:
// warning when diagnostics are enabled, debug otherwise.
func (f *Frontend) diagnose(diagnostics bool, out pysrc.Outcome) {
	if diagnostics {
		slog.Warn("frontend.syntax", "path", out.Path, "line", out.Line, "msg", out.Message)
	} else {
		slog.Debug("frontend.syntax", "path", out.Path, "line", out.Line, "msg", out.Message)
	}
}

// stripBOM removes a UTF-8 BOM from the start of source. The grammar
// may choke on BOM bytes.
func stripBOM(source []byte) []byte {
	if len(source) >= 3 && source[0] == 0xEF && source[1] == 0xBB && source[2] == 0xBF {
		return source[3:]
	}
	return source
}
