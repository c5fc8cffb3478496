// Package pysrc defines the data model shared across the ingestion
// pipeline: handles, module qualifiers, per-file metadata, and the
// parsed source record that downstream analyses read.
package pysrc

import (
	"path/filepath"
	"strings"
)

// Handle is the stable store key for a file, derived from its
// slash-normalized root-relative path. Two files with the same relative
// path produce the same handle; re-insertion overwrites.
type Handle string

// HandleFor returns the handle for a root-relative path.
func HandleFor(relPath string) Handle {
	return Handle(filepath.ToSlash(relPath))
}

// Qualifier is the dotted logical module name derived from a relative
// path (e.g. "pkg.util"). A stub and a concrete source in different
// roots can map to the same qualifier.
type Qualifier string

// QualifierFor derives a module qualifier from a root-relative path:
// the extension is stripped, path separators become dots, and a trailing
// __init__ segment is dropped (a package's init file names the package).
func QualifierFor(relPath string) Qualifier {
	relPath = strings.TrimSuffix(relPath, filepath.Ext(relPath))
	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) > 0 && parts[len(parts)-1] == "__init__" {
		parts = parts[:len(parts)-1]
	}
	return Qualifier(strings.Join(parts, "."))
}

// Mode is the analysis mode a file declares via a comment directive.
type Mode int

const (
	ModeDefault Mode = iota
	ModeStrict
	ModeUnsafe
	ModeIgnoreAll
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeUnsafe:
		return "unsafe"
	case ModeIgnoreAll:
		return "ignore_all"
	default:
		return "default"
	}
}

// Metadata holds per-file facts that are cheap to extract before full
// parsing. It drives the first pipeline pass.
type Metadata struct {
	Mode Mode
}

// ScanMetadata scans source lines for mode directives. The scan is
// line-level; no parse is required. The first directive found wins.
func ScanMetadata(source []byte) Metadata {
	for line := range strings.Lines(string(source)) {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !strings.HasPrefix(trimmed, "#") {
			// Directives only count before the first code line.
			break
		}
		switch {
		case hasDirective(trimmed, "# pyre-strict"):
			return Metadata{Mode: ModeStrict}
		case hasDirective(trimmed, "# pyre-unsafe"):
			return Metadata{Mode: ModeUnsafe}
		case hasDirective(trimmed, "# pyre-ignore-all-errors"):
			return Metadata{Mode: ModeIgnoreAll}
		}
	}
	return Metadata{Mode: ModeDefault}
}

// hasDirective reports whether line carries the directive as a whole
// token: the name followed by end of line, whitespace, or an error-code
// list. "# pyre-strict-extra" is not a directive.
func hasDirective(line, name string) bool {
	rest, ok := strings.CutPrefix(line, name)
	if !ok {
		return false
	}
	return rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '['
}

// Statement is a lightweight record of one top-level statement in a
// parsed file. Name is set for definitions (def/class), empty otherwise.
type Statement struct {
	Kind      string
	Name      string
	StartLine int
	EndLine   int
}

// Source is the full parse result for one file. Immutable once
// constructed; stored by Handle.
type Source struct {
	Qualifier  Qualifier
	Handle     Handle
	Path       string // absolute path
	RelPath    string // relative to its discovery root
	IsStub     bool
	Docstring  string
	Metadata   Metadata
	Statements []Statement
}

// Module is the lightweight first-pass registration for a qualifier,
// cheaper than a full Source. It lets later stages answer "does
// qualifier X exist" before the expensive second pass runs.
type Module struct {
	Qualifier      Qualifier
	Mode           Mode
	Path           string
	IsStub         bool
	StatementCount int
}

// ModuleOf builds the first-pass record from a fully parsed source.
func ModuleOf(s *Source) Module {
	return Module{
		Qualifier:      s.Qualifier,
		Mode:           s.Metadata.Mode,
		Path:           s.Path,
		IsStub:         s.IsStub,
		StatementCount: len(s.Statements),
	}
}

// ResultSet is the orchestrator's final output. Ordering is
// deterministic in both scheduling modes.
type ResultSet struct {
	Stubs   []Handle
	Sources []Handle
}
