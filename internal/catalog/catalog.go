// Package catalog enumerates candidate source files per root. It
// distinguishes the project root, the typeshed root (one logical stub
// package per top-level subdirectory), and additional search-path roots.
package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"

	"github.com/foundrylab/pyfoundry/internal/pysrc"
)

const (
	stubSuffix   = ".pyi"
	sourceSuffix = ".py"
)

// legacyVersionDirs are typeshed subtrees for obsolete language versions,
// skipped during stub discovery.
var legacyVersionDirs = map[string]bool{
	"2":   true,
	"2.7": true,
}

// File is one discovered candidate: its discovery root, absolute path,
// and the path relative to that root (slash-separated).
type File struct {
	Root    string
	Path    string
	RelPath string
}

// Handle returns the store key for this file.
func (f File) Handle() pysrc.Handle { return pysrc.HandleFor(f.RelPath) }

// Qualifier returns the logical module name for this file.
func (f File) Qualifier() pysrc.Qualifier { return pysrc.QualifierFor(f.RelPath) }

// Options configures a Catalog.
type Options struct {
	ProjectRoot  string
	TypeshedRoot string   // optional
	SearchPaths  []string // ordered
	Excludes     []string // glob patterns matched against relative paths
}

// Catalog lists matching files beneath configured roots.
type Catalog struct {
	projectRoot  string
	typeshedRoot string
	searchPaths  []string
	excludes     []glob.Glob
}

// New builds a Catalog. The project root must exist; all other roots
// degrade to warnings at scan time.
func New(opts Options) (*Catalog, error) {
	root, err := filepath.Abs(opts.ProjectRoot)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	excludes := make([]glob.Glob, 0, len(opts.Excludes))
	for _, pattern := range opts.Excludes {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		excludes = append(excludes, g)
	}

	searchPaths := make([]string, 0, len(opts.SearchPaths))
	for _, p := range opts.SearchPaths {
		searchPaths = append(searchPaths, absPath(p))
	}
	typeshedRoot := opts.TypeshedRoot
	if typeshedRoot != "" {
		typeshedRoot = absPath(typeshedRoot)
	}

	return &Catalog{
		projectRoot:  root,
		typeshedRoot: typeshedRoot,
		searchPaths:  searchPaths,
		excludes:     excludes,
	}, nil
}

// absPath resolves p against the working directory; roots must compare
// as absolute paths so nested-root ownership can be decided.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// ProjectRoot returns the absolute project source root.
func (c *Catalog) ProjectRoot() string { return c.projectRoot }

// Roots returns every configured root in fixed precedence order: the
// project root, each top-level typeshed subdirectory, then every
// search-path root. This is both the stub scan order and the order the
// frontend relativizes paths against.
func (c *Catalog) Roots() []string {
	roots := []string{c.projectRoot}
	roots = append(roots, c.typeshedSubdirs()...)
	roots = append(roots, c.searchPaths...)
	return roots
}

// List walks root and returns files whose relative path satisfies pred,
// sorted by relative path. Symlinked files are attributed to their link
// location; the walk never follows a link to its target. An unreadable
// root or subdirectory contributes zero files and a warning, not a crash.
func (c *Catalog) List(root string, pred func(rel string) bool) []File {
	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			slog.Warn("catalog.list.err", "root", root, "path", path, "err", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if c.excluded(rel) || !pred(rel) {
			return nil
		}
		files = append(files, File{Root: root, Path: path, RelPath: rel})
		return nil
	})
	if err != nil {
		slog.Warn("catalog.list.err", "root", root, "err", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	slog.Info("catalog.scan", "root", root, "files", len(files))
	return files
}

// typeshedSubdirs lists the top-level directories of the typeshed root,
// sorted by name. A typeshed root that fails to list is logged and
// contributes nothing.
func (c *Catalog) typeshedSubdirs() []string {
	if c.typeshedRoot == "" {
		return nil
	}
	entries, err := os.ReadDir(c.typeshedRoot)
	if err != nil {
		slog.Warn("catalog.typeshed.err", "root", c.typeshedRoot, "err", err)
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(c.typeshedRoot, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

// StubCandidates lists stub files (.pyi) beneath one stub root,
// excluding legacy version subtrees.
func (c *Catalog) StubCandidates(root string) []File {
	return c.List(root, func(rel string) bool {
		return strings.HasSuffix(rel, stubSuffix) && !inLegacySubtree(rel)
	})
}

// StubBatches lists the stub candidates of every root in precedence
// order. Roots can nest (a search path inside the project root), which
// makes the same physical file visible from more than one root with
// different relative paths; each file is attributed to its most
// specific containing root only, so one file yields one candidate with
// the qualifier of the root it was configured under.
func (c *Catalog) StubBatches() [][]File {
	roots := c.Roots()
	batches := make([][]File, len(roots))
	owner := make(map[string]int)
	for i, root := range roots {
		batches[i] = c.StubCandidates(root)
		for _, f := range batches[i] {
			if j, ok := owner[f.Path]; !ok || len(roots[i]) > len(roots[j]) {
				owner[f.Path] = i
			}
		}
	}
	for i, batch := range batches {
		kept := batch[:0]
		for _, f := range batch {
			if owner[f.Path] == i {
				kept = append(kept, f)
			}
		}
		batches[i] = kept
	}
	return batches
}

// SourceCandidates lists project source files (.py), excluding any file
// whose derived qualifier the skip predicate claims. This is the dedup
// hook: a module already owned by a stub is never re-parsed.
func (c *Catalog) SourceCandidates(skip func(pysrc.Qualifier) bool) []File {
	return c.List(c.projectRoot, func(rel string) bool {
		if !strings.HasSuffix(rel, sourceSuffix) {
			return false
		}
		return skip == nil || !skip(pysrc.QualifierFor(rel))
	})
}

func (c *Catalog) excluded(rel string) bool {
	for _, g := range c.excludes {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// inLegacySubtree reports whether any path segment names an obsolete
// version subtree (e.g. stdlib/2/..., third_party/2.7/...).
func inLegacySubtree(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if legacyVersionDirs[seg] {
			return true
		}
	}
	return false
}
