package ingest

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/foundrylab/pyfoundry/internal/aststore"
	"github.com/foundrylab/pyfoundry/internal/catalog"
	"github.com/foundrylab/pyfoundry/internal/frontend"
	"github.com/foundrylab/pyfoundry/internal/pysrc"
	"github.com/foundrylab/pyfoundry/internal/sched"
)

// captureRecorder collects events for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events map[string][]map[string]int64
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{events: make(map[string][]map[string]int64)}
}

func (r *captureRecorder) RecordEvent(name string, ints map[string]int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[name] = append(r.events[name], ints)
}

func (r *captureRecorder) RecordPerformance(name string, _ time.Duration, ints map[string]int64, strs map[string]string) {
	r.RecordEvent(name, ints, strs)
}

func (r *captureRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events[name])
}

func (r *captureRecorder) lastInts(name string) map[string]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	evs := r.events[name]
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newOrchestrator(t *testing.T, rec *captureRecorder, parallel bool, project, typeshed string, searchPaths []string) *Orchestrator {
	t.Helper()
	cat, err := catalog.New(catalog.Options{
		ProjectRoot:  project,
		TypeshedRoot: typeshed,
		SearchPaths:  searchPaths,
	})
	if err != nil {
		t.Fatal(err)
	}
	return New(Options{
		Catalog:   cat,
		Scheduler: sched.New(sched.Options{Parallel: parallel, Workers: 4}),
		Store:     aststore.New(),
		Frontend:  frontend.New(frontend.Options{Roots: cat.Roots()}),
		Recorder:  rec,
	})
}

func TestStubPreemptsSource(t *testing.T) {
	project := t.TempDir()
	stubRoot := t.TempDir()
	writeFile(t, filepath.Join(project, "a.py"), "def impl():\n    return 1\n")
	writeFile(t, filepath.Join(project, "b.py"), "def broken(:\n    return 1\n")
	writeFile(t, filepath.Join(stubRoot, "a.pyi"), "def impl() -> int: ...\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, "", []string{stubRoot})

	result, err := orch.ParseAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Stubs) != 1 || result.Stubs[0] != "a.pyi" {
		t.Fatalf("stubs = %v, want [a.pyi]", result.Stubs)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("sources = %v, want empty (a.py pre-empted, b.py dropped)", result.Sources)
	}
	if rec.count("interfering_stub") != 0 {
		t.Fatal("no stub conflict expected")
	}
	ints := rec.lastInts("batch_sources")
	if ints["syntax_errors"] != 1 {
		t.Fatalf("syntax_errors = %d, want 1", ints["syntax_errors"])
	}
	if ints["discovered"] != 1 {
		t.Fatalf("discovered = %d, want 1 (only b.py survives the dedup filter)", ints["discovered"])
	}

	// The stub's module record is registered under the shared qualifier.
	mod, ok := orch.Store().Module("a")
	if !ok || !mod.IsStub {
		t.Fatalf("module a = %+v ok=%v, want the stub registration", mod, ok)
	}
}

func TestInterferingStubs(t *testing.T) {
	project := t.TempDir()
	search1 := t.TempDir()
	search2 := t.TempDir()
	writeFile(t, filepath.Join(search1, "pkg", "util.pyi"), "A = 1\n")
	writeFile(t, filepath.Join(search2, "pkg", "util.pyi"), "B = 2\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, "", []string{search1, search2})

	result, err := orch.ParseAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rec.count("interfering_stub") != 1 {
		t.Fatalf("interfering_stub fired %d times, want 1", rec.count("interfering_stub"))
	}
	if len(result.Stubs) != 1 || result.Stubs[0] != "pkg/util.pyi" {
		t.Fatalf("stubs = %v, want exactly one handle for pkg.util", result.Stubs)
	}
	if orch.Store().Get("pkg/util.pyi") == nil {
		t.Fatal("the surviving stub must stay in the store")
	}
}

func TestInterferingStubsDistinctHandles(t *testing.T) {
	project := t.TempDir()
	search := t.TempDir()
	// Same qualifier from two distinct relative paths in one root.
	writeFile(t, filepath.Join(project, "pkg", "__init__.pyi"), "A = 1\n")
	writeFile(t, filepath.Join(search, "pkg.pyi"), "B = 2\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, "", []string{search})

	result, err := orch.ParseAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if rec.count("interfering_stub") != 1 {
		t.Fatalf("interfering_stub fired %d times, want 1", rec.count("interfering_stub"))
	}
	if len(result.Stubs) != 1 || result.Stubs[0] != "pkg/__init__.pyi" {
		t.Fatalf("stubs = %v, want the first-registered handle", result.Stubs)
	}
	if orch.Store().Get("pkg.pyi") != nil {
		t.Fatal("the losing stub's source must be evicted")
	}
}

func TestNestedSearchPathStubPreemption(t *testing.T) {
	project := t.TempDir()
	stubRoot := filepath.Join(project, "stubs")
	writeFile(t, filepath.Join(project, "pkg", "util.py"), "def f():\n    return 1\n")
	writeFile(t, filepath.Join(stubRoot, "pkg", "util.pyi"), "def f() -> int: ...\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, "", []string{stubRoot})

	result, err := orch.ParseAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	// The stub lives inside the project root but belongs to the nested
	// search-path root: one candidate, qualifier pkg.util, and the
	// concrete source is pre-empted.
	if len(result.Stubs) != 1 || result.Stubs[0] != "pkg/util.pyi" {
		t.Fatalf("stubs = %v, want [pkg/util.pyi]", result.Stubs)
	}
	if len(result.Sources) != 0 {
		t.Fatalf("sources = %v, want empty (pkg/util.py pre-empted)", result.Sources)
	}
	if n := rec.count("interfering_stub"); n != 0 {
		t.Fatalf("interfering_stub fired %d times, want 0", n)
	}
	mod, ok := orch.Store().Module("pkg.util")
	if !ok || !mod.IsStub {
		t.Fatalf("module pkg.util = %+v ok=%v, want the stub registration", mod, ok)
	}
	if _, ok := orch.Store().Module("stubs.pkg.util"); ok {
		t.Fatal("the stub must not also register under a project-relative qualifier")
	}
}

func parseAllTree(t *testing.T, parallel bool, project, typeshed string, searchPaths []string) pysrc.ResultSet {
	t.Helper()
	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, parallel, project, typeshed, searchPaths)
	result, err := orch.ParseAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return result
}

func TestDeterminismAcrossModes(t *testing.T) {
	project := t.TempDir()
	typeshed := t.TempDir()
	search := t.TempDir()

	for i, name := range []string{"alpha", "beta", "gamma", "delta", "epsilon"} {
		writeFile(t, filepath.Join(project, "app", name+".py"), "def f():\n    pass\n")
		if i%2 == 0 {
			writeFile(t, filepath.Join(search, "app", name+".pyi"), "def f() -> None: ...\n")
		}
	}
	writeFile(t, filepath.Join(project, "oops.py"), "def broken(:\n")
	writeFile(t, filepath.Join(typeshed, "stdlib", "os.pyi"), "def getpid() -> int: ...\n")
	writeFile(t, filepath.Join(typeshed, "stdlib", "sys.pyi"), "argv = ...\n")

	sequential := parseAllTree(t, false, project, typeshed, []string{search})
	for range 3 {
		parallel := parseAllTree(t, true, project, typeshed, []string{search})
		if !reflect.DeepEqual(sequential, parallel) {
			t.Fatalf("parallel result diverged:\n got %+v\nwant %+v", parallel, sequential)
		}
	}
}

func TestReconciliationInvariant(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "ok.py"), "x = 1\n")
	writeFile(t, filepath.Join(project, "bad1.py"), "def broken(:\n")
	writeFile(t, filepath.Join(project, "bad2.py"), "class Broken(:\n")

	for _, parallel := range []bool{false, true} {
		rec := newCaptureRecorder()
		orch := newOrchestrator(t, rec, parallel, project, "", nil)
		if _, err := orch.ParseAll(context.Background()); err != nil {
			t.Fatal(err)
		}
		ints := rec.lastInts("batch_sources")
		if ints == nil {
			t.Fatal("missing batch event")
		}
		if ints["discovered"] != ints["parsed"]+ints["syntax_errors"] {
			t.Fatalf("parallel=%v: reconciliation failed: %v", parallel, ints)
		}
		if ints["discovered"] != 3 || ints["parsed"] != 1 || ints["syntax_errors"] != 2 {
			t.Fatalf("parallel=%v: counts = %v", parallel, ints)
		}
	}
}

func TestStaleModulesEvicted(t *testing.T) {
	project := t.TempDir()
	writeFile(t, filepath.Join(project, "live.py"), "x = 1\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, "", nil)
	orch.Store().RegisterModule(pysrc.Module{Qualifier: "ghost"})

	if _, err := orch.ParseAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := orch.Store().Module("ghost"); ok {
		t.Fatal("stale module registration must be evicted")
	}
	if _, ok := orch.Store().Module("live"); !ok {
		t.Fatal("current module must survive")
	}
}

func TestParseStubsAcrossAllRootKinds(t *testing.T) {
	project := t.TempDir()
	typeshed := t.TempDir()
	search := t.TempDir()
	writeFile(t, filepath.Join(project, "local.pyi"), "x: int\n")
	writeFile(t, filepath.Join(typeshed, "stdlib", "os.pyi"), "def getpid() -> int: ...\n")
	writeFile(t, filepath.Join(typeshed, "stdlib", "2", "old.pyi"), "x = 1\n")
	writeFile(t, filepath.Join(search, "extra.pyi"), "y: str\n")

	rec := newCaptureRecorder()
	orch := newOrchestrator(t, rec, false, project, typeshed, []string{search})

	handles, err := orch.ParseStubs(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []pysrc.Handle{"local.pyi", "os.pyi", "extra.pyi"}
	if !reflect.DeepEqual(handles, want) {
		t.Fatalf("stub handles = %v, want %v (project, typeshed subdirs, search paths)", handles, want)
	}
}
