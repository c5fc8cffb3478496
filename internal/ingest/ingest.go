// Package ingest sequences catalog scanning, scheduled parsing, store
// population, and stub resolution into the two top-level operations:
// ParseStubs and ParseAll.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/foundrylab/pyfoundry/internal/aststore"
	"github.com/foundrylab/pyfoundry/internal/catalog"
	"github.com/foundrylab/pyfoundry/internal/frontend"
	"github.com/foundrylab/pyfoundry/internal/hashcache"
	"github.com/foundrylab/pyfoundry/internal/metrics"
	"github.com/foundrylab/pyfoundry/internal/pysrc"
	"github.com/foundrylab/pyfoundry/internal/sched"
)

// Options wires an Orchestrator's collaborators. Recorder defaults to a
// no-op sink; Cache is optional.
type Options struct {
	Catalog   *catalog.Catalog
	Scheduler *sched.Scheduler
	Store     *aststore.Store
	Frontend  *frontend.Frontend
	Recorder  metrics.Recorder
	Cache     *hashcache.Cache
}

// Orchestrator runs the two-pass ingestion pipeline.
type Orchestrator struct {
	catalog  *catalog.Catalog
	sched    *sched.Scheduler
	store    *aststore.Store
	frontend *frontend.Frontend
	recorder metrics.Recorder
	cache    *hashcache.Cache
}

// New assembles an Orchestrator.
func New(opts Options) *Orchestrator {
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.Nop{}
	}
	store := opts.Store
	if store == nil {
		store = aststore.New()
	}
	return &Orchestrator{
		catalog:  opts.Catalog,
		sched:    opts.Scheduler,
		store:    store,
		frontend: opts.Frontend,
		recorder: rec,
		cache:    opts.Cache,
	}
}

// Store returns the shared AST store populated by this orchestrator.
func (o *Orchestrator) Store() *aststore.Store { return o.store }

// batchPartial is one partition's pass-2 result, folded left to right.
type batchPartial struct {
	handles []pysrc.Handle
	tally   pysrc.Tally
}

// parseBatch runs both passes over one file batch. Pass 1 registers
// lightweight module records with diagnostics suppressed; it completes
// fully before pass 2 re-parses with full visibility and publishes
// sources. Returned handles follow input order.
func (o *Orchestrator) parseBatch(ctx context.Context, files []catalog.File) ([]pysrc.Handle, pysrc.Tally, error) {
	if len(files) == 0 {
		return nil, pysrc.Tally{}, nil
	}

	t := time.Now()
	err := sched.Iter(ctx, o.sched, files, func(_ context.Context, part []catalog.File) {
		for _, f := range part {
			mod, out := o.frontend.ParseModule(f.Path, f.Root)
			if out.Kind == pysrc.OutcomeParsed {
				o.store.RegisterModule(mod)
			}
		}
	})
	if err != nil {
		return nil, pysrc.Tally{}, err
	}
	slog.Info("pass.timing", "pass", "modules", "files", len(files), "elapsed", time.Since(t))

	t = time.Now()
	result, err := sched.MapReduce(ctx, o.sched, files, batchPartial{},
		func(_ context.Context, part []catalog.File) batchPartial {
			var p batchPartial
			for _, f := range part {
				src, out := o.frontend.Parse(f.Path, f.Root)
				p.tally = p.tally.Add(out)
				if src == nil {
					continue
				}
				o.store.Add(src.Handle, src)
				if hashErr := o.store.AddPathHash(src.Path); hashErr != nil {
					slog.Warn("ingest.hash.err", "path", src.Path, "err", hashErr)
				}
				p.handles = append(p.handles, src.Handle)
			}
			return p
		},
		func(acc, p batchPartial) batchPartial {
			acc.handles = append(acc.handles, p.handles...)
			acc.tally = acc.tally.Merge(p.tally)
			return acc
		},
	)
	if err != nil {
		return nil, pysrc.Tally{}, err
	}
	slog.Info("pass.timing", "pass", "sources", "files", len(files), "elapsed", time.Since(t))

	return result.handles, result.tally, nil
}

// ParseStubs scans every stub root in fixed order, parses each root's
// batch, and accumulates handles. Folding per root preserves the
// deterministic file-processing order across the multi-root union.
func (o *Orchestrator) ParseStubs(ctx context.Context) ([]pysrc.Handle, error) {
	start := time.Now()
	var handles []pysrc.Handle
	var tally pysrc.Tally
	discovered := 0

	for _, files := range o.catalog.StubBatches() {
		discovered += len(files)
		batch, t, err := o.parseBatch(ctx, files)
		if err != nil {
			return nil, err
		}
		handles = append(handles, batch...)
		tally = tally.Merge(t)
	}

	o.logUnparsed("stubs", discovered, tally)
	o.recorder.RecordPerformance("parse_stubs", time.Since(start), map[string]int64{
		"discovered": int64(discovered),
		"parsed":     int64(tally.Parsed),
	}, nil)
	return handles, nil
}

// ParseAll runs the full pipeline: parse stubs, derive the claimed
// qualifier set, parse project sources excluding claimed qualifiers,
// evict stale module registrations, and return the final handle sets.
func (o *Orchestrator) ParseAll(ctx context.Context) (pysrc.ResultSet, error) {
	start := time.Now()

	stubHandles, err := o.ParseStubs(ctx)
	if err != nil {
		return pysrc.ResultSet{}, err
	}
	claimed, stubs := o.resolveStubs(stubHandles)

	files := o.catalog.SourceCandidates(func(q pysrc.Qualifier) bool {
		_, ok := claimed[q]
		return ok
	})
	sources, tally, err := o.parseBatch(ctx, files)
	if err != nil {
		return pysrc.ResultSet{}, err
	}
	o.logUnparsed("sources", len(files), tally)

	o.evictStale(claimed, sources)
	o.persistHashes()

	o.recorder.RecordPerformance("parse_all", time.Since(start), map[string]int64{
		"stubs":   int64(len(stubs)),
		"sources": int64(len(sources)),
	}, nil)
	slog.Info("ingest.done", "stubs", len(stubs), "sources", len(sources), "elapsed", time.Since(start))

	return pysrc.ResultSet{Stubs: stubs, Sources: sources}, nil
}

// evictStale bulk-removes module registrations whose qualifier was not
// produced by the current scan, keeping the store consistent with the
// current file set instead of accumulating ghosts across runs.
func (o *Orchestrator) evictStale(claimed map[pysrc.Qualifier]pysrc.Handle, sources []pysrc.Handle) {
	current := make(map[pysrc.Qualifier]bool, len(claimed)+len(sources))
	for q := range claimed {
		current[q] = true
	}
	for _, h := range sources {
		if src := o.store.Get(h); src != nil {
			current[src.Qualifier] = true
		}
	}

	var stale []pysrc.Qualifier
	for _, q := range o.store.ModuleQualifiers() {
		if !current[q] {
			stale = append(stale, q)
		}
	}
	if len(stale) > 0 {
		o.store.RemoveModules(stale)
		slog.Info("ingest.evicted", "modules", len(stale))
	}
}

// persistHashes writes the run's content fingerprints to the optional
// hash cache. Cache faults are logged, never fatal.
func (o *Orchestrator) persistHashes() {
	if o.cache == nil {
		return
	}
	if err := o.cache.UpsertBatch(o.store.PathHashes()); err != nil {
		slog.Warn("ingest.hashcache.err", "err", err)
	}
}

// logUnparsed emits the one aggregate warning per batch, reconciling
// discovered against parsed plus failures.
func (o *Orchestrator) logUnparsed(stage string, discovered int, tally pysrc.Tally) {
	slog.Info("batch.counts",
		"stage", stage,
		"discovered", discovered,
		"parsed", tally.Parsed,
		"syntax_errors", tally.SyntaxErrors,
		"path_errors", tally.PathErrors,
		"io_errors", tally.IOErrors,
	)
	if failed := discovered - tally.Parsed; failed > 0 {
		noun := "files"
		if failed == 1 {
			noun = "file"
		}
		slog.Warn("batch.unparsed",
			"stage", stage,
			"msg", noun+" could not be parsed due to syntax errors",
			"count", failed,
			"hint", "enable verbose diagnostics for per-file errors",
		)
	}
	o.recorder.RecordEvent("batch_"+stage, map[string]int64{
		"discovered":    int64(discovered),
		"parsed":        int64(tally.Parsed),
		"syntax_errors": int64(tally.SyntaxErrors),
	}, nil)
}
