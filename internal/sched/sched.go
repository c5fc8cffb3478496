// Package sched executes bulk jobs either sequentially or across a
// bounded worker pool. Call sites observe identical results in both
// modes: partitions are contiguous slices of the input in input order,
// and map_reduce folds partial results strictly left to right by
// partition index, never by completion order.
package sched

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Options configures a Scheduler. Parallel selects the execution mode;
// it is a property of the scheduler, not of call sites.
type Options struct {
	Parallel bool
	Workers  int // defaults to runtime.NumCPU()
}

// Scheduler runs Iter and MapReduce jobs.
type Scheduler struct {
	parallel bool
	workers  int
}

// New returns a Scheduler for the given options.
func New(opts Options) *Scheduler {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{parallel: opts.Parallel, workers: workers}
}

// Parallel reports whether the scheduler distributes work across workers.
func (s *Scheduler) Parallel() bool { return s.parallel }

// span is a half-open partition [start, end) over the input slice.
type span struct {
	start, end int
}

// partitions splits n items into at most s.workers contiguous spans in
// input order. The same spans are produced in both execution modes, so
// a mapFn that is deterministic per span yields identical folds.
func (s *Scheduler) partitions(n int) []span {
	if n == 0 {
		return nil
	}
	parts := s.workers
	if parts > n {
		parts = n
	}
	size := n / parts
	rem := n % parts
	spans := make([]span, 0, parts)
	start := 0
	for i := 0; i < parts; i++ {
		end := start + size
		if i < rem {
			end++
		}
		spans = append(spans, span{start: start, end: end})
		start = end
	}
	return spans
}

// Iter applies fn to contiguous subsets of items for side effects only.
// No ordering is guaranteed across partitions. A partition is never
// split below one item, so fn sees every item exactly once.
func Iter[T any](ctx context.Context, s *Scheduler, items []T, fn func(context.Context, []T)) error {
	spans := s.partitions(len(items))
	if !s.parallel {
		for _, sp := range spans {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, items[sp.start:sp.end])
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sp := range spans {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, items[sp.start:sp.end])
			return nil
		})
	}
	return g.Wait()
}

// MapReduce partitions items, applies mapFn to each partition, then
// folds the partial results into init with reduceFn in partition order.
// The fold order is fixed regardless of which worker finishes first;
// this is the scheduler's core invariant.
func MapReduce[T, P, R any](
	ctx context.Context,
	s *Scheduler,
	items []T,
	init R,
	mapFn func(context.Context, []T) P,
	reduceFn func(R, P) R,
) (R, error) {
	spans := s.partitions(len(items))
	partials := make([]P, len(spans))

	if s.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for i, sp := range spans {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				partials[i] = mapFn(gctx, items[sp.start:sp.end])
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return init, err
		}
	} else {
		for i, sp := range spans {
			if err := ctx.Err(); err != nil {
				return init, err
			}
			partials[i] = mapFn(ctx, items[sp.start:sp.end])
		}
	}

	acc := init
	for _, p := range partials {
		acc = reduceFn(acc, p)
	}
	return acc, nil
}
