package ingest

import (
	"log/slog"

	"github.com/foundrylab/pyfoundry/internal/pysrc"
)

// resolveStubs folds the stub handles in their deterministic batch order
// and builds the qualifier claims. The first stub to claim a qualifier
// wins; a later claimant is an interfering stub: one diagnostic event
// fires and its source is evicted. Stubs claimed here pre-empt every
// same-qualifier concrete source discovered afterwards.
func (o *Orchestrator) resolveStubs(handles []pysrc.Handle) (map[pysrc.Qualifier]pysrc.Handle, []pysrc.Handle) {
	claimed := make(map[pysrc.Qualifier]pysrc.Handle, len(handles))
	kept := make([]pysrc.Handle, 0, len(handles))

	for _, h := range handles {
		src := o.store.Get(h)
		if src == nil {
			continue
		}
		winner, taken := claimed[src.Qualifier]
		if taken {
			slog.Warn("stub.interfering",
				"qualifier", src.Qualifier,
				"kept", winner,
				"dropped", h,
			)
			o.recorder.RecordEvent("interfering_stub",
				map[string]int64{"count": 1},
				map[string]string{"qualifier": string(src.Qualifier)},
			)
			if winner != h {
				o.store.Remove(h)
			}
			// winner == h: the same relative path in two roots collapses
			// to one handle; the store keeps the last write (re-insertion
			// semantics), and the result set lists the handle once.
			continue
		}
		claimed[src.Qualifier] = h
		kept = append(kept, h)
		// Re-register so the module record deterministically reflects
		// the winning stub, whatever order pass 1 ran in.
		o.store.RegisterModule(pysrc.ModuleOf(src))
	}
	return claimed, kept
}
