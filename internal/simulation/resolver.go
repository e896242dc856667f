package simulation

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// How long repeated unknown-identifier warnings for the same identifier are
// suppressed. Generation output can keep proposing the same bogus
// identifier under bursty traffic; one warning per window is enough.
const warnSuppression = 5 * time.Minute

// Resolver answers identifier lookups against the current whitelist table.
// The table pointer is swapped atomically on administrative reloads, so
// request handling never sees a partially updated table.
type Resolver struct {
	table  atomic.Pointer[Table]
	logger *slog.Logger
	warned *gocache.Cache
}

// NewResolver creates a resolver over the given table.
func NewResolver(table *Table, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{
		logger: logger,
		warned: gocache.New(warnSuppression, 2*warnSuppression),
	}
	r.table.Store(table)
	return r
}

// Resolve maps an identifier proposed by the generation step to trusted
// metadata. Unknown identifiers resolve to the absent-simulation marker and
// emit a security warning: an identifier from untrusted output is never an
// endorsement to fetch or embed anything. No network I/O happens here.
func (r *Resolver) Resolve(ctx context.Context, identifier string) types.ResolvedSimulation {
	if identifier == "" || identifier == "none" {
		return types.NoSimulation()
	}

	table := r.table.Load()
	if rec, ok := table.Lookup(identifier); ok {
		return rec
	}

	if _, recentlyWarned := r.warned.Get(identifier); !recentlyWarned {
		r.warned.SetDefault(identifier, struct{}{})
		r.logger.WarnContext(ctx, "generation proposed non-whitelisted simulation identifier",
			"identifier", identifier,
		)
	}

	out := types.NoSimulation()
	out.Identifier = identifier
	return out
}

// Replace swaps in a new table atomically. Used by administrative reloads;
// in-flight resolutions keep reading the table they started with.
func (r *Resolver) Replace(table *Table) {
	r.table.Store(table)
	r.logger.Info("simulation whitelist replaced", "entries", table.Len())
}

// TableSize returns the entry count of the current table.
func (r *Resolver) TableSize() int {
	return r.table.Load().Len()
}
