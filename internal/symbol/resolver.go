// Package symbol maps program counters of instrumented call sites to function
// identities.
package symbol

import (
	"fmt"
	"runtime"

	"github.com/coral-mesh/pipelinescope/internal/filter"
	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// DefaultCacheSize bounds the number of call sites kept resolved.
const DefaultCacheSize = 4096

// UnknownModule is the module of call sites the runtime cannot symbolize.
const UnknownModule = "<unknown>"

// Resolver caches runtime symbol lookups per program counter. It is safe for
// concurrent use.
type Resolver struct {
	cache *lruCache[uintptr, filter.Candidate]
}

// NewResolver creates a resolver caching up to size call sites.
func NewResolver(size int) *Resolver {
	if size <= 0 {
		size = DefaultCacheSize
	}
	return &Resolver{cache: newLRUCache[uintptr, filter.Candidate](size)}
}

// Caller resolves the function skip frames above the caller of Caller, the way
// runtime.Caller counts.
func (r *Resolver) Caller(skip int) filter.Candidate {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return filter.Candidate{Identity: stats.Identity{Module: UnknownModule, Name: "<unknown>"}}
	}
	return r.Resolve(pcs[0])
}

// Resolve returns the candidate for the function containing the return address pc,
// as recorded by runtime.Callers. Inlined frames resolve to the logical function.
func (r *Resolver) Resolve(pc uintptr) filter.Candidate {
	if c, ok := r.cache.Get(pc); ok {
		return c
	}

	var c filter.Candidate
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.Function != "" {
		c.Identity = stats.IdentityFromSymbol(frame.Function)
		c.File = frame.File
	} else {
		c.Identity = stats.Identity{Module: UnknownModule, Name: fmt.Sprintf("0x%x", pc)}
	}
	r.cache.Put(pc, c)
	return c
}

// Len returns the number of cached call sites.
func (r *Resolver) Len() int {
	return r.cache.Len()
}
