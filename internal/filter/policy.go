// Package filter decides, before a frame is pushed, whether a call is tracked,
// collapsed into its caller, or ignored.
package filter

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/coral-mesh/pipelinescope/internal/stats"
)

// Disposition is the outcome of evaluating a candidate call.
type Disposition int

const (
	// Track pushes a frame and accounts the call normally.
	Track Disposition = iota
	// Collapse pushes no frame and folds the whole subtree into the nearest tracked ancestor.
	Collapse
	// Ignore pushes no frame and records nothing; descendants are evaluated on their own.
	Ignore
)

func (d Disposition) String() string {
	switch d {
	case Track:
		return "track"
	case Collapse:
		return "collapse"
	case Ignore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Candidate is a call about to be entered.
type Candidate struct {
	Identity stats.Identity
	// File is the source file declaring the function, when known.
	File string
}

// Config holds the inputs of the policy.
type Config struct {
	CollapseStdlib bool
	// IgnoreModules are substrings matched against the module path and the file path.
	IgnoreModules []string
	// SelfModules are module path prefixes belonging to the profiler itself.
	SelfModules []string
}

// Policy evaluates candidates. It holds no mutable state, so evaluation is
// idempotent and safe for concurrent use.
type Policy struct {
	collapseStdlib bool
	ignore         []string
	self           []string
	goroot         string
}

// New creates a policy from cfg. Empty patterns are dropped.
func New(cfg Config) *Policy {
	p := &Policy{
		collapseStdlib: cfg.CollapseStdlib,
		goroot:         gorootSrc(),
	}
	for _, pattern := range cfg.IgnoreModules {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			p.ignore = append(p.ignore, pattern)
		}
	}
	for _, prefix := range cfg.SelfModules {
		if prefix != "" {
			p.self = append(p.self, prefix)
		}
	}
	return p
}

// Evaluate returns the disposition for c.
func (p *Policy) Evaluate(c Candidate) Disposition {
	module := c.Identity.Module

	for _, prefix := range p.self {
		if strings.HasPrefix(module, prefix) {
			return Ignore
		}
	}

	file := filepath.ToSlash(c.File)
	for _, pattern := range p.ignore {
		if strings.Contains(module, pattern) || (file != "" && strings.Contains(file, pattern)) {
			return Ignore
		}
	}

	if p.collapseStdlib && p.IsStdlib(c) {
		return Collapse
	}

	return Track
}

// IsStdlib reports whether c belongs to the standard library. A known source file
// decides alone: only files under $GOROOT/src are stdlib, so a main module named
// without a dot (module etl) is still user code. The module naming rule applies
// only when the file or GOROOT is unknown.
func (p *Policy) IsStdlib(c Candidate) bool {
	file := filepath.ToSlash(c.File)
	if file != "" && p.goroot != "" {
		return strings.HasPrefix(file, p.goroot)
	}
	return IsStdlibModule(c.Identity.Module)
}

// IsStdlibModule reports whether module follows the standard library naming rule:
// its first path element contains no dot and it is not the main package. It is a
// fallback for calls without source file information.
func IsStdlibModule(module string) bool {
	if module == "" || module == "main" || strings.HasPrefix(module, "<") {
		return false
	}
	first := module
	if idx := strings.Index(module, "/"); idx >= 0 {
		first = module[:idx]
	}
	return !strings.Contains(first, ".")
}

func gorootSrc() string {
	root := runtime.GOROOT() //nolint:staticcheck // only a hint; module-name rule is the fallback.
	if root == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Join(root, "src")) + "/"
}
