// Package stats holds function identities and the per-identity aggregate records
// built up during a profiling run.
package stats

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// Identity uniquely identifies a callable: its declaring package path plus its
// qualified name inside that package. It is comparable and safe to use as a map key.
type Identity struct {
	Module string
	Name   string
}

// IdleIdentity receives resource samples taken while no frame is active.
var IdleIdentity = Identity{Module: "<idle>", Name: "<idle>"}

// String returns the "<module>:<qualified_name>" form used as the result key.
func (id Identity) String() string {
	return id.Module + ":" + id.Name
}

// IsIdle reports whether id is the idle bucket.
func (id Identity) IsIdle() bool {
	return id == IdleIdentity
}

// IsZero reports whether id is unset.
func (id Identity) IsZero() bool {
	return id.Module == "" && id.Name == ""
}

// Hash returns a stable 64-bit hash of the string form.
func (id Identity) Hash() uint64 {
	return xxh3.HashString(id.String())
}

// ParseIdentity parses the "<module>:<qualified_name>" form. The split happens at the
// last colon so that names never need escaping.
func ParseIdentity(s string) Identity {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return Identity{Name: s}
	}
	return Identity{Module: s[:idx], Name: s[idx+1:]}
}

// IdentityFromSymbol splits a Go runtime symbol name into package path and qualified name.
//
//	a/b/c.F            -> a/b/c, F
//	a/b/c.(*T).M       -> a/b/c, (*T).M
//	a/b/c.F.func1      -> a/b/c, F.func1
//	gopkg.in/yaml%2ev3.Marshal -> gopkg.in/yaml.v3, Marshal
//	main.main          -> main, main
func IdentityFromSymbol(symbol string) Identity {
	if symbol == "" {
		return Identity{}
	}
	lastSlash := strings.LastIndex(symbol, "/")
	rest := symbol[lastSlash+1:]
	dot := strings.Index(rest, ".")
	if dot < 0 {
		return Identity{Module: unescapeModule(symbol), Name: symbol}
	}
	cut := lastSlash + 1 + dot
	return Identity{
		Module: unescapeModule(symbol[:cut]),
		Name:   symbol[cut+1:],
	}
}

// the linker escapes '.' in the last path element as %2e
func unescapeModule(module string) string {
	if !strings.Contains(module, "%") {
		return module
	}
	return strings.ReplaceAll(module, "%2e", ".")
}
