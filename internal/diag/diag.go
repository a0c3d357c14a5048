// Package diag records non-fatal diagnostics that should be reported once per run
// instead of once per occurrence.
package diag

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Diagnostics collects messages keyed by condition. The first report of a key is
// logged as a warning; repeats only bump its counter.
type Diagnostics struct {
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[string]*Entry
}

// Entry is one distinct diagnostic condition.
type Entry struct {
	Key     string `json:"key"`
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// New creates an empty collector.
func New(logger zerolog.Logger) *Diagnostics {
	return &Diagnostics{
		logger:  logger,
		entries: make(map[string]*Entry),
	}
}

// Once records a diagnostic for key. It returns true the first time key is seen.
func (d *Diagnostics) Once(key, message string) bool {
	return d.OnceErr(key, message, nil)
}

// OnceErr is Once with an underlying error attached to the log line.
func (d *Diagnostics) OnceErr(key, message string, err error) bool {
	d.mu.Lock()
	e, ok := d.entries[key]
	if ok {
		e.Count++
		d.mu.Unlock()
		return false
	}
	d.entries[key] = &Entry{Key: key, Message: message, Count: 1}
	d.mu.Unlock()

	evt := d.logger.Warn().Str("diagnostic", key)
	if err != nil {
		evt = evt.Err(err)
	}
	evt.Msg(message)
	return true
}

// Has reports whether key has been recorded.
func (d *Diagnostics) Has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.entries[key]
	return ok
}

// Entries returns a copy of all diagnostics sorted by key.
func (d *Diagnostics) Entries() []Entry {
	d.mu.Lock()
	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	d.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
