// Package obsmodality maps observation keys to their modality.
package obsmodality

import (
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Modality of an observation.
type Modality string

const (
	LowDim Modality = "low_dim"
	RGB    Modality = "rgb"
	Depth  Modality = "depth"
	Scan   Modality = "scan"
)

// Default is returned for keys the table does not know.
const Default = LowDim

// Table is a fixed key to modality mapping. Lookups never add entries;
// unknown keys resolve to Default, are logged once and are recorded in a
// miss set kept apart from the mapping.
type Table struct {
	entries  map[string]Modality
	suffixes map[string]Modality

	mu     sync.Mutex
	misses map[string]struct{}
	logger *log.Logger
	missed prometheus.Counter
}

// Option configures a Table.
type Option func(*Table)

// WithLogger reports misses on l.
func WithLogger(l *log.Logger) Option {
	return func(t *Table) { t.logger = l }
}

// WithMissCounter increments c once per distinct missed key.
func WithMissCounter(c prometheus.Counter) Option {
	return func(t *Table) { t.missed = c }
}

// WithEntries adds explicit key mappings.
func WithEntries(entries map[string]Modality) Option {
	return func(t *Table) {
		for k, v := range entries {
			t.entries[k] = v
		}
	}
}

// New returns a table with the standard suffix rules: keys ending in
// _image are rgb, _depth are depth and _scan are scan.
func New(opts ...Option) *Table {
	t := &Table{
		entries: map[string]Modality{
			"robot0_eef_pos":      LowDim,
			"robot0_eef_quat":     LowDim,
			"robot0_gripper_qpos": LowDim,
			"robot0_joint_pos":    LowDim,
		},
		suffixes: map[string]Modality{
			"_image": RGB,
			"_depth": Depth,
			"_scan":  Scan,
		},
		misses: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Lookup returns the modality for key and whether the table knew it.
func (t *Table) Lookup(key string) (Modality, bool) {
	if m, ok := t.entries[key]; ok {
		return m, true
	}
	for suffix, m := range t.suffixes {
		if strings.HasSuffix(key, suffix) {
			return m, true
		}
	}
	t.recordMiss(key)
	return Default, false
}

// Modality is Lookup without the found flag.
func (t *Table) Modality(key string) Modality {
	m, _ := t.Lookup(key)
	return m
}

func (t *Table) recordMiss(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.misses[key]; seen {
		return
	}
	t.misses[key] = struct{}{}
	if t.logger != nil {
		t.logger.Warn("observation key not in modality table, assuming default", "key", key, "modality", Default)
	}
	if t.missed != nil {
		t.missed.Inc()
	}
}

// Misses returns every key that fell back to Default, sorted.
func (t *Table) Misses() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.misses))
	for k := range t.misses {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
