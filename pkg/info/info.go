// Package info computes and prints dataset statistics: trajectory lengths,
// action bounds, filter keys, environment metadata, episode layout and
// scene metadata counts.
package info

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/obsmodality"
)

// ErrActionOutOfBounds is returned once the report has been printed when
// an action element lies outside [-1, 1].
var ErrActionOutOfBounds = errors.New("dataset should have actions in [-1., 1.]")

// Options select what Collect reads.
type Options struct {
	FilterKey string
	// Verbose lists filter key members and the layout of every episode.
	Verbose bool
}

// FilterKey is one stored subset.
type FilterKey struct {
	Name  string
	Demos []string
}

// EpisodeLayout is the structure of one episode.
type EpisodeLayout struct {
	ID         string
	NumSamples int
	HasSamples bool
	Keys       []dataset.Key
}

// Count is one entry of a frequency table. Key is already formatted.
type Count struct {
	Key string
	N   int
}

// Report holds everything the info command prints.
type Report struct {
	FilterKey string
	Verbose   bool

	Episodes  []string
	Lengths   []int
	ActionMin float64
	ActionMax float64

	FilterKeys []FilterKey
	EnvMeta    string
	Structure  []EpisodeLayout

	ObjCatCounts []Count
	LayoutCounts []Count
	StyleCounts  []Count
	UniqueLang   int

	modality func(string) obsmodality.Modality
}

// Collect reads the statistics of the selected episodes.
func Collect(ds *dataset.Dataset, table *obsmodality.Table, opts Options) (*Report, error) {
	r := &Report{
		FilterKey: opts.FilterKey,
		Verbose:   opts.Verbose,
		ActionMin: math.Inf(1),
		ActionMax: math.Inf(-1),
		modality:  table.Modality,
	}

	var err error
	if r.Episodes, err = ds.Select(opts.FilterKey); err != nil {
		return nil, err
	}

	for _, id := range r.Episodes {
		actions, err := ds.Episode(id).Actions()
		if err != nil {
			return nil, err
		}
		r.Lengths = append(r.Lengths, actions.Rows())
		r.ActionMin = min(r.ActionMin, actions.Min())
		r.ActionMax = max(r.ActionMax, actions.Max())
	}

	if err := r.collectFilterKeys(ds); err != nil {
		return nil, err
	}

	meta, err := ds.EnvMeta()
	if err != nil {
		return nil, err
	}
	if r.EnvMeta, err = meta.Pretty(); err != nil {
		return nil, fmt.Errorf("env_args: %w", err)
	}

	if err := r.collectStructure(ds); err != nil {
		return nil, err
	}
	if err := r.collectSceneCounts(ds); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Report) collectFilterKeys(ds *dataset.Dataset) error {
	names, err := ds.FilterKeys()
	if err != nil {
		return err
	}
	for _, name := range names {
		demos, err := ds.FilterKey(name)
		if err != nil {
			return err
		}
		r.FilterKeys = append(r.FilterKeys, FilterKey{Name: name, Demos: demos})
	}
	return nil
}

func (r *Report) collectStructure(ds *dataset.Dataset) error {
	for _, id := range r.Episodes {
		ep := ds.Episode(id)
		layout := EpisodeLayout{ID: id}
		var err error
		if layout.NumSamples, layout.HasSamples, err = ep.NumSamples(); err != nil {
			return err
		}
		if layout.Keys, err = ep.Structure(); err != nil {
			return err
		}
		r.Structure = append(r.Structure, layout)
		if !r.Verbose {
			break
		}
	}
	return nil
}

// collectSceneCounts tallies the category of the object named "obj", the
// layout and style ids and the distinct instructions.
func (r *Report) collectSceneCounts(ds *dataset.Dataset) error {
	cats := map[string]int{}
	layouts := map[dataset.ID]int{}
	styles := map[dataset.ID]int{}
	langs := map[string]struct{}{}

	for _, id := range r.Episodes {
		meta, err := ds.Episode(id).EpMeta()
		if err != nil {
			return err
		}
		cat := "None"
		if c, ok := meta.Category("obj"); ok {
			cat = "'" + c + "'"
		}
		cats[cat]++
		layouts[meta.LayoutID]++
		styles[meta.StyleID]++
		langs[meta.Lang] = struct{}{}
	}

	r.ObjCatCounts = sortedCounts(cats, func(a, b string) int {
		// None sorts first
		switch {
		case a == b:
			return 0
		case a == "None":
			return -1
		case b == "None":
			return 1
		}
		return cmp.Compare(a, b)
	})
	r.LayoutCounts = idCounts(layouts)
	r.StyleCounts = idCounts(styles)
	r.UniqueLang = len(langs)
	return nil
}

func sortedCounts(m map[string]int, compare func(a, b string) int) []Count {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compare)
	out := make([]Count, len(keys))
	for i, k := range keys {
		out[i] = Count{Key: k, N: m[k]}
	}
	return out
}

func idCounts(m map[dataset.ID]int) []Count {
	ids := make([]dataset.ID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b dataset.ID) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	out := make([]Count, len(ids))
	for i, id := range ids {
		out[i] = Count{Key: id.Repr(), N: m[id]}
	}
	return out
}

// Transitions is the sum of the trajectory lengths.
func (r *Report) Transitions() int {
	n := 0
	for _, l := range r.Lengths {
		n += l
	}
	return n
}

// LengthStats returns mean, population standard deviation, min and max of
// the trajectory lengths. All are NaN when no episode was selected.
func (r *Report) LengthStats() (mean, std, lo, hi float64) {
	if len(r.Lengths) == 0 {
		nan := math.NaN()
		return nan, nan, nan, nan
	}
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, l := range r.Lengths {
		v := float64(l)
		mean += v
		lo, hi = min(lo, v), max(hi, v)
	}
	mean /= float64(len(r.Lengths))
	for _, l := range r.Lengths {
		d := float64(l) - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(r.Lengths)))
	return mean, std, lo, hi
}

// Err reports ErrActionOutOfBounds with the observed bounds.
func (r *Report) Err() error {
	if r.ActionMin < -1 || r.ActionMax > 1 {
		return fmt.Errorf("%w but got bounds [%s, %s]", ErrActionOutOfBounds,
			formatFloat(r.ActionMin), formatFloat(r.ActionMax))
	}
	return nil
}
