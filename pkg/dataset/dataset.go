// Package dataset reads robot demonstration datasets.
//
// A dataset file holds one group per episode under data/, optional named
// subsets under mask/ and the environment construction record in the
// env_args attribute of data/.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/gwillem/robodata/pkg/fetch"
)

const (
	dataGroup = "data"
	maskGroup = "mask"
)

// Dataset is an open dataset file.
type Dataset struct {
	b       Backend
	cleanup func()
}

// New wraps an already opened backend.
func New(b Backend) *Dataset {
	return &Dataset{b: b}
}

// Open opens a local path or s3:// location read-only.
func Open(ctx context.Context, loc string) (*Dataset, error) {
	p, cleanup, err := fetch.Resolve(ctx, loc)
	if err != nil {
		return nil, err
	}
	b, err := OpenHDF5(p)
	if err != nil {
		cleanup()
		return nil, err
	}
	return &Dataset{b: b, cleanup: cleanup}, nil
}

// OpenAux opens a local file read-write for storing derived arrays.
func OpenAux(path string) (*Dataset, error) {
	b, err := OpenHDF5ReadWrite(path)
	if err != nil {
		return nil, err
	}
	return New(b), nil
}

// Backend returns the underlying storage.
func (d *Dataset) Backend() Backend { return d.b }

// Close releases the file and removes any downloaded copy.
func (d *Dataset) Close() error {
	err := d.b.Close()
	if d.cleanup != nil {
		d.cleanup()
	}
	return err
}

// Episodes returns every episode id in ascending numeric order.
func (d *Dataset) Episodes() ([]string, error) {
	nodes, err := d.b.List(dataGroup)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	var ids []string
	for _, n := range nodes {
		if n.Group {
			ids = append(ids, n.Name)
		}
	}
	return SortEpisodes(ids)
}

// FilterKeys returns the names of all stored subsets, sorted by name. A
// dataset without a mask group has none.
func (d *Dataset) FilterKeys() ([]string, error) {
	nodes, err := d.b.List(maskGroup)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list filter keys: %w", err)
	}
	var keys []string
	for _, n := range nodes {
		if !n.Group {
			keys = append(keys, n.Name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// FilterKey returns the members of a subset in ascending numeric order.
func (d *Dataset) FilterKey(name string) ([]string, error) {
	ids, err := d.b.ReadStrings(maskGroup + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("filter key %s: %w", name, err)
	}
	return SortEpisodes(ids)
}

// Select returns the members of filterKey, or every episode when filterKey
// is empty.
func (d *Dataset) Select(filterKey string) ([]string, error) {
	if filterKey != "" {
		return d.FilterKey(filterKey)
	}
	return d.Episodes()
}

// EnvMeta parses the env_args attribute.
func (d *Dataset) EnvMeta() (*EnvMeta, error) {
	v, err := d.b.Attr(dataGroup, "env_args")
	if err != nil {
		return nil, fmt.Errorf("env_args: %w", err)
	}
	s, err := attrString(v)
	if err != nil {
		return nil, fmt.Errorf("env_args: %w", err)
	}
	return ParseEnvMeta(s)
}

// Episode returns a handle to one episode. Nothing is read until a method
// on the handle is called.
func (d *Dataset) Episode(id string) *Episode {
	return &Episode{ID: id, b: d.b, base: dataGroup + "/" + id}
}

// WriteArray stores a derived array, which needs a read-write dataset.
func (d *Dataset) WriteArray(path string, a *Array) error {
	w, ok := d.b.(WritableBackend)
	if !ok {
		return ErrReadOnly
	}
	return w.WriteArray(path, a)
}
