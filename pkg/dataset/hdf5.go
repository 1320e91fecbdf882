package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/scigolib/hdf5"
)

// HDF5 reads an HDF5 file. Opened read-write it also stores derived
// arrays: they are kept in memory and the file is rebuilt on Close, since
// the writer can only link new objects into groups it created itself.
type HDF5 struct {
	path     string
	file     *hdf5.File
	objects  map[string]hdf5.Object
	order    []string // object paths in file order
	writable bool
	pending  map[string]*Array
}

// OpenHDF5 opens path read-only.
func OpenHDF5(path string) (*HDF5, error) {
	f, err := hdf5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	h := &HDF5{path: path, file: f, objects: make(map[string]hdf5.Object)}
	f.Walk(func(p string, obj hdf5.Object) {
		key := strings.Trim(p, "/")
		h.objects[key] = obj
		if key != "" {
			h.order = append(h.order, key)
		}
	})
	return h, nil
}

// OpenHDF5ReadWrite opens path for reading and for storing arrays.
func OpenHDF5ReadWrite(path string) (*HDF5, error) {
	// Fail now rather than at Close when the file cannot be replaced
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s for write: %w", path, err)
	}
	f.Close()
	h, err := OpenHDF5(path)
	if err != nil {
		return nil, err
	}
	h.writable = true
	h.pending = make(map[string]*Array)
	return h, nil
}

func (h *HDF5) object(p string) (hdf5.Object, error) {
	obj, ok := h.objects[strings.Trim(p, "/")]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	return obj, nil
}

func (h *HDF5) List(p string) ([]Node, error) {
	obj, err := h.object(p)
	if err != nil {
		return nil, err
	}
	g, ok := obj.(*hdf5.Group)
	if !ok {
		return nil, fmt.Errorf("%s is not a group", p)
	}
	var nodes []Node
	for _, c := range g.Children() {
		switch c := c.(type) {
		case *hdf5.Group:
			nodes = append(nodes, Node{Name: c.Name(), Group: true})
		case *hdf5.Dataset:
			info, err := c.Info()
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", p, c.Name(), err)
			}
			shape, err := parseShape(info)
			if err != nil {
				return nil, fmt.Errorf("%s/%s: %w", p, c.Name(), err)
			}
			nodes = append(nodes, Node{Name: c.Name(), Shape: shape})
		}
	}
	return h.withPending(strings.Trim(p, "/"), nodes), nil
}

// withPending overlays arrays stored since open on the children of group.
func (h *HDF5) withPending(group string, nodes []Node) []Node {
	for key, a := range h.pending {
		parent, name := splitPath(key)
		if parent != group {
			continue
		}
		i := slices.IndexFunc(nodes, func(n Node) bool { return n.Name == name })
		if i < 0 {
			nodes = append(nodes, Node{Name: name, Shape: a.Shape})
		} else {
			nodes[i] = Node{Name: name, Shape: a.Shape}
		}
	}
	return nodes
}

func splitPath(key string) (parent, name string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

func (h *HDF5) Attr(p, name string) (any, error) {
	obj, err := h.object(p)
	if err != nil {
		return nil, err
	}
	names, values, err := readAttrs(obj)
	if err != nil {
		return nil, fmt.Errorf("%s attributes: %w", p, err)
	}
	if i := slices.Index(names, name); i >= 0 {
		return values[i], nil
	}
	return nil, fmt.Errorf("%s@%s: %w", p, name, ErrNotFound)
}

func (h *HDF5) dataset(p string) (*hdf5.Dataset, error) {
	obj, err := h.object(p)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*hdf5.Dataset)
	if !ok {
		return nil, fmt.Errorf("%s is not a dataset", p)
	}
	return ds, nil
}

func (h *HDF5) ReadArray(p string) (*Array, error) {
	if a, ok := h.pending[strings.Trim(p, "/")]; ok {
		return a.Clone(), nil
	}
	ds, err := h.dataset(p)
	if err != nil {
		return nil, err
	}
	info, err := ds.Info()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	shape, err := parseShape(info)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p, err)
	}
	data, err := ds.Read()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return NewArray(shape, data)
}

func (h *HDF5) ReadStrings(p string) ([]string, error) {
	ds, err := h.dataset(p)
	if err != nil {
		return nil, err
	}
	s, err := ds.ReadStrings()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return s, nil
}

// WriteArray stores a float64 array at p, replacing any existing array.
// Missing parent groups are created.
func (h *HDF5) WriteArray(p string, a *Array) error {
	if !h.writable {
		return ErrReadOnly
	}
	key := strings.Trim(p, "/")
	if obj, ok := h.objects[key]; ok {
		if _, isGroup := obj.(*hdf5.Group); isGroup {
			return fmt.Errorf("%s is a group", p)
		}
	}
	h.pending[key] = a.Clone()
	return nil
}

func (h *HDF5) Close() error {
	var errs []error
	if len(h.pending) > 0 {
		errs = append(errs, h.rewrite())
	}
	if h.file != nil {
		errs = append(errs, h.file.Close())
		h.file = nil
	}
	return errors.Join(errs...)
}

// rewrite copies the file with the stored arrays into a temporary file
// next to it and renames that over the original.
func (h *HDF5) rewrite() error {
	tmp, err := os.CreateTemp(filepath.Dir(h.path), filepath.Base(h.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("rewrite %s: %w", h.path, err)
	}
	name := tmp.Name()
	tmp.Close()

	fw, err := hdf5.CreateForWrite(name, hdf5.CreateTruncate)
	if err != nil {
		os.Remove(name)
		return fmt.Errorf("rewrite %s: %w", h.path, err)
	}
	if err := h.copyInto(fw); err != nil {
		fw.Close()
		os.Remove(name)
		return fmt.Errorf("rewrite %s: %w", h.path, err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("rewrite %s: %w", h.path, err)
	}

	// The original must be closed before it can be replaced
	if err := h.file.Close(); err != nil {
		os.Remove(name)
		return err
	}
	h.file = nil
	if err := os.Rename(name, h.path); err != nil {
		os.Remove(name)
		return fmt.Errorf("replace %s: %w", h.path, err)
	}
	h.pending = make(map[string]*Array)
	return nil
}

func (h *HDF5) copyInto(fw *hdf5.FileWriter) error {
	created := map[string]bool{"": true}
	var ensureGroup func(key string) error
	ensureGroup = func(key string) error {
		if created[key] {
			return nil
		}
		parent, _ := splitPath(key)
		if err := ensureGroup(parent); err != nil {
			return err
		}
		g, err := fw.CreateGroup("/" + key)
		if err != nil {
			return fmt.Errorf("create group %s: %w", key, err)
		}
		created[key] = true
		if obj, ok := h.objects[key]; ok {
			return copyAttrs(obj, key, g.WriteAttribute)
		}
		return nil
	}

	for _, key := range h.order {
		switch obj := h.objects[key].(type) {
		case *hdf5.Group:
			if err := ensureGroup(key); err != nil {
				return err
			}
		case *hdf5.Dataset:
			parent, _ := splitPath(key)
			if err := ensureGroup(parent); err != nil {
				return err
			}
			if a, ok := h.pending[key]; ok {
				if err := writeFloat64(fw, key, a); err != nil {
					return err
				}
				continue
			}
			if err := copyDataset(fw, key, obj); err != nil {
				return err
			}
		}
	}

	added := make([]string, 0, len(h.pending))
	for key := range h.pending {
		if _, ok := h.objects[key]; !ok {
			added = append(added, key)
		}
	}
	slices.Sort(added)
	for _, key := range added {
		parent, _ := splitPath(key)
		if err := ensureGroup(parent); err != nil {
			return err
		}
		if err := writeFloat64(fw, key, h.pending[key]); err != nil {
			return err
		}
	}
	return nil
}

func dims(shape []int) []uint64 {
	if len(shape) == 0 {
		return []uint64{1}
	}
	out := make([]uint64, len(shape))
	for i, d := range shape {
		out[i] = uint64(d)
	}
	return out
}

func writeFloat64(fw *hdf5.FileWriter, key string, a *Array) error {
	dw, err := fw.CreateDataset("/"+key, hdf5.Float64, dims(a.Shape))
	if err != nil {
		return fmt.Errorf("create %s: %w", key, err)
	}
	if err := dw.Write(a.Data); err != nil {
		dw.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	return dw.Close()
}

// copyDataset copies a numeric dataset as float64, or a string dataset as
// fixed length strings, with its attributes.
func copyDataset(fw *hdf5.FileWriter, key string, ds *hdf5.Dataset) error {
	info, err := ds.Info()
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	shape, err := parseShape(info)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}

	var dw *hdf5.DatasetWriter
	if data, rerr := ds.Read(); rerr == nil {
		if dw, err = fw.CreateDataset("/"+key, hdf5.Float64, dims(shape)); err == nil {
			err = dw.Write(data)
		}
	} else {
		strs, serr := ds.ReadStrings()
		if serr != nil {
			return fmt.Errorf("copy %s: %w", key, errors.Join(rerr, serr))
		}
		width := 1
		for _, s := range strs {
			width = max(width, len(s))
		}
		dw, err = fw.CreateDataset("/"+key, hdf5.String, []uint64{uint64(len(strs))}, hdf5.WithStringSize(uint32(width)))
		if err == nil {
			err = dw.Write(strs)
		}
	}
	if err != nil {
		if dw != nil {
			dw.Close()
		}
		return fmt.Errorf("copy %s: %w", key, err)
	}
	if err := copyAttrs(ds, key, dw.WriteAttribute); err != nil {
		dw.Close()
		return err
	}
	return dw.Close()
}

func copyAttrs(obj hdf5.Object, key string, write func(name string, value any) error) error {
	names, values, err := readAttrs(obj)
	if err != nil {
		return fmt.Errorf("%s attributes: %w", key, err)
	}
	for i, name := range names {
		if empty, ok := values[i].([]any); ok && len(empty) == 0 {
			continue
		}
		if err := write(name, values[i]); err != nil {
			return fmt.Errorf("%s@%s: %w", key, name, err)
		}
	}
	return nil
}

func readAttrs(obj hdf5.Object) (names []string, values []any, err error) {
	switch o := obj.(type) {
	case *hdf5.Group:
		list, err := o.Attributes()
		if err != nil {
			return nil, nil, err
		}
		for _, a := range list {
			v, err := a.ReadValue()
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			names, values = append(names, a.Name), append(values, v)
		}
	case *hdf5.Dataset:
		list, err := o.Attributes()
		if err != nil {
			return nil, nil, err
		}
		for _, a := range list {
			v, err := a.ReadValue()
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", a.Name, err)
			}
			names, values = append(names, a.Name), append(values, v)
		}
	}
	return names, values, nil
}

var (
	shape1D = regexp.MustCompile(`1D array \[(\d+)\]`)
	shape2D = regexp.MustCompile(`2D array \[(\d+) x (\d+)\]`)
	shapeND = regexp.MustCompile(`\d+D array \[([0-9 ]+)\]`)
)

// parseShape recovers dimensions from a dataset info line such as
// "Dataset: float (size=8 bytes), 2D array [3 x 4], contiguous ...".
func parseShape(info string) ([]int, error) {
	var fields []string
	switch {
	case shape2D.MatchString(info):
		fields = shape2D.FindStringSubmatch(info)[1:]
	case shape1D.MatchString(info):
		fields = shape1D.FindStringSubmatch(info)[1:]
	case shapeND.MatchString(info):
		fields = strings.Fields(shapeND.FindStringSubmatch(info)[1])
	case strings.Contains(info, "scalar"):
		return []int{}, nil
	default:
		return nil, fmt.Errorf("no shape in %q", info)
	}
	shape := make([]int, len(fields))
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("bad dimension %q: %w", f, err)
		}
		shape[i] = n
	}
	return shape, nil
}
