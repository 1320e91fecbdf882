package dataset

import "errors"

// ErrNotFound is returned when a group, array or attribute does not exist.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned when writing through a backend opened read-only.
var ErrReadOnly = errors.New("dataset opened read-only")

// Node describes one child of a group.
type Node struct {
	Name  string
	Group bool
	Shape []int // nil for groups
}

// Backend is the storage a Dataset reads from. Paths are slash separated
// and relative to the file root ("data/demo_0/states").
type Backend interface {
	// List returns the children of a group in storage order.
	List(path string) ([]Node, error)
	// Attr returns the raw value of an attribute on a group or array.
	Attr(path, name string) (any, error)
	ReadArray(path string) (*Array, error)
	ReadStrings(path string) ([]string, error)
	Close() error
}

// WritableBackend can create or overwrite numeric arrays.
type WritableBackend interface {
	Backend
	WriteArray(path string, a *Array) error
}
