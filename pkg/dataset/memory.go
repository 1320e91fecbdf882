package dataset

import (
	"fmt"
	"strings"
)

// Memory is an in-process Backend. Children keep insertion order, which
// lets tests reproduce files whose storage order differs from the numeric
// episode order.
type Memory struct {
	root *memNode
}

type memNode struct {
	name     string
	group    bool
	children []*memNode
	attrs    map[string]any
	array    *Array
	strings  []string
}

// NewMemory returns an empty tree with only the root group.
func NewMemory() *Memory {
	return &Memory{root: &memNode{group: true, attrs: map[string]any{}}}
}

func splitPathParts(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func (n *memNode) child(name string) *memNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (m *Memory) lookup(p string) (*memNode, error) {
	n := m.root
	for _, part := range splitPathParts(p) {
		if !n.group {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
		if n = n.child(part); n == nil {
			return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
		}
	}
	return n, nil
}

// AddGroup creates the group at p and any missing parents.
func (m *Memory) AddGroup(p string) {
	n := m.root
	for _, part := range splitPathParts(p) {
		c := n.child(part)
		if c == nil {
			c = &memNode{name: part, group: true, attrs: map[string]any{}}
			n.children = append(n.children, c)
		}
		n = c
	}
}

func (m *Memory) leaf(p string) *memNode {
	parts := splitPathParts(p)
	parent := strings.Join(parts[:len(parts)-1], "/")
	m.AddGroup(parent)
	g, _ := m.lookup(parent)
	name := parts[len(parts)-1]
	if c := g.child(name); c != nil {
		return c
	}
	c := &memNode{name: name, attrs: map[string]any{}}
	g.children = append(g.children, c)
	return c
}

// SetAttr sets an attribute on an existing group or array.
func (m *Memory) SetAttr(p, name string, value any) error {
	n, err := m.lookup(p)
	if err != nil {
		return err
	}
	n.attrs[name] = value
	return nil
}

// PutArray stores a numeric array at p, creating parent groups.
func (m *Memory) PutArray(p string, a *Array) {
	n := m.leaf(p)
	n.array, n.strings = a, nil
}

// PutStrings stores a string array at p, creating parent groups.
func (m *Memory) PutStrings(p string, s []string) {
	n := m.leaf(p)
	n.array, n.strings = nil, append([]string(nil), s...)
}

func (m *Memory) List(p string) ([]Node, error) {
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if !n.group {
		return nil, fmt.Errorf("%s is not a group", p)
	}
	nodes := make([]Node, 0, len(n.children))
	for _, c := range n.children {
		node := Node{Name: c.name, Group: c.group}
		switch {
		case c.array != nil:
			node.Shape = append([]int(nil), c.array.Shape...)
		case !c.group:
			node.Shape = []int{len(c.strings)}
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (m *Memory) Attr(p, name string) (any, error) {
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	v, ok := n.attrs[name]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", p, name, ErrNotFound)
	}
	return v, nil
}

func (m *Memory) ReadArray(p string) (*Array, error) {
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.array == nil {
		return nil, fmt.Errorf("%s is not a numeric array", p)
	}
	return n.array.Clone(), nil
}

func (m *Memory) ReadStrings(p string) ([]string, error) {
	n, err := m.lookup(p)
	if err != nil {
		return nil, err
	}
	if n.group || n.array != nil {
		return nil, fmt.Errorf("%s is not a string array", p)
	}
	return append([]string(nil), n.strings...), nil
}

func (m *Memory) WriteArray(p string, a *Array) error {
	m.PutArray(p, a)
	return nil
}

func (m *Memory) Close() error { return nil }
