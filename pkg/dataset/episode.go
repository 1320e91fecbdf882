package dataset

import (
	"errors"
	"fmt"
)

// Episode is a handle to data/<id>.
type Episode struct {
	ID   string
	b    Backend
	base string
}

// Path returns the episode group path.
func (e *Episode) Path() string { return e.base }

func (e *Episode) array(name string) (*Array, error) {
	a, err := e.b.ReadArray(e.base + "/" + name)
	if err != nil {
		return nil, fmt.Errorf("episode %s: %w", e.ID, err)
	}
	return a, nil
}

func (e *Episode) States() (*Array, error)     { return e.array("states") }
func (e *Episode) Actions() (*Array, error)    { return e.array("actions") }
func (e *Episode) AbsActions() (*Array, error) { return e.array("actions_abs") }

// Obs reads obs/<name>.
func (e *Episode) Obs(name string) (*Array, error) { return e.array("obs/" + name) }

// Attr returns a raw attribute of the episode group.
func (e *Episode) Attr(name string) (any, error) {
	return e.b.Attr(e.base, name)
}

// stringAttr returns ok=false when the attribute is absent.
func (e *Episode) stringAttr(name string) (string, bool, error) {
	v, err := e.Attr(name)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	s, err := attrString(v)
	if err != nil {
		return "", false, fmt.Errorf("episode %s %s: %w", e.ID, name, err)
	}
	return s, true, nil
}

// ModelXML returns the stored scene description.
func (e *Episode) ModelXML() (string, bool, error) { return e.stringAttr("model_file") }

// EpMetaJSON returns the raw ep_meta document.
func (e *Episode) EpMetaJSON() (string, bool, error) { return e.stringAttr("ep_meta") }

// DatasetPath returns the source path recorded for merged datasets.
func (e *Episode) DatasetPath() (string, bool, error) { return e.stringAttr("dataset_path") }

// EpMeta parses ep_meta. A missing attribute yields an empty record.
func (e *Episode) EpMeta() (*EpisodeMeta, error) {
	s, _, err := e.EpMetaJSON()
	if err != nil {
		return nil, err
	}
	m, err := ParseEpisodeMeta(s)
	if err != nil {
		return nil, fmt.Errorf("episode %s: %w", e.ID, err)
	}
	return m, nil
}

// NumSamples returns the num_samples attribute when present.
func (e *Episode) NumSamples() (int, bool, error) {
	v, err := e.Attr("num_samples")
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := attrInt(v)
	if err != nil {
		return 0, false, fmt.Errorf("episode %s num_samples: %w", e.ID, err)
	}
	return n, true, nil
}

// Has reports whether the episode contains a child named name.
func (e *Episode) Has(name string) bool {
	nodes, err := e.b.List(e.base)
	if err != nil {
		return false
	}
	for _, n := range nodes {
		if n.Name == name {
			return true
		}
	}
	return false
}

// Key is one entry of an episode's layout. Observation groups list their
// members in Sub.
type Key struct {
	Name  string
	Shape []int
	Sub   []Node
}

// ObservationGroup reports whether the key is obs or next_obs.
func (k Key) ObservationGroup() bool {
	return k.Name == "obs" || k.Name == "next_obs"
}

// Structure lists the arrays of the episode in storage order. Observation
// groups are expanded one level; other groups are skipped.
func (e *Episode) Structure() ([]Key, error) {
	nodes, err := e.b.List(e.base)
	if err != nil {
		return nil, fmt.Errorf("episode %s: %w", e.ID, err)
	}
	var keys []Key
	for _, n := range nodes {
		k := Key{Name: n.Name, Shape: n.Shape}
		switch {
		case k.ObservationGroup():
			if k.Sub, err = e.b.List(e.base + "/" + n.Name); err != nil {
				return nil, fmt.Errorf("episode %s: %w", e.ID, err)
			}
		case n.Group:
			continue
		}
		keys = append(keys, k)
	}
	return keys, nil
}
