package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EnvMeta is the environment construction record stored in the env_args
// attribute of the data group.
type EnvMeta struct {
	EnvName   string         `json:"env_name"`
	Type      int            `json:"type"`
	EnvKwargs map[string]any `json:"env_kwargs"`

	raw []byte
}

// ParseEnvMeta decodes an env_args JSON document.
func ParseEnvMeta(s string) (*EnvMeta, error) {
	var m EnvMeta
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("parse env_args: %w", err)
	}
	if m.EnvKwargs == nil {
		m.EnvKwargs = map[string]any{}
	}
	m.raw = []byte(s)
	return &m, nil
}

// Pretty returns the document indented by four spaces, keeping the stored
// key order.
func (m *EnvMeta) Pretty() (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, m.raw, "", "    "); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// ID is a layout or style identifier. Datasets store them either as JSON
// numbers or strings; the two are kept apart when counting.
type ID struct {
	Value    string
	IsString bool
}

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ID{}
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID{Value: s, IsString: true}
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("id must be a number or string: %w", err)
		}
		*id = ID{Value: n.String()}
	}
	return nil
}

// Repr formats the id the way the statistics report prints dict keys.
func (id ID) Repr() string {
	switch {
	case id.IsString:
		return "'" + id.Value + "'"
	case id.Value == "":
		return "None"
	default:
		return id.Value
	}
}

// Less orders numeric ids numerically and before string ids.
func (id ID) Less(o ID) bool {
	if id.IsString != o.IsString {
		return !id.IsString
	}
	if !id.IsString {
		a, errA := strconv.ParseFloat(id.Value, 64)
		b, errB := strconv.ParseFloat(o.Value, 64)
		if errA == nil && errB == nil && a != b {
			return a < b
		}
	}
	return id.Value < o.Value
}

// ObjectInfo is the resolved description of a placed object.
type ObjectInfo struct {
	Cat string `json:"cat"`
}

// ObjectCfg is one configured object. Info is nil when the object was not
// resolved at recording time.
type ObjectCfg struct {
	Name string      `json:"name"`
	Info *ObjectInfo `json:"info"`
}

// EpisodeMeta is the per-episode ep_meta record.
type EpisodeMeta struct {
	Lang       string      `json:"lang"`
	ObjectCfgs []ObjectCfg `json:"object_cfgs"`
	LayoutID   ID          `json:"layout_id"`
	StyleID    ID          `json:"style_id"`

	// Fields holds every stored field, including ones not modelled above.
	Fields map[string]any `json:"-"`
}

// ParseEpisodeMeta decodes an ep_meta document. Blank input yields an empty
// record.
func ParseEpisodeMeta(s string) (*EpisodeMeta, error) {
	m := &EpisodeMeta{Fields: map[string]any{}}
	if strings.TrimSpace(s) == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(s), m); err != nil {
		return nil, fmt.Errorf("parse ep_meta: %w", err)
	}
	if err := json.Unmarshal([]byte(s), &m.Fields); err != nil {
		return nil, fmt.Errorf("parse ep_meta: %w", err)
	}
	if m.Fields == nil {
		m.Fields = map[string]any{}
	}
	return m, nil
}

// ObjectsResolved reports whether every configured object carries an info
// record. It is true when no objects are configured.
func (m *EpisodeMeta) ObjectsResolved() bool {
	for _, o := range m.ObjectCfgs {
		if o.Info == nil {
			return false
		}
	}
	return true
}

// Category returns the category of the object configured under name.
func (m *EpisodeMeta) Category(name string) (string, bool) {
	for _, o := range m.ObjectCfgs {
		if o.Name == name {
			if o.Info == nil {
				return "", false
			}
			return o.Info.Cat, true
		}
	}
	return "", false
}

func attrString(v any) (string, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case []string:
		if len(v) == 1 {
			return v[0], nil
		}
	case []any:
		if len(v) == 1 {
			return attrString(v[0])
		}
	}
	return "", fmt.Errorf("attribute is %T, want string", v)
}

func attrInt(v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case []int64:
		if len(v) == 1 {
			return int(v[0]), nil
		}
	case []uint64:
		if len(v) == 1 {
			return int(v[0]), nil
		}
	case []int32:
		if len(v) == 1 {
			return int(v[0]), nil
		}
	case []float64:
		if len(v) == 1 {
			return int(v[0]), nil
		}
	case []any:
		if len(v) == 1 {
			return attrInt(v[0])
		}
	}
	return 0, fmt.Errorf("attribute is %T, want integer", v)
}
