package sim

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Capabilities records which optional interfaces an environment exposed
// when it was bound.
type Capabilities struct {
	EpMeta      string // "current", "legacy" or "" when neither is exposed
	UpdateSites bool
	UpdateState bool
	EditXML     bool
	Version     string
	// LegacyXML selects PostprocessModelXML over the environment's editor.
	LegacyXML bool
}

// Bound is an environment whose optional capabilities were probed once.
// Callers use its uniform methods instead of checking the environment
// themselves.
type Bound struct {
	Env

	caps      Capabilities
	setMeta   func(map[string]any) error
	editXML   func(string) (string, error)
	refresh   []func() error
	assetRoot string
}

// BindOption configures Bind.
type BindOption func(*Bound)

// WithAssetRoot sets the local asset directory used by the legacy scene
// description rewrite.
func WithAssetRoot(root string) BindOption {
	return func(b *Bound) { b.assetRoot = root }
}

// Bind probes env for optional capabilities.
func Bind(env Env, opts ...BindOption) *Bound {
	b := &Bound{Env: env}
	for _, opt := range opts {
		opt(b)
	}

	// Older environments expose both names; the legacy one wins there.
	switch e := env.(type) {
	case LegacyEpMetaSetter:
		b.caps.EpMeta = "legacy"
		b.setMeta = e.SetAttrsFromEpMeta
	case EpMetaSetter:
		b.caps.EpMeta = "current"
		b.setMeta = e.SetEpMeta
	}
	if e, ok := env.(SiteUpdater); ok {
		b.caps.UpdateSites = true
		b.refresh = append(b.refresh, e.UpdateSites)
	}
	if e, ok := env.(StateUpdater); ok {
		b.caps.UpdateState = true
		b.refresh = append(b.refresh, e.UpdateState)
	}
	if e, ok := env.(ModelXMLEditor); ok {
		b.caps.EditXML = true
		b.editXML = e.EditModelXML
	}
	if e, ok := env.(Versioned); ok {
		b.caps.Version = e.Version()
	}
	b.caps.LegacyXML = !b.caps.EditXML || legacyVersion(b.caps.Version)
	return b
}

// legacyVersion reports whether v is 1.3 or older.
func legacyVersion(v string) bool {
	parts := strings.Split(v, ".")
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return major < 1 || major == 1 && minor <= 3
}

// Capabilities returns what Bind found.
func (b *Bound) Capabilities() Capabilities { return b.caps }

// SetEpMeta applies episode metadata. It does nothing when the environment
// accepts no metadata.
func (b *Bound) SetEpMeta(meta map[string]any) error {
	if b.setMeta == nil {
		return nil
	}
	if meta == nil {
		meta = map[string]any{}
	}
	return b.setMeta(meta)
}

// PrepareModelXML rewrites a stored scene description before it is loaded.
func (b *Bound) PrepareModelXML(xml string) (string, error) {
	if b.caps.LegacyXML {
		return PostprocessModelXML(xml, b.assetRoot), nil
	}
	out, err := b.editXML(xml)
	if err != nil {
		return "", fmt.Errorf("edit model xml: %w", err)
	}
	return out, nil
}

// Refresh calls every refresh hook the environment exposes.
func (b *Bound) Refresh() error {
	var errs []error
	for _, fn := range b.refresh {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
