// Package sim defines the simulation environment contract used for
// playback, the optional capabilities environments may expose and a
// registry of environment backends.
package sim

import (
	"errors"
	"image"
)

// ErrUnsupported is returned by environments for operations their backend
// cannot perform, such as rendering on real hardware.
var ErrUnsupported = errors.New("unsupported by environment")

// Physics is the engine behind an environment.
type Physics interface {
	Reset() error
	// State returns the flattened engine state.
	State() ([]float64, error)
	SetStateFromFlattened(state []float64) error
	// Forward recomputes derived quantities after a state change.
	Forward() error
}

// Env is a controllable environment.
type Env interface {
	Reset() error
	// ResetFromXML rebuilds the scene from a scene description.
	ResetFromXML(xml string) error
	Sim() Physics
	Step(action []float64) error
	Observations() (map[string][]float64, error)
	Render(camera string, width, height int) (image.Image, error)
	Close() error
}

// EpMetaSetter is the current name for applying episode metadata.
type EpMetaSetter interface {
	SetEpMeta(meta map[string]any) error
}

// LegacyEpMetaSetter is the name older environments use for EpMetaSetter.
type LegacyEpMetaSetter interface {
	SetAttrsFromEpMeta(meta map[string]any) error
}

// SiteUpdater refreshes visual site annotations (older environments).
type SiteUpdater interface {
	UpdateSites() error
}

// StateUpdater refreshes derived state after a reset (newer environments).
type StateUpdater interface {
	UpdateState() error
}

// ModelXMLEditor rewrites a stored scene description for the local install.
type ModelXMLEditor interface {
	EditModelXML(xml string) (string, error)
}

// Versioned reports the environment library version, e.g. "1.4.1".
type Versioned interface {
	Version() string
}
