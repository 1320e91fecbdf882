package playback

import (
	"fmt"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/sim"
)

// State is a snapshot the environment can be reset to. Empty strings and a
// nil state vector mean the field is absent.
type State struct {
	Model  string // scene description
	EpMeta string // episode metadata JSON
	States []float64
}

// ResetTo puts env into st. It reports whether a state vector was restored.
// Absent fields are skipped, never treated as errors.
func ResetTo(env *sim.Bound, st State) (bool, error) {
	switch {
	case st.Model != "":
		meta, err := applyEpMeta(env, st.EpMeta)
		if err != nil {
			return false, err
		}
		if err := env.Reset(); err != nil {
			return false, fmt.Errorf("reset: %w", err)
		}
		// Scenes with unresolved objects keep the freshly sampled layout
		if meta.ObjectsResolved() {
			xml, err := env.PrepareModelXML(st.Model)
			if err != nil {
				return false, err
			}
			if err := env.ResetFromXML(xml); err != nil {
				return false, fmt.Errorf("reset from xml: %w", err)
			}
		}
		if err := env.Sim().Reset(); err != nil {
			return false, fmt.Errorf("reset sim: %w", err)
		}

	case st.EpMeta != "":
		if _, err := applyEpMeta(env, st.EpMeta); err != nil {
			return false, err
		}
		if err := env.Reset(); err != nil {
			return false, fmt.Errorf("reset: %w", err)
		}
		if err := env.Sim().Reset(); err != nil {
			return false, fmt.Errorf("reset sim: %w", err)
		}
	}

	restored := false
	if st.States != nil {
		if err := env.Sim().SetStateFromFlattened(st.States); err != nil {
			return false, fmt.Errorf("set state: %w", err)
		}
		if err := env.Sim().Forward(); err != nil {
			return false, fmt.Errorf("forward: %w", err)
		}
		restored = true
	}

	if err := env.Refresh(); err != nil {
		return restored, fmt.Errorf("refresh: %w", err)
	}
	return restored, nil
}

func applyEpMeta(env *sim.Bound, doc string) (*dataset.EpisodeMeta, error) {
	meta, err := dataset.ParseEpisodeMeta(doc)
	if err != nil {
		return nil, err
	}
	if err := env.SetEpMeta(meta.Fields); err != nil {
		return nil, fmt.Errorf("set ep meta: %w", err)
	}
	return meta, nil
}
