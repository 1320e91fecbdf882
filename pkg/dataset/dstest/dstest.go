// Package dstest builds in-memory datasets for tests.
package dstest

import (
	"github.com/gwillem/robodata/pkg/dataset"
)

// DefaultEnvArgs is a minimal env_args record for the kinematic backend.
const DefaultEnvArgs = `{"env_name": "PnPCounterToSink", "type": 1, "env_kwargs": {"robots": ["PandaOmron"], "control_freq": 20, "controller_configs": {"type": "OSC_POSE", "control_delta": true}}}`

// Episode describes one fixture episode. Nil arrays and empty strings are
// left out of the tree.
type Episode struct {
	ID          string
	States      [][]float64
	Actions     [][]float64
	AbsActions  [][]float64
	Obs         map[string]*dataset.Array
	ModelXML    string
	EpMeta      string
	DatasetPath string
	NumSamples  int
}

// Spec describes a fixture dataset.
type Spec struct {
	EnvArgs  string
	Episodes []Episode
	Masks    map[string][]string
}

func mustRows(rows [][]float64) *dataset.Array {
	a, err := dataset.FromRows(rows)
	if err != nil {
		panic(err)
	}
	return a
}

// Memory builds the backing tree for s.
func Memory(s Spec) *dataset.Memory {
	m := dataset.NewMemory()
	m.AddGroup("data")
	envArgs := s.EnvArgs
	if envArgs == "" {
		envArgs = DefaultEnvArgs
	}
	_ = m.SetAttr("data", "env_args", envArgs)
	for _, ep := range s.Episodes {
		base := "data/" + ep.ID
		m.AddGroup(base)
		if ep.States != nil {
			m.PutArray(base+"/states", mustRows(ep.States))
		}
		if ep.Actions != nil {
			m.PutArray(base+"/actions", mustRows(ep.Actions))
		}
		if ep.AbsActions != nil {
			m.PutArray(base+"/actions_abs", mustRows(ep.AbsActions))
		}
		for name, a := range ep.Obs {
			m.PutArray(base+"/obs/"+name, a)
		}
		if ep.ModelXML != "" {
			_ = m.SetAttr(base, "model_file", ep.ModelXML)
		}
		if ep.EpMeta != "" {
			_ = m.SetAttr(base, "ep_meta", ep.EpMeta)
		}
		if ep.DatasetPath != "" {
			_ = m.SetAttr(base, "dataset_path", ep.DatasetPath)
		}
		if ep.NumSamples > 0 {
			_ = m.SetAttr(base, "num_samples", int64(ep.NumSamples))
		}
	}
	for name, ids := range s.Masks {
		m.PutStrings("mask/"+name, ids)
	}
	return m
}

// Build returns an open dataset over Memory(s).
func Build(s Spec) *dataset.Dataset {
	return dataset.New(Memory(s))
}

// Constant returns n rows of width w filled with v.
func Constant(n, w int, v float64) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = make([]float64, w)
		for j := range rows[i] {
			rows[i][j] = v
		}
	}
	return rows
}
