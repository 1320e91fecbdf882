package playback

import (
	"bytes"
	"context"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/dataset/dstest"
	"github.com/gwillem/robodata/pkg/metrics"
	"github.com/gwillem/robodata/pkg/results"
	"github.com/gwillem/robodata/pkg/sim"
	"github.com/gwillem/robodata/pkg/sim/kinematic"
	"github.com/gwillem/robodata/pkg/video"
)

// quarterStepArgs makes the kinematic clock advance in exact binary steps.
const quarterStepArgs = `{"env_name": "PnPCounterToSink", "type": 1, "env_kwargs": {"control_freq": 4, "controller_configs": {"control_delta": true}}}`

// kinematicStates returns n stored states of the default kinematic scene
// at rest, one control step apart.
func kinematicStates(n int) [][]float64 {
	rows := dstest.Constant(n, 15, 0)
	for i := range rows {
		rows[i][0] = 0.25 * float64(i)
	}
	return rows
}

type harness struct {
	deps     Deps
	out      bytes.Buffer
	logs     bytes.Buffer
	rec      *video.Recorder
	sinkPath string
	made     []sim.Kwargs
}

func newHarness(t *testing.T, spec dstest.Spec) *harness {
	t.Helper()
	h := &harness{rec: &video.Recorder{}}
	reg := sim.NewRegistry()
	reg.Register("kinematic", func(ctx context.Context, kw sim.Kwargs) (sim.Env, error) {
		h.made = append(h.made, kw)
		return kinematic.Factory(ctx, kw)
	})
	h.deps = Deps{
		Registry: reg,
		Logger:   log.New(&h.logs),
		Metrics:  metrics.New(),
		Out:      &h.out,
		OpenDataset: func(context.Context, string) (*dataset.Dataset, error) {
			return dstest.Build(spec), nil
		},
		NewSink: func(_ context.Context, path string, _ int) (video.Sink, error) {
			h.sinkPath = path
			return h.rec, nil
		},
	}
	return h
}

func testOptions() Options {
	o := DefaultOptions()
	o.Dataset = "/sets/pnp.hdf5"
	o.Cameras = []string{"robot0_agentview_left"}
	return o
}

func TestDriverStoredStates(t *testing.T) {
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_10", States: kinematicStates(3)},
		{ID: "demo_2", States: kinematicStates(5)},
		{ID: "demo_1", States: kinematicStates(4)},
	}})
	o := testOptions()
	o.N = 2
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)

	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 2)
	assert.Equal(t, "demo_1", sum.Episodes[0].Episode)
	assert.Equal(t, 4, sum.Episodes[0].Steps)
	assert.Equal(t, "demo_2", sum.Episodes[1].Episode)
	assert.Equal(t, 5, sum.Episodes[1].Steps)

	// Frame 0 of each episode, skipping restarts per episode.
	assert.Len(t, h.rec.Frames, 2)
	assert.True(t, h.rec.Closed)
	assert.Equal(t, "/sets/pnp_use_storedstates.mp4", h.sinkPath)
	assert.Equal(t, "/sets/pnp_use_storedstates.mp4", sum.VideoPath)
	assert.Equal(t, "Playing back episode: demo_1\nPlaying back episode: demo_2\nSaved video to /sets/pnp_use_storedstates.mp4\n", h.out.String())

	require.Len(t, h.made, 1)
	kw := h.made[0]
	assert.Equal(t, "PnPCounterToSink", kw["env_name"])
	assert.Equal(t, true, kw["has_offscreen_renderer"])
	assert.Equal(t, false, kw["has_renderer"])
	assert.Equal(t, "mjviewer", kw["renderer"])
	assert.Equal(t, false, kw["use_camera_obs"])

	assert.Equal(t, 9.0, testutil.ToFloat64(h.deps.Metrics.Steps))
	assert.Equal(t, 2.0, testutil.ToFloat64(h.deps.Metrics.Episodes.WithLabelValues("storedstates")))
}

func TestDriverActionsMatchStoredStates(t *testing.T) {
	h := newHarness(t, dstest.Spec{EnvArgs: quarterStepArgs, Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(4), Actions: dstest.Constant(4, 7, 0)},
	}})
	store, err := results.Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	defer store.Close()
	h.deps.Results = store

	o := testOptions()
	o.UseActions = true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 1)
	assert.Equal(t, 4, sum.Episodes[0].Steps)
	assert.Zero(t, sum.Episodes[0].Divergences)
	assert.NotContains(t, h.logs.String(), "diverged")

	stored, err := store.Episodes(context.Background(), sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, sum.Episodes, stored)
}

func TestDriverAbsoluteActionsOverrideController(t *testing.T) {
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(2), AbsActions: dstest.Constant(2, 7, 0)},
	}})
	o := testOptions()
	o.UseAbsActions = true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.made, 1)
	assert.Equal(t, false, h.made[0].Map("controller_configs").Bool("control_delta", true))
	assert.Equal(t, "OSC_POSE", h.made[0].Map("controller_configs").String("type", ""))
}

func TestDriverRebuildsEnvironmentPerTask(t *testing.T) {
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(1), DatasetPath: "/mnt/kitchen_pnp/PnPStoveToCounter/2024/demo.hdf5"},
		{ID: "demo_1", States: kinematicStates(1), DatasetPath: "/mnt/kitchen_pnp/PnPStoveToCounter/2025/demo.hdf5"},
		{ID: "demo_2", States: kinematicStates(1), DatasetPath: "/mnt/elsewhere/demo.hdf5"},
		{ID: "demo_3", States: kinematicStates(1)},
	}})
	d, err := NewDriver(testOptions(), h.deps)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	var names []any
	for _, kw := range h.made {
		names = append(names, kw["env_name"])
	}
	assert.Equal(t, []any{"PnPCounterToSink", "PnPStoveToCounter", "PnPSinkToCounter"}, names)
	assert.Contains(t, h.logs.String(), "cannot derive task from dataset path")
}

func TestDriverFilterKeyAndDemos(t *testing.T) {
	h := newHarness(t, dstest.Spec{
		Episodes: []dstest.Episode{
			{ID: "demo_0", States: kinematicStates(1)},
			{ID: "demo_1", States: kinematicStates(1)},
			{ID: "demo_2", States: kinematicStates(1)},
		},
		Masks: map[string][]string{"valid": {"demo_2", "demo_0"}},
	})
	o := testOptions()
	o.FilterKey = "valid"
	o.Demos = []string{"demo_2", "demo_1"}
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 1)
	assert.Equal(t, "demo_2", sum.Episodes[0].Episode)
	assert.Contains(t, h.out.String(), "NOTE: using filter key valid\n")
}

func TestDriverWritesRawObs(t *testing.T) {
	spec := dstest.Spec{EnvArgs: quarterStepArgs, Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(3), Actions: dstest.Constant(3, 7, 0)},
	}}
	h := newHarness(t, spec)

	eef, err := dataset.FromRows([][]float64{{0.9, 0, 0.9}, {0.9, 0.05, 0.9}, {0.88, 0, 0.9}})
	require.NoError(t, err)
	auxMem := dstest.Memory(dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", Obs: map[string]*dataset.Array{"robot0_eef_pos": eef}},
	}})
	var auxPath string
	h.deps.OpenAux = func(path string) (*dataset.Dataset, error) {
		auxPath = path
		return dataset.New(auxMem), nil
	}

	o := testOptions()
	o.UseActions, o.AddRawStates = true, true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/sets/pnp_classifier.hdf5", auxPath)
	raw, err := auxMem.ReadArray("data/demo_0/raw_obs")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 9}, raw.Shape)
	assert.InDeltaSlice(t, []float64{0.9, 0, 0.9, 0.55, -0.1, 0.92, 0.6, 0.25, 0.9}, raw.Row(0), 1e-9)
	assert.NotContains(t, h.logs.String(), "do not match")
}

func TestDriverRawObsMismatchWarns(t *testing.T) {
	h := newHarness(t, dstest.Spec{EnvArgs: quarterStepArgs, Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(2), Actions: dstest.Constant(2, 7, 0)},
	}})
	auxMem := dstest.Memory(dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", Obs: map[string]*dataset.Array{"robot0_eef_pos": mustArray(t, dstest.Constant(2, 3, 5))}},
	}})
	h.deps.OpenAux = func(string) (*dataset.Dataset, error) { return dataset.New(auxMem), nil }

	o := testOptions()
	o.UseActions, o.AddRawStates = true, true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	assert.Contains(t, h.logs.String(), "raw observations do not match stored end effector positions")
	_, err = auxMem.ReadArray("data/demo_0/raw_obs")
	assert.NoError(t, err, "array is written despite the warning")
}

func mustArray(t *testing.T, r [][]float64) *dataset.Array {
	t.Helper()
	a, err := dataset.FromRows(r)
	require.NoError(t, err)
	return a
}

func TestDriverFirstWritesOneFramePerEpisode(t *testing.T) {
	var eps []dstest.Episode
	for _, id := range []string{"demo_0", "demo_1", "demo_2", "demo_3", "demo_4", "demo_5"} {
		eps = append(eps, dstest.Episode{ID: id, States: kinematicStates(3)})
	}
	h := newHarness(t, dstest.Spec{Episodes: eps})
	o := testOptions()
	o.First = true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 6)
	for _, ep := range sum.Episodes {
		assert.Equal(t, 1, ep.Steps, ep.Episode)
		assert.Equal(t, 1, ep.Frames, ep.Episode)
	}
	assert.Len(t, h.rec.Frames, 6)
}

func TestDriverVideoSkipRestartsPerEpisode(t *testing.T) {
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(3)},
		{ID: "demo_1", States: kinematicStates(1)},
	}})
	o := testOptions()
	o.VideoSkip = 2
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 2)
	assert.Equal(t, 2, sum.Episodes[0].Frames)
	assert.Equal(t, 1, sum.Episodes[1].Frames)
	assert.Len(t, h.rec.Frames, 3)
}

func TestDriverObservationsFirst(t *testing.T) {
	img := imageArray(t, 3, 2, color.RGBA{G: 200})
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", Obs: map[string]*dataset.Array{"robot0_agentview_left_image": img}},
		{ID: "demo_1", Obs: map[string]*dataset.Array{"robot0_agentview_left_image": img}},
		{ID: "demo_2", Obs: map[string]*dataset.Array{"robot0_agentview_left_image": img}},
	}})
	o := testOptions()
	o.UseObs, o.First = true, true
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sum.Episodes, 3)
	for _, ep := range sum.Episodes {
		assert.Equal(t, 1, ep.Frames, ep.Episode)
	}
	assert.Len(t, h.rec.Frames, 3)
}

func TestDriverObservationsOnly(t *testing.T) {
	img := imageArray(t, 4, 2, color.RGBA{R: 10, G: 20, B: 30})
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", Obs: map[string]*dataset.Array{"robot0_agentview_left_image": img}},
	}})
	o := testOptions()
	o.UseObs, o.VideoSkip = true, 3
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.made, "no environment in observation mode")
	assert.Equal(t, 2, sum.Episodes[0].Frames)
	assert.Len(t, h.rec.Frames, 2)
	assert.Equal(t, "/sets/pnp_use_obs.mp4", h.sinkPath)
}

func TestDriverOnScreen(t *testing.T) {
	h := newHarness(t, dstest.Spec{Episodes: []dstest.Episode{
		{ID: "demo_0", States: kinematicStates(2)},
	}})
	var displays []*fakeDisplay
	h.deps.NewDisplay = func(string, int) (Display, error) {
		d := &fakeDisplay{}
		displays = append(displays, d)
		return d, nil
	}
	o := testOptions()
	o.Render, o.MaxFPS = true, 1000
	d, err := NewDriver(o, h.deps)
	require.NoError(t, err)
	sum, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, h.sinkPath, "no video when rendering on screen")
	assert.Empty(t, sum.VideoPath)
	require.Len(t, displays, 1)
	assert.Len(t, displays[0].frames, 2)
	assert.True(t, displays[0].closed)
	assert.Equal(t, false, h.made[0]["has_offscreen_renderer"])
}

func TestNewDriverRejectsUsageErrors(t *testing.T) {
	opened := false
	o := testOptions()
	o.UseActions, o.UseAbsActions = true, true
	_, err := NewDriver(o, Deps{
		Registry: sim.NewRegistry(),
		OpenDataset: func(context.Context, string) (*dataset.Dataset, error) {
			opened = true
			return nil, nil
		},
	})
	assert.ErrorIs(t, err, ErrUsage)
	assert.False(t, opened)
}
