package kinematic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/sim"
)

const twoJointXML = `<mujoco model="tiny">
  <worldbody>
    <body name="base"><joint name="j1" range="-1 1"/><joint name="j2" range="0 2"/></body>
    <body name="cup" pos="1 2 3"/>
  </worldbody>
  <actuator><motor joint="j1" gear="2"/><motor joint="j2"/></actuator>
</mujoco>`

func TestParseModel(t *testing.T) {
	m, err := ParseModel(DefaultXML)
	require.NoError(t, err)
	assert.Len(t, m.Joints, 7)
	require.Len(t, m.Bodies, 2)
	assert.Equal(t, "obj", m.Bodies[0].Name)
	assert.Equal(t, [3]float64{0.6, 0.25, 0.9}, m.Bodies[1].Pos)

	m, err = ParseModel(twoJointXML)
	require.NoError(t, err)
	assert.Equal(t, []Joint{
		{Name: "j1", Range: [2]float64{-1, 1}, Gear: 2},
		{Name: "j2", Range: [2]float64{0, 2}, Gear: 1},
	}, m.Joints)

	_, err = ParseModel(`<mujoco><worldbody><body name="b" pos="1 2"/></worldbody></mujoco>`)
	assert.Error(t, err)
	_, err = ParseModel(`not xml`)
	assert.Error(t, err)
}

func newTiny(t *testing.T, kw sim.Kwargs) *Env {
	t.Helper()
	env, err := New(kw)
	require.NoError(t, err)
	require.NoError(t, env.ResetFromXML(twoJointXML))
	return env
}

func TestStepDelta(t *testing.T) {
	env := newTiny(t, sim.Kwargs{"control_freq": float64(10)})
	require.NoError(t, env.Step([]float64{0.5, 1, 99}))

	state, err := env.Sim().State()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, 0.1, 0.1, 1, 1}, state, 1e-12)

	// Joint limits clamp the integrated position.
	for range 20 {
		require.NoError(t, env.Step([]float64{1, 0}))
	}
	state, _ = env.Sim().State()
	assert.Equal(t, 1.0, state[1])
}

func TestStepAbsolute(t *testing.T) {
	env := newTiny(t, sim.Kwargs{
		"controller_configs": map[string]any{"control_delta": false},
	})
	require.NoError(t, env.Step([]float64{-1, 0}))
	state, _ := env.Sim().State()
	assert.Equal(t, -1.0, state[1])
	assert.Equal(t, 1.0, state[2])
}

func TestStateRoundTrip(t *testing.T) {
	env := newTiny(t, nil)
	want := []float64{3.5, 0.2, 1.5, -0.1, 0.4}
	require.NoError(t, env.Sim().SetStateFromFlattened(want))
	require.NoError(t, env.Sim().Forward())
	got, err := env.Sim().State()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.Error(t, env.Sim().SetStateFromFlattened([]float64{1, 2}))

	require.NoError(t, env.Reset())
	got, _ = env.Sim().State()
	assert.Equal(t, make([]float64, 5), got)
}

func TestObservations(t *testing.T) {
	env := newTiny(t, nil)
	obs, err := env.Observations()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, obs["cup_pos"])
	assert.Len(t, obs["robot0_eef_pos"], 3)
	assert.InDelta(t, 0.6, obs["robot0_eef_pos"][0], 1e-12)
	assert.Equal(t, []float64{0, 0}, obs["robot0_joint_pos"])
}

func TestRender(t *testing.T) {
	env := newTiny(t, nil)
	_, err := env.Render("agentview", 64, 48)
	assert.ErrorIs(t, err, sim.ErrUnsupported)

	env = newTiny(t, sim.Kwargs{"has_offscreen_renderer": true})
	img, err := env.Render("agentview", 64, 48)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())
	assert.Equal(t, 48, img.Bounds().Dy())
}

func TestCapabilities(t *testing.T) {
	env := newTiny(t, sim.Kwargs{"asset_root": "/assets"})
	caps := sim.Bind(env).Capabilities()
	assert.Equal(t, "current", caps.EpMeta)
	assert.True(t, caps.UpdateState)
	assert.False(t, caps.LegacyXML)

	out, err := env.EditModelXML(`<mesh file="/x/robosuite/a.stl"/>`)
	require.NoError(t, err)
	assert.Equal(t, `<mesh file="/assets/robosuite/a.stl"/>`, out)
}
