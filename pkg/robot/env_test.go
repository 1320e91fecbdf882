package robot

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/sim"
)

type fakeArm struct {
	pos     map[MotorName]float64
	writes  int
	enabled bool
	closed  bool
	readErr error
}

func newFakeArm() *fakeArm {
	pos := map[MotorName]float64{}
	for _, m := range AllMotors() {
		pos[m] = 10
	}
	return &fakeArm{pos: pos, enabled: true}
}

func (f *fakeArm) Enable(context.Context) error  { f.enabled = true; return nil }
func (f *fakeArm) Disable(context.Context) error { f.enabled = false; return nil }
func (f *fakeArm) Close() error                  { f.closed = true; return nil }

func (f *fakeArm) ReadPositions(context.Context) (map[MotorName]float64, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make(map[MotorName]float64, len(f.pos))
	for k, v := range f.pos {
		out[k] = v
	}
	return out, nil
}

func (f *fakeArm) WritePositions(_ context.Context, p map[MotorName]float64) error {
	f.writes++
	for k, v := range p {
		f.pos[k] = v
	}
	return nil
}

func (f *fakeArm) vector() []float64 {
	out := make([]float64, 0, len(f.pos))
	for _, m := range AllMotors() {
		out = append(out, f.pos[m])
	}
	return out
}

func TestEnvDeltaStep(t *testing.T) {
	arm := newFakeArm()
	env := NewEnv(context.Background(), arm, sim.Kwargs{})

	require.NoError(t, env.Step([]float64{1, -1, 0, 0.5, 0, 20, 99}))
	assert.Equal(t, []float64{15, 5, 10, 12.5, 10, 100}, arm.vector())

	assert.ErrorContains(t, env.Step([]float64{1}), "arm has 6 motors")
}

func TestEnvAbsoluteStep(t *testing.T) {
	arm := newFakeArm()
	kw := sim.Kwargs{"controller_configs": map[string]any{"control_delta": false}}
	env := NewEnv(context.Background(), arm, kw)

	require.NoError(t, env.Step([]float64{0.5, -0.25, 0, 0, 1, -2}))
	assert.Equal(t, []float64{50, -25, 0, 0, 100, -100}, arm.vector())
}

func TestEnvStepSize(t *testing.T) {
	arm := newFakeArm()
	env := NewEnv(context.Background(), arm, sim.Kwargs{"step_size": 2.0})
	require.NoError(t, env.Step([]float64{1, 1, 1, 1, 1, 1}))
	assert.Equal(t, []float64{12, 12, 12, 12, 12, 12}, arm.vector())
}

func TestEnvStateRoundTrip(t *testing.T) {
	arm := newFakeArm()
	env := NewEnv(context.Background(), arm, sim.Kwargs{})
	phys := env.Sim()

	want := []float64{1, 2, 3, 4, 5, 6}
	require.NoError(t, phys.SetStateFromFlattened(want))
	require.NoError(t, phys.Forward())
	got, err := phys.State()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.ErrorContains(t, phys.SetStateFromFlattened(make([]float64, 15)), "got 15 values")

	obs, err := env.Observations()
	require.NoError(t, err)
	assert.Equal(t, want, obs["robot0_joint_pos"])
}

func TestEnvResetAndClose(t *testing.T) {
	arm := newFakeArm()
	env := NewEnv(context.Background(), arm, sim.Kwargs{})

	require.NoError(t, env.ResetFromXML("<mujoco/>"))
	assert.Equal(t, make([]float64, 6), arm.vector())
	assert.Equal(t, 1, arm.writes)

	_, err := env.Render("robot0_eye_in_hand", 64, 64)
	assert.ErrorIs(t, err, sim.ErrUnsupported)

	require.NoError(t, env.Close())
	assert.False(t, arm.enabled)
	assert.True(t, arm.closed)
}

func TestEnvReadError(t *testing.T) {
	arm := newFakeArm()
	arm.readErr = errors.New("bus timeout")
	env := NewEnv(context.Background(), arm, sim.Kwargs{})
	assert.ErrorContains(t, env.Step(make([]float64, 6)), "bus timeout")
	_, err := env.Observations()
	assert.Error(t, err)
}

func TestEnvFactoryRequiresCalibration(t *testing.T) {
	_, err := NewEnvFactory(&Config{Arm: ArmConfig{Port: "/dev/null"}})(context.Background(), sim.Kwargs{})
	assert.ErrorContains(t, err, "not calibrated")
}
