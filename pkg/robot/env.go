package robot

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gwillem/robodata/pkg/sim"
)

// armIO is the part of Arm the environment drives.
type armIO interface {
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	ReadPositions(ctx context.Context) (map[MotorName]float64, error)
	WritePositions(ctx context.Context, positions map[MotorName]float64) error
	Close() error
}

// Env plays datasets back on a physical arm. Its state is the normalized
// position of every motor in AllMotors order. Scene descriptions do not
// apply to hardware and are ignored.
type Env struct {
	ctx      context.Context
	arm      armIO
	delta    bool
	stepSize float64
}

// NewEnv wraps an enabled arm. Recognised kwargs are
// controller_configs.control_delta and step_size.
func NewEnv(ctx context.Context, arm armIO, kw sim.Kwargs) *Env {
	return &Env{
		ctx:      ctx,
		arm:      arm,
		delta:    kw.Map("controller_configs").Bool("control_delta", true),
		stepSize: kw.Float("step_size", DefaultStepSize),
	}
}

// NewEnvFactory opens the configured arm for every environment built.
func NewEnvFactory(cfg *Config) sim.Factory {
	return func(ctx context.Context, kw sim.Kwargs) (sim.Env, error) {
		if !cfg.Arm.IsCalibrated() {
			return nil, fmt.Errorf("arm on %q is not calibrated, run setup first", cfg.Arm.Port)
		}
		arm, err := NewArm(cfg.Arm.Port, cfg.Arm.Calibration)
		if err != nil {
			return nil, err
		}
		if err := arm.Enable(ctx); err != nil {
			return nil, errors.Join(fmt.Errorf("enable torque: %w", err), arm.Close())
		}
		if cfg.StepSize > 0 {
			kw = kw.Clone()
			kw["step_size"] = cfg.StepSize
		}
		return NewEnv(ctx, arm, kw), nil
	}
}

func (e *Env) positions() ([]float64, error) {
	pos, err := e.arm.ReadPositions(e.ctx)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(AllMotors()))
	for _, name := range AllMotors() {
		out = append(out, pos[name])
	}
	return out, nil
}

func (e *Env) write(values []float64) error {
	motors := AllMotors()
	if len(values) != len(motors) {
		return fmt.Errorf("got %d values, arm has %d motors", len(values), len(motors))
	}
	target := make(map[MotorName]float64, len(motors))
	for i, name := range motors {
		target[name] = clampNorm(values[i])
	}
	return e.arm.WritePositions(e.ctx, target)
}

func clampNorm(v float64) float64 {
	return max(-100, min(100, v))
}

type armPhysics struct{ env *Env }

// Reset moves every joint to the middle of its range.
func (p armPhysics) Reset() error {
	return p.env.write(make([]float64, len(AllMotors())))
}

func (p armPhysics) State() ([]float64, error) { return p.env.positions() }

func (p armPhysics) SetStateFromFlattened(s []float64) error { return p.env.write(s) }

// Forward has nothing to recompute; the servos report their own state.
func (p armPhysics) Forward() error { return nil }

func (e *Env) Reset() error { return armPhysics{e}.Reset() }

func (e *Env) ResetFromXML(string) error { return e.Reset() }

func (e *Env) Sim() sim.Physics { return armPhysics{e} }

// Step moves by action*step_size in delta mode and to action*100 in
// absolute mode. Positions are clamped to [-100, 100].
func (e *Env) Step(action []float64) error {
	motors := AllMotors()
	if len(action) < len(motors) {
		return fmt.Errorf("action has %d values, arm has %d motors", len(action), len(motors))
	}
	target := make([]float64, len(motors))
	if e.delta {
		cur, err := e.positions()
		if err != nil {
			return err
		}
		for i := range motors {
			target[i] = cur[i] + action[i]*e.stepSize
		}
	} else {
		for i := range motors {
			target[i] = action[i] * 100
		}
	}
	return e.write(target)
}

// Observations reports robot0_joint_pos.
func (e *Env) Observations() (map[string][]float64, error) {
	pos, err := e.positions()
	if err != nil {
		return nil, err
	}
	return map[string][]float64{"robot0_joint_pos": pos}, nil
}

func (e *Env) Render(camera string, _, _ int) (image.Image, error) {
	return nil, fmt.Errorf("render %s on hardware: %w", camera, sim.ErrUnsupported)
}

// Close releases torque and the bus.
func (e *Env) Close() error {
	return errors.Join(e.arm.Disable(e.ctx), e.arm.Close())
}
