package kinematic

import (
	"context"
	"fmt"
	"image"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/gwillem/robodata/pkg/sim"
)

// Version is reported through sim.Versioned.
const Version = "1.5.1"

// linkLength is the planar link length used for the end-effector estimate.
const linkLength = 0.3

type physics struct {
	model *Model
	time  float64
	qpos  []float64
	qvel  []float64
}

func newPhysics(m *Model) *physics {
	return &physics{
		model: m,
		qpos:  make([]float64, len(m.Joints)),
		qvel:  make([]float64, len(m.Joints)),
	}
}

func (p *physics) Reset() error {
	p.time = 0
	clear(p.qpos)
	clear(p.qvel)
	return nil
}

// State returns [time, qpos..., qvel...].
func (p *physics) State() ([]float64, error) {
	s := make([]float64, 0, 1+2*len(p.qpos))
	s = append(s, p.time)
	s = append(s, p.qpos...)
	return append(s, p.qvel...), nil
}

func (p *physics) SetStateFromFlattened(s []float64) error {
	n := len(p.qpos)
	if len(s) != 1+2*n {
		return fmt.Errorf("state has %d values, model needs %d", len(s), 1+2*n)
	}
	p.time = s[0]
	copy(p.qpos, s[1:1+n])
	copy(p.qvel, s[1+n:])
	return nil
}

// Forward clamps joint positions to their ranges.
func (p *physics) Forward() error {
	for i, j := range p.model.Joints {
		p.qpos[i] = clamp(p.qpos[i], j.Range[0], j.Range[1])
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Env is the kinematic environment.
type Env struct {
	name         string
	phys         *physics
	controlDelta bool
	dt           float64
	offscreen    bool
	assetRoot    string
	epMeta       map[string]any
}

// New builds an environment from construction kwargs. Recognised keys are
// env_name, control_freq, controller_configs.control_delta,
// has_offscreen_renderer and asset_root.
func New(kw sim.Kwargs) (*Env, error) {
	m, err := ParseModel(DefaultXML)
	if err != nil {
		return nil, err
	}
	freq := kw.Float("control_freq", 20)
	if freq <= 0 {
		return nil, fmt.Errorf("control_freq must be positive, got %v", freq)
	}
	return &Env{
		name:         kw.String("env_name", "Kinematic"),
		phys:         newPhysics(m),
		controlDelta: kw.Map("controller_configs").Bool("control_delta", true),
		dt:           1 / freq,
		offscreen:    kw.Bool("has_offscreen_renderer", false),
		assetRoot:    kw.String("asset_root", ""),
		epMeta:       map[string]any{},
	}, nil
}

// Factory adapts New to sim.Factory.
func Factory(_ context.Context, kw sim.Kwargs) (sim.Env, error) {
	return New(kw)
}

// Name returns the task name the environment was built for.
func (e *Env) Name() string { return e.name }

// Model returns the loaded scene.
func (e *Env) Model() *Model { return e.phys.model }

// EpMeta returns the last applied episode metadata.
func (e *Env) EpMeta() map[string]any { return e.epMeta }

func (e *Env) Reset() error { return e.phys.Reset() }

func (e *Env) ResetFromXML(doc string) error {
	m, err := ParseModel(doc)
	if err != nil {
		return err
	}
	e.phys = newPhysics(m)
	return nil
}

func (e *Env) Sim() sim.Physics { return e.phys }

// Step applies one control step. Extra action components are ignored and
// missing ones are treated as zero.
func (e *Env) Step(action []float64) error {
	p := e.phys
	for i, j := range p.model.Joints {
		var a float64
		if i < len(action) {
			a = action[i]
		}
		if e.controlDelta {
			p.qvel[i] = a * j.Gear
			p.qpos[i] += p.qvel[i] * e.dt
		} else {
			target := j.Range[0] + (clamp(a, -1, 1)+1)/2*(j.Range[1]-j.Range[0])
			p.qvel[i] = (target - p.qpos[i]) / e.dt
			p.qpos[i] = target
		}
	}
	p.time += e.dt
	return p.Forward()
}

// Observations reports robot0_joint_pos, robot0_eef_pos and <body>_pos for
// every scene body.
func (e *Env) Observations() (map[string][]float64, error) {
	p := e.phys
	obs := map[string][]float64{
		"robot0_joint_pos": append([]float64(nil), p.qpos...),
		"robot0_eef_pos":   e.eefPos(),
	}
	for _, b := range p.model.Bodies {
		obs[b.Name+"_pos"] = []float64{b.Pos[0], b.Pos[1], b.Pos[2]}
	}
	return obs, nil
}

// eefPos treats the first three joints as a planar chain with a lift
// from the fourth.
func (e *Env) eefPos() []float64 {
	var x, y, angle float64
	q := e.phys.qpos
	for i := 0; i < len(q) && i < 3; i++ {
		angle += q[i]
		x += linkLength * math.Cos(angle)
		y += linkLength * math.Sin(angle)
	}
	z := 0.9
	if len(q) > 3 {
		z += linkLength * math.Sin(q[3])
	}
	return []float64{x, y, z}
}

// Render draws the joint positions as a bar chart titled with the camera
// name. It needs has_offscreen_renderer.
func (e *Env) Render(camera string, width, height int) (image.Image, error) {
	if !e.offscreen {
		return nil, fmt.Errorf("render %s: offscreen renderer disabled: %w", camera, sim.ErrUnsupported)
	}
	p := plot.New()
	p.Title.Text = camera
	p.Y.Label.Text = "qpos"
	p.Y.Min, p.Y.Max = -math.Pi, math.Pi
	if n := len(e.phys.qpos); n > 0 {
		bars, err := plotter.NewBarChart(plotter.Values(e.phys.qpos), vg.Length(width)/vg.Length(2*n+2))
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", camera, err)
		}
		p.Add(bars)
	}
	c := vgimg.NewWith(vgimg.UseWH(vg.Length(width), vg.Length(height)), vgimg.UseDPI(72))
	p.Draw(draw.New(c))
	return c.Image(), nil
}

func (e *Env) Close() error { return nil }

// SetEpMeta stores episode metadata.
func (e *Env) SetEpMeta(meta map[string]any) error {
	e.epMeta = meta
	return nil
}

// UpdateState recomputes derived state.
func (e *Env) UpdateState() error { return e.phys.Forward() }

// EditModelXML relocates asset references to asset_root.
func (e *Env) EditModelXML(doc string) (string, error) {
	return sim.PostprocessModelXML(doc, e.assetRoot), nil
}

func (e *Env) Version() string { return Version }
