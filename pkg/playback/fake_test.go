package playback

import (
	"image"
	"image/color"
	"slices"

	"github.com/gwillem/robodata/pkg/sim"
	"github.com/gwillem/robodata/pkg/viewer"
)

// fakeEnv records every call. Step copies the action into the state so
// tests control the simulated trajectory exactly.
type fakeEnv struct {
	calls []string
	xml   string
	meta  map[string]any
	state []float64
	obs   map[string][]float64
}

type fakePhysics struct{ env *fakeEnv }

func (p fakePhysics) Reset() error {
	p.env.calls = append(p.env.calls, "sim_reset")
	return nil
}

func (p fakePhysics) State() ([]float64, error) {
	return slices.Clone(p.env.state), nil
}

func (p fakePhysics) SetStateFromFlattened(s []float64) error {
	p.env.calls = append(p.env.calls, "set_state")
	p.env.state = slices.Clone(s)
	return nil
}

func (p fakePhysics) Forward() error {
	p.env.calls = append(p.env.calls, "forward")
	return nil
}

func (e *fakeEnv) Reset() error {
	e.calls = append(e.calls, "reset")
	return nil
}

func (e *fakeEnv) ResetFromXML(xml string) error {
	e.calls = append(e.calls, "reset_from_xml")
	e.xml = xml
	return nil
}

func (e *fakeEnv) Sim() sim.Physics { return fakePhysics{e} }

func (e *fakeEnv) Step(action []float64) error {
	e.calls = append(e.calls, "step")
	e.state = slices.Clone(action)
	return nil
}

func (e *fakeEnv) Observations() (map[string][]float64, error) { return e.obs, nil }

func (e *fakeEnv) Render(_ string, w, h int) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{R: 255, A: 255})
	return img, nil
}

func (e *fakeEnv) Close() error { return nil }

func (e *fakeEnv) SetEpMeta(meta map[string]any) error {
	e.calls = append(e.calls, "set_ep_meta")
	e.meta = meta
	return nil
}

func (e *fakeEnv) UpdateState() error {
	e.calls = append(e.calls, "update_state")
	return nil
}

func (e *fakeEnv) EditModelXML(xml string) (string, error) {
	e.calls = append(e.calls, "edit_xml")
	return xml + "<!-- edited -->", nil
}

func (e *fakeEnv) Version() string { return "1.5.1" }

// legacyEnv exposes the older capability names on top of the current ones.
type legacyEnv struct{ *fakeEnv }

func (e legacyEnv) SetAttrsFromEpMeta(meta map[string]any) error {
	e.calls = append(e.calls, "set_attrs_from_ep_meta")
	e.meta = meta
	return nil
}

func (e legacyEnv) UpdateSites() error {
	e.calls = append(e.calls, "update_sites")
	return nil
}

func (e legacyEnv) Version() string { return "1.3.0" }

type fakeDisplay struct {
	frames []viewer.Frame
	closed bool
}

func (d *fakeDisplay) Show(f viewer.Frame) { d.frames = append(d.frames, f) }

func (d *fakeDisplay) Close() error {
	d.closed = true
	return nil
}
