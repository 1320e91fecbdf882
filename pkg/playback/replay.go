package playback

import (
	"fmt"
	"image"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/metrics"
	"github.com/gwillem/robodata/pkg/sim"
	"github.com/gwillem/robodata/pkg/video"
	"github.com/gwillem/robodata/pkg/viewer"
)

// Camera frames are rendered at this size before concatenation.
const (
	frameWidth  = 512
	frameHeight = 512
)

// Display receives on-screen frames. *viewer.Viewer implements it.
type Display interface {
	Show(f viewer.Frame)
	Close() error
}

// Trajectory is what one episode replay needs.
type Trajectory struct {
	Episode string
	Initial State
	States  *dataset.Array
	Actions *dataset.Array // nil replays stored states
}

// Divergence is a step where the simulated state differed from the stored
// next state.
type Divergence struct {
	Step int
	Norm float64
}

// Result is the outcome of one replay.
type Result struct {
	Steps       int
	Frames      int
	Divergences []Divergence
	RawObs      *dataset.Array // nil unless raw observations were collected
}

// MaxDivergence returns the largest divergence norm, or 0.
func (r Result) MaxDivergence() float64 {
	var m float64
	for _, d := range r.Divergences {
		m = max(m, d.Norm)
	}
	return m
}

// Replayer drives a bound environment through a trajectory. Exactly one of
// Display and Sink is normally set.
type Replayer struct {
	Env     *sim.Bound
	Logger  *log.Logger
	Metrics *metrics.Metrics

	Display Display
	MaxFPS  int

	Sink      video.Sink
	Cameras   []string
	VideoSkip int

	First   bool
	Verbose bool

	// RawObsKeys are concatenated from the observations before each step
	// during action playback. Empty disables collection.
	RawObsKeys []string

	sleep func(time.Duration)
	now   func() time.Time
}

func (r *Replayer) clock() (func() time.Time, func(time.Duration)) {
	now, sleep := r.now, r.sleep
	if now == nil {
		now = time.Now
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return now, sleep
}

// Play replays tr and reports what happened.
func (r *Replayer) Play(tr Trajectory) (Result, error) {
	var res Result
	if tr.States == nil || tr.States.Rows() == 0 {
		return res, fmt.Errorf("episode %s: no stored states", tr.Episode)
	}
	if _, err := ResetTo(r.Env, tr.Initial); err != nil {
		return res, fmt.Errorf("episode %s: reset: %w", tr.Episode, err)
	}

	nStates := tr.States.Rows()
	trajLen := nStates
	actionPlayback := tr.Actions != nil
	if actionPlayback && nStates == 1 {
		trajLen = tr.Actions.Rows()
	}
	compare := actionPlayback && tr.Actions.Rows() == nStates
	if actionPlayback && trajLen > tr.Actions.Rows() {
		r.Logger.Warn("fewer actions than states, stopping at the last action",
			"episode", tr.Episode, "states", nStates, "actions", tr.Actions.Rows())
		trajLen = tr.Actions.Rows()
	}
	if actionPlayback && len(r.RawObsKeys) > 0 {
		res.RawObs = &dataset.Array{}
	}

	now, sleep := r.clock()
	for i := range trajLen {
		start := now()

		if actionPlayback {
			if res.RawObs != nil {
				row, err := r.rawObs()
				if err != nil {
					return res, fmt.Errorf("episode %s step %d: %w", tr.Episode, i, err)
				}
				if err := res.RawObs.Append(row); err != nil {
					return res, fmt.Errorf("episode %s step %d: raw obs: %w", tr.Episode, i, err)
				}
			}
			if err := r.Env.Step(tr.Actions.Row(i)); err != nil {
				return res, fmt.Errorf("episode %s step %d: %w", tr.Episode, i, err)
			}
			if compare && i < trajLen-1 {
				if err := r.compare(tr, i, trajLen, &res); err != nil {
					return res, err
				}
			}
		} else {
			if _, err := ResetTo(r.Env, State{States: tr.States.Row(i)}); err != nil {
				return res, fmt.Errorf("episode %s step %d: %w", tr.Episode, i, err)
			}
		}
		res.Steps++
		if r.Metrics != nil {
			r.Metrics.Steps.Inc()
		}

		if r.Display != nil {
			if err := r.show(tr.Episode, i, trajLen); err != nil {
				return res, err
			}
			if r.MaxFPS > 0 {
				if wait := time.Second/time.Duration(r.MaxFPS) - now().Sub(start); wait > 0 {
					sleep(wait)
				}
			}
		}
		// Skipping restarts with every episode
		if r.Sink != nil && i%max(r.VideoSkip, 1) == 0 {
			if err := r.writeFrame(); err != nil {
				return res, fmt.Errorf("episode %s step %d: %w", tr.Episode, i, err)
			}
			res.Frames++
		}

		if r.First {
			break
		}
	}

	if n := len(res.Divergences); n > 0 {
		r.Logger.Warn("playback diverged from stored states",
			"episode", tr.Episode, "steps", n, "max", res.MaxDivergence())
	}
	return res, nil
}

func (r *Replayer) compare(tr Trajectory, i, trajLen int, res *Result) error {
	got, err := r.Env.Sim().State()
	if err != nil {
		return fmt.Errorf("episode %s step %d: read state: %w", tr.Episode, i, err)
	}
	want := tr.States.Row(i + 1)
	if len(got) != len(want) {
		return fmt.Errorf("episode %s step %d: simulator state has %d values, stored state has %d",
			tr.Episode, i, len(got), len(want))
	}
	var sum float64
	for j := range got {
		d := got[j] - want[j]
		sum += d * d
	}
	if sum == 0 {
		return nil
	}
	norm := math.Sqrt(sum)
	res.Divergences = append(res.Divergences, Divergence{Step: i, Norm: norm})
	if r.Metrics != nil {
		r.Metrics.ObserveDivergence(norm)
	}
	if r.Verbose || i == trajLen-2 {
		r.Logger.Warn("playback diverged", "episode", tr.Episode, "step", i, "error", norm)
	}
	return nil
}

func (r *Replayer) rawObs() ([]float64, error) {
	obs, err := r.Env.Observations()
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	var row []float64
	for _, k := range r.RawObsKeys {
		v, ok := obs[k]
		if !ok {
			return nil, fmt.Errorf("observation %q not provided by environment", k)
		}
		row = append(row, v...)
	}
	return row, nil
}

// show plots the joint positions, falling back to the raw state for
// environments without a joint observation.
func (r *Replayer) show(episode string, step, total int) error {
	obs, err := r.Env.Observations()
	if err != nil {
		return fmt.Errorf("episode %s step %d: observations: %w", episode, step, err)
	}
	values, ok := obs["robot0_joint_pos"]
	if !ok {
		if values, err = r.Env.Sim().State(); err != nil {
			return fmt.Errorf("episode %s step %d: read state: %w", episode, step, err)
		}
	}
	r.Display.Show(viewer.Frame{Episode: episode, Step: step, Total: total, Values: values})
	return nil
}

func (r *Replayer) writeFrame() error {
	imgs := make([]image.Image, 0, len(r.Cameras))
	for _, cam := range r.Cameras {
		img, err := r.Env.Render(cam, frameWidth, frameHeight)
		if err != nil {
			return fmt.Errorf("render %s: %w", cam, err)
		}
		imgs = append(imgs, img)
	}
	frame, err := video.HConcat(imgs...)
	if err != nil {
		return err
	}
	return r.Sink.WriteFrame(frame)
}
