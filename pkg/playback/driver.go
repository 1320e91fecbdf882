package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/metrics"
	"github.com/gwillem/robodata/pkg/results"
	"github.com/gwillem/robodata/pkg/sim"
	"github.com/gwillem/robodata/pkg/video"
)

// rawObsTolerance is the absolute tolerance between collected end effector
// positions and the auxiliary file's stored ones.
const rawObsTolerance = 0.1

// Deps are the collaborators of a Driver. Nil hooks fall back to the real
// implementations.
type Deps struct {
	Registry *sim.Registry
	Logger   *log.Logger
	Metrics  *metrics.Metrics
	Results  *results.Store // optional
	Out      io.Writer      // user facing progress lines

	OpenDataset func(ctx context.Context, loc string) (*dataset.Dataset, error)
	OpenAux     func(path string) (*dataset.Dataset, error)
	NewSink     func(ctx context.Context, path string, fps int) (video.Sink, error)
	NewDisplay  func(title string, series int) (Display, error)
}

// Driver plays back the episodes of one dataset.
type Driver struct {
	opts Options
	deps Deps
}

// Summary describes a finished run.
type Summary struct {
	RunID     int64
	Episodes  []results.Episode
	VideoPath string // empty when no video was written
}

// NewDriver validates opts before anything is opened.
func NewDriver(opts Options, deps Deps) (*Driver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if deps.Registry == nil {
		return nil, errors.New("playback: no environment registry")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.OpenDataset == nil {
		deps.OpenDataset = dataset.Open
	}
	if deps.OpenAux == nil {
		deps.OpenAux = dataset.OpenAux
	}
	if deps.NewSink == nil {
		deps.NewSink = func(_ context.Context, path string, fps int) (video.Sink, error) {
			return video.NewFFmpeg(path, fps), nil
		}
	}
	return &Driver{opts: opts, deps: deps}, nil
}

// envKwargs applies the playback overrides to the stored construction
// arguments.
func (d *Driver) envKwargs(meta *dataset.EnvMeta) sim.Kwargs {
	kw := sim.Kwargs(meta.EnvKwargs).Clone()
	if d.opts.UseAbsActions {
		kw.Set("controller_configs.control_delta", false)
	}
	kw["env_name"] = meta.EnvName
	kw["has_renderer"] = false
	kw["renderer"] = "mjviewer"
	kw["has_offscreen_renderer"] = d.opts.WriteVideo()
	kw["use_camera_obs"] = false
	if d.opts.AssetRoot != "" {
		kw["asset_root"] = d.opts.AssetRoot
	}
	return kw
}

// TaskFromPath returns the path segment following root, or "" when path
// does not pass through root.
func TaskFromPath(path, root string) string {
	parts := strings.Split(strings.ReplaceAll(path, "\\", "/"), "/")
	for i, p := range parts {
		if p == root && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

// liveEnv is the environment currently in use and the kwargs it was built
// from.
type liveEnv struct {
	bound *sim.Bound
	kw    sim.Kwargs
}

func (d *Driver) makeEnv(ctx context.Context, kw sim.Kwargs) (*liveEnv, error) {
	env, err := d.deps.Registry.Make(ctx, d.opts.Backend, kw)
	if err != nil {
		return nil, fmt.Errorf("create environment: %w", err)
	}
	b := sim.Bind(env, sim.WithAssetRoot(d.opts.AssetRoot))
	d.deps.Logger.Debug("environment ready", "backend", d.opts.Backend,
		"env", kw.String("env_name", ""), "capabilities", fmt.Sprintf("%+v", b.Capabilities()))
	return &liveEnv{bound: b, kw: kw}, nil
}

// retarget rebuilds live for the task an episode was recorded in.
func (d *Driver) retarget(ctx context.Context, live *liveEnv, ep *dataset.Episode) (*liveEnv, error) {
	src, ok, err := ep.DatasetPath()
	if err != nil || !ok {
		return live, err
	}
	task := TaskFromPath(src, d.opts.TaskRoot)
	if task == "" {
		d.deps.Logger.Warn("cannot derive task from dataset path, using fallback",
			"episode", ep.ID, "path", src, "task", d.opts.FallbackTask)
		task = d.opts.FallbackTask
	}
	if task == live.kw.String("env_name", "") {
		return live, nil
	}
	kw := live.kw.Clone()
	kw["env_name"] = task
	next, err := d.makeEnv(ctx, kw)
	if err != nil {
		return live, err
	}
	if err := live.bound.Close(); err != nil {
		d.deps.Logger.Warn("close environment", "err", err)
	}
	return next, nil
}

func (d *Driver) selectEpisodes(ds *dataset.Dataset) ([]string, error) {
	if d.opts.FilterKey != "" {
		fmt.Fprintf(d.deps.Out, "NOTE: using filter key %s\n", d.opts.FilterKey)
	}
	ids, err := ds.Select(d.opts.FilterKey)
	if err != nil {
		return nil, err
	}
	if d.opts.N > 0 && len(ids) > d.opts.N {
		ids = ids[:d.opts.N]
	}
	if len(d.opts.Demos) > 0 {
		ids = slices.DeleteFunc(ids, func(id string) bool {
			return !slices.Contains(d.opts.Demos, id)
		})
	}
	return ids, nil
}

// Run plays back every selected episode.
func (d *Driver) Run(ctx context.Context) (sum Summary, err error) {
	lg := d.deps.Logger

	ds, err := d.deps.OpenDataset(ctx, d.opts.Dataset)
	if err != nil {
		return sum, err
	}
	defer ds.Close()

	var live *liveEnv
	if !d.opts.UseObs {
		meta, err := ds.EnvMeta()
		if err != nil {
			return sum, err
		}
		if live, err = d.makeEnv(ctx, d.envKwargs(meta)); err != nil {
			return sum, err
		}
		defer func() {
			if cerr := live.bound.Close(); cerr != nil {
				lg.Warn("close environment", "err", cerr)
			}
		}()
	}

	var aux *dataset.Dataset
	if d.opts.AddRawStates {
		if aux, err = d.deps.OpenAux(d.opts.AuxPath()); err != nil {
			return sum, err
		}
		defer func() { err = errors.Join(err, aux.Close()) }()
	}

	ids, err := d.selectEpisodes(ds)
	if err != nil {
		return sum, err
	}

	var sink video.Sink
	if d.opts.WriteVideo() {
		path := d.opts.ResolvedVideoPath()
		if sink, err = d.deps.NewSink(ctx, path, d.opts.FPS); err != nil {
			return sum, err
		}
		// Frames written before a failure are kept.
		defer func() {
			if cerr := sink.Close(); cerr != nil {
				err = errors.Join(err, cerr)
				return
			}
			if err == nil {
				sum.VideoPath = path
				fmt.Fprintf(d.deps.Out, "Saved video to %s\n", path)
			}
		}()
	}

	if d.deps.Results != nil {
		run, err := d.deps.Results.BeginRun(ctx, results.Run{
			Dataset: d.opts.Dataset,
			Mode:    string(d.opts.Mode()),
			Backend: d.opts.Backend,
		})
		if err != nil {
			return sum, err
		}
		sum.RunID = run.ID
	}

	obsPlayer := &ObsPlayer{Sink: sink, Images: d.opts.Cameras, VideoSkip: d.opts.VideoSkip, First: d.opts.First}
	replayer := &Replayer{
		Logger:    lg,
		Metrics:   d.deps.Metrics,
		MaxFPS:    d.opts.MaxFPS,
		Sink:      sink,
		Cameras:   d.opts.Cameras,
		VideoSkip: d.opts.VideoSkip,
		First:     d.opts.First,
		Verbose:   d.opts.Verbose,
	}
	if d.opts.AddRawStates {
		replayer.RawObsKeys = d.opts.RawObsKeys
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		fmt.Fprintf(d.deps.Out, "Playing back episode: %s\n", id)
		ep := ds.Episode(id)
		rec := results.Episode{Episode: id}

		if d.opts.UseObs {
			if rec.Frames, err = obsPlayer.Play(ep); err != nil {
				return sum, err
			}
			rec.Steps = rec.Frames
		} else {
			if live, err = d.retarget(ctx, live, ep); err != nil {
				return sum, err
			}
			replayer.Env = live.bound
			res, err := d.playEpisode(replayer, ep)
			if err != nil {
				return sum, err
			}
			rec.Steps, rec.Frames = res.Steps, res.Frames
			rec.Divergences, rec.MaxDivergence = len(res.Divergences), res.MaxDivergence()
			if res.RawObs != nil {
				if err := d.writeRawObs(aux, ep, res.RawObs); err != nil {
					return sum, err
				}
			}
		}

		lg.Info("episode done", "episode", id, "steps", rec.Steps,
			"frames", rec.Frames, "divergences", rec.Divergences)
		if d.deps.Metrics != nil {
			d.deps.Metrics.Episodes.WithLabelValues(string(d.opts.Mode())).Inc()
		}
		if d.deps.Results != nil {
			if err := d.deps.Results.RecordEpisode(ctx, sum.RunID, rec); err != nil {
				return sum, err
			}
		}
		sum.Episodes = append(sum.Episodes, rec)
	}
	return sum, nil
}

// playEpisode loads the stored trajectory and replays it, showing it on
// screen when requested.
func (d *Driver) playEpisode(r *Replayer, ep *dataset.Episode) (Result, error) {
	tr, err := d.trajectory(ep)
	if err != nil {
		return Result{}, err
	}

	if d.opts.Verbose {
		if meta, err := ep.EpMeta(); err == nil && meta.Lang != "" {
			fmt.Fprintf(d.deps.Out, "Instruction: %s\n", meta.Lang)
		}
	}

	if !d.opts.Render || d.deps.NewDisplay == nil {
		r.Display = nil
		return r.Play(tr)
	}
	display, err := d.deps.NewDisplay("robodata playback", tr.States.RowLen())
	if err != nil {
		return Result{}, err
	}
	// Log lines go to the viewer while it owns the terminal.
	logger := r.Logger
	if w, ok := display.(io.Writer); ok {
		r.Logger = logger.With()
		r.Logger.SetOutput(w)
	}
	r.Display = display
	res, err := r.Play(tr)
	r.Logger, r.Display = logger, nil
	return res, errors.Join(err, display.Close())
}

func (d *Driver) trajectory(ep *dataset.Episode) (Trajectory, error) {
	states, err := ep.States()
	if err != nil {
		return Trajectory{}, err
	}
	if states.Rows() == 0 {
		return Trajectory{}, fmt.Errorf("episode %s: no stored states", ep.ID)
	}
	tr := Trajectory{Episode: ep.ID, States: states}
	tr.Initial.States = append([]float64(nil), states.Row(0)...)
	if tr.Initial.Model, _, err = ep.ModelXML(); err != nil {
		return Trajectory{}, err
	}
	if tr.Initial.EpMeta, _, err = ep.EpMetaJSON(); err != nil {
		return Trajectory{}, err
	}

	if d.opts.ExtendStates {
		tr.States = states.PadLast(ExtendPadding)
	}

	switch {
	case d.opts.UseActions:
		tr.Actions, err = ep.Actions()
	case d.opts.UseAbsActions:
		tr.Actions, err = ep.AbsActions()
	}
	if err != nil {
		return Trajectory{}, err
	}
	return tr, nil
}

// writeRawObs stores raw under data/<ep>/raw_obs of the auxiliary file after
// checking it against the actions and the stored end effector positions.
func (d *Driver) writeRawObs(aux *dataset.Dataset, ep *dataset.Episode, raw *dataset.Array) error {
	lg := d.deps.Logger
	actions, err := ep.Actions()
	if err != nil {
		return err
	}
	if raw.Rows() != actions.Rows() {
		lg.Warn("raw observations do not cover every action",
			"episode", ep.ID, "shape", dataset.ShapeString(raw.Shape), "actions", actions.Rows())
	}

	auxEp := aux.Episode(ep.ID)
	eef, err := auxEp.Obs("robot0_eef_pos")
	switch {
	case errors.Is(err, dataset.ErrNotFound):
		lg.Warn("auxiliary file has no stored end effector positions", "episode", ep.ID)
	case err != nil:
		return err
	case !eefClose(raw, eef):
		lg.Warn("raw observations do not match stored end effector positions",
			"episode", ep.ID, "atol", rawObsTolerance)
	}

	return aux.WriteArray(auxEp.Path()+"/raw_obs", raw)
}

// eefClose compares the first three columns of raw with eef.
func eefClose(raw, eef *dataset.Array) bool {
	if raw.RowLen() < 3 || eef.RowLen() != 3 {
		return false
	}
	n := min(raw.Rows(), eef.Rows())
	if n == 0 || raw.Rows() != eef.Rows() {
		return false
	}
	for i := range n {
		r, e := raw.Row(i), eef.Row(i)
		for j := range 3 {
			if math.Abs(r[j]-e[j]) > rawObsTolerance {
				return false
			}
		}
	}
	return true
}
