package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/gwillem/robodata/pkg/metrics"
	"github.com/gwillem/robodata/pkg/playback"
	"github.com/gwillem/robodata/pkg/results"
	"github.com/gwillem/robodata/pkg/robot"
	"github.com/gwillem/robodata/pkg/sim"
	"github.com/gwillem/robodata/pkg/sim/kinematic"
	"github.com/gwillem/robodata/pkg/viewer"
)

type PlaybackCommand struct {
	Dataset       string   `long:"dataset" required:"true" description:"Path or s3:// location of the hdf5 dataset"`
	FilterKey     string   `long:"filter-key" description:"Only play episodes listed under this filter key"`
	N             int      `long:"n" description:"Stop after this many episodes"`
	Demos         []string `long:"demos" description:"Only play these episodes (repeatable)"`
	UseObs        bool     `long:"use-obs" description:"Write stored image observations to video instead of simulating"`
	UseActions    bool     `long:"use-actions" description:"Replay delta actions open loop"`
	UseAbsActions bool     `long:"use-abs-actions" description:"Replay absolute actions open loop"`
	Render        bool     `long:"render" description:"Show playback on screen instead of writing video"`
	VideoPath     string   `long:"video-path" description:"Video output, derived from the dataset name by default"`
	VideoSkip     int      `long:"video-skip" default:"5" description:"Write every nth frame"`
	Cameras       []string `long:"camera" description:"Camera or image name (repeatable)"`
	First         bool     `long:"first" description:"Only play the first step of each episode"`
	ExtendStates  bool     `long:"extend-states" description:"Hold the final state for extra steps"`
	Verbose       bool     `short:"v" long:"verbose" description:"Log every divergence and print instructions"`
	AddRawStates  bool     `long:"add-raw-states" description:"Store raw observations in the classifier file"`
	RawObsKeys    []string `long:"raw-obs-key" description:"Observation keys collected as raw states (repeatable)"`
	Backend       string   `long:"backend" default:"kinematic" choice:"kinematic" choice:"so101" description:"Environment backend"`
	AssetRoot     string   `long:"asset-root" description:"Local asset directory for scene descriptions"`
	FPS           int      `long:"fps" default:"20" description:"Video frame rate"`
	MaxFPS        int      `long:"max-fps" default:"60" description:"On-screen frame rate limit"`
	ResultsDB     string   `long:"results-db" description:"Record per-episode results in this sqlite file"`
	MetricsFile   string   `long:"metrics-file" description:"Write prometheus metrics to this textfile"`
	Config        string   `long:"config" default:"robodata.json" description:"Arm configuration for the so101 backend"`
}

func (c *PlaybackCommand) options() playback.Options {
	o := playback.DefaultOptions()
	o.Dataset = c.Dataset
	o.FilterKey = c.FilterKey
	o.N = c.N
	o.Demos = c.Demos
	o.UseObs = c.UseObs
	o.UseActions = c.UseActions
	o.UseAbsActions = c.UseAbsActions
	o.Render = c.Render
	o.VideoPath = c.VideoPath
	o.VideoSkip = c.VideoSkip
	o.FPS = c.FPS
	o.MaxFPS = c.MaxFPS
	o.First = c.First
	o.ExtendStates = c.ExtendStates
	o.Verbose = c.Verbose
	o.AddRawStates = c.AddRawStates
	o.Backend = c.Backend
	o.AssetRoot = c.AssetRoot
	switch {
	case len(c.Cameras) > 0:
		o.Cameras = c.Cameras
	case c.Render:
		o.Cameras = o.Cameras[:1]
	}
	if len(c.RawObsKeys) > 0 {
		o.RawObsKeys = c.RawObsKeys
	}
	return o
}

func (c *PlaybackCommand) registry() *sim.Registry {
	reg := sim.NewRegistry()
	reg.Register("kinematic", kinematic.Factory)
	reg.Register("so101", func(ctx context.Context, kw sim.Kwargs) (sim.Env, error) {
		cfg, err := robot.LoadConfigFrom(c.Config)
		if err != nil {
			return nil, err
		}
		return robot.NewEnvFactory(cfg)(ctx, kw)
	})
	return reg
}

func (c *PlaybackCommand) Execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(c.Verbose)
	m := metrics.New()

	deps := playback.Deps{
		Registry: c.registry(),
		Logger:   logger,
		Metrics:  m,
		Out:      os.Stdout,
		NewDisplay: func(title string, series int) (playback.Display, error) {
			vo := viewer.Options{Title: title, Series: series}
			if c.Backend == "so101" {
				vo.YMin, vo.YMax = -100, 100
			}
			return viewer.Open(vo), nil
		},
	}
	if c.ResultsDB != "" {
		store, err := results.Open(c.ResultsDB)
		if err != nil {
			return err
		}
		defer store.Close()
		deps.Results = store
	}

	driver, err := playback.NewDriver(c.options(), deps)
	if err != nil {
		return err
	}
	sum, runErr := driver.Run(ctx)
	if runErr == nil {
		logger.Info("playback finished", "episodes", len(sum.Episodes), "run", sum.RunID)
	}
	if c.MetricsFile != "" {
		if err := m.WriteFile(c.MetricsFile); err != nil {
			logger.Error("metrics not written", "err", err)
		}
	}
	return runErr
}
