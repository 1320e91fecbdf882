package playback

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/gwillem/robodata/pkg/fetch"
)

// ErrUsage marks invalid flag combinations. It is reported before any
// dataset or environment is opened.
var ErrUsage = errors.New("usage error")

// ExtendPadding is the number of copies of the final state appended when
// states are extended.
const ExtendPadding = 50

// Mode is how an episode is played back.
type Mode string

const (
	ModeObs        Mode = "obs"
	ModeActions    Mode = "actions"
	ModeAbsActions Mode = "abs_actions"
	ModeStates     Mode = "storedstates"
)

// DefaultCameras are rendered when no camera is named.
var DefaultCameras = []string{"robot0_agentview_left", "robot0_agentview_right", "robot0_eye_in_hand"}

// DefaultRawObsKeys are concatenated into the raw observation rows.
var DefaultRawObsKeys = []string{"robot0_eef_pos", "obj_pos", "container_pos"}

// Options for a playback run.
type Options struct {
	Dataset   string
	FilterKey string
	N         int      // 0 plays every episode
	Demos     []string // allow-list, empty allows all

	UseObs        bool
	UseActions    bool
	UseAbsActions bool
	Render        bool

	VideoPath string
	VideoSkip int
	FPS       int
	MaxFPS    int
	Cameras   []string

	First        bool
	ExtendStates bool
	Verbose      bool

	AddRawStates bool
	RawObsKeys   []string

	Backend   string
	AssetRoot string
	// TaskRoot is the directory name under which per-task dataset
	// directories live; the segment after it names the task.
	TaskRoot     string
	FallbackTask string
}

func DefaultOptions() Options {
	return Options{
		VideoSkip:    5,
		FPS:          20,
		MaxFPS:       60,
		Cameras:      append([]string(nil), DefaultCameras...),
		RawObsKeys:   append([]string(nil), DefaultRawObsKeys...),
		Backend:      "kinematic",
		TaskRoot:     "kitchen_pnp",
		FallbackTask: "PnPSinkToCounter",
	}
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// Validate rejects flag combinations that cannot be played back.
func (o *Options) Validate() error {
	switch {
	case o.Dataset == "":
		return usagef("dataset path required")
	case o.UseActions && o.UseAbsActions:
		return usagef("cannot use both relative and absolute actions")
	case o.UseObs && o.Render:
		return usagef("playback with observations can only write to video")
	case o.UseObs && (o.UseActions || o.UseAbsActions):
		return usagef("playback with observations is offline and does not support action playback")
	case len(o.Cameras) == 0:
		return usagef("at least one camera or image name is required")
	case o.Render && len(o.Cameras) != 1:
		return usagef("on-screen rendering supports a single camera, got %d", len(o.Cameras))
	case o.AddRawStates && !o.UseActions:
		return usagef("raw observations are only collected with relative action playback")
	case o.AddRawStates && len(o.RawObsKeys) == 0:
		return usagef("raw observations need at least one observation key")
	case o.VideoSkip < 1:
		return usagef("video skip must be at least 1, got %d", o.VideoSkip)
	case o.FPS < 1 || o.MaxFPS < 1:
		return usagef("frame rates must be positive")
	case o.N < 0:
		return usagef("episode count must not be negative")
	}
	return nil
}

// Mode returns the selected playback mode.
func (o *Options) Mode() Mode {
	switch {
	case o.UseObs:
		return ModeObs
	case o.UseActions:
		return ModeActions
	case o.UseAbsActions:
		return ModeAbsActions
	default:
		return ModeStates
	}
}

// WriteVideo reports whether frames go to a video file. On-screen rendering
// and video output are exclusive.
func (o *Options) WriteVideo() bool { return !o.Render }

// stem is the dataset location without its .hdf5 suffix. Remote datasets
// use the object's base name, so outputs land in the working directory.
func (o *Options) stem() string {
	p := o.Dataset
	if fetch.IsRemote(p) {
		p = path.Base(p)
	}
	if i := strings.Index(p, ".hdf5"); i >= 0 {
		return p[:i]
	}
	return p
}

// ResolvedVideoPath returns VideoPath or the default derived from the
// dataset name and mode.
func (o *Options) ResolvedVideoPath() string {
	if o.VideoPath != "" {
		return o.VideoPath
	}
	return o.stem() + "_use_" + string(o.Mode()) + ".mp4"
}

// AuxPath is the file receiving raw observation arrays.
func (o *Options) AuxPath() string {
	return o.stem() + "_classifier.hdf5"
}
