// Package robodata inspects and replays robot demonstration datasets.
//
// Datasets are hdf5 files with one group per episode holding stored
// simulator states, actions and observations. They may be local files or
// s3:// locations.
//
// # Installation
//
//	go install github.com/gwillem/robodata/cmd/robodata@latest
//
// # Usage
//
// Print statistics and the layout of a dataset:
//
//	robodata info --dataset demo.hdf5
//
// Replay the actions of the first ten episodes and write a video:
//
//	robodata playback --dataset demo.hdf5 --use-actions --n 10
//
// Replay on an SO-101 arm after calibrating it once:
//
//	robodata setup
//	robodata playback --dataset demo.hdf5 --backend so101 --use-actions --render
//
// # Packages
//
//   - cmd/robodata: CLI with info, playback and setup commands
//   - pkg/dataset: dataset access over hdf5 and in-memory backends
//   - pkg/info: dataset statistics report
//   - pkg/playback: playback driver, trajectory replayer and state resetter
//   - pkg/sim: environment contract, capability binding and backend registry
//   - pkg/sim/kinematic: deterministic joint-space simulator
//   - pkg/robot: SO-101 arm control, calibration and playback environment
//   - pkg/viewer: terminal playback viewer
//   - pkg/video: video sinks
//   - pkg/fetch, pkg/results, pkg/metrics, pkg/obsmodality: supporting services
package robodata
