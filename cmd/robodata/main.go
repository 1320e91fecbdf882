package main

import (
	"errors"
	"os"

	"github.com/charmbracelet/log"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Info     InfoCommand     `command:"info" description:"Print statistics and layout of a dataset"`
	Playback PlaybackCommand `command:"playback" alias:"play" description:"Replay dataset episodes in an environment and check them"`
	Setup    SetupCommand    `command:"setup" description:"Find the follower arm and calibrate it"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

// newLogger logs to stderr so stdout carries only report output.
func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "robodata"})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func main() {
	parser.LongDescription = "robodata - inspect and replay robot demonstration datasets"

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
