// Package viewer shows playback progress in the terminal: a streaming
// line chart of state components and a box with recent log lines.
package viewer

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Options configure a Viewer.
type Options struct {
	Title  string
	Series int     // state components to plot, at most six
	YMin   float64 // chart range
	YMax   float64
}

// Viewer runs a bubbletea program in the background.
type Viewer struct {
	program *tea.Program
	frames  chan Frame
	logs    chan string
	done    chan struct{}
	err     error
}

// Open starts the program. Extra program options are passed through, which
// tests use to detach input and output.
func Open(opts Options, progOpts ...tea.ProgramOption) *Viewer {
	if opts.YMin == opts.YMax {
		opts.YMin, opts.YMax = -4, 4
	}
	v := &Viewer{
		frames: make(chan Frame, 1),
		logs:   make(chan string, 64),
		done:   make(chan struct{}),
	}
	m := newModel(opts.Title, opts.Series, opts.YMin, opts.YMax, v.frames, v.logs)
	v.program = tea.NewProgram(m, progOpts...)
	go func() {
		defer close(v.done)
		_, v.err = v.program.Run()
	}()
	return v
}

// Show displays f, replacing a frame the program has not drawn yet.
func (v *Viewer) Show(f Frame) {
	select {
	case v.frames <- f:
	default:
		// Drop the stale frame and send the new one
		select {
		case <-v.frames:
		default:
		}
		select {
		case v.frames <- f:
		default:
		}
	}
}

// Log appends a line to the log box. Lines are dropped when the box is
// not keeping up.
func (v *Viewer) Log(msg string) {
	select {
	case v.logs <- msg:
	default:
	}
}

// Write lets the viewer act as a log destination.
func (v *Viewer) Write(p []byte) (int, error) {
	v.Log(string(p))
	return len(p), nil
}

// Close stops the program and restores the terminal.
func (v *Viewer) Close() error {
	v.program.Quit()
	<-v.done
	return v.err
}
