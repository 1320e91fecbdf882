package video

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// FFmpeg encodes frames by piping raw RGBA into an ffmpeg process. The
// process starts with the first frame, which fixes the frame size. It is
// not bound to a context; Close ends the stream, so an interrupted run
// still leaves a playable file.
type FFmpeg struct {
	path   string
	fps    int
	binary string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	size   image.Point
	frames int
}

// NewFFmpeg returns a sink writing path at fps frames per second.
func NewFFmpeg(path string, fps int) *FFmpeg {
	return &FFmpeg{path: path, fps: fps, binary: "ffmpeg"}
}

// Args returns the ffmpeg command line for a w x h stream.
func Args(path string, w, h, fps int) []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", strconv.Itoa(w) + "x" + strconv.Itoa(h),
		"-r", strconv.Itoa(fps),
		"-i", "-",
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		// yuv420p needs even dimensions.
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		path,
	}
}

func (f *FFmpeg) start(size image.Point) error {
	f.size = size
	f.cmd = exec.Command(f.binary, Args(f.path, size.X, size.Y, f.fps)...)
	f.cmd.Stderr = &f.stderr
	stdin, err := f.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	f.stdin = stdin
	if err := f.cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	return nil
}

// WriteFrame sends one frame to the encoder.
func (f *FFmpeg) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if f.cmd == nil {
		if err := f.start(b.Size()); err != nil {
			return err
		}
	}
	if b.Size() != f.size {
		return fmt.Errorf("frame %d is %v, video is %v", f.frames, b.Size(), f.size)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	if _, err := f.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write frame %d: %w: %s", f.frames, err, f.stderrText())
	}
	f.frames++
	return nil
}

// Frames returns the number of frames written.
func (f *FFmpeg) Frames() int { return f.frames }

// Close flushes the stream and waits for ffmpeg to finish. Closing a sink
// that never received a frame writes nothing.
func (f *FFmpeg) Close() error {
	if f.cmd == nil {
		return nil
	}
	if err := f.stdin.Close(); err != nil {
		return fmt.Errorf("close ffmpeg stdin: %w", err)
	}
	if err := f.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, f.stderrText())
	}
	return nil
}

func (f *FFmpeg) stderrText() string {
	return strings.TrimSpace(f.stderr.String())
}
