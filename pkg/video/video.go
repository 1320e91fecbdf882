// Package video writes playback frames to a video file.
package video

import (
	"fmt"
	"image"
	"image/draw"
)

// Sink consumes frames. All frames written to one sink share a size.
type Sink interface {
	WriteFrame(img image.Image) error
	Close() error
}

// HConcat places images side by side, left to right. All images must have
// the same height.
func HConcat(imgs ...image.Image) (*image.RGBA, error) {
	if len(imgs) == 0 {
		return nil, fmt.Errorf("no images to concatenate")
	}
	h := imgs[0].Bounds().Dy()
	w := 0
	for i, img := range imgs {
		if img.Bounds().Dy() != h {
			return nil, fmt.Errorf("image %d is %d pixels high, want %d", i, img.Bounds().Dy(), h)
		}
		w += img.Bounds().Dx()
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	x := 0
	for _, img := range imgs {
		b := img.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), h), img, b.Min, draw.Src)
		x += b.Dx()
	}
	return out, nil
}

// Recorder keeps frames in memory.
type Recorder struct {
	Frames []image.Image
	Closed bool
}

func (r *Recorder) WriteFrame(img image.Image) error {
	if r.Closed {
		return fmt.Errorf("write to closed recorder")
	}
	r.Frames = append(r.Frames, img)
	return nil
}

func (r *Recorder) Close() error {
	r.Closed = true
	return nil
}
