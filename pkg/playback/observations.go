package playback

import (
	"fmt"
	"image"
	"image/color"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/video"
)

// ObsPlayer writes stored image observations to a video without an
// environment.
type ObsPlayer struct {
	Sink      video.Sink
	Images    []string // observation names without the _image suffix
	VideoSkip int
	First     bool
}

// Play streams the episode's image observations and returns the number of
// frames written.
func (p *ObsPlayer) Play(ep *dataset.Episode) (int, error) {
	arrays := make([]*dataset.Array, len(p.Images))
	for i, name := range p.Images {
		a, err := ep.Obs(name + "_image")
		if err != nil {
			return 0, err
		}
		if len(a.Shape) != 4 || (a.Shape[3] != 3 && a.Shape[3] != 4) {
			return 0, fmt.Errorf("episode %s: %s_image has shape %s, want (T, H, W, 3)",
				ep.ID, name, dataset.ShapeString(a.Shape))
		}
		if i > 0 && a.Rows() != arrays[0].Rows() {
			return 0, fmt.Errorf("episode %s: %s_image has %d frames, %s_image has %d",
				ep.ID, name, a.Rows(), p.Images[0], arrays[0].Rows())
		}
		arrays[i] = a
	}
	if len(arrays) == 0 {
		return 0, nil
	}

	frames := 0
	for t := range arrays[0].Rows() {
		if t%max(p.VideoSkip, 1) == 0 {
			imgs := make([]image.Image, len(arrays))
			for i, a := range arrays {
				imgs[i] = toImage(a, t)
			}
			frame, err := video.HConcat(imgs...)
			if err != nil {
				return frames, err
			}
			if err := p.Sink.WriteFrame(frame); err != nil {
				return frames, err
			}
			frames++
		}
		if p.First {
			break
		}
	}
	return frames, nil
}

// toImage converts frame t of a (T, H, W, C) array with 0..255 values.
func toImage(a *dataset.Array, t int) *image.RGBA {
	h, w, c := a.Shape[1], a.Shape[2], a.Shape[3]
	px := a.Row(t)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			o := (y*w + x) * c
			img.SetRGBA(x, y, color.RGBA{R: u8(px[o]), G: u8(px[o+1]), B: u8(px[o+2]), A: 255})
		}
	}
	return img
}

func u8(v float64) uint8 {
	return uint8(min(max(v, 0), 255))
}
