package playback

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/dataset/dstest"
	"github.com/gwillem/robodata/pkg/video"
)

// imageArray returns a (frames, size, size, 3) array filled with c.
func imageArray(t *testing.T, frames, size int, c color.RGBA) *dataset.Array {
	t.Helper()
	data := make([]float64, 0, frames*size*size*3)
	for range frames * size * size {
		data = append(data, float64(c.R), float64(c.G), float64(c.B))
	}
	a, err := dataset.NewArray([]int{frames, size, size, 3}, data)
	require.NoError(t, err)
	return a
}

func TestObsPlayerConcatenatesImages(t *testing.T) {
	left := imageArray(t, 3, 2, color.RGBA{R: 200})
	right := imageArray(t, 3, 2, color.RGBA{B: 250})
	ds := dstest.Build(dstest.Spec{Episodes: []dstest.Episode{{
		ID:  "demo_0",
		Obs: map[string]*dataset.Array{"left_image": left, "right_image": right},
	}}})

	rec := &video.Recorder{}
	p := &ObsPlayer{Sink: rec, Images: []string{"left", "right"}, VideoSkip: 1}
	n, err := p.Play(ds.Episode("demo_0"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, rec.Frames, 3)

	frame := rec.Frames[0]
	assert.Equal(t, image.Rect(0, 0, 4, 2), frame.Bounds())
	assert.Equal(t, color.RGBA{R: 200, A: 255}, color.RGBAModel.Convert(frame.At(1, 1)))
	assert.Equal(t, color.RGBA{B: 250, A: 255}, color.RGBAModel.Convert(frame.At(2, 0)))
}

func TestObsPlayerFirstFrame(t *testing.T) {
	ds := dstest.Build(dstest.Spec{Episodes: []dstest.Episode{{
		ID:  "demo_0",
		Obs: map[string]*dataset.Array{"cam_image": imageArray(t, 5, 1, color.RGBA{})},
	}}})
	rec := &video.Recorder{}
	p := &ObsPlayer{Sink: rec, Images: []string{"cam"}, VideoSkip: 1, First: true}
	n, err := p.Play(ds.Episode("demo_0"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = p.Play(ds.Episode("demo_0"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, rec.Frames, 2)
}

func TestObsPlayerErrors(t *testing.T) {
	flat, err := dataset.FromRows([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	ds := dstest.Build(dstest.Spec{Episodes: []dstest.Episode{{
		ID: "demo_0",
		Obs: map[string]*dataset.Array{
			"flat_image":  flat,
			"short_image": imageArray(t, 1, 1, color.RGBA{}),
			"long_image":  imageArray(t, 2, 1, color.RGBA{}),
		},
	}}})
	p := &ObsPlayer{Sink: &video.Recorder{}, VideoSkip: 1}

	p.Images = []string{"flat"}
	_, err = p.Play(ds.Episode("demo_0"))
	assert.ErrorContains(t, err, "want (T, H, W, 3)")

	p.Images = []string{"short", "long"}
	_, err = p.Play(ds.Episode("demo_0"))
	assert.ErrorContains(t, err, "frames")

	p.Images = []string{"missing"}
	_, err = p.Play(ds.Episode("demo_0"))
	assert.ErrorIs(t, err, dataset.ErrNotFound)
}

func TestToImageClamps(t *testing.T) {
	a, err := dataset.NewArray([]int{1, 1, 1, 3}, []float64{-5, 128, 999})
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0, G: 128, B: 255, A: 255}, toImage(a, 0).RGBAAt(0, 0))
}
