package info

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/dataset/dstest"
	"github.com/gwillem/robodata/pkg/obsmodality"
)

// alternating returns n rows of width w whose elements alternate between lo
// and hi.
func alternating(n, w int, lo, hi float64) [][]float64 {
	rows := dstest.Constant(n, w, lo)
	for i := range rows {
		for j := range rows[i] {
			if (i+j)%2 == 1 {
				rows[i][j] = hi
			}
		}
	}
	return rows
}

func obs(t *testing.T, name string, n, w int) map[string]*dataset.Array {
	t.Helper()
	a, err := dataset.FromRows(dstest.Constant(n, w, 0))
	require.NoError(t, err)
	return map[string]*dataset.Array{name: a}
}

func threeEpisodes(t *testing.T, actionHi float64) dstest.Spec {
	return dstest.Spec{
		Episodes: []dstest.Episode{
			{
				ID: "demo_3", States: dstest.Constant(15, 2, 0), Actions: alternating(15, 3, -0.5, 0.5),
				Obs:    obs(t, "agentview_image", 15, 4),
				EpMeta: `{"lang": "", "object_cfgs": [{"name": "obj"}], "layout_id": 1, "style_id": "a"}`,
			},
			{
				ID: "demo_1", States: dstest.Constant(10, 2, 0), Actions: alternating(10, 3, -0.5, actionHi),
				Obs:        obs(t, "robot0_eef_pos", 10, 3),
				EpMeta:     `{"lang": "pick the apple", "object_cfgs": [{"name": "obj", "info": {"cat": "apple"}}], "layout_id": 1, "style_id": "a"}`,
				NumSamples: 10,
			},
			{
				ID: "demo_2", States: dstest.Constant(20, 2, 0), Actions: alternating(20, 3, -0.5, 0.5),
				Obs:    obs(t, "mystery", 20, 1),
				EpMeta: `{"lang": "pick the apple", "object_cfgs": [{"name": "distr", "info": {"cat": "cup"}}, {"name": "obj", "info": {"cat": "apple"}}], "layout_id": 10, "style_id": 2}`,
			},
		},
		Masks: map[string][]string{"valid": {"demo_3", "demo_1"}},
	}
}

func report(t *testing.T, spec dstest.Spec, opts Options) (*Report, *obsmodality.Table, string) {
	t.Helper()
	table := obsmodality.New()
	r, err := Collect(dstest.Build(spec), table, opts)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	return r, table, buf.String()
}

func TestReportStatistics(t *testing.T) {
	r, table, out := report(t, threeEpisodes(t, 0.5), Options{})

	assert.Equal(t, []string{"demo_1", "demo_2", "demo_3"}, r.Episodes)
	assert.NotContains(t, out, "NOTE:")
	assert.Contains(t, out, "\ntotal transitions: 45\n")
	assert.Contains(t, out, "total trajectories: 3\n")
	assert.Contains(t, out, "traj length mean: 15.0\n")
	assert.Contains(t, out, "traj length std: 4.08248290463863\n")
	assert.Contains(t, out, "traj length min: 10\n")
	assert.Contains(t, out, "traj length max: 20\n")
	assert.Contains(t, out, "action min: -0.5\n")
	assert.Contains(t, out, "action max: 0.5\n")
	assert.NoError(t, r.Err())

	assert.Contains(t, out, "==== Filter Keys ====\nfilter key valid with 2 demos\n")
	assert.NotContains(t, out, "Filter Key Contents")
	assert.Contains(t, out, "==== Env Meta ====\n{\n    \"env_name\": \"PnPCounterToSink\",")

	// Only the first episode's layout without verbose.
	assert.Contains(t, out, "==== Dataset Structure ====\nepisode demo_1 with 10 transitions\n"+
		"    key: states with shape (10, 2)\n"+
		"    key: actions with shape (10, 3)\n"+
		"    key: obs\n"+
		"        observation key robot0_eef_pos with shape (10, 3) [low_dim]\n")
	assert.NotContains(t, out, "mystery")
	assert.Empty(t, table.Misses())

	assert.Contains(t, out, "obj cat counts: {None: 1, 'apple': 2}\n")
	assert.Contains(t, out, "layout_counts: {1: 2, 10: 1}\n")
	assert.Contains(t, out, "style_counts: {2: 1, 'a': 2}\n")
	assert.Contains(t, out, "num unique lang instructions: 2\n")
}

func TestReportVerbose(t *testing.T) {
	_, table, out := report(t, threeEpisodes(t, 0.5), Options{Verbose: true})

	assert.Contains(t, out, "==== Filter Key Contents ====\nfilter_key valid with 2 demos: ['demo_1', 'demo_3']\n")
	assert.Contains(t, out, "        observation key mystery with shape (20, 1) [low_dim]\n")
	assert.Contains(t, out, "        observation key agentview_image with shape (15, 4) [rgb]\n")
	assert.Equal(t, []string{"mystery"}, table.Misses())
}

func TestReportFilterKey(t *testing.T) {
	r, _, out := report(t, threeEpisodes(t, 0.5), Options{FilterKey: "valid"})
	assert.Equal(t, []string{"demo_1", "demo_3"}, r.Episodes)
	assert.True(t, strings.HasPrefix(out, "NOTE: using filter key valid\n\n"), out)
	assert.Contains(t, out, "total trajectories: 2\n")
	assert.Contains(t, out, "total transitions: 25\n")
	assert.Contains(t, out, "obj cat counts: {None: 1, 'apple': 1}\n")
}

func TestReportActionsOutOfBounds(t *testing.T) {
	r, _, out := report(t, threeEpisodes(t, 1.5), Options{})

	// Everything is printed before the bounds check fails.
	assert.Contains(t, out, "action max: 1.5\n")
	assert.Contains(t, out, "num unique lang instructions: 2\n")

	err := r.Err()
	assert.ErrorIs(t, err, ErrActionOutOfBounds)
	assert.EqualError(t, err, "dataset should have actions in [-1., 1.] but got bounds [-0.5, 1.5]")
}

func TestReportNoFilterKeys(t *testing.T) {
	spec := threeEpisodes(t, 0.5)
	spec.Masks = nil
	_, _, out := report(t, spec, Options{Verbose: true})
	assert.Contains(t, out, "==== Filter Keys ====\nno filter keys\n")
	assert.NotContains(t, out, "Filter Key Contents")
}

func TestLengthStatsEmpty(t *testing.T) {
	var r Report
	mean, _, lo, _ := r.LengthStats()
	assert.True(t, math.IsNaN(mean))
	assert.True(t, math.IsNaN(lo))
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "15.0", formatFloat(15))
	assert.Equal(t, "-0.5", formatFloat(-0.5))
	assert.Equal(t, "inf", formatFloat(math.Inf(1)))
	assert.Equal(t, "nan", formatFloat(math.NaN()))
	assert.Equal(t, "12", formatInt(12))
}

func TestSaveHistogram(t *testing.T) {
	r := &Report{Lengths: []int{10, 20, 15, 15}}
	path := filepath.Join(t.TempDir(), "lengths.png")
	require.NoError(t, r.SaveHistogram(path, 4))
	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, st.Size())

	assert.Error(t, (&Report{}).SaveHistogram(path, 4))
}
