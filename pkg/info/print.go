package info

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gwillem/robodata/pkg/dataset"
	"github.com/gwillem/robodata/pkg/obsmodality"
)

// formatFloat prints v the way the numeric reports always have: shortest
// representation with at least one decimal.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// formatInt prints an integral statistic, or nan.
func formatInt(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return formatFloat(v)
	}
	return strconv.Itoa(int(v))
}

func formatCounts(counts []Count) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprintf("%s: %d", c.Key, c.N)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatList(ids []string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "'" + id + "'"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Print writes the report. Headings are bold on a terminal and plain
// otherwise.
func (r *Report) Print(w io.Writer) error {
	heading := lipgloss.NewRenderer(w).NewStyle().Bold(true)
	var b strings.Builder
	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format+"\n", args...)
	}

	mean, std, lo, hi := r.LengthStats()
	if r.FilterKey != "" {
		line("NOTE: using filter key %s", r.FilterKey)
	}
	line("")
	line("total transitions: %d", r.Transitions())
	line("total trajectories: %d", len(r.Lengths))
	line("traj length mean: %s", formatFloat(mean))
	line("traj length std: %s", formatFloat(std))
	line("traj length min: %s", formatInt(lo))
	line("traj length max: %s", formatInt(hi))
	line("action min: %s", formatFloat(r.ActionMin))
	line("action max: %s", formatFloat(r.ActionMax))
	line("")

	line("%s", heading.Render("==== Filter Keys ===="))
	if len(r.FilterKeys) == 0 {
		line("no filter keys")
	}
	for _, fk := range r.FilterKeys {
		line("filter key %s with %d demos", fk.Name, len(fk.Demos))
	}
	line("")
	if r.Verbose {
		if len(r.FilterKeys) > 0 {
			line("%s", heading.Render("==== Filter Key Contents ===="))
			for _, fk := range r.FilterKeys {
				line("filter_key %s with %d demos: %s", fk.Name, len(fk.Demos), formatList(fk.Demos))
			}
		}
		line("")
	}

	line("%s", heading.Render("==== Env Meta ===="))
	line("%s", r.EnvMeta)
	line("")

	line("%s", heading.Render("==== Dataset Structure ===="))
	for _, ep := range r.Structure {
		if ep.HasSamples {
			line("episode %s with %d transitions", ep.ID, ep.NumSamples)
		}
		for _, k := range ep.Keys {
			if !k.ObservationGroup() {
				line("    key: %s with shape %s", k.Name, dataset.ShapeString(k.Shape))
				continue
			}
			line("    key: %s", k.Name)
			for _, sub := range k.Sub {
				line("        observation key %s with shape %s [%s]",
					sub.Name, dataset.ShapeString(sub.Shape), r.modalityOf(sub.Name))
			}
		}
	}

	line("")
	line("obj cat counts: %s", formatCounts(r.ObjCatCounts))
	line("layout_counts: %s", formatCounts(r.LayoutCounts))
	line("style_counts: %s", formatCounts(r.StyleCounts))
	line("num unique lang instructions: %d", r.UniqueLang)
	line("")

	_, err := io.WriteString(w, b.String())
	return err
}

func (r *Report) modalityOf(key string) string {
	if r.modality == nil {
		return string(obsmodality.Default)
	}
	return string(r.modality(key))
}
