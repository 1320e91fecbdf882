package dataset

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// EpisodeIndex returns the integer suffix of an episode id ("demo_12" -> 12).
func EpisodeIndex(id string) (int, error) {
	i := strings.LastIndex(id, "_")
	if i < 0 || i == len(id)-1 {
		return 0, fmt.Errorf("episode id %q has no numeric suffix", id)
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return 0, fmt.Errorf("episode id %q: %w", id, err)
	}
	return n, nil
}

// SortEpisodes returns ids ordered by ascending integer suffix, so demo_2
// comes before demo_10. The input slice is left untouched.
func SortEpisodes(ids []string) ([]string, error) {
	idx := make(map[string]int, len(ids))
	for _, id := range ids {
		n, err := EpisodeIndex(id)
		if err != nil {
			return nil, err
		}
		idx[id] = n
	}
	out := slices.Clone(ids)
	slices.SortStableFunc(out, func(a, b string) int { return idx[a] - idx[b] })
	return out, nil
}
