package quadrant

// LinearizeCoarse drops every cell of a sorted array that lies inside an
// earlier, coarser (or identical) cell
func LinearizeCoarse[T Cell[T]](items []T) []T {
	out := items[:0]
	for _, q := range items {
		if len(out) > 0 && out[len(out)-1].Contains(q) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// LinearizeFine drops every cell of a sorted, duplicate free array that
// contains a later cell. The cells inside a region follow it directly, so
// only the next cell needs checking.
func LinearizeFine[T Cell[T]](items []T) []T {
	out := items[:0]
	for i, q := range items {
		if i+1 < len(items) && q.Contains(items[i+1]) {
			continue
		}
		out = append(out, q)
	}
	return out
}
