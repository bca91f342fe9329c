package decode

// FlatBatchBeamExpand replicates each leading-axis row beamWidth times,
// contiguously in place: [e0, e1, e2] with beamWidth 2 becomes
// [e0, e0, e1, e1, e2, e2], never the tiled [e0, e1, e2, e0, e1, e2].
// Every later reorder indexes rows as batch*beamWidth + beam and
// assumes this per-batch contiguity, so the ordering is load-bearing.
// Rows are copied; the result shares no memory with the input.
func FlatBatchBeamExpand[T any](rows [][]T, beamWidth int) [][]T {
	out := make([][]T, 0, len(rows)*beamWidth)
	for _, row := range rows {
		for beam := 0; beam < beamWidth; beam++ {
			out = append(out, append([]T(nil), row...))
		}
	}
	return out
}

// FlatIndex maps a logical (batch, beam) pair to its flattened row.
func FlatIndex(batch, beam, beamWidth int) int {
	return batch*beamWidth + beam
}

// SplitIndex is the inverse of FlatIndex.
func SplitIndex(flat, beamWidth int) (batch, beam int) {
	return flat / beamWidth, flat % beamWidth
}
