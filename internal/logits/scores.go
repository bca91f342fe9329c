// Package logits provides the scoring primitives shared by the
// decoders: log-softmax normalization, argmax, and a stable top-k.
package logits

import "math"

// LogSoftmax converts one row of logits into log-probabilities.
// The result is written into dst, which is grown if needed, and
// returned. Every entry of the result is <= 0.
func LogSoftmax(dst, row []float32) []float32 {
	if cap(dst) < len(row) {
		dst = make([]float32, len(row))
	}
	dst = dst[:len(row)]
	if len(row) == 0 {
		return dst
	}
	maxv := row[0]
	for _, v := range row[1:] {
		if v > maxv {
			maxv = v
		}
	}
	var sum float64
	for _, v := range row {
		sum += math.Exp(float64(v - maxv))
	}
	logSum := math.Log(sum)
	for i, v := range row {
		dst[i] = float32(float64(v-maxv) - logSum)
	}
	return dst
}

// Argmax returns the index of the largest value. Ties resolve to the
// lowest index so repeated calls over equal inputs are stable. It
// panics on an empty slice.
func Argmax(row []float32) int {
	if len(row) == 0 {
		panic("logits: argmax of empty slice")
	}
	bestI := 0
	bestV := row[0]
	for i := 1; i < len(row); i++ {
		if row[i] > bestV {
			bestV = row[i]
			bestI = i
		}
	}
	return bestI
}

// TopK holds the k largest values pushed into it, in descending order.
// Pushes with equal values keep their insertion order, so earlier
// candidates win ties. This is the O(n*k) insertion scheme; k is the
// beam width here, always small.
type TopK struct {
	k      int
	Index  []int
	Parent []int
	Value  []float32
}

// NewTopK returns a collector for the k best candidates.
func NewTopK(k int) *TopK {
	return &TopK{
		k:      k,
		Index:  make([]int, 0, k+1),
		Parent: make([]int, 0, k+1),
		Value:  make([]float32, 0, k+1),
	}
}

// Reset clears the collector for reuse.
func (t *TopK) Reset() {
	t.Index = t.Index[:0]
	t.Parent = t.Parent[:0]
	t.Value = t.Value[:0]
}

// Len returns the number of candidates currently held.
func (t *TopK) Len() int { return len(t.Value) }

// Push offers a candidate with its value, an index (the token), and a
// parent (the slot it extends).
func (t *TopK) Push(index, parent int, value float32) {
	pos := len(t.Value)
	for pos > 0 && t.Value[pos-1] < value {
		pos--
	}
	if pos >= t.k {
		return
	}
	t.Index = append(t.Index, 0)
	t.Parent = append(t.Parent, 0)
	t.Value = append(t.Value, 0)
	copy(t.Index[pos+1:], t.Index[pos:])
	copy(t.Parent[pos+1:], t.Parent[pos:])
	copy(t.Value[pos+1:], t.Value[pos:])
	t.Index[pos] = index
	t.Parent[pos] = parent
	t.Value[pos] = value
	if len(t.Value) > t.k {
		t.Index = t.Index[:t.k]
		t.Parent = t.Parent[:t.k]
		t.Value = t.Value[:t.k]
	}
}
