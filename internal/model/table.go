package model

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/samcharles93/babel/internal/decode"
	"github.com/samcharles93/babel/internal/kvcache"
)

// Cache layers of the table model: one history slot per decode
// position, plus a cursor counting consumed tokens at position 0.
const (
	layerHistory = "history"
	layerCursor  = "cursor"
)

// lengthBias controls how hard the model pushes toward EOS once the
// output grows past the source length.
const lengthBias = 0.5

// TableWeights is the on-disk form of a table model, a pair of square
// [vocab][vocab] score tables.
type TableWeights struct {
	Vocab  int         `json:"vocab"`
	Bigram [][]float32 `json:"bigram"`
	Assoc  [][]float32 `json:"assoc"`
}

// TableModel scores the next token as bigram affinity from the
// trailing token plus the mean association of the source tokens, with
// an EOS pressure that grows as the output outruns the source. It is
// deliberately tiny; its job is to make the decoding pipeline run end
// to end deterministically.
type TableModel struct {
	vocab  int
	bigram [][]float32
	assoc  [][]float32
}

// New validates the weight tables and wraps them in a model.
func New(w TableWeights) (*TableModel, error) {
	if w.Vocab < 2 {
		return nil, fmt.Errorf("model: vocab %d too small, need pad and eos", w.Vocab)
	}
	for name, table := range map[string][][]float32{"bigram": w.Bigram, "assoc": w.Assoc} {
		if len(table) != w.Vocab {
			return nil, fmt.Errorf("model: %s has %d rows, want %d", name, len(table), w.Vocab)
		}
		for i, row := range table {
			if len(row) != w.Vocab {
				return nil, fmt.Errorf("model: %s row %d has %d entries, want %d", name, i, len(row), w.Vocab)
			}
		}
	}
	return &TableModel{vocab: w.Vocab, bigram: w.Bigram, assoc: w.Assoc}, nil
}

// Load reads weight tables from a JSON file.
func Load(path string) (*TableModel, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("model: read weights: %w", err)
	}
	var w TableWeights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("model: parse weights %s: %w", path, err)
	}
	return New(w)
}

// NewSeeded builds a model with pseudo-random tables derived from the
// seed. Two calls with the same arguments produce identical weights.
func NewSeeded(vocab int, seed int64) (*TableModel, error) {
	rng := uint64(seed)*0x9e3779b97f4a7c15 + 0x2545f4914f6cdd1d
	next := func() float32 {
		rng ^= rng << 13
		rng ^= rng >> 7
		rng ^= rng << 17
		// Map to [-0.5, 0.5).
		return float32(rng>>40)/float32(1<<24) - 0.5
	}
	fill := func() [][]float32 {
		table := make([][]float32, vocab)
		for i := range table {
			row := make([]float32, vocab)
			for j := range row {
				row[j] = next()
			}
			table[i] = row
		}
		return table
	}
	return New(TableWeights{Vocab: vocab, Bigram: fill(), Assoc: fill()})
}

func (m *TableModel) VocabSize() int { return m.vocab }

func (m *TableModel) CacheLayers() []kvcache.Layer {
	return []kvcache.Layer{
		{Name: layerHistory, Width: 1},
		{Name: layerCursor, Width: 1},
	}
}

// Oracle binds the source batch and returns the decoder's step
// function. The source rows are expanded contiguously in place so that
// row r of every later call corresponds to hypothesis r.
func (m *TableModel) Oracle(source [][]int, beamWidth int) decode.StepOracle {
	src := decode.FlatBatchBeamExpand(source, beamWidth)

	// Source association and effective length per row, fixed for the
	// whole run.
	bias := make([][]float32, len(src))
	srcLen := make([]int, len(src))
	for r, row := range src {
		b := make([]float32, m.vocab)
		n := 0
		for _, tok := range row {
			if tok == decode.PadToken || tok < 0 || tok >= m.vocab {
				continue
			}
			n++
			for v, a := range m.assoc[tok] {
				b[v] += a
			}
		}
		if n > 0 {
			inv := 1 / float32(n)
			for v := range b {
				b[v] *= inv
			}
		}
		bias[r] = b
		srcLen[r] = n
	}

	return func(last []int, cache *kvcache.Store) ([][]float32, *kvcache.Store, error) {
		if len(last) != len(src) {
			return nil, nil, fmt.Errorf("model: %d rows in, oracle bound to %d", len(last), len(src))
		}
		rows := make([][]float32, len(last))
		for r, tok := range last {
			cur, err := cache.Slot(layerCursor, r, 0)
			if err != nil {
				return nil, nil, err
			}
			step := int(cur[0])
			hist, err := cache.Slot(layerHistory, r, step)
			if err != nil {
				return nil, nil, err
			}
			hist[0] = float32(tok)
			cur[0] = float32(step + 1)

			if tok < 0 || tok >= m.vocab {
				return nil, nil, fmt.Errorf("model: token %d outside vocabulary of size %d", tok, m.vocab)
			}
			row := make([]float32, m.vocab)
			copy(row, m.bigram[tok])
			for v := range row {
				row[v] += bias[r][v]
			}
			// Pull toward EOS once the output outruns the source.
			row[decode.EOSToken] += lengthBias * float32(step+1-srcLen[r])
			// The pad/start token is never a useful continuation.
			row[decode.PadToken] -= 10
			rows[r] = row
		}
		return rows, cache, nil
	}
}
