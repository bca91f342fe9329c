// Package decode implements autoregressive beam search over an
// injected token-scoring function. The decoder owns the hypothesis
// bookkeeping and the per-step cache discipline; the model behind the
// StepOracle owns everything about how tokens are actually scored.
package decode

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samcharles93/babel/internal/kvcache"
	"github.com/samcharles93/babel/internal/logits"
)

// Shared source/target vocabulary conventions.
const (
	// PadToken pads source sequences and doubles as the reserved
	// start token at slot 0 of every hypothesis.
	PadToken = 0
	// StartToken is the reserved token every hypothesis begins with.
	StartToken = 0
	// EOSToken is the conventional end-of-sequence sentinel.
	EOSToken = 1
)

// DefaultAlpha is the GNMT length-penalty exponent.
const DefaultAlpha = 0.6

// ErrBadConfig reports an invalid decoding configuration.
var ErrBadConfig = errors.New("decode: bad config")

// ErrOracleContract reports a StepOracle that violated its shape
// contract. This is a caller wiring bug; the run aborts as a whole.
var ErrOracleContract = errors.New("decode: oracle contract violation")

// StepOracle scores one decode step for every hypothesis at once.
// Given the trailing token of each of the flatBatchSize slots and the
// current cache view, it returns next-token logits per slot (each row
// one vocabulary-sized slice) and the cache to commit for this step.
// It must behave as a pure function of its inputs for the decoder's
// determinism guarantee to hold.
type StepOracle func(lastTokens []int, cache *kvcache.Store) (rows [][]float32, next *kvcache.Store, err error)

// Config carries the per-run decoding parameters. It is threaded
// explicitly into the drivers; there is no ambient configuration.
type Config struct {
	BeamWidth    int
	Alpha        float64
	EOS          int
	MaxDecodeLen int
}

func (c Config) validate() error {
	if c.BeamWidth < 1 {
		return fmt.Errorf("%w: beam width %d, must be >= 1", ErrBadConfig, c.BeamWidth)
	}
	if c.MaxDecodeLen < 1 {
		return fmt.Errorf("%w: max decode length %d, must be >= 1", ErrBadConfig, c.MaxDecodeLen)
	}
	if c.EOS < 0 {
		return fmt.Errorf("%w: eos token %d, must be >= 0", ErrBadConfig, c.EOS)
	}
	return nil
}

// Result is the outcome of one beam-search run. For every batch
// element the beam axis is sorted ascending by normalized score, so
// index BeamWidth-1 holds the best hypothesis. Sequences keep the
// reserved start token in column 0; callers drop it.
type Result struct {
	Sequences [][][]int
	Scores    [][]float32
}

// Search runs beam search for one batch of source sentences. The
// oracle is expected to be already bound to the (beam-expanded)
// encoded sources, and cache must have been allocated with
// batchSize*BeamWidth rows and MaxDecodeLen positions. Either all
// batchSize translations are produced or the run fails as a whole.
func Search(cfg Config, batchSize int, oracle StepOracle, cache *kvcache.Store) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d, must be >= 1", ErrBadConfig, batchSize)
	}
	if oracle == nil {
		return nil, fmt.Errorf("%w: nil oracle", ErrBadConfig)
	}
	flat := batchSize * cfg.BeamWidth
	if cache == nil || cache.Rows() != flat {
		return nil, fmt.Errorf("%w: cache rows %s, want %d (batch %d x beam %d)",
			ErrOracleContract, cacheRows(cache), flat, batchSize, cfg.BeamWidth)
	}
	if cache.Positions() < cfg.MaxDecodeLen {
		return nil, fmt.Errorf("%w: cache has %d positions, need %d",
			ErrOracleContract, cache.Positions(), cfg.MaxDecodeLen)
	}

	state := newBeamState(batchSize, cfg.BeamWidth, cfg.MaxDecodeLen)
	if err := searchLoop(cfg, state, oracle, cache); err != nil {
		return nil, err
	}
	return finalize(cfg, state), nil
}

// searchLoop drives the INIT/STEP machine until every slot is frozen
// or MaxDecodeLen steps have elapsed. One decoding run is strictly
// sequential across steps: position t+1 depends on the cache committed
// at position t.
func searchLoop(cfg Config, state *BeamState, oracle StepOracle, cache *kvcache.Store) error {
	flat := state.flatSize()
	last := make([]int, flat)
	perm := make([]int, flat)
	toks := make([]int, flat)
	sel := make([]float32, flat)
	logProbs := make([][]float32, flat)
	top := logits.NewTopK(cfg.BeamWidth)
	vocab := -1

	for step := 0; step < cfg.MaxDecodeLen; step++ {
		state.lastTokens(last)

		// The single scoring operation of the step, batched across
		// all slots. The oracle mutates a scoped view; the commit
		// replaces the visible cache atomically.
		var rows [][]float32
		err := cache.Apply(func(view *kvcache.Store) (*kvcache.Store, error) {
			out, next, err := oracle(last, view)
			if err != nil {
				return nil, err
			}
			rows = out
			return next, nil
		})
		if err != nil {
			return fmt.Errorf("decode: step %d: %w", step, err)
		}
		if vocab, err = checkLogits(rows, flat, vocab, cfg.EOS); err != nil {
			return fmt.Errorf("decode: step %d: %w", step, err)
		}

		for i := 0; i < flat; i++ {
			if !state.Finished[i] {
				logProbs[i] = logits.LogSoftmax(logProbs[i], rows[i])
			}
		}

		// Per batch element, rank beamWidth*vocab live continuations
		// against the single frozen candidate of each finished slot.
		// Live extensions compete on raw cumulative score; finished
		// slots carry their length-normalized score.
		for b := 0; b < state.BatchSize; b++ {
			top.Reset()
			base := b * cfg.BeamWidth
			for beam := 0; beam < cfg.BeamWidth; beam++ {
				slot := base + beam
				if state.Finished[slot] {
					top.Push(cfg.EOS, slot, state.Scores[slot])
					continue
				}
				cum := state.Scores[slot]
				for v, lp := range logProbs[slot] {
					top.Push(v, slot, cum+lp)
				}
			}
			for j := 0; j < cfg.BeamWidth; j++ {
				i := base + j
				perm[i] = top.Parent[j]
				toks[i] = top.Index[j]
				sel[i] = top.Value[j]
			}
		}

		// The same permutation must reach state and cache in the same
		// step: slot i and cache row i always name the same hypothesis.
		state.advance(perm, toks, sel, cfg.EOS, cfg.Alpha)
		if err := cache.Reorder(perm); err != nil {
			return fmt.Errorf("decode: step %d: %w", step, err)
		}

		if state.allFinished() {
			break
		}
	}
	return nil
}

// finalize length-normalizes slots that never reached EOS, sorts each
// batch element's beams ascending by normalized score (best last), and
// pads every sequence to the fixed MaxDecodeLen+1 output shape.
func finalize(cfg Config, state *BeamState) *Result {
	res := &Result{
		Sequences: make([][][]int, state.BatchSize),
		Scores:    make([][]float32, state.BatchSize),
	}
	for b := 0; b < state.BatchSize; b++ {
		base := b * cfg.BeamWidth
		order := make([]int, cfg.BeamWidth)
		scores := make([]float32, cfg.BeamWidth)
		for beam := 0; beam < cfg.BeamWidth; beam++ {
			slot := base + beam
			order[beam] = slot
			if state.Finished[slot] {
				scores[beam] = state.Scores[slot]
			} else {
				scores[beam] = normalizedScore(state.Scores[slot], state.Lengths[slot], cfg.Alpha)
			}
		}
		sort.SliceStable(order, func(i, j int) bool {
			return scores[order[i]-base] < scores[order[j]-base]
		})

		seqs := make([][]int, cfg.BeamWidth)
		sorted := make([]float32, cfg.BeamWidth)
		for rank, slot := range order {
			seq := make([]int, cfg.MaxDecodeLen+1)
			copy(seq, state.Sequences[slot])
			for p := len(state.Sequences[slot]); p < len(seq); p++ {
				seq[p] = cfg.EOS
			}
			seqs[rank] = seq
			sorted[rank] = scores[slot-base]
		}
		res.Sequences[b] = seqs
		res.Scores[b] = sorted
	}
	return res
}

// checkLogits enforces the oracle shape contract: one row per slot,
// rectangular vocabulary that stays constant across steps, and an EOS
// id inside it.
func checkLogits(rows [][]float32, flat, vocab, eos int) (int, error) {
	if len(rows) != flat {
		return vocab, fmt.Errorf("%w: got %d logits rows, want %d", ErrOracleContract, len(rows), flat)
	}
	width := len(rows[0])
	if width < 1 {
		return vocab, fmt.Errorf("%w: empty logits row", ErrOracleContract)
	}
	for i, row := range rows {
		if len(row) != width {
			return vocab, fmt.Errorf("%w: ragged logits, row %d has %d entries, row 0 has %d",
				ErrOracleContract, i, len(row), width)
		}
	}
	if vocab >= 0 && width != vocab {
		return vocab, fmt.Errorf("%w: vocabulary changed from %d to %d between steps",
			ErrOracleContract, vocab, width)
	}
	if eos >= width {
		return vocab, fmt.Errorf("%w: eos token %d outside vocabulary of size %d",
			ErrOracleContract, eos, width)
	}
	return width, nil
}

func cacheRows(cache *kvcache.Store) string {
	if cache == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%d", cache.Rows())
}
