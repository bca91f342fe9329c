package decode

import (
	"fmt"

	"github.com/samcharles93/babel/internal/kvcache"
	"github.com/samcharles93/babel/internal/logits"
)

// Greedy decodes by taking the argmax token at every step, one
// hypothesis per batch element. It shares the StepOracle and cache
// discipline with Search but none of the beam bookkeeping, so it
// doubles as an independent reference for the BeamWidth=1 case.
// BeamWidth and Alpha in cfg are ignored. The returned sequences have
// the fixed shape [batchSize][MaxDecodeLen+1], start token included,
// EOS-padded after a hypothesis finishes.
func Greedy(cfg Config, batchSize int, oracle StepOracle, cache *kvcache.Store) ([][]int, error) {
	cfg.BeamWidth = 1
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("%w: batch size %d, must be >= 1", ErrBadConfig, batchSize)
	}
	if oracle == nil {
		return nil, fmt.Errorf("%w: nil oracle", ErrBadConfig)
	}
	if cache == nil || cache.Rows() != batchSize {
		return nil, fmt.Errorf("%w: cache rows %s, want %d", ErrOracleContract, cacheRows(cache), batchSize)
	}

	seqs := make([][]int, batchSize)
	finished := make([]bool, batchSize)
	last := make([]int, batchSize)
	for i := range seqs {
		seq := make([]int, 1, cfg.MaxDecodeLen+1)
		seq[0] = StartToken
		seqs[i] = seq
	}

	vocab := -1
	for step := 0; step < cfg.MaxDecodeLen; step++ {
		for i, seq := range seqs {
			last[i] = seq[len(seq)-1]
		}

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
			return nil, fmt.Errorf("decode: greedy step %d: %w", step, err)
		}
		if vocab, err = checkLogits(rows, batchSize, vocab, cfg.EOS); err != nil {
			return nil, fmt.Errorf("decode: greedy step %d: %w", step, err)
		}

		done := true
		for i := range seqs {
			if finished[i] {
				seqs[i] = append(seqs[i], cfg.EOS)
				continue
			}
			tok := logits.Argmax(rows[i])
			seqs[i] = append(seqs[i], tok)
			if tok == cfg.EOS {
				finished[i] = true
			} else {
				done = false
			}
		}
		if done {
			break
		}
	}

	for i, seq := range seqs {
		padded := make([]int, cfg.MaxDecodeLen+1)
		copy(padded, seq)
		for p := len(seq); p < len(padded); p++ {
			padded[p] = cfg.EOS
		}
		seqs[i] = padded
	}
	return seqs, nil
}
