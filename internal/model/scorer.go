// Package model holds the scoring side of translation: the capability
// interface the decoder drives, and a small deterministic table model
// used by the CLI, tests, and benchmarks. Real transformer scoring
// lives behind the same interface.
package model

import (
	"github.com/samcharles93/babel/internal/decode"
	"github.com/samcharles93/babel/internal/kvcache"
)

// Scorer produces per-step token scores for one encoded source batch.
// Implementations own the model computation entirely; the decoder only
// sees the StepOracle and the cache layout it needs allocated.
type Scorer interface {
	// VocabSize reports the shared source/target vocabulary size.
	VocabSize() int
	// CacheLayers describes the cache buffers one decoding run needs.
	CacheLayers() []kvcache.Layer
	// Oracle binds the source batch, expanded in place to
	// batch*beamWidth rows, and returns the step function driving
	// the decoder. The returned oracle must be pure per call.
	Oracle(source [][]int, beamWidth int) decode.StepOracle
}
