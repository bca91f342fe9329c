package decode

import "math"

// negInf stands in for -infinity in score arithmetic. Finite so that
// length normalization at cutoff stays well defined.
const negInf = float32(-1e10)

// BeamState records every hypothesis of one decoding run: the token
// history, cumulative log-probability, finished flag, and running
// length of each (batch, beam) slot, addressed by flat index. Exactly
// batchSize*beamWidth slots exist for the whole run; finishing freezes
// a slot, it never removes one. The state is owned and mutated only by
// the search loop.
type BeamState struct {
	BatchSize int
	BeamWidth int

	Sequences [][]int
	Scores    []float32
	Finished  []bool
	Lengths   []int
}

// newBeamState seeds every slot with the reserved start token at
// length 1. All but the first beam of each batch element start at
// negInf so the first top-k selection does not produce beamWidth
// copies of the same path.
func newBeamState(batchSize, beamWidth, maxDecodeLen int) *BeamState {
	flat := batchSize * beamWidth
	s := &BeamState{
		BatchSize: batchSize,
		BeamWidth: beamWidth,
		Sequences: make([][]int, flat),
		Scores:    make([]float32, flat),
		Finished:  make([]bool, flat),
		Lengths:   make([]int, flat),
	}
	for i := 0; i < flat; i++ {
		seq := make([]int, 1, maxDecodeLen+1)
		seq[0] = StartToken
		s.Sequences[i] = seq
		s.Lengths[i] = 1
		if i%beamWidth != 0 {
			s.Scores[i] = negInf
		}
	}
	return s
}

func (s *BeamState) flatSize() int { return s.BatchSize * s.BeamWidth }

// lastTokens writes the trailing token of every slot into dst.
// Finished slots pass their last token (the EOS they ended on) through
// as a no-op placeholder so the scoring call stays fully batched.
func (s *BeamState) lastTokens(dst []int) {
	for i, seq := range s.Sequences {
		dst[i] = seq[len(seq)-1]
	}
}

// advance materializes the post-selection state: new slot i descends
// from old slot perm[i], appends tokens[i], and takes cumulative score
// scores[i]. Live slots that emit eos freeze with their score
// length-normalized; live slots that continue grow by one. Frozen
// slots re-append their EOS and keep score and length untouched.
func (s *BeamState) advance(perm, tokens []int, scores []float32, eos int, alpha float64) {
	flat := s.flatSize()
	nextSeqs := make([][]int, flat)
	nextScores := make([]float32, flat)
	nextFinished := make([]bool, flat)
	nextLengths := make([]int, flat)

	for i := 0; i < flat; i++ {
		p := perm[i]
		src := s.Sequences[p]
		seq := make([]int, len(src)+1, cap(src))
		copy(seq, src)
		seq[len(src)] = tokens[i]

		score := scores[i]
		finished := s.Finished[p]
		length := s.Lengths[p]
		switch {
		case finished:
			// Frozen: score already normalized, length fixed.
		case tokens[i] == eos:
			finished = true
			score = normalizedScore(score, length, alpha)
		default:
			length++
		}

		nextSeqs[i] = seq
		nextScores[i] = score
		nextFinished[i] = finished
		nextLengths[i] = length
	}

	s.Sequences = nextSeqs
	s.Scores = nextScores
	s.Finished = nextFinished
	s.Lengths = nextLengths
}

// allFinished reports whether every slot across the run has frozen.
func (s *BeamState) allFinished() bool {
	for _, f := range s.Finished {
		if !f {
			return false
		}
	}
	return true
}

// normalizedScore applies the GNMT-style brevity penalty
// score / length^alpha. Larger alpha favors longer sequences.
func normalizedScore(score float32, length int, alpha float64) float32 {
	if alpha == 0 {
		return score
	}
	return float32(float64(score) / math.Pow(float64(length), alpha))
}
