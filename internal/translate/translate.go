// Package translate runs the batch translation pipeline: tokenize
// sources, beam-decode them batch by batch, and detokenize the best
// hypothesis of each.
package translate

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/babel/internal/decode"
	"github.com/samcharles93/babel/internal/kvcache"
	"github.com/samcharles93/babel/internal/logger"
	"github.com/samcharles93/babel/internal/model"
	"github.com/samcharles93/babel/internal/tokenizer"
)

// Placeholder stands in for a translation whose token ids could not be
// detokenized. One bad output must not fail the batch.
const Placeholder = "<untranslatable>"

// Defaults for unset Options fields.
const (
	DefaultBatchSize = 16
	DefaultBeamWidth = 4
	DefaultMaxLen    = 64
)

// Options carries the per-run pipeline parameters.
type Options struct {
	BatchSize    int
	BeamWidth    int
	Alpha        float64
	MaxDecodeLen int
	// Workers bounds how many batches decode concurrently. Within one
	// batch decoding stays sequential.
	Workers int
}

func (o Options) withDefaults() Options {
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BeamWidth < 1 {
		o.BeamWidth = DefaultBeamWidth
	}
	if o.Alpha == 0 {
		o.Alpha = decode.DefaultAlpha
	}
	if o.MaxDecodeLen < 1 {
		o.MaxDecodeLen = DefaultMaxLen
	}
	if o.Workers < 1 {
		o.Workers = 1
	}
	return o
}

// Translation is one decoded output.
type Translation struct {
	Text  string  `json:"text"`
	Score float32 `json:"score"`
}

// Translator drives a Scorer and a Tokenizer through the decode loop.
type Translator struct {
	scorer model.Scorer
	tok    tokenizer.Tokenizer
	opts   Options
	log    logger.Logger
}

// New wires a translator. The tokenizer and scorer must agree on the
// vocabulary size; a mismatch would let the decoder emit ids the
// tokenizer cannot render.
func New(scorer model.Scorer, tok tokenizer.Tokenizer, opts Options, log logger.Logger) (*Translator, error) {
	if scorer == nil || tok == nil {
		return nil, fmt.Errorf("translate: scorer and tokenizer are required")
	}
	if log == nil {
		log = logger.Default()
	}
	if sv, tv := scorer.VocabSize(), tok.VocabSize(); sv != tv {
		return nil, fmt.Errorf("translate: scorer vocab %d != tokenizer vocab %d", sv, tv)
	}
	return &Translator{scorer: scorer, tok: tok, opts: opts.withDefaults(), log: log}, nil
}

// Translate decodes every source sentence and returns one Translation
// per input, in input order. Batches run concurrently up to
// Options.Workers; each writes a disjoint region of the result slice.
func (t *Translator) Translate(ctx context.Context, sources []string) ([]Translation, error) {
	if len(sources) == 0 {
		return nil, nil
	}
	encoded := make([][]int, len(sources))
	for i, src := range sources {
		ids, err := t.tok.Encode(src)
		if err != nil {
			return nil, fmt.Errorf("translate: source %d: %w", i, err)
		}
		encoded[i] = append(ids, tokenizer.EOSToken)
	}

	out := make([]Translation, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.opts.Workers)
	for start := 0; start < len(encoded); start += t.opts.BatchSize {
		end := min(start+t.opts.BatchSize, len(encoded))
		g.Go(func() error {
			return t.runBatch(ctx, encoded[start:end], out[start:end])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// runBatch decodes one batch. An uneven final batch is padded to the
// configured size by repeating its last example; the padded slots are
// decoded and discarded so every run sees the same batch shape.
func (t *Translator) runBatch(ctx context.Context, batch [][]int, out []Translation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	padded := batch
	if len(batch) < t.opts.BatchSize {
		padded = make([][]int, t.opts.BatchSize)
		copy(padded, batch)
		for i := len(batch); i < t.opts.BatchSize; i++ {
			padded[i] = batch[len(batch)-1]
		}
	}

	cfg := decode.Config{
		BeamWidth:    t.opts.BeamWidth,
		Alpha:        t.opts.Alpha,
		EOS:          tokenizer.EOSToken,
		MaxDecodeLen: t.opts.MaxDecodeLen,
	}
	cache, err := kvcache.New(len(padded)*cfg.BeamWidth, cfg.MaxDecodeLen, t.scorer.CacheLayers()...)
	if err != nil {
		return fmt.Errorf("translate: allocate cache: %w", err)
	}
	res, err := decode.Search(cfg, len(padded), t.scorer.Oracle(padded, cfg.BeamWidth), cache)
	if err != nil {
		return fmt.Errorf("translate: decode batch: %w", err)
	}

	for i := range batch {
		best := res.Sequences[i][cfg.BeamWidth-1]
		ids := trimOutput(best, cfg.EOS)
		text, err := t.tok.Decode(ids)
		if err != nil {
			t.log.Warn("detokenization failed, substituting placeholder", "error", err)
			text = Placeholder
		}
		out[i] = Translation{Text: text, Score: res.Scores[i][cfg.BeamWidth-1]}
	}
	return nil
}

// trimOutput drops the reserved start token and truncates at the first
// EOS.
func trimOutput(seq []int, eos int) []int {
	body := seq[1:]
	for i, tok := range body {
		if tok == eos {
			return body[:i]
		}
	}
	return body
}
