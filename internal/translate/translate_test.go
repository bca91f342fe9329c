package translate

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/samcharles93/babel/internal/logger"
	"github.com/samcharles93/babel/internal/model"
	"github.com/samcharles93/babel/internal/tokenizer"
)

func testPipeline(t *testing.T, opts Options) *Translator {
	t.Helper()
	tok, err := tokenizer.New([]string{"<pad>", "</s>", "<unk>", "the", "cat", "sat", "down"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.NewSeeded(tok.VocabSize(), 11)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(m, tok, opts, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestTranslateProducesOneOutputPerSource(t *testing.T) {
	tr := testPipeline(t, Options{BatchSize: 2, BeamWidth: 2, MaxDecodeLen: 8})
	sources := []string{"the cat", "cat sat down", "the"}
	got, err := tr.Translate(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(sources) {
		t.Fatalf("%d translations for %d sources", len(got), len(sources))
	}
	for i, tl := range got {
		if tl.Text == Placeholder {
			t.Errorf("source %d hit the placeholder", i)
		}
	}
}

// TestTranslateDeterministic: same sources, same outputs, regardless
// of how the work is split into batches or workers.
func TestTranslateDeterministic(t *testing.T) {
	sources := []string{"the cat sat", "sat down", "the the cat", "down", "cat"}

	base := testPipeline(t, Options{BatchSize: 8, BeamWidth: 4, MaxDecodeLen: 10})
	want, err := base.Translate(context.Background(), sources)
	if err != nil {
		t.Fatal(err)
	}

	for _, opts := range []Options{
		{BatchSize: 8, BeamWidth: 4, MaxDecodeLen: 10},
		{BatchSize: 2, BeamWidth: 4, MaxDecodeLen: 10},
		{BatchSize: 2, BeamWidth: 4, MaxDecodeLen: 10, Workers: 3},
		{BatchSize: 1, BeamWidth: 4, MaxDecodeLen: 10},
	} {
		tr := testPipeline(t, opts)
		got, err := tr.Translate(context.Background(), sources)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("options %+v changed the output (-want +got):\n%s", opts, diff)
		}
	}
}

func TestTranslateEmptyInput(t *testing.T) {
	tr := testPipeline(t, Options{})
	got, err := tr.Translate(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no output, got %v", got)
	}
}

func TestTranslateEncodeFailureNamesSource(t *testing.T) {
	tok, err := tokenizer.New([]string{"<pad>", "</s>", "the"}) // no <unk>
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.NewSeeded(tok.VocabSize(), 1)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(m, tok, Options{}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tr.Translate(context.Background(), []string{"the", "dog"}); err == nil {
		t.Fatal("unknown word accepted")
	}
}

func TestTranslateCancelledContext(t *testing.T) {
	tr := testPipeline(t, Options{BatchSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.Translate(ctx, []string{"the cat"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

// failingTokenizer decodes nothing; every output must fall back to the
// placeholder instead of failing the run.
type failingTokenizer struct {
	tokenizer.Tokenizer
}

func (f failingTokenizer) Decode(ids []int) (string, error) {
	return "", errors.New("boom")
}

func TestTranslatePlaceholderOnDecodeFailure(t *testing.T) {
	tok, err := tokenizer.New([]string{"<pad>", "</s>", "<unk>", "a", "b"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.NewSeeded(tok.VocabSize(), 5)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := New(m, failingTokenizer{tok}, Options{MaxDecodeLen: 4}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Translate(context.Background(), []string{"a b"})
	if err != nil {
		t.Fatal(err)
	}
	if got[0].Text != Placeholder {
		t.Fatalf("got %q, want placeholder", got[0].Text)
	}
}

func TestNewRejectsVocabMismatch(t *testing.T) {
	tok, err := tokenizer.New([]string{"<pad>", "</s>", "a"})
	if err != nil {
		t.Fatal(err)
	}
	m, err := model.NewSeeded(7, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(m, tok, Options{}, logger.Discard()); err == nil {
		t.Fatal("vocab mismatch accepted")
	}
}

func TestTrimOutput(t *testing.T) {
	cases := []struct {
		in   []int
		want []int
	}{
		{[]int{0, 3, 4, 1, 1, 1}, []int{3, 4}},
		{[]int{0, 1, 1}, []int{}},
		{[]int{0, 3, 4}, []int{3, 4}},
	}
	for _, tc := range cases {
		got := trimOutput(tc.in, 1)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("trimOutput(%v) (-want +got):\n%s", tc.in, diff)
		}
	}
}
