package tokenizer

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// Reserved vocabulary slots. PadToken doubles as the decoder's start
// token, so it must never appear in encoded text.
const (
	PadToken = 0
	EOSToken = 1
)

const (
	padString = "<pad>"
	eosString = "</s>"
	unkString = "<unk>"
)

// ErrUnknownID marks a decode request for an id outside the
// vocabulary. Callers substitute a placeholder rather than fail the
// whole batch.
var ErrUnknownID = errors.New("tokenizer: id outside vocabulary")

// Vocab is a whitespace word tokenizer over a fixed token list: the id
// of a word is its index in the list.
type Vocab struct {
	tokens []string
	ids    map[string]int
	unk    int // -1 when the vocabulary has no <unk> entry
}

// vocabFile is the on-disk form, a JSON object with a "tokens" array.
type vocabFile struct {
	Tokens []string `json:"tokens"`
}

// New builds a vocabulary from an ordered token list. Slots 0 and 1
// must hold the pad and eos markers.
func New(tokens []string) (*Vocab, error) {
	if len(tokens) < 2 {
		return nil, fmt.Errorf("tokenizer: %d tokens, need at least pad and eos", len(tokens))
	}
	if tokens[PadToken] != padString {
		return nil, fmt.Errorf("tokenizer: slot %d holds %q, want %q", PadToken, tokens[PadToken], padString)
	}
	if tokens[EOSToken] != eosString {
		return nil, fmt.Errorf("tokenizer: slot %d holds %q, want %q", EOSToken, tokens[EOSToken], eosString)
	}
	v := &Vocab{tokens: tokens, ids: make(map[string]int, len(tokens)), unk: -1}
	for i, tok := range tokens {
		if _, dup := v.ids[tok]; dup {
			return nil, fmt.Errorf("tokenizer: duplicate token %q", tok)
		}
		v.ids[tok] = i
	}
	if i, ok := v.ids[unkString]; ok {
		v.unk = i
	}
	return v, nil
}

// Load reads a vocabulary from a JSON file.
func Load(path string) (*Vocab, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: read vocab: %w", err)
	}
	var f vocabFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("tokenizer: parse vocab %s: %w", path, err)
	}
	return New(f.Tokens)
}

func (v *Vocab) VocabSize() int { return len(v.tokens) }

// Encode splits text on whitespace and maps each word to its id.
// Unknown words fall back to <unk> when the vocabulary has one and
// fail otherwise.
func (v *Vocab) Encode(text string) ([]int, error) {
	words := strings.Fields(text)
	ids := make([]int, 0, len(words))
	for _, w := range words {
		id, ok := v.ids[w]
		if !ok {
			if v.unk < 0 {
				return nil, fmt.Errorf("tokenizer: unknown word %q and no %s entry", w, unkString)
			}
			id = v.unk
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Decode joins the words for ids, skipping padding. An out-of-range id
// wraps ErrUnknownID.
func (v *Vocab) Decode(ids []int) (string, error) {
	words := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == PadToken {
			continue
		}
		if id < 0 || id >= len(v.tokens) {
			return "", fmt.Errorf("%w: %d (vocab size %d)", ErrUnknownID, id, len(v.tokens))
		}
		words = append(words, v.tokens[id])
	}
	return strings.Join(words, " "), nil
}
