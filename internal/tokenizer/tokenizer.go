// Package tokenizer converts between text and token ids. The decoder
// never sees text; everything above it speaks ids, with 0 reserved for
// padding and 1 for end-of-sequence across both languages.
package tokenizer

// Tokenizer is the interface the translation pipeline works against.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	VocabSize() int
}
