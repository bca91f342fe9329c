// Package kvcache holds the per-layer attention state a scoring model
// accumulates across decode steps. The decoder never looks inside the
// buffers; it only allocates them, hands them to the model one step at
// a time, and keeps their rows aligned with its own beam slots.
package kvcache

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch is returned when a committed cache does not match the
// shape the store was allocated with. It signals a wiring bug in the
// scoring function, not a recoverable condition.
var ErrShapeMismatch = errors.New("kvcache: shape mismatch")

// ErrBadPermutation is returned when a reorder permutation has the
// wrong length or an out-of-range index. Duplicate indices are legal;
// a reorder is a gather, not a bijection.
var ErrBadPermutation = errors.New("kvcache: bad permutation")

// Layer describes one cache buffer: a name the model addresses it by
// and the width (in float32 values) of a single (row, position) slot.
type Layer struct {
	Name  string
	Width int
}

// Store owns the cache buffers for a single decoding run. It is
// allocated once per run at a fixed shape, mutated in place once per
// step through Apply, and discarded when the run completes. A Store is
// exclusively owned by one run; it is not safe for concurrent use.
type Store struct {
	rows      int
	positions int
	layers    []Layer
	buf       map[string][]float32
}

// New allocates a zeroed store with the given number of rows (one per
// flattened batch*beam slot) and positions (one per decode step).
func New(rows, positions int, layers ...Layer) (*Store, error) {
	if rows < 1 {
		return nil, fmt.Errorf("kvcache: rows must be >= 1, got %d", rows)
	}
	if positions < 1 {
		return nil, fmt.Errorf("kvcache: positions must be >= 1, got %d", positions)
	}
	if len(layers) == 0 {
		return nil, fmt.Errorf("kvcache: at least one layer required")
	}
	s := &Store{
		rows:      rows,
		positions: positions,
		layers:    append([]Layer(nil), layers...),
		buf:       make(map[string][]float32, len(layers)),
	}
	for _, l := range s.layers {
		if l.Name == "" {
			return nil, fmt.Errorf("kvcache: layer with empty name")
		}
		if l.Width < 1 {
			return nil, fmt.Errorf("kvcache: layer %q width must be >= 1, got %d", l.Name, l.Width)
		}
		if _, dup := s.buf[l.Name]; dup {
			return nil, fmt.Errorf("kvcache: duplicate layer %q", l.Name)
		}
		s.buf[l.Name] = make([]float32, rows*positions*l.Width)
	}
	return s, nil
}

// Rows returns the number of rows (flattened batch*beam slots).
func (s *Store) Rows() int { return s.rows }

// Positions returns the number of decode positions per row.
func (s *Store) Positions() int { return s.positions }

// Layers returns the layer descriptors the store was allocated with.
func (s *Store) Layers() []Layer { return append([]Layer(nil), s.layers...) }

// Slot returns the mutable buffer slice for one (layer, row, position)
// address. The returned slice aliases the store's memory.
func (s *Store) Slot(layer string, row, pos int) ([]float32, error) {
	buf, ok := s.buf[layer]
	if !ok {
		return nil, fmt.Errorf("kvcache: unknown layer %q", layer)
	}
	if row < 0 || row >= s.rows {
		return nil, fmt.Errorf("kvcache: row %d out of range [0,%d)", row, s.rows)
	}
	if pos < 0 || pos >= s.positions {
		return nil, fmt.Errorf("kvcache: position %d out of range [0,%d)", pos, s.positions)
	}
	width := s.width(layer)
	off := (row*s.positions + pos) * width
	return buf[off : off+width : off+width], nil
}

func (s *Store) width(layer string) int {
	for _, l := range s.layers {
		if l.Name == layer {
			return l.Width
		}
	}
	return 0
}

// clone returns a deep copy sharing no buffer memory with s.
func (s *Store) clone() *Store {
	c := &Store{
		rows:      s.rows,
		positions: s.positions,
		layers:    append([]Layer(nil), s.layers...),
		buf:       make(map[string][]float32, len(s.buf)),
	}
	for name, b := range s.buf {
		c.buf[name] = append([]float32(nil), b...)
	}
	return c
}

func (s *Store) sameShape(o *Store) bool {
	if o == nil || s.rows != o.rows || s.positions != o.positions || len(s.layers) != len(o.layers) {
		return false
	}
	for i, l := range s.layers {
		if o.layers[i] != l {
			return false
		}
	}
	return true
}

// Apply opens a scoped mutable view of the cache, passes it to step,
// and commits the returned store as the new state. The commit is
// atomic: on success the previous buffers become unreachable, on error
// the visible state is unchanged. Apply fails if step returns a store
// of a different shape.
func (s *Store) Apply(step func(view *Store) (*Store, error)) error {
	next, err := step(s.clone())
	if err != nil {
		return err
	}
	if !s.sameShape(next) {
		return fmt.Errorf("%w: step returned %s, want %s", ErrShapeMismatch, next.describe(), s.describe())
	}
	s.buf = next.buf
	return nil
}

// Reorder reassigns every cache row so that new row i holds the
// contents of old row perm[i]. It must be applied whenever the owning
// decoder reorders its beam slots, before the next Apply.
func (s *Store) Reorder(perm []int) error {
	if len(perm) != s.rows {
		return fmt.Errorf("%w: permutation length %d, want %d rows", ErrBadPermutation, len(perm), s.rows)
	}
	for _, p := range perm {
		if p < 0 || p >= s.rows {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrBadPermutation, p, s.rows)
		}
	}
	for _, l := range s.layers {
		old := s.buf[l.Name]
		stride := s.positions * l.Width
		next := make([]float32, len(old))
		for i, p := range perm {
			copy(next[i*stride:(i+1)*stride], old[p*stride:(p+1)*stride])
		}
		s.buf[l.Name] = next
	}
	return nil
}

func (s *Store) describe() string {
	if s == nil {
		return "<nil store>"
	}
	return fmt.Sprintf("[%d rows x %d positions, %d layers]", s.rows, s.positions, len(s.layers))
}
