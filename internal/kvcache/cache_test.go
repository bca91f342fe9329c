package kvcache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewValidation(t *testing.T) {
	cases := []struct {
		name      string
		rows, pos int
		layers    []Layer
	}{
		{"zero rows", 0, 4, []Layer{{Name: "k", Width: 2}}},
		{"zero positions", 4, 0, []Layer{{Name: "k", Width: 2}}},
		{"no layers", 4, 4, nil},
		{"empty layer name", 4, 4, []Layer{{Name: "", Width: 2}}},
		{"zero width", 4, 4, []Layer{{Name: "k", Width: 0}}},
		{"duplicate layer", 4, 4, []Layer{{Name: "k", Width: 2}, {Name: "k", Width: 2}}},
	}
	for _, tc := range cases {
		if _, err := New(tc.rows, tc.pos, tc.layers...); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}

func TestSlotAddressing(t *testing.T) {
	s, err := New(3, 4, Layer{Name: "k", Width: 2})
	if err != nil {
		t.Fatal(err)
	}
	// Write a distinct value into every slot, then read it back.
	for row := 0; row < 3; row++ {
		for pos := 0; pos < 4; pos++ {
			slot, err := s.Slot("k", row, pos)
			if err != nil {
				t.Fatal(err)
			}
			slot[0] = float32(row)
			slot[1] = float32(pos)
		}
	}
	for row := 0; row < 3; row++ {
		for pos := 0; pos < 4; pos++ {
			slot, _ := s.Slot("k", row, pos)
			if slot[0] != float32(row) || slot[1] != float32(pos) {
				t.Fatalf("slot (%d,%d) = %v, slots overlap", row, pos, slot)
			}
		}
	}

	if _, err := s.Slot("v", 0, 0); err == nil {
		t.Error("expected error for unknown layer")
	}
	if _, err := s.Slot("k", 3, 0); err == nil {
		t.Error("expected error for row out of range")
	}
	if _, err := s.Slot("k", 0, 4); err == nil {
		t.Error("expected error for position out of range")
	}
}

func TestApplyCommits(t *testing.T) {
	s, err := New(2, 2, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Apply(func(view *Store) (*Store, error) {
		slot, err := view.Slot("k", 1, 0)
		if err != nil {
			return nil, err
		}
		slot[0] = 42
		return view, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	slot, _ := s.Slot("k", 1, 0)
	if slot[0] != 42 {
		t.Fatalf("committed value not visible, got %v", slot[0])
	}
}

func TestApplyErrorLeavesStateUnchanged(t *testing.T) {
	s, err := New(2, 2, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	stepErr := errors.New("model exploded")
	err = s.Apply(func(view *Store) (*Store, error) {
		slot, _ := view.Slot("k", 0, 0)
		slot[0] = 99
		return nil, stepErr
	})
	if !errors.Is(err, stepErr) {
		t.Fatalf("expected step error, got %v", err)
	}
	slot, _ := s.Slot("k", 0, 0)
	if slot[0] != 0 {
		t.Fatalf("failed step leaked into visible state: %v", slot[0])
	}
}

func TestApplyRejectsMismatchedShape(t *testing.T) {
	s, err := New(2, 2, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	err = s.Apply(func(view *Store) (*Store, error) {
		return New(3, 2, Layer{Name: "k", Width: 1})
	})
	if !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestReorderGathersRows(t *testing.T) {
	s, err := New(3, 2, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	for row := 0; row < 3; row++ {
		for pos := 0; pos < 2; pos++ {
			slot, _ := s.Slot("k", row, pos)
			slot[0] = float32(10*row + pos)
		}
	}
	// New row i takes old row perm[i]. Duplicates are legal: beam
	// selection may descend several slots from the same parent.
	if err := s.Reorder([]int{2, 0, 0}); err != nil {
		t.Fatal(err)
	}
	want := [][]float32{{20, 21}, {0, 1}, {0, 1}}
	got := make([][]float32, 3)
	for row := 0; row < 3; row++ {
		for pos := 0; pos < 2; pos++ {
			slot, _ := s.Slot("k", row, pos)
			got[row] = append(got[row], slot[0])
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows after reorder (-want +got):\n%s", diff)
	}
}

func TestReorderValidation(t *testing.T) {
	s, err := New(2, 1, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reorder([]int{0}); !errors.Is(err, ErrBadPermutation) {
		t.Fatalf("short permutation: expected ErrBadPermutation, got %v", err)
	}
	if err := s.Reorder([]int{0, 2}); !errors.Is(err, ErrBadPermutation) {
		t.Fatalf("out of range index: expected ErrBadPermutation, got %v", err)
	}
}

func TestViewIsIsolatedUntilCommit(t *testing.T) {
	s, err := New(1, 1, Layer{Name: "k", Width: 1})
	if err != nil {
		t.Fatal(err)
	}
	var leaked *Store
	err = s.Apply(func(view *Store) (*Store, error) {
		leaked = view
		return view, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	// Mutating through the committed handle is the same memory; a
	// second Apply must replace it rather than alias the old view.
	err = s.Apply(func(view *Store) (*Store, error) {
		if view == leaked {
			return nil, fmt.Errorf("view not re-opened per step")
		}
		slot, _ := view.Slot("k", 0, 0)
		slot[0] = 7
		return view, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	slot, _ := s.Slot("k", 0, 0)
	if slot[0] != 7 {
		t.Fatalf("second commit not visible: %v", slot[0])
	}
}
