package crystal

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/dreamware/knotdc/internal/qstate"
)

func testKnot(id string) *qstate.Knot {
	s := 1 / math.Sqrt2
	return &qstate.Knot{
		ID:        id,
		Type:      qstate.KnotTrefoil,
		Integrity: 0.95,
		Cubits: []*qstate.Cubit{
			{ID: id + "_q0", Alpha: complex(s, 0), Beta: complex(s, 0), Fidelity: 0.9},
		},
	}
}

// TestNew tests crystal construction and dimension validation
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		dims    Dimensions
		wantErr bool
	}{
		{name: "cube", dims: Dimensions{4, 4, 4}},
		{name: "single cell", dims: Dimensions{1, 1, 1}},
		{name: "flat", dims: Dimensions{5, 3, 1}},
		{name: "zero x", dims: Dimensions{0, 2, 2}, wantErr: true},
		{name: "negative z", dims: Dimensions{2, 2, -1}, wantErr: true},
		{name: "at max volume", dims: Dimensions{256, 256, 256}},
		{name: "one cell over max volume", dims: Dimensions{256, 256, 257}, wantErr: true},
		{name: "product overflows int", dims: Dimensions{math.MaxInt / 2, 4, 4}, wantErr: true},
		{name: "huge single axis", dims: Dimensions{1, 1, math.MaxInt}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New("C", tt.dims)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidDimensions) {
					t.Fatalf("Expected ErrInvalidDimensions, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			// Verify capacity matches the volume
			if c.Total() != tt.dims.X*tt.dims.Y*tt.dims.Z {
				t.Errorf("Expected total %d, got %d", tt.dims.Volume(), c.Total())
			}

			// Verify crystal starts empty
			if c.Used() != 0 {
				t.Errorf("Expected empty crystal, got %d used", c.Used())
			}
		})
	}
}

// TestPlace tests explicit placement
func TestPlace(t *testing.T) {
	c, _ := New("C", Dimensions{2, 2, 2})
	k := testKnot("knot_a")
	pos := Position{1, 0, 1}

	if err := c.Place(pos, k); err != nil {
		t.Fatalf("Failed to place knot: %v", err)
	}

	// Verify the same knot comes back
	got, ok := c.At(pos)
	if !ok || got != k {
		t.Errorf("Expected placed knot at %s, got %v", pos, got)
	}

	// Verify second placement at the same position fails
	err := c.Place(pos, testKnot("knot_b"))
	if !errors.Is(err, ErrOccupied) {
		t.Errorf("Expected ErrOccupied, got %v", err)
	}
	got, _ = c.At(pos)
	if got != k {
		t.Error("Occupied cell was overwritten")
	}

	// Verify out of bounds positions are rejected
	for _, p := range []Position{{2, 0, 0}, {0, -1, 0}, {0, 0, 5}} {
		if err := c.Place(p, k); !errors.Is(err, ErrOutOfBounds) {
			t.Errorf("Expected ErrOutOfBounds for %s, got %v", p, err)
		}
	}

	if c.Used() != 1 {
		t.Errorf("Expected 1 used, got %d", c.Used())
	}
	if c.Rejections() != 4 {
		t.Errorf("Expected 4 rejections, got %d", c.Rejections())
	}
}

// TestPlaceFirstFree tests row-major placement until the crystal is full
func TestPlaceFirstFree(t *testing.T) {
	c, _ := New("C", Dimensions{2, 2, 2})

	want := []Position{
		{0, 0, 0}, {0, 0, 1}, {0, 1, 0}, {0, 1, 1},
		{1, 0, 0}, {1, 0, 1}, {1, 1, 0}, {1, 1, 1},
	}
	for i, w := range want {
		pos, err := c.PlaceFirstFree(testKnot("k"))
		if err != nil {
			t.Fatalf("Placement %d failed: %v", i, err)
		}
		if pos != w {
			t.Errorf("Placement %d: expected %s, got %s", i, w, pos)
		}
		if c.Used() != i+1 {
			t.Errorf("Expected %d used, got %d", i+1, c.Used())
		}
	}

	// Verify the ninth placement fails and leaves the crystal unchanged
	_, err := c.PlaceFirstFree(testKnot("k9"))
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
	if c.Used() != 8 {
		t.Errorf("Expected 8 used after failure, got %d", c.Used())
	}
	if _, ok := c.FirstFree(); ok {
		t.Error("Expected no free cell")
	}
}

// TestPlaceFirstFreeSkipsTakenCells tests that explicit placements are skipped
func TestPlaceFirstFreeSkipsTakenCells(t *testing.T) {
	c, _ := New("C", Dimensions{1, 1, 3})
	_ = c.Place(Position{0, 0, 0}, testKnot("a"))
	_ = c.Place(Position{0, 0, 2}, testKnot("b"))

	pos, err := c.PlaceFirstFree(testKnot("c"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if pos != (Position{0, 0, 1}) {
		t.Errorf("Expected (0,0,1), got %s", pos)
	}
}

// TestNeighbors tests the 26-cell neighbourhood
func TestNeighbors(t *testing.T) {
	c, _ := New("C", Dimensions{3, 3, 3})

	// Fill every cell
	for i := 0; i < 27; i++ {
		if _, err := c.PlaceFirstFree(testKnot("k")); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		pos  Position
		want int
	}{
		{Position{1, 1, 1}, 26}, // center
		{Position{0, 0, 0}, 7},  // corner
		{Position{1, 0, 0}, 11}, // edge
		{Position{1, 1, 0}, 17}, // face
	}
	for _, tt := range tests {
		got := c.Neighbors(tt.pos)
		if len(got) != tt.want {
			t.Errorf("Neighbors(%s): expected %d, got %d", tt.pos, tt.want, len(got))
		}
		for _, p := range got {
			if p == tt.pos {
				t.Errorf("Neighbors(%s) includes itself", tt.pos)
			}
		}
	}

	// Verify only occupied cells count
	sparse, _ := New("S", Dimensions{3, 3, 3})
	_ = sparse.Place(Position{0, 0, 0}, testKnot("a"))
	_ = sparse.Place(Position{2, 2, 2}, testKnot("b"))
	if got := sparse.Neighbors(Position{1, 1, 1}); len(got) != 2 {
		t.Errorf("Expected 2 occupied neighbours, got %v", got)
	}
	if got := sparse.Neighbors(Position{0, 0, 0}); len(got) != 0 {
		t.Errorf("Expected no neighbours of (0,0,0), got %v", got)
	}
}

// TestEach tests row-major iteration
func TestEach(t *testing.T) {
	c, _ := New("C", Dimensions{2, 2, 2})
	_ = c.Place(Position{1, 1, 1}, testKnot("last"))
	_ = c.Place(Position{0, 1, 0}, testKnot("middle"))
	_ = c.Place(Position{0, 0, 1}, testKnot("first"))

	var ids []string
	c.Each(func(_ Position, k *qstate.Knot) {
		ids = append(ids, k.ID)
	})

	want := []string{"first", "middle", "last"}
	if len(ids) != len(want) {
		t.Fatalf("Expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
			break
		}
	}
}

// TestEnergy tests energy as the sum of squared invariant magnitudes
func TestEnergy(t *testing.T) {
	c, _ := New("C", Dimensions{2, 1, 1})
	if c.Energy() != 0 {
		t.Errorf("Expected zero energy for empty crystal, got %f", c.Energy())
	}

	// Each test knot has invariant magnitude 0.5
	_, _ = c.PlaceFirstFree(testKnot("a"))
	_, _ = c.PlaceFirstFree(testKnot("b"))
	if math.Abs(c.Energy()-0.5) > 1e-9 {
		t.Errorf("Expected energy 0.5, got %f", c.Energy())
	}
}

// TestSnapshot tests the JSON wire form of a crystal
func TestSnapshot(t *testing.T) {
	c, _ := New("Cristal_Alpha", Dimensions{4, 4, 4})
	for i := 0; i < 3; i++ {
		_, _ = c.PlaceFirstFree(testKnot("k"))
	}

	s := c.Snapshot()
	if s.Used != 3 || s.Total != 64 {
		t.Errorf("Expected 3/64, got %d/%d", s.Used, s.Total)
	}
	if s.Occupancy != "4.69%" {
		t.Errorf("Expected occupancy 4.69%%, got %s", s.Occupancy)
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	for _, key := range []string{"nombre", "dimensiones", "capacidad_total", "capacidad_usada", "ocupacion", "energia_total", "timestamp"} {
		if _, ok := out[key]; !ok {
			t.Errorf("Missing key %q in %s", key, data)
		}
	}
	dims, _ := out["dimensiones"].([]any)
	if len(dims) != 3 || dims[0] != 4.0 {
		t.Errorf("Expected dimensiones [4,4,4], got %v", out["dimensiones"])
	}

	// Verify dimensions decode from the array form
	var d Dimensions
	if err := json.Unmarshal([]byte(`[2,3,4]`), &d); err != nil || d != (Dimensions{2, 3, 4}) {
		t.Errorf("Expected {2 3 4}, got %v (%v)", d, err)
	}
}

// TestConcurrentPlacement tests that concurrent placements never exceed capacity
func TestConcurrentPlacement(t *testing.T) {
	c, _ := New("C", Dimensions{4, 4, 4})

	var wg sync.WaitGroup
	var mu sync.Mutex
	placed := make(map[Position]bool)
	failures := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pos, err := c.PlaceFirstFree(testKnot("k"))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			if placed[pos] {
				t.Errorf("Position %s placed twice", pos)
			}
			placed[pos] = true
		}()
	}
	wg.Wait()

	if len(placed) != 64 || failures != 36 {
		t.Errorf("Expected 64 placements and 36 failures, got %d and %d", len(placed), failures)
	}
	if c.Used() != 64 {
		t.Errorf("Expected 64 used, got %d", c.Used())
	}
}
