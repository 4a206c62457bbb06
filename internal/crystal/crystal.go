package crystal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/knotdc/internal/qstate"
)

var (
	// ErrInvalidDimensions is returned when any grid dimension is not
	// positive or the grid would exceed MaxVolume cells
	ErrInvalidDimensions = errors.New("dimensions must be positive and within MaxVolume")
	// ErrOutOfBounds is returned when a position lies outside the grid
	ErrOutOfBounds = errors.New("position out of bounds")
	// ErrOccupied is returned when a position already holds a knot
	ErrOccupied = errors.New("position already occupied")
	// ErrCapacityExceeded is returned when the crystal has no free position
	ErrCapacityExceeded = errors.New("crystal capacity exceeded")
)

// Position is a cell coordinate inside a crystal
type Position struct {
	X, Y, Z int
}

// String renders the position as "(x,y,z)"
func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

// MarshalJSON encodes the position as a three element array
func (p Position) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{p.X, p.Y, p.Z})
}

// compare orders positions row-major with X outermost and Z fastest
func compare(a, b Position) int {
	switch {
	case a.X != b.X:
		return a.X - b.X
	case a.Y != b.Y:
		return a.Y - b.Y
	default:
		return a.Z - b.Z
	}
}

// Dimensions is the fixed size of a crystal grid
type Dimensions struct {
	X, Y, Z int
}

// MaxVolume bounds the number of cells in one crystal.
const MaxVolume = 1 << 24

// Valid reports whether every dimension is positive and X*Y*Z does not
// exceed MaxVolume. The product is never formed before the bound holds.
func (d Dimensions) Valid() bool {
	if d.X <= 0 || d.Y <= 0 || d.Z <= 0 {
		return false
	}
	return d.X <= MaxVolume && d.Y <= MaxVolume/d.X && d.Z <= MaxVolume/(d.X*d.Y)
}

// Volume returns X*Y*Z, the crystal's total capacity
func (d Dimensions) Volume() int {
	return d.X * d.Y * d.Z
}

// Contains reports whether p lies inside the grid
func (d Dimensions) Contains(p Position) bool {
	return p.X >= 0 && p.X < d.X &&
		p.Y >= 0 && p.Y < d.Y &&
		p.Z >= 0 && p.Z < d.Z
}

// MarshalJSON encodes the dimensions as a three element array
func (d Dimensions) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{d.X, d.Y, d.Z})
}

// UnmarshalJSON accepts the three element array form
func (d *Dimensions) UnmarshalJSON(data []byte) error {
	var v [3]int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	d.X, d.Y, d.Z = v[0], v[1], v[2]
	return nil
}

// Crystal is a named 3D grid holding at most one knot per cell.
// Placement is insert-only; there is no removal.
type Crystal struct {
	Name      string     // Unique within a datacenter
	Dims      Dimensions // Fixed at construction
	CreatedAt time.Time  // Construction timestamp

	mu         sync.RWMutex              // Protects knots
	knots      map[Position]*qstate.Knot // Sparse occupancy
	rejections uint64                    // Failed placements, updated atomically
}

// New creates an empty crystal
// Returns ErrInvalidDimensions unless dims.Valid()
func New(name string, dims Dimensions) (*Crystal, error) {
	if !dims.Valid() {
		return nil, fmt.Errorf("crystal %q %dx%dx%d: %w", name, dims.X, dims.Y, dims.Z, ErrInvalidDimensions)
	}
	return &Crystal{
		Name:      name,
		Dims:      dims,
		CreatedAt: time.Now(),
		knots:     make(map[Position]*qstate.Knot),
	}, nil
}

// Total returns the number of cells in the grid
func (c *Crystal) Total() int {
	return c.Dims.Volume()
}

// Used returns the number of occupied cells
func (c *Crystal) Used() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.knots)
}

// Rejections returns how many placements have failed on this crystal
func (c *Crystal) Rejections() uint64 {
	return atomic.LoadUint64(&c.rejections)
}

// Place stores a knot at the given position
// Returns ErrOutOfBounds or ErrOccupied without modifying the crystal
func (c *Crystal) Place(pos Position, k *qstate.Knot) error {
	if !c.Dims.Contains(pos) {
		atomic.AddUint64(&c.rejections, 1)
		return fmt.Errorf("%s at %s: %w", c.Name, pos, ErrOutOfBounds)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.knots[pos]; taken {
		atomic.AddUint64(&c.rejections, 1)
		return fmt.Errorf("%s at %s: %w", c.Name, pos, ErrOccupied)
	}
	c.knots[pos] = k
	return nil
}

// PlaceFirstFree stores a knot at the first empty cell in row-major order
// Returns ErrCapacityExceeded when the grid is full
func (c *Crystal) PlaceFirstFree(k *qstate.Knot) (Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pos, ok := c.firstFree()
	if !ok {
		atomic.AddUint64(&c.rejections, 1)
		return Position{}, fmt.Errorf("%s (%d/%d): %w", c.Name, len(c.knots), c.Total(), ErrCapacityExceeded)
	}
	c.knots[pos] = k
	return pos, nil
}

// FirstFree returns the first empty cell in row-major order
func (c *Crystal) FirstFree() (Position, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.firstFree()
}

func (c *Crystal) firstFree() (Position, bool) {
	if len(c.knots) >= c.Total() {
		return Position{}, false
	}
	for x := 0; x < c.Dims.X; x++ {
		for y := 0; y < c.Dims.Y; y++ {
			for z := 0; z < c.Dims.Z; z++ {
				p := Position{x, y, z}
				if _, taken := c.knots[p]; !taken {
					return p, true
				}
			}
		}
	}
	return Position{}, false
}

// At returns the knot at pos, if any
func (c *Crystal) At(pos Position) (*qstate.Knot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.knots[pos]
	return k, ok
}

// neighborOffsets is {-1,0,1}^3 without the origin
var neighborOffsets = func() []Position {
	out := make([]Position, 0, 26)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, Position{dx, dy, dz})
			}
		}
	}
	return out
}()

// Neighbors returns the occupied cells among the 26 surrounding pos,
// in row-major order
func (c *Crystal) Neighbors(pos Position) []Position {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Position
	for _, d := range neighborOffsets {
		p := Position{pos.X + d.X, pos.Y + d.Y, pos.Z + d.Z}
		if _, ok := c.knots[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Each calls fn for every occupied cell in row-major order.
// fn must not place knots on the same crystal.
func (c *Crystal) Each(fn func(Position, *qstate.Knot)) {
	c.mu.RLock()
	positions := make([]Position, 0, len(c.knots))
	for p := range c.knots {
		positions = append(positions, p)
	}
	knots := make([]*qstate.Knot, len(positions))
	slices.SortFunc(positions, compare)
	for i, p := range positions {
		knots[i] = c.knots[p]
	}
	c.mu.RUnlock()

	for i, p := range positions {
		fn(p, knots[i])
	}
}

// Energy returns the sum of |invariant|^2 over every stored knot
func (c *Crystal) Energy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var total float64
	for _, k := range c.knots {
		total += k.Energy()
	}
	return total
}

// State is the JSON snapshot of a crystal served by INFO and STATUS
type State struct {
	Name       string     `json:"nombre"`
	Dimensions Dimensions `json:"dimensiones"`
	Total      int        `json:"capacidad_total"`
	Used       int        `json:"capacidad_usada"`
	Occupancy  string     `json:"ocupacion"`
	Energy     float64    `json:"energia_total"`
	Timestamp  string     `json:"timestamp"`
}

// OccupancyPercent returns Used/Total as a percentage
func (s State) OccupancyPercent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Used) / float64(s.Total) * 100
}

// Snapshot captures the crystal's current state
func (c *Crystal) Snapshot() State {
	c.mu.RLock()
	used := len(c.knots)
	var energy float64
	for _, k := range c.knots {
		energy += k.Energy()
	}
	c.mu.RUnlock()

	s := State{
		Name:       c.Name,
		Dimensions: c.Dims,
		Total:      c.Total(),
		Used:       used,
		Energy:     energy,
		Timestamp:  time.Now().Format(time.RFC3339Nano),
	}
	s.Occupancy = fmt.Sprintf("%.2f%%", s.OccupancyPercent())
	return s
}
