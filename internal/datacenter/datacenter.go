package datacenter

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/dreamware/knotdc/internal/crystal"
	"github.com/dreamware/knotdc/internal/oracle"
	"github.com/dreamware/knotdc/internal/qstate"
)

var (
	// ErrNotFound is returned when a crystal name is not registered
	ErrNotFound = errors.New("crystal not found")
	// ErrDuplicateName is returned when creating a crystal whose name is taken
	ErrDuplicateName = errors.New("crystal already exists")
	// ErrInvalidName is returned for an empty or whitespace-only crystal name
	ErrInvalidName = errors.New("invalid crystal name")
)

// Placement describes where StorePayload put a knot.
type Placement struct {
	Crystal  string           `json:"cristal"`
	KnotID   string           `json:"nudo"`
	Hash     string           `json:"hash"`
	Type     qstate.KnotType  `json:"tipo"`
	Position crystal.Position `json:"posicion"`
	Units    int              `json:"cubits"`
}

// Option configures a Datacenter.
type Option func(*Datacenter)

// WithOracle sets the state preparation oracle. The default is the
// statevector simulator.
func WithOracle(o oracle.Oracle) Option {
	return func(d *Datacenter) { d.oracle = o }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Datacenter) {
		if l != nil {
			d.logger = l
		}
	}
}

// Datacenter is a named collection of crystals.
//
// A single RWMutex guards the crystal map and, through View and Mutate,
// every mutation of the knots and cubits those crystals hold. Readers
// such as STATUS take the read side; payload storage and AI passes take
// the write side.
type Datacenter struct {
	CreatedAt time.Time
	crystals  map[string]*crystal.Crystal
	oracle    oracle.Oracle
	logger    *slog.Logger
	Name      string
	mu        sync.RWMutex
}

// New creates an empty datacenter.
func New(name string, opts ...Option) *Datacenter {
	d := &Datacenter{
		Name:      name,
		CreatedAt: time.Now(),
		crystals:  make(map[string]*crystal.Crystal),
		oracle:    oracle.NewSimulator(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// CreateCrystal registers a new empty crystal.
// Names are unique; an existing crystal is never replaced.
func (d *Datacenter) CreateCrystal(name string, dims crystal.Dimensions) (*crystal.Crystal, error) {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t\r\n") {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}

	c, err := crystal.New(name, dims)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.crystals[name]; exists {
		return nil, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	d.crystals[name] = c

	d.logger.Info("crystal created",
		"crystal", name,
		"dimensions", fmt.Sprintf("%dx%dx%d", dims.X, dims.Y, dims.Z),
		"capacity", dims.Volume())
	return c, nil
}

// unitCount bounds the knot size by the payload length and the oracle limit.
func unitCount(payload []byte) int {
	return max(1, min(len(payload), oracle.MaxUnits))
}

// StorePayload encodes payload as a knot of the given type and places it
// at the first free cell of the named crystal.
//
// The knot id is derived from the payload's SHA-256, and the fidelity and
// integrity draws are seeded from the same hash, so storing the same
// payload twice produces two identical knots in different cells. On any
// error the crystal is left unchanged.
func (d *Datacenter) StorePayload(name string, payload []byte, kind qstate.KnotType) (Placement, error) {
	kind, err := qstate.ParseKnotType(string(kind))
	if err != nil {
		return Placement{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.crystals[name]
	if !ok {
		return Placement{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	if _, free := c.FirstFree(); !free {
		return Placement{}, fmt.Errorf("%q: %w", name, crystal.ErrCapacityExceeded)
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	knot, err := d.buildKnot("nudo_"+hash[:8], kind, payload, sum)
	if err != nil {
		return Placement{}, fmt.Errorf("prepare knot for %q: %w", name, err)
	}

	pos, err := c.PlaceFirstFree(knot)
	if err != nil {
		return Placement{}, err
	}

	d.logger.Debug("payload stored",
		"crystal", name,
		"knot", knot.ID,
		"type", string(kind),
		"position", pos.String(),
		"units", len(knot.Cubits))

	return Placement{
		Crystal:  name,
		KnotID:   knot.ID,
		Hash:     hash,
		Type:     kind,
		Position: pos,
		Units:    len(knot.Cubits),
	}, nil
}

func (d *Datacenter) buildKnot(id string, kind qstate.KnotType, payload []byte, sum [32]byte) (*qstate.Knot, error) {
	n := unitCount(payload)
	prep, err := d.oracle.Prepare(kind, payload, n)
	if err != nil {
		return nil, err
	}

	// The oracle seeds from the first half of the hash; draws here use
	// the second half.
	r := rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(sum[16:24]),
		binary.BigEndian.Uint64(sum[24:32]),
	))

	now := time.Now()
	cubits := make([]*qstate.Cubit, len(prep.Units))
	for i, u := range prep.Units {
		cubits[i] = &qstate.Cubit{
			ID:        fmt.Sprintf("%s_q%d", id, i),
			State:     qstate.StateCoherent,
			Alpha:     u.Alpha,
			Beta:      u.Beta,
			Phase:     u.Phase,
			Fidelity:  0.88 + r.Float64()*0.11,
			CreatedAt: now,
		}
	}

	return &qstate.Knot{
		ID:           id,
		Type:         kind,
		Cubits:       cubits,
		Connections:  []int{},
		Integrity:    0.9 + r.Float64()*0.1,
		Entanglement: prep.Entanglement,
		Descriptor:   prep.Descriptor,
	}, nil
}

// State returns the snapshot of the named crystal.
func (d *Datacenter) State(name string) (crystal.State, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.crystals[name]
	if !ok {
		return crystal.State{}, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return c.Snapshot(), nil
}

// States returns a snapshot of every crystal keyed by name.
func (d *Datacenter) States() map[string]crystal.State {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make(map[string]crystal.State, len(d.crystals))
	for name, c := range d.crystals {
		out[name] = c.Snapshot()
	}
	return out
}

// List returns the crystal names in sorted order.
func (d *Datacenter) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.names()
}

func (d *Datacenter) names() []string {
	names := make([]string, 0, len(d.crystals))
	for name := range d.crystals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of crystals.
func (d *Datacenter) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.crystals)
}

// Knot returns the knot at pos in the named crystal.
func (d *Datacenter) Knot(name string, pos crystal.Position) (*qstate.Knot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.crystals[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	k, ok := c.At(pos)
	if !ok {
		return nil, fmt.Errorf("%q has no knot at %s: %w", name, pos, ErrNotFound)
	}
	return k, nil
}

// Tx is the view of the datacenter handed to View and Mutate callbacks.
// It must not be retained after the callback returns.
type Tx struct {
	d *Datacenter
}

// Names returns the crystal names in sorted order.
func (tx Tx) Names() []string {
	return tx.d.names()
}

// Crystal returns the named crystal.
func (tx Tx) Crystal(name string) (*crystal.Crystal, bool) {
	c, ok := tx.d.crystals[name]
	return c, ok
}

// Each calls fn for every crystal in name order.
func (tx Tx) Each(fn func(*crystal.Crystal)) {
	for _, name := range tx.d.names() {
		fn(tx.d.crystals[name])
	}
}

// View runs fn under the read lock. fn must not mutate knots or cubits.
func (d *Datacenter) View(fn func(Tx) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return fn(Tx{d: d})
}

// Mutate runs fn under the write lock. This is the only path through
// which knots and cubits may be modified after placement.
func (d *Datacenter) Mutate(fn func(Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(Tx{d: d})
}
