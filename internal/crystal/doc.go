// Package crystal implements the spatial storage unit of the knot
// datacenter: a fixed-size three dimensional grid in which every cell holds
// at most one knot.
//
// # Overview
//
// A crystal is a self-contained, thread-safe container with a fixed capacity
// (X*Y*Z cells), a name that is unique within its datacenter, and a sparse
// map from cell position to knot. Knots are only ever added; a crystal
// never removes or moves one.
//
// # Layout
//
// Cells are addressed by Position{X, Y, Z} with every coordinate in
// [0, dim). Free cells are searched in row-major order, X outermost and Z
// fastest:
//
//	(0,0,0) (0,0,1) ... (0,0,Z-1)
//	(0,1,0) (0,1,1) ... (0,Y-1,Z-1)
//	(1,0,0)         ... (X-1,Y-1,Z-1)
//
// A (2,2,2) crystal therefore fills (0,0,0), (0,0,1), (0,1,0), (0,1,1),
// (1,0,0) and so on, and rejects the ninth placement with
// ErrCapacityExceeded.
//
// # Neighbourhood
//
// Two cells are neighbours when every coordinate differs by at most one.
// Neighbors reports only the occupied cells among those 26 offsets.
//
// # Energy
//
// The energy of a crystal is the sum over its knots of
// |Knot.Invariant()|^2. It is computed on demand and never cached, so it
// always reflects fidelity and integrity changes made by the AI engines.
//
// # Snapshots
//
// Snapshot returns a State that serializes with the wire keys used by the
// INFO and STATUS commands:
//
//	{
//	  "nombre": "Cristal_Alpha",
//	  "dimensiones": [4, 4, 4],
//	  "capacidad_total": 64,
//	  "capacidad_usada": 3,
//	  "ocupacion": "4.69%",
//	  "energia_total": 1.73,
//	  "timestamp": "2025-01-01T12:00:00Z"
//	}
//
// # Concurrency
//
// Each crystal carries its own RWMutex protecting the cell map, so a
// crystal can be used on its own. Knots and cubits reached through At or
// Each are not protected by that lock; the datacenter serializes every
// knot mutation behind its own lock.
//
// # Errors
//
//   - ErrInvalidDimensions: New with a non-positive dimension or more than
//     MaxVolume cells
//   - ErrOutOfBounds: Place outside the grid
//   - ErrOccupied: Place on a taken cell
//   - ErrCapacityExceeded: PlaceFirstFree on a full crystal
//
// All are wrapped with context and should be tested with errors.Is.
package crystal
