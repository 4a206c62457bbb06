// Package datacenter holds the named crystals of a knot datacenter and turns
// opaque payloads into knots placed inside them.
//
// # Overview
//
// A Datacenter is the single store behind the TCP command server and the AI
// sweep. It owns a map of crystals keyed by name and serializes every access
// through one RWMutex:
//
//	             ┌───────────────────────────────┐
//	 STATUS ────>│ View(fn)    read lock          │
//	 LIST   ────>│                                │
//	 INFO   ────>│   map[name]*crystal.Crystal    │
//	             │                                │
//	 store  ────>│ Mutate(fn)  write lock         │
//	 sweep  ────>│                                │
//	             └───────────────────────────────┘
//
// Crystals carry their own lock as well, so a *crystal.Crystal obtained
// through a Tx may be used on its own once the transaction returns.
//
// # Storing payloads
//
// StorePayload hashes the payload with SHA-256. The knot id is "nudo_"
// followed by the first eight hex digits of the hash, and the knot gets
// between one and eight cubits, one per payload byte. Amplitudes come from
// the configured oracle.Oracle seeded with the payload; fidelity and
// integrity are drawn from a source seeded by the hash, so storing the same
// payload twice yields identical knots. The knot lands in the first empty
// cell in x, y, z order.
//
// # Errors
//
//   - ErrNotFound: no crystal with that name
//   - ErrDuplicateName: CreateCrystal with a name already in use
//   - ErrInvalidName: name is empty or contains whitespace, which the
//     line protocol could not address
//   - crystal.ErrCapacityExceeded: every cell is occupied
//   - qstate.ErrUnknownKnotType: knot type outside the five known ones
//
// A failed StorePayload leaves the crystal unchanged.
package datacenter
