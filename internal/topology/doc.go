// Package topology models the greenhouse hierarchy and its persistence.
//
//	greenhouse ─┬─ greenhouse device
//	            └─ bay ─┬─ bay device
//	                    ├─ bay line ── bay line device
//	                    └─ bay rack
//
// It provides:
//   - Component identifier parsing and resolution ("G_001:B_001:BD_001")
//   - The Repository persistence gateway with a SQLite/PostgreSQL implementation
//   - The Registrar, which registers nodes and subtrees idempotently
//
// Uniqueness of every node is enforced by the schema. The Registrar still
// checks existence first so that repeated registrations are cheap reads,
// but a lost check-then-insert race only ever produces an ignored insert.
package topology
