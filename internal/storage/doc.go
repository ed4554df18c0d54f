// Package storage journals timer rounds and power transitions.
//
// It is an operational record only: nothing read back from it influences
// scheduling. Two drivers are available:
//   - "file": JSON Lines files next to the configured path
//   - "sqlite": a SQLite database (pure Go driver, WAL mode)
package storage
