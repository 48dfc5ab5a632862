// Package learning provides implementations of core.LearningStore plus the
// ranking and recommendation logic built on top of recorded quality.
//
// Included:
//   - InMemoryStore: process-local, append-only, RWMutex protected.
//   - SQLStore: SQLite-backed (modernc.org/sqlite, pure Go, no cgo).
//   - Rank / Recommend: turn recorded runs into configuration suggestions.
//
// Both stores only ever insert; historical records are never updated in
// place, so concurrent appends from independent runs cannot corrupt prior
// observations.
package learning
