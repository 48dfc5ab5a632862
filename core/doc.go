// Package core provides the foundational domain types, interfaces and errors
// shared by every insightmesh component. It defines the core abstractions for:
//
//   - Archetypes (simulated reasoning personas with personality scalars)
//   - Run configurations (question, depth, circuit type, tension parameters)
//   - Layer results, perspectives and tension snapshots
//   - Progress events and terminal run outcomes
//   - Collaborator boundaries (Generator, LearningStore)
//
// The package intentionally keeps orchestration concerns (scheduling, layer
// processing, scoring) out of scope, exposing small interfaces so that model
// providers and learning backends can be swapped freely.
package core
