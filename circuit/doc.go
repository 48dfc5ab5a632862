// Package circuit implements the four execution topologies of a run as
// interchangeable strategies sharing one layer processor.
//
// Each Strategy decides two things only:
//   - how archetypes are invoked within a layer (one at a time, or all
//     concurrently behind a join barrier)
//   - how layer N's input context is built from layer N-1
//
// The cross-layer loop, depth and termination policy live in the engine.
//
// Strategies:
//   - Sequential: registry order, each archetype sees earlier perspectives
//     of the same layer and the previous layer's synthesis
//   - Parallel: identical context for every archetype, join before synthesis
//   - Recursive: previous synthesis, raw perspectives and tensions with a
//     refine-or-rebut directive, sequential within the layer
//   - Hybrid: odd layers parallel, even layers recursive
package circuit
