// Package model defines the provider‑agnostic abstractions for talking to
// language models inside insightmesh.
//
// Core goals:
//   - Unify streaming + non‑streaming generation behind a single interface
//   - Keep request/response shapes minimal and transport independent
//   - Classify retryable provider failures (ErrRateLimited, ErrTransient)
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (e.g. OpenAI, Anthropic) implement the Model interface from this
// package so the invoker remains decoupled from vendor SDKs.
package model
