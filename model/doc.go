// Package model defines the provider-agnostic abstractions and concrete
// helpers for interacting with language models.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition, core.FunctionCall)
//   - Surface reasoning deltas next to answer text where providers expose them
//   - Facilitate lightweight mocking for tests (MockModel, ScriptedModel)
//
// Providers (OpenAI compatible endpoints, Anthropic) implement the Model
// interface so the engine stays decoupled from vendor SDKs.
package model
