// Package agent contains first-class agent implementations for building
// composable reasoning trees:
//
//  1. Hierarchy plumbing shared by all agents (BaseAgent)
//  2. The model-backed conversational / tool-calling agent (LLMAgent)
//  3. A sequential coordination pattern (SequentialAgent)
//
// Design principles:
//   - No hidden global state, explicit wiring via the InvocationContext
//   - Composability, agents nest arbitrarily using SetSubAgents / FindAgent
//   - Extensibility, embed BaseAgent and implement Run plus any custom API
//
// Persistence, model specifics and tool abstractions live in their own
// packages to avoid cyclic deps.
package agent
