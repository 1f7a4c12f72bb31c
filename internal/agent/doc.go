// Package agent runs tool-augmented chat turns.
//
// Run is the multi-step loop: it streams one model call per step, forwards the
// output to a sink, folds the response into the conversation and continues
// while the model asks for more. Service wires Run to the configured models,
// tools and conversation store.
package agent
