// Package core provides the domain models shared across weaveforge:
// targets, actions, and the resolved inputs/artifacts that feed and result
// from running them.
//
// # Design Principles
//
//  1. No implied fields that could affect determinism (e.g., timestamps)
//  2. All fields correspond to explicit data-model requirements
//  3. Structures support exact serialization for reproducible hashing
//
// # Core Types
//
// Target: A declarative definition of a build node.
// ActionRequest / ActionResult: The unit of dispatch a worker consumes and produces.
// Input: A resolved file whose content contributes to a fingerprint.
// Artifact: A file produced by an action and declared in its outputs.
package core
