// Package sim provides the per-replica routing and spectrum assignment (RSA)
// environment for elastic optical networks.
//
// # Reading Guide
//
// Start with these files to understand the simulation kernel:
//   - request.go: Request (what traffic emits) and Connection (what an admitted request becomes)
//   - environment.go: the Reset / BeginPhase / Step state machine and release ordering
//   - spectrum.go: per-link slot occupancy and feasibility queries
//
// # Architecture
//
// The sim package defines the environment and the policy boundary;
// everything else lives in sub-packages:
//   - sim/topology/: immutable node/link graph and k-shortest candidate paths
//   - sim/traffic/: seeded request generation (arrival, holding, pair, width streams)
//   - sim/policy/: the closed set of named decision policies
//   - sim/evaluator/: warm-up and measurement drivers, the vectorized replica pool, best-run tracking
//   - sim/trace/: outcome records and their summaries
//   - sim/store/: experience persistence
//
// # Key Interfaces
//
//   - Policy: map an Observation to an Action (reject, or path plus first slot)
//   - Preparer: optional one-time setup against the topology
//   - RequestSource: deterministic, reseedable request sequence
package sim
