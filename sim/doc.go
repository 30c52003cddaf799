// Package sim provides the numerical core of kz-sim: Ising ring models,
// kink statistics of sampled spin states, and the Kibble-Zurek prediction
// derived from an anneal schedule.
//
// # Reading Guide
//
// Start with these files:
//   - bqm.go: the ring model (spins coupled to cyclic neighbours)
//   - kink.go: kink counting with wrap-around and the two defect rules
//   - theory.go: the Kibble-Zurek rate constant and density scaling law
//   - schedule.go: schedule tables and the crossing-index search
//
// # Architecture
//
// The sim package holds value types and pure functions; collaborators live in
// sub-packages:
//   - sim/embedding/: logical-to-physical qubit mappings and unembedding
//   - sim/jobs/: job status lookup, polling and an in-process job service
//   - sim/store/: SQLite ledger of submitted jobs and their results
//
// # Key Interfaces
//
//   - Sampler: draws sample sets for a model (AnnealingSampler is the local one)
//   - DefectRule: decides which sign switches count as kinks
package sim
