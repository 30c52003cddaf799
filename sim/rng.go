package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand"
)

// === ExperimentKey ===

// ExperimentKey uniquely identifies a reproducible sampling run.
// Two runs with the same ExperimentKey and identical configuration
// MUST produce bit-for-bit identical sample sets.
type ExperimentKey int64

// NewExperimentKey creates an ExperimentKey from a seed value.
func NewExperimentKey(seed int64) ExperimentKey {
	return ExperimentKey(seed)
}

// === Subsystem Constants ===

// SubsystemSampler is the RNG subsystem prefix for the annealing sampler.
const SubsystemSampler = "sampler"

// SubsystemAnnealTime returns the sampler subsystem name for one anneal time.
// Each anneal time draws from its own stream so sweep points can run in any order.
func SubsystemAnnealTime(ns float64) string {
	return fmt.Sprintf("%s/anneal_%g", SubsystemSampler, ns)
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG instances per subsystem.
//
// Derivation formula: masterSeed XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Derive the per-subsystem *rand.Rand on one
// goroutine, then hand each one to a single consumer.
type PartitionedRNG struct {
	key        ExperimentKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from an ExperimentKey.
func NewPartitionedRNG(key ExperimentKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	rng := rand.New(rand.NewSource(int64(p.key) ^ fnv1a64(name)))
	p.subsystems[name] = rng
	return rng
}

// Key returns the ExperimentKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() ExperimentKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
