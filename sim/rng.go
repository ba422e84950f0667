package sim

import (
	"fmt"
	"hash/fnv"
	"math/rand/v2"
)

// === Subsystem Constants ===

const (
	// SubsystemTraffic is the RNG subsystem for request generation.
	SubsystemTraffic = "traffic"

	// SubsystemPolicy is the RNG subsystem for policies with internal randomness.
	SubsystemPolicy = "policy"
)

// SubsystemReplica returns the subsystem name for replica N.
func SubsystemReplica(id int) string {
	return fmt.Sprintf("replica_%d", id)
}

// ReplicaSeed derives the seed of replica id from a base seed.
// The derivation depends only on (base, id), so a replica's seed is the
// same no matter how many replicas run or in which order they are scheduled.
func ReplicaSeed(base int64, id int) int64 {
	return base ^ fnv1a64(SubsystemReplica(id))
}

// === PartitionedRNG ===

// PartitionedRNG provides deterministic, isolated RNG streams per subsystem.
//
// Derivation formula: seed XOR fnv1a64(subsystemName), split into the two
// PCG state words. Streams for different subsystems never share state, so
// consuming more draws in one subsystem does not shift another.
//
// Thread-safety: NOT thread-safe. Each replica owns its own instance.
type PartitionedRNG struct {
	seed       int64
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a seed.
func NewPartitionedRNG(seed int64) *PartitionedRNG {
	return &PartitionedRNG{
		seed:       seed,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named subsystem.
// The same subsystem name always returns the same *rand.Rand instance (cached).
// The returned *rand.Rand also satisfies rand.Source, so it can back
// gonum distributions directly.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}
	derived := uint64(p.seed ^ fnv1a64(name))
	rng := rand.New(rand.NewPCG(derived, derived^0x9e3779b97f4a7c15))
	p.subsystems[name] = rng
	return rng
}

// SeedFor returns a derived int64 seed for a subsystem, for collaborators
// that construct their own RNG from a seed rather than a stream.
func (p *PartitionedRNG) SeedFor(name string) int64 {
	return p.seed ^ fnv1a64(name)
}

// Seed returns the seed this PartitionedRNG was created with.
func (p *PartitionedRNG) Seed() int64 {
	return p.seed
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
