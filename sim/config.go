package sim

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is wrapped by every configuration validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Reward schemes.
const (
	RewardUnit  = "unit"  // AcceptReward per admitted request
	RewardSlots = "slots" // AcceptReward × slot width per admitted request
)

// ValidRewardSchemes is the set of recognized reward scheme names.
var ValidRewardSchemes = map[string]bool{"": true, RewardUnit: true, RewardSlots: true}

// EnvConfig groups the reward parameters of an Environment.
type EnvConfig struct {
	RewardScheme string  `yaml:"reward_scheme"` // "unit" (default) or "slots"
	AcceptReward float64 `yaml:"accept_reward"` // reward for an admitted request (default +1)
	BlockReward  float64 `yaml:"block_reward"`  // reward for a blocked request (default -1)
}

// DefaultEnvConfig returns the policy-agnostic reward defaults.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{
		RewardScheme: RewardUnit,
		AcceptReward: 1,
		BlockReward:  -1,
	}
}

// Validate checks the reward scheme name and that rewards are finite.
func (c EnvConfig) Validate() error {
	if !ValidRewardSchemes[c.RewardScheme] {
		return fmt.Errorf("%w: unknown reward scheme %q; valid: unit, slots", ErrInvalidConfig, c.RewardScheme)
	}
	for name, v := range map[string]float64{"accept_reward": c.AcceptReward, "block_reward": c.BlockReward} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s must be a finite number, got %f", ErrInvalidConfig, name, v)
		}
	}
	return nil
}

func (c EnvConfig) acceptReward(req *Request) float64 {
	if c.RewardScheme == RewardSlots {
		return c.AcceptReward * float64(req.SlotWidth)
	}
	return c.AcceptReward
}
