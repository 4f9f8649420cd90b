// Package config loads the YAML tunables that are inconvenient to express
// as flat env vars: fraud thresholds, the swarm's initial agent roster,
// and the router's bridge/chain roster. Grounded on the teacher's env-var
// config style generalized with gopkg.in/yaml.v3, the pattern used by the
// ChoSanghyuk-blackholedex and SonHaXuan-SecureWearTrade teachers for their
// structured config files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the engine's structured, file-backed configuration.
type Config struct {
	Fraud  FraudConfig   `yaml:"fraud"`
	Swarm  SwarmConfig   `yaml:"swarm"`
	Router RouterConfig  `yaml:"router"`
	Yield  YieldConfig   `yaml:"yield"`
}

type FraudConfig struct {
	VelocityThreshold1h int     `yaml:"velocity_threshold_1h"`
	VelocityThreshold5m int     `yaml:"velocity_threshold_5m"`
	DeviationThreshold  float64 `yaml:"deviation_threshold"`
}

type AgentConfig struct {
	ID     string  `yaml:"id"`
	Role   string  `yaml:"role"`
	Weight float64 `yaml:"weight"`
}

type SwarmConfig struct {
	ConsensusThreshold float64       `yaml:"consensus_threshold"`
	Agents             []AgentConfig `yaml:"agents"`
}

type BridgeConfig struct {
	Name            string   `yaml:"name"`
	SupportedChains []string `yaml:"supported_chains"`
	BaseFeeUSD      float64  `yaml:"base_fee_usd"`
	FeePercent      float64  `yaml:"fee_percent"`
	AvgSeconds      int      `yaml:"avg_seconds"`
	MinAmount       float64  `yaml:"min_amount"`
	MaxAmount       float64  `yaml:"max_amount"`
	Reliability     float64  `yaml:"reliability"`
	GasMultiplier   float64  `yaml:"gas_multiplier"`
}

type RouterConfig struct {
	MaxHops int            `yaml:"max_hops"`
	Chains  []string       `yaml:"chains"`
	Bridges []BridgeConfig `yaml:"bridges"`
}

type ProtocolConfig struct {
	Name       string  `yaml:"name"`
	APY        float64 `yaml:"apy"`
	TVL        float64 `yaml:"tvl"`
	RiskTier   string  `yaml:"risk_tier"`
	Weight     float64 `yaml:"weight"`
	MinDeposit float64 `yaml:"min_deposit"`
}

type YieldConfig struct {
	Profile   string           `yaml:"profile"`
	Protocols []ProtocolConfig `yaml:"protocols"`
}

// Default returns a minimal, self-consistent configuration usable when no
// config file is supplied — a two-chain, one-bridge, three-agent fabric, so
// the engine still does something useful out of the box.
func Default() Config {
	return Config{
		Fraud: FraudConfig{VelocityThreshold1h: 10, VelocityThreshold5m: 5, DeviationThreshold: 3.0},
		Swarm: SwarmConfig{
			ConsensusThreshold: 0.66,
			Agents: []AgentConfig{
				{ID: "validator-1", Role: "validator", Weight: 1},
				{ID: "executor-1", Role: "executor", Weight: 1},
				{ID: "risk-assessor-1", Role: "risk-assessor", Weight: 1.5},
			},
		},
		Router: RouterConfig{
			MaxHops: 4,
			Chains:  []string{"ethereum", "solana"},
			Bridges: []BridgeConfig{
				{
					Name: "wormhole", SupportedChains: []string{"ethereum", "solana"},
					BaseFeeUSD: 5, FeePercent: 0.1, AvgSeconds: 180,
					MinAmount: 1, MaxAmount: 1_000_000, Reliability: 0.99, GasMultiplier: 1,
				},
			},
		},
		Yield: YieldConfig{
			Profile: "balanced",
			Protocols: []ProtocolConfig{
				{Name: "aave", APY: 4.5, TVL: 5_000_000_000, RiskTier: "low", Weight: 1, MinDeposit: 100},
				{Name: "yearn-v3", APY: 8.2, TVL: 400_000_000, RiskTier: "medium", Weight: 1, MinDeposit: 250},
			},
		},
	}
}

// Load reads a YAML file at path. If path is empty or the file does not
// exist, Default() is returned so the engine can still boot in dev mode.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}
