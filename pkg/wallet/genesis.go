package wallet

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Genesis is the YAML shape a wallet instance is initialized from. It mirrors
// the initialize call of the on-ledger contract: owners, the three
// thresholds, the designated proposer, the timelock delay and the initial
// whitelist.
type Genesis struct {
	Wallet     string           `yaml:"wallet"`
	Owners     []string         `yaml:"owners"`
	Thresholds Thresholds       `yaml:"thresholds"`
	Proposer   string           `yaml:"proposer"`
	DelaySec   uint64           `yaml:"timelock_delay_seconds"`
	Whitelist  []WhitelistEntry `yaml:"whitelist"`
}

// LoadGenesis reads and parses a genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	var g Genesis
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	return &g, nil
}

// Policy builds the validated policy described by the genesis document.
func (g *Genesis) Policy() (*Policy, error) {
	owners := make([]Address, len(g.Owners))
	for i, o := range g.Owners {
		owners[i] = NormalizeAddress(o)
	}
	var proposer Address
	if g.Proposer != "" {
		proposer = NormalizeAddress(g.Proposer)
	}
	return NewPolicy(owners, g.Thresholds, proposer, g.DelaySec, g.Whitelist)
}

// Address returns the wallet's own normalized address.
func (g *Genesis) Address() (Address, error) {
	a := NormalizeAddress(g.Wallet)
	if err := a.Validate(); err != nil {
		return "", err
	}
	return a, nil
}
