package wallet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const genesisYAML = `
wallet: "0x00000000000000000000000000000000000000aa"
owners:
  - "0x0000000000000000000000000000000000000010"
  - "0x0000000000000000000000000000000000000020"
  - "0x0000000000000000000000000000000000000030"
thresholds:
  management: 3
  execution: 2
  revocation: 1
proposer: "0x0000000000000000000000000000000000000077"
timelock_delay_seconds: 60
whitelist:
  - target: "0x00000000000000000000000000000000000000bb"
    selector: "0xdeadbeef"
    max_value: 1000
  - target: "0x0000000000000000000000000000000000000000"
    selector: "0x878df11b"
    max_value: 0
`

func TestLoadGenesis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(genesisYAML), 0o600))

	g, err := LoadGenesis(path)
	require.NoError(t, err)

	addr, err := g.Address()
	require.NoError(t, err)
	assert.Equal(t, Address("0x00000000000000000000000000000000000000aa"), addr)

	p, err := g.Policy()
	require.NoError(t, err)
	assert.Equal(t, uint(3), p.OwnerCount())
	assert.Equal(t, Thresholds{Management: 3, Execution: 2, Revocation: 1}, p.Thresholds())
	assert.Equal(t, uint64(60), p.Delay())
	assert.True(t, p.CanPropose("0x0000000000000000000000000000000000000077"))

	entry, ok := p.Whitelist("0x00000000000000000000000000000000000000bb", "0xdeadbeef")
	require.True(t, ok)
	assert.Equal(t, uint64(1000), entry.MaxValue)
	_, ok = p.Whitelist(ZeroAddress, "0x878df11b")
	assert.True(t, ok)
}

func TestLoadGenesisMissingFile(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestGenesisInvalidPolicy(t *testing.T) {
	g := &Genesis{
		Wallet:     "0x00000000000000000000000000000000000000aa",
		Owners:     []string{"0x0000000000000000000000000000000000000010"},
		Thresholds: Thresholds{Management: 2, Execution: 1, Revocation: 1},
	}
	_, err := g.Policy()
	assert.ErrorIs(t, err, ErrThresholdHigherThanOwnersCount)
}
