package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/courier/internal/chain"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	require.NoError(t, cfg.Validate())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()
	path := Path(t.TempDir())

	cfg := Defaults()
	cfg.Submission.TaskTimeout = 2 * time.Minute
	cfg.Submission.ApprovalMode = ApprovalExact
	cfg.Networks = cfg.Networks[:1]
	cfg.Networks[0].RPC = "https://rpc.example.org"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
	assert.True(t, loaded.ApproveExact())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("submission:\n  task_timeout: 45s\nlogging:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Submission.TaskTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ApprovalMax, cfg.Submission.ApprovalMode)
	assert.Len(t, cfg.Networks, len(defaultRPCs))
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("networks: {"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, courierr.ErrConfigInvalid)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unsupported chain", func(c *Config) { c.Networks[0].ChainID = 999 }, "networks.chain_id"},
		{"bad rpc", func(c *Config) { c.Networks[0].RPC = "localhost:8545" }, "networks.rpc"},
		{"bad private rpc", func(c *Config) { c.Networks[0].PrivateRPC = "ftp://relay" }, "networks.private_rpc"},
		{"approval mode", func(c *Config) { c.Submission.ApprovalMode = "unlimited" }, "submission.approval_mode"},
		{"slippage", func(c *Config) { c.Submission.SlippageBps = 10_001 }, "submission.slippage_bps"},
		{"timeout", func(c *Config) { c.Submission.TaskTimeout = -time.Second }, "submission.task_timeout"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, courierr.ErrConfigInvalid)

			var ce *courierr.CourierError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Details["field"])
		})
	}
}

func TestValidate_DisabledNetworkSkipsURLCheck(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Networks[0].Enabled = false
	cfg.Networks[0].RPC = ""
	require.NoError(t, cfg.Validate())
}

func TestProviderNetworks(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	nets := cfg.ProviderNetworks()
	require.Len(t, nets, len(cfg.Networks))
	assert.Equal(t, chain.Mainnet, nets[0].ChainID)
	assert.Equal(t, cfg.Networks[0].RPC, nets[0].RPCURL)
	assert.Equal(t, "https://rpc.flashbots.net", nets[0].PrivateRPC)
	assert.True(t, nets[0].Enabled)

	n, ok := cfg.Network(chain.Sepolia)
	require.True(t, ok)
	assert.False(t, n.Enabled)
	_, ok = cfg.Network(chain.ID(5))
	assert.False(t, ok)
}

func TestDefaults_AreIndependent(t *testing.T) {
	t.Parallel()
	a := Defaults()
	a.Networks[0].RPC = "https://changed.example"
	assert.NotEqual(t, a.Networks[0].RPC, Defaults().Networks[0].RPC)
}

func TestResolvePath(t *testing.T) {
	t.Parallel()
	cfg := Defaults()
	cfg.Home = "/srv/courier"

	assert.Equal(t, "/srv/courier/txdb", cfg.ResolvePath("txdb"))
	assert.Equal(t, "/var/lib/txdb", cfg.ResolvePath("/var/lib/txdb"))
	assert.Empty(t, cfg.ResolvePath(""))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "keys"), cfg.ResolvePath("~/keys"))
}
