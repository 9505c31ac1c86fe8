// Package config provides configuration management for courier.
package config

import (
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/fileutil"
	"github.com/mrz1836/courier/internal/provider"
	courierr "github.com/mrz1836/courier/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Home       string           `yaml:"home"`
	Networks   []NetworkConfig  `yaml:"networks"`
	Submission SubmissionConfig `yaml:"submission"`
	Watcher    WatcherConfig    `yaml:"watcher"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Store      StoreConfig      `yaml:"store"`
	Keystore   KeystoreConfig   `yaml:"keystore"`
}

// NetworkConfig defines the RPC endpoints of one chain.
type NetworkConfig struct {
	ChainID    chain.ID `yaml:"chain_id"`
	RPC        string   `yaml:"rpc"`
	PrivateRPC string   `yaml:"private_rpc,omitempty"`
	Enabled    bool     `yaml:"enabled"`
}

// Approval modes.
const (
	ApprovalMax   = "max"
	ApprovalExact = "exact"
)

// SubmissionConfig defines how flows are run.
type SubmissionConfig struct {
	TaskTimeout       time.Duration `yaml:"task_timeout"`
	SerializeAccounts bool          `yaml:"serialize_accounts"`
	PrivateRelaySwaps bool          `yaml:"private_relay_swaps"`
	ApprovalMode      string        `yaml:"approval_mode"`
	SlippageBps       uint32        `yaml:"slippage_bps"`
}

// WatcherConfig defines receipt polling.
type WatcherConfig struct {
	Interval       time.Duration `yaml:"interval"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay"`
}

// RateLimitConfig bounds RPC calls per endpoint.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// MetricsConfig defines the Prometheus listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StoreConfig locates the transaction database.
type StoreConfig struct {
	Dir string `yaml:"dir"`
}

// KeystoreConfig locates encrypted mnemonics.
type KeystoreConfig struct {
	Dir        string `yaml:"dir"`
	WorkFactor int    `yaml:"work_factor"`
}

// Load reads configuration from path on top of Defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, courierr.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, courierr.WithDetails(courierr.WithCause(courierr.ErrConfigInvalid, err), map[string]string{"path": path})
	}
	return cfg, nil
}

// Save writes configuration to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return courierr.Wrap(err, "encoding config")
	}
	return fileutil.WriteAtomic(path, data, fileutil.PrivateFile)
}

// Path returns the default config file path.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// DefaultHome returns the default courier home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".courier"
	}
	return filepath.Join(home, ".courier")
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	for _, n := range c.Networks {
		if !n.ChainID.IsSupported() {
			return invalid("networks.chain_id", n.ChainID.String())
		}
		if !n.Enabled {
			continue
		}
		if !validURL(n.RPC) {
			return invalid("networks.rpc", n.RPC)
		}
		if n.PrivateRPC != "" && !validURL(n.PrivateRPC) {
			return invalid("networks.private_rpc", n.PrivateRPC)
		}
	}
	switch c.Submission.ApprovalMode {
	case ApprovalMax, ApprovalExact:
	default:
		return invalid("submission.approval_mode", c.Submission.ApprovalMode)
	}
	if c.Submission.SlippageBps > 10_000 {
		return invalid("submission.slippage_bps", "must be at most 10000")
	}
	if c.Submission.TaskTimeout < 0 {
		return invalid("submission.task_timeout", c.Submission.TaskTimeout.String())
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case FormatJSON, FormatConsole:
	default:
		return invalid("logging.format", c.Logging.Format)
	}
	return nil
}

// ProviderNetworks converts the network section for the provider manager.
func (c *Config) ProviderNetworks() []provider.Network {
	out := make([]provider.Network, 0, len(c.Networks))
	for _, n := range c.Networks {
		out = append(out, provider.Network{
			ChainID:    n.ChainID,
			RPCURL:     n.RPC,
			PrivateRPC: n.PrivateRPC,
			Enabled:    n.Enabled,
		})
	}
	return out
}

// Network returns the entry for id, if configured.
func (c *Config) Network(id chain.ID) (*NetworkConfig, bool) {
	for i := range c.Networks {
		if c.Networks[i].ChainID == id {
			return &c.Networks[i], true
		}
	}
	return nil, false
}

// ApproveExact reports whether approvals cover only the swap amount.
func (c *Config) ApproveExact() bool {
	return c.Submission.ApprovalMode == ApprovalExact
}

// ResolvePath expands a leading ~ and makes relative paths relative to
// the home directory.
func (c *Config) ResolvePath(p string) string {
	p = expandHome(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(expandHome(c.Home), p)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") && p != "~" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p[1:], "/"))
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
		return u.Host != ""
	default:
		return false
	}
}

func invalid(field, value string) error {
	return courierr.WithDetails(courierr.ErrConfigInvalid, map[string]string{"field": field, "value": value})
}
