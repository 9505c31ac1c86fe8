package config

import (
	"time"

	"github.com/mrz1836/courier/internal/chain"
	"github.com/mrz1836/courier/internal/saga"
)

// Public RPC endpoints used when nothing is configured. PublicNode requires
// no API key.
//
//nolint:gochecknoglobals // configuration defaults
var defaultRPCs = []NetworkConfig{
	{ChainID: chain.Mainnet, RPC: "https://ethereum-rpc.publicnode.com", PrivateRPC: "https://rpc.flashbots.net", Enabled: true},
	{ChainID: chain.Optimism, RPC: "https://optimism-rpc.publicnode.com", Enabled: true},
	{ChainID: chain.BNB, RPC: "https://bsc-rpc.publicnode.com", Enabled: true},
	{ChainID: chain.Polygon, RPC: "https://polygon-bor-rpc.publicnode.com", Enabled: true},
	{ChainID: chain.Base, RPC: "https://base-rpc.publicnode.com", Enabled: true},
	{ChainID: chain.Arbitrum, RPC: "https://arbitrum-one-rpc.publicnode.com", Enabled: true},
	{ChainID: chain.Sepolia, RPC: "https://ethereum-sepolia-rpc.publicnode.com", Enabled: false},
}

// Defaults returns the default configuration.
func Defaults() *Config {
	networks := make([]NetworkConfig, len(defaultRPCs))
	copy(networks, defaultRPCs)

	return &Config{
		Version:  1,
		Home:     "~/.courier",
		Networks: networks,
		Submission: SubmissionConfig{
			TaskTimeout:       saga.DefaultTimeout,
			SerializeAccounts: true,
			ApprovalMode:      ApprovalMax,
			SlippageBps:       50,
		},
		Watcher: WatcherConfig{
			Interval:       15 * time.Second,
			RetryAttempts:  3,
			RetryBaseDelay: time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Logging: LoggingConfig{
			Level:  "error",
			Format: FormatJSON,
			File:   "courier.log",
		},
		Store:    StoreConfig{Dir: "txdb"},
		Keystore: KeystoreConfig{Dir: "keystore"},
	}
}
