package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/courier/internal/chain"
)

// Environment variable names.
const (
	EnvHome              = "COURIER_HOME"
	EnvLogLevel          = "COURIER_LOG_LEVEL"
	EnvLogFormat         = "COURIER_LOG_FORMAT"
	EnvTaskTimeout       = "COURIER_TASK_TIMEOUT"
	EnvSerializeAccounts = "COURIER_SERIALIZE_ACCOUNTS"
	EnvMetricsAddr       = "COURIER_METRICS_ADDR"

	// EnvRPCPrefix and EnvPrivateRPCPrefix are followed by the decimal chain id.
	EnvRPCPrefix        = "COURIER_RPC_"
	EnvPrivateRPCPrefix = "COURIER_PRIVATE_RPC_"
)

// ApplyEnvironment applies environment variable overrides to cfg.
// An RPC override for a supported chain missing from cfg adds it enabled.
//
//nolint:gocognit // sequential override checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		cfg.Logging.Format = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvTaskTimeout); v != "" {
		if d, ok := parseTimeout(v); ok {
			cfg.Submission.TaskTimeout = d
		}
	}
	if v := os.Getenv(EnvSerializeAccounts); v != "" {
		cfg.Submission.SerializeAccounts = parseBool(v)
	}
	if v := os.Getenv(EnvMetricsAddr); v != "" {
		cfg.Metrics.ListenAddr = v
	}

	for _, id := range chain.SupportedChains() {
		rpc := strings.TrimSpace(os.Getenv(EnvRPCPrefix + id.String()))
		private := strings.TrimSpace(os.Getenv(EnvPrivateRPCPrefix + id.String()))
		if rpc == "" && private == "" {
			continue
		}
		n, ok := cfg.Network(id)
		if !ok {
			cfg.Networks = append(cfg.Networks, NetworkConfig{ChainID: id, Enabled: true})
			n = &cfg.Networks[len(cfg.Networks)-1]
		}
		if rpc != "" {
			n.RPC = rpc
		}
		if private != "" {
			n.PrivateRPC = private
		}
	}
}

// parseTimeout accepts a Go duration or a whole number of seconds.
func parseTimeout(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		if secs <= 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
