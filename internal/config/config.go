// Package config loads netzd's TOML configuration file and overlays secrets
// from an env file: structured settings live in one file, secrets stay out
// of it and are merged in separately, adapted here to TOML-plus-overlay
// rather than env-only since this config format needs nested service tables
// and a principal list that don't fit a flat env var namespace.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-envparse"
	"github.com/pelletier/go-toml/v2"
)

// Kind is a configured service's role.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindSecure         Kind = "secure"
	KindConfig         Kind = "config"
)

// Principal is one statically-configured principal.
type Principal struct {
	PID      uint32 `toml:"pid"`
	Name     string `toml:"name"`
	Password string `toml:"password"`
}

// Service is one `[[service]]` table.
type Service struct {
	Kind             Kind   `toml:"kind"`
	Listen           string `toml:"listen"`
	SecureServerAddr string `toml:"secure_server_addr"`
	AccessKey        string `toml:"access_key"`
	VPortServer      uint8  `toml:"vport_server"`
	VPortClient      uint8  `toml:"vport_client"`
}

// Config is netzd's full static configuration.
type Config struct {
	Principals []Principal `toml:"principals"`
	Services   []Service   `toml:"service"`

	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`

	// MetricsAddr, if set, serves /metrics and /debug/pprof on this
	// address.
	MetricsAddr string `toml:"metrics_addr"`

	// MasterSecretSeed seeds the Kerberos master secret (pkg/qcrypto's
	// InitMasterSecret). It never lives in the TOML file — only the env
	// overlay in ApplySecretsOverlay sets it — so a leaked config file
	// alone can't compromise ticket sealing.
	MasterSecretSeed []byte `toml:"-"`
}

// Load parses the TOML file at path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := toml.Unmarshal(buf, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &c, nil
}

// ApplySecretsOverlay reads an env-file (hashicorp/go-envparse's
// KEY=value format, the same format cmd/atlas/main.go's readEnv reads)
// and layers secret overrides onto c:
//
//   - NETZD_MASTER_SECRET_SEED sets c.MasterSecretSeed
//   - NETZD_ACCESS_KEY_<N> overrides c.Services[N].AccessKey, N being the
//     service's index in the config file (0-based)
func (c *Config) ApplySecretsOverlay(envFilePath string) error {
	f, err := os.Open(envFilePath)
	if err != nil {
		return fmt.Errorf("open secrets file: %w", err)
	}
	defer f.Close()

	vars, err := envparse.Parse(f)
	if err != nil {
		return fmt.Errorf("parse secrets file: %w", err)
	}

	if v, ok := vars["NETZD_MASTER_SECRET_SEED"]; ok {
		c.MasterSecretSeed = []byte(v)
	}
	for k, v := range vars {
		idxStr, ok := strings.CutPrefix(k, "NETZD_ACCESS_KEY_")
		if !ok {
			continue
		}
		idx, err := strconv.Atoi(idxStr)
		if err != nil || idx < 0 || idx >= len(c.Services) {
			continue
		}
		c.Services[idx].AccessKey = v
	}
	return nil
}

// Validate checks c for the kinds of mistakes that should fail fast at
// startup rather than surface as a confusing runtime error.
func (c *Config) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("config: no [[service]] entries")
	}
	for i, s := range c.Services {
		switch s.Kind {
		case KindAuthentication, KindSecure, KindConfig:
		default:
			return fmt.Errorf("config: service %d: unknown kind %q", i, s.Kind)
		}
		if s.Listen == "" {
			return fmt.Errorf("config: service %d: listen is required", i)
		}
		if s.Kind != KindConfig && s.AccessKey == "" {
			return fmt.Errorf("config: service %d: access_key is required", i)
		}
	}
	seen := make(map[uint32]bool)
	for _, p := range c.Principals {
		if seen[p.PID] {
			return fmt.Errorf("config: duplicate principal pid %d", p.PID)
		}
		seen[p.PID] = true
	}
	return nil
}
