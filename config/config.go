// Package config loads gosshc's on-disk YAML configuration into the
// shapes lib/ssh and cmd/gosshc need.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/XuGuangnian/gossh/lib/ssh"
)

// File is the top-level shape of a gosshc YAML config file.
type File struct {
	Target    TargetConfig    `yaml:"target"`
	Algorithm AlgorithmConfig `yaml:"algorithm"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Proxy     ProxyConfig     `yaml:"proxy"`
}

// TargetConfig names the server to connect to and the shell to request.
type TargetConfig struct {
	Address string        `yaml:"address"`
	Timeout time.Duration `yaml:"timeout"`
	Term    string        `yaml:"term"`
}

// AlgorithmConfig overrides the negotiator's preference lists. Any list
// left empty falls back to lib/ssh's built-in defaults.
type AlgorithmConfig struct {
	KeyExchanges      []string `yaml:"kex"`
	HostKeyAlgorithms []string `yaml:"host_key"`
	Ciphers           []string `yaml:"cipher"`
	MACs              []string `yaml:"mac"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the optional Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// ProxyConfig configures an optional SOCKS5 jump proxy dialed before
// reaching TargetConfig.Address.
type ProxyConfig struct {
	Address  string `yaml:"address"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gosshc: read config: %w", err)
	}
	f := &File{
		Log: LogConfig{Level: "info", Format: "text"},
	}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("gosshc: parse config: %w", err)
	}
	if f.Target.Address == "" {
		return nil, fmt.Errorf("gosshc: target.address is required")
	}
	return f, nil
}

// SSHConfig builds an ssh.Config from the algorithm overrides, leaving
// unset fields to ssh.Config.SetDefaults.
func (f *File) SSHConfig() *ssh.Config {
	return &ssh.Config{
		KeyExchanges:      f.Algorithm.KeyExchanges,
		HostKeyAlgorithms: f.Algorithm.HostKeyAlgorithms,
		Ciphers:           f.Algorithm.Ciphers,
		MACs:              f.Algorithm.MACs,
		Timeout:           f.Target.Timeout,
	}
}
