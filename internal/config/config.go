// Package config provides configuration management for searchd using Viper
// for flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the SEARCHD_ prefix, validation, and security checks. It
// manages the listener settings, corpus file location and cache mode,
// transport security material, and connection admission limits. The core
// server consumes the resulting Config read-only; it is immutable for the
// process lifetime.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultMaxPayload is the request payload ceiling in bytes. Requests are
// read up to this many bytes before the line terminator is required.
const DefaultMaxPayload = 1024

// Accept policies for connections beyond the configured ceiling.
const (
	AcceptPolicyWait   = "wait"
	AcceptPolicyReject = "reject"
)

// Search strategy names understood by the corpus controller.
const (
	StrategyHashSet = "hashset"
	StrategyScan    = "scan"
	StrategyMmap    = "mmap"
	StrategyBinary  = "binary"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Corpus     CorpusConfig     `yaml:"corpus"`
	TLS        TLSConfig        `yaml:"tls"`
	Auth       AuthConfig       `yaml:"auth"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	MaxConnections int           `yaml:"max_connections"`
	AcceptPolicy   string        `yaml:"accept_policy"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxPayload     int           `yaml:"max_payload"`
}

type CorpusConfig struct {
	Path          string        `yaml:"path"`
	RereadOnQuery bool          `yaml:"reread_on_query"`
	Strategy      string        `yaml:"strategy"`
	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

type AuthConfig struct {
	PSK string `yaml:"psk"`
}

type MonitoringConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsAddr    string `yaml:"metrics_addr"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
}

// Default returns a fully populated configuration with production defaults.
// The corpus path has no sensible default and stays empty.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           44445,
			MaxConnections: 256,
			AcceptPolicy:   AcceptPolicyWait,
			IdleTimeout:    30 * time.Second,
			MaxPayload:     DefaultMaxPayload,
		},
		Corpus: CorpusConfig{
			Strategy:      StrategyMmap,
			WatchDebounce: 300 * time.Millisecond,
		},
		Monitoring: MonitoringConfig{
			MetricsAddr: "127.0.0.1:9090",
			LogLevel:    "info",
			LogFormat:   "text",
		},
	}
}

func Load() (*Config, error) {
	config := Default()

	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	// Apply values set directly via viper (workaround for viper handling of
	// booleans and durations that unmarshal as zero values)
	if viper.IsSet("server.host") {
		config.Server.Host = viper.GetString("server.host")
	}
	if viper.IsSet("server.port") {
		config.Server.Port = viper.GetInt("server.port")
	}
	if viper.IsSet("server.max_connections") {
		config.Server.MaxConnections = viper.GetInt("server.max_connections")
	}
	if viper.IsSet("server.accept_policy") {
		config.Server.AcceptPolicy = viper.GetString("server.accept_policy")
	}
	if viper.IsSet("server.idle_timeout") {
		config.Server.IdleTimeout = viper.GetDuration("server.idle_timeout")
	}
	if viper.IsSet("server.max_payload") {
		config.Server.MaxPayload = viper.GetInt("server.max_payload")
	}

	if viper.IsSet("corpus.path") {
		config.Corpus.Path = viper.GetString("corpus.path")
	}
	if viper.IsSet("corpus.reread_on_query") {
		config.Corpus.RereadOnQuery = viper.GetBool("corpus.reread_on_query")
	}
	if viper.IsSet("corpus.strategy") {
		config.Corpus.Strategy = viper.GetString("corpus.strategy")
	}
	if viper.IsSet("corpus.watch") {
		config.Corpus.Watch = viper.GetBool("corpus.watch")
	}
	if viper.IsSet("corpus.watch_debounce") {
		config.Corpus.WatchDebounce = viper.GetDuration("corpus.watch_debounce")
	}

	if viper.IsSet("tls.enabled") {
		config.TLS.Enabled = viper.GetBool("tls.enabled")
	}
	if viper.IsSet("tls.cert_file") {
		config.TLS.CertFile = viper.GetString("tls.cert_file")
	}
	if viper.IsSet("tls.key_file") {
		config.TLS.KeyFile = viper.GetString("tls.key_file")
	}
	if viper.IsSet("tls.ca_file") {
		config.TLS.CAFile = viper.GetString("tls.ca_file")
	}

	if viper.IsSet("auth.psk") {
		config.Auth.PSK = viper.GetString("auth.psk")
	}

	if viper.IsSet("monitoring.metrics_enabled") {
		config.Monitoring.MetricsEnabled = viper.GetBool("monitoring.metrics_enabled")
	}
	if viper.IsSet("monitoring.metrics_addr") {
		config.Monitoring.MetricsAddr = viper.GetString("monitoring.metrics_addr")
	}
	if viper.IsSet("monitoring.log_level") {
		config.Monitoring.LogLevel = viper.GetString("monitoring.log_level")
	}
	if viper.IsSet("monitoring.log_format") {
		config.Monitoring.LogFormat = viper.GetString("monitoring.log_format")
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}
