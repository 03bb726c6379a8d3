package config

import (
	"fmt"
	"os"
	"strings"
)

// Validate validates configuration values for security and correctness.
// It is called by Load and again by the server before startup so that
// hand-constructed configurations in tests go through the same checks.
func Validate(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateCorpusConfig(&config.Corpus); err != nil {
		return fmt.Errorf("corpus config: %w", err)
	}

	if err := validateTLSConfig(&config.TLS); err != nil {
		return fmt.Errorf("tls config: %w", err)
	}

	return nil
}

// validateServerConfig validates listener configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 is allowed so tests can bind a system-assigned port
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	if config.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1, got %d", config.MaxConnections)
	}

	switch config.AcceptPolicy {
	case AcceptPolicyWait, AcceptPolicyReject:
	default:
		return fmt.Errorf("accept_policy must be %q or %q, got %q",
			AcceptPolicyWait, AcceptPolicyReject, config.AcceptPolicy)
	}

	if config.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", config.IdleTimeout)
	}

	if config.MaxPayload < 1 {
		return fmt.Errorf("max_payload must be at least 1 byte, got %d", config.MaxPayload)
	}

	return nil
}

// validateCorpusConfig validates the corpus file settings. The path must be
// set and readable; the server refuses to start against a missing corpus.
func validateCorpusConfig(config *CorpusConfig) error {
	if config.Path == "" {
		return fmt.Errorf("corpus path is required")
	}

	info, err := os.Stat(config.Path)
	if err != nil {
		return fmt.Errorf("corpus path %s is not accessible: %w", config.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("corpus path %s is a directory, expected a file", config.Path)
	}

	switch config.Strategy {
	case StrategyHashSet, StrategyScan, StrategyMmap, StrategyBinary:
	default:
		return fmt.Errorf("unknown search strategy %q", config.Strategy)
	}

	if config.Watch && config.RereadOnQuery {
		return fmt.Errorf("corpus watch is redundant with reread_on_query; enable one or the other")
	}

	if config.WatchDebounce <= 0 {
		return fmt.Errorf("watch_debounce must be positive, got %s", config.WatchDebounce)
	}

	return nil
}

// validateTLSConfig checks that certificate material exists when TLS is
// enabled. Startup aborts on missing material rather than silently falling
// back to plaintext.
func validateTLSConfig(config *TLSConfig) error {
	if !config.Enabled {
		return nil
	}

	if config.CertFile == "" || config.KeyFile == "" {
		return fmt.Errorf("tls enabled but cert_file or key_file is missing")
	}

	for _, path := range []string{config.CertFile, config.KeyFile} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls material %s is not accessible: %w", path, err)
		}
	}

	if config.CAFile != "" {
		if _, err := os.Stat(config.CAFile); err != nil {
			return fmt.Errorf("tls ca_file %s is not accessible: %w", config.CAFile, err)
		}
	}

	return nil
}
