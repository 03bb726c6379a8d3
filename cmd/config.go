package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/searchd/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage searchd configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .searchd.yml with defaults",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the effective configuration",
	RunE:  runConfigValidate,
}

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	const path = ".searchd.yml"

	if _, err := os.Stat(path); err == nil && !configInitForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	starter := config.Default()
	starter.Corpus.Path = "/data/texts/source.txt"

	out, err := yaml.Marshal(starter)
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}

	header := []byte("# searchd configuration\n# All keys can be overridden with SEARCHD_<SECTION>_<KEY> environment variables.\n")
	if err := os.WriteFile(path, append(header, out...), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Wrote %s\n", path)

	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("Configuration OK\n")
	fmt.Printf("  listen:          %s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  corpus:          %s\n", cfg.Corpus.Path)
	fmt.Printf("  reread_on_query: %v\n", cfg.Corpus.RereadOnQuery)
	fmt.Printf("  tls:             %v\n", cfg.TLS.Enabled)
	fmt.Printf("  max_connections: %d (%s)\n", cfg.Server.MaxConnections, cfg.Server.AcceptPolicy)

	return nil
}
