package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/config"
	"github.com/catflap/catflap/internal/logging"
	"github.com/catflap/catflap/internal/runtime"
	"github.com/catflap/catflap/internal/snapshot"
	"github.com/catflap/catflap/internal/template"
)

var (
	cfgFile   string
	verbosity int
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "catflap",
	Short: "Pet door event output generator",
	Long: `catflap renders output templates whenever the pet door fires an event.

It performs the following core functions:
  - Template generation to files, an MQTT broker and a local archive
  - Template previews against a saved state snapshot
  - Configuration and template validation
  - Starter template scaffolding
  - A reference of every built-in template variable`,
	SilenceUsage: true, // Don't print usage on errors unrelated to flags
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.SetupLogger(verbosity, "")
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "catflap.yml", "config file path (yaml or toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug, -vvv trace)")
}

// GetConfigPath returns the configured config file path. The default path
// is only used when the file exists.
func GetConfigPath() string {
	if rootCmd.PersistentFlags().Changed("config") {
		return cfgFile
	}
	if _, err := os.Stat(cfgFile); err != nil {
		return ""
	}
	return cfgFile
}

// loadConfig loads the configuration and attaches the configured log file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigPath())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if cfg.Log.File != "" {
		logging.SetupLogger(verbosity, cfg.Log.File)
	}
	return cfg, nil
}

// configDir is the base for relative template globs.
func configDir() string {
	if path := GetConfigPath(); path != "" {
		return filepath.Dir(path)
	}
	return "."
}

// newEngine creates an engine with the configured user variables.
func newEngine(cfg *config.Config) (*template.Engine, error) {
	engine := template.New()

	vars, err := cfg.UserVariables()
	if err != nil {
		return nil, fmt.Errorf("parsing user variables: %w", err)
	}
	for _, v := range vars {
		if err := engine.AddUserVariable(v.Name, v.Value); err != nil {
			return nil, fmt.Errorf("adding user variable %s: %w", v.Name, err)
		}
	}

	return engine, nil
}

// loadTemplates loads every configured template file into engine, except
// the files in skip.
func loadTemplates(engine *template.Engine, cfg *config.Config, skip ...string) error {
	files, err := cfg.TemplateFiles(configDir())
	if err != nil {
		return fmt.Errorf("listing templates: %w", err)
	}

	skipped := make(map[string]bool, len(skip))
	for _, path := range skip {
		if abs, err := filepath.Abs(path); err == nil {
			skipped[abs] = true
		}
	}

	for _, file := range files {
		if abs, err := filepath.Abs(file); err == nil && skipped[abs] {
			continue
		}
		if _, err := engine.LoadFile(file); err != nil {
			return fmt.Errorf("loading template %s: %w", file, err)
		}
	}
	return nil
}

// buildSnapshot reads the snapshot file at path, or builds an idle snapshot
// from the configuration when path is empty. Output paths missing from the
// file are taken from the configuration.
func buildSnapshot(cfg *config.Config, path string) (*snapshot.Snapshot, error) {
	snap := &snapshot.Snapshot{Settings: cfg.Device}
	if path != "" {
		var err error
		snap, err = snapshot.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
	}

	if snap.Paths == (snapshot.Paths{}) {
		snap.Paths = cfg.Paths
	}
	if snap.Time.IsZero() {
		snap.Time = time.Now()
	}
	if snap.Build.Version == "" {
		snap.Build = snapshot.Build{
			Version:    runtime.Version,
			GitHash:    runtime.GitCommit,
			GitTainted: runtime.Tainted(),
		}
	}

	return snap, nil
}
