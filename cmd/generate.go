package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/config"
	"github.com/catflap/catflap/internal/sink"
	"github.com/catflap/catflap/internal/template"
)

var (
	generateSnapshot string
	generateDryRun   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <event>",
	Short: "Generate every template that listens for an event",
	Long: `Generate every template that listens for an event.

Templates are rendered against the snapshot given with --snapshot, or an
idle snapshot built from the configuration. Output goes to files and, when
enabled, to the MQTT broker and the local archive. The command fails if any
template could not be generated.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		if err := loadTemplates(engine, cfg); err != nil {
			return err
		}

		snap, err := buildSnapshot(cfg, generateSnapshot)
		if err != nil {
			return err
		}

		closers, err := attachSinks(engine, cfg)
		defer func() {
			for _, c := range closers {
				c.Close()
			}
		}()
		if err != nil {
			return err
		}

		report, err := engine.Generate(snap, args[0])
		if err != nil {
			return fmt.Errorf("generating %s: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		for _, o := range report.Outputs {
			fmt.Fprintf(out, "%s -> %s\n", o.Template, o.Path)
		}
		for _, f := range report.Failures {
			fmt.Fprintf(os.Stderr, "✗ %s\n", f.Error())
		}

		if err := report.Err(); err != nil {
			return fmt.Errorf("%d template(s) failed", len(report.Failures))
		}
		return nil
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateSnapshot, "snapshot", "", "state snapshot file (yaml)")
	generateCmd.Flags().BoolVar(&generateDryRun, "dry-run", false, "list outputs without writing to any sink")
	rootCmd.AddCommand(generateCmd)
}

// attachSinks registers the enabled sinks on engine. The returned closers
// must be closed even when an error is returned.
func attachSinks(engine *template.Engine, cfg *config.Config) ([]io.Closer, error) {
	topic := cfg.Topic
	if topic == "" && cfg.Bus.Enabled {
		topic = cfg.Bus.Topic
	}
	engine.SetTopic(topic)

	if generateDryRun {
		return nil, nil
	}

	var closers []io.Closer
	engine.AddSink(sink.NewFileSink(afero.NewOsFs()))

	if cfg.Bus.Enabled {
		bus, err := sink.DialBus(cfg.BusSink())
		if err != nil {
			return closers, fmt.Errorf("connecting to message bus: %w", err)
		}
		closers = append(closers, bus)
		engine.AddSink(bus)
	}

	if cfg.Archive.Enabled {
		archive, err := sink.OpenArchive(cfg.Archive.Path)
		if err != nil {
			return closers, fmt.Errorf("opening archive: %w", err)
		}
		closers = append(closers, archive)
		engine.AddSink(archive)
	}

	return closers, nil
}
