package cmd

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/catflap/catflap/internal/sink"
)

var (
	historyLimit int
	historyBody  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived template outputs",
	Long:  "List the template outputs stored in the archive, newest first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if _, err := os.Stat(cfg.Archive.Path); err != nil {
			return fmt.Errorf("archive %s not found: %w", cfg.Archive.Path, err)
		}

		archive, err := sink.OpenArchive(cfg.Archive.Path)
		if err != nil {
			return err
		}
		defer archive.Close()

		records, err := archive.List(historyLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "No archived outputs")
			return nil
		}

		for _, rec := range records {
			fmt.Fprintf(out, "%-14s %-20s %-24s %s (%s)\n",
				humanize.Time(rec.Time), rec.Event, rec.Template, rec.Path, humanize.Bytes(uint64(len(rec.Body))))
			if historyBody {
				fmt.Fprintln(out, rec.Body)
			}
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of records, 0 for all")
	historyCmd.Flags().BoolVar(&historyBody, "body", false, "print each output body")
	rootCmd.AddCommand(historyCmd)
}
