package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/TFMV/subwatch/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "List the directories a watch would cover",
	Long: `Walk a directory the way the watch command does and list every directory
that would be watched, with its depth, without installing any watches.
Directories skipped because of errors or the depth limit are reported too.

Examples:
  subwatch scan /path/to/directory
  subwatch scan --max-depth=3 --follow-symlinks /path/to/directory
  subwatch scan --output=yaml /path/to/directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := rootArg(args)
		if err != nil {
			return err
		}

		entries, diags, err := watch.Scan(cmd.Context(), root, baseOptions())
		if err != nil {
			return err
		}
		return printScan(cmd.OutOrStdout(), viper.GetString("output"), entries, diags)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// scanReport is the serialized form of a scan.
type scanReport struct {
	Directories []watch.WatchedDirectory `json:"directories" yaml:"directories"`
	Skipped     []string                 `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

func printScan(w io.Writer, format string, entries []watch.WatchedDirectory, diags []error) error {
	enc, err := newEncoder(format, w)
	if err != nil {
		return err
	}
	if enc != nil {
		report := scanReport{Directories: entries}
		for _, d := range diags {
			report.Skipped = append(report.Skipped, d.Error())
		}
		return enc(report)
	}

	var root string
	if len(entries) > 0 {
		root = entries[0].Path
	}
	for _, e := range entries {
		rel, err := filepath.Rel(root, e.Path)
		if err != nil {
			rel = e.Path
		}
		fmt.Fprintf(w, "%3d  %s%s\n", e.Depth, strings.Repeat("  ", e.Depth), rel)
	}
	for _, d := range diags {
		fmt.Fprintf(w, "skipped: %v\n", d)
	}
	fmt.Fprintf(w, "\n%d directories would be watched\n", len(entries))
	return nil
}
