package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TFMV/subwatch/internal/watch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [path]",
	Short: "Watch a directory tree for changes",
	Long: `Watch a directory and everything below it, printing an event for each
file or directory that is created, deleted, modified or renamed.

Examples:
  subwatch watch /path/to/watch
  subwatch watch --events=created,deleted --exec="echo {event}: {}" /path/to/watch
  subwatch watch --pattern="*.go" --format="{base} was {event} at {time}" /path/to/watch
  subwatch watch --output=json --metrics-addr=:9090 /path/to/watch`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := rootArg(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts, err := watchOptions()
		if err != nil {
			return err
		}

		if addr := viper.GetString("metrics-addr"); addr != "" {
			shutdown := serveMetrics(addr)
			defer shutdown()
		}

		if !viper.GetBool("silent") {
			fmt.Fprintf(os.Stderr, "Watching %s for changes...\n", root)
			fmt.Fprintln(os.Stderr, "Press Ctrl+C to exit.")
		}

		switch {
		case viper.GetString("exec") != "":
			err = watch.WatchWithExec(ctx, root, opts, viper.GetString("exec"))
		case viper.GetString("format") != "":
			err = watch.WatchWithFormat(ctx, root, opts, viper.GetString("format"))
		default:
			var handler watch.Handler
			handler, err = eventPrinter(viper.GetString("output"), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			err = watch.Watch(ctx, root, opts, handler)
		}
		if err != nil {
			return fmt.Errorf("watching %s: %w", root, err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("events", []string{}, "Events to report (created, renamed, modified, attributes_modified, deleted)")
	watchCmd.Flags().String("backend", "", "Notification backend (inotify|fsnotify, default picks one)")
	watchCmd.Flags().String("exec", "", "Command to execute when an event occurs")
	watchCmd.Flags().String("format", "", "Format string for output")
	watchCmd.Flags().String("pattern", "", "Report only entries whose name matches (e.g., *.go)")
	watchCmd.Flags().String("ignore", "", "Do not report entries whose name matches")
	watchCmd.Flags().Bool("include-hidden", false, "Report hidden files and directories")
	watchCmd.Flags().Duration("timeout", 0, "Duration to watch before exiting (e.g., 1h, 30m)")
	watchCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g., :9090)")

	for _, name := range []string{"events", "backend", "exec", "format", "pattern", "ignore", "include-hidden", "timeout", "metrics-addr"} {
		viper.BindPFlag(name, watchCmd.Flags().Lookup(name))
	}
}

// watchOptions builds the watcher options from the configuration.
func watchOptions() (watch.Options, error) {
	opts := baseOptions()
	opts.Backend = watch.Backend(viper.GetString("backend"))
	opts.Pattern = viper.GetString("pattern")
	opts.IgnorePattern = viper.GetString("ignore")
	opts.ExcludeHidden = !viper.GetBool("include-hidden")
	opts.Timeout = viper.GetDuration("timeout")

	for _, name := range viper.GetStringSlice("events") {
		action, err := watch.ParseAction(name)
		if err != nil {
			return opts, err
		}
		opts.Events = append(opts.Events, action)
	}
	return opts, nil
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// function is called.
func serveMetrics(addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Error serving metrics: %v\n", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
