package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/TFMV/subwatch/internal/watch"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	version = "0.1.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "subwatch",
	Short: "Watch a directory tree for changes",
	Long: `subwatch reports files and directories being created, deleted, modified
and renamed anywhere below a directory. New directories are picked up as
they appear, renamed directories keep their watches, and the tree is
rescanned whenever the kernel drops events.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.subwatch.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().Bool("silent", false, "Disable all output except errors")
	rootCmd.PersistentFlags().Bool("follow-symlinks", false, "Follow symbolic links to directories")
	rootCmd.PersistentFlags().Int("max-depth", 0, fmt.Sprintf("Directories this deep below the root are not watched (0 means %d)", watch.DefaultMaxDepth))
	rootCmd.PersistentFlags().StringP("output", "o", "text", "Output format (text|json|yaml)")

	// Bind flags to viper
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("silent", rootCmd.PersistentFlags().Lookup("silent"))
	viper.BindPFlag("follow-symlinks", rootCmd.PersistentFlags().Lookup("follow-symlinks"))
	viper.BindPFlag("max-depth", rootCmd.PersistentFlags().Lookup("max-depth"))
	viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".subwatch" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".subwatch")
	}

	viper.SetEnvPrefix("subwatch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("silent") {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// logLevel maps --verbose and --silent onto the watcher's log level.
func logLevel() watch.LogLevel {
	switch {
	case viper.GetBool("verbose"):
		return watch.LogLevelDebug
	case viper.GetBool("silent"):
		return watch.LogLevelError
	}
	return watch.LogLevelWarn
}

// rootArg returns the directory named on the command line, or the working
// directory.
func rootArg(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	return dir, nil
}

// baseOptions builds the options shared by every command from the
// configuration.
func baseOptions() watch.Options {
	return watch.Options{
		FollowSymlinks: viper.GetBool("follow-symlinks"),
		MaxDepth:       viper.GetInt("max-depth"),
		LogLevel:       logLevel(),
	}
}
