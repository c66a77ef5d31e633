package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/routefs/routefs/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// SetVersion sets the version info for the --version flag
func SetVersion(v, c string) {
	version = v
	commit = c
	rootCmd.Version = fmt.Sprintf("%s (commit: %s)", version, commit)
}

var rootCmd = &cobra.Command{
	Use:   "routefs",
	Short: "Mount path-routed handlers as a filesystem",
	Long: `RouteFS serves a directory tree whose files are produced by handlers
matched on path patterns. The built-in sources mirror a host directory
or an S3 bucket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configFile  string
	verbose     bool
	errorFormat string
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Print full diagnostics for errors")
	flags.StringVar(&errorFormat, "error-format", ErrorFormatText, "Error output format (text or json)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig applies defaults, the config file, then the environment
func loadConfig() (*config.Configuration, error) {
	cfg := config.NewDefault()
	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
