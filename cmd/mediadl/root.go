package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"mediadl/pkg/config"
	"mediadl/pkg/logger"
	"mediadl/pkg/ui"
)

var (
	// Global flags
	configFile string
	logLevel   string
	dbPath     string
	noColor    bool
	quiet      bool

	// cfg is loaded once flags are parsed, before any RunE
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mediadl",
	Short: "Crawl media sites and download every file exactly once",
	Long: `mediadl walks profiles, posts and favorites on Coomer-style sites and
downloads every linked file.

Completed files are recorded in a SQLite ledger, so repeated runs and runs
after a crash skip what is already on disk. Downloaded files are hashed to
spot duplicate and placeholder content.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.SetNoColor(noColor)
		ui.SetQuietMode(quiet)

		loaded, err := config.Load(configFile, flagValues(cmd.Flags()))
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logger.Initialize(&cfg.Logging); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		for _, w := range cfg.Warnings() {
			logger.GetLogger().Warn(w)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./mediadl.yaml or $XDG_CONFIG_HOME/mediadl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "path to the ledger database")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	rootCmd.SetVersionTemplate(`mediadl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)
}

// flagValues collects the flags the user actually set, keyed by flag name,
// in the shape config.MergeCommandLineFlags expects.
func flagValues(fs *pflag.FlagSet) map[string]interface{} {
	values := make(map[string]interface{})
	fs.Visit(func(f *pflag.Flag) {
		var (
			v   interface{}
			err error
		)
		switch f.Value.Type() {
		case "string":
			v, err = fs.GetString(f.Name)
		case "int":
			v, err = fs.GetInt(f.Name)
		case "float64":
			v, err = fs.GetFloat64(f.Name)
		case "bool":
			v, err = fs.GetBool(f.Name)
		default:
			return
		}
		if err == nil {
			values[f.Name] = v
		}
	})
	return values
}
