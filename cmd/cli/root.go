// Package cli provides the command-line interface for pathorama.
// This package implements the Cobra-based CLI structure with commands for
// one-shot scans, dictionary inspection and running the daemon.
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/anstrom/pathorama/internal/api/handlers"
	"github.com/anstrom/pathorama/internal/config"
	"github.com/anstrom/pathorama/internal/logging"
)

const envPrefix = "PATHORAMA"

var (
	cfgFile string
	verbose bool
)

// Build information - these will be set by ldflags during build.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pathorama",
	Short: "Concurrent web content discovery",
	Long: `Pathorama probes web origins for hidden paths taken from a dictionary
file. Each origin is scanned at most once; hits (2xx/3xx/403) are printed,
written to a JSON lines file or streamed over the daemon API.`,
	Version:       getVersion(),
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind verbose flag: %v\n", err)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// PATHORAMA_SCANNER_THREADS maps to scanner.threads
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	initLogging()
}

// loadConfig loads the config file viper found, applies flag and environment
// overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.ConfigFileUsed())
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyOverrides copies every key set by a flag or PATHORAMA_* variable.
func applyOverrides(cfg *config.Config) {
	texts := map[string]*string{
		"scanner.dictionary_file": &cfg.Scanner.DictionaryFile,
		"scanner.user_agent":      &cfg.Scanner.UserAgent,
		"api.host":                &cfg.API.Host,
		"daemon.pid_file":         &cfg.Daemon.PIDFile,
		"daemon.stats_schedule":   &cfg.Daemon.StatsSchedule,
		"output.hits_file":        &cfg.Output.HitsFile,
	}
	for key, dst := range texts {
		if viper.IsSet(key) {
			*dst = viper.GetString(key)
		}
	}

	ints := map[string]*int{
		"scanner.threads":     &cfg.Scanner.Threads,
		"scanner.concurrency": &cfg.Scanner.Concurrency,
		"api.port":            &cfg.API.Port,
	}
	for key, dst := range ints {
		if viper.IsSet(key) {
			*dst = viper.GetInt(key)
		}
	}

	if viper.IsSet("scanner.probe_timeout") {
		cfg.Scanner.ProbeTimeout = viper.GetDuration("scanner.probe_timeout")
	}
	if viper.IsSet("scanner.insecure_skip_verify") {
		cfg.Scanner.InsecureSkipVerify = viper.GetBool("scanner.insecure_skip_verify")
	}
	if viper.IsSet("api.enabled") {
		cfg.API.Enabled = viper.GetBool("api.enabled")
	}
	if viper.IsSet("logging.level") {
		cfg.Logging.Level = logging.LogLevel(viper.GetString("logging.level"))
	}
	if viper.IsSet("logging.format") {
		cfg.Logging.Format = logging.LogFormat(viper.GetString("logging.format"))
	}
	if viper.GetBool("verbose") {
		cfg.Logging.Level = logging.LevelDebug
	}
}

// bindFlag binds a command flag to a config key, warning on failure.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to bind %s flag: %v\n", flag, err)
	}
}

// getVersion returns the version string.
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime)
}

// SetVersion sets the version information (called from main).
func SetVersion(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
	rootCmd.Version = getVersion()
	handlers.SetBuildInfo(v, c, bt)
}

// initLogging initializes structured logging based on configuration.
func initLogging() {
	cfg, err := loadConfig()
	if err != nil {
		logging.SetDefault(logging.NewDefault())
		return
	}

	logConfig := cfg.Logging
	logConfig.AddSource = logConfig.Level == logging.LevelDebug

	logger, err := logging.New(logConfig)
	if err != nil {
		logger = logging.NewDefault()
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	logging.SetDefault(logger)

	if verbose {
		logging.Debug("Structured logging initialized", "level", logConfig.Level, "format", logConfig.Format)
	}
}
