package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/pathorama/internal/daemon"
	"github.com/anstrom/pathorama/internal/logging"
)

const (
	stopPollInterval = 200 * time.Millisecond
	defaultPIDFile   = "/tmp/pathorama.pid"
)

var (
	serveHost     string
	servePort     int
	servePIDFile  string
	serveHitsFile string
	serveNoAPI    bool
	serveDictFile string

	stopTimeout time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scanner daemon with the HTTP API",
	Long: `Run pathorama in the foreground as a long lived service. Targets are
submitted through the API (POST /api/v1/targets or host request events),
hits are streamed over /api/v1/ws/hits and optionally appended to a JSON
lines file. SIGINT or SIGTERM stops the daemon gracefully and SIGUSR1
logs a status dump.`,
	Example: `  pathorama serve
  pathorama serve --port 9090 --hits-file /var/lib/pathorama/hits.jsonl
  pathorama serve --config /etc/pathorama/config.yaml --pid-file /run/pathorama.pid`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag(cmd, "api.host", "host")
		bindFlag(cmd, "api.port", "port")
		bindFlag(cmd, "daemon.pid_file", "pid-file")
		bindFlag(cmd, "output.hits_file", "hits-file")
		bindFlag(cmd, "scanner.dictionary_file", "dict")
	},
	RunE: runServe,
}

// stopCmd represents the stop command
var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running daemon",
	Long: `Send SIGTERM to the daemon named in the PID file and wait for it to
exit. The PID file defaults to daemon.pid_file from the configuration.`,
	Example: `  pathorama stop
  pathorama stop --pid-file /run/pathorama.pid --timeout 1m`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag(cmd, "daemon.pid_file", "pid-file")
	},
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "API listen address")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "API listen port")
	serveCmd.Flags().StringVar(&servePIDFile, "pid-file", defaultPIDFile, "Path to PID file")
	serveCmd.Flags().StringVar(&serveHitsFile, "hits-file", "", "Append hits to a JSON lines file")
	serveCmd.Flags().StringVarP(&serveDictFile, "dict", "d", "DIR.txt", "Dictionary file with one path per line")
	serveCmd.Flags().BoolVar(&serveNoAPI, "no-api", false, "Do not start the HTTP API")

	stopCmd.Flags().StringVar(&servePIDFile, "pid-file", defaultPIDFile, "Path to PID file")
	stopCmd.Flags().DurationVar(&stopTimeout, "timeout", 30*time.Second, "Time to wait before sending SIGKILL")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if serveNoAPI {
		cfg.API.Enabled = false
	}
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = defaultPIDFile
	}

	if verbose {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Starting daemon with configuration:\n")
		fmt.Fprintf(out, "  PID file:   %s\n", cfg.Daemon.PIDFile)
		fmt.Fprintf(out, "  Dictionary: %s\n", cfg.Scanner.DictionaryFile)
		fmt.Fprintf(out, "  API:        %t (%s)\n", cfg.API.Enabled, cfg.APIAddress())
		fmt.Fprintf(out, "  Hits file:  %s\n", describeHitsFile(cfg.Output.HitsFile))
	}

	d := daemon.New(cfg, logging.Default())
	return d.Run(cmd.Context())
}

func runStop(cmd *cobra.Command, _ []string) error {
	pidFile := servePIDFile
	if !cmd.Flags().Changed("pid-file") {
		if cfg, err := loadConfig(); err == nil && cfg.Daemon.PIDFile != "" {
			pidFile = cfg.Daemon.PIDFile
		}
	}

	out := cmd.OutOrStdout()
	pid, err := readPIDFile(pidFile)
	if os.IsNotExist(err) {
		fmt.Fprintf(out, "Daemon is not running (no PID file found at %s)\n", pidFile)
		return nil
	}
	if err != nil {
		return fmt.Errorf("error reading PID file: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("error finding daemon process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("error sending stop signal to daemon: %w", err)
	}

	fmt.Fprintf(out, "Stopping daemon (PID %d)...\n", pid)
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if process.Signal(syscall.Signal(0)) != nil {
			fmt.Fprintln(out, "Daemon stopped successfully")
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	fmt.Fprintln(out, "Daemon did not stop gracefully, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("error force-killing daemon: %w", err)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	// #nosec G304 - path is a controlled path from flags or config
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %w", err)
	}
	return pid, nil
}

func describeHitsFile(path string) string {
	if path == "" {
		return "disabled"
	}
	return path
}
