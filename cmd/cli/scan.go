package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/pathorama/internal/host"
	"github.com/anstrom/pathorama/internal/logging"
	"github.com/anstrom/pathorama/internal/manager"
	"github.com/anstrom/pathorama/internal/plugin"
	"github.com/anstrom/pathorama/internal/scanning"
)

const hitBufferSize = 256

var (
	scanDictFile string
	scanThreads  int
	scanTimeout  time.Duration
	scanOutput   string
	scanInsecure bool
	scanNoColor  bool
	scanMaxWait  time.Duration
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan URL [URL...]",
	Short: "Scan web origins for dictionary paths",
	Long: `Scan one or more web origins for every path in the dictionary file.

Each argument is reduced to its origin (scheme, host and port), so
https://example.com/login and https://example.com/ are scanned once.
Hits are printed as they arrive and a per-origin summary is shown
when every origin has been scanned.`,
	Example: `  pathorama scan https://example.com
  pathorama scan --dict wordlists/DIR.txt --threads 20 http://10.0.0.5:8080
  pathorama scan --output hits.jsonl https://a.example.com https://b.example.com`,
	Args: cobra.MinimumNArgs(1),
	PreRun: func(cmd *cobra.Command, _ []string) {
		bindFlag(cmd, "scanner.dictionary_file", "dict")
		bindFlag(cmd, "scanner.threads", "threads")
		bindFlag(cmd, "scanner.probe_timeout", "timeout")
		bindFlag(cmd, "scanner.insecure_skip_verify", "insecure")
		bindFlag(cmd, "output.hits_file", "output")
	},
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanDictFile, "dict", "d", "DIR.txt", "Dictionary file with one path per line")
	scanCmd.Flags().IntVarP(&scanThreads, "threads", "t", 10, "Concurrent probes per origin (1-50)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 5*time.Second, "Per-request timeout")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Append hits to a JSON lines file")
	scanCmd.Flags().BoolVarP(&scanInsecure, "insecure", "k", false, "Skip TLS certificate verification")
	scanCmd.Flags().BoolVar(&scanNoColor, "no-color", false, "Disable colored output")
	scanCmd.Flags().DurationVar(&scanMaxWait, "max-time", 0, "Abort the scan after this long (0 = no limit)")
}

// originTally counts hits per origin for the summary table.
type originTally struct {
	mu   sync.Mutex
	hits map[string]int
}

func (t *originTally) add(rawURL string) {
	origin := originOf(rawURL)
	t.mu.Lock()
	t.hits[origin]++
	t.mu.Unlock()
}

func (t *originTally) count(origin string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.hits[origin]
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanNoColor {
		color.NoColor = true
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	out := cmd.OutOrStdout()
	logConfig := cfg.Logging
	if !verbose {
		logConfig.Level = logging.LevelWarn
	}
	logger := logging.NewWithWriter(logConfig, cmd.ErrOrStderr())

	results := host.NewChannelSink(hitBufferSize).OnDrop(func() {
		logger.Warn("Hit output is behind, dropping batch")
	})
	sinks := host.MultiSink{results}
	if cfg.Output.HitsFile != "" {
		f, err := openHitsFile(cfg.Output.HitsFile)
		if err != nil {
			return err
		}
		defer f.Close()
		sinks = append(sinks, host.NewJSONLinesSink(f))
	}

	scanner := plugin.New(cfg.ManagerConfig(), plugin.WithLogger(logger))
	if err := scanner.Initialize(sinks); err != nil {
		return err
	}

	origins := make([]string, 0, len(args))
	for _, raw := range args {
		added, err := scanner.AddTargetURL(raw)
		if err != nil {
			return err
		}
		if added {
			origins = append(origins, originOf(raw))
		}
	}

	if err := scanner.Manager().Start(); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if scanMaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, scanMaxWait)
		defer cancel()
	}

	tally := &originTally{hits: make(map[string]int)}
	printed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(printed)
		printHits(out, results.C(), done, tally)
	}()

	started := time.Now()
	waitErr := scanner.Manager().WaitIdle(ctx)
	status, _ := scanner.Status()
	scanner.Stop()
	close(done)
	<-printed

	renderSummary(out, origins, tally, status, time.Since(started))

	if waitErr != nil {
		return fmt.Errorf("scan interrupted: %w", waitErr)
	}
	return nil
}

// printHits writes each row until done is closed, then drains what is left.
func printHits(w io.Writer, rows <-chan host.RowBatch, done <-chan struct{}, tally *originTally) {
	for {
		select {
		case batch := <-rows:
			writeBatch(w, batch, tally)
		case <-done:
			for {
				select {
				case batch := <-rows:
					writeBatch(w, batch, tally)
				default:
					return
				}
			}
		}
	}
}

func writeBatch(w io.Writer, batch host.RowBatch, tally *originTally) {
	for _, row := range batch {
		if len(row.Data) <= plugin.ColumnLength {
			continue
		}
		target, _ := row.Data[plugin.ColumnURL].(string)
		status, _ := row.Data[plugin.ColumnStatus].(int)
		length := row.Data[plugin.ColumnLength]

		tally.add(target)
		fmt.Fprintf(w, "[%s] %-60s %v\n", statusColor(status)(strconv.Itoa(status)), target, length)
	}
}

func statusColor(status int) func(a ...interface{}) string {
	switch {
	case status >= 200 && status < 300:
		return color.New(color.FgGreen).SprintFunc()
	case status >= 300 && status < 400:
		return color.New(color.FgCyan).SprintFunc()
	default:
		return color.New(color.FgYellow).SprintFunc()
	}
}

// renderSummary prints one table row per origin and the manager totals.
func renderSummary(w io.Writer, origins []string, tally *originTally, status manager.Status, elapsed time.Duration) {
	sort.Strings(origins)

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.Header("Origin", "Hits")
	for _, origin := range origins {
		_ = table.Append([]string{origin, strconv.Itoa(tally.count(origin))})
	}
	_ = table.Render()

	fmt.Fprintf(w, "%d origin(s), %d path(s) each, %d hit(s) in %s\n",
		status.Completed, status.Paths, status.Hits, elapsed.Round(time.Millisecond))
}

func originOf(raw string) string {
	origin, err := scanning.NormalizeTarget(raw)
	if err != nil {
		return raw
	}
	return origin
}

func openHitsFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	// #nosec G304 - path comes from the command line or config file
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return f, nil
}
