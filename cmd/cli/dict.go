package cli

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/pathorama/internal/dictionary"
)

const defaultSampleSize = 10

var dictSample int

// dictCmd represents the dict command
var dictCmd = &cobra.Command{
	Use:   "dict [FILE]",
	Short: "Inspect a dictionary file",
	Long: `Load a dictionary file the same way the scanner does and report the
detected encoding, the number of unique paths and a sample of the
quoted request paths next to their decoded form.

Without FILE the configured scanner.dictionary_file is used.`,
	Example: `  pathorama dict
  pathorama dict wordlists/DIR.txt --sample 25`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDict,
}

func init() {
	rootCmd.AddCommand(dictCmd)
	dictCmd.Flags().IntVarP(&dictSample, "sample", "n", defaultSampleSize, "Number of paths to show (0 = all)")
}

func runDict(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
		path = cfg.Scanner.DictionaryFile
	}

	dict, err := dictionary.Load(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Dictionary: %s\n", dict.Source)
	fmt.Fprintf(out, "Encoding:   %s\n", dict.Encoding)
	fmt.Fprintf(out, "Paths:      %d\n\n", dict.Paths.Len())

	paths := dict.Paths.Paths()
	if dictSample > 0 && len(paths) > dictSample {
		paths = paths[:dictSample]
	}

	table := tablewriter.NewWriter(out)
	table.Header("#", "Request path", "Decoded")
	for i, p := range paths {
		decoded, err := url.PathUnescape(p)
		if err != nil {
			decoded = p
		}
		_ = table.Append([]string{strconv.Itoa(i + 1), "/" + p, "/" + decoded})
	}
	return table.Render()
}
