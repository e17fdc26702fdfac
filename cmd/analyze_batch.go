package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/wellrisk-cli/internal/dataset"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
	"github.com/spf13/cobra"
)

const (
	annotatedSuffix = "_annotated.csv"
	summarySuffix   = ".summary.md"
	chartSuffix     = ".risk.png"
)

var (
	abFlags     runFlags
	abOutDir    string
	abSummaries bool
	abCharts    bool
	abQuiet     bool
)

var analyzeBatchCmd = &cobra.Command{
	Use:   "analyze-batch <files...>",
	Short: "Analyze multiple CSV/TSV/XLSX files with progress",
	Long: `Runs the risk pipeline over every matched file independently. Each file gets
its own annotated CSV; outputs never overwrite an existing file, a "__N" suffix is
added instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		seen := map[string]struct{}{}
		outAbs := ""
		if abOutDir != "" {
			if a, err := filepath.Abs(abOutDir); err == nil {
				outAbs = a
			}
		}
		for _, arg := range args {
			matches, _ := filepath.Glob(arg)
			if len(matches) == 0 {
				// treat as literal path if exists
				if fileExists(arg) {
					matches = []string{arg}
				}
			}
			for _, m := range matches {
				if _, ok := seen[m]; ok {
					continue
				}
				seen[m] = struct{}{}
				if isBatchOutput(m, outAbs) {
					debugf("skipping %s: output of a previous run", m)
					continue
				}
				files = append(files, m)
			}
		}
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		sort.Strings(files)

		c := effectiveConfig()
		dopt, err := abFlags.datasetOptions(c)
		if err != nil {
			return err
		}
		popt, err := abFlags.pipelineOptions(cmd.Flags(), c)
		if err != nil {
			return err
		}
		sopt := abFlags.summaryOptions(cmd.Flags(), c)
		if abOutDir != "" {
			if err := utils.EnsureDir(abOutDir); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}

		suffixes := []string{annotatedSuffix, summarySuffix, chartSuffix}
		taken := map[string]bool{}

		total := len(files)
		failed := 0
		for i, path := range files {
			if !abQuiet {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			res, err := analyzeFile(cmd.Context(), path, dopt, popt, sopt)
			if err != nil {
				// One bad file does not stop the batch.
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", path, err)
				failed++
				continue
			}
			if !abQuiet {
				printWarnings(res.Batch.Warnings)
			}

			want := utils.OutputPath(path, abOutDir, "")
			stem := utils.UniqueStem(want, suffixes, taken)
			if stem != want && !abQuiet {
				fmt.Printf("⚠ Detected existing output, writing to %s to avoid overwrite.\n", filepath.Base(stem+annotatedSuffix))
			}
			out := stem + annotatedSuffix
			if err := dataset.WriteFile(out, res.Batch); err != nil {
				return err
			}
			if !abQuiet {
				fmt.Printf("✓ Wrote annotated dataset to %s\n", out)
			}
			if abSummaries {
				sp := stem + summarySuffix
				if err := writeText(sp, res.Summary.Markdown()); err != nil {
					return err
				}
				if !abQuiet {
					fmt.Printf("✓ Wrote summary to %s\n", sp)
				}
			}
			if abCharts {
				cp := stem + chartSuffix
				if err := writeChart(cp, res.Batch); err != nil {
					return err
				}
				if !abQuiet {
					fmt.Printf("✓ Wrote risk chart to %s\n", cp)
				}
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, total)
		}
		return nil
	},
}

// isBatchOutput reports whether path is an annotated CSV or lives under outDir.
func isBatchOutput(path, outDir string) bool {
	if strings.HasSuffix(strings.ToLower(filepath.Base(path)), annotatedSuffix) {
		return true
	}
	if outDir == "" {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(outDir, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func init() {
	rootCmd.AddCommand(analyzeBatchCmd)
	analyzeBatchCmd.Flags().StringVar(&abOutDir, "out-dir", "", "directory for outputs (default: next to each input)")
	analyzeBatchCmd.Flags().BoolVar(&abSummaries, "summaries", true, "write a .summary.md next to each annotated CSV")
	analyzeBatchCmd.Flags().BoolVar(&abCharts, "charts", false, "write a .risk.png bar chart next to each annotated CSV")
	analyzeBatchCmd.Flags().BoolVar(&abQuiet, "quiet", false, "suppress progress and non-essential output")
	addRunFlags(analyzeBatchCmd.Flags(), &abFlags)
}
