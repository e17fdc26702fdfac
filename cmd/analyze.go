package cmd

import (
	"fmt"

	"github.com/KaramelBytes/wellrisk-cli/internal/dataset"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	anaFlags       runFlags
	anaOutputPath  string
	anaSummaryPath string
	anaChartPath   string
	anaQuiet       bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Score, group and annotate one CSV/TSV/XLSX file of employee metrics",
	Long: `Reads employee metrics, flags anomalous readings, groups employees into risk
tiers and writes the annotated dataset (default: <input>_annotated.csv next to the
input). The Markdown summary goes to --summary or stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		c := effectiveConfig()
		dopt, err := anaFlags.datasetOptions(c)
		if err != nil {
			return err
		}
		popt, err := anaFlags.pipelineOptions(cmd.Flags(), c)
		if err != nil {
			return err
		}
		res, err := analyzeFile(cmd.Context(), path, dopt, popt, anaFlags.summaryOptions(cmd.Flags(), c))
		if err != nil {
			return err
		}
		printWarnings(res.Batch.Warnings)

		out := anaOutputPath
		if out == "" {
			out = utils.OutputPath(path, "", annotatedSuffix)
		}
		if err := dataset.WriteFile(out, res.Batch); err != nil {
			return err
		}
		fmt.Printf("✓ Wrote annotated dataset to %s (%d records, %d anomalies)\n", out, res.Summary.Total, res.Summary.Anomalies)

		if anaChartPath != "" {
			if err := writeChart(anaChartPath, res.Batch); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote risk chart to %s\n", anaChartPath)
		}

		md := res.Summary.Markdown()
		if anaSummaryPath != "" {
			if err := writeText(anaSummaryPath, md); err != nil {
				return err
			}
			fmt.Printf("✓ Wrote summary to %s\n", anaSummaryPath)
		} else if !anaQuiet {
			fmt.Println(md)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "path of the annotated CSV (default <input>_annotated.csv)")
	analyzeCmd.Flags().StringVarP(&anaSummaryPath, "summary", "s", "", "optional path to write the summary (Markdown)")
	analyzeCmd.Flags().StringVar(&anaChartPath, "chart", "", "optional path to write the risk group bar chart (PNG)")
	analyzeCmd.Flags().BoolVar(&anaQuiet, "quiet", false, "do not print the summary to stdout")
	addRunFlags(analyzeCmd.Flags(), &anaFlags)
}
