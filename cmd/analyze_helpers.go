package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/KaramelBytes/wellrisk-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/wellrisk-cli/internal/config"
	"github.com/KaramelBytes/wellrisk-cli/internal/dataset"
	"github.com/KaramelBytes/wellrisk-cli/internal/profile"
	"github.com/KaramelBytes/wellrisk-cli/internal/report"
	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
)

// runFlags are the dataset and model flags shared by analyze and analyze-batch.
type runFlags struct {
	delimiter     string
	decimal       string
	thousands     string
	sheetName     string
	sheetIndex    int
	profile       string
	contamination float64
	clusters      int
	seed          int64
	rawLabels     bool
	topN          int
	outlierThr    float64
}

func addRunFlags(fs *pflag.FlagSet, f *runFlags) {
	fs.StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab'")
	fs.StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	fs.StringVar(&f.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	fs.StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	fs.IntVar(&f.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	fs.StringVar(&f.profile, "profile", "", "encode with the bounds and roles of a saved profile")
	fs.Float64Var(&f.contamination, "contamination", 0, "expected share of anomalous records (overrides config)")
	fs.IntVar(&f.clusters, "clusters", 0, "number of risk groups, 2 or 3 (overrides config)")
	fs.Int64Var(&f.seed, "seed", 0, "random seed for the forest and k-means (overrides config)")
	fs.BoolVar(&f.rawLabels, "raw-labels", false, "keep raw k-means cluster indices instead of ranking groups by severity")
	fs.IntVar(&f.topN, "top-n", -1, "number of high-risk employees listed in the summary (overrides config)")
	fs.Float64Var(&f.outlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}

// datasetOptions maps the locale and sheet flags onto reader options.
func (f *runFlags) datasetOptions(c *cfgpkg.Global) (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	if len(c.RequiredFields) > 0 {
		opt.RequiredFields = append([]string(nil), c.RequiredFields...)
	}
	switch f.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", f.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(f.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", f.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.thousands)) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", f.thousands)
	}
	opt.SheetName = f.sheetName
	if f.sheetIndex > 0 {
		opt.SheetIndex = f.sheetIndex
	}
	return opt, nil
}

// pipelineOptions starts from config and applies the flags the user set.
func (f *runFlags) pipelineOptions(fs *pflag.FlagSet, c *cfgpkg.Global) (risk.Options, error) {
	// Config file and WELLRISK_* values never pass through config set.
	if err := cfgpkg.Validate(c); err != nil {
		return risk.Options{}, fmt.Errorf("invalid config: %w", err)
	}
	opt := c.PipelineOptions()
	if fs.Changed("contamination") {
		opt.Contamination = f.contamination
	}
	if fs.Changed("clusters") {
		if f.clusters < 2 || f.clusters > 3 {
			return opt, fmt.Errorf("--clusters must be 2 or 3, got %d", f.clusters)
		}
		opt.Clusters = f.clusters
	}
	if fs.Changed("seed") {
		opt.Seed = f.seed
	}
	if f.rawLabels {
		opt.RankBySeverity = false
	}
	if f.profile != "" {
		p, err := loadProfileByName(f.profile)
		if err != nil {
			return opt, err
		}
		enc, err := p.Encoding()
		if err != nil {
			return opt, fmt.Errorf("profile %s: %w", p.Name, err)
		}
		opt.Encoding = enc
		debugf("using profile %s v%d", p.Name, p.Version)
	}
	if err := opt.Validate(); err != nil {
		return opt, err
	}
	return opt, nil
}

func (f *runFlags) summaryOptions(fs *pflag.FlagSet, c *cfgpkg.Global) analysis.Options {
	opt := analysis.DefaultOptions()
	opt.TopN = c.TopN
	if fs.Changed("top-n") && f.topN >= 0 {
		opt.TopN = f.topN
	}
	if f.outlierThr > 0 {
		opt.OutlierThreshold = f.outlierThr
	}
	return opt
}

func loadProfileByName(name string) (*profile.Profile, error) {
	if err := profile.ValidateName(name); err != nil {
		return nil, err
	}
	root, err := defaultProfilesDir()
	if err != nil {
		return nil, err
	}
	return profile.LoadProfile(profile.Dir(root, name))
}

// analysisResult is one processed input file.
type analysisResult struct {
	Batch   *risk.Batch
	Summary *analysis.Summary
}

// analyzeFile loads path, runs the pipeline and summarizes the result.
func analyzeFile(ctx context.Context, path string, dopt dataset.Options, popt risk.Options, sopt analysis.Options) (*analysisResult, error) {
	raw, err := dataset.Load(path, dopt)
	if err != nil {
		return nil, err
	}
	debugf("loaded %d records from %s", raw.Len(), path)
	p, err := risk.NewPipeline(popt)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	out, err := p.Run(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	sum, err := analysis.Summarize(out, sopt)
	if err != nil {
		return nil, err
	}
	return &analysisResult{Batch: out, Summary: sum}, nil
}

// writeChart renders the risk group distribution of b to path.
func writeChart(path string, b *risk.Batch) error {
	counts, err := report.TierCounts(b)
	if err != nil {
		return err
	}
	img, err := report.RenderRiskChart(counts, report.DefaultChartOptions())
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(path, img)
}

func printWarnings(ws []string) {
	for _, w := range ws {
		warnf("%s", w)
	}
}

func writeText(path, s string) error {
	if err := utils.SafeWriteFile(path, []byte(s)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
