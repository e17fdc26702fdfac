package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	cfgpkg "github.com/KaramelBytes/wellrisk-cli/internal/config"
	"github.com/KaramelBytes/wellrisk-cli/internal/utils"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	debug   bool

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "wellrisk",
	Short: "WellRisk CLI: flag unusual employee health readings and map them to interventions",
	Long: `WellRisk reads employee health metrics (heart rate, blood pressure, fatigue),
scores each record with an isolation forest, groups records into risk tiers with
k-means and attaches a wellness intervention to every employee.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	// Initialize configuration before executing commands
	cobra.OnInitialize(loadConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.wellrisk/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug output")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
}

// effectiveConfig returns the loaded configuration, loading it on demand when
// the command runs outside Execute (tests). Load failures fall back to
// defaults so read-only commands keep working.
func effectiveConfig() *cfgpkg.Global {
	if cfg != nil {
		return cfg
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		debugf("config load failed, using defaults: %v", err)
		c = cfgpkg.Defaults()
		if dir, derr := cfgpkg.Dir(); derr == nil {
			c.ProfilesDir = filepath.Join(dir, "profiles")
		}
	}
	return c
}

func debugf(format string, args ...any) {
	if !debug {
		return
	}
	fmt.Fprintf(os.Stderr, "[debug] "+format+"\n", args...)
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "⚠ Warning: "+format+"\n", args...)
}

// defaultProfilesDir resolves the configured profiles directory, expanding a
// leading "~", and makes sure it exists.
func defaultProfilesDir() (string, error) {
	dir := effectiveConfig().ProfilesDir
	if dir == "" {
		base, err := cfgpkg.Dir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(base, "profiles")
	}
	if strings.HasPrefix(dir, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = strings.TrimPrefix(dir, "~")
		dir = strings.TrimPrefix(dir, string(os.PathSeparator))
		dir = strings.TrimPrefix(dir, "/")
		dir = filepath.Join(home, dir)
	}
	dir = filepath.Clean(dir)
	if err := utils.EnsureDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}
