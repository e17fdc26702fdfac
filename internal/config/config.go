package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/wellrisk-cli/internal/risk"
)

// EnvPrefix prefixes every environment override, e.g. WELLRISK_CONTAMINATION.
const EnvPrefix = "WELLRISK"

// Global configuration structure.
type Global struct {
	Contamination  float64  `mapstructure:"contamination" yaml:"contamination"`
	RiskClusters   int      `mapstructure:"risk_clusters" yaml:"risk_clusters"`
	Seed           int64    `mapstructure:"seed" yaml:"seed"`
	RequiredFields []string `mapstructure:"required_fields" yaml:"required_fields"`

	// Model tuning
	ForestTrees       int  `mapstructure:"forest_trees" yaml:"forest_trees"`
	ForestSampleSize  int  `mapstructure:"forest_sample_size" yaml:"forest_sample_size"`
	MinAnomalyRecords int  `mapstructure:"min_anomaly_records" yaml:"min_anomaly_records"`
	KMeansMaxIter     int  `mapstructure:"kmeans_max_iter" yaml:"kmeans_max_iter"`
	KMeansRestarts    int  `mapstructure:"kmeans_restarts" yaml:"kmeans_restarts"`
	RankRiskGroups    bool `mapstructure:"rank_risk_groups" yaml:"rank_risk_groups"`

	TopN        int    `mapstructure:"top_n" yaml:"top_n"`
	ProfilesDir string `mapstructure:"profiles_dir" yaml:"profiles_dir"`
	ServerAddr  string `mapstructure:"server_addr" yaml:"server_addr"`
}

// Defaults returns the built-in configuration with ProfilesDir unresolved.
func Defaults() *Global {
	opt := risk.DefaultOptions()
	return &Global{
		Contamination:     opt.Contamination,
		RiskClusters:      opt.Clusters,
		Seed:              opt.Seed,
		RequiredFields:    []string{risk.ColEmployeeID, risk.ColHeartRate, risk.ColBloodPressure, risk.ColFatigueScore},
		ForestTrees:       opt.ForestTrees,
		ForestSampleSize:  opt.ForestSampleSize,
		MinAnomalyRecords: opt.MinAnomalyRecords,
		KMeansMaxIter:     opt.KMeansMaxIter,
		KMeansRestarts:    opt.KMeansRestarts,
		RankRiskGroups:    opt.RankBySeverity,
		TopN:              3,
		ServerAddr:        ":8080",
	}
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("contamination", d.Contamination)
	v.SetDefault("risk_clusters", d.RiskClusters)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("required_fields", d.RequiredFields)
	v.SetDefault("forest_trees", d.ForestTrees)
	v.SetDefault("forest_sample_size", d.ForestSampleSize)
	v.SetDefault("min_anomaly_records", d.MinAnomalyRecords)
	v.SetDefault("kmeans_max_iter", d.KMeansMaxIter)
	v.SetDefault("kmeans_restarts", d.KMeansRestarts)
	v.SetDefault("rank_risk_groups", d.RankRiskGroups)
	v.SetDefault("top_n", d.TopN)
	v.SetDefault("profiles_dir", "")
	v.SetDefault("server_addr", d.ServerAddr)
}

// Dir returns ~/.wellrisk.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".wellrisk"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.wellrisk/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env (including a .env file in the working directory) > config
// file > defaults. A missing .env or config file is not an error.
func Load(cfgFile string) (*Global, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		// optional read
		_ = v.ReadInConfig()
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve profiles_dir default: ~/.wellrisk/profiles
	if c.ProfilesDir == "" {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		c.ProfilesDir = filepath.Join(dir, "profiles")
	}
	return &c, nil
}

// Validate checks ranges before any batch is processed.
func Validate(c *Global) error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.Contamination <= 0 || c.Contamination > 0.5 {
		return fmt.Errorf("contamination must be in (0, 0.5], got %g", c.Contamination)
	}
	if c.RiskClusters < 2 || c.RiskClusters > 3 {
		return fmt.Errorf("risk_clusters must be 2 or 3, got %d", c.RiskClusters)
	}
	if c.ForestTrees <= 0 {
		return fmt.Errorf("forest_trees must be positive, got %d", c.ForestTrees)
	}
	if c.ForestSampleSize < 2 {
		return fmt.Errorf("forest_sample_size must be at least 2, got %d", c.ForestSampleSize)
	}
	if c.MinAnomalyRecords < 2 {
		return fmt.Errorf("min_anomaly_records must be at least 2, got %d", c.MinAnomalyRecords)
	}
	if c.KMeansMaxIter <= 0 {
		return fmt.Errorf("kmeans_max_iter must be positive, got %d", c.KMeansMaxIter)
	}
	if c.KMeansRestarts <= 0 {
		return fmt.Errorf("kmeans_restarts must be positive, got %d", c.KMeansRestarts)
	}
	if c.TopN < 0 {
		return fmt.Errorf("top_n must not be negative, got %d", c.TopN)
	}
	for _, f := range c.RequiredFields {
		if strings.TrimSpace(f) == "" {
			return errors.New("required_fields must not contain empty names")
		}
	}
	if strings.TrimSpace(c.ServerAddr) == "" {
		return errors.New("server_addr must be set")
	}
	return nil
}

// PipelineOptions converts the configuration into risk pipeline options.
func (c *Global) PipelineOptions() risk.Options {
	opt := risk.DefaultOptions()
	opt.Contamination = c.Contamination
	opt.Clusters = c.RiskClusters
	opt.Seed = c.Seed
	opt.ForestTrees = c.ForestTrees
	opt.ForestSampleSize = c.ForestSampleSize
	opt.MinAnomalyRecords = c.MinAnomalyRecords
	opt.KMeansMaxIter = c.KMeansMaxIter
	opt.KMeansRestarts = c.KMeansRestarts
	opt.RankBySeverity = c.RankRiskGroups
	return opt
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"contamination", "risk_clusters", "seed", "required_fields",
	"forest_trees", "forest_sample_size", "min_anomaly_records",
	"kmeans_max_iter", "kmeans_restarts", "rank_risk_groups",
	"top_n", "profiles_dir", "server_addr",
}

// Get renders one key's value as text.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "contamination":
		return strconv.FormatFloat(c.Contamination, 'g', -1, 64), nil
	case "risk_clusters":
		return strconv.Itoa(c.RiskClusters), nil
	case "seed":
		return strconv.FormatInt(c.Seed, 10), nil
	case "required_fields":
		return strings.Join(c.RequiredFields, ","), nil
	case "forest_trees":
		return strconv.Itoa(c.ForestTrees), nil
	case "forest_sample_size":
		return strconv.Itoa(c.ForestSampleSize), nil
	case "min_anomaly_records":
		return strconv.Itoa(c.MinAnomalyRecords), nil
	case "kmeans_max_iter":
		return strconv.Itoa(c.KMeansMaxIter), nil
	case "kmeans_restarts":
		return strconv.Itoa(c.KMeansRestarts), nil
	case "rank_risk_groups":
		return strconv.FormatBool(c.RankRiskGroups), nil
	case "top_n":
		return strconv.Itoa(c.TopN), nil
	case "profiles_dir":
		return c.ProfilesDir, nil
	case "server_addr":
		return c.ServerAddr, nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Set parses val into key. The result is not validated; call Validate.
func (c *Global) Set(key, val string) error {
	atoi := func() (int, error) {
		i, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "contamination":
		f, perr := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if perr != nil {
			return fmt.Errorf("invalid float for contamination: %v", val)
		}
		c.Contamination = f
	case "risk_clusters":
		c.RiskClusters, err = atoi()
	case "seed":
		s, perr := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid int for seed: %v", val)
		}
		c.Seed = s
	case "required_fields":
		var fields []string
		for _, f := range strings.Split(val, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		c.RequiredFields = fields
	case "forest_trees":
		c.ForestTrees, err = atoi()
	case "forest_sample_size":
		c.ForestSampleSize, err = atoi()
	case "min_anomaly_records":
		c.MinAnomalyRecords, err = atoi()
	case "kmeans_max_iter":
		c.KMeansMaxIter, err = atoi()
	case "kmeans_restarts":
		c.KMeansRestarts, err = atoi()
	case "rank_risk_groups":
		b, perr := strconv.ParseBool(strings.TrimSpace(val))
		if perr != nil {
			return fmt.Errorf("invalid bool for rank_risk_groups: %v", val)
		}
		c.RankRiskGroups = b
	case "top_n":
		c.TopN, err = atoi()
	case "profiles_dir":
		c.ProfilesDir = val
	case "server_addr":
		c.ServerAddr = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return err
}
