// Package config defines the top-level configuration for the safety
// statistics engine and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by HRCSAFETY_* environment variables.
type Config struct {
	Analysis    AnalysisConfig              `toml:"analysis"`
	Strategies  StrategiesConfig            `toml:"strategies"`
	Source      SourceConfig                `toml:"source"`
	Experiments map[string]ExperimentConfig `toml:"experiments"`
	Import      ImportConfig                `toml:"import"`
	Postgres    PostgresConfig              `toml:"postgres"`
	Mongo       MongoConfig                 `toml:"mongo"`
	Redis       RedisConfig                 `toml:"redis"`
	S3          S3Config                    `toml:"s3"`
	Server      ServerConfig                `toml:"server"`
	Report      ReportConfig                `toml:"report"`
	Notify      NotifyConfig                `toml:"notify"`
	Mode        string                      `toml:"mode"`
	LogLevel    string                      `toml:"log_level"`
}

// AnalysisConfig holds the numeric parameters of the distribution, band and
// risk computations.
type AnalysisConfig struct {
	Cap              float64   `toml:"cap"`
	GridStep         float64   `toml:"grid_step"`
	BandSigma        float64   `toml:"band_sigma"`
	RiskThresholds   []float64 `toml:"risk_thresholds"`
	SentinelDistance float64   `toml:"sentinel_distance"`
	Workers          int       `toml:"workers"`
	Durations        bool      `toml:"durations"`
	Synergies        bool      `toml:"synergies"`
	CacheTTL         duration  `toml:"cache_ttl"`
	LockTTL          duration  `toml:"lock_ttl"`
}

// StrategiesConfig describes how recipes map onto strategies. Labels are
// listed in output order.
type StrategiesConfig struct {
	Rules           []RuleConfig  `toml:"rules"`
	Labels          []LabelConfig `toml:"labels"`
	Baselines       []string      `toml:"baselines"`
	ExcludePatterns []string      `toml:"exclude_patterns"`
}

// RuleConfig assigns Key to recipes containing Pattern.
type RuleConfig struct {
	Pattern string `toml:"pattern"`
	Key     string `toml:"key"`
}

// LabelConfig is a strategy key and its display label.
type LabelConfig struct {
	Key   string `toml:"key"`
	Label string `toml:"label"`
}

// SourceConfig selects the run repository.
type SourceConfig struct {
	Kind       string `toml:"kind"`
	Experiment string `toml:"experiment"`
}

// ExperimentConfig locates one experiment in each kind of repository.
type ExperimentConfig struct {
	CSV                string `toml:"csv"`
	Database           string `toml:"database"`
	DistanceCollection string `toml:"distance_collection"`
	TaskCollection     string `toml:"task_collection"`
	SynergyCollection  string `toml:"synergy_collection"`
}

// ImportConfig describes the file loaded by the import mode.
type ImportConfig struct {
	File   string `toml:"file"`
	Format string `toml:"format"`
	Target string `toml:"target"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// MongoConfig holds MongoDB connection parameters.
type MongoConfig struct {
	URI                    string   `toml:"uri"`
	ServerSelectionTimeout duration `toml:"server_selection_timeout"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps analysis requests per client within RateWindow. It needs
	// redis; 0 disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
	// ReadTimeout and WriteTimeout bound HTTP requests. Analyses run inside
	// the write timeout.
	ReadTimeout  duration `toml:"read_timeout"`
	WriteTimeout duration `toml:"write_timeout"`
	// RefreshInterval re-analyzes every experiment in the background; 0
	// disables it.
	RefreshInterval duration `toml:"refresh_interval"`
}

// ReportConfig controls which report files are written and where.
type ReportConfig struct {
	Formats   []string `toml:"formats"`
	OutputDir string   `toml:"output_dir"`
	Upload    bool     `toml:"upload"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramBotToken  string   `toml:"telegram_bot_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Analysis: AnalysisConfig{
			Cap:              4.0,
			GridStep:         0.01,
			BandSigma:        2.0,
			RiskThresholds:   []float64{0.4, 0.5, 0.7, 0.8},
			SentinelDistance: 1000,
			Workers:          4,
			Durations:        true,
			Synergies:        true,
			CacheTTL:         duration{24 * time.Hour},
			LockTTL:          duration{5 * time.Minute},
		},
		Strategies: StrategiesConfig{
			Labels: []LabelConfig{
				{Key: "COMPLETE_HA_SOLVER", Label: "Synergistic TP"},
				{Key: "RELAXED_HA_SOLVER", Label: "Relaxed S. TP"},
				{Key: "NOT_NEIGHBORING_SOLVER", Label: "Not Neighboring TP"},
				{Key: "BASIC_SOLVER", Label: "Baseline TP"},
			},
			Baselines:       []string{"BASIC_SOLVER", "NOT_NEIGHBORING_SOLVER"},
			ExcludePatterns: []string{"TEST"},
		},
		Source: SourceConfig{
			Kind:       "csv",
			Experiment: "safety_areas",
		},
		Experiments: map[string]ExperimentConfig{
			"safety_areas": {
				CSV:      "safety_areas/Distance_Monitoring/hr_distance.csv",
				Database: "safety_areas",
			},
			"velocity_scaling": {
				CSV:      "velocity_scaling/Distance_Monitoring/hr_distance.csv",
				Database: "velocity_scaling",
			},
			"realworld_case_study": {
				CSV:      "hrc_case_study/hrc_case_study_results/Distance_Monitoring/hr_distance.csv",
				Database: "hrc_case_study",
			},
		},
		Import: ImportConfig{
			Format: "json",
			Target: "records",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "hrcsafety",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Mongo: MongoConfig{
			URI:                    "mongodb://localhost:27017/",
			ServerSelectionTimeout: duration{5 * time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "hrcsafety",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000"},
			RateLimit:    10,
			RateWindow:   duration{time.Minute},
			ReadTimeout:  duration{15 * time.Second},
			WriteTimeout: duration{5 * time.Minute},
		},
		Report: ReportConfig{
			Formats:   []string{"json", "csv", "latex", "text"},
			OutputDir: "reports",
		},
		Notify: NotifyConfig{
			Events: []string{"analysis_completed", "analysis_failed"},
		},
		Mode:     "analyze",
		LogLevel: "info",
	}
}

// Experiment returns the settings of name with collection defaults applied.
func (c *Config) Experiment(name string) (ExperimentConfig, bool) {
	e, ok := c.Experiments[name]
	if !ok {
		return ExperimentConfig{}, false
	}
	if e.Database == "" {
		e.Database = name
	}
	if e.DistanceCollection == "" {
		e.DistanceCollection = "hr_distance"
	}
	if e.TaskCollection == "" {
		e.TaskCollection = "task_results_online"
	}
	if e.SynergyCollection == "" {
		e.SynergyCollection = "task_synergies"
	}
	return e, true
}

// ExperimentNames returns the configured experiments in sorted order.
func (c *Config) ExperimentNames() []string {
	names := make([]string, 0, len(c.Experiments))
	for name := range c.Experiments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"analyze": true,
	"serve":   true,
	"import":  true,
}

var validSources = map[string]bool{
	"csv":      true,
	"s3":       true,
	"postgres": true,
	"mongo":    true,
}

var validFormats = map[string]bool{
	"json":  true,
	"csv":   true,
	"latex": true,
	"text":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: analyze, serve, import)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Analysis
	a := c.Analysis
	if !(a.Cap > 0) || math.IsInf(a.Cap, 0) {
		errs = append(errs, "analysis: cap must be a positive finite distance")
	}
	if !(a.GridStep > 0) || math.IsInf(a.GridStep, 0) {
		errs = append(errs, "analysis: grid_step must be > 0")
	}
	if a.BandSigma != 2 {
		errs = append(errs, fmt.Sprintf("analysis: band_sigma is fixed at 2, got %v", a.BandSigma))
	}
	for _, th := range a.RiskThresholds {
		if !(th > 0) || math.IsInf(th, 0) {
			errs = append(errs, fmt.Sprintf("analysis: risk threshold %v must be a positive finite distance", th))
		}
	}
	if a.SentinelDistance < 0 {
		errs = append(errs, "analysis: sentinel_distance must be >= 0 (0 disables it)")
	}
	if a.Workers < 1 {
		errs = append(errs, "analysis: workers must be >= 1")
	}

	// Strategies
	known := make(map[string]bool, len(c.Strategies.Labels))
	if len(c.Strategies.Labels) == 0 {
		errs = append(errs, "strategies: at least one label entry is required")
	}
	for _, l := range c.Strategies.Labels {
		if l.Key == "" {
			errs = append(errs, "strategies: label entry with empty key")
			continue
		}
		if known[l.Key] {
			errs = append(errs, fmt.Sprintf("strategies: duplicate label entry %q", l.Key))
		}
		known[l.Key] = true
	}
	for _, r := range c.Strategies.Rules {
		if r.Pattern == "" {
			errs = append(errs, fmt.Sprintf("strategies: rule for %q has an empty pattern", r.Key))
		}
		if !known[r.Key] {
			errs = append(errs, fmt.Sprintf("strategies: rule %q targets unlabelled key %q", r.Pattern, r.Key))
		}
	}
	for _, b := range c.Strategies.Baselines {
		if !known[b] {
			errs = append(errs, fmt.Sprintf("strategies: baseline %q is not a labelled strategy", b))
		}
	}

	// Source
	kind := strings.ToLower(c.Source.Kind)
	if !validSources[kind] {
		errs = append(errs, fmt.Sprintf("source: unknown kind %q (valid: csv, s3, postgres, mongo)", c.Source.Kind))
	}
	if len(c.Experiments) == 0 {
		errs = append(errs, "experiments: at least one experiment is required")
	}
	if mode != "serve" {
		if _, ok := c.Experiments[c.Source.Experiment]; !ok {
			errs = append(errs, fmt.Sprintf("source: experiment %q is not configured", c.Source.Experiment))
		}
	}
	if kind == "csv" || kind == "s3" {
		for name, e := range c.Experiments {
			if e.CSV == "" {
				errs = append(errs, fmt.Sprintf("experiments.%s: csv must be set for source kind %s", name, kind))
			}
		}
	}

	// Import
	if mode == "import" {
		if kind != "postgres" && kind != "mongo" {
			errs = append(errs, "import: source kind must be postgres or mongo")
		}
		if c.Import.File == "" {
			errs = append(errs, "import: file must be set")
		}
		if f := c.Import.Format; f != "json" && f != "csv" {
			errs = append(errs, fmt.Sprintf("import: unknown format %q (valid: json, csv)", f))
		}
		switch t := c.Import.Target; t {
		case "records":
		case "task_results", "synergies":
			if c.Import.Format == "csv" {
				errs = append(errs, fmt.Sprintf("import: %s can only be imported from json", t))
			}
			if t == "synergies" && c.Source.Kind != "mongo" {
				errs = append(errs, "import: synergies need source kind mongo")
			}
		default:
			errs = append(errs, fmt.Sprintf("import: unknown target %q (valid: records, task_results, synergies)", t))
		}
	}

	// Postgres
	if kind == "postgres" && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Mongo
	if kind == "mongo" && c.Mongo.URI == "" {
		errs = append(errs, "mongo: uri must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	needsS3 := c.S3.Enabled || kind == "s3" || c.Report.Upload
	if needsS3 {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Report
	for _, f := range c.Report.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Sprintf("report: unknown format %q (valid: json, csv, latex, text)", f))
		}
	}
	if mode == "analyze" && c.Report.OutputDir == "" && !c.Report.Upload {
		errs = append(errs, "report: output_dir or upload is required in analyze mode")
	}

	// Server
	if mode == "serve" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
		if c.Server.RefreshInterval.Duration < 0 {
			errs = append(errs, "server: refresh_interval must be >= 0")
		}
	}

	// Notify
	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_bot_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
