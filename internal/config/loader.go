package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies HRCSAFETY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	// Tables under [experiments] are merged into the default experiments;
	// arrays such as [[strategies.labels]] replace the defaults.
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known HRCSAFETY_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Analysis ──
	setFloat64(&cfg.Analysis.Cap, "HRCSAFETY_ANALYSIS_CAP")
	setFloat64(&cfg.Analysis.GridStep, "HRCSAFETY_ANALYSIS_GRID_STEP")
	setFloat64Slice(&cfg.Analysis.RiskThresholds, "HRCSAFETY_ANALYSIS_RISK_THRESHOLDS")
	setFloat64(&cfg.Analysis.SentinelDistance, "HRCSAFETY_ANALYSIS_SENTINEL_DISTANCE")
	setInt(&cfg.Analysis.Workers, "HRCSAFETY_ANALYSIS_WORKERS")
	setBool(&cfg.Analysis.Durations, "HRCSAFETY_ANALYSIS_DURATIONS")
	setBool(&cfg.Analysis.Synergies, "HRCSAFETY_ANALYSIS_SYNERGIES")
	setDuration(&cfg.Analysis.CacheTTL, "HRCSAFETY_ANALYSIS_CACHE_TTL")
	setDuration(&cfg.Analysis.LockTTL, "HRCSAFETY_ANALYSIS_LOCK_TTL")

	// ── Strategies ──
	setStringSlice(&cfg.Strategies.Baselines, "HRCSAFETY_STRATEGIES_BASELINES")
	setStringSlice(&cfg.Strategies.ExcludePatterns, "HRCSAFETY_STRATEGIES_EXCLUDE_PATTERNS")

	// ── Source ──
	setStr(&cfg.Source.Kind, "HRCSAFETY_SOURCE_KIND")
	setStr(&cfg.Source.Experiment, "HRCSAFETY_SOURCE_EXPERIMENT")

	// ── Import ──
	setStr(&cfg.Import.File, "HRCSAFETY_IMPORT_FILE")
	setStr(&cfg.Import.Format, "HRCSAFETY_IMPORT_FORMAT")
	setStr(&cfg.Import.Target, "HRCSAFETY_IMPORT_TARGET")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "HRCSAFETY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "HRCSAFETY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "HRCSAFETY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "HRCSAFETY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "HRCSAFETY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "HRCSAFETY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "HRCSAFETY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "HRCSAFETY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "HRCSAFETY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "HRCSAFETY_POSTGRES_RUN_MIGRATIONS")

	// ── Mongo ──
	setStr(&cfg.Mongo.URI, "HRCSAFETY_MONGO_URI")
	setDuration(&cfg.Mongo.ServerSelectionTimeout, "HRCSAFETY_MONGO_SERVER_SELECTION_TIMEOUT")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "HRCSAFETY_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "HRCSAFETY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "HRCSAFETY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "HRCSAFETY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "HRCSAFETY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "HRCSAFETY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "HRCSAFETY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "HRCSAFETY_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "HRCSAFETY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "HRCSAFETY_S3_REGION")
	setStr(&cfg.S3.Bucket, "HRCSAFETY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "HRCSAFETY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "HRCSAFETY_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "HRCSAFETY_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "HRCSAFETY_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "HRCSAFETY_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "HRCSAFETY_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "HRCSAFETY_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "HRCSAFETY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "HRCSAFETY_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.ReadTimeout, "HRCSAFETY_SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "HRCSAFETY_SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.RefreshInterval, "HRCSAFETY_SERVER_REFRESH_INTERVAL")

	// ── Report ──
	setStringSlice(&cfg.Report.Formats, "HRCSAFETY_REPORT_FORMATS")
	setStr(&cfg.Report.OutputDir, "HRCSAFETY_REPORT_OUTPUT_DIR")
	setBool(&cfg.Report.Upload, "HRCSAFETY_REPORT_UPLOAD")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "HRCSAFETY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramBotToken, "HRCSAFETY_NOTIFY_TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "HRCSAFETY_NOTIFY_TELEGRAM_CHAT_ID")
	setStringSlice(&cfg.Notify.Events, "HRCSAFETY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "HRCSAFETY_MODE")
	setStr(&cfg.LogLevel, "HRCSAFETY_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		if cleaned := splitList(v); len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setFloat64Slice leaves dst untouched if any element fails to parse.
func setFloat64Slice(dst *[]float64, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	parts := splitList(v)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return
		}
		out = append(out, f)
	}
	if len(out) > 0 {
		*dst = out
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	cleaned := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	return cleaned
}
