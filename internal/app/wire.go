package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alanyoungcy/hrcsafety/internal/analysis"
	s3blob "github.com/alanyoungcy/hrcsafety/internal/blob/s3"
	"github.com/alanyoungcy/hrcsafety/internal/cache/redis"
	"github.com/alanyoungcy/hrcsafety/internal/config"
	"github.com/alanyoungcy/hrcsafety/internal/domain"
	"github.com/alanyoungcy/hrcsafety/internal/ingest"
	"github.com/alanyoungcy/hrcsafety/internal/notify"
	"github.com/alanyoungcy/hrcsafety/internal/server/handler"
	"github.com/alanyoungcy/hrcsafety/internal/store/mongo"
	"github.com/alanyoungcy/hrcsafety/internal/store/postgres"
	"github.com/alanyoungcy/hrcsafety/internal/strategy"
)

// Dependencies bundles every domain-level dependency that the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional dependencies are nil when not configured.
type Dependencies struct {
	Registry *strategy.Registry

	// Run repository
	Records        domain.RecordSource
	Tasks          domain.TaskResultSource
	Synergies      domain.SynergySource
	RecordImporter domain.RecordImporter
	TaskImporter   domain.TaskResultImporter
	Documents      DocumentImporter

	// Redis
	ReportCache domain.ReportCache
	LockManager domain.LockManager
	EventBus    *redis.EventBus
	RateLimiter domain.RateLimiter

	// Object storage
	Blobs   domain.BlobReader
	Archive *s3blob.ReportArchive

	Notifier *notify.Notifier
	Metrics  *analysis.Metrics

	// Checks probe every connected backend for the health endpoint.
	Checks map[string]handler.Check
}

// DocumentImporter writes exported documents without converting them.
// The mongo experiment store implements it.
type DocumentImporter interface {
	ImportDocuments(ctx context.Context, experiment, target string, docs []map[string]any) (int64, error)
}

// needsS3 returns true when object storage is read from or written to.
func needsS3(cfg *config.Config) bool {
	return cfg.S3.Enabled || strings.EqualFold(cfg.Source.Kind, "s3") || cfg.Report.Upload
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources. Analyzer metrics are registered
// on reg.
func Wire(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Check)}

	registry, err := newRegistry(cfg.Strategies)
	if err != nil {
		return fail(fmt.Errorf("wire: strategies: %w", err))
	}
	deps.Registry = registry

	// --- S3 blob storage ---
	if needsS3(cfg) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		objects := s3blob.NewObjects(s3Client)
		deps.Blobs = objects
		deps.Archive = s3blob.NewReportArchive(objects, objects)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Run repository ---
	switch kind := strings.ToLower(cfg.Source.Kind); kind {
	case "csv", "s3":
		deps.Records = ingest.NewCSVSource(csvPaths(cfg, kind == "s3"), deps.Blobs)

	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		samples := postgres.NewSampleStore(pgClient.Pool())
		tasks := postgres.NewTaskResultStore(pgClient.Pool())
		deps.Records, deps.RecordImporter = samples, samples
		deps.Tasks, deps.TaskImporter = tasks, tasks
		deps.Checks["postgres"] = pgClient.Ping

	case "mongo":
		mongoClient, err := mongo.New(ctx, mongo.ClientConfig{
			URI:                    cfg.Mongo.URI,
			ServerSelectionTimeout: cfg.Mongo.ServerSelectionTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: mongo: %w", err))
		}
		closers = append(closers, func() { _ = mongoClient.Close(context.Background()) })

		store := mongo.NewExperimentStore(mongoClient, mongoLocations(cfg))
		deps.Records, deps.RecordImporter = store, store
		deps.Tasks, deps.TaskImporter = store, store
		deps.Synergies = store
		deps.Documents = store
		deps.Checks["mongo"] = mongoClient.Ping

	default:
		return fail(fmt.Errorf("wire: unsupported source kind %q", cfg.Source.Kind))
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.ReportCache = redis.NewReportCache(redisClient, cfg.Analysis.CacheTTL.Duration)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.EventBus = redis.NewEventBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramBotToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			notify.DefaultTelegramAPI,
			cfg.Notify.TelegramBotToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	deps.Metrics = analysis.NewMetrics(reg)

	return deps, cleanup, nil
}

// newRegistry builds the strategy registry from the configured labels,
// rules and exclusions.
func newRegistry(cfg config.StrategiesConfig) (*strategy.Registry, error) {
	entries := make([]strategy.Entry, 0, len(cfg.Labels))
	for _, l := range cfg.Labels {
		entries = append(entries, strategy.Entry{Key: l.Key, Label: l.Label})
	}
	rules := make([]strategy.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, strategy.Rule{Pattern: r.Pattern, Key: r.Key})
	}
	return strategy.NewRegistry(entries, rules, cfg.ExcludePatterns)
}

// csvPaths maps experiment names to their CSV files. With fromS3 set, paths
// without a scheme are read from the bucket.
func csvPaths(cfg *config.Config, fromS3 bool) map[string]string {
	paths := make(map[string]string, len(cfg.Experiments))
	for name, e := range cfg.Experiments {
		p := e.CSV
		if fromS3 && !strings.HasPrefix(p, ingest.S3Scheme) {
			p = ingest.S3Scheme + strings.TrimPrefix(p, "/")
		}
		paths[name] = p
	}
	return paths
}

func mongoLocations(cfg *config.Config) map[string]mongo.Location {
	locs := make(map[string]mongo.Location, len(cfg.Experiments))
	for _, name := range cfg.ExperimentNames() {
		e, _ := cfg.Experiment(name)
		locs[name] = mongo.Location{
			Database:  e.Database,
			Distances: e.DistanceCollection,
			Tasks:     e.TaskCollection,
			Synergies: e.SynergyCollection,
		}
	}
	return locs
}

// analysisParams converts the analysis section into analyzer parameters.
func analysisParams(cfg *config.Config) analysis.Params {
	return analysis.Params{
		Cap:        cfg.Analysis.Cap,
		GridStep:   cfg.Analysis.GridStep,
		Thresholds: cfg.Analysis.RiskThresholds,
		Sentinel:   cfg.Analysis.SentinelDistance,
		Workers:    cfg.Analysis.Workers,
		Baselines:  cfg.Strategies.Baselines,
		Durations:  cfg.Analysis.Durations,
		Synergies:  cfg.Analysis.Synergies,
		LockTTL:    cfg.Analysis.LockTTL.Duration,
	}
}

// newAnalyzer builds an Analyzer over deps. Nil concrete dependencies stay
// nil interfaces so the analyzer can skip them.
func newAnalyzer(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *analysis.Analyzer {
	d := analysis.Deps{
		Records:   deps.Records,
		Tasks:     deps.Tasks,
		Synergies: deps.Synergies,
		Cache:     deps.ReportCache,
		Locks:     deps.LockManager,
		Listener:  deps.Notifier,
		Metrics:   deps.Metrics,
	}
	if deps.EventBus != nil {
		d.Events = deps.EventBus
	}
	return analysis.New(d, deps.Registry, analysisParams(cfg), logger)
}
