// Command metadatapipeline is a composition-root binary: it wires the
// connection registry, datasource adapters, LLM gateway, profiling
// pipeline, job manager, and storage adapter together, then runs one
// metadata generation from CLI flags, synchronously or as a submitted job.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/redis/go-redis/v9"

	"github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource"
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/bigquery" // register bigquery adapter
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/duckdb"   // register duckdb adapter
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/mysql"    // register mysql adapter
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/oracle"   // register oracle adapter
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/postgres" // register postgres adapter
	_ "github.com/metadata-pipeline/metadatapipeline/pkg/adapters/datasource/sqlite"   // register sqlite adapter
	"github.com/metadata-pipeline/metadatapipeline/pkg/config"
	"github.com/metadata-pipeline/metadatapipeline/pkg/crypto"
	"github.com/metadata-pipeline/metadatapipeline/pkg/jobs"
	"github.com/metadata-pipeline/metadatapipeline/pkg/llm"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/pipeline"
	"github.com/metadata-pipeline/metadatapipeline/pkg/registry"
	"github.com/metadata-pipeline/metadatapipeline/pkg/sessioncache"
	"github.com/metadata-pipeline/metadatapipeline/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logger *zap.Logger
	if cfg.Env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Float64("cost_ceiling_usd", cfg.CostCeiling),
		zap.String("metadata_output_dir", cfg.MetadataOutputDir),
	)

	credentialEncryptor, err := crypto.NewCredentialEncryptor(cfg.CredentialEncryptionKey)
	if err != nil {
		logger.Fatal("failed to initialize credential encryptor", zap.Error(err))
	}

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	sessionCache := sessioncache.New(redisClient, credentialEncryptor, logger)

	connMgr := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{
		TTL:          datasource.DefaultConnectionTTL,
		PoolMaxConns: datasource.DefaultPoolMaxConns,
		PoolMinConns: datasource.DefaultPoolMinConns,
	}, logger)
	defer connMgr.Close()

	adapterFactory := datasource.NewDatasourceAdapterFactory(connMgr)

	fileTier := make([]models.ConnectionSpec, 0, len(cfg.Connections))
	for name, entry := range cfg.Connections {
		fileTier = append(fileTier, entry.ToModel(name))
	}
	credentialResolver := registry.NewCredentialResolver(os.LookupEnv, sessionCache)
	connRegistry := registry.New(adapterFactory, credentialResolver, fileTier, logger)

	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize LLM provider", zap.Error(err))
	}

	ledger := models.NewCostLedger(cfg.CostCeiling)
	gatewayConfig := llm.DefaultGatewayConfig()
	gatewayConfig.Retry.MaxRetries = cfg.Retry.MaxAttempts - 1
	gatewayConfig.Retry.InitialDelay = cfg.Retry.InitialWait
	gatewayConfig.Retry.MaxDelay = cfg.Retry.MaxWait
	gateway := llm.NewGateway(provider, ledger, gatewayConfig, logger)

	orchestrator := pipeline.New(adapterFactory, gateway, logger)
	documentStore := storage.New(cfg.MetadataOutputDir)

	jobManager := jobs.NewManager(orchestrator, logger,
		jobs.WithDocumentStore(documentStore),
		jobs.WithCleanupHorizon(cfg.JobCleanupHorizon),
	)
	defer jobManager.Shutdown()

	owner, connName, req, async := parseFlags()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	conn, ok := connRegistry.Get(owner, connName)
	if !ok {
		logger.Fatal("no such connection", zap.String("owner", owner), zap.String("connection", connName))
	}
	credential, err := credentialResolver.Resolve(ctx, conn)
	if err != nil {
		logger.Fatal("failed to resolve connection credential", zap.String("connection", connName), zap.Error(err))
	}
	connConfig := registry.BuildConnConfig(conn, credential)

	if async {
		job := jobManager.Submit(models.JobKindMetadata, conn, connConfig, req)
		logger.Info("submitted generation job", zap.String("job_id", job.ID))

		if err := jobManager.Wait(ctx); err != nil {
			logger.Fatal("job wait failed", zap.Error(err))
		}
		final, _ := jobManager.Get(job.ID)
		reportResult(logger, final)
		return
	}

	doc, err := orchestrator.Run(ctx, conn, connConfig, req)
	if err != nil {
		logger.Fatal("generation run failed", zap.Error(err))
	}
	if err := documentStore.Save(ctx, doc); err != nil {
		logger.Fatal("failed to persist generated document", zap.Error(err))
	}
	logger.Info("generation complete",
		zap.String("table", doc.Table),
		zap.String("path", storage.FullyQualifiedName(doc.Database, doc.Schema, doc.Table)))
}

func reportResult(logger *zap.Logger, job models.Job) {
	if job.Status == models.JobFailed {
		logger.Fatal("job failed", zap.String("job_id", job.ID), zap.String("error", job.Error))
	}
	logger.Info("job complete", zap.String("job_id", job.ID), zap.String("table", job.Result.Table))
}

func newRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func newLLMProvider(cfg *config.Config, logger *zap.Logger) (llm.ProviderClient, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return llm.NewAnthropicClient(&llm.AnthropicConfig{
			APIKey: cfg.LLM.APIKey,
			Model:  cfg.LLM.Model,
		}, logger)
	default:
		return llm.NewClient(&llm.Config{
			Endpoint: cfg.LLM.BaseURL,
			Model:    cfg.LLM.Model,
			APIKey:   cfg.LLM.APIKey,
		}, logger)
	}
}

func parseFlags() (owner, connection string, req models.GenerationRequest, async bool) {
	ownerFlag := flag.String("owner", "system", "connection owner")
	connectionFlag := flag.String("connection", "", "connection name to generate metadata from (required)")
	dbFlag := flag.String("db", "", "database name (required)")
	schemaFlag := flag.String("schema", "", "schema name (required)")
	tableFlag := flag.String("table", "", "table name (required)")
	sampleSize := flag.Int("sample_size", 20, "rows per sample, 1..10000")
	numSamples := flag.Int("num_samples", 5, "number of samples to draw, 1..20")
	maxPartitions := flag.Int("max_partitions", 10, "maximum partitions to profile, 1..100")
	asyncFlag := flag.Bool("async", false, "submit as an asynchronous job instead of running synchronously")

	relationships := flag.Bool("relationships", true, "include relationship inference")
	aggregationRules := flag.Bool("aggregation_rules", true, "include aggregation rules")
	queryRules := flag.Bool("query_rules", true, "include query rules")
	dataQuality := flag.Bool("data_quality", true, "include data quality metrics")
	queryExamples := flag.Bool("query_examples", true, "include query examples")
	additionalInsights := flag.Bool("additional_insights", true, "include additional insights")
	businessRules := flag.Bool("business_rules", true, "include business rules")
	categoricalDefinitions := flag.Bool("categorical_definitions", true, "include categorical glossary")

	flag.Parse()

	if *connectionFlag == "" || *dbFlag == "" || *schemaFlag == "" || *tableFlag == "" {
		fmt.Fprintln(os.Stderr, "usage: metadatapipeline -connection NAME -db NAME -schema NAME -table NAME [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	req = models.GenerationRequest{
		Database:      *dbFlag,
		Schema:        *schemaFlag,
		Table:         *tableFlag,
		SampleSize:    *sampleSize,
		NumSamples:    *numSamples,
		MaxPartitions: *maxPartitions,
		Options: models.GenerationOptions{
			Relationships:          *relationships,
			AggregationRules:       *aggregationRules,
			QueryRules:             *queryRules,
			DataQuality:            *dataQuality,
			QueryExamples:          *queryExamples,
			AdditionalInsights:     *additionalInsights,
			BusinessRules:          *businessRules,
			CategoricalDefinitions: *categoricalDefinitions,
		},
	}

	return *ownerFlag, *connectionFlag, req, *asyncFlag
}
