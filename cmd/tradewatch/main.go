package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/tradewatch/tradewatch/internal/common"
	"github.com/tradewatch/tradewatch/internal/handlers"
	"github.com/tradewatch/tradewatch/internal/models"
	"github.com/tradewatch/tradewatch/internal/server"
	"github.com/tradewatch/tradewatch/internal/services/insights"
	"github.com/tradewatch/tradewatch/internal/services/jobs"
	"github.com/tradewatch/tradewatch/internal/services/llm"
	"github.com/tradewatch/tradewatch/internal/services/scheduler"
	"github.com/tradewatch/tradewatch/internal/services/sources"
	"github.com/tradewatch/tradewatch/internal/storage/sqlite"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	serverPort   = flag.Int("port", 0, "Server port (overrides config)")
	serverPortP  = flag.Int("p", 0, "Server port (shorthand, overrides config)")
	serverHost   = flag.String("host", "", "Server host (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("TradeWatch version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	finalPort := *serverPort
	if *serverPortP != 0 {
		finalPort = *serverPortP
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("tradewatch.toml"); err == nil {
			configFiles = append(configFiles, "tradewatch.toml")
		} else if _, err := os.Stat("deployments/local/tradewatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/tradewatch.toml")
		}
	}

	// Priority: defaults -> config files (in order) -> env -> CLI flags
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}
	if finalPort != 0 {
		config.Server.Port = finalPort
	}
	if *serverHost != "" {
		config.Server.Host = *serverHost
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.LoadVersionFromFile())

	logger.Info().
		Strs("config_files", configFiles).
		Str("environment", config.Environment).
		Int("port", config.Server.Port).
		Str("host", config.Server.Host).
		Str("sqlite_path", config.Storage.SQLite.Path).
		Msg("Configuration loaded")

	if err := run(config, logger); err != nil {
		logger.Fatal().Err(err).Msg("TradeWatch failed")
		os.Exit(1)
	}
}

func run(config *common.Config, logger arbor.ILogger) error {
	ctx := context.Background()

	manager, err := sqlite.NewManager(logger, &config.Storage.SQLite)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer manager.Close()

	if err := sqlite.SeedCatalog(ctx, manager, models.DefaultDataSources(), models.DefaultWidgetDefinitions()); err != nil {
		return fmt.Errorf("failed to seed catalog: %w", err)
	}

	client := sources.NewClient(config, logger)
	factory := llm.NewFactory(config, manager.KVStorage(), logger)
	publicContext := insights.NewPublicContextService(config, manager.KVStorage(), logger)
	generator := insights.NewGenerator(
		manager.SnapshotStorage(),
		manager.InsightStorage(),
		factory,
		publicContext,
		config,
		logger,
	)

	registry := jobs.NewService(config, client, manager.SnapshotStorage(), manager.JobRunStorage(), generator, logger)
	if err := registry.SeedJobDefinitions(ctx, manager.JobDefinitionStorage()); err != nil {
		return fmt.Errorf("failed to seed job definitions: %w", err)
	}

	sched := scheduler.NewService(
		config,
		registry,
		manager.JobDefinitionStorage(),
		manager.JobRunStorage(),
		manager.SnapshotStorage(),
		logger,
	)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	api := handlers.NewAPI(
		config,
		sched,
		manager.JobDefinitionStorage(),
		manager.JobRunStorage(),
		manager.SnapshotStorage(),
		manager.InsightStorage(),
		manager.CatalogStorage(),
		logger,
	)
	srv := server.New(config, api, logger)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}
