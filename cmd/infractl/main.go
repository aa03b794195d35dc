package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/infractl/pkg/admission"
	"github.com/cuemby/infractl/pkg/agentclient"
	"github.com/cuemby/infractl/pkg/collector"
	"github.com/cuemby/infractl/pkg/config"
	"github.com/cuemby/infractl/pkg/deploy"
	"github.com/cuemby/infractl/pkg/log"
	"github.com/cuemby/infractl/pkg/queue"
	"github.com/cuemby/infractl/pkg/retention"
	"github.com/cuemby/infractl/pkg/router"
	"github.com/cuemby/infractl/pkg/storage"
	"github.com/cuemby/infractl/pkg/token"
	"github.com/cuemby/infractl/pkg/types"
	"github.com/cuemby/infractl/pkg/updater"
	"github.com/cuemby/infractl/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// defaultRateLimit/defaultRateWindow bound the admission pipeline's
// sliding-window rate limiter; not exposed in config since the spec
// names it as a fixed part of the admission design (§4.10), not a tunable.
const (
	defaultRateLimit  = 100
	defaultRateWindow = 60 * time.Second
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "infractl",
	Short: "infractl - lightweight distributed deployment and monitoring agent",
	Long: `infractl runs either as a Home node (storage, dashboard, scheduling) or
as an Agent node (local deploys, metric collection), exposed over a single
HTTP surface behind bearer-token and network-isolation admission rules.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"infractl version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Path to config file (overrides INFRACTL_CONFIG)")

	cobra.OnInitialize(initLogging)

	rootCmd.RunE = runCmd.RunE
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(selfUpdateCmd)
}

func initLogging() {
	level := os.Getenv("INFRACTL_LOG_LEVEL")
	if level == "" {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	jsonOutput := os.Getenv("INFRACTL_LOG_FORMAT") == "json"
	if !jsonOutput {
		flagJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
		jsonOutput = flagJSON
	}

	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}

// configPath resolves the active config path from the --config flag, then
// INFRACTL_CONFIG, then the package default, mirroring config.ResolvePath.
func configPath(cmd *cobra.Command) string {
	override, _ := cmd.Flags().GetString("config")
	return config.ResolvePath(override)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the infractl service (default command)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runService(configPath(cmd))
	},
}

func runService(path string) error {
	logger := log.WithComponent("main")

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	startedAt := time.Now()
	tokens := token.NewService(cfg.Auth.Secret)

	var store *storage.Engine
	var routerStore router.Store
	var admissionStore admission.Store
	var workerStore worker.Storage
	var scheduler *retention.Scheduler

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if cfg.Mode == types.ModeHome {
		store, err = storage.Open(rootCtx, cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer store.Close()
		routerStore = store
		admissionStore = store
		workerStore = store
		scheduler = retention.New(store, cfg.Retention)
	}

	pipeline, err := admission.NewPipeline(admission.Config{
		IsolationMode: cfg.Server.IsolationMode,
		AllowedCIDRs:  cfg.Server.AllowedCIDRs,
		RateLimit:     defaultRateLimit,
		RateWindow:    defaultRateWindow,
	}, tokens, admissionStore)
	if err != nil {
		return fmt.Errorf("build admission pipeline: %w", err)
	}

	var agentClient *agentclient.Client
	if cfg.Mode == types.ModeAgent && cfg.Server.HomeAddress != "" {
		agentClient = agentclient.New(cfg.Server.HomeAddress, agentName(cfg), tokens)
	}

	q := queue.New(cfg.Storage.MaxHistory)
	executor := deploy.NewExecutor()

	coll := collector.New()
	var metricsLoop *collector.Loop
	switch {
	case cfg.Mode == types.ModeHome:
		metricsLoop = collector.NewLoop(coll, agentName(cfg), Version, startedAt, cfg.Metrics.CollectEvery, store, nil)
	case agentClient != nil:
		metricsLoop = collector.NewLoop(coll, agentName(cfg), Version, startedAt, cfg.Metrics.CollectEvery, nil, agentClient)
	}

	srv := router.New(router.Deps{
		Mode:        cfg.Mode,
		Config:      cfg,
		Pipeline:    pipeline,
		Queue:       q,
		Executor:    executor,
		Store:       routerStore,
		AgentClient: agentClient,
		Collector:   coll,
		AgentName:   agentName(cfg),
		Tokens:      tokens,
		Version:     Version,
		StartedAt:   startedAt,
	})

	w := worker.New(cfg.Mode, q, executor, workerStore, cfg.Deployments, agentName(cfg))

	u := updater.New(cfg.Updater, Version, execPath(), updaterBackupDir(path), path, configBackupDir(path))

	pipeline.StartSweep(rootCtx)
	w.Start(rootCtx)
	u.Start(rootCtx)
	if scheduler != nil {
		scheduler.Start(rootCtx)
	}
	if metricsLoop != nil {
		metricsLoop.Start(rootCtx)
	}

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.BindAddr, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		logger.Info().Str("addr", httpSrv.Addr).Str("mode", string(cfg.Mode)).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	w.Stop()
	u.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}
	if metricsLoop != nil {
		metricsLoop.Stop()
	}

	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func agentName(cfg *types.Config) string {
	if cfg.Mode == types.ModeHome {
		return "home"
	}
	if hostname, err := os.Hostname(); err == nil {
		return hostname
	}
	return "agent"
}

func execPath() string {
	p, err := os.Executable()
	if err != nil {
		return os.Args[0]
	}
	return p
}

// updaterBackupDir and configBackupDir sit next to the active config file,
// per §3's ".infractl-backup/" and ".config-backup/" layout.
func updaterBackupDir(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".infractl-backup")
}

func configBackupDir(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".config-backup")
}
