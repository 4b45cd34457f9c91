package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mcserverd/mcserverd/pkg/artifact"
	"github.com/mcserverd/mcserverd/pkg/cache"
	"github.com/mcserverd/mcserverd/pkg/config"
	"github.com/mcserverd/mcserverd/pkg/download"
	"github.com/mcserverd/mcserverd/pkg/loader"
	"github.com/mcserverd/mcserverd/pkg/log"
	"github.com/mcserverd/mcserverd/pkg/metrics"
	"github.com/mcserverd/mcserverd/pkg/orchestrator"
	"github.com/mcserverd/mcserverd/pkg/provider"
	"github.com/mcserverd/mcserverd/pkg/registry"
	"github.com/mcserverd/mcserverd/pkg/storage"
	"github.com/mcserverd/mcserverd/pkg/types"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mcserverd",
	Short: "mcserverd - Minecraft server instance manager engine",
	Long: `mcserverd manages a fleet of independently configured Minecraft server
instances: provisioning their binaries and mod content from upstream
providers, supervising their child processes across the full
install/start/run/stop/crash-recover lifecycle, and exposing that control
surface to scripts and ops tooling as a CLI.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("mcserverd version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime))

	rootCmd.PersistentFlags().String("root-dir", defaultRootDir(), "Application root directory (instances, cache, artifacts)")
	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (defaults to <root-dir>/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(daemonCmd)
	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(modCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

func defaultRootDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mcserverd"
	}
	return filepath.Join(home, ".mcserverd")
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

// app bundles every long-lived collaborator a command needs, along with a
// close func that releases the underlying bolt handle.
type app struct {
	cfg  *config.Config
	orch *orchestrator.Orchestrator
	reg  *registry.Registry
	close func() error
}

func buildApp(cmd *cobra.Command) (*app, error) {
	rootDir, _ := cmd.Flags().GetString("root-dir")
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = filepath.Join(rootDir, "config.yaml")
	}

	serverDir := filepath.Join(rootDir, "server")
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating server directory: %w", err)
	}

	cfg, err := config.Load(configPath, rootDir)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewBoltStore(serverDir)
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	reg := registry.New(store, serverDir)
	artifactStore := artifact.NewStore(filepath.Join(serverDir, "resources", "artifacts"))
	httpClient := provider.NewHTTPClient()
	downloader := download.New(httpClient)
	cacheMgr := cache.NewManager(filepath.Join(serverDir, "cache"))
	dispatcher := loader.New(cacheMgr, downloader, artifactStore, httpClient)

	providers := map[types.ProviderName]provider.ModProvider{
		types.ProviderModrinth:   provider.NewModrinthClient(httpClient, cacheMgr),
		types.ProviderCurseForge: provider.NewCurseForgeClient(httpClient, cacheMgr, cfg.CurseForgeAPIKey),
		types.ProviderSpiget:     provider.NewSpigetClient(httpClient, cacheMgr),
		types.ProviderHangar:     provider.NewHangarClient(httpClient, cacheMgr),
	}

	orch := orchestrator.New(reg, dispatcher, artifactStore, downloader, providers)

	return &app{
		cfg:  cfg,
		orch: orch,
		reg:  reg,
		close: func() error { return store.Close() },
	}, nil
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background daemon: periodic maintenance plus metrics/health endpoints",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		maintenanceInterval, _ := cmd.Flags().GetDuration("maintenance-interval")

		collector := metrics.NewCollector(a.reg, a.orch)
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.RegisterComponent("registry", true, "ready")

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		mux.HandleFunc("/readyz", metrics.ReadyHandler())
		mux.HandleFunc("/livez", metrics.LivenessHandler())

		httpServer := &http.Server{Addr: listenAddr, Handler: mux}
		errCh := make(chan error, 1)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- err
			}
		}()

		stopMaintenance := make(chan struct{})
		go runMaintenanceLoop(a.orch, maintenanceInterval, stopMaintenance)

		fmt.Printf("mcserverd daemon running. Metrics/health on %s\n", listenAddr)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nhttp server error: %v\n", err)
		}

		close(stopMaintenance)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)

		fmt.Println("shutdown complete")
		return nil
	},
}

func init() {
	daemonCmd.Flags().String("listen-addr", ":9090", "Address for the metrics/health HTTP endpoints")
	daemonCmd.Flags().Duration("maintenance-interval", time.Hour, "Interval between artifact-store maintenance sweeps")
}

func runMaintenanceLoop(orch *orchestrator.Orchestrator, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := log.WithComponent("mcserverd")

	for {
		select {
		case <-ticker.C:
			report, err := orch.PerformMaintenance()
			if err != nil {
				logger.Warn().Err(err).Msg("maintenance sweep failed")
				continue
			}
			logger.Info().Int("scanned", report.Scanned).Int("added", report.Added).Int("pruned", report.Pruned).Msg("maintenance sweep complete")
		case <-stop:
			return
		}
	}
}
