package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/streamdesk/server/internal/admin"
	"github.com/streamdesk/server/internal/archive"
	"github.com/streamdesk/server/internal/authn"
	"github.com/streamdesk/server/internal/config"
	"github.com/streamdesk/server/internal/health"
	"github.com/streamdesk/server/internal/logging"
	"github.com/streamdesk/server/internal/metrics"
	"github.com/streamdesk/server/internal/ratelimit"
	"github.com/streamdesk/server/internal/server"
	"github.com/streamdesk/server/internal/session"
	"github.com/streamdesk/server/internal/store"
	"github.com/streamdesk/server/internal/workerpool"
)

var version = "0.1.0"

var cfgFile string

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "streamdesk-server",
	Short: "StreamDesk remote-desktop and session-recording server",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("streamdesk-server v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/streamdesk/streamdesk.yaml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging(cfg *config.Config) {
	var output io.Writer = os.Stdout

	if cfg.LogFile != "" {
		rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file %s: %v (logging to stdout only)\n", cfg.LogFile, err)
		} else {
			output = logging.TeeWriter(os.Stdout, rw)
		}
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

func runServer() {
	cfg, warnings, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	initLogging(cfg)
	for _, w := range warnings {
		log.Warn("config warning", "detail", w)
	}

	log.Info("starting streamdesk-server",
		"version", version,
		"listen", cfg.ListenAddress,
		"recordingsDir", cfg.RecordingsDir,
	)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Error("open database failed", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	archiver, err := archive.New(ctx, cfg)
	if err != nil {
		log.Error("configure archive uploader failed", "provider", cfg.ArchiveProvider, "error", err)
		os.Exit(1)
	}

	m, metricsHandler := metrics.New()

	registry := session.NewRegistry()
	loggedIn := authn.NewLoggedInSet()
	authenticator := authn.New(st, loggedIn)
	loginLimiter := ratelimit.New(cfg.LoginRateLimitPerSecond, cfg.LoginRateLimitBurst, 10*time.Minute)

	pool := workerpool.New()
	srv := server.New(server.Deps{
		Store:         st,
		Registry:      registry,
		Authenticator: authenticator,
		LoginLimiter:  loginLimiter,
		RecordingsDir: cfg.RecordingsDir,
		Archiver:      archiver,
		Metrics:       m,
	}, pool)

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error("listen failed", "address", cfg.ListenAddress, "error", err)
		os.Exit(1)
	}

	monitor := health.NewMonitor()
	go health.RunPeriodic(ctx, monitor, registry, st, 30*time.Second)

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsHandler)
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if monitor.Overall() != health.Healthy {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			json.NewEncoder(w).Encode(monitor.Summary())
		})
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "address", cfg.MetricsAddress, "error", err)
			}
		}()
		log.Info("metrics endpoint listening", "address", cfg.MetricsAddress)
	}

	var adminServer *admin.Server
	if cfg.AdminSocketPath != "" && cfg.AdminToken != "" {
		adminListener, err := admin.Listen(cfg.AdminSocketPath)
		if err != nil {
			log.Error("admin socket listen failed", "path", cfg.AdminSocketPath, "error", err)
		} else {
			adminServer = admin.NewServer(adminListener, cfg.AdminToken, registry)
			go func() {
				if err := adminServer.Serve(); err != nil {
					log.Debug("admin control socket stopped", "error", err)
				}
			}()
			log.Info("admin control socket listening", "path", cfg.AdminSocketPath)
		}
	} else {
		log.Info("admin control socket disabled, set admin_token to enable")
	}

	go func() {
		if err := srv.Accept(ctx, listener); err != nil {
			log.Info("accept loop stopped", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining connections")

	listener.Close()
	if adminServer != nil {
		adminServer.Close()
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer drainCancel()
	pool.Shutdown(drainCtx)

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	log.Info("streamdesk-server stopped")
}
