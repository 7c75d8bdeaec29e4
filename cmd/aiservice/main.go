package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/qiongqiongyuren/co2yuan3/internal/api"
	"github.com/qiongqiongyuren/co2yuan3/internal/app/bootstrap"
	"github.com/qiongqiongyuren/co2yuan3/internal/config"
	"github.com/qiongqiongyuren/co2yuan3/internal/engine"
	"github.com/qiongqiongyuren/co2yuan3/internal/metrics"
	applog "github.com/qiongqiongyuren/co2yuan3/internal/platform/log"
)

const serviceName = "aiservice"

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var withGops bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/aiservice/config.yaml)")
	flag.BoolVar(&withGops, "gops", false, "Start the gops diagnostics agent")
	flag.Parse()

	applog.Init(applog.Config{Service: serviceName})

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		applog.Fatalf("failed to load config: %v", err)
	}

	applog.Init(applog.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Service: serviceName})
	if cfgPath != "" {
		applog.Info("config loaded", "path", cfgPath)
	} else {
		applog.Info("no config file found, using defaults")
	}

	if withGops {
		if err := agent.Listen(agent.Options{ShutdownCleanup: true}); err != nil {
			applog.Warnf("gops: %v", err)
		}
	}

	code := run(cfg)
	applog.Sync()
	os.Exit(code)
}

func run(cfg *config.AppConfig) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	gate := engine.NewGate()

	var admin *metrics.AdminServer
	if cfg.Admin.Port >= 0 {
		admin = metrics.NewAdminServer(cfg.Admin.Port, m, gate)
		if err := admin.Start(); err != nil {
			applog.Error("admin server failed to start", "error", err)
			return 1
		}
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second
	server := api.NewServer(serverConfig, gate, m)

	serveErr, err := server.Start()
	if err != nil {
		applog.Error("query server failed to start", "error", err)
		shutdown(cfg, nil, admin)
		return 1
	}

	components, err := bootstrap.Assemble(ctx, cfg)
	if err != nil {
		applog.Error("failed to assemble components", "error", err)
		shutdown(cfg, server, admin)
		return 1
	}
	defer components.Close()
	if components.Cache != nil {
		m.RegisterEmbeddingCache(components.Cache.Stats)
	}

	buildErr := make(chan error, 1)
	go func() {
		applog.Info("building index", "dir", cfg.Documents.Dir)
		e, err := engine.Build(ctx, components.Options)
		if err != nil {
			buildErr <- err
			return
		}
		stats := e.Stats()
		m.ObserveBuild(stats.Documents, stats.Chunks, stats.Duration)
		if err := gate.Publish(e); err != nil {
			buildErr <- err
			return
		}
		applog.Info("query engine ready",
			"documents", stats.Documents,
			"chunks", stats.Chunks,
			"duration", stats.Duration.String(),
		)
	}()

	code := 0
	select {
	case <-ctx.Done():
		applog.Info("shutting down")
	case err := <-buildErr:
		if !errors.Is(err, context.Canceled) {
			applog.Error("index build failed", "error", err)
			code = 1
		}
	case err := <-serveErr:
		if err != nil {
			applog.Error("query server error", "error", err)
			code = 1
		}
	}

	shutdown(cfg, server, admin)
	applog.Info("server stopped")
	return code
}

func shutdown(cfg *config.AppConfig, server *api.Server, admin *metrics.AdminServer) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Stop(ctx); err != nil {
			applog.Error("query server shutdown error", "error", err)
		}
	}
	if admin != nil {
		if err := admin.Stop(ctx); err != nil {
			applog.Error("admin server shutdown error", "error", err)
		}
	}
}
