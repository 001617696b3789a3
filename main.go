package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"TableDetFront/app"
	"TableDetFront/config"
	"TableDetFront/detclient"
	backend "TableDetFront/gRPC"
	"TableDetFront/logger"
	"TableDetFront/monitor"
	"TableDetFront/notify"
	"TableDetFront/preview"
	"TableDetFront/session"
	"TableDetFront/web"

	"go.uber.org/zap"
)

const reapInterval = time.Minute

func banner(cfg *config.Config) {
	fmt.Println(strings.Repeat("#", 64))
	fmt.Printf("CPU Cores: %d\n", runtime.NumCPU())
	fmt.Println(" Detection API:", cfg.APIBaseURL)
	fmt.Println("  HTTP   Port:", cfg.ListenPort)
	fmt.Println("  gRPC   Port:", cfg.RPCPort)
	fmt.Println(" Metrics Port:", cfg.MetricsPort)
	fmt.Printf("Request timeout: %s, max file size: %dMB\n", cfg.RequestTimeout(), cfg.MaxFileSizeMB)
	fmt.Println(strings.Repeat("#", 64))
	fmt.Println("")
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogDevelop); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	banner(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var wg sync.WaitGroup

	client := detclient.New(cfg.APIBaseURL, cfg.RequestTimeout())
	hub := notify.NewHub()
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()

	fmt.Println("Starting gRPC Server")
	grpcServer, healthServer, err := backend.StartGRPCServer(cfg.RPCPort)
	if err != nil {
		logger.Log().Warn("gRPC health service disabled", zap.Error(err))
	}
	watcher := detclient.NewWatcher(client, cfg.HealthInterval(), func(healthy bool) {
		if healthServer != nil {
			backend.SetUpstream(healthServer, healthy)
		}
	})
	wg.Add(1)
	go watcher.Run(ctx, &wg)

	errTTL, okTTL, warnTTL := cfg.NoticeTTLs()
	previews := preview.NewRegistry("/preview/", cfg.PreviewRelease())
	ctl := app.New(client, hub, preview.NewRenderer(cfg.ThumbnailEdge), previews, app.Options{
		APIBase:        cfg.APIBaseURL,
		MaxFileSize:    cfg.MaxFileSize(),
		NameLimit:      cfg.NameDisplayLimit,
		NoticeTTLs:     notify.TTLs{Error: errTTL, Success: okTTL, Warning: warnTTL},
		RequestTimeout: cfg.RequestTimeout(),
	})
	ctl.SetHealth(watcher.Healthy)

	store := session.NewStore(cfg.SessionIdle(), ctl.NewState, func(st *session.State) {
		hub.Forget(st.ID)
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.Run(ctx, reapInterval)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(cfg.MetricsPort, ctx)
	}()

	router := web.NewRouter(web.Deps{
		Controller:  ctl,
		Store:       store,
		Previews:    previews,
		Visualizer:  client,
		Hub:         hub,
		Health:      watcher.Healthy,
		APIBase:     cfg.APIBaseURL,
		Cookie:      cfg.SessionCookie,
		MaxFileSize: cfg.MaxFileSize(),
		Release:     cfg.ReleaseMode,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ListenPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Log().Info("front end listening", zap.String("addr", srv.Addr), zap.String("api", cfg.APIBaseURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	fmt.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout()+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("http server shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	fmt.Println("Done")
	wg.Wait()
	fmt.Println("Safely exited")
}
