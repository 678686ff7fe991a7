package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"heic-to-jpg/internal/batch"
	"heic-to-jpg/internal/codec"
	"heic-to-jpg/internal/handlers"
	"heic-to-jpg/internal/inbox"
	"heic-to-jpg/internal/logging"
	"heic-to-jpg/internal/memory"
	"heic-to-jpg/internal/metrics"
	"heic-to-jpg/internal/middleware"
	"heic-to-jpg/internal/results"
	"heic-to-jpg/internal/startup"
	"heic-to-jpg/internal/worker"

	"github.com/gorilla/mux"
)

const (
	shutdownTimeout   = 30 * time.Second
	collectorInterval = time.Minute
)

func main() {
	startTime := time.Now()

	memResult := memory.ConfigureFromEnv()

	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}
	startup.LogMemoryConfig(memResult)

	metrics.InitializeMetrics()

	runtimeErr := codec.InitVips()
	startup.LogCodecInit(runtimeErr)
	runtimeCheck := func() error { return runtimeErr }

	monitor := memory.NewMonitor(memory.DefaultConfig())
	monitor.Start()

	encoder := codec.NewJPEGEncoder()
	ctrl := batch.New(batch.Options{
		Converter: &worker.Converter{Decoder: codec.NewVipsDecoder(), Encoder: encoder},
		Encoder:   encoder,
		Defaults:  worker.Settings{Quality: config.DefaultQuality, KeepMetadata: config.KeepMetadata},
		Gate:      monitor,
		Init:      codec.InitVips,
	})

	if config.AutosaveEnabled {
		saver, err := results.NewDirSaver(config.OutputDir)
		if err != nil {
			logging.Warn("Autosave disabled: %v", err)
		} else {
			ctrl.OnItemDone = inbox.AutosaveHook(saver)
		}
	}

	var watcher *inbox.Watcher
	if config.WatchEnabled {
		watcher = inbox.New(config.WatchDir, ctrl, inbox.DefaultDebounce)
		err := watcher.Start()
		startup.LogWatcherInit(config.WatchDir, err)
		if err != nil {
			watcher = nil
		}
	}

	collector := metrics.NewCollector(ctrl, collectorInterval)
	collector.Start()

	single := &worker.Converter{Decoder: codec.NewVipsDecoder(), Encoder: encoder}
	h := handlers.New(ctrl, single, runtimeCheck, config)

	router := setupRouter(h)
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Compression(middleware.DefaultCompressionConfig())(
		middleware.Logger(loggingConfig)(
			middleware.Metrics(middleware.DefaultMetricsConfig())(router)))

	srv := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	var metricsSrv *http.Server
	if config.MetricsEnabled {
		metricsSrv = newMetricsServer(config.MetricsPort, h)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	go handleShutdown(srv, metricsSrv, ctrl, watcher, collector, monitor)

	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Single-shot conversion
	api.HandleFunc("/convert", h.Convert).Methods("POST")
	api.HandleFunc("/convert", h.ConvertOptions).Methods("OPTIONS")

	// Batch
	api.HandleFunc("/files", h.AddFiles).Methods("POST")
	api.HandleFunc("/files", h.ListFiles).Methods("GET")
	api.HandleFunc("/files/{id}", h.GetFile).Methods("GET")
	api.HandleFunc("/files/{id}/download", h.DownloadFile).Methods("GET")
	api.HandleFunc("/files/{id}/override", h.SetOverride).Methods("PUT")
	api.HandleFunc("/files/{id}/override", h.ClearOverride).Methods("DELETE")
	api.HandleFunc("/settings", h.GetSettings).Methods("GET")
	api.HandleFunc("/settings", h.UpdateSettings).Methods("PUT")
	api.HandleFunc("/reset", h.Reset).Methods("POST")
	api.HandleFunc("/archive", h.DownloadArchive).Methods("GET")
	api.HandleFunc("/status", h.GetStatus).Methods("GET")

	r.HandleFunc("/blob/{token}", h.ServeObjectURL).Methods("GET")

	return r
}

func newMetricsServer(port string, h *handlers.Handlers) *http.Server {
	sm := http.NewServeMux()
	sm.Handle("/metrics", h.MetricsHandler())
	sm.HandleFunc("/health", h.HealthCheck)
	return &http.Server{
		Addr:              ":" + port,
		Handler:           sm,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
}

func handleShutdown(srv, metricsSrv *http.Server, ctrl *batch.Controller, watcher *inbox.Watcher,
	collector *metrics.Collector, monitor *memory.Monitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	if watcher != nil {
		startup.LogShutdownStep("Stopping watch folder")
		watcher.Stop()
		startup.LogShutdownStepComplete("Watch folder stopped")
	}

	startup.LogShutdownStep("Stopping batch controller")
	ctrl.Close()
	startup.LogShutdownStepComplete("Batch controller stopped")

	collector.Stop()
	monitor.Stop()

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	codec.ShutdownVips()
	startup.LogShutdownComplete()
}
