package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"TableDetFront/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

var (
	PID process.Process

	memUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "memory_usage_Megabytes",
		Help: "Memory usage in Megabytes",
	})
	cpuUsage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cpu_usage_percent",
		Help: "CPU usage in percent",
	})

	FilesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_files_total",
		Help: "Candidate files seen by intake, by outcome (accepted, rejected, duplicate)",
	}, []string{"outcome"})

	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analyses_total",
		Help: "Analysis runs, by mode (single, batch) and outcome",
	}, []string{"mode", "outcome"})

	AnalysisSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_duration_seconds",
		Help:    "Wall time of analysis runs against the detection API",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"mode"})

	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "detection_api_requests_total",
		Help: "Requests sent to the detection API, by endpoint and result",
	}, []string{"endpoint", "result"})

	PreviewHandles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "preview_handles_live",
		Help: "Preview display handles currently held",
	})

	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sessions_live",
		Help: "Browser sessions currently tracked",
	})

	UpstreamUp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "detection_api_up",
		Help: "1 when the last detection API health probe succeeded",
	})
)

var srv *http.Server

// Registry returns a registry holding every collector of this package.
func Registry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(memUsage, cpuUsage, FilesTotal, AnalysesTotal, AnalysisSeconds,
		APIRequests, PreviewHandles, Sessions, UpstreamUp)
	return registry
}

func prom(port int) {
	registry := Registry()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("metrics server stopped", zap.Error(err))
		}
	}()
}

func CheckProcessInfo() {
	memInfo, err := PID.MemoryInfo()
	if err == nil {
		memUsage.Set(float64(memInfo.RSS / 1024 / 1024))
	}
	cpuPercent, err := PID.CPUPercent()
	if err == nil {
		cpuUsage.Set(math.Round(cpuPercent*100) / 100)
	}
}

func GotPID() {
	PID.Pid = int32(os.Getpid())
}

// StartMon serves /metrics on port and samples process stats until ctx ends.
func StartMon(port int, ctx context.Context) {
	PID = process.Process{}
	GotPID()
	prom(port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
checkPcs:
	for {
		select {
		case <-ctx.Done():
			break checkPcs
		case <-ticker.C:
			CheckProcessInfo()
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Error("metrics server shutdown", zap.Error(err))
	}
}
