package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bsaid97/go-polygon-overlap/config"
	"github.com/bsaid97/go-polygon-overlap/handlers"
	"github.com/bsaid97/go-polygon-overlap/logger"
	"github.com/bsaid97/go-polygon-overlap/store"
	"github.com/bsaid97/go-polygon-overlap/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

type server struct {
	cfg     config.Config
	backend store.Backend
	logger  *slog.Logger
	// running serializes detection runs; two runs over one store would
	// overwrite each other's logs.
	running sync.Mutex
}

func newServer(cfg config.Config, backend store.Backend, logger *slog.Logger) *server {
	return &server{cfg: cfg, backend: backend, logger: logger}
}

func (s *server) routes(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/detect-overlaps", s.withRecovery("detectOverlapsHandler", s.detectOverlapsHandler))
	mux.HandleFunc("/check-records", s.withRecovery("checkRecordsHandler", s.checkRecordsHandler))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}

func (s *server) withRecovery(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("PANIC recovered", "handler", name, "panic", rec)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		h(w, r)
	}
}

func (s *server) detectOverlapsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Invalid request method, only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := utils.ReadDetectRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("ERROR: %v", err), http.StatusBadRequest)
		return
	}

	cfg := s.cfg
	if req.OverlapThreshold != nil {
		cfg.Detect.OverlapThreshold = *req.OverlapThreshold
	}
	if req.Concurrency != nil {
		cfg.Detect.Concurrency = *req.Concurrency
	}
	if req.SkipSelf != nil {
		cfg.Detect.SkipSelf = *req.SkipSelf
	}
	if req.UseIndex != nil {
		cfg.Detect.UseIndex = *req.UseIndex
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("ERROR: %v", err), http.StatusBadRequest)
		return
	}

	if !s.running.TryLock() {
		http.Error(w, "ERROR: a detection run is already in progress", http.StatusConflict)
		return
	}
	defer s.running.Unlock()

	s.logger.Info("detection request received", "threshold", cfg.Detect.OverlapThreshold, "concurrency", cfg.Detect.Concurrency)

	opts := handlers.OptionsFromConfig(cfg)
	opts.Logger = s.logger
	summary, err := handlers.DetectOverlaps(r.Context(), s.backend, opts)
	if err != nil {
		var derr *handlers.DetectionError
		status := http.StatusInternalServerError
		if errors.As(err, &derr) && derr.Kind == handlers.StoreError {
			status = http.StatusBadGateway
		}
		http.Error(w, fmt.Sprintf("ERROR: %v", err), status)
		return
	}
	sendJSON(w, http.StatusOK, summary)
}

func (s *server) checkRecordsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Invalid request method, only GET allowed", http.StatusMethodNotAllowed)
		return
	}

	errs, err := handlers.CheckRecords(r.Context(), s.backend, s.cfg.Detect.FieldNames(), s.cfg.Detect.Precision)
	if err != nil {
		http.Error(w, fmt.Sprintf("ERROR: %v", err), http.StatusBadGateway)
		return
	}
	sendJSON(w, http.StatusOK, errs)
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("write response", "error", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, backend, err := setup(cmd)
	if err != nil {
		return err
	}
	defer backend.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handlers.RegisterMetrics(reg)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newServer(cfg, backend, logger.L()).routes(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signalContext()
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("=== Starting Polygon Overlap Server ===")
		log.Printf("Server is listening on %s...", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Printf("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
