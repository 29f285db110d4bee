// Command ohcserver exposes an OHCache instance over a small HTTP API:
// PUT/GET/DELETE on raw byte values addressed by key, plus health and
// Prometheus endpoints.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/offheap/ohc"
	"github.com/offheap/ohc/bytesio"
	"github.com/offheap/ohc/internal/observability"
	"github.com/offheap/ohc/internal/scheduler"
	"github.com/offheap/ohc/internal/tracing"
)

const (
	DefaultPort        = 9000
	DefaultMetricsPort = 9001
)

type Server struct {
	cache   *ohc.OHCache
	cleanup *scheduler.Ticker

	httpServer    *http.Server
	metricsServer *http.Server
}

// tracedCleaner wraps an *ohc.OHCache so the scheduler's periodic
// cleanup tick produces a span, the same as every request-driven cache
// operation.
type tracedCleaner struct {
	cache *ohc.OHCache
}

func (t tracedCleaner) Cleanup() {
	_, span := tracing.StartCacheSpan(context.Background(), "cleanup", "")
	defer span.End()
	t.cache.Cleanup()
}

func main() {
	jaegerEndpoint := os.Getenv("JAEGER_ENDPOINT")
	if err := tracing.InitTracing(jaegerEndpoint); err != nil {
		log.Printf("warning: failed to initialize tracing: %v", err)
	}

	srv, err := NewServer()
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Printf("tracing shutdown error: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	fmt.Println("stopped")
}

func NewServer() (*Server, error) {
	capacity := uint64(256 * 1024 * 1024)
	if v := os.Getenv("OHC_CAPACITY_BYTES"); v != "" {
		fmt.Sscanf(v, "%d", &capacity)
	}

	cache, err := ohc.NewBuilder().
		WithCapacity(capacity).
		WithBlockSize(8192).
		WithCleanupTrigger(0.2).
		WithCleanupCheckInterval(2000).
		WithStatisticsEnabled(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build cache: %w", err)
	}

	srv := &Server{cache: cache}
	srv.cleanup = scheduler.Start(tracedCleaner{cache}, 2*time.Second)

	mux := http.NewServeMux()
	mux.HandleFunc("/object", srv.handleObject)
	mux.HandleFunc("/healthz", srv.handleHealth)
	mux.HandleFunc("/ready", srv.handleReady)

	srv.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", DefaultPort),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/metrics", srv.handleMetrics)
	srv.metricsServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", DefaultMetricsPort),
		Handler: metricsMux,
	}

	return srv, nil
}

func (s *Server) Start() error {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http server error: %v", err)
		}
	}()
	go func() {
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	fmt.Printf("ohcserver listening on %d (metrics on %d)\n", DefaultPort, DefaultMetricsPort)
	return nil
}

func (s *Server) Shutdown() error {
	if s.cleanup != nil {
		s.cleanup.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}
	return s.cache.Close()
}

// handleObject implements PUT/GET/DELETE on /object?key=<key>.
func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return
	}
	keyBytes := bytesio.ByteSlice(key)
	hash := keyBytes.HashCode()

	switch r.Method {
	case http.MethodPut, http.MethodPost:
		_, span := tracing.StartCacheSpan(r.Context(), "put", key)
		defer span.End()

		data, err := io.ReadAll(r.Body)
		if err != nil {
			tracing.RecordError(span, err)
			http.Error(w, "failed to read body", http.StatusInternalServerError)
			return
		}
		result, err := s.cache.Put(hash, keyBytes, bytesio.ByteSlice(data), nil)
		if err != nil {
			tracing.RecordError(span, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		tracing.SetResult(span, result.String())
		if result == ohc.NoMoreSpace {
			http.Error(w, "cache full", http.StatusInsufficientStorage)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"%s","key":%q,"size":%d}`, result, key, len(data))

	case http.MethodGet:
		_, span := tracing.StartCacheSpan(r.Context(), "get", key)
		defer span.End()

		var buf bytes.Buffer
		found, err := s.cache.Get(hash, keyBytes, bytesio.NewWriterSink(&buf))
		if err != nil {
			tracing.RecordError(span, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			tracing.SetResult(span, "miss")
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		tracing.SetResult(span, "hit")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(buf.Bytes())

	case http.MethodDelete:
		_, span := tracing.StartCacheSpan(r.Context(), "remove", key)
		defer span.End()

		found, err := s.cache.Remove(hash, keyBytes)
		if err != nil {
			tracing.RecordError(span, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			tracing.SetResult(span, "not_found")
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		tracing.SetResult(span, "removed")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("READY"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, observability.ExportPrometheusMetrics(s.cache))
}
