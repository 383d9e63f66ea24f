package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/mcp-acmt-server/internal/config"
)

const shutdownTimeout = 5 * time.Second

// StartSSEServer serves SSE until the server fails or ctx is done
func StartSSEServer(ctx context.Context, s *mcp.Server, settings *config.Settings) error {
	srv := NewSSEServer(s, settings)

	served := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-served:
			return
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("SSE server shutdown failed", "error", err)
		}
	}()

	slog.Info("Server listening (HTTP)", "addr", srv.Addr)
	err := srv.ListenAndServe()
	close(served)
	<-stopped
	if errors.Is(err, http.ErrServerClosed) {
		slog.Info("Server stopped")
		return nil
	}
	return err
}

// NewSSEServer creates a new SSE server exposing /sse and /health
func NewSSEServer(s *mcp.Server, settings *config.Settings) *http.Server {
	// Factory function returns the server instance for each request
	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s
	}, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/sse", sseHandler)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler: mux,
	}
}
