package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zhangyunhao116/skipmap"
)

// Backend is an in-memory shard backend serving the protocol HTTPRemote speaks. It backs
// local clusters and tests.
type Backend struct {
	data       *skipmap.FuncMap[string, string]
	httpServer *http.Server
	addr       string
}

func NewBackend(addr string) *Backend {
	return &Backend{
		data: skipmap.NewFunc[string, string](func(a, b string) bool {
			return strings.Compare(a, b) < 0
		}),
		addr: addr,
	}
}

// Len is the number of stored keys.
func (b *Backend) Len() int { return b.data.Len() }

// Handler builds the backend's chi router.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
	})
	r.Post("/api/put", b.handlePut)
	r.Get("/api/get", b.handleGet)
	r.Delete("/api/delete", b.handleDelete)
	return r
}

func (b *Backend) Start() error {
	b.httpServer = &http.Server{
		Addr:              b.addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	go func() {
		if err := b.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("backend server error", "error", err)
		}
	}()

	slog.Info("shard backend started", "addr", b.addr)
	return nil
}

func (b *Backend) Stop(ctx context.Context) error {
	if b.httpServer == nil {
		return nil
	}
	if err := b.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown backend server: %w", err)
	}
	return nil
}

func (b *Backend) handlePut(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	key := r.FormValue("key")
	value := r.FormValue("value")
	if key == "" || value == "" {
		http.Error(w, "Missing key or value", http.StatusBadRequest)
		return
	}

	b.data.Store(key, value)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (b *Backend) handleGet(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key", http.StatusBadRequest)
		return
	}

	value, found := b.data.Load(key)
	if !found {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, getResp{Value: value})
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "Missing key", http.StatusBadRequest)
		return
	}

	b.data.Delete(key)
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}
