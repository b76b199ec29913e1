package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/billrecon/internal/model"
	"github.com/sells-group/billrecon/internal/reconcile"
	"github.com/sells-group/billrecon/internal/report"
	"github.com/sells-group/billrecon/internal/uploadcache"
)

const maxReconcileBody = 10 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconciliation and upload cache inspection over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Cache)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           buildRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// cacheLoader reads the persisted upload cache. A nil loader serves an empty
// cache.
type cacheLoader interface {
	Load(ctx context.Context) (map[string]string, error)
}

type reconcileRequest struct {
	Documents []reconcileDocument `json:"documents"`
}

type reconcileDocument struct {
	InvoiceID string          `json:"invoice_id"`
	Attempt   int             `json:"attempt"`
	Payload   json.RawMessage `json:"payload"`
}

type documentError struct {
	Index     int    `json:"index"`
	InvoiceID string `json:"invoice_id"`
	Attempt   int    `json:"attempt"`
	Error     string `json:"error"`
}

type reconcileResponse struct {
	Rows           []any                 `json:"rows"`
	Stats          reconcile.IngestStats `json:"stats"`
	DocumentErrors []documentError       `json:"document_errors"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// buildRouter wires the HTTP routes.
func buildRouter(cache cacheLoader) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/reconcile", handleReconcile)
		r.Get("/cache", func(w http.ResponseWriter, r *http.Request) {
			handleCache(w, r, cache)
		})
	})

	return r
}

func handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReconcileBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, "documents is required")
		return
	}

	engine := reconcile.NewEngine()
	resp := reconcileResponse{DocumentErrors: []documentError{}}
	for i, d := range req.Documents {
		res, err := engine.Ingest(reconcile.Document{
			Identity: model.Identity{InvoiceID: d.InvoiceID, Attempt: d.Attempt},
			Source:   fmt.Sprintf("documents[%d]", i),
			Payload:  d.Payload,
		})
		if err != nil {
			resp.Stats.SkippedDocuments++
			resp.DocumentErrors = append(resp.DocumentErrors, documentError{
				Index:     i,
				InvoiceID: d.InvoiceID,
				Attempt:   d.Attempt,
				Error:     err.Error(),
			})
			zap.L().Warn("reconcile request: skipping document", zap.Int("index", i), zap.Error(err))
			continue
		}
		resp.Stats.Documents++
		resp.Stats.Records += res.Records
		resp.Stats.SkippedRecords += res.Skipped
	}

	resp.Rows = report.MergedJSON(engine.Merge())
	writeJSON(w, http.StatusOK, resp)
}

func handleCache(w http.ResponseWriter, r *http.Request, cache cacheLoader) {
	entries := []uploadcache.Entry{}
	if cache != nil {
		m, err := cache.Load(r.Context())
		if err != nil {
			zap.L().Error("load upload cache", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "cache unavailable")
			return
		}
		for k, v := range m {
			entries = append(entries, uploadcache.Entry{Key: k, URL: v})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(entries), "entries": entries})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
