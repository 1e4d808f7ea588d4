package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadpipe/internal/model"
	"github.com/sells-group/leadpipe/internal/pipeline"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for manual triggers and review operations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/records", handleProcessRecord(env))
	r.Post("/assignments/{id}/review", handleReview(env))
	r.Post("/assignments/{id}/override", handleOverride(env))
	r.Get("/icps/{id}/buckets", handleBucketStats(env))

	return r
}

// handleProcessRecord ingests one raw record and evaluates it
// synchronously against one ICP, returning the per-record outcome.
func handleProcessRecord(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TenantID   string          `json:"tenant_id"`
			ICPID      string          `json:"icp_id"`
			SourceName string          `json:"source_name"`
			ExternalID string          `json:"external_id"`
			Fields     model.RawFields `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TenantID == "" || req.ICPID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id and icp_id are required")
			return
		}

		icp, err := env.Store.GetICP(r.Context(), req.ICPID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if icp == nil {
			writeError(w, http.StatusNotFound, "icp not found")
			return
		}

		rec, err := env.Store.CreateRawRecord(r.Context(), &model.RawRecord{
			TenantID:   req.TenantID,
			ExternalID: req.ExternalID,
			SourceName: req.SourceName,
			SourceType: model.SourceWebhook,
			Fields:     req.Fields,
			Status:     model.ProcessingPending,
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		outcome, err := env.Pipeline.Process(r.Context(), rec, icp)
		if err != nil {
			zap.L().Error("manual trigger failed",
				zap.String("raw_record_id", rec.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, outcome)
			return
		}
		writeJSON(w, http.StatusOK, outcome)
	}
}

func handleReview(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Decision   string `json:"decision"`
			ReviewerID string `json:"reviewer_id"`
			Reason     string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		a, err := env.Pipeline.Review(r.Context(), chi.URLParam(r, "id"),
			pipeline.ReviewDecision(req.Decision), req.ReviewerID, req.Reason)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleOverride(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ReviewerID string `json:"reviewer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		a, err := env.Pipeline.Override(r.Context(), chi.URLParam(r, "id"), req.ReviewerID)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, a)
	}
}

func handleBucketStats(env *pipelineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.URL.Query().Get("tenant_id")
		if tenantID == "" {
			writeError(w, http.StatusBadRequest, "tenant_id query parameter is required")
			return
		}

		stats, err := env.Store.BucketStats(r.Context(), tenantID, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
