package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drilonhametaj25/client-sniper/internal/business"
	"github.com/drilonhametaj25/client-sniper/internal/resilience"
)

var servePort int

// entityService is the part of the resolver the HTTP API uses.
type entityService interface {
	Resolve(ctx context.Context, o business.Observation) (*business.Resolution, error)
	Get(ctx context.Context, id string) (*business.Entity, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for resolving observations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           buildRouter(business.NewResolver(st, resolverOptions()), st.Ping, cfg.Server.CORSOrigins),
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

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// buildRouter wires the API routes. ping may be nil.
func buildRouter(svc entityService, ping func(context.Context) error, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				zap.L().Warn("health check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(api chi.Router) {
		api.Post("/observations", func(w http.ResponseWriter, r *http.Request) {
			var obs business.Observation
			if err := json.NewDecoder(r.Body).Decode(&obs); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}

			res, err := svc.Resolve(r.Context(), obs)
			if err != nil {
				status := statusFor(err)
				if status >= http.StatusInternalServerError {
					zap.L().Error("resolve failed",
						zap.String("business_name", obs.BusinessName),
						zap.String("request_id", middleware.GetReqID(r.Context())),
						zap.Error(err),
					)
				}
				writeError(w, status, err.Error())
				return
			}
			writeJSON(w, http.StatusOK, res)
		})

		api.Get("/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			e, err := svc.Get(r.Context(), id)
			if err != nil {
				zap.L().Error("get entity failed", zap.String("id", id), zap.Error(err))
				writeError(w, statusFor(err), "failed to load entity")
				return
			}
			if e == nil {
				writeError(w, http.StatusNotFound, "entity not found")
				return
			}
			writeJSON(w, http.StatusOK, e)
		})
	})

	return r
}

// statusFor maps resolver errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, business.ErrInvalidObservation):
		return http.StatusBadRequest
	case resilience.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
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
