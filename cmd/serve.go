package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sbiradar/outreach-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server for reply and bounce signals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		mux := http.NewServeMux()

		mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		})

		mux.HandleFunc("POST /webhook/signal", func(w http.ResponseWriter, r *http.Request) {
			var sig model.ReplySignal
			if err := json.NewDecoder(r.Body).Decode(&sig); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if sig.ContactEmail == "" || sig.JobTitle == "" {
				http.Error(w, `{"error":"contact_email and job_title are required"}`, http.StatusBadRequest)
				return
			}

			alert, err := e.signals.Apply(r.Context(), sig)
			if err != nil {
				zap.L().Error("signal webhook failed",
					zap.String("contact", sig.ContactEmail),
					zap.Error(err))
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			if alert != nil {
				e.notifier.InterviewAlert(r.Context(), *alert)
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]any{
				"status":    "applied",
				"interview": alert != nil,
			})
		})

		mux.HandleFunc("POST /webhook/delivery", func(w http.ResponseWriter, r *http.Request) {
			var cb struct {
				ContactEmail string `json:"contact_email"`
				JobTitle     string `json:"job_title"`
				Status       string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
			if cb.ContactEmail == "" || cb.JobTitle == "" || cb.Status == "" {
				http.Error(w, `{"error":"contact_email, job_title and status are required"}`, http.StatusBadRequest)
				return
			}

			// Only a hard bounce changes attempt state. Delivered and
			// deferred callbacks are acknowledged and dropped.
			if cb.Status == "bounced" {
				sig := model.ReplySignal{
					ContactEmail:   cb.ContactEmail,
					JobTitle:       cb.JobTitle,
					Classification: model.ClassBounced,
				}
				if _, err := e.signals.Apply(r.Context(), sig); err != nil {
					zap.L().Error("delivery webhook failed",
						zap.String("contact", cb.ContactEmail),
						zap.Error(err))
					http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
		})

		mux.HandleFunc("GET /runs", func(w http.ResponseWriter, r *http.Request) {
			summaries, err := e.store.ListRunSummaries(r.Context(), 10)
			if err != nil {
				http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(summaries)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown: the signal context is already cancelled here,
		// so draining needs its own deadline.
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
