package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/pkg/httputil"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

// The stub stands in for the external notification service during local
// development: it accepts campaigns on POST /campaigns/create and answers
// with a fabricated schedule. Nothing is delivered.
func main() {
	logger.Warn("this is a STUB delivery service for local testing only, nothing is sent")

	apiKey := os.Getenv("NOTITEST_API_KEY")
	if apiKey == "" {
		apiKey = "stub-api-key"
	}
	port := os.Getenv("PORT")
	if port == "" {
		port = "8090"
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + port,
		Handler:      newStubHandler(apiKey),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		logger.Info("stub delivery service listening", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("stub stopped")
}

type createResponse struct {
	CampaignID       string    `json:"campaign_id"`
	Status           string    `json:"status"`
	TestID           string    `json:"test_id"`
	AcceptedMessages int       `json:"accepted_messages"`
	ScheduledStart   time.Time `json:"scheduled_start"`
	ScheduledEnd     time.Time `json:"scheduled_end"`
}

func newStubHandler(apiKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "cdp-delivery-stub")
			w.Header().Set("X-Server-Warning", "STUB - nothing is delivered")
			next.ServeHTTP(w, req)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		httputil.OK(w, map[string]string{"status": "healthy", "service": "cdp-delivery-stub"})
	})

	r.Post("/campaigns/create", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+apiKey {
			httputil.Error(w, req, http.StatusUnauthorized, "unauthorized", "invalid API key")
			return
		}
		var env dispatch.Envelope
		if !httputil.Decode(w, req, &env, false) {
			return
		}
		if env.TestConfig == nil || len(env.Messages) == 0 {
			httputil.Unprocessable(w, req, "test_config and messages are required")
			return
		}

		resp := createResponse{
			CampaignID:       "stub-" + strings.ToLower(experiment.NewTestID()),
			Status:           "scheduled",
			TestID:           env.TestConfig.TestID,
			AcceptedMessages: len(env.Messages),
			ScheduledStart:   env.Schedule.StartDate,
			ScheduledEnd:     env.Schedule.EndDate,
		}
		logger.Info("stub accepted campaign", "test_id", resp.TestID, "messages", resp.AcceptedMessages)
		httputil.Created(w, resp)
	})

	return r
}
