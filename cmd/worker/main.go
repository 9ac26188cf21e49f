package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/cdp-messenger/internal/config"
	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/pkg/httpretry"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
)

// The worker drains campaign envelopes queued by the sqs dispatch transport
// and forwards them to the delivery service over HTTP.
func main() {
	configPath := flag.String("config", "", "path to the YAML config file (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	if cfg.Dispatch.SQSQueueURL == "" {
		logger.Error("dispatch.sqs_queue_url (DISPATCH_SQS_QUEUE_URL) is required")
		os.Exit(1)
	}
	creds := dispatch.Credentials{APIKey: cfg.Dispatch.APIKey, Endpoint: cfg.Dispatch.Endpoint}
	if !creds.Configured() {
		logger.Error("delivery credentials (NOTITEST_API_KEY, NOTITEST_ENDPOINT) are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.AccessKey != "" && cfg.AWS.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKey, cfg.AWS.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	forward := dispatch.NewHTTPTransport(
		httpretry.NewRetryClient(&http.Client{Timeout: cfg.Dispatch.Timeout()}, cfg.Dispatch.MaxRetries))
	relay := dispatch.NewRelay(sqs.NewFromConfig(awsCfg), cfg.Dispatch.SQSQueueURL, forward, creds)
	relay.Start(ctx)

	logger.Info("worker running", "queue", cfg.Dispatch.SQSQueueURL,
		"endpoint", cfg.Dispatch.Endpoint)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker")
	relay.Stop()
	cancel()

	// Let an in-flight forward finish logging.
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}
