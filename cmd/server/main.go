package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/cdp-messenger/internal/analysis"
	"github.com/ignite/cdp-messenger/internal/api"
	"github.com/ignite/cdp-messenger/internal/config"
	"github.com/ignite/cdp-messenger/internal/dispatch"
	"github.com/ignite/cdp-messenger/internal/experiment"
	"github.com/ignite/cdp-messenger/internal/messaging"
	"github.com/ignite/cdp-messenger/internal/metrics"
	"github.com/ignite/cdp-messenger/internal/pkg/httpretry"
	"github.com/ignite/cdp-messenger/internal/pkg/logger"
	"github.com/ignite/cdp-messenger/internal/service/campaign"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func fatal(msg string, fields ...interface{}) {
	logger.Error(msg, fields...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fatal("failed to load config", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		fatal("invalid config", "error", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Logging.RedactPII != nil {
		logger.SetRedactPII(*cfg.Logging.RedactPII)
	}

	if err := checkPortAvailable(cfg.Server.GetHost(), cfg.Server.Port); err != nil {
		fatal("pre-flight check failed", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog errors are configuration errors: refuse to start.
	catalog, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		fatal("failed to load message catalog", "path", cfg.Catalog.Path, "error", err)
	}

	m := metrics.New()

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = connectRedis(ctx, cfg.Redis.URL)
	} else {
		logger.Info("redis not configured, dispatch guard is process-local")
	}
	defer func() {
		if redisClient != nil {
			redisClient.Close()
		}
	}()
	// Keep the interface nil when there is no client.
	var guardClient redis.Cmdable
	if redisClient != nil {
		guardClient = redisClient
	}

	var awsCfg *aws.Config
	if cfg.Analyzer.Provider == config.ProviderBedrock || cfg.Dispatch.Transport == config.TransportSQS {
		c, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			fatal("failed to load AWS config", "error", err)
		}
		awsCfg = &c
	}

	analyzer := analysis.WithFallback(
		analysis.WithTimeout(buildAnalyzer(cfg.Analyzer, awsCfg), cfg.Analyzer.Timeout()),
		func(error) { m.AnalyzerFallbacks.Inc() },
	)

	selector, err := messaging.NewRuleSelector(messaging.SelectionStrategy(cfg.Variants.Strategy))
	if err != nil {
		fatal("invalid variant strategy", "error", err)
	}
	composer := messaging.NewComposer(catalog, messaging.NewVariantGenerator(selector),
		messaging.WithTemplatesPerPersona(cfg.Variants.TemplatesPerPersona))

	creds := dispatch.Credentials{APIKey: cfg.Dispatch.APIKey, Endpoint: cfg.Dispatch.Endpoint}
	if cfg.Dispatch.Transport == config.TransportSQS && creds.Endpoint == "" {
		creds.Endpoint = cfg.Dispatch.SQSQueueURL
	}
	adapter := dispatch.NewAdapter(buildTransport(cfg.Dispatch, awsCfg), creds,
		dispatch.WithTimeout(cfg.Dispatch.Timeout()),
		dispatch.WithGuard(dispatch.NewLockGuard(guardClient, cfg.Dispatch.GuardTTL())),
	)
	if !creds.Configured() {
		logger.Warn("dispatch credentials not configured, dispatch requests will report an error")
	}

	svc := campaign.NewService(catalog,
		campaign.WithAnalyzer(analyzer),
		campaign.WithComposer(composer),
		campaign.WithDispatcher(adapter),
		campaign.WithMetrics(m),
		campaign.WithDefaultParams(experiment.Params{
			DurationDays:        cfg.Experiment.DurationDays,
			TestRatioPercent:    cfg.Experiment.TestRatioPercent,
			BaselineRate:        cfg.Experiment.BaselineRate,
			MinDetectableEffect: cfg.Experiment.MinDetectableEffect,
		}),
	)

	health := api.NewHealthChecker(guardClient, creds.Configured(), cfg.Analyzer.Provider)
	server := api.NewServer(cfg.Server, api.NewHandlers(svc), health, m.Handler())

	// Setup graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server", "addr", addr, "analyzer", cfg.Analyzer.Provider,
			"transport", cfg.Dispatch.Transport, "strategy", cfg.Variants.Strategy)
		if err := server.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
			fatal("server error", "error", err)
		}
	}()

	<-done
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func loadCatalog(path string) (*messaging.Catalog, error) {
	if path == "" {
		return messaging.DefaultCatalog()
	}
	return messaging.LoadCatalogFile(path)
}

// connectRedis returns nil when Redis is unreachable so the guard falls back
// to the in-process lock.
func connectRedis(ctx context.Context, url string) *redis.Client {
	var client *redis.Client
	opts, err := redis.ParseURL(url)
	if err != nil {
		client = redis.NewClient(&redis.Options{Addr: url})
	} else {
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis connection failed, dispatch guard is process-local", "error", err)
		client.Close()
		return nil
	}
	logger.Info("redis connected, distributed dispatch guard enabled")
	return client
}

func loadAWSConfig(ctx context.Context, c config.AWSConfig) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.Region)}
	if c.AccessKey != "" && c.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKey, c.SecretKey, "")))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

func buildAnalyzer(c config.AnalyzerConfig, awsCfg *aws.Config) analysis.Analyzer {
	switch c.Provider {
	case config.ProviderOpenAI:
		if c.APIKey == "" {
			logger.Warn("OPENAI_API_KEY not set, analyzer answers with the fallback plan")
			return analysis.FallbackAnalyzer{}
		}
		return analysis.NewOpenAIAnalyzer(c.APIKey, c.Model, c.BaseURL)
	case config.ProviderBedrock:
		client := bedrockruntime.NewFromConfig(*awsCfg, func(o *bedrockruntime.Options) {
			o.Region = c.Region
		})
		return analysis.NewBedrockAnalyzer(client, c.Model)
	}
	return analysis.FallbackAnalyzer{}
}

func buildTransport(c config.DispatchConfig, awsCfg *aws.Config) dispatch.Transport {
	if c.Transport == config.TransportSQS {
		return dispatch.NewSQSTransport(sqs.NewFromConfig(*awsCfg), c.SQSQueueURL)
	}
	return dispatch.NewHTTPTransport(httpretry.NewRetryClient(&http.Client{Timeout: c.Timeout()}, c.MaxRetries))
}
