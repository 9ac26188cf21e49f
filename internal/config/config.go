package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Variants   VariantsConfig   `yaml:"variants"`
	Dispatch   DispatchConfig   `yaml:"dispatch"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	AWS        AWSConfig        `yaml:"aws"`
	Redis      RedisConfig      `yaml:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	AllowedOrigins         []string `yaml:"allowed_origins"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// Addr is host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.GetHost(), c.Port)
}

// ShutdownTimeout bounds graceful shutdown.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// CatalogConfig points at a message catalog file. Empty uses the built-in one.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// ExperimentConfig holds the default A/B test parameters.
type ExperimentConfig struct {
	DurationDays        int     `yaml:"duration_days"`
	TestRatioPercent    int     `yaml:"test_ratio_percent"`
	BaselineRate        float64 `yaml:"baseline_rate"`
	MinDetectableEffect float64 `yaml:"min_detectable_effect"`
}

// VariantsConfig controls message composition.
type VariantsConfig struct {
	Strategy            string `yaml:"strategy"`
	TemplatesPerPersona int    `yaml:"templates_per_persona"`
}

// DispatchConfig holds delivery service settings.
type DispatchConfig struct {
	APIKey          string `yaml:"api_key"`
	Endpoint        string `yaml:"endpoint"`
	Transport       string `yaml:"transport"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	MaxRetries      int    `yaml:"max_retries"`
	SQSQueueURL     string `yaml:"sqs_queue_url"`
	GuardTTLSeconds int    `yaml:"guard_ttl_seconds"`
}

// Timeout bounds one dispatch call.
func (c DispatchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GuardTTL is how long a dispatch guard lock lives.
func (c DispatchConfig) GuardTTL() time.Duration {
	return time.Duration(c.GuardTTLSeconds) * time.Second
}

// AnalyzerConfig selects the language model behind /api/analyze.
type AnalyzerConfig struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Region         string `yaml:"region"`
}

// Timeout bounds one analyzer call.
func (c AnalyzerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AWSConfig holds AWS credentials. Empty keys use the default provider chain.
type AWSConfig struct {
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

// RedisConfig configures the optional Redis used for dispatch guards.
type RedisConfig struct {
	URL string `yaml:"url"`
}

const (
	TransportHTTP = "http"
	TransportSQS  = "sqs"

	ProviderOpenAI   = "openai"
	ProviderBedrock  = "bedrock"
	ProviderFallback = "fallback"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, for running
// without a config file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 15
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Experiment.DurationDays == 0 {
		cfg.Experiment.DurationDays = 7
	}
	if cfg.Experiment.TestRatioPercent == 0 {
		cfg.Experiment.TestRatioPercent = 20
	}
	if cfg.Experiment.BaselineRate == 0 {
		cfg.Experiment.BaselineRate = 0.02
	}
	if cfg.Experiment.MinDetectableEffect == 0 {
		cfg.Experiment.MinDetectableEffect = 0.2
	}
	if cfg.Variants.Strategy == "" {
		cfg.Variants.Strategy = "first"
	}
	if cfg.Variants.TemplatesPerPersona == 0 {
		cfg.Variants.TemplatesPerPersona = 2
	}
	if cfg.Dispatch.Transport == "" {
		cfg.Dispatch.Transport = TransportHTTP
	}
	if cfg.Dispatch.TimeoutSeconds == 0 {
		cfg.Dispatch.TimeoutSeconds = 30
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.GuardTTLSeconds == 0 {
		cfg.Dispatch.GuardTTLSeconds = 300
	}
	if cfg.Analyzer.Provider == "" {
		cfg.Analyzer.Provider = ProviderOpenAI
	}
	if cfg.Analyzer.Model == "" && cfg.Analyzer.Provider == ProviderOpenAI {
		cfg.Analyzer.Model = "gpt-4o-mini"
	}
	if cfg.Analyzer.TimeoutSeconds == 0 {
		cfg.Analyzer.TimeoutSeconds = 30
	}
	if cfg.AWS.Region == "" {
		cfg.AWS.Region = "us-east-1"
	}
	if cfg.Analyzer.Region == "" {
		cfg.Analyzer.Region = cfg.AWS.Region
	}
}

// Validate rejects settings the server cannot start with.
func (cfg *Config) Validate() error {
	switch cfg.Dispatch.Transport {
	case TransportHTTP, TransportSQS:
	default:
		return fmt.Errorf("dispatch.transport: unknown transport %q", cfg.Dispatch.Transport)
	}
	switch cfg.Analyzer.Provider {
	case ProviderOpenAI, ProviderBedrock, ProviderFallback:
	default:
		return fmt.Errorf("analyzer.provider: unknown provider %q", cfg.Analyzer.Provider)
	}
	switch cfg.Variants.Strategy {
	case "first", "round_robin", "random":
	default:
		return fmt.Errorf("variants.strategy: unknown strategy %q", cfg.Variants.Strategy)
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", cfg.Server.Port)
	}
	if cfg.Variants.TemplatesPerPersona < 1 {
		return fmt.Errorf("variants.templates_per_persona: must be at least 1")
	}
	return nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// An empty path skips the file and starts from Default.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("NOTITEST_API_KEY"); v != "" {
		cfg.Dispatch.APIKey = v
	}
	if v := os.Getenv("NOTITEST_ENDPOINT"); v != "" {
		cfg.Dispatch.Endpoint = v
	}
	if v := os.Getenv("DISPATCH_SQS_QUEUE_URL"); v != "" {
		cfg.Dispatch.SQSQueueURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Analyzer.APIKey == "" {
		cfg.Analyzer.APIKey = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.AWS.Region = v
		cfg.Analyzer.Region = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}
