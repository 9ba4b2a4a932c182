package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Simulation backends selectable with SIM_BACKEND.
const (
	BackendServer = "server"
	BackendWorker = "worker"
	BackendKafka  = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// PublicURL is the simulator page that shareable links point at.
	PublicURL string

	// Registry lookups.
	PostcodesAPIURL string
	EPCAPIURL       string
	LookupTimeout   time.Duration

	// Simulation dispatch.
	SimBackend           string
	SimAPIURL            string
	SimTimeout           time.Duration
	SimWorkerCommand     []string
	SimWorkerConcurrency int
	SimOptimisation      bool

	KafkaBrokers      []string
	KafkaRequestTopic string
	KafkaReplyTopic   string
	KafkaGroupID      string

	SessionIdleTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	lookupTimeout, err := parsePositiveDuration("LOOKUP_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	simTimeout, err := parsePositiveDuration("SIM_TIMEOUT", "600s")
	if err != nil {
		return nil, err
	}
	idleTimeout, err := parsePositiveDuration("SESSION_IDLE_TIMEOUT", "30m")
	if err != nil {
		return nil, err
	}

	concurrency, err := strconv.Atoi(sharedcfg.EnvOrDefault("SIM_WORKER_CONCURRENCY", "2"))
	if err != nil || concurrency <= 0 {
		return nil, errors.New("invalid SIM_WORKER_CONCURRENCY")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		PublicURL: sharedcfg.EnvOrDefault("PUBLIC_URL", "https://heatmyhome.ninja/simulator.html"),

		PostcodesAPIURL: sharedcfg.EnvOrDefault("POSTCODES_API_URL", "https://api.postcodes.io"),
		EPCAPIURL:       sharedcfg.EnvOrDefault("EPC_API_URL", "https://customapi.heatmyhome.ninja/epc"),
		LookupTimeout:   lookupTimeout,

		SimBackend:           strings.ToLower(sharedcfg.EnvOrDefault("SIM_BACKEND", BackendServer)),
		SimAPIURL:            sharedcfg.EnvOrDefault("SIM_API_URL", "https://customapi.heatmyhome.ninja/simulate"),
		SimTimeout:           simTimeout,
		SimWorkerCommand:     strings.Fields(sharedcfg.EnvOrDefault("SIM_WORKER_COMMAND", "heatninja")),
		SimWorkerConcurrency: concurrency,
		SimOptimisation:      LookupEnvBool("SIM_ENABLE_OPTIMISATION", true),

		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaRequestTopic: sharedcfg.EnvOrDefault("KAFKA_REQUEST_TOPIC", "simulation-requests"),
		KafkaReplyTopic:   sharedcfg.EnvOrDefault("KAFKA_REPLY_TOPIC", "simulation-results"),
		KafkaGroupID:      sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "heatmyhome-form"),

		SessionIdleTimeout: idleTimeout,
	}

	if cfg.PostcodesAPIURL == "" {
		return nil, errors.New("POSTCODES_API_URL is required")
	}
	if cfg.EPCAPIURL == "" {
		return nil, errors.New("EPC_API_URL is required")
	}

	switch cfg.SimBackend {
	case BackendServer:
		if cfg.SimAPIURL == "" {
			return nil, errors.New("SIM_API_URL is required for the server backend")
		}
	case BackendWorker:
		if len(cfg.SimWorkerCommand) == 0 {
			return nil, errors.New("SIM_WORKER_COMMAND is required for the worker backend")
		}
	case BackendKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaRequestTopic == "" || cfg.KafkaReplyTopic == "" {
			return nil, errors.New("KAFKA_REQUEST_TOPIC and KAFKA_REPLY_TOPIC are required")
		}
	default:
		return nil, fmt.Errorf("unknown SIM_BACKEND %q", cfg.SimBackend)
	}

	return cfg, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

// LookupEnvBool reports a boolean flag, falling back to def when unset or
// unparseable.
func LookupEnvBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
