package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "https://heatmyhome.ninja/simulator.html", cfg.PublicURL)
	assert.Equal(t, "https://api.postcodes.io", cfg.PostcodesAPIURL)
	assert.Equal(t, "https://customapi.heatmyhome.ninja/epc", cfg.EPCAPIURL)
	assert.Equal(t, 10*time.Second, cfg.LookupTimeout)
	assert.Equal(t, BackendServer, cfg.SimBackend)
	assert.Equal(t, "https://customapi.heatmyhome.ninja/simulate", cfg.SimAPIURL)
	assert.Equal(t, 600*time.Second, cfg.SimTimeout)
	assert.Equal(t, []string{"heatninja"}, cfg.SimWorkerCommand)
	assert.Equal(t, 2, cfg.SimWorkerConcurrency)
	assert.True(t, cfg.SimOptimisation)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "simulation-requests", cfg.KafkaRequestTopic)
	assert.Equal(t, "simulation-results", cfg.KafkaReplyTopic)
	assert.Equal(t, "heatmyhome-form", cfg.KafkaGroupID)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("PUBLIC_URL", "http://localhost:3000/simulator.html")
	t.Setenv("LOOKUP_TIMEOUT", "2s")
	t.Setenv("SIM_BACKEND", "kafka")
	t.Setenv("SIM_TIMEOUT", "90s")
	t.Setenv("SIM_ENABLE_OPTIMISATION", "false")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_REQUEST_TOPIC", "sim-in")
	t.Setenv("KAFKA_REPLY_TOPIC", "sim-out")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("SESSION_IDLE_TIMEOUT", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "http://localhost:3000/simulator.html", cfg.PublicURL)
	assert.Equal(t, 2*time.Second, cfg.LookupTimeout)
	assert.Equal(t, BackendKafka, cfg.SimBackend)
	assert.Equal(t, 90*time.Second, cfg.SimTimeout)
	assert.False(t, cfg.SimOptimisation)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "sim-in", cfg.KafkaRequestTopic)
	assert.Equal(t, "sim-out", cfg.KafkaReplyTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, 5*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoad_WorkerCommandSplitsArgs(t *testing.T) {
	t.Setenv("SIM_BACKEND", "worker")
	t.Setenv("SIM_WORKER_COMMAND", "/opt/heatninja/bin/sim --json")
	t.Setenv("SIM_WORKER_CONCURRENCY", "4")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"/opt/heatninja/bin/sim", "--json"}, cfg.SimWorkerCommand)
	assert.Equal(t, 4, cfg.SimWorkerConcurrency)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidDurations(t *testing.T) {
	for _, key := range []string{"LOOKUP_TIMEOUT", "SIM_TIMEOUT", "SESSION_IDLE_TIMEOUT"} {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, "0s")
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("SIM_BACKEND", "client-cpp")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_BACKEND")
}

func TestLoad_InvalidConcurrency(t *testing.T) {
	t.Setenv("SIM_WORKER_CONCURRENCY", "zero")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_WORKER_CONCURRENCY")
}

func TestLoad_EmptyWorkerCommand(t *testing.T) {
	t.Setenv("SIM_BACKEND", "worker")
	t.Setenv("SIM_WORKER_COMMAND", "   ")
	_, err := Load()
	require.Error(t, err)
}

func TestLookupEnvBool(t *testing.T) {
	t.Setenv("FLAG_ON", "true")
	t.Setenv("FLAG_BAD", "maybe")
	assert.True(t, LookupEnvBool("FLAG_ON", false))
	assert.True(t, LookupEnvBool("FLAG_BAD", true))
	assert.False(t, LookupEnvBool("FLAG_UNSET", false))
}
