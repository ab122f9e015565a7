package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	for _, key := range []string{
		"MBFLOW_LOG_LEVEL", "MBFLOW_LOG_FORMAT",
		"OTEL_ENABLED", "OTEL_SERVICE_NAME", "OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SAMPLE_RATE",
	} {
		os.Unsetenv(key)
	}
}

func TestConfig_Load_DefaultValues(t *testing.T) {
	clearEnv()
	defer clearEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "mbflow", cfg.Tracing.ServiceName)
	assert.Equal(t, "localhost:4318", cfg.Tracing.Endpoint)
	assert.True(t, cfg.Tracing.Insecure)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestConfig_Load_CustomValues(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("MBFLOW_LOG_LEVEL", "debug")
	os.Setenv("MBFLOW_LOG_FORMAT", "text")
	os.Setenv("OTEL_ENABLED", "true")
	os.Setenv("OTEL_SERVICE_NAME", "mbflow-cli")
	os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	os.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	os.Setenv("OTEL_SAMPLE_RATE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)

	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "mbflow-cli", cfg.Tracing.ServiceName)
	assert.Equal(t, "collector:4318", cfg.Tracing.Endpoint)
	assert.False(t, cfg.Tracing.Insecure)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRate)
}

func TestConfig_Load_InvalidValuesUseDefaults(t *testing.T) {
	clearEnv()
	defer clearEnv()

	os.Setenv("OTEL_ENABLED", "not_a_bool")
	os.Setenv("OTEL_SAMPLE_RATE", "not_a_float")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRate)
}

func TestConfig_Validate_RejectsUnknownLogLevel(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "verbose", Format: "json"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_RejectsUnknownLogFormat(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "info", Format: "xml"}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_AcceptsKnownLevelsAndFormats(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		for _, format := range []string{"json", "text"} {
			cfg := &Config{Logging: LoggingConfig{Level: level, Format: format}}
			assert.NoError(t, cfg.Validate())
		}
	}
}
