// Package config loads daemon configuration from the environment, with an
// optional .env file for development setups.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the full tagposd configuration.
type Config struct {
	// General
	LogLevel string `json:"log_level"`
	DBPath   string `json:"db_path"`
	PIDFile  string `json:"pid_file"`

	// HTTP API
	APIHost    string `json:"api_host"`
	APIPort    int    `json:"api_port"`
	APIAuthKey string `json:"api_auth_key"`

	// Prometheus metrics listener
	MetricsListener bool `json:"metrics_listener"`
	MetricsPort     int  `json:"metrics_port"`

	// Positioning pipeline
	WarmupSize   int    `json:"warmup_size"`
	WindowSize   int    `json:"window_size"`
	FeatureCount int    `json:"feature_count"`
	Model        string `json:"model"`         // knn or linear
	KNNNeighbors int    `json:"knn_neighbors"` // k for the knn model

	// Telemetry ring buffer
	RetentionHours int `json:"retention_hours"`
	MaxEvents      int `json:"max_events"`

	// Run history (bbolt)
	RunHistoryPath  string `json:"run_history_path"`
	RunHistoryLimit int    `json:"run_history_limit"`

	// MQTT publishing
	MQTTEnabled     bool   `json:"mqtt_enabled"`
	MQTTBroker      string `json:"mqtt_broker"`
	MQTTPort        int    `json:"mqtt_port"`
	MQTTClientID    string `json:"mqtt_client_id"`
	MQTTUsername    string `json:"mqtt_username"`
	MQTTPassword    string `json:"mqtt_password"`
	MQTTTopicPrefix string `json:"mqtt_topic_prefix"`

	// TagSee reader gateway
	TagSeeEnabled bool   `json:"tagsee_enabled"`
	TagSeeHost    string `json:"tagsee_host"`
	TagSeePort    int    `json:"tagsee_port"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		DBPath:          "data/positioning.db",
		PIDFile:         "/tmp/tagposd.pid",
		APIHost:         "0.0.0.0",
		APIPort:         8000,
		MetricsListener: false,
		MetricsPort:     9090,
		WarmupSize:      10,
		WindowSize:      10,
		FeatureCount:    40,
		Model:           "knn",
		KNNNeighbors:    3,
		RetentionHours:  24,
		MaxEvents:       1000,
		RunHistoryPath:  "data/runs.db",
		RunHistoryLimit: 100,
		MQTTEnabled:     false,
		MQTTBroker:      "localhost",
		MQTTPort:        1883,
		MQTTClientID:    "tagposd",
		MQTTTopicPrefix: "tagpos",
		TagSeeEnabled:   false,
		TagSeeHost:      "localhost",
		TagSeePort:      9092,
	}
}

// Load reads configuration from the environment. If envFile is non-empty
// and exists it is loaded first without overriding variables already set.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
			}
		}
	}

	cfg := Default()
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.DBPath = envString("DB_PATH", cfg.DBPath)
	cfg.PIDFile = envString("PID_FILE", cfg.PIDFile)
	cfg.APIHost = envString("API_HOST", cfg.APIHost)
	cfg.APIPort = envInt("API_PORT", cfg.APIPort)
	cfg.APIAuthKey = envString("API_AUTH_KEY", cfg.APIAuthKey)
	cfg.MetricsListener = envBool("METRICS_LISTENER", cfg.MetricsListener)
	cfg.MetricsPort = envInt("METRICS_PORT", cfg.MetricsPort)
	cfg.WarmupSize = envInt("WARMUP_SIZE", cfg.WarmupSize)
	cfg.WindowSize = envInt("WINDOW_SIZE", cfg.WindowSize)
	cfg.FeatureCount = envInt("FEATURE_COUNT", cfg.FeatureCount)
	cfg.Model = envString("MODEL", cfg.Model)
	cfg.KNNNeighbors = envInt("KNN_NEIGHBORS", cfg.KNNNeighbors)
	cfg.RetentionHours = envInt("RETENTION_HOURS", cfg.RetentionHours)
	cfg.MaxEvents = envInt("MAX_EVENTS", cfg.MaxEvents)
	cfg.RunHistoryPath = envString("RUN_HISTORY_PATH", cfg.RunHistoryPath)
	cfg.RunHistoryLimit = envInt("RUN_HISTORY_LIMIT", cfg.RunHistoryLimit)
	cfg.MQTTEnabled = envBool("MQTT_ENABLED", cfg.MQTTEnabled)
	cfg.MQTTBroker = envString("MQTT_BROKER", cfg.MQTTBroker)
	cfg.MQTTPort = envInt("MQTT_PORT", cfg.MQTTPort)
	cfg.MQTTClientID = envString("MQTT_CLIENT_ID", cfg.MQTTClientID)
	cfg.MQTTUsername = envString("MQTT_USERNAME", cfg.MQTTUsername)
	cfg.MQTTPassword = envString("MQTT_PASSWORD", cfg.MQTTPassword)
	cfg.MQTTTopicPrefix = envString("MQTT_TOPIC_PREFIX", cfg.MQTTTopicPrefix)
	cfg.TagSeeEnabled = envBool("TAGSEE_ENABLED", cfg.TagSeeEnabled)
	cfg.TagSeeHost = envString("TAGSEE_HOST", cfg.TagSeeHost)
	cfg.TagSeePort = envInt("TAGSEE_PORT", cfg.TagSeePort)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration values that would make the pipeline or the
// listeners unusable.
func (c *Config) Validate() error {
	if c.WarmupSize <= 0 {
		return fmt.Errorf("warmup_size must be positive, got %d", c.WarmupSize)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got %d", c.WindowSize)
	}
	if c.FeatureCount <= 0 {
		return fmt.Errorf("feature_count must be positive, got %d", c.FeatureCount)
	}
	if c.Model != "knn" && c.Model != "linear" {
		return fmt.Errorf("model must be knn or linear, got %q", c.Model)
	}
	if c.KNNNeighbors <= 0 {
		return fmt.Errorf("knn_neighbors must be positive, got %d", c.KNNNeighbors)
	}
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port out of range: %d", c.APIPort)
	}
	if c.MetricsListener && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		return fmt.Errorf("metrics_port out of range: %d", c.MetricsPort)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
