// Package mqtt publishes pipeline results and system events to an MQTT
// broker for downstream dashboards.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/positioning"
)

// Config holds MQTT configuration.
type Config struct {
	Broker      string `json:"broker"`
	Port        int    `json:"port"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	QoS         int    `json:"qos"`
	Retain      bool   `json:"retain"`
	Enabled     bool   `json:"enabled"`
}

// DefaultConfig returns default MQTT configuration. Publishing is disabled
// by default.
func DefaultConfig() *Config {
	return &Config{
		Broker:      "localhost",
		Port:        1883,
		ClientID:    "tagposd",
		TopicPrefix: "tagpos",
		QoS:         1,
		Retain:      false,
		Enabled:     false,
	}
}

// Client wraps the paho MQTT client.
type Client struct {
	client MQTT.Client
	config *Config
	logger *logx.Logger
}

// NewClient creates an MQTT client.
func NewClient(config *Config, logger *logx.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	return &Client{config: config, logger: logger}
}

// Connect establishes the broker connection. A disabled client connects to
// nothing and publishes nothing.
func (c *Client) Connect() error {
	if !c.config.Enabled {
		c.logger.Info("mqtt publishing disabled")
		return nil
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port))
	opts.SetClientID(c.config.ClientID)
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)

	c.client = MQTT.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return fmt.Errorf("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect failed: %w", err)
	}

	c.logger.Info("mqtt connected", "broker", c.config.Broker, "port", c.config.Port)
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

// PublishRunResult publishes one pipeline run summary to <prefix>/runs.
func (c *Client) PublishRunResult(result *positioning.RunResult) error {
	return c.publishJSON(c.config.TopicPrefix+"/runs", result)
}

// PublishPrediction publishes one tag report to <prefix>/predictions/<tag>.
func (c *Client) PublishPrediction(report *positioning.TagReport) error {
	return c.publishJSON(fmt.Sprintf("%s/predictions/%s", c.config.TopicPrefix, report.TagID), report)
}

// PublishEvent publishes a system event to <prefix>/events.
func (c *Client) PublishEvent(event *pkg.Event) error {
	return c.publishJSON(c.config.TopicPrefix+"/events", event)
}

func (c *Client) publishJSON(topic string, payload interface{}) error {
	if !c.config.Enabled || c.client == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}
	token := c.client.Publish(topic, byte(c.config.QoS), c.config.Retain, data)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish to %s failed: %w", topic, err)
	}
	c.logger.Debug("mqtt published", "topic", topic, "bytes", len(data))
	return nil
}
