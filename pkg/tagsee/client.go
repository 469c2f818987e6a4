// Package tagsee is a client for the TagSee reader gateway: REST calls to
// manage and start/stop hardware reader agents, and a WebSocket stream of
// raw reading batches.
package tagsee

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
)

// Agent is a hardware reader agent known to the gateway.
type Agent struct {
	IP     string `json:"ip"`
	Name   string `json:"name"`
	Remark string `json:"remark"`
}

// Client talks to one TagSee gateway.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	logger     *logx.Logger
}

// NewClient creates a client for the gateway at host:port.
func NewClient(host string, port int, logger *logx.Logger) *Client {
	return &Client{
		baseURL:    fmt.Sprintf("http://%s:%d/service", host, port),
		wsURL:      fmt.Sprintf("ws://%s:%d/socket", host, port),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// envelope is the common REST response shape. Any errorCode other than
// zero is a gateway-side failure.
type envelope struct {
	ErrorCode int     `json:"errorCode"`
	Agents    []Agent `json:"agents"`
}

// DiscoverAgents lists the reader agents the gateway knows about.
func (c *Client) DiscoverAgents(ctx context.Context) ([]Agent, error) {
	env, err := c.get(ctx, "/discover")
	if err != nil {
		return nil, err
	}
	return env.Agents, nil
}

// CreateAgent registers a reader agent.
func (c *Client) CreateAgent(ctx context.Context, agent Agent) error {
	_, err := c.post(ctx, "/agent/create", agent)
	return err
}

// UpdateAgent updates a reader agent's name and remark.
func (c *Client) UpdateAgent(ctx context.Context, agent Agent) error {
	_, err := c.post(ctx, "/agent/"+agent.IP+"/update", agent)
	return err
}

// RemoveAgent deregisters a reader agent.
func (c *Client) RemoveAgent(ctx context.Context, ip string) error {
	_, err := c.post(ctx, "/agent/"+ip+"/remove", map[string]string{"ip": ip})
	return err
}

// StartReading tells the agent to start streaming readings.
func (c *Client) StartReading(ctx context.Context, ip string) error {
	_, err := c.get(ctx, "/agent/"+ip+"/start")
	return err
}

// StopReading tells the agent to stop streaming.
func (c *Client) StopReading(ctx context.Context, ip string) error {
	_, err := c.get(ctx, "/agent/"+ip+"/stop")
	return err
}

// Stream connects to the gateway WebSocket and invokes handle for every
// reading batch until ctx is canceled or the connection fails. Heartbeats
// and error frames are skipped.
func (c *Client) Stream(ctx context.Context, handle func(batch []*pkg.Reading)) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	// Close the socket when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.logger.Info("tagsee stream connected", "url", c.wsURL)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("tagsee stream read failed: %w", err)
		}
		batch, err := parseReadingBatch(data, time.Now().UTC())
		if err != nil {
			c.logger.Warn("skipping malformed tagsee frame", "error", err)
			continue
		}
		if len(batch) > 0 {
			handle(batch)
		}
	}
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tagsee request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tagsee request %s returned status %d", req.URL.Path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tagsee response: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode tagsee response: %w", err)
	}
	if env.ErrorCode != 0 {
		return nil, fmt.Errorf("tagsee request %s failed with errorCode %d", req.URL.Path, env.ErrorCode)
	}
	return &env, nil
}
