package tagsee

import (
	"context"
	"time"

	"github.com/rfidlab/tagpos/pkg"
	"github.com/rfidlab/tagpos/pkg/logx"
	"github.com/rfidlab/tagpos/pkg/telem"
)

// ReadingSink is the slice of the store the collector writes to.
type ReadingSink interface {
	InsertReadings(ctx context.Context, readings []*pkg.Reading) error
	MarkRead(ctx context.Context, tagID string) error
}

// Collector subscribes to the gateway stream and persists reading batches.
type Collector struct {
	client    *Client
	agentIP   string
	sink      ReadingSink
	telemetry *telem.Store
	logger    *logx.Logger
	onBatch   func(count int)
}

// NewCollector creates a collector for one reader agent.
func NewCollector(client *Client, agentIP string, sink ReadingSink, telemetry *telem.Store, logger *logx.Logger) *Collector {
	return &Collector{
		client:    client,
		agentIP:   agentIP,
		sink:      sink,
		telemetry: telemetry,
		logger:    logger,
	}
}

// SetBatchHook registers a callback invoked with the size of every stored
// batch, used to feed ingestion metrics.
func (c *Collector) SetBatchHook(hook func(count int)) {
	c.onBatch = hook
}

// Run starts the agent, consumes the stream until ctx ends and stops the
// agent on the way out. Stream failures reconnect with a fixed backoff.
func (c *Collector) Run(ctx context.Context) {
	if err := c.client.StartReading(ctx, c.agentIP); err != nil {
		c.logger.Error("failed to start reader agent", "agent_ip", c.agentIP, "error", err)
		return
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.client.StopReading(stopCtx, c.agentIP); err != nil {
			c.logger.Warn("failed to stop reader agent", "agent_ip", c.agentIP, "error", err)
		}
	}()

	for ctx.Err() == nil {
		err := c.client.Stream(ctx, c.storeBatch)
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("tagsee stream lost, reconnecting", "error", err)
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
	}
}

func (c *Collector) storeBatch(batch []*pkg.Reading) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.sink.InsertReadings(ctx, batch); err != nil {
		c.logger.Error("failed to store reading batch", "count", len(batch), "error", err)
		return
	}

	seen := make(map[string]bool)
	for _, r := range batch {
		if seen[r.TagID] {
			continue
		}
		seen[r.TagID] = true
		if err := c.sink.MarkRead(ctx, r.TagID); err != nil {
			c.logger.Warn("failed to mark tag read", "tag_id", r.TagID, "error", err)
		}
	}

	if c.telemetry != nil {
		c.telemetry.Record("readings_collected", "reading batch stored", map[string]interface{}{
			"count": len(batch),
			"tags":  len(seen),
		})
	}
	if c.onBatch != nil {
		c.onBatch(len(batch))
	}
	c.logger.Debug("reading batch stored", "count", len(batch), "tags", len(seen))
}
