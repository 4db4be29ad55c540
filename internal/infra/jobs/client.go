package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/logger"
)

// Client manages enqueueing background jobs using Asynq.
type Client struct {
	client *asynq.Client
	opts   TaskOptions
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client for enqueueing tasks.
func NewClient(cfg ClientConfig, opts TaskOptions, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &Client{
		client: client,
		opts:   opts,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueScan queues a scan for execution. Enqueueing the same scan twice is
// a no-op because the task ID is the scan ID.
func (c *Client) EnqueueScan(ctx context.Context, s *scan.Scan) error {
	task, err := NewScanTask(ScanPayload{
		ScanID:  s.ID().String(),
		OrgID:   s.OrgID().String(),
		Trigger: s.Trigger().String(),
	}, c.opts)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		c.logger.Debug("scan already queued", "scan_id", s.ID().String())
		return nil
	}
	if err != nil {
		c.logger.Error("failed to enqueue scan", "scan_id", s.ID().String(), "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info("scan queued",
		"task_id", info.ID,
		"scan_id", s.ID().String(),
		"queue", info.Queue,
	)
	return nil
}
