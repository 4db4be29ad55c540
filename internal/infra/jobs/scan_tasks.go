package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
)

// TypeScanExecute is the task type for running a queued scan.
const TypeScanExecute = "scan:execute"

// Queue names, highest priority first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ScanPayload contains data for executing a scan.
type ScanPayload struct {
	ScanID  string `json:"scan_id"`
	OrgID   string `json:"org_id"`
	Trigger string `json:"trigger"`
}

// QueueForTrigger picks the queue for a scan. People waiting on a manual scan
// go first; scheduled scans can wait.
func QueueForTrigger(t scan.Trigger) string {
	switch t {
	case scan.TriggerManual:
		return QueueCritical
	case scan.TriggerScheduled:
		return QueueLow
	default:
		return QueueDefault
	}
}

// TaskOptions holds per-task retry settings.
type TaskOptions struct {
	MaxRetry int
	Timeout  time.Duration
}

// NewScanTask creates a task for executing a scan.
func NewScanTask(payload ScanPayload, opts TaskOptions) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal scan payload: %w", err)
	}
	if opts.MaxRetry < 0 {
		opts.MaxRetry = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}

	return asynq.NewTask(TypeScanExecute, data,
		asynq.MaxRetry(opts.MaxRetry),
		asynq.Timeout(opts.Timeout),
		asynq.Queue(QueueForTrigger(scan.Trigger(payload.Trigger))),
		asynq.TaskID(payload.ScanID),
	), nil
}

// ScanExecutor runs a queued scan. Implemented by app.ScanService.
type ScanExecutor interface {
	Execute(ctx context.Context, scanID shared.ID) error
}

// ScanTaskHandler handles scan tasks.
type ScanTaskHandler struct {
	executor ScanExecutor
	logger   *logger.Logger
}

// NewScanTaskHandler creates a new scan task handler.
func NewScanTaskHandler(executor ScanExecutor, log *logger.Logger) *ScanTaskHandler {
	return &ScanTaskHandler{
		executor: executor,
		logger:   log.With("handler", "scan_task"),
	}
}

// HandleScan handles the scan execution task.
func (h *ScanTaskHandler) HandleScan(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("failed to unmarshal scan payload", "error", err)
		return fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}

	scanID, err := shared.IDFromString(payload.ScanID)
	if err != nil {
		h.logger.Error("invalid scan_id", "scan_id", payload.ScanID, "error", err)
		return fmt.Errorf("invalid scan_id: %w", asynq.SkipRetry)
	}

	ctx, span := otel.Tracer("reposcan/jobs").Start(ctx, "scan.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("scan.id", payload.ScanID),
		attribute.String("org.id", payload.OrgID),
		attribute.String("scan.trigger", payload.Trigger),
	)

	start := time.Now()
	if err := h.executor.Execute(ctx, scanID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Missing or already finished scans will never succeed on retry.
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrConflict) {
			h.logger.Warn("scan task dropped", "scan_id", payload.ScanID, "error", err)
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		h.logger.Error("scan task failed", "scan_id", payload.ScanID, "error", err)
		return err
	}

	h.logger.Info("scan task completed", "scan_id", payload.ScanID, "duration", time.Since(start))
	return nil
}

// RegisterHandlers registers scan task handlers with the asynq server mux.
func (h *ScanTaskHandler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeScanExecute, h.HandleScan)
}
