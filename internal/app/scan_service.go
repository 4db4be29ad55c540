package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/internal/infra/storage"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/internal/metrics"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/pagination"
	"github.com/openctemio/reposcan/pkg/parsers/sarif"
)

// QuotaReserver hands out daily scan slots.
type QuotaReserver interface {
	Reserve(ctx context.Context, orgID string, limit int) (redis.Reservation, error)
	Release(ctx context.Context, orgID string) error
}

// ScanEnqueuer queues scans for the worker.
type ScanEnqueuer interface {
	EnqueueScan(ctx context.Context, s *scan.Scan) error
}

// EventPublisher pushes realtime events to an organization's clients.
type EventPublisher interface {
	Publish(orgID string, event websocket.Event)
}

// ReportStore keeps exported reports.
type ReportStore interface {
	Put(ctx context.Context, obj storage.Object) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

// ScanService triggers, executes and reports scans.
type ScanService struct {
	repo       scan.Repository
	repos      *RepositoryService
	quota      QuotaReserver
	enqueuer   ScanEnqueuer
	publisher  EventPublisher
	reports    ReportStore
	reportTTL  time.Duration
	sarifLimit int64

	entitlements *EntitlementService
	auditService *AuditService
	logger       *logger.Logger
	now          func() time.Time
}

// NewScanService creates a new ScanService. quota may be nil, in which case
// the daily limit is checked against stored scans without a reservation.
func NewScanService(
	repo scan.Repository,
	repos *RepositoryService,
	quota QuotaReserver,
	enqueuer ScanEnqueuer,
	entitlements *EntitlementService,
	auditService *AuditService,
	log *logger.Logger,
) *ScanService {
	return &ScanService{
		repo:         repo,
		repos:        repos,
		quota:        quota,
		enqueuer:     enqueuer,
		reportTTL:    15 * time.Minute,
		sarifLimit:   50 << 20,
		entitlements: entitlements,
		auditService: auditService,
		logger:       log.With("service", "scan"),
		now:          time.Now,
	}
}

// SetEventPublisher enables realtime scan events.
func (s *ScanService) SetEventPublisher(p EventPublisher) {
	s.publisher = p
}

// SetReportStore enables report export. ttl is the lifetime of download links.
func (s *ScanService) SetReportStore(store ReportStore, ttl time.Duration) {
	s.reports = store
	if ttl > 0 {
		s.reportTTL = ttl
	}
}

// SetMaxResultsSize caps uploaded SARIF documents.
func (s *ScanService) SetMaxResultsSize(n int64) {
	if n > 0 {
		s.sarifLimit = n
	}
}

// TriggerScanInput represents the input for triggering a scan.
type TriggerScanInput struct {
	RepositoryID string `json:"repository_id" validate:"required,uuid"`
	Branch       string `json:"branch" validate:"omitempty,branch"`
}

// Trigger queues a scan of a repository. It takes a daily quota slot that is
// given back if the scan cannot be queued.
func (s *ScanService) Trigger(ctx context.Context, actor Actor, repoID shared.ID, branch string, trigger scan.Trigger) (*scan.Scan, error) {
	sc, err := s.trigger(ctx, actor, repoID, branch, trigger)
	metrics.ScansTriggeredTotal.WithLabelValues(trigger.String(), triggerOutcome(err)).Inc()
	return sc, err
}

func (s *ScanService) trigger(ctx context.Context, actor Actor, repoID shared.ID, branch string, trigger scan.Trigger) (*scan.Scan, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermScanRun); err != nil {
		return nil, err
	}
	repo, err := s.repos.Get(ctx, actor, repoID)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = repo.DefaultBranch()
	}
	if err := sourcerepo.ValidateBranch(branch); err != nil {
		return nil, err
	}

	sc, err := scan.NewScan(actor.OrgID, repo.WorkspaceID(), repo.ID(), branch, trigger, actor.createdBy())
	if err != nil {
		return nil, err
	}

	reserved, err := s.reserve(ctx, actor)
	if err != nil {
		return nil, err
	}
	release := func() {
		if !reserved {
			return
		}
		if err := s.quota.Release(ctx, actor.OrgID.String()); err != nil {
			s.logger.Warn("failed to release quota slot", "org_id", actor.OrgID.String(), "error", err)
		}
	}

	if err := s.repo.Create(ctx, sc); err != nil {
		release()
		return nil, err
	}
	if err := s.enqueuer.EnqueueScan(ctx, sc); err != nil {
		release()
		if ferr := sc.Fail("could not be queued"); ferr == nil {
			if uerr := s.repo.Update(ctx, sc); uerr != nil {
				s.logger.Error("failed to mark unqueued scan failed", "scan_id", sc.ID().String(), "error", uerr)
			}
		}
		return nil, fmt.Errorf("enqueue scan: %w", err)
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScanTriggered, audit.ResourceTypeScan, sc.ID().String()).
		WithMetadata("repository_id", repo.ID().String()).
		WithMetadata("branch", branch).
		WithMetadata("trigger", trigger.String()))
	s.publish(sc, "scan.queued")
	return sc, nil
}

// reserve takes a daily slot. reserved reports whether a slot must be
// released on failure. The counter also tracks unlimited plans, so their
// slots are released too.
func (s *ScanService) reserve(ctx context.Context, actor Actor) (reserved bool, err error) {
	p, limit, err := s.entitlements.Limit(ctx, actor.OrgID, plan.LimitScansPerDay)
	if err != nil {
		return false, err
	}

	if s.quota == nil {
		used, err := s.entitlements.ScansToday(ctx, actor.OrgID)
		if err != nil {
			return false, err
		}
		if !limit.Allows(used) {
			return false, s.quotaDenied(ctx, actor, p, limit, used)
		}
		return false, nil
	}

	res, err := s.quota.Reserve(ctx, actor.OrgID.String(), limit.Raw())
	if err != nil {
		return false, err
	}
	if !res.Granted {
		return false, s.quotaDenied(ctx, actor, p, limit, res.Used)
	}
	return true, nil
}

func (s *ScanService) quotaDenied(ctx context.Context, actor Actor, p plan.Plan, limit plan.Limit, used int) error {
	metrics.QuotaExceededTotal.WithLabelValues(p.String(), string(plan.LimitScansPerDay)).Inc()
	s.auditService.log(ctx, actor, NewDeniedEvent(audit.ActionScanTriggered, audit.ResourceTypeScan, "", "daily scan quota exhausted").
		WithMetadata("used", used).
		WithMetadata("max", limit.Max()))
	return &QuotaExceededError{Plan: p, Limit: plan.LimitScansPerDay, Max: limit.Max(), Used: used}
}

func triggerOutcome(err error) string {
	switch {
	case err == nil:
		return "queued"
	case errors.Is(err, shared.ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, shared.ErrPlanRestricted):
		return "plan_restricted"
	default:
		return "error"
	}
}

// Get returns a scan of the caller's organization.
func (s *ScanService) Get(ctx context.Context, actor Actor, id shared.ID) (*scan.Scan, error) {
	sc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sc.OrgID().Equals(actor.OrgID) {
		return nil, scan.ErrScanNotFound
	}
	return sc, nil
}

// List returns the organization's scans, newest first.
func (s *ScanService) List(ctx context.Context, actor Actor, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	filter.OrgID = actor.OrgID
	return s.repo.List(ctx, filter, page)
}

// Cancel stops a queued or running scan.
func (s *ScanService) Cancel(ctx context.Context, actor Actor, id shared.ID) (*scan.Scan, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	sc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := sc.Cancel(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return nil, err
	}

	metrics.ScansFinishedTotal.WithLabelValues(sc.Status().String()).Inc()
	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScanCanceled, audit.ResourceTypeScan, sc.ID().String()))
	s.publish(sc, "scan.canceled")
	return sc, nil
}

// metadataResults is the results document of a worker-executed scan.
type metadataResults struct {
	Engine     string    `json:"engine"`
	Repository string    `json:"repository"`
	Branch     string    `json:"branch"`
	Commit     string    `json:"commit"`
	Refs       int       `json:"refs"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Execute runs a queued scan: it resolves the branch head on the remote and
// records repository metadata as the result. Scans that already finished
// are left alone. An unreachable remote is returned as an error so the job
// is retried; other resolution failures fail the scan.
func (s *ScanService) Execute(ctx context.Context, scanID shared.ID) error {
	sc, err := s.repo.GetByID(ctx, scanID)
	if err != nil {
		return err
	}
	if sc.IsTerminal() {
		s.logger.Debug("scan already finished", "scan_id", scanID.String(), "status", sc.Status().String())
		return nil
	}

	metrics.ScansInProgress.Inc()
	defer metrics.ScansInProgress.Dec()
	start := s.now()
	defer func() { metrics.ScanExecutionDuration.Observe(time.Since(start).Seconds()) }()

	repo, err := s.repos.store.GetByID(ctx, sc.RepositoryID())
	if err != nil {
		if shared.IsNotFound(err) {
			return s.fail(ctx, sc, "repository no longer exists")
		}
		return err
	}

	head, err := s.repos.ResolveHead(ctx, repo, sc.Branch())
	if errors.Is(err, scm.ErrRemoteUnavailable) {
		return err
	}
	if err != nil {
		return s.fail(ctx, sc, err.Error())
	}

	if sc.Status() == scan.StatusQueued {
		if err := sc.Start(head.Commit); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, sc); err != nil {
			return err
		}
		s.publish(sc, "scan.running")
	}

	results, err := json.Marshal(metadataResults{
		Engine:     "metadata",
		Repository: repo.URL().String(),
		Branch:     head.Branch,
		Commit:     head.Commit,
		Refs:       head.Refs,
		ResolvedAt: s.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := sc.Complete(results, scan.Summary{}); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return err
	}

	repo.MarkVerified(head.Commit, s.now())
	if err := s.repos.store.Update(ctx, repo); err != nil {
		s.logger.Warn("failed to record verified commit", "repository_id", repo.ID().String(), "error", err)
	}

	s.finished(ctx, sc, SystemActor(sc.OrgID()), audit.ActionScanCompleted)
	return nil
}

func (s *ScanService) fail(ctx context.Context, sc *scan.Scan, msg string) error {
	if err := sc.Fail(msg); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return err
	}
	s.logger.Warn("scan failed", "scan_id", sc.ID().String(), "reason", msg)
	s.finished(ctx, sc, SystemActor(sc.OrgID()), audit.ActionScanFailed)
	return nil
}

func (s *ScanService) finished(ctx context.Context, sc *scan.Scan, actor Actor, action audit.Action) {
	metrics.ScansFinishedTotal.WithLabelValues(sc.Status().String()).Inc()
	event := NewSuccessEvent(action, audit.ResourceTypeScan, sc.ID().String()).
		WithMetadata("commit", sc.CommitSHA()).
		WithMetadata("findings", sc.Summary().Total())
	if sc.ErrorMessage() != "" {
		event = event.WithMessage(sc.ErrorMessage())
	}
	s.auditService.log(ctx, actor, event)
	s.publish(sc, "scan."+sc.Status().String())
}

// uploadedResults is the results document of a scan completed from SARIF.
type uploadedResults struct {
	Engine   string          `json:"engine"`
	Tools    []string        `json:"tools"`
	Findings []sarif.Finding `json:"findings"`
}

// SubmitResults completes a queued or running scan from an uploaded SARIF
// log.
func (s *ScanService) SubmitResults(ctx context.Context, actor Actor, id shared.ID, data []byte) (*scan.Scan, error) {
	if err := actor.requireRole(organization.RoleMember); err != nil {
		return nil, err
	}
	if err := s.entitlements.Authorize(ctx, actor, plan.PermResultsUpload); err != nil {
		return nil, err
	}
	sc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if sc.IsTerminal() {
		return nil, fmt.Errorf("%w: scan is already %s", shared.ErrConflict, sc.Status())
	}

	log, err := sarif.NewParser(&sarif.Options{MaxBytes: s.sarifLimit}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrValidation, err.Error())
	}

	findings := sarif.ExtractFindings(log)
	var summary scan.Summary
	for _, f := range findings {
		summary.Add(f.Severity)
	}
	tools := make([]string, 0, len(log.Runs))
	for _, run := range log.Runs {
		tools = append(tools, run.Tool.Driver.Name)
	}
	if findings == nil {
		findings = []sarif.Finding{}
	}
	results, err := json.Marshal(uploadedResults{Engine: "sarif", Tools: tools, Findings: findings})
	if err != nil {
		return nil, err
	}

	if sc.Status() == scan.StatusQueued {
		if err := sc.Start(log.Revision()); err != nil {
			return nil, err
		}
	}
	if err := sc.Complete(results, summary); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sc); err != nil {
		return nil, err
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionScanResultsUploaded, audit.ResourceTypeScan, sc.ID().String()).
		WithMetadata("findings", summary.Total()))
	s.finished(ctx, sc, actor, audit.ActionScanCompleted)
	return sc, nil
}

// Report is the exported document of a scan.
type Report struct {
	ScanID       string          `json:"scan_id"`
	RepositoryID string          `json:"repository_id"`
	WorkspaceID  string          `json:"workspace_id"`
	Branch       string          `json:"branch"`
	Commit       string          `json:"commit"`
	Trigger      string          `json:"trigger"`
	Status       string          `json:"status"`
	Summary      scan.Summary    `json:"summary"`
	Results      json.RawMessage `json:"results,omitempty"`
	QueuedAt     time.Time       `json:"queued_at"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// ReportLink is a download link for an exported report.
type ReportLink struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ExportReport writes a zstd-compressed JSON report of a finished scan and
// returns a presigned download link.
func (s *ScanService) ExportReport(ctx context.Context, actor Actor, id shared.ID) (*ReportLink, error) {
	link, err := s.exportReport(ctx, actor, id)
	outcome := "success"
	switch {
	case errors.Is(err, shared.ErrPlanRestricted):
		outcome = "plan_restricted"
	case err != nil:
		outcome = "error"
	}
	metrics.ReportsExportedTotal.WithLabelValues(outcome).Inc()
	return link, err
}

func (s *ScanService) exportReport(ctx context.Context, actor Actor, id shared.ID) (*ReportLink, error) {
	if err := s.entitlements.Authorize(ctx, actor, plan.PermReportExport); err != nil {
		return nil, err
	}
	if s.reports == nil {
		return nil, fmt.Errorf("%w: report storage is not configured", shared.ErrInternal)
	}
	sc, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !sc.IsTerminal() {
		return nil, fmt.Errorf("%w: scan has not finished", shared.ErrConflict)
	}

	now := s.now().UTC()
	body, err := json.Marshal(Report{
		ScanID:       sc.ID().String(),
		RepositoryID: sc.RepositoryID().String(),
		WorkspaceID:  sc.WorkspaceID().String(),
		Branch:       sc.Branch(),
		Commit:       sc.CommitSHA(),
		Trigger:      sc.Trigger().String(),
		Status:       sc.Status().String(),
		Summary:      sc.Summary(),
		Results:      sc.Results(),
		QueuedAt:     sc.QueuedAt(),
		FinishedAt:   sc.FinishedAt(),
		GeneratedAt:  now,
	})
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/scans/%s/report-%d.json.zst", sc.OrgID(), sc.ID(), now.Unix())
	if err := s.reports.Put(ctx, storage.Object{
		Key:             key,
		Body:            storage.CompressZstd(body),
		ContentType:     "application/json",
		ContentEncoding: storage.ContentEncodingZstd,
	}); err != nil {
		return nil, fmt.Errorf("store report: %w", err)
	}
	url, expires, err := s.reports.PresignGet(ctx, key, s.reportTTL)
	if err != nil {
		return nil, fmt.Errorf("presign report: %w", err)
	}

	s.auditService.log(ctx, actor, NewSuccessEvent(audit.ActionReportExported, audit.ResourceTypeScan, sc.ID().String()).
		WithMetadata("key", key))
	return &ReportLink{Key: key, URL: url, ExpiresAt: expires}, nil
}

func (s *ScanService) publish(sc *scan.Scan, name string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(sc.OrgID().String(), websocket.Event{
		Name: name,
		Channels: []string{
			websocket.MakeChannel(websocket.ChannelTypeScan, sc.ID().String()),
			websocket.MakeChannel(websocket.ChannelTypeWorkspace, sc.WorkspaceID().String()),
			websocket.MakeChannel(websocket.ChannelTypeRepository, sc.RepositoryID().String()),
		},
		Data: map[string]any{
			"scanId":  sc.ID().String(),
			"status":  sc.Status().String(),
			"commit":  sc.CommitSHA(),
			"summary": sc.Summary(),
		},
	})
}
