package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/logger"
)

// OrganizationLister pages through all organizations.
type OrganizationLister interface {
	List(ctx context.Context, after shared.ID, limit int) ([]*organization.Organization, error)
}

// ScanPurger removes terminal scans older than a cutoff.
type ScanPurger interface {
	DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time, batch int) (int, error)
}

// AuditPurger removes audit entries older than a cutoff.
type AuditPurger interface {
	DeleteOlderThan(ctx context.Context, orgID shared.ID, cutoff time.Time) (int64, error)
}

// RetentionConfig configures a RetentionController.
type RetentionConfig struct {
	// Interval defaults to 24h.
	Interval time.Duration

	// BatchSize bounds both the org page size and each scan delete.
	// Defaults to 500.
	BatchSize int

	// DryRun logs the cutoff per organization without deleting anything.
	DryRun bool

	Logger *logger.Logger
}

// RetentionController enforces each plan's retentionDays limit. Orgs whose
// plan has unlimited retention are skipped.
type RetentionController struct {
	orgs   OrganizationLister
	scans  ScanPurger
	audits AuditPurger
	cfg    RetentionConfig
	logger *logger.Logger
	now    func() time.Time
}

// NewRetentionController creates a RetentionController.
func NewRetentionController(orgs OrganizationLister, scans ScanPurger, audits AuditPurger, cfg RetentionConfig) *RetentionController {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &RetentionController{
		orgs:   orgs,
		scans:  scans,
		audits: audits,
		cfg:    cfg,
		logger: log.With("controller", "retention"),
		now:    time.Now,
	}
}

func (c *RetentionController) Name() string            { return "retention" }
func (c *RetentionController) Interval() time.Duration { return c.cfg.Interval }

// Reconcile walks every organization and purges expired data. A failure on
// one organization is logged and the walk continues; the first error is
// returned at the end.
func (c *RetentionController) Reconcile(ctx context.Context) (int, error) {
	now := c.now().UTC()
	var (
		total    int
		firstErr error
		after    shared.ID
	)

	for {
		page, err := c.orgs.List(ctx, after, c.cfg.BatchSize)
		if err != nil {
			return total, fmt.Errorf("list organizations: %w", err)
		}
		for _, org := range page {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			n, err := c.purgeOrg(ctx, org, now)
			total += n
			if err != nil {
				c.logger.Error("retention failed", "org_id", org.ID().String(), "error", err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
		if len(page) < c.cfg.BatchSize {
			return total, firstErr
		}
		after = page[len(page)-1].ID()
	}
}

func (c *RetentionController) purgeOrg(ctx context.Context, org *organization.Organization, now time.Time) (int, error) {
	limit, err := plan.Lookup(org.Plan(), plan.LimitRetentionDays)
	if err != nil {
		return 0, err
	}
	if limit.IsUnlimited() {
		return 0, nil
	}

	cutoff := now.AddDate(0, 0, -limit.Max())
	log := c.logger.With("org_id", org.ID().String(), "plan", org.Plan().String(), "cutoff", cutoff)

	if c.cfg.DryRun {
		log.Info("dry run: would purge scans and audit logs")
		return 0, nil
	}

	scans := 0
	for {
		n, err := c.scans.DeleteOlderThan(ctx, org.ID(), cutoff, c.cfg.BatchSize)
		scans += n
		if err != nil {
			return scans, fmt.Errorf("purge scans: %w", err)
		}
		if n < c.cfg.BatchSize {
			break
		}
	}

	audits, err := c.audits.DeleteOlderThan(ctx, org.ID(), cutoff)
	if err != nil {
		return scans, fmt.Errorf("purge audit logs: %w", err)
	}

	if scans > 0 || audits > 0 {
		log.Info("purged expired data", "scans", scans, "audit_logs", audits)
	}
	return scans + int(audits), nil
}
