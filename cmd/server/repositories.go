package main

import (
	"github.com/openctemio/reposcan/internal/infra/postgres"
)

// Repositories holds the postgres-backed repositories.
type Repositories struct {
	User         *postgres.UserRepository
	Organization *postgres.OrganizationRepository
	Workspace    *postgres.WorkspaceRepository
	SourceRepo   *postgres.SourceRepoRepository
	Scan         *postgres.ScanRepository
	Schedule     *postgres.ScheduleRepository
	Audit        *postgres.AuditRepository
}

// NewRepositories creates every repository on db.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		User:         postgres.NewUserRepository(db),
		Organization: postgres.NewOrganizationRepository(db),
		Workspace:    postgres.NewWorkspaceRepository(db),
		SourceRepo:   postgres.NewSourceRepoRepository(db),
		Scan:         postgres.NewScanRepository(db),
		Schedule:     postgres.NewScheduleRepository(db),
		Audit:        postgres.NewAuditRepository(db),
	}
}
