package app

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/openctemio/reposcan/internal/infra/redis"
	"github.com/openctemio/reposcan/internal/infra/scm"
	"github.com/openctemio/reposcan/internal/infra/storage"
	"github.com/openctemio/reposcan/internal/infra/websocket"
	"github.com/openctemio/reposcan/pkg/crypto"
	"github.com/openctemio/reposcan/pkg/domain/audit"
	"github.com/openctemio/reposcan/pkg/domain/organization"
	"github.com/openctemio/reposcan/pkg/domain/plan"
	"github.com/openctemio/reposcan/pkg/domain/scan"
	"github.com/openctemio/reposcan/pkg/domain/schedule"
	"github.com/openctemio/reposcan/pkg/domain/shared"
	"github.com/openctemio/reposcan/pkg/domain/sourcerepo"
	"github.com/openctemio/reposcan/pkg/domain/user"
	"github.com/openctemio/reposcan/pkg/domain/workspace"
	"github.com/openctemio/reposcan/pkg/logger"
	"github.com/openctemio/reposcan/pkg/pagination"
)

// ============================================================================
// In-memory repositories
// ============================================================================

type memUsers struct {
	mu    sync.Mutex
	users map[shared.ID]*user.User
}

func newMemUsers() *memUsers { return &memUsers{users: map[shared.ID]*user.User{}} }

func (m *memUsers) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email() == u.Email() {
			return user.ErrEmailAlreadyTaken
		}
	}
	m.users[u.ID()] = u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id shared.ID) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email() == email {
			return u, nil
		}
	}
	return nil, user.ErrUserNotFound
}

func (m *memUsers) Update(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID()] = u
	return nil
}

type memOrgs struct {
	mu          sync.Mutex
	orgs        map[shared.ID]*organization.Organization
	memberships map[shared.ID][]*organization.Membership
	users       *memUsers
	updates     int
}

func newMemOrgs(users *memUsers) *memOrgs {
	return &memOrgs{
		orgs:        map[shared.ID]*organization.Organization{},
		memberships: map[shared.ID][]*organization.Membership{},
		users:       users,
	}
}

func (m *memOrgs) Create(_ context.Context, o *organization.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.orgs {
		if existing.Slug() == o.Slug() {
			return organization.ErrSlugTaken
		}
	}
	m.orgs[o.ID()] = o
	return nil
}

func (m *memOrgs) GetByID(_ context.Context, id shared.ID) (*organization.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orgs[id]; ok {
		return o, nil
	}
	return nil, organization.ErrOrganizationNotFound
}

func (m *memOrgs) GetBySlug(_ context.Context, slug string) (*organization.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgs {
		if o.Slug() == slug {
			return o, nil
		}
	}
	return nil, organization.ErrOrganizationNotFound
}

func (m *memOrgs) Update(_ context.Context, o *organization.Organization) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[o.ID()] = o
	m.updates++
	return nil
}

func (m *memOrgs) List(_ context.Context, after shared.ID, limit int) ([]*organization.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*organization.Organization, 0, len(m.orgs))
	for _, o := range m.orgs {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID().String() < all[j].ID().String() })
	var out []*organization.Organization
	for _, o := range all {
		if !after.IsZero() && o.ID().String() <= after.String() {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memOrgs) AddMember(_ context.Context, ms *organization.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.memberships[ms.OrgID()] {
		if existing.UserID().Equals(ms.UserID()) {
			return organization.ErrAlreadyMember
		}
	}
	m.memberships[ms.OrgID()] = append(m.memberships[ms.OrgID()], ms)
	return nil
}

func (m *memOrgs) GetMembership(_ context.Context, orgID, userID shared.ID) (*organization.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.memberships[orgID] {
		if ms.UserID().Equals(userID) {
			return ms, nil
		}
	}
	return nil, organization.ErrMembershipNotFound
}

func (m *memOrgs) UpdateMembership(_ context.Context, ms *organization.Membership) error {
	return nil
}

func (m *memOrgs) RemoveMember(_ context.Context, orgID, userID shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.memberships[orgID]
	for i, ms := range list {
		if ms.UserID().Equals(userID) {
			m.memberships[orgID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return organization.ErrMembershipNotFound
}

func (m *memOrgs) ListMembers(ctx context.Context, orgID shared.ID) ([]organization.Member, error) {
	m.mu.Lock()
	list := slices.Clone(m.memberships[orgID])
	m.mu.Unlock()
	out := make([]organization.Member, 0, len(list))
	for _, ms := range list {
		member := organization.Member{UserID: ms.UserID(), Role: ms.Role(), JoinedAt: ms.JoinedAt()}
		if u, err := m.users.GetByID(ctx, ms.UserID()); err == nil {
			member.Email, member.Name = u.Email(), u.Name()
		}
		out = append(out, member)
	}
	return out, nil
}

func (m *memOrgs) ListForUser(_ context.Context, userID shared.ID) ([]*organization.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*organization.Membership
	for _, list := range m.memberships {
		for _, ms := range list {
			if ms.UserID().Equals(userID) {
				out = append(out, ms)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt().Before(out[j].JoinedAt()) })
	return out, nil
}

type memWorkspaces struct {
	mu         sync.Mutex
	workspaces map[shared.ID]*workspace.Workspace
	members    map[shared.ID][]shared.ID
	memberErr  error
}

func newMemWorkspaces() *memWorkspaces {
	return &memWorkspaces{
		workspaces: map[shared.ID]*workspace.Workspace{},
		members:    map[shared.ID][]shared.ID{},
	}
}

func (m *memWorkspaces) Create(_ context.Context, w *workspace.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.workspaces {
		if existing.OrgID().Equals(w.OrgID()) && existing.Name() == w.Name() {
			return workspace.ErrNameTaken
		}
	}
	m.workspaces[w.ID()] = w
	return nil
}

func (m *memWorkspaces) CreateWithMember(ctx context.Context, w *workspace.Workspace, userID shared.ID) error {
	m.mu.Lock()
	memberErr := m.memberErr
	m.mu.Unlock()
	if memberErr != nil {
		return memberErr
	}
	if err := m.Create(ctx, w); err != nil {
		return err
	}
	return m.AddMember(ctx, w.ID(), userID)
}

func (m *memWorkspaces) GetByID(_ context.Context, id shared.ID) (*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.workspaces[id]; ok {
		return w, nil
	}
	return nil, workspace.ErrWorkspaceNotFound
}

func (m *memWorkspaces) ListByOrg(_ context.Context, orgID shared.ID) ([]*workspace.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*workspace.Workspace
	for _, w := range m.workspaces {
		if w.BelongsTo(orgID) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (m *memWorkspaces) CountByOrg(ctx context.Context, orgID shared.ID) (int, error) {
	list, _ := m.ListByOrg(ctx, orgID)
	return len(list), nil
}

func (m *memWorkspaces) Update(_ context.Context, w *workspace.Workspace) error { return nil }

func (m *memWorkspaces) Delete(_ context.Context, id shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[id]; !ok {
		return workspace.ErrWorkspaceNotFound
	}
	delete(m.workspaces, id)
	delete(m.members, id)
	return nil
}

func (m *memWorkspaces) AddMember(_ context.Context, workspaceID, userID shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if slices.Contains(m.members[workspaceID], userID) {
		return workspace.ErrAlreadyMember
	}
	m.members[workspaceID] = append(m.members[workspaceID], userID)
	return nil
}

func (m *memWorkspaces) RemoveMember(_ context.Context, workspaceID, userID shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := slices.Index(m.members[workspaceID], userID)
	if i < 0 {
		return workspace.ErrMemberNotFound
	}
	m.members[workspaceID] = slices.Delete(m.members[workspaceID], i, i+1)
	return nil
}

func (m *memWorkspaces) ListMembers(_ context.Context, workspaceID shared.ID) ([]workspace.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []workspace.Member
	for _, id := range m.members[workspaceID] {
		out = append(out, workspace.Member{WorkspaceID: workspaceID, UserID: id})
	}
	return out, nil
}

func (m *memWorkspaces) CountMembers(_ context.Context, workspaceID shared.ID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.members[workspaceID]), nil
}

func (m *memWorkspaces) IsMember(_ context.Context, workspaceID, userID shared.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Contains(m.members[workspaceID], userID), nil
}

type memRepos struct {
	mu    sync.Mutex
	repos map[shared.ID]*sourcerepo.Repository
}

func newMemRepos() *memRepos { return &memRepos{repos: map[shared.ID]*sourcerepo.Repository{}} }

func (m *memRepos) Create(_ context.Context, r *sourcerepo.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repos[r.ID()] = r
	return nil
}

func (m *memRepos) GetByID(_ context.Context, id shared.ID) (*sourcerepo.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.repos[id]; ok {
		return r, nil
	}
	return nil, sourcerepo.ErrRepositoryNotFound
}

func (m *memRepos) ListByWorkspace(_ context.Context, workspaceID shared.ID) ([]*sourcerepo.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sourcerepo.Repository
	for _, r := range m.repos {
		if r.WorkspaceID().Equals(workspaceID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepos) Update(_ context.Context, r *sourcerepo.Repository) error { return nil }

func (m *memRepos) Delete(_ context.Context, id shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.repos, id)
	return nil
}

func (m *memRepos) ExistsByURL(_ context.Context, workspaceID shared.ID, url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.WorkspaceID().Equals(workspaceID) && r.URL().String() == url {
			return true, nil
		}
	}
	return false, nil
}

type memScans struct {
	mu    sync.Mutex
	scans map[shared.ID]*scan.Scan
}

func newMemScans() *memScans { return &memScans{scans: map[shared.ID]*scan.Scan{}} }

func (m *memScans) Create(_ context.Context, s *scan.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[s.ID()] = s
	return nil
}

func (m *memScans) GetByID(_ context.Context, id shared.ID) (*scan.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.scans[id]; ok {
		return s, nil
	}
	return nil, scan.ErrScanNotFound
}

func (m *memScans) Update(_ context.Context, s *scan.Scan) error { return nil }

func (m *memScans) List(_ context.Context, filter scan.Filter, page pagination.Pagination) (pagination.Result[*scan.Scan], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*scan.Scan
	for _, s := range m.scans {
		if !s.OrgID().Equals(filter.OrgID) {
			continue
		}
		if filter.Status != nil && s.Status() != *filter.Status {
			continue
		}
		out = append(out, s)
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (m *memScans) CountSince(_ context.Context, orgID shared.ID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.scans {
		if s.OrgID().Equals(orgID) && !s.QueuedAt().Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memScans) DeleteOlderThan(context.Context, shared.ID, time.Time, int) (int, error) {
	return 0, nil
}

func (m *memScans) byStatus(status scan.Status) []*scan.Scan {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*scan.Scan
	for _, s := range m.scans {
		if s.Status() == status {
			out = append(out, s)
		}
	}
	return out
}

type memSchedules struct {
	mu        sync.Mutex
	schedules map[shared.ID]*schedule.Schedule
}

func newMemSchedules() *memSchedules {
	return &memSchedules{schedules: map[shared.ID]*schedule.Schedule{}}
}

func (m *memSchedules) Create(_ context.Context, s *schedule.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[s.ID()] = s
	return nil
}

func (m *memSchedules) GetByID(_ context.Context, id shared.ID) (*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedules[id]; ok {
		return s, nil
	}
	return nil, schedule.ErrScheduleNotFound
}

func (m *memSchedules) ListByWorkspace(_ context.Context, workspaceID shared.ID) ([]*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.Schedule
	for _, s := range m.schedules {
		if s.WorkspaceID().Equals(workspaceID) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSchedules) ListDue(_ context.Context, now time.Time, limit int) ([]*schedule.Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*schedule.Schedule
	for _, s := range m.schedules {
		if s.IsDue(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRunAt().Before(*out[j].NextRunAt()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memSchedules) Update(_ context.Context, s *schedule.Schedule) error { return nil }

func (m *memSchedules) Delete(_ context.Context, id shared.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []*audit.AuditLog
}

func (m *memAudit) Create(_ context.Context, l *audit.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, l)
	return nil
}

func (m *memAudit) List(_ context.Context, filter audit.Filter, page pagination.Pagination) (pagination.Result[*audit.AuditLog], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*audit.AuditLog
	for _, e := range m.entries {
		if e.OrgID() != nil && e.OrgID().Equals(filter.OrgID) {
			out = append(out, e)
		}
	}
	return pagination.NewResult(out, int64(len(out)), page), nil
}

func (m *memAudit) DeleteOlderThan(context.Context, shared.ID, time.Time) (int64, error) {
	return 0, nil
}

func (m *memAudit) actions() []audit.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit.Action, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Action())
	}
	return out
}

func (m *memAudit) withResult(result audit.Result) []*audit.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*audit.AuditLog
	for _, e := range m.entries {
		if e.Result() == result {
			out = append(out, e)
		}
	}
	return out
}

// ============================================================================
// Infrastructure fakes
// ============================================================================

type fakeQuota struct {
	mu       sync.Mutex
	used     map[string]int
	released int
	err      error
}

func newFakeQuota() *fakeQuota { return &fakeQuota{used: map[string]int{}} }

func (q *fakeQuota) Reserve(_ context.Context, orgID string, limit int) (redis.Reservation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return redis.Reservation{}, q.err
	}
	if limit != plan.Unlimited && q.used[orgID] >= limit {
		return redis.Reservation{Granted: false, Used: q.used[orgID]}, nil
	}
	q.used[orgID]++
	return redis.Reservation{Granted: true, Used: q.used[orgID]}, nil
}

func (q *fakeQuota) Release(_ context.Context, orgID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.used[orgID]--
	q.released++
	return nil
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	queued []shared.ID
	err    error
}

func (e *fakeEnqueuer) EnqueueScan(_ context.Context, s *scan.Scan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.queued = append(e.queued, s.ID())
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []websocket.Event
}

func (p *fakePublisher) Publish(_ string, event websocket.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Name)
	}
	return out
}

type fakeReportStore struct {
	objects map[string]storage.Object
}

func (f *fakeReportStore) Put(_ context.Context, obj storage.Object) error {
	if f.objects == nil {
		f.objects = map[string]storage.Object{}
	}
	f.objects[obj.Key] = obj
	return nil
}

func (f *fakeReportStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	return "https://reports.example.com/" + key, time.Now().Add(ttl), nil
}

type fakeResolver struct {
	head *scm.Head
	err  error
	reqs []scm.ResolveRequest
}

func (f *fakeResolver) ResolveHead(_ context.Context, req scm.ResolveRequest) (*scm.Head, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.head, nil
}

var errBoom = errors.New("boom")

// ============================================================================
// Fixture
// ============================================================================

// fixture wires every service over in-memory storage.
type fixture struct {
	users      *memUsers
	orgs       *memOrgs
	workspaces *memWorkspaces
	repos      *memRepos
	scans      *memScans
	schedules  *memSchedules
	audits     *memAudit

	quota     *fakeQuota
	enqueuer  *fakeEnqueuer
	publisher *fakePublisher
	reports   *fakeReportStore
	resolver  *fakeResolver

	entitlements  *EntitlementService
	auditSvc      *AuditService
	orgSvc        *OrganizationService
	workspaceSvc  *WorkspaceService
	repositorySvc *RepositoryService
	scanSvc       *ScanService
	scheduleSvc   *ScheduleService
}

func newFixture() *fixture {
	log := logger.NewNop()
	f := &fixture{
		users:      newMemUsers(),
		workspaces: newMemWorkspaces(),
		repos:      newMemRepos(),
		scans:      newMemScans(),
		schedules:  newMemSchedules(),
		audits:     &memAudit{},
		quota:      newFakeQuota(),
		enqueuer:   &fakeEnqueuer{},
		publisher:  &fakePublisher{},
		reports:    &fakeReportStore{},
		resolver:   &fakeResolver{head: &scm.Head{Branch: "main", Commit: "4b825dc642cb6eb9a060e54bf8d69288fbee4904", Refs: 3}},
	}
	f.orgs = newMemOrgs(f.users)

	f.entitlements = NewEntitlementService(f.orgs, f.workspaces, f.scans, nil, nil, log)
	f.auditSvc = NewAuditService(f.audits, f.entitlements, log)
	f.entitlements.SetAuditService(f.auditSvc)

	f.orgSvc = NewOrganizationService(f.orgs, f.users, f.workspaces, f.entitlements, f.auditSvc, log)
	f.workspaceSvc = NewWorkspaceService(f.workspaces, f.orgs, f.entitlements, f.auditSvc, log)
	f.repositorySvc = NewRepositoryService(f.repos, f.workspaceSvc, crypto.NoOpEncryptor{}, f.resolver, nil,
		f.entitlements, f.auditSvc, log)
	f.scanSvc = NewScanService(f.scans, f.repositorySvc, f.quota, f.enqueuer, f.entitlements, f.auditSvc, log)
	f.scanSvc.SetEventPublisher(f.publisher)
	f.scanSvc.SetReportStore(f.reports, time.Minute)
	f.scheduleSvc = NewScheduleService(f.schedules, f.repositorySvc, f.workspaceSvc, f.scanSvc, f.entitlements, f.auditSvc, log)
	return f
}

// newOrg creates an organization on p with an owner and returns the owner.
func (f *fixture) newOrg(p plan.Plan) (*organization.Organization, Actor) {
	ctx := context.Background()
	owner := f.newUser()
	org, err := organization.NewOrganization("Acme "+owner.ID().String()[:8], "acme-"+owner.ID().String()[:8], owner.ID())
	mustNoErr(err)
	_, err = org.ChangePlan(p)
	mustNoErr(err)
	mustNoErr(f.orgs.Create(ctx, org))
	ms, err := organization.NewMembership(org.ID(), owner.ID(), organization.RoleOwner)
	mustNoErr(err)
	mustNoErr(f.orgs.AddMember(ctx, ms))
	return org, Actor{UserID: owner.ID(), OrgID: org.ID(), Role: organization.RoleOwner, Email: owner.Email()}
}

// addMember adds a new user to the actor's organization with role.
func (f *fixture) addMember(org Actor, role organization.Role) Actor {
	u := f.newUser()
	ms, err := organization.NewMembership(org.OrgID, u.ID(), role)
	mustNoErr(err)
	mustNoErr(f.orgs.AddMember(context.Background(), ms))
	return Actor{UserID: u.ID(), OrgID: org.OrgID, Role: role, Email: u.Email()}
}

func (f *fixture) newUser() *user.User {
	id := shared.NewID().String()[:8]
	u, err := user.NewUser("user-"+id+"@example.com", "User "+id)
	mustNoErr(err)
	mustNoErr(f.users.Create(context.Background(), u))
	return u
}

// seedRepo creates a workspace and a connected repository directly in storage.
func (f *fixture) seedRepo(actor Actor) (*workspace.Workspace, *sourcerepo.Repository) {
	ctx := context.Background()
	ws, err := workspace.NewWorkspace(actor.OrgID, "ws-"+shared.NewID().String()[:8], "", actor.UserID)
	mustNoErr(err)
	mustNoErr(f.workspaces.Create(ctx, ws))
	repo, err := sourcerepo.NewRepository(actor.OrgID, ws.ID(), "", "", "https://github.com/acme/api.git", "main", actor.UserID)
	mustNoErr(err)
	mustNoErr(f.repos.Create(ctx, repo))
	return ws, repo
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
