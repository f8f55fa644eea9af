package provision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tunnelbot/internal/backend"
	"tunnelbot/internal/config"
	"tunnelbot/internal/models"
	"tunnelbot/internal/policy"
	"tunnelbot/internal/repository"
)

// fakeBackend confirms every call unless told to fail or hang.
type fakeBackend struct {
	calls     int
	failWith  error
	blockCtx  bool
	lastLinks []string
}

func (f *fakeBackend) do(ctx context.Context, username string) (*backend.Result, error) {
	f.calls++
	if f.blockCtx {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &backend.Result{Username: username, Links: f.lastLinks}, nil
}

func (f *fakeBackend) Create(ctx context.Context, _ *models.Server, p backend.CreateParams) (*backend.Result, error) {
	return f.do(ctx, p.Username)
}

func (f *fakeBackend) Renew(ctx context.Context, _ *models.Server, p backend.RenewParams) (*backend.Result, error) {
	return f.do(ctx, p.Username)
}

func (f *fakeBackend) Delete(ctx context.Context, _ *models.Server, _ models.Protocol, username string) error {
	_, err := f.do(ctx, username)
	return err
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	accounts *repository.AccountRepository
	backend  *fakeBackend
	clock    *time.Time
	server   *models.Server
	vip      *models.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Account{}, &models.Server{}, &models.TrialAccess{},
		&models.Reseller{}, &models.TopUp{}, &models.Setting{},
	))

	servers := repository.NewServerRepository(db)
	accounts := repository.NewAccountRepository(db)
	trials := repository.NewTrialRepository(db)
	resellers := repository.NewResellerRepository(db)
	settings := repository.NewSettingRepository(db)

	srv := &models.Server{Domain: "sg1.example.com", Name: "Singapore 1"}
	require.NoError(t, servers.Create(srv))
	vip := &models.Server{Domain: "vip.example.com", Name: "VIP", ResellerOnly: true}
	require.NoError(t, servers.Create(vip))

	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.Local)

	cfg := config.NewStoreWith(&config.Config{
		Backend:  config.BackendConfig{Timeout: 2 * time.Second},
		Trial:    config.TrialConfig{Enabled: true, ServerID: srv.ID, Hours: 24},
		Reseller: config.ResellerTerms{},
	})

	membership := policy.NewMembershipChecker(resellers, accounts, func() config.ResellerTerms {
		return cfg.Snapshot().Reseller
	})
	access := policy.NewAccessPolicy(servers, membership, zap.NewNop())

	f := &fixture{db: db, accounts: accounts, backend: &fakeBackend{}, clock: &now, server: srv, vip: vip}

	limiter := policy.NewTrialRateLimiter(trials, zap.NewNop()).WithClock(func() time.Time { return *f.clock })
	f.svc = NewService(servers, accounts, settings, access, limiter, f.backend, cfg, zap.NewNop()).
		WithClock(func() time.Time { return *f.clock })

	require.NoError(t, db.Create(&models.Setting{TrialEnabled: true, TrialServerID: srv.ID}).Error)

	return f
}

func (f *fixture) countAccounts(t *testing.T) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.Account{}).Count(&count).Error)
	return count
}

func (f *fixture) request(username string, days int) Request {
	return Request{
		UserID:   "1001",
		ServerID: f.server.ID,
		Protocol: models.ProtocolSSH,
		Username: username,
		Password: "secret",
		Days:     days,
	}
}

func TestProvisionCreatesLedgerRow(t *testing.T) {
	f := newFixture(t)
	f.backend.lastLinks = []string{"ssh://alice@sg1.example.com:22"}

	acc, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	wantExpiry := f.clock.Add(30 * 24 * time.Hour).UnixMilli()
	assert.Equal(t, wantExpiry, acc.ExpiresAt)
	assert.Equal(t, f.server.ID, acc.ServerID)
	assert.Equal(t, "Singapore 1", acc.ServerName)
	assert.Equal(t, []string{"ssh://alice@sg1.example.com:22"}, acc.LinkList())
	assert.EqualValues(t, 1, f.countAccounts(t))
	assert.Equal(t, 1, f.backend.calls)
}

func TestProvisionRejectsInvalidInputBeforeBackend(t *testing.T) {
	f := newFixture(t)

	req := f.request("Not Valid!", 30)
	_, err := f.svc.Provision(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidUsername)

	req = f.request("alice", 30)
	req.Protocol = "pptp"
	_, err = f.svc.Provision(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidProtocol)

	// No remote call, no ledger row.
	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.countAccounts(t))
}

func TestProvisionUnknownServer(t *testing.T) {
	f := newFixture(t)

	req := f.request("alice", 30)
	req.ServerID = 999
	_, err := f.svc.Provision(context.Background(), req)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Zero(t, f.backend.calls)
}

func TestProvisionResellerOnlyServerDenied(t *testing.T) {
	f := newFixture(t)

	req := f.request("alice", 30)
	req.ServerID = f.vip.ID
	_, err := f.svc.Provision(context.Background(), req)

	var denied *PolicyDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, policy.DenyResellerOnly, denied.Reason)
	assert.Zero(t, f.backend.calls)
	assert.Zero(t, f.countAccounts(t))
}

func TestProvisionBackendFailureLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.backend.failWith = &backend.Error{Op: "create", Server: "sg1.example.com", Message: "quota full"}

	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.Error(t, err)

	var backendErr *backend.Error
	assert.ErrorAs(t, err, &backendErr)
	assert.Zero(t, f.countAccounts(t))
}

func TestProvisionTimeoutLeavesLedgerUntouched(t *testing.T) {
	f := newFixture(t)
	f.backend.blockCtx = true

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.svc.Provision(ctx, f.request("alice", 30))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.countAccounts(t))
}

func TestReprovisionUpdatesInPlace(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	// A later provision for the same identity must update, not duplicate.
	*f.clock = f.clock.Add(time.Hour)
	second, err := f.svc.Provision(context.Background(), f.request("alice", 60))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.EqualValues(t, 1, f.countAccounts(t))
}

func TestRenewExtendsFromExistingExpiry(t *testing.T) {
	f := newFixture(t)

	start := *f.clock
	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	// Ten days later the user renews for another 30. The new expiry must be
	// start+60d, not now+30d: remaining paid time is never truncated.
	*f.clock = start.Add(10 * 24 * time.Hour)
	acc, err := f.svc.Renew(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	assert.Equal(t, start.Add(60*24*time.Hour).UnixMilli(), acc.ExpiresAt)
	assert.EqualValues(t, 1, f.countAccounts(t))
}

func TestRenewAfterExpiryExtendsFromNow(t *testing.T) {
	f := newFixture(t)

	start := *f.clock
	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	// Long past expiry: the renewal counts from now.
	*f.clock = start.Add(100 * 24 * time.Hour)
	acc, err := f.svc.Renew(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	assert.Equal(t, f.clock.Add(30*24*time.Hour).UnixMilli(), acc.ExpiresAt)
}

// The full lifecycle: provision for 30 days, optionally renew, then run the
// janitor's cutoff against the ledger.
func TestExpiryPurgeSparesRenewedAccount(t *testing.T) {
	f := newFixture(t)

	start := *f.clock
	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	cutoff := start.Add(33 * 24 * time.Hour).UnixMilli()

	t.Run("without renewal the record is purged", func(t *testing.T) {
		removed, err := f.accounts.DeleteExpired(cutoff)
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)
	})

	t.Run("a renewed record survives the same cutoff", func(t *testing.T) {
		_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
		require.NoError(t, err)
		*f.clock = start.Add(20 * 24 * time.Hour)
		_, err = f.svc.Renew(context.Background(), f.request("alice", 30))
		require.NoError(t, err)

		removed, err := f.accounts.DeleteExpired(cutoff)
		require.NoError(t, err)
		assert.Zero(t, removed)
		assert.EqualValues(t, 1, f.countAccounts(t))
	})
}

func TestDeleteRemovesLedgerRow(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), f.request("alice", 0)))
	assert.Zero(t, f.countAccounts(t))
}

func TestDeleteSkipsLedgerOnBackendFailure(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Provision(context.Background(), f.request("alice", 30))
	require.NoError(t, err)

	f.backend.failWith = errors.New("panel unreachable")
	require.Error(t, f.svc.Delete(context.Background(), f.request("alice", 0)))
	assert.EqualValues(t, 1, f.countAccounts(t))
}

func TestTrialOncePerDay(t *testing.T) {
	f := newFixture(t)

	acc, err := f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	require.NoError(t, err)
	assert.Equal(t, f.server.ID, acc.ServerID)
	assert.True(t, acc.Password.Valid)
	assert.Equal(t, f.clock.Add(24*time.Hour).UnixMilli(), acc.ExpiresAt)

	// Same day: refused before any remote call.
	calls := f.backend.calls
	_, err = f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	assert.ErrorIs(t, err, ErrTrialUsed)
	assert.Equal(t, calls, f.backend.calls)

	// Next day: allowed again.
	*f.clock = f.clock.Add(24 * time.Hour)
	_, err = f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	require.NoError(t, err)
}

func TestTrialDisabledBySettingsRow(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.db.Model(&models.Setting{}).Where("1 = 1").Update("trial_enabled", false).Error)

	_, err := f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	assert.ErrorIs(t, err, ErrTrialDisabled)
	assert.Zero(t, f.backend.calls)
}

func TestTrialFailedGrantDoesNotBurnEligibility(t *testing.T) {
	f := newFixture(t)

	f.backend.failWith = errors.New("panel unreachable")
	_, err := f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	require.Error(t, err)

	// The failed grant must not count as today's trial.
	f.backend.failWith = nil
	_, err = f.svc.Trial(context.Background(), "1001", models.ProtocolSSH)
	require.NoError(t, err)
}
