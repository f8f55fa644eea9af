// Package provision orchestrates a provisioning call end to end: resolve the
// server, pass the access policy, invoke the remote panel, and record the
// confirmed result in the account ledger. Only a confirmed backend success
// ever reaches the ledger — a timed-out or failed panel call leaves it
// untouched.
package provision

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tunnelbot/internal/backend"
	"tunnelbot/internal/config"
	"tunnelbot/internal/ledger"
	"tunnelbot/internal/models"
	"tunnelbot/internal/pkg/utils"
	"tunnelbot/internal/policy"
	"tunnelbot/internal/repository"
)

// Service wires the directory, policy, backend and ledger together.
type Service struct {
	servers  *repository.ServerRepository
	accounts *repository.AccountRepository
	settings *repository.SettingRepository
	access   *policy.AccessPolicy
	trials   *policy.TrialRateLimiter
	backend  backend.ProvisionBackend
	cfg      *config.Store
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(
	servers *repository.ServerRepository,
	accounts *repository.AccountRepository,
	settings *repository.SettingRepository,
	access *policy.AccessPolicy,
	trials *policy.TrialRateLimiter,
	pb backend.ProvisionBackend,
	cfg *config.Store,
	logger *zap.Logger,
) *Service {
	return &Service{
		servers:  servers,
		accounts: accounts,
		settings: settings,
		access:   access,
		trials:   trials,
		backend:  pb,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the clock (used by tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Request describes one provisioning or renewal call.
type Request struct {
	UserID   string          `json:"user_id"`
	ServerID uint            `json:"server_id"`
	Protocol models.Protocol `json:"protocol"`
	Username string          `json:"username"`
	Password string          `json:"password"`
	Days     int             `json:"days"`
}

func (s *Service) validate(req *Request) error {
	if !req.Protocol.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidProtocol, req.Protocol)
	}
	if !utils.ValidUsername(req.Username) {
		return fmt.Errorf("%w: %q", ErrInvalidUsername, req.Username)
	}
	return nil
}

func (s *Service) resolveServer(req *Request) (*models.Server, error) {
	srv, err := s.servers.FindByID(req.ServerID)
	if err != nil {
		return nil, err
	}
	decision := s.access.CheckServerAccess(srv.ID, req.UserID)
	if !decision.Allowed {
		return nil, &PolicyDeniedError{Reason: decision.Reason}
	}
	return srv, nil
}

// backendCtx bounds every remote panel call so a hung panel cannot stall the
// caller or hold the request open past the configured deadline.
func (s *Service) backendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.Snapshot().Backend.Timeout)
}

// Provision creates an account on the requested server and upserts the
// ledger row on confirmed success.
func (s *Service) Provision(ctx context.Context, req Request) (*models.Account, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	srv, err := s.resolveServer(&req)
	if err != nil {
		return nil, err
	}

	expiresAt := int64(0)
	if req.Days > 0 {
		expiresAt = s.now().Add(time.Duration(req.Days) * 24 * time.Hour).UnixMilli()
	}

	bctx, cancel := s.backendCtx(ctx)
	defer cancel()
	result, err := s.backend.Create(bctx, srv, backend.CreateParams{
		Protocol:  req.Protocol,
		Username:  req.Username,
		Password:  req.Password,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return s.record(srv, &req, result, expiresAt)
}

// Renew extends an account. The new expiry is computed from the ledger's
// existing expiry when one is still in the future, so renewing never
// truncates remaining paid time; otherwise it extends from now.
func (s *Service) Renew(ctx context.Context, req Request) (*models.Account, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	srv, err := s.resolveServer(&req)
	if err != nil {
		return nil, err
	}

	key := ledger.AccountKey{
		UserID:   req.UserID,
		Protocol: req.Protocol,
		Username: req.Username,
		ServerID: srv.ID,
		Domain:   srv.Domain,
	}
	base, err := s.accounts.GetExistingExpiry(key)
	if err != nil {
		return nil, err
	}
	nowMillis := s.now().UnixMilli()
	if base < nowMillis {
		base = nowMillis
	}
	expiresAt := base + int64(req.Days)*24*time.Hour.Milliseconds()

	bctx, cancel := s.backendCtx(ctx)
	defer cancel()
	result, err := s.backend.Renew(bctx, srv, backend.RenewParams{
		Protocol:  req.Protocol,
		Username:  req.Username,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	return s.record(srv, &req, result, expiresAt)
}

// Delete removes an account remotely, then drops its ledger row.
func (s *Service) Delete(ctx context.Context, req Request) error {
	if err := s.validate(&req); err != nil {
		return err
	}
	srv, err := s.resolveServer(&req)
	if err != nil {
		return err
	}

	bctx, cancel := s.backendCtx(ctx)
	defer cancel()
	if err := s.backend.Delete(bctx, srv, req.Protocol, req.Username); err != nil {
		return err
	}

	removed, err := s.accounts.DeleteMatch(ledger.AccountKey{
		UserID:   req.UserID,
		Protocol: req.Protocol,
		Username: req.Username,
		ServerID: srv.ID,
		Domain:   srv.Domain,
	})
	if err != nil {
		return err
	}
	s.logger.Info("account deleted",
		zap.String("user_id", req.UserID),
		zap.String("protocol", string(req.Protocol)),
		zap.String("username", req.Username),
		zap.Bool("ledger_row_removed", removed))
	return nil
}

// Trial provisions a generated-credential trial account on the configured
// trial server, gated by the daily trial limiter. Usage is recorded only
// after the grant succeeded.
func (s *Service) Trial(ctx context.Context, userID string, protocol models.Protocol) (*models.Account, error) {
	cfg := s.cfg.Snapshot()
	enabled := cfg.Trial.Enabled
	serverID := cfg.Trial.ServerID
	// The settings row overrides config, so the admin surface can toggle
	// trials without a restart. An unreadable row falls back to config.
	if row, err := s.settings.Get(); err == nil {
		enabled = enabled && row.TrialEnabled
		if row.TrialServerID != 0 {
			serverID = row.TrialServerID
		}
	}
	if !enabled || serverID == 0 {
		return nil, ErrTrialDisabled
	}
	if s.trials.HasUsedTrialToday(userID) {
		return nil, ErrTrialUsed
	}

	srv, err := s.servers.FindByID(serverID)
	if err != nil {
		return nil, err
	}
	if !protocol.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProtocol, protocol)
	}

	username := utils.GenerateUsername("trial")
	password := utils.GenerateUUID()
	expiresAt := s.now().Add(time.Duration(cfg.Trial.Hours) * time.Hour).UnixMilli()

	bctx, cancel := s.backendCtx(ctx)
	defer cancel()
	result, err := s.backend.Create(bctx, srv, backend.CreateParams{
		Protocol:  protocol,
		Username:  username,
		Password:  password,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return nil, err
	}

	acc, err := s.record(srv, &Request{
		UserID:   userID,
		ServerID: srv.ID,
		Protocol: protocol,
		Username: username,
		Password: password,
	}, result, expiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.trials.RecordTrialUsed(userID); err != nil {
		// The grant stands; only the bookkeeping failed.
		s.logger.Warn("failed to record trial usage", zap.String("user_id", userID), zap.Error(err))
	}
	return acc, nil
}

// Accounts lists a user's ledger rows.
func (s *Service) Accounts(userID string) ([]models.Account, error) {
	return s.accounts.FindByUser(userID)
}

func (s *Service) record(srv *models.Server, req *Request, result *backend.Result, expiresAt int64) (*models.Account, error) {
	if result.ExpiresAt > 0 {
		// Trust the panel's reported expiry when it sends one.
		expiresAt = result.ExpiresAt
	}

	acc := &models.Account{
		UserID:     req.UserID,
		Protocol:   req.Protocol,
		Username:   req.Username,
		ServerID:   srv.ID,
		ServerName: srv.DisplayName(),
		Domain:     srv.Domain,
		ExpiresAt:  expiresAt,
	}
	if req.Password != "" {
		acc.Password = sql.NullString{String: req.Password, Valid: true}
	}
	acc.SetLinkList(result.Links)

	if err := s.accounts.Upsert(acc); err != nil {
		return nil, err
	}
	s.logger.Info("ledger upserted",
		zap.String("user_id", req.UserID),
		zap.String("protocol", string(req.Protocol)),
		zap.String("username", req.Username),
		zap.Uint("server_id", srv.ID),
		zap.Int64("expires_at", acc.ExpiresAt))
	return acc, nil
}
