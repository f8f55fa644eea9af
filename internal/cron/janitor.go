package cron

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"tunnelbot/internal/config"
	"tunnelbot/internal/repository"
)

// Janitor keeps the account ledger consistent with reality: it purges rows
// whose expiry is past the grace window and back-fills server linkage on
// legacy domain-only rows. Both sweeps are idempotent and run out-of-band
// from provisioning traffic. Each sweep is single-flight: a tick that fires
// while the previous run is still active is skipped.
type Janitor struct {
	accounts *repository.AccountRepository
	servers  *repository.ServerRepository
	cfg      *config.Store
	logger   *zap.Logger

	purgeActive    atomic.Bool
	backfillActive atomic.Bool
}

func NewJanitor(
	accounts *repository.AccountRepository,
	servers *repository.ServerRepository,
	cfg *config.Store,
	logger *zap.Logger,
) *Janitor {
	return &Janitor{accounts: accounts, servers: servers, cfg: cfg, logger: logger}
}

// RunPurge is the scheduler entry point for the expiry purge.
func (j *Janitor) RunPurge() {
	if !j.purgeActive.CompareAndSwap(false, true) {
		j.logger.Debug("expiry purge still running, skipping tick")
		return
	}
	defer j.purgeActive.Store(false)
	defer j.recoverFromPanic("purge")

	removed, err := j.PurgeExpired()
	if err != nil {
		j.logger.Error("expiry purge failed", zap.Error(err))
		return
	}
	if removed > 0 {
		j.logger.Info("expiry purge removed records", zap.Int64("removed", removed))
	}
}

// PurgeExpired deletes every ledger row whose expiry is older than the
// configured grace window. Rows without a tracked expiry are never touched.
func (j *Janitor) PurgeExpired() (int64, error) {
	grace := j.cfg.Snapshot().Janitor.Grace
	cutoff := time.Now().Add(-grace).UnixMilli()
	return j.accounts.DeleteExpired(cutoff)
}

// BackfillStats summarizes one back-fill sweep.
type BackfillStats struct {
	Candidates int `json:"candidates"`
	Updated    int `json:"updated"`
	Failed     int `json:"failed"`
}

// RunBackfill is the scheduler entry point for the domain back-fill.
func (j *Janitor) RunBackfill() {
	if !j.backfillActive.CompareAndSwap(false, true) {
		j.logger.Debug("domain back-fill still running, skipping tick")
		return
	}
	defer j.backfillActive.Store(false)
	defer j.recoverFromPanic("backfill")

	stats, err := j.BackfillServerLinks()
	if err != nil {
		j.logger.Error("domain back-fill failed", zap.Error(err))
		return
	}
	j.logger.Info("domain back-fill completed",
		zap.Int("candidates", stats.Candidates),
		zap.Int("updated", stats.Updated),
		zap.Int("failed", stats.Failed))
}

// BackfillServerLinks links legacy domain-only rows to their server by
// normalized domain. A row whose domain matches no server is left untouched;
// a row whose lookup or update fails is logged and counted, never fatal to
// the sweep. Rows that already carry a server id are not candidates, so the
// migration never downgrades existing linkage.
func (j *Janitor) BackfillServerLinks() (BackfillStats, error) {
	var stats BackfillStats

	rows, err := j.accounts.FindLegacyDomainOnly()
	if err != nil {
		return stats, err
	}
	stats.Candidates = len(rows)

	for i := range rows {
		row := &rows[i]
		srv, err := j.servers.FindByDomain(row.Domain)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			stats.Failed++
			j.logger.Warn("back-fill server lookup failed",
				zap.Uint("account_id", row.ID), zap.String("domain", row.Domain), zap.Error(err))
			continue
		}

		name := row.ServerName
		if name == "" {
			name = srv.DisplayName()
		}
		if err := j.accounts.SetServerLink(row.ID, srv.ID, name); err != nil {
			stats.Failed++
			j.logger.Warn("back-fill update failed",
				zap.Uint("account_id", row.ID), zap.Uint("server_id", srv.ID), zap.Error(err))
			continue
		}
		stats.Updated++
	}
	return stats, nil
}

func (j *Janitor) recoverFromPanic(sweep string) {
	if r := recover(); r != nil {
		j.logger.Error("janitor sweep panicked", zap.String("sweep", sweep), zap.Any("panic", r))
	}
}
