package repository

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"gorm.io/gorm"

	"tunnelbot/internal/ledger"
	"tunnelbot/internal/models"
)

// AccountRepository is the account ledger: the local record of every account
// provisioned on a remote server. Writes for the same identity are serialized
// through striped locks so two concurrent upserts can never both decide
// "not found" and insert duplicate rows.
type AccountRepository struct {
	db    *gorm.DB
	locks [64]sync.Mutex
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// lockFor stripes on the owner triple. The server reference is deliberately
// excluded: duplicates arise per (user, protocol, username) regardless of
// which server reference the racing callers hold.
func (r *AccountRepository) lockFor(key ledger.AccountKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key.UserID))
	h.Write([]byte{0})
	h.Write([]byte(key.Protocol))
	h.Write([]byte{0})
	h.Write([]byte(key.Username))
	return &r.locks[h.Sum32()%uint32(len(r.locks))]
}

// findMatch loads the candidate rows for the key's owner triple, newest
// first, and applies the identity predicate.
func (r *AccountRepository) findMatch(key ledger.AccountKey) (*models.Account, error) {
	var candidates []models.Account
	err := r.db.
		Where("user_id = ? AND protocol = ? AND username = ?", key.UserID, key.Protocol, key.Username).
		Order("id DESC").
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("ledger match query: %w", err)
	}
	for i := range candidates {
		if key.Matches(&candidates[i]) {
			return &candidates[i], nil
		}
	}
	return nil, nil
}

// Upsert records a successful provision or renewal. An existing row for the
// same identity is updated in place, keeping its id and creation timestamp;
// otherwise a new row is inserted with CreatedAt set to now. A failed match
// query aborts the whole upsert — falling through to an insert on a lookup
// error would risk duplicate rows.
func (r *AccountRepository) Upsert(acc *models.Account) error {
	key := ledger.KeyFor(acc)
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.findMatch(key)
	if err != nil {
		return err
	}

	if existing == nil {
		if acc.CreatedAt == 0 {
			acc.CreatedAt = time.Now().UnixMilli()
		}
		if err := r.db.Create(acc).Error; err != nil {
			return fmt.Errorf("ledger insert: %w", err)
		}
		return nil
	}

	updates := map[string]interface{}{
		"password":    acc.Password,
		"server_id":   acc.ServerID,
		"server_name": acc.ServerName,
		"domain":      acc.Domain,
		"links":       acc.Links,
		"expires_at":  acc.ExpiresAt,
	}
	if err := r.db.Model(&models.Account{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("ledger update: %w", err)
	}
	acc.ID = existing.ID
	acc.CreatedAt = existing.CreatedAt
	return nil
}

// GetExistingExpiry returns the tracked expiry of the most recent matching
// row, or 0 when no row matches or none carries a usable expiry. Renewal
// flows extend from this value instead of from "now" so a renew never
// truncates remaining paid time.
func (r *AccountRepository) GetExistingExpiry(key ledger.AccountKey) (int64, error) {
	var candidates []models.Account
	err := r.db.
		Where("user_id = ? AND protocol = ? AND username = ?", key.UserID, key.Protocol, key.Username).
		Order("id DESC").
		Find(&candidates).Error
	if err != nil {
		return 0, fmt.Errorf("ledger expiry query: %w", err)
	}
	for i := range candidates {
		if key.Matches(&candidates[i]) && candidates[i].ExpiresAt > 0 {
			return candidates[i].ExpiresAt, nil
		}
	}
	return 0, nil
}

// DeleteExpired removes every row with a tracked expiry strictly before
// cutoff (epoch millis). Rows without an expiry are never touched. The cutoff
// is computed by the caller — the grace window is policy, not storage.
func (r *AccountRepository) DeleteExpired(cutoff int64) (int64, error) {
	res := r.db.Where("expires_at > 0 AND expires_at < ?", cutoff).Delete(&models.Account{})
	if res.Error != nil {
		return 0, fmt.Errorf("ledger expired delete: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteMatch removes the row for an identity, if any. Returns whether a row
// was removed.
func (r *AccountRepository) DeleteMatch(key ledger.AccountKey) (bool, error) {
	mu := r.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	existing, err := r.findMatch(key)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	if err := r.db.Where("id = ?", existing.ID).Delete(&models.Account{}).Error; err != nil {
		return false, fmt.Errorf("ledger delete: %w", err)
	}
	return true, nil
}

// FindLegacyDomainOnly returns rows that predate server linkage: no server id
// but a non-empty domain. These are the back-fill migration candidates.
func (r *AccountRepository) FindLegacyDomainOnly() ([]models.Account, error) {
	var rows []models.Account
	err := r.db.
		Where("(server_id IS NULL OR server_id = 0) AND domain <> ''").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ledger legacy query: %w", err)
	}
	return rows, nil
}

// SetServerLink fills in the server linkage for a legacy row.
func (r *AccountRepository) SetServerLink(id uint, serverID uint, serverName string) error {
	err := r.db.Model(&models.Account{}).Where("id = ?", id).Updates(map[string]interface{}{
		"server_id":   serverID,
		"server_name": serverName,
	}).Error
	if err != nil {
		return fmt.Errorf("ledger server link update: %w", err)
	}
	return nil
}

// FindByUser returns all ledger rows owned by a user, newest first.
func (r *AccountRepository) FindByUser(userID string) ([]models.Account, error) {
	var rows []models.Account
	err := r.db.Where("user_id = ?", userID).Order("id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ledger user query: %w", err)
	}
	return rows, nil
}

// CountByUser counts ledger rows owned by a user.
func (r *AccountRepository) CountByUser(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Account{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
