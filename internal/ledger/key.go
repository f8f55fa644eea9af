// Package ledger defines the identity key that ties a logical account to its
// row in the local account ledger. Upsert, expiry lookup and the domain
// back-fill migration all match rows through the one predicate defined here.
package ledger

import (
	"strings"

	"tunnelbot/internal/models"
)

// AccountKey identifies a logical account across provision, renew and delete
// calls: owner, protocol, username and the server it lives on. ServerID is 0
// when the caller only knows the server's domain (legacy records).
type AccountKey struct {
	UserID   string
	Protocol models.Protocol
	Username string
	ServerID uint
	Domain   string
}

// KeyFor builds the identity key for an account row.
func KeyFor(a *models.Account) AccountKey {
	return AccountKey{
		UserID:   a.UserID,
		Protocol: a.Protocol,
		Username: a.Username,
		ServerID: a.ServerID,
		Domain:   a.Domain,
	}
}

// NormalizeDomain trims and lowercases a domain for comparison.
func NormalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimSpace(domain))
}

// Matches reports whether row is the ledger row for this identity. Rows match
// on the owner triple plus either the same server id or, for rows that
// predate server linkage, a normalized-domain equality.
func (k AccountKey) Matches(row *models.Account) bool {
	if row.UserID != k.UserID || row.Protocol != k.Protocol || row.Username != k.Username {
		return false
	}
	if k.ServerID != 0 && row.ServerID == k.ServerID {
		return true
	}
	if row.ServerID != 0 && k.ServerID != 0 {
		// Both sides resolved to servers and they differ.
		return false
	}
	domain := NormalizeDomain(k.Domain)
	return domain != "" && NormalizeDomain(row.Domain) == domain
}
