package policy

import (
	"tunnelbot/internal/config"
	"tunnelbot/internal/repository"
)

// MembershipChecker implements ResellerSource on top of the reseller and
// account repositories: a reseller is a registered user who meets the
// configured minimum account count and top-up total. Terms are read from the
// config snapshot on every check so a reload takes effect immediately.
type MembershipChecker struct {
	resellers *repository.ResellerRepository
	accounts  *repository.AccountRepository
	terms     func() config.ResellerTerms
}

func NewMembershipChecker(
	resellers *repository.ResellerRepository,
	accounts *repository.AccountRepository,
	terms func() config.ResellerTerms,
) *MembershipChecker {
	return &MembershipChecker{resellers: resellers, accounts: accounts, terms: terms}
}

// IsUserReseller reports membership. Errors propagate to the caller, which
// treats membership as unknown.
func (m *MembershipChecker) IsUserReseller(userID string) (bool, error) {
	registered, err := m.resellers.IsRegistered(userID)
	if err != nil {
		return false, err
	}
	if !registered {
		return false, nil
	}

	terms := m.terms()
	if terms.MinAccounts > 0 {
		count, err := m.accounts.CountByUser(userID)
		if err != nil {
			return false, err
		}
		if count < int64(terms.MinAccounts) {
			return false, nil
		}
	}
	if terms.MinTopupAmount > 0 {
		total, err := m.resellers.TopUpTotal(userID)
		if err != nil {
			return false, err
		}
		if total < terms.MinTopupAmount {
			return false, nil
		}
	}
	return true, nil
}
