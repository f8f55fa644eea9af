// Package policy holds the access rules gating provisioning: which servers a
// user may provision on, and daily trial eligibility.
//
// The two checks fail in opposite directions on internal errors, and that
// asymmetry is deliberate: a restricted server must never open up because a
// membership lookup failed (fail-closed), while a first-time trial user must
// never be blocked because the trial store hiccuped (fail-open).
package policy

import (
	"errors"

	"go.uber.org/zap"

	"tunnelbot/internal/models"
	"tunnelbot/internal/repository"
)

// DenyReason explains a negative access decision.
type DenyReason string

const (
	DenyNotFound     DenyReason = "not_found"
	DenyResellerOnly DenyReason = "reseller_only"
)

// Decision is the outcome of an access check. A deny is a result, not an
// error.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func allow() Decision            { return Decision{Allowed: true} }
func deny(r DenyReason) Decision { return Decision{Reason: r} }

// ServerSource resolves servers for access decisions.
type ServerSource interface {
	FindByID(id uint) (*models.Server, error)
}

// ResellerSource reports reseller membership for a user. A returned error
// means membership is unknown, never that the user is or is not a reseller.
type ResellerSource interface {
	IsUserReseller(userID string) (bool, error)
}

// AccessPolicy decides whether a user may provision on a server.
type AccessPolicy struct {
	servers   ServerSource
	resellers ResellerSource
	logger    *zap.Logger
}

func NewAccessPolicy(servers ServerSource, resellers ResellerSource, logger *zap.Logger) *AccessPolicy {
	return &AccessPolicy{servers: servers, resellers: resellers, logger: logger}
}

// CheckServerAccess resolves the server and applies the reseller gate. Any
// lookup failure along the way degrades to a deny.
func (p *AccessPolicy) CheckServerAccess(serverID uint, userID string) Decision {
	srv, err := p.servers.FindByID(serverID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			p.logger.Warn("server lookup failed, denying access",
				zap.Uint("server_id", serverID), zap.Error(err))
		}
		return deny(DenyNotFound)
	}

	if !srv.ResellerOnly {
		return allow()
	}

	isReseller, err := p.resellers.IsUserReseller(userID)
	if err != nil {
		p.logger.Warn("reseller membership check failed, denying access",
			zap.String("user_id", userID), zap.Uint("server_id", serverID), zap.Error(err))
		return deny(DenyResellerOnly)
	}
	if !isReseller {
		return deny(DenyResellerOnly)
	}
	return allow()
}
