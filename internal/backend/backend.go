// Package backend talks to the remote panel daemons that actually hold the
// accounts. The ledger treats any non-success reply as terminal for that
// call; retry policy, if any, belongs to the caller.
package backend

import (
	"context"
	"fmt"

	"tunnelbot/internal/models"
)

// Result is what a panel reports back for a successful create or renew.
type Result struct {
	Username  string   `json:"username"`
	ExpiresAt int64    `json:"expires_at"`
	Links     []string `json:"links"`
}

// CreateParams are the inputs for provisioning a new account.
type CreateParams struct {
	Protocol  models.Protocol `json:"protocol"`
	Username  string          `json:"username"`
	Password  string          `json:"password,omitempty"`
	ExpiresAt int64           `json:"expires_at"`
}

// RenewParams are the inputs for extending an existing account.
type RenewParams struct {
	Protocol  models.Protocol `json:"protocol"`
	Username  string          `json:"username"`
	ExpiresAt int64           `json:"expires_at"`
}

// ProvisionBackend creates, renews and deletes accounts on a remote panel
// server.
type ProvisionBackend interface {
	Create(ctx context.Context, srv *models.Server, p CreateParams) (*Result, error)
	Renew(ctx context.Context, srv *models.Server, p RenewParams) (*Result, error)
	Delete(ctx context.Context, srv *models.Server, protocol models.Protocol, username string) error
}

// Error marks a non-success reply from a panel.
type Error struct {
	Op      string
	Server  string
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("panel %s on %s failed", e.Op, e.Server)
	}
	return fmt.Sprintf("panel %s on %s failed: %s", e.Op, e.Server, e.Message)
}
