package provision

import (
	"errors"
	"fmt"

	"tunnelbot/internal/policy"
)

var (
	// ErrInvalidUsername rejects a malformed username before any remote call.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidProtocol rejects an unknown protocol before any remote call.
	ErrInvalidProtocol = errors.New("invalid protocol")
	// ErrTrialUsed means the user already took a trial today.
	ErrTrialUsed = errors.New("trial already used today")
	// ErrTrialDisabled means trial provisioning is switched off.
	ErrTrialDisabled = errors.New("trial provisioning is disabled")
)

// PolicyDeniedError carries the deny reason of a failed access check. It is a
// negative result surfaced as an error for the caller's convenience.
type PolicyDeniedError struct {
	Reason policy.DenyReason
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}
