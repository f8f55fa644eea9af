package policy

import (
	"time"

	"go.uber.org/zap"
)

const trialDateLayout = "2006-01-02"

// TrialStore persists per-user trial usage dates.
type TrialStore interface {
	LastTrialDate(userID string) (string, error)
	SetTrialDate(userID, date string) error
}

// TrialRateLimiter grants at most one trial account per user per calendar
// day. Eligibility is a string comparison on the local YYYY-MM-DD date, so it
// is insensitive to time-of-day and clock skew within the day.
type TrialRateLimiter struct {
	store  TrialStore
	now    func() time.Time
	logger *zap.Logger
}

func NewTrialRateLimiter(store TrialStore, logger *zap.Logger) *TrialRateLimiter {
	return &TrialRateLimiter{store: store, now: time.Now, logger: logger}
}

// WithClock overrides the clock (used by tests).
func (l *TrialRateLimiter) WithClock(now func() time.Time) *TrialRateLimiter {
	l.now = now
	return l
}

// HasUsedTrialToday reports whether the user already took a trial today.
// A missing record or a read failure counts as "not used".
func (l *TrialRateLimiter) HasUsedTrialToday(userID string) bool {
	date, err := l.store.LastTrialDate(userID)
	if err != nil {
		l.logger.Warn("trial date lookup failed, treating as unused",
			zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return date != "" && date == l.today()
}

// RecordTrialUsed overwrites the user's trial date with today.
func (l *TrialRateLimiter) RecordTrialUsed(userID string) error {
	return l.store.SetTrialDate(userID, l.today())
}

func (l *TrialRateLimiter) today() string {
	return l.now().Format(trialDateLayout)
}
