// Package ratelimit enforces the sliding-window verification attempt
// policy over the append-only PinAttempt log.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/apperrors"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
)

// Policy is the injectable attempt budget: at most MaxFailures failed
// attempts inside Window before further attempts are rejected.
type Policy struct {
	MaxFailures int
	Window      time.Duration
}

// DefaultPolicy mirrors the platform default of 5 failures per 15 minutes.
func DefaultPolicy() Policy {
	return Policy{MaxFailures: 5, Window: 15 * time.Minute}
}

// Decision is the outcome of a rate-limit check. NextAttemptAt is set only
// when the attempt is denied: the instant the oldest failure ages out.
type Decision struct {
	Allowed       bool
	Message       string
	NextAttemptAt *time.Time
}

// Evaluate applies the policy to an attempt history. Successes never count
// against the budget.
func Evaluate(policy Policy, attempts []models.PinAttempt, now time.Time) Decision {
	cutoff := now.Add(-policy.Window)

	var failures int
	var oldestFailure time.Time
	for _, attempt := range attempts {
		if attempt.Success || attempt.AttemptedAt.Before(cutoff) {
			continue
		}
		failures++
		if oldestFailure.IsZero() || attempt.AttemptedAt.Before(oldestFailure) {
			oldestFailure = attempt.AttemptedAt
		}
	}

	if failures < policy.MaxFailures {
		return Decision{Allowed: true}
	}

	next := oldestFailure.Add(policy.Window)
	return Decision{
		Allowed:       false,
		Message:       fmt.Sprintf("too many failed attempts, retry after %s", next.UTC().Format(time.RFC3339)),
		NextAttemptAt: &next,
	}
}

// Limiter couples the policy with the attempt log. The check always runs
// before a new code presentation is acted on; the record is written
// regardless of check outcome, verification outcome, and format failures,
// so malformed input cannot bypass the audit trail.
type Limiter struct {
	attemptRepo repositories.PinAttemptRepository
	policy      Policy
	clock       clock.Clock
}

// NewLimiter creates a Limiter with the given policy.
func NewLimiter(attemptRepo repositories.PinAttemptRepository, policy Policy, clk clock.Clock) *Limiter {
	if policy.MaxFailures <= 0 {
		policy = DefaultPolicy()
	}
	return &Limiter{attemptRepo: attemptRepo, policy: policy, clock: clk}
}

// Check evaluates the budget for (deal, user), falling back to (deal, IP)
// when no user is known (manual and vendor-side flows).
func (l *Limiter) Check(ctx context.Context, dealID primitive.ObjectID, userID *primitive.ObjectID, ip string) error {
	now := l.clock.Now()
	since := now.Add(-l.policy.Window)

	var attempts []models.PinAttempt
	var err error
	if userID != nil {
		attempts, err = l.attemptRepo.FindRecentByDealAndUser(ctx, dealID, *userID, since)
	} else {
		attempts, err = l.attemptRepo.FindRecentByDealAndIP(ctx, dealID, ip, since)
	}
	if err != nil {
		return apperrors.Internal("failed to load attempt history", err)
	}

	decision := Evaluate(l.policy, attempts, now)
	if !decision.Allowed {
		return apperrors.RateLimited(decision.Message, *decision.NextAttemptAt)
	}
	return nil
}

// Record appends one attempt to the log. Append-only: entries are never
// mutated afterwards.
func (l *Limiter) Record(ctx context.Context, dealID primitive.ObjectID, userID *primitive.ObjectID, ip, userAgent string, success bool) error {
	attempt := &models.PinAttempt{
		DealID:      dealID,
		UserID:      userID,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Success:     success,
		AttemptedAt: l.clock.Now(),
	}
	if err := l.attemptRepo.Create(ctx, attempt); err != nil {
		return apperrors.Internal("failed to record attempt", err)
	}
	return nil
}
