package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrNotFound is returned by every repository when a lookup matches no
// record, regardless of backing store.
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when an insert loses to a uniqueness constraint,
// such as the one pending claim allowed per (deal, user).
var ErrDuplicate = errors.New("record already exists")

// DealRepository defines the interface for deal data operations
type DealRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Deal, error)
	FindByVendorID(ctx context.Context, vendorID primitive.ObjectID) ([]*models.Deal, error)
	Create(ctx context.Context, deal *models.Deal) error
	Update(ctx context.Context, deal *models.Deal) error
	// SetPin replaces the deal's stored PIN material.
	SetPin(ctx context.Context, id primitive.ObjectID, hash, salt string, createdAt time.Time, expiresAt *time.Time) error
	// IncrementRedemptions bumps currentRedemptions as a single conditional
	// update guarded by the redemption cap. Returns false when the cap is
	// already reached; concurrent callers near the cap cannot all succeed.
	IncrementRedemptions(ctx context.Context, id primitive.ObjectID) (bool, error)
	// DecrementRedemptions compensates an increment whose verification lost
	// a subsequent compare-and-set. Never drops below zero.
	DecrementRedemptions(ctx context.Context, id primitive.ObjectID) error
}

// ClaimRepository defines the interface for claim data operations
type ClaimRepository interface {
	Create(ctx context.Context, claim *models.Claim) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Claim, error)
	FindByClaimCode(ctx context.Context, code string) (*models.Claim, error)
	// FindPendingByDealAndUser returns the outstanding Claimed-status claim
	// for the pair, if any. At most one such claim exists at a time.
	FindPendingByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error)
	// FindLatestUnverifiedByDeal resolves direct-PIN redemptions to the most
	// recent claim still awaiting vendor verification.
	FindLatestUnverifiedByDeal(ctx context.Context, dealID primitive.ObjectID) (*models.Claim, error)
	// FindVerifiableByDealAndUser returns the claim a bill amount can be
	// applied to: PIN-verified, or already Used for corrections.
	FindVerifiableByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error)
	FindPendingByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Claim, error)
	Update(ctx context.Context, claim *models.Claim) error
	// MarkVendorVerified flips vendorVerified and moves the claim to
	// PinVerified with a compare-and-set on the flag; the losing concurrent
	// caller gets ErrNotFound back.
	MarkVendorVerified(ctx context.Context, id primitive.ObjectID, method models.VerificationMethod, at time.Time) error
	// SettleBill finalizes the bill in one guarded update and returns the
	// claim as it was before, so the caller can compute the savings delta
	// for idempotent ledger application.
	SettleBill(ctx context.Context, id primitive.ObjectID, billAmount, actualSavings float64, usedAt time.Time) (*models.Claim, error)
}

// PinAttemptRepository defines the interface for the attempt audit log
type PinAttemptRepository interface {
	Create(ctx context.Context, attempt *models.PinAttempt) error
	FindRecentByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID, since time.Time) ([]models.PinAttempt, error)
	FindRecentByDealAndIP(ctx context.Context, dealID primitive.ObjectID, ip string, since time.Time) ([]models.PinAttempt, error)
	FindByDeal(ctx context.Context, dealID primitive.ObjectID, page, limit int) ([]models.PinAttempt, error)
}

// UserRepository defines the interface for customer data operations
type UserRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	// FindByApproxName does a coarse case-insensitive match; ranking is the
	// caller's concern.
	FindByApproxName(ctx context.Context, fragment string, limit int) ([]*models.User, error)
	// IncrementTotalSavings applies a signed delta to the running total.
	IncrementTotalSavings(ctx context.Context, id primitive.ObjectID, delta float64) error
}

// VendorRepository defines the interface for vendor data operations
type VendorRepository interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Vendor, error)
	// IncrementStats applies signed deltas to the vendor's aggregate
	// redemption counters.
	IncrementStats(ctx context.Context, id primitive.ObjectID, redemptions int, revenueDelta, savingsDelta float64) error
}
