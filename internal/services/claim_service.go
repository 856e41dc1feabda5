package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/apperrors"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/pinsecurity"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/ratelimit"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
)

// Compile-time check to ensure ClaimServiceImpl implements ClaimService
var _ ClaimService = (*ClaimServiceImpl)(nil)

// ClaimServiceImpl is the claim lifecycle manager. Status transitions live
// here and nowhere else; handlers and the dispatcher hand resolved claims
// back to it.
type ClaimServiceImpl struct {
	dealRepo   repositories.DealRepository
	claimRepo  repositories.ClaimRepository
	userRepo   repositories.UserRepository
	vendorRepo repositories.VendorRepository
	limiter    *ratelimit.Limiter
	pins       *pinsecurity.Module
	clock      clock.Clock
	claimTTL   time.Duration
}

// NewClaimService creates a new ClaimServiceImpl. claimTTL bounds how long
// a claim code stays redeemable; it is always clipped to the deal's
// validUntil.
func NewClaimService(
	dealRepo repositories.DealRepository,
	claimRepo repositories.ClaimRepository,
	userRepo repositories.UserRepository,
	vendorRepo repositories.VendorRepository,
	limiter *ratelimit.Limiter,
	pins *pinsecurity.Module,
	clk clock.Clock,
	claimTTL time.Duration,
) *ClaimServiceImpl {
	if claimTTL <= 0 {
		claimTTL = 24 * time.Hour
	}
	return &ClaimServiceImpl{
		dealRepo:   dealRepo,
		claimRepo:  claimRepo,
		userRepo:   userRepo,
		vendorRepo: vendorRepo,
		limiter:    limiter,
		pins:       pins,
		clock:      clk,
		claimTTL:   claimTTL,
	}
}

// ClaimDeal creates a claim in Claimed state, or returns the outstanding
// pending claim for the same (deal, user) pair instead of duplicating it.
func (s *ClaimServiceImpl) ClaimDeal(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error) {
	deal, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("user not found")
		}
		return nil, apperrors.Internal("failed to load user", err)
	}

	now := s.clock.Now()
	if err := s.checkDealRedeemable(deal, now); err != nil {
		return nil, err
	}
	if deal.CapReached() {
		return nil, apperrors.Conflict("deal redemption limit reached")
	}
	if user.MembershipTier.Rank() < deal.RequiredTier.Rank() {
		return nil, apperrors.Authorization(fmt.Sprintf("deal requires %s membership", deal.RequiredTier))
	}

	return s.findOrCreateClaim(ctx, deal, userID, now)
}

// VerifyPin verifies a customer-presented code against the deal's rotating,
// hashed, or legacy PIN. The rate limiter is consulted before the code is
// acted on; the attempt is logged regardless of outcome, including format
// rejections.
func (s *ClaimServiceImpl) VerifyPin(ctx context.Context, dealID, userID primitive.ObjectID, code, ip, userAgent string) (*VerifyPinResult, error) {
	deal, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Check(ctx, dealID, &userID, ip); err != nil {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, err
	}

	if ok, msg := s.pins.ValidatePinFormat(code); !ok {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, apperrors.Validation(msg)
	}

	now := s.clock.Now()
	if err := s.checkDealRedeemable(deal, now); err != nil {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, err
	}

	method, err := s.matchPin(deal, code)
	if err != nil {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, err
	}

	// Cap is consumed here, not at claim time, so many simultaneous claims
	// cannot oversubscribe a small redemption cap.
	allowed, err := s.dealRepo.IncrementRedemptions(ctx, dealID)
	if err != nil {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, apperrors.Internal("failed to update redemption counter", err)
	}
	if !allowed {
		s.recordAttempt(ctx, dealID, &userID, ip, userAgent, false)
		return nil, apperrors.Conflict("deal redemption limit reached")
	}

	s.recordAttempt(ctx, dealID, &userID, ip, userAgent, true)

	claim, err := s.findOrCreateClaim(ctx, deal, userID, now)
	if err != nil {
		s.releaseRedemption(ctx, dealID)
		return nil, err
	}

	claim.Status = models.ClaimStatusPinVerified
	claim.VerificationMethod = method
	verifiedAt := now
	claim.VerifiedAt = &verifiedAt
	if deal.HasFixedPricing() {
		// Fixed-price deals finalize savings immediately; percentage deals
		// stay at zero pending a bill amount.
		claim.SavingsAmount = FixedPriceSavings(*deal.OriginalPrice, *deal.DiscountedPrice)
	}
	if err := s.claimRepo.Update(ctx, claim); err != nil {
		s.releaseRedemption(ctx, dealID)
		return nil, apperrors.Internal("failed to update claim", err)
	}

	slog.Info("pin verified",
		"dealId", dealID.Hex(),
		"userId", userID.Hex(),
		"claimId", claim.ID.Hex(),
		"method", method,
	)

	return &VerifyPinResult{
		ClaimID:       claim.ID,
		Status:        claim.Status,
		SavingsAmount: claim.SavingsAmount,
		Method:        method,
	}, nil
}

// UpdateBillAmount finalizes a previously PIN-verified claim with the bill
// total and moves it to Used. Safe to call again as a correction: the
// previous savings are backed out of the ledgers before the new value is
// applied.
func (s *ClaimServiceImpl) UpdateBillAmount(ctx context.Context, dealID, userID primitive.ObjectID, billAmount, actualSavings float64) (*BillResult, error) {
	if billAmount <= 0 {
		return nil, apperrors.Validation("bill amount must be positive")
	}
	if actualSavings < 0 {
		return nil, apperrors.Validation("actual savings cannot be negative")
	}

	deal, err := s.loadDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	claim, err := s.claimRepo.FindVerifiableByDealAndUser(ctx, dealID, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("no verified claim for this deal")
		}
		return nil, apperrors.Internal("failed to load claim", err)
	}

	return s.Settle(ctx, claim, deal, billAmount, actualSavings)
}

// Settle applies the bill amount to a resolved claim and updates the user
// and vendor ledgers by the net delta, so repeating the same settlement is
// a no-op beyond the first application.
func (s *ClaimServiceImpl) Settle(ctx context.Context, claim *models.Claim, deal *models.Deal, billAmount, actualSavings float64) (*BillResult, error) {
	if billAmount <= 0 {
		return nil, apperrors.Validation("bill amount must be positive")
	}

	savings := actualSavings
	if savings <= 0 {
		if deal.HasFixedPricing() {
			savings = FixedPriceSavings(*deal.OriginalPrice, *deal.DiscountedPrice)
		} else {
			savings = PercentageSavings(billAmount, deal.DiscountPercentage)
		}
	}

	now := s.clock.Now()
	before, err := s.claimRepo.SettleBill(ctx, claim.ID, billAmount, savings, now)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("no verified claim for this deal")
		}
		return nil, apperrors.Internal("failed to settle claim", err)
	}

	savingsDelta := SavingsDelta(savings, before.ActualSavings)
	revenueDelta := billAmount
	if before.BillAmount != nil {
		revenueDelta = billAmount - *before.BillAmount
	}
	redemptionDelta := 0
	if before.Status != models.ClaimStatusUsed {
		redemptionDelta = 1
	}

	var newTotal float64
	if !claim.UserID.IsZero() {
		if err := s.userRepo.IncrementTotalSavings(ctx, claim.UserID, savingsDelta); err != nil {
			return nil, apperrors.Internal("failed to update user savings total", err)
		}
		user, err := s.userRepo.FindByID(ctx, claim.UserID)
		if err != nil {
			return nil, apperrors.Internal("failed to reload user", err)
		}
		newTotal = user.TotalSavings
	}

	if err := s.vendorRepo.IncrementStats(ctx, deal.VendorID, redemptionDelta, revenueDelta, savingsDelta); err != nil {
		return nil, apperrors.Internal("failed to update vendor stats", err)
	}

	settled, err := s.claimRepo.FindByID(ctx, claim.ID)
	if err != nil {
		return nil, apperrors.Internal("failed to reload claim", err)
	}

	slog.Info("claim settled",
		"claimId", claim.ID.Hex(),
		"dealId", deal.ID.Hex(),
		"billAmount", billAmount,
		"actualSavings", savings,
		"savingsDelta", savingsDelta,
	)

	return &BillResult{
		Claim:           settled,
		ActualSavings:   savings,
		NewTotalSavings: newTotal,
	}, nil
}

// VendorVerify marks a claim vendor-verified. The compare-and-set in the
// repository makes the second of two concurrent calls fail with Conflict
// rather than silently duplicating.
func (s *ClaimServiceImpl) VendorVerify(ctx context.Context, claimID primitive.ObjectID, method models.VerificationMethod) error {
	err := s.claimRepo.MarkVendorVerified(ctx, claimID, method, s.clock.Now())
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return apperrors.Conflict("claim already verified")
		}
		return apperrors.Internal("failed to verify claim", err)
	}
	return nil
}

func (s *ClaimServiceImpl) loadDeal(ctx context.Context, dealID primitive.ObjectID) (*models.Deal, error) {
	deal, err := s.dealRepo.FindByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("deal not found")
		}
		return nil, apperrors.Internal("failed to load deal", err)
	}
	return deal, nil
}

func (s *ClaimServiceImpl) checkDealRedeemable(deal *models.Deal, now time.Time) error {
	if !deal.IsActive || !deal.IsApproved {
		return apperrors.Validation("deal is not active")
	}
	if deal.IsExpired(now) {
		return apperrors.Expired("deal has expired")
	}
	return nil
}

// findOrCreateClaim enforces the one-pending-claim-per-(deal,user)
// invariant: an outstanding claim is reused, never duplicated.
func (s *ClaimServiceImpl) findOrCreateClaim(ctx context.Context, deal *models.Deal, userID primitive.ObjectID, now time.Time) (*models.Claim, error) {
	if !userID.IsZero() {
		existing, err := s.claimRepo.FindPendingByDealAndUser(ctx, deal.ID, userID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.Internal("failed to look up pending claim", err)
		}
		if existing != nil {
			if existing.IsPending(now) {
				return existing, nil
			}
			// Persist the lazy expiry so the stale claim leaves the
			// pending-claim uniqueness scope before the new insert.
			existing.Status = models.ClaimStatusExpired
			if err := s.claimRepo.Update(ctx, existing); err != nil {
				return nil, apperrors.Internal("failed to expire claim", err)
			}
		}
	}

	code, err := s.pins.GenerateClaimCode()
	if err != nil {
		return nil, err
	}

	expiresAt := now.Add(s.claimTTL)
	if expiresAt.After(deal.ValidUntil) {
		// A claim code never outlives the deal it belongs to.
		expiresAt = deal.ValidUntil
	}

	claim := &models.Claim{
		DealID:        deal.ID,
		UserID:        userID,
		Status:        models.ClaimStatusClaimed,
		ClaimCode:     code,
		CodeExpiresAt: expiresAt,
		SavingsAmount: 0,
		ClaimedAt:     now,
	}
	if err := s.claimRepo.Create(ctx, claim); err != nil {
		if errors.Is(err, repositories.ErrDuplicate) && !userID.IsZero() {
			// A concurrent caller created the pending claim between the
			// lookup and the insert; the unique index picked the winner.
			existing, ferr := s.claimRepo.FindPendingByDealAndUser(ctx, deal.ID, userID)
			if ferr != nil {
				return nil, apperrors.Internal("failed to look up pending claim", ferr)
			}
			return existing, nil
		}
		return nil, apperrors.Internal("failed to create claim", err)
	}
	return claim, nil
}

// matchPin resolves which verification path the presented code satisfies:
// rotating window first, then salted hash, then the deprecated plaintext
// compare for pre-hashing records.
func (s *ClaimServiceImpl) matchPin(deal *models.Deal, code string) (models.VerificationMethod, error) {
	if s.pins.VerifyRotatingPin(deal.ID, code) {
		return models.MethodRotatingPin, nil
	}

	if deal.HasHashedPin() {
		res := s.pins.VerifyPin(code, deal.StoredPin, deal.PinSalt, deal.PinExpiresAt)
		if res.Valid {
			return models.MethodHashedPin, nil
		}
		if res.Reason == pinsecurity.ReasonExpired {
			return "", apperrors.Expired("verification code has expired")
		}
		return "", apperrors.Validation("invalid verification code")
	}

	if deal.HasLegacyPin() {
		stored := strings.ToUpper(strings.TrimSpace(deal.StoredPin))
		candidate := strings.ToUpper(strings.TrimSpace(code))
		if len(stored) == len(candidate) && subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1 {
			return models.MethodLegacyPin, nil
		}
	}

	return "", apperrors.Validation("invalid verification code")
}

// releaseRedemption hands a consumed cap slot back when the verification
// cannot complete after the counter was bumped.
func (s *ClaimServiceImpl) releaseRedemption(ctx context.Context, dealID primitive.ObjectID) {
	if err := s.dealRepo.DecrementRedemptions(ctx, dealID); err != nil {
		slog.Error("failed to compensate redemption counter", "error", err, "dealId", dealID.Hex())
	}
}

func (s *ClaimServiceImpl) recordAttempt(ctx context.Context, dealID primitive.ObjectID, userID *primitive.ObjectID, ip, userAgent string, success bool) {
	if err := s.limiter.Record(ctx, dealID, userID, ip, userAgent, success); err != nil {
		// The attempt log must not mask the verification outcome.
		slog.Error("failed to record pin attempt", "error", err, "dealId", dealID.Hex())
	}
}
