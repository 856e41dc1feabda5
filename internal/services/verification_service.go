package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sahilm/fuzzy"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/exp/slog"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/apperrors"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/pinsecurity"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/ratelimit"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
)

// Compile-time check to ensure VerificationServiceImpl implements the interface
var _ VerificationService = (*VerificationServiceImpl)(nil)

const (
	nameLookupLimit = 25
	phoneCacheSize  = 256
)

// VerificationServiceImpl is the multi-channel verification dispatcher.
// Resolution order for a presented code: claim code, rotating PIN, hashed
// PIN, legacy plaintext PIN. Phone, name, and QR channels reduce to the
// same resolution.
type VerificationServiceImpl struct {
	dealRepo    repositories.DealRepository
	claimRepo   repositories.ClaimRepository
	userRepo    repositories.UserRepository
	attemptRepo repositories.PinAttemptRepository
	claims      ClaimService
	limiter     *ratelimit.Limiter
	pins        *pinsecurity.Module
	clock       clock.Clock
	phoneCache  *lru.Cache // phone -> userID hex, warm path for repeat lookups at the counter
}

// NewVerificationService creates a new VerificationServiceImpl.
func NewVerificationService(
	dealRepo repositories.DealRepository,
	claimRepo repositories.ClaimRepository,
	userRepo repositories.UserRepository,
	attemptRepo repositories.PinAttemptRepository,
	claims ClaimService,
	limiter *ratelimit.Limiter,
	pins *pinsecurity.Module,
	clk clock.Clock,
) *VerificationServiceImpl {
	cache, _ := lru.New(phoneCacheSize)
	return &VerificationServiceImpl{
		dealRepo:    dealRepo,
		claimRepo:   claimRepo,
		userRepo:    userRepo,
		attemptRepo: attemptRepo,
		claims:      claims,
		limiter:     limiter,
		pins:        pins,
		clock:       clk,
		phoneCache:  cache,
	}
}

// VerifyClaimCode resolves a vendor-entered code to a claim and marks it
// vendor-verified. Codes of claim-code length resolve directly; PIN-length
// codes are matched against each of the vendor's deals.
func (s *VerificationServiceImpl) VerifyClaimCode(ctx context.Context, vendorID primitive.ObjectID, code, ip, userAgent string) (*VendorVerification, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))

	// Attempts that never resolve to a deal are logged under the zero deal
	// id; that scope is checked here so garbage floods back off too.
	if err := s.limiter.Check(ctx, primitive.NilObjectID, nil, ip); err != nil {
		s.recordAttempt(ctx, primitive.NilObjectID, ip, userAgent, false)
		return nil, err
	}

	if ok, msg := s.pins.ValidatePinFormat(normalized); !ok {
		// Malformed input is still an attempt; abuse cannot bypass the log
		// by sending garbage.
		s.recordAttempt(ctx, primitive.NilObjectID, ip, userAgent, false)
		return nil, apperrors.Validation(msg)
	}

	if claim, err := s.claimRepo.FindByClaimCode(ctx, normalized); err == nil {
		return s.verifyResolvedClaim(ctx, vendorID, claim, models.MethodQR, ip, userAgent)
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Internal("failed to look up claim code", err)
	}

	return s.verifyAgainstVendorDeals(ctx, vendorID, normalized, ip, userAgent)
}

// CompleteTransaction verifies a code and settles the bill in one vendor
// action. A second call for an already-settled claim fails with Conflict.
func (s *VerificationServiceImpl) CompleteTransaction(ctx context.Context, vendorID primitive.ObjectID, code string, billAmount, actualDiscount float64, ip, userAgent string) (*Transaction, error) {
	verification, err := s.VerifyClaimCode(ctx, vendorID, code, ip, userAgent)
	if err != nil {
		return nil, err
	}

	result, err := s.claims.Settle(ctx, verification.Claim, verification.Deal, billAmount, actualDiscount)
	if err != nil {
		return nil, err
	}

	return &Transaction{
		Reference:     newTransactionRef(),
		ClaimID:       result.Claim.ID,
		DealID:        verification.Deal.ID,
		BillAmount:    billAmount,
		ActualSavings: result.ActualSavings,
		CompletedAt:   s.clock.Now(),
	}, nil
}

// CurrentPin returns the vendor-facing rotating PIN display for a deal.
// Derivation is pure; no storage round trip, no locking.
func (s *VerificationServiceImpl) CurrentPin(ctx context.Context, dealID, vendorID primitive.ObjectID) (*models.RotatingPin, error) {
	deal, err := s.loadOwnedDeal(ctx, dealID, vendorID)
	if err != nil {
		return nil, err
	}
	if !deal.IsActive || !deal.IsApproved {
		return nil, apperrors.Validation("deal is not active")
	}
	if deal.IsExpired(s.clock.Now()) {
		return nil, apperrors.Expired("deal has expired")
	}

	pin := s.pins.GenerateRotatingPin(dealID)
	return &pin, nil
}

// VerifyByPhone finds a customer's pending claims on the vendor's deals by
// phone number. Zero, one, or many candidates come back; the vendor picks.
func (s *VerificationServiceImpl) VerifyByPhone(ctx context.Context, vendorID primitive.ObjectID, phone string) ([]CandidateClaim, error) {
	normalized := normalizePhone(phone)
	if normalized == "" {
		return nil, apperrors.Validation("phone number is required")
	}

	user, err := s.lookupUserByPhone(ctx, normalized)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return []CandidateClaim{}, nil
		}
		return nil, apperrors.Internal("failed to look up user by phone", err)
	}

	return s.candidatesForUsers(ctx, vendorID, []*models.User{user})
}

// VerifyByName finds pending claims by fuzzy customer-name match. The
// repository narrows with a coarse substring filter; fuzzy ranking picks
// the best-matching customers from that set.
func (s *VerificationServiceImpl) VerifyByName(ctx context.Context, vendorID primitive.ObjectID, name string) ([]CandidateClaim, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.Validation("customer name is required")
	}

	// Coarse pass uses the first word so transposed or partial names still
	// reach the fuzzy ranker.
	fragment := strings.Fields(name)[0]
	users, err := s.userRepo.FindByApproxName(ctx, fragment, nameLookupLimit)
	if err != nil {
		return nil, apperrors.Internal("failed to search users by name", err)
	}

	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	matches := fuzzy.Find(name, names)

	ranked := make([]*models.User, 0, len(matches))
	for _, match := range matches {
		ranked = append(ranked, users[match.Index])
	}
	if len(matches) == 0 {
		// Fall back to the coarse result set rather than hiding candidates
		// behind an over-strict ranker.
		ranked = users
	}

	return s.candidatesForUsers(ctx, vendorID, ranked)
}

// VerifyByQR parses a scanned payload and resolves its embedded claim
// code. Payloads with the wrong type tag are rejected before any lookup.
func (s *VerificationServiceImpl) VerifyByQR(ctx context.Context, vendorID primitive.ObjectID, payload, ip, userAgent string) (*VendorVerification, error) {
	if err := s.limiter.Check(ctx, primitive.NilObjectID, nil, ip); err != nil {
		s.recordAttempt(ctx, primitive.NilObjectID, ip, userAgent, false)
		return nil, err
	}

	parsed, err := models.ParseQRPayload(payload)
	if err != nil {
		s.recordAttempt(ctx, primitive.NilObjectID, ip, userAgent, false)
		return nil, apperrors.Validation(err.Error())
	}
	return s.VerifyClaimCode(ctx, vendorID, parsed.ClaimCode, ip, userAgent)
}

// ConfirmManual verifies a claim the vendor picked from a phone or name
// lookup's candidate set.
func (s *VerificationServiceImpl) ConfirmManual(ctx context.Context, vendorID, claimID primitive.ObjectID, method models.VerificationMethod, ip, userAgent string) (*VendorVerification, error) {
	if method != models.MethodManualPhone && method != models.MethodManualName {
		return nil, apperrors.Validation("invalid manual verification method")
	}

	claim, err := s.claimRepo.FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("claim not found")
		}
		return nil, apperrors.Internal("failed to load claim", err)
	}

	return s.verifyResolvedClaim(ctx, vendorID, claim, method, ip, userAgent)
}

// SetDealPin sets or regenerates a deal's static PIN, stored salted. An
// empty plainPin asks for a generated one. The plaintext is returned once
// for the vendor to note down and never stored.
func (s *VerificationServiceImpl) SetDealPin(ctx context.Context, vendorID, dealID primitive.ObjectID, plainPin string) (string, error) {
	deal, err := s.loadOwnedDeal(ctx, dealID, vendorID)
	if err != nil {
		return "", err
	}

	if plainPin == "" {
		plainPin, err = s.pins.GenerateSecurePin()
		if err != nil {
			return "", err
		}
	} else if ok, msg := s.pins.ValidatePinFormat(plainPin); !ok {
		return "", apperrors.Validation(msg)
	}

	hashed, err := s.pins.HashPin(plainPin)
	if err != nil {
		return "", err
	}

	if err := s.dealRepo.SetPin(ctx, deal.ID, hashed.Hash, hashed.Salt, s.clock.Now(), hashed.ExpiresAt); err != nil {
		return "", apperrors.Internal("failed to store deal pin", err)
	}

	slog.Info("deal pin updated", "dealId", deal.ID.Hex(), "vendorId", vendorID.Hex())
	return plainPin, nil
}

// ListAttempts returns a deal's verification attempt audit trail.
func (s *VerificationServiceImpl) ListAttempts(ctx context.Context, vendorID, dealID primitive.ObjectID, page, limit int) ([]models.PinAttempt, error) {
	if _, err := s.loadOwnedDeal(ctx, dealID, vendorID); err != nil {
		return nil, err
	}
	attempts, err := s.attemptRepo.FindByDeal(ctx, dealID, page, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to load attempts", err)
	}
	return attempts, nil
}

// verifyAgainstVendorDeals matches a PIN-length code against each of the
// vendor's redeemable deals: rotating window first, then hashed, then the
// deprecated legacy compare.
func (s *VerificationServiceImpl) verifyAgainstVendorDeals(ctx context.Context, vendorID primitive.ObjectID, code, ip, userAgent string) (*VendorVerification, error) {
	deals, err := s.dealRepo.FindByVendorID(ctx, vendorID)
	if err != nil {
		return nil, apperrors.Internal("failed to load vendor deals", err)
	}

	now := s.clock.Now()
	checked := make([]primitive.ObjectID, 0, len(deals))
	for _, deal := range deals {
		if !deal.IsActive || !deal.IsApproved || deal.IsExpired(now) {
			continue
		}

		// The budget check runs before the code is matched against the
		// deal, not after a claim resolves.
		if err := s.limiter.Check(ctx, deal.ID, nil, ip); err != nil {
			s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
			return nil, err
		}

		method, ok := s.matchDealPin(deal, code)
		if !ok {
			checked = append(checked, deal.ID)
			continue
		}

		claim, err := s.resolveClaimForDeal(ctx, deal, now)
		if err != nil {
			return nil, err
		}
		return s.verifyResolvedClaim(ctx, vendorID, claim, method, ip, userAgent)
	}

	// A code matching nothing counts against every deal it was tried on,
	// or against the unresolved scope when the vendor had none to try.
	for _, dealID := range checked {
		s.recordAttempt(ctx, dealID, ip, userAgent, false)
	}
	if len(checked) == 0 {
		s.recordAttempt(ctx, primitive.NilObjectID, ip, userAgent, false)
	}
	return nil, apperrors.NotFound("no claim or deal matches the supplied code")
}

func (s *VerificationServiceImpl) matchDealPin(deal *models.Deal, code string) (models.VerificationMethod, bool) {
	if s.pins.VerifyRotatingPin(deal.ID, code) {
		return models.MethodRotatingPin, true
	}
	if deal.HasHashedPin() {
		if res := s.pins.VerifyPin(code, deal.StoredPin, deal.PinSalt, deal.PinExpiresAt); res.Valid {
			return models.MethodHashedPin, true
		}
		return "", false
	}
	if deal.HasLegacyPin() && strings.EqualFold(strings.TrimSpace(deal.StoredPin), code) {
		return models.MethodLegacyPin, true
	}
	return "", false
}

// resolveClaimForDeal picks the most recent unverified claim, creating an
// anonymous one when the customer redeemed directly at the counter without
// a prior app-side claim.
func (s *VerificationServiceImpl) resolveClaimForDeal(ctx context.Context, deal *models.Deal, now time.Time) (*models.Claim, error) {
	claim, err := s.claimRepo.FindLatestUnverifiedByDeal(ctx, deal.ID)
	if err == nil && claim.IsPending(now) {
		return claim, nil
	}
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, apperrors.Internal("failed to load claim", err)
	}

	code, err := s.pins.GenerateClaimCode()
	if err != nil {
		return nil, err
	}
	expiresAt := now.Add(time.Hour)
	if expiresAt.After(deal.ValidUntil) {
		expiresAt = deal.ValidUntil
	}
	anonymous := &models.Claim{
		DealID:        deal.ID,
		Status:        models.ClaimStatusClaimed,
		ClaimCode:     code,
		CodeExpiresAt: expiresAt,
		ClaimedAt:     now,
	}
	if err := s.claimRepo.Create(ctx, anonymous); err != nil {
		return nil, apperrors.Internal("failed to create claim", err)
	}
	return anonymous, nil
}

func (s *VerificationServiceImpl) loadOwnedDeal(ctx context.Context, dealID, vendorID primitive.ObjectID) (*models.Deal, error) {
	deal, err := s.dealRepo.FindByID(ctx, dealID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("deal not found")
		}
		return nil, apperrors.Internal("failed to load deal", err)
	}
	if deal.VendorID != vendorID {
		return nil, apperrors.Authorization("deal does not belong to this vendor")
	}
	return deal, nil
}

func (s *VerificationServiceImpl) verifyResolvedClaim(ctx context.Context, vendorID primitive.ObjectID, claim *models.Claim, method models.VerificationMethod, ip, userAgent string) (*VendorVerification, error) {
	deal, err := s.dealRepo.FindByID(ctx, claim.DealID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.NotFound("deal not found")
		}
		return nil, apperrors.Internal("failed to load deal", err)
	}

	if deal.VendorID != vendorID {
		return nil, apperrors.Authorization("deal does not belong to this vendor")
	}

	now := s.clock.Now()
	if !deal.IsActive || !deal.IsApproved {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Validation("deal is not active")
	}
	if deal.IsExpired(now) {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Expired("deal has expired")
	}

	if err := s.limiter.Check(ctx, deal.ID, nil, ip); err != nil {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, err
	}

	switch claim.EffectiveStatus(now) {
	case models.ClaimStatusUsed:
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Conflict("transaction already completed")
	case models.ClaimStatusExpired:
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Expired("claim code has expired")
	}
	if claim.VendorVerified {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Conflict("claim already verified")
	}

	// Cap consumption and the verified-flag CAS are two separate atomic
	// steps; losing the CAS hands the consumed slot back.
	allowed, err := s.dealRepo.IncrementRedemptions(ctx, deal.ID)
	if err != nil {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Internal("failed to update redemption counter", err)
	}
	if !allowed {
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, apperrors.Conflict("deal redemption limit reached")
	}

	if err := s.claims.VendorVerify(ctx, claim.ID, method); err != nil {
		if derr := s.dealRepo.DecrementRedemptions(ctx, deal.ID); derr != nil {
			slog.Error("failed to compensate redemption counter", "error", derr, "dealId", deal.ID.Hex())
		}
		s.recordAttempt(ctx, deal.ID, ip, userAgent, false)
		return nil, err
	}

	s.recordAttempt(ctx, deal.ID, ip, userAgent, true)

	claim.VendorVerified = true
	claim.Status = models.ClaimStatusPinVerified
	verifiedAt := now
	claim.VerifiedAt = &verifiedAt
	claim.VerificationMethod = method
	if deal.HasFixedPricing() {
		claim.SavingsAmount = FixedPriceSavings(*deal.OriginalPrice, *deal.DiscountedPrice)
		if err := s.claimRepo.Update(ctx, claim); err != nil {
			return nil, apperrors.Internal("failed to update claim savings", err)
		}
	}

	var customer *models.User
	if !claim.UserID.IsZero() {
		customer, err = s.userRepo.FindByID(ctx, claim.UserID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, apperrors.Internal("failed to load customer", err)
		}
	}

	slog.Info("claim vendor-verified",
		"claimId", claim.ID.Hex(),
		"dealId", deal.ID.Hex(),
		"vendorId", vendorID.Hex(),
		"method", method,
	)

	return &VendorVerification{
		Claim:             claim,
		Customer:          customer,
		Deal:              deal,
		Method:            method,
		SavingsAmount:     claim.SavingsAmount,
		MigrationRequired: method == models.MethodLegacyPin,
	}, nil
}

func (s *VerificationServiceImpl) candidatesForUsers(ctx context.Context, vendorID primitive.ObjectID, users []*models.User) ([]CandidateClaim, error) {
	now := s.clock.Now()
	candidates := []CandidateClaim{}

	for _, user := range users {
		claims, err := s.claimRepo.FindPendingByUser(ctx, user.ID)
		if err != nil {
			return nil, apperrors.Internal("failed to load pending claims", err)
		}
		for _, claim := range claims {
			if !claim.IsPending(now) {
				continue
			}
			deal, err := s.dealRepo.FindByID(ctx, claim.DealID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					continue
				}
				return nil, apperrors.Internal("failed to load deal", err)
			}
			if deal.VendorID != vendorID || !deal.IsActive || !deal.IsApproved || deal.IsExpired(now) {
				continue
			}
			candidates = append(candidates, CandidateClaim{Claim: claim, Customer: user, Deal: deal})
		}
	}
	return candidates, nil
}

func (s *VerificationServiceImpl) lookupUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	if cached, ok := s.phoneCache.Get(phone); ok {
		if id, err := primitive.ObjectIDFromHex(cached.(string)); err == nil {
			if user, err := s.userRepo.FindByID(ctx, id); err == nil {
				return user, nil
			}
		}
		s.phoneCache.Remove(phone)
	}

	user, err := s.userRepo.FindByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	s.phoneCache.Add(phone, user.ID.Hex())
	return user, nil
}

func (s *VerificationServiceImpl) recordAttempt(ctx context.Context, dealID primitive.ObjectID, ip, userAgent string, success bool) {
	if err := s.limiter.Record(ctx, dealID, nil, ip, userAgent, success); err != nil {
		slog.Error("failed to record pin attempt", "error", err, "dealId", dealID.Hex())
	}
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func newTransactionRef() string {
	return fmt.Sprintf("TXN-%s", strings.ToUpper(uuid.NewString()))
}
