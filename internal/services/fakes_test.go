package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/pinsecurity"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/ratelimit"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
)

// In-memory repositories with the same guard semantics as the mongodb
// implementations: conditional increments, compare-and-set verification,
// settle-returns-before. Mutex-guarded so concurrency tests are valid.

type fakeDealRepo struct {
	mu    sync.Mutex
	deals map[primitive.ObjectID]*models.Deal
}

func newFakeDealRepo() *fakeDealRepo {
	return &fakeDealRepo{deals: map[primitive.ObjectID]*models.Deal{}}
}

func (r *fakeDealRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deal, ok := r.deals[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *deal
	return &copied, nil
}

func (r *fakeDealRepo) FindByVendorID(_ context.Context, vendorID primitive.ObjectID) ([]*models.Deal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Deal
	for _, deal := range r.deals {
		if deal.VendorID == vendorID {
			copied := *deal
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeDealRepo) Create(_ context.Context, deal *models.Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deal.ID.IsZero() {
		deal.ID = primitive.NewObjectID()
	}
	copied := *deal
	r.deals[deal.ID] = &copied
	return nil
}

func (r *fakeDealRepo) Update(_ context.Context, deal *models.Deal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.deals[deal.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *deal
	r.deals[deal.ID] = &copied
	return nil
}

func (r *fakeDealRepo) SetPin(_ context.Context, id primitive.ObjectID, hash, salt string, createdAt time.Time, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	deal, ok := r.deals[id]
	if !ok {
		return repositories.ErrNotFound
	}
	deal.StoredPin = hash
	deal.PinSalt = salt
	deal.PinCreatedAt = createdAt
	deal.PinExpiresAt = expiresAt
	return nil
}

func (r *fakeDealRepo) IncrementRedemptions(_ context.Context, id primitive.ObjectID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deal, ok := r.deals[id]
	if !ok {
		return false, repositories.ErrNotFound
	}
	if deal.MaxRedemptions != nil && deal.CurrentRedemptions >= *deal.MaxRedemptions {
		return false, nil
	}
	deal.CurrentRedemptions++
	return true, nil
}

func (r *fakeDealRepo) DecrementRedemptions(_ context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	deal, ok := r.deals[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if deal.CurrentRedemptions > 0 {
		deal.CurrentRedemptions--
	}
	return nil
}

type fakeClaimRepo struct {
	mu     sync.Mutex
	claims map[primitive.ObjectID]*models.Claim
}

func newFakeClaimRepo() *fakeClaimRepo {
	return &fakeClaimRepo{claims: map[primitive.ObjectID]*models.Claim{}}
}

func (r *fakeClaimRepo) Create(_ context.Context, claim *models.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// Mirrors the unique partial index: one pending claim per (deal, user);
	// anonymous claims are exempt.
	if !claim.UserID.IsZero() && claim.Status == models.ClaimStatusClaimed {
		for _, existing := range r.claims {
			if existing.DealID == claim.DealID && existing.UserID == claim.UserID && existing.Status == models.ClaimStatusClaimed {
				return repositories.ErrDuplicate
			}
		}
	}
	claim.ID = primitive.NewObjectID()
	copied := *claim
	r.claims[claim.ID] = &copied
	return nil
}

func (r *fakeClaimRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claim, ok := r.claims[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *claim
	return &copied, nil
}

func (r *fakeClaimRepo) FindByClaimCode(_ context.Context, code string) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, claim := range r.claims {
		if claim.ClaimCode == code {
			copied := *claim
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeClaimRepo) FindPendingByDealAndUser(_ context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Claim
	for _, claim := range r.claims {
		if claim.DealID != dealID || claim.UserID != userID {
			continue
		}
		if claim.Status != models.ClaimStatusClaimed || claim.VendorVerified {
			continue
		}
		if latest == nil || claim.ClaimedAt.After(latest.ClaimedAt) {
			latest = claim
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeClaimRepo) FindLatestUnverifiedByDeal(_ context.Context, dealID primitive.ObjectID) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Claim
	for _, claim := range r.claims {
		if claim.DealID != dealID || claim.Status != models.ClaimStatusClaimed || claim.VendorVerified {
			continue
		}
		if latest == nil || claim.ClaimedAt.After(latest.ClaimedAt) {
			latest = claim
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeClaimRepo) FindVerifiableByDealAndUser(_ context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Claim
	for _, claim := range r.claims {
		if claim.DealID != dealID || claim.UserID != userID {
			continue
		}
		if claim.Status != models.ClaimStatusPinVerified && claim.Status != models.ClaimStatusUsed {
			continue
		}
		if latest == nil || claim.UpdatedAt.After(latest.UpdatedAt) {
			latest = claim
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeClaimRepo) FindPendingByUser(_ context.Context, userID primitive.ObjectID) ([]*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Claim
	for _, claim := range r.claims {
		if claim.UserID == userID && claim.Status == models.ClaimStatusClaimed && !claim.VendorVerified {
			copied := *claim
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeClaimRepo) Update(_ context.Context, claim *models.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.claims[claim.ID]; !ok {
		return repositories.ErrNotFound
	}
	claim.UpdatedAt = time.Now()
	copied := *claim
	r.claims[claim.ID] = &copied
	return nil
}

func (r *fakeClaimRepo) MarkVendorVerified(_ context.Context, id primitive.ObjectID, method models.VerificationMethod, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	claim, ok := r.claims[id]
	if !ok || claim.VendorVerified {
		return repositories.ErrNotFound
	}
	claim.VendorVerified = true
	claim.Status = models.ClaimStatusPinVerified
	verifiedAt := at
	claim.VerifiedAt = &verifiedAt
	claim.VerificationMethod = method
	return nil
}

func (r *fakeClaimRepo) SettleBill(_ context.Context, id primitive.ObjectID, billAmount, actualSavings float64, usedAt time.Time) (*models.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claim, ok := r.claims[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if claim.Status != models.ClaimStatusPinVerified && claim.Status != models.ClaimStatusUsed {
		return nil, repositories.ErrNotFound
	}
	before := *claim
	claim.BillAmount = &billAmount
	claim.ActualSavings = &actualSavings
	claim.Status = models.ClaimStatusUsed
	settled := usedAt
	claim.UsedAt = &settled
	claim.UpdatedAt = time.Now()
	return &before, nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []models.PinAttempt
}

func (r *fakeAttemptRepo) Create(_ context.Context, attempt *models.PinAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt.ID = primitive.NewObjectID()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeAttemptRepo) FindRecentByDealAndUser(_ context.Context, dealID, userID primitive.ObjectID, since time.Time) ([]models.PinAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PinAttempt
	for _, a := range r.attempts {
		if a.DealID == dealID && a.UserID != nil && *a.UserID == userID && !a.AttemptedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) FindRecentByDealAndIP(_ context.Context, dealID primitive.ObjectID, ip string, since time.Time) ([]models.PinAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PinAttempt
	for _, a := range r.attempts {
		if a.DealID == dealID && a.UserID == nil && a.IPAddress == ip && !a.AttemptedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) FindByDeal(_ context.Context, dealID primitive.ObjectID, page, limit int) ([]models.PinAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.PinAttempt
	for _, a := range r.attempts {
		if a.DealID == dealID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) count(dealID primitive.ObjectID, success bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.attempts {
		if a.DealID == dealID && a.Success == success {
			n++
		}
	}
	return n
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[primitive.ObjectID]*models.User{}}
}

func (r *fakeUserRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) FindByPhone(_ context.Context, phone string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Phone == phone {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeUserRepo) FindByApproxName(_ context.Context, fragment string, limit int) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, user := range r.users {
		if strings.Contains(strings.ToLower(user.Name), strings.ToLower(fragment)) {
			copied := *user
			out = append(out, &copied)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (r *fakeUserRepo) IncrementTotalSavings(_ context.Context, id primitive.ObjectID, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	user.TotalSavings += delta
	return nil
}

type fakeVendorRepo struct {
	mu      sync.Mutex
	vendors map[primitive.ObjectID]*models.Vendor
}

func newFakeVendorRepo() *fakeVendorRepo {
	return &fakeVendorRepo{vendors: map[primitive.ObjectID]*models.Vendor{}}
}

func (r *fakeVendorRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vendor, ok := r.vendors[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *vendor
	return &copied, nil
}

func (r *fakeVendorRepo) IncrementStats(_ context.Context, id primitive.ObjectID, redemptions int, revenueDelta, savingsDelta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vendor, ok := r.vendors[id]
	if !ok {
		return repositories.ErrNotFound
	}
	vendor.TotalRedemptions += redemptions
	vendor.TotalRevenue += revenueDelta
	vendor.TotalSavingsGiven += savingsDelta
	return nil
}

// testEnv wires the full service graph over the fakes with a fixed clock.
type testEnv struct {
	clock    *clock.Fixed
	pins     *pinsecurity.Module
	limiter  *ratelimit.Limiter
	deals    *fakeDealRepo
	claims   *fakeClaimRepo
	attempts *fakeAttemptRepo
	users    *fakeUserRepo
	vendors  *fakeVendorRepo

	claimService *ClaimServiceImpl
	verification *VerificationServiceImpl

	vendorID primitive.ObjectID
}

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:    &clock.Fixed{T: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
		deals:    newFakeDealRepo(),
		claims:   newFakeClaimRepo(),
		attempts: &fakeAttemptRepo{},
		users:    newFakeUserRepo(),
		vendors:  newFakeVendorRepo(),
		vendorID: primitive.NewObjectID(),
	}
	env.pins = pinsecurity.New("test-secret", 30*time.Minute, 0, env.clock)
	env.limiter = ratelimit.NewLimiter(env.attempts, ratelimit.DefaultPolicy(), env.clock)
	env.claimService = NewClaimService(env.deals, env.claims, env.users, env.vendors, env.limiter, env.pins, env.clock, 24*time.Hour)
	env.verification = NewVerificationService(env.deals, env.claims, env.users, env.attempts, env.claimService, env.limiter, env.pins, env.clock)

	env.vendors.vendors[env.vendorID] = &models.Vendor{ID: env.vendorID, BusinessName: "Cafe Nine"}
	return env
}

func (env *testEnv) addDeal(mutate func(*models.Deal)) *models.Deal {
	deal := &models.Deal{
		ID:                 primitive.NewObjectID(),
		VendorID:           env.vendorID,
		Title:              "Lunch special",
		DiscountPercentage: 20,
		ValidUntil:         env.clock.Now().Add(30 * 24 * time.Hour),
		RequiredTier:       models.TierBasic,
		IsActive:           true,
		IsApproved:         true,
	}
	if mutate != nil {
		mutate(deal)
	}
	env.deals.deals[deal.ID] = deal
	return deal
}

func (env *testEnv) addUser(mutate func(*models.User)) *models.User {
	user := &models.User{
		ID:             primitive.NewObjectID(),
		Name:           "Ada Obi",
		Phone:          "+2348031112222",
		MembershipTier: models.TierBasic,
	}
	if mutate != nil {
		mutate(user)
	}
	env.users.users[user.ID] = user
	return user
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
