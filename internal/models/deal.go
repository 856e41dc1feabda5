package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MembershipTier represents a customer's subscription level
type MembershipTier string

const (
	TierBasic    MembershipTier = "BASIC"
	TierPremium  MembershipTier = "PREMIUM"
	TierUltimate MembershipTier = "ULTIMATE"
)

// tierRanks orders tiers for the claim-time membership gate
var tierRanks = map[MembershipTier]int{
	TierBasic:    0,
	TierPremium:  1,
	TierUltimate: 2,
}

// Rank returns the ordering value of a tier. Unknown tiers rank lowest.
func (t MembershipTier) Rank() int {
	return tierRanks[t]
}

// Deal represents a vendor's published discount offer
type Deal struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	VendorID           primitive.ObjectID `bson:"vendorId" json:"vendorId"`
	Title              string             `bson:"title" json:"title"`
	DiscountPercentage float64            `bson:"discountPercentage" json:"discountPercentage"`
	OriginalPrice      *float64           `bson:"originalPrice,omitempty" json:"originalPrice,omitempty"`
	DiscountedPrice    *float64           `bson:"discountedPrice,omitempty" json:"discountedPrice,omitempty"`
	StoredPin          string             `bson:"storedPin,omitempty" json:"-"`
	PinSalt            string             `bson:"pinSalt,omitempty" json:"-"`
	PinCreatedAt       time.Time          `bson:"pinCreatedAt,omitempty" json:"-"`
	PinExpiresAt       *time.Time         `bson:"pinExpiresAt,omitempty" json:"-"`
	ValidUntil         time.Time          `bson:"validUntil" json:"validUntil"`
	RequiredTier       MembershipTier     `bson:"requiredTier" json:"requiredTier"`
	MaxRedemptions     *int               `bson:"maxRedemptions,omitempty" json:"maxRedemptions,omitempty"`
	CurrentRedemptions int                `bson:"currentRedemptions" json:"currentRedemptions"`
	IsActive           bool               `bson:"isActive" json:"isActive"`
	IsApproved         bool               `bson:"isApproved" json:"isApproved"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// HasFixedPricing reports whether the deal carries fixed original/discounted
// prices, in which case savings are known without a bill amount.
func (d *Deal) HasFixedPricing() bool {
	return d.OriginalPrice != nil && d.DiscountedPrice != nil
}

// HasHashedPin reports whether the stored PIN uses salted-digest storage.
// Records created before hashing was introduced have no salt and compare
// by plain equality (legacy path).
func (d *Deal) HasHashedPin() bool {
	return d.StoredPin != "" && d.PinSalt != ""
}

// HasLegacyPin reports whether the deal still stores a plaintext PIN.
func (d *Deal) HasLegacyPin() bool {
	return d.StoredPin != "" && d.PinSalt == ""
}

// IsExpired reports whether the deal's validity window has passed.
func (d *Deal) IsExpired(now time.Time) bool {
	return now.After(d.ValidUntil)
}

// CapReached reports whether the deal has exhausted its redemption cap.
// Always false when no cap is set.
func (d *Deal) CapReached() bool {
	return d.MaxRedemptions != nil && d.CurrentRedemptions >= *d.MaxRedemptions
}

// RotatingPin is the derived, never-persisted rotating PIN for a deal.
// It is pure information computed from (dealId, time window); two deals may
// independently derive the same code within a window, a known limitation of
// the per-deal derivation scheme.
type RotatingPin struct {
	DealID           primitive.ObjectID `json:"dealId"`
	CurrentPin       string             `json:"currentPin"`
	WindowStart      time.Time          `json:"windowStart"`
	RotationInterval time.Duration      `json:"rotationInterval"`
	NextRotationAt   time.Time          `json:"nextRotationAt"`
}
