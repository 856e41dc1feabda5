package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ClaimStatus represents the status of a claim
type ClaimStatus string

const (
	ClaimStatusClaimed     ClaimStatus = "CLAIMED"
	ClaimStatusPinVerified ClaimStatus = "PIN_VERIFIED"
	ClaimStatusUsed        ClaimStatus = "USED"
	ClaimStatusExpired     ClaimStatus = "EXPIRED"
)

// VerificationMethod records which channel proved a claim genuine
type VerificationMethod string

const (
	MethodRotatingPin VerificationMethod = "rotatingPin"
	MethodHashedPin   VerificationMethod = "hashedPin"
	MethodLegacyPin   VerificationMethod = "legacyPin"
	MethodManualPhone VerificationMethod = "manualPhone"
	MethodManualName  VerificationMethod = "manualName"
	MethodQR          VerificationMethod = "qr"
)

// Claim represents a customer's record of intent to redeem a deal
type Claim struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DealID             primitive.ObjectID `bson:"dealId" json:"dealId"`
	UserID             primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	Status             ClaimStatus        `bson:"status" json:"status"`
	ClaimCode          string             `bson:"claimCode,omitempty" json:"claimCode,omitempty"`
	CodeExpiresAt      time.Time          `bson:"codeExpiresAt" json:"codeExpiresAt"`
	VendorVerified     bool               `bson:"vendorVerified" json:"vendorVerified"`
	VerifiedAt         *time.Time         `bson:"verifiedAt,omitempty" json:"verifiedAt,omitempty"`
	VerificationMethod VerificationMethod `bson:"verificationMethod,omitempty" json:"verificationMethod,omitempty"`
	BillAmount         *float64           `bson:"billAmount,omitempty" json:"billAmount,omitempty"`
	SavingsAmount      float64            `bson:"savingsAmount" json:"savingsAmount"`
	ActualSavings      *float64           `bson:"actualSavings,omitempty" json:"actualSavings,omitempty"`
	ClaimedAt          time.Time          `bson:"claimedAt" json:"claimedAt"`
	UsedAt             *time.Time         `bson:"usedAt,omitempty" json:"usedAt,omitempty"`
	CreatedAt          time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// EffectiveStatus applies lazy expiry: a claim whose code has expired
// without vendor verification is Expired regardless of the stored status.
// There is no background sweep; every read goes through here.
func (c *Claim) EffectiveStatus(now time.Time) ClaimStatus {
	if c.Status == ClaimStatusUsed || c.Status == ClaimStatusExpired {
		return c.Status
	}
	if !c.VendorVerified && now.After(c.CodeExpiresAt) {
		return ClaimStatusExpired
	}
	return c.Status
}

// IsPending reports whether the claim is still awaiting verification.
func (c *Claim) IsPending(now time.Time) bool {
	return c.EffectiveStatus(now) == ClaimStatusClaimed && !c.VendorVerified
}
