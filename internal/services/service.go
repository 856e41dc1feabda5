package services

import (
	"context"
	"time"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VerifyPinResult is the outcome of a customer-side PIN verification.
type VerifyPinResult struct {
	ClaimID       primitive.ObjectID        `json:"claimId"`
	Status        models.ClaimStatus        `json:"status"`
	SavingsAmount float64                   `json:"savingsAmount"`
	Method        models.VerificationMethod `json:"verificationMethod"`
}

// BillResult is the outcome of a bill-amount settlement.
type BillResult struct {
	Claim           *models.Claim `json:"claim"`
	ActualSavings   float64       `json:"actualSavings"`
	NewTotalSavings float64       `json:"newTotalSavings"`
}

// VendorVerification is a resolved vendor-side verification: the claim,
// the customer when known, and the deal it belongs to.
type VendorVerification struct {
	Claim             *models.Claim             `json:"claim"`
	Customer          *models.User              `json:"customer,omitempty"`
	Deal              *models.Deal              `json:"deal"`
	Method            models.VerificationMethod `json:"verificationMethod"`
	SavingsAmount     float64                   `json:"savingsAmount"`
	MigrationRequired bool                      `json:"migrationRequired,omitempty"`
}

// CandidateClaim is one possible match from a manual phone/name lookup.
// Ambiguous matches are surfaced as a set for the vendor to disambiguate,
// never auto-resolved.
type CandidateClaim struct {
	Claim    *models.Claim `json:"claim"`
	Customer *models.User  `json:"customer"`
	Deal     *models.Deal  `json:"deal"`
}

// Transaction is a completed redemption settlement.
type Transaction struct {
	Reference     string             `json:"reference"`
	ClaimID       primitive.ObjectID `json:"claimId"`
	DealID        primitive.ObjectID `json:"dealId"`
	BillAmount    float64            `json:"billAmount"`
	ActualSavings float64            `json:"actualSavings"`
	CompletedAt   time.Time          `json:"completedAt"`
}

// ClaimService owns the claim lifecycle: creation, PIN verification,
// vendor verification, and settlement. It is the only place a claim's
// status changes.
type ClaimService interface {
	ClaimDeal(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error)
	VerifyPin(ctx context.Context, dealID, userID primitive.ObjectID, code, ip, userAgent string) (*VerifyPinResult, error)
	UpdateBillAmount(ctx context.Context, dealID, userID primitive.ObjectID, billAmount, actualSavings float64) (*BillResult, error)
	VendorVerify(ctx context.Context, claimID primitive.ObjectID, method models.VerificationMethod) error
	Settle(ctx context.Context, claim *models.Claim, deal *models.Deal, billAmount, actualSavings float64) (*BillResult, error)
}

// VerificationService is the multi-channel dispatcher: it resolves a code,
// QR payload, phone number, or customer name to a claim and an outcome.
type VerificationService interface {
	VerifyClaimCode(ctx context.Context, vendorID primitive.ObjectID, code, ip, userAgent string) (*VendorVerification, error)
	CompleteTransaction(ctx context.Context, vendorID primitive.ObjectID, code string, billAmount, actualDiscount float64, ip, userAgent string) (*Transaction, error)
	CurrentPin(ctx context.Context, dealID, vendorID primitive.ObjectID) (*models.RotatingPin, error)
	VerifyByPhone(ctx context.Context, vendorID primitive.ObjectID, phone string) ([]CandidateClaim, error)
	VerifyByName(ctx context.Context, vendorID primitive.ObjectID, name string) ([]CandidateClaim, error)
	VerifyByQR(ctx context.Context, vendorID primitive.ObjectID, payload, ip, userAgent string) (*VendorVerification, error)
	ConfirmManual(ctx context.Context, vendorID, claimID primitive.ObjectID, method models.VerificationMethod, ip, userAgent string) (*VendorVerification, error)
	SetDealPin(ctx context.Context, vendorID, dealID primitive.ObjectID, plainPin string) (string, error)
	ListAttempts(ctx context.Context, vendorID, dealID primitive.ObjectID, page, limit int) ([]models.PinAttempt, error)
}
