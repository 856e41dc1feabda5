package models

import (
	"testing"
	"time"
)

func TestClaimEffectiveStatusLazyExpiry(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	claim := &Claim{
		Status:        ClaimStatusClaimed,
		CodeExpiresAt: now.Add(time.Hour),
	}

	if got := claim.EffectiveStatus(now); got != ClaimStatusClaimed {
		t.Fatalf("before expiry: %s, want %s", got, ClaimStatusClaimed)
	}
	if got := claim.EffectiveStatus(now.Add(2 * time.Hour)); got != ClaimStatusExpired {
		t.Fatalf("after expiry: %s, want %s", got, ClaimStatusExpired)
	}
	if claim.Status != ClaimStatusClaimed {
		t.Fatal("effective status must not mutate the stored status")
	}
}

func TestClaimEffectiveStatusVendorVerifiedNeverExpires(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	claim := &Claim{
		Status:         ClaimStatusPinVerified,
		VendorVerified: true,
		CodeExpiresAt:  now.Add(-time.Hour),
	}

	if got := claim.EffectiveStatus(now); got != ClaimStatusPinVerified {
		t.Fatalf("verified claim: %s, want %s", got, ClaimStatusPinVerified)
	}
}

func TestClaimEffectiveStatusTerminalStates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	used := &Claim{Status: ClaimStatusUsed, CodeExpiresAt: now.Add(-time.Hour)}
	if got := used.EffectiveStatus(now); got != ClaimStatusUsed {
		t.Fatalf("used claim: %s, want %s", got, ClaimStatusUsed)
	}

	expired := &Claim{Status: ClaimStatusExpired, CodeExpiresAt: now.Add(time.Hour)}
	if got := expired.EffectiveStatus(now); got != ClaimStatusExpired {
		t.Fatalf("expired claim: %s, want %s", got, ClaimStatusExpired)
	}
}

func TestClaimIsPending(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	pending := &Claim{Status: ClaimStatusClaimed, CodeExpiresAt: now.Add(time.Hour)}
	if !pending.IsPending(now) {
		t.Fatal("unexpired claimed claim should be pending")
	}
	if pending.IsPending(now.Add(2 * time.Hour)) {
		t.Fatal("expired claim must not be pending")
	}

	verified := &Claim{Status: ClaimStatusClaimed, VendorVerified: true, CodeExpiresAt: now.Add(time.Hour)}
	if verified.IsPending(now) {
		t.Fatal("vendor-verified claim must not be pending")
	}
}
