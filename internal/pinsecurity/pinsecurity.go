// Package pinsecurity owns every cryptographic concern of deal PINs:
// one-time code generation, salted digest storage for vendor-chosen PINs,
// and the keyed time-window derivation behind rotating PINs.
package pinsecurity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/apperrors"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/clock"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Alphabet excludes easily-confused glyphs (0/O, 1/I). 32 characters, so
// a byte mod len(Alphabet) carries no modulo bias.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	// PinLength is the length of deal PINs and rotating PINs.
	PinLength = 6
	// ClaimCodeLength is the length of channel-specific claim codes.
	ClaimCodeLength = 8

	saltBytes       = 16
	pbkdf2Iters     = 10000
	pbkdf2KeyLength = 32
)

// HashedPin is the storable form of a vendor-chosen PIN.
type HashedPin struct {
	Hash      string
	Salt      string
	ExpiresAt *time.Time
}

// VerifyResult reports a PIN comparison outcome. Reason distinguishes only
// expiry; wrong and malformed PINs both come back as "invalid" so callers
// cannot be used as an oracle.
type VerifyResult struct {
	Valid  bool
	Reason string
}

const (
	ReasonExpired = "expired"
	ReasonInvalid = "invalid"
)

// Module performs PIN generation, hashing, and rotating derivation. The
// secret keys the rotating-PIN HMAC; without it codes are unguessable.
type Module struct {
	secret           []byte
	rotationInterval time.Duration
	pinTTL           time.Duration
	clock            clock.Clock
}

// New creates a Module. pinTTL of zero means stored PINs never expire.
func New(secret string, rotationInterval, pinTTL time.Duration, clk clock.Clock) *Module {
	if rotationInterval <= 0 {
		rotationInterval = 30 * time.Minute
	}
	return &Module{
		secret:           []byte(secret),
		rotationInterval: rotationInterval,
		pinTTL:           pinTTL,
		clock:            clk,
	}
}

// RotationInterval returns the configured window length.
func (m *Module) RotationInterval() time.Duration {
	return m.rotationInterval
}

// GenerateSecurePin produces a random PIN from the unambiguous alphabet.
// Used when a vendor does not supply their own PIN at deal creation.
func (m *Module) GenerateSecurePin() (string, error) {
	return m.randomCode(PinLength)
}

// GenerateClaimCode produces a random channel-specific claim code, longer
// than a PIN so the dispatcher can tell the two apart.
func (m *Module) GenerateClaimCode() (string, error) {
	return m.randomCode(ClaimCodeLength)
}

func (m *Module) randomCode(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", apperrors.Internal("entropy source failure", err)
	}
	code := make([]byte, length)
	for i, b := range buf {
		code[i] = Alphabet[int(b)%len(Alphabet)]
	}
	return string(code), nil
}

// HashPin derives a fresh random salt and the PBKDF2 digest of the PIN.
func (m *Module) HashPin(plainPin string) (HashedPin, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return HashedPin{}, apperrors.Internal("entropy source failure", err)
	}

	digest := pbkdf2.Key([]byte(normalizePin(plainPin)), salt, pbkdf2Iters, pbkdf2KeyLength, sha256.New)

	hashed := HashedPin{
		Hash: hex.EncodeToString(digest),
		Salt: hex.EncodeToString(salt),
	}
	if m.pinTTL > 0 {
		expires := m.clock.Now().Add(m.pinTTL)
		hashed.ExpiresAt = &expires
	}
	return hashed, nil
}

// VerifyPin recomputes the digest with the stored salt and compares in
// constant time. A malformed hash or salt is reported as plain invalid.
func (m *Module) VerifyPin(plainPin, hash, salt string, expiresAt *time.Time) VerifyResult {
	if expiresAt != nil && m.clock.Now().After(*expiresAt) {
		return VerifyResult{Valid: false, Reason: ReasonExpired}
	}

	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return VerifyResult{Valid: false, Reason: ReasonInvalid}
	}
	expected, err := hex.DecodeString(hash)
	if err != nil {
		return VerifyResult{Valid: false, Reason: ReasonInvalid}
	}

	digest := pbkdf2.Key([]byte(normalizePin(plainPin)), saltBytes, pbkdf2Iters, pbkdf2KeyLength, sha256.New)
	if subtle.ConstantTimeCompare(digest, expected) != 1 {
		return VerifyResult{Valid: false, Reason: ReasonInvalid}
	}
	return VerifyResult{Valid: true}
}

// GenerateRotatingPin derives the current window's PIN for a deal. The code
// is a keyed one-way function of (dealId, windowStart), so the vendor
// display and customer verification agree without any storage round trip.
//
// Known limitation: each deal derives independently, so two deals can land
// on the same code within one window.
func (m *Module) GenerateRotatingPin(dealID primitive.ObjectID) models.RotatingPin {
	interval := int64(m.rotationInterval / time.Second)
	windowStart := (m.clock.Now().Unix() / interval) * interval

	return models.RotatingPin{
		DealID:           dealID,
		CurrentPin:       m.pinForWindow(dealID, windowStart),
		WindowStart:      time.Unix(windowStart, 0).UTC(),
		RotationInterval: m.rotationInterval,
		NextRotationAt:   time.Unix(windowStart+interval, 0).UTC(),
	}
}

// VerifyRotatingPin checks a candidate against the current window's PIN
// and, to tolerate clock skew at a rotation boundary, the immediately
// preceding window's.
func (m *Module) VerifyRotatingPin(dealID primitive.ObjectID, candidatePin string) bool {
	interval := int64(m.rotationInterval / time.Second)
	windowStart := (m.clock.Now().Unix() / interval) * interval
	candidate := normalizePin(candidatePin)

	current := m.pinForWindow(dealID, windowStart)
	previous := m.pinForWindow(dealID, windowStart-interval)

	matchCurrent := subtle.ConstantTimeCompare([]byte(candidate), []byte(current))
	matchPrevious := subtle.ConstantTimeCompare([]byte(candidate), []byte(previous))
	return matchCurrent == 1 || matchPrevious == 1
}

func (m *Module) pinForWindow(dealID primitive.ObjectID, windowStart int64) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(dealID.Hex()))
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(windowStart))
	mac.Write(ts[:])
	digest := mac.Sum(nil)

	pin := make([]byte, PinLength)
	for i := 0; i < PinLength; i++ {
		pin[i] = Alphabet[int(digest[i])%len(Alphabet)]
	}
	return string(pin)
}

// ValidatePinFormat enforces length and character-set constraints before
// any cryptographic work. Alphanumeric only, since vendor-chosen and legacy
// PINs predate the unambiguous generation alphabet.
func (m *Module) ValidatePinFormat(input string) (bool, string) {
	code := normalizePin(input)
	if len(code) < 4 || len(code) > ClaimCodeLength {
		return false, fmt.Sprintf("code must be between 4 and %d characters", ClaimCodeLength)
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false, "code contains invalid characters"
		}
	}
	return true, ""
}

func normalizePin(pin string) string {
	return strings.ToUpper(strings.TrimSpace(pin))
}
