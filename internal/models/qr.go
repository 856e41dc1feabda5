package models

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
)

// QRPayloadType tags payloads generated by the customer app. Any other
// type value is rejected before the embedded code is looked at.
const QRPayloadType = "instoredealz.claim"

// QRPayload is the structured content of a scanned claim QR code.
type QRPayload struct {
	Type       string `json:"type"`
	ClaimCode  string `json:"claimCode"`
	DealID     string `json:"dealId"`
	CustomerID string `json:"customerId,omitempty"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

var (
	ErrQRMalformed = errors.New("qr payload is not valid base64 JSON")
	ErrQRWrongType = errors.New("qr payload type does not match expected tag")
)

// ParseQRPayload decodes a scanned payload. Raw JSON is accepted alongside
// the base64 form the app emits, since some scanner SDKs deliver either.
func ParseQRPayload(raw string) (*QRPayload, error) {
	raw = strings.TrimSpace(raw)
	data := []byte(raw)
	if !strings.HasPrefix(raw, "{") {
		decoded, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, ErrQRMalformed
		}
		data = decoded
	}

	var payload QRPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, ErrQRMalformed
	}
	if payload.Type != QRPayloadType {
		return nil, ErrQRWrongType
	}
	if payload.ClaimCode == "" {
		return nil, ErrQRMalformed
	}
	return &payload, nil
}
