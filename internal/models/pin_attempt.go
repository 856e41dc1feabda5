package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PinAttempt is one entry in the append-only verification attempt log.
// Entries are never mutated; the rate limiter reads them back by scope and
// retention pruning happens outside this service.
type PinAttempt struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	DealID      primitive.ObjectID  `bson:"dealId,omitempty" json:"dealId,omitempty"`
	UserID      *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"`
	IPAddress   string              `bson:"ipAddress" json:"ipAddress"`
	UserAgent   string              `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	Success     bool                `bson:"success" json:"success"`
	AttemptedAt time.Time           `bson:"attemptedAt" json:"attemptedAt"`
}
