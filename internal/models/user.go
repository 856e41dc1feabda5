package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a customer in the system
type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name           string             `bson:"name" json:"name"`
	Phone          string             `bson:"phone" json:"phone"`
	Email          string             `bson:"email,omitempty" json:"email,omitempty"`
	MembershipTier MembershipTier     `bson:"membershipTier" json:"membershipTier"`
	TotalSavings   float64            `bson:"totalSavings" json:"totalSavings"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Vendor represents a deal-publishing merchant with aggregate redemption
// counters maintained by settlement.
type Vendor struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	BusinessName      string             `bson:"businessName" json:"businessName"`
	Email             string             `bson:"email,omitempty" json:"email,omitempty"`
	TotalRedemptions  int                `bson:"totalRedemptions" json:"totalRedemptions"`
	TotalRevenue      float64            `bson:"totalRevenue" json:"totalRevenue"`
	TotalSavingsGiven float64            `bson:"totalSavingsGiven" json:"totalSavingsGiven"`
	CreatedAt         time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}
