package mongodb

import (
	"context"
	"errors"
	"time"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Compile-time check to ensure VendorRepository implements the interface
var _ repositories.VendorRepository = (*VendorRepository)(nil)

// VendorRepository handles MongoDB operations for Vendor
type VendorRepository struct {
	collection *mongo.Collection
}

// NewVendorRepository creates a new VendorRepository
func NewVendorRepository(db *mongo.Database) *VendorRepository {
	return &VendorRepository{
		collection: db.Collection("vendors"),
	}
}

// FindByID finds a vendor by ID
func (r *VendorRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Vendor, error) {
	var vendor models.Vendor
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&vendor)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &vendor, nil
}

// IncrementStats applies signed deltas to the vendor's aggregate counters
// in a single atomic update.
func (r *VendorRepository) IncrementStats(ctx context.Context, id primitive.ObjectID, redemptions int, revenueDelta, savingsDelta float64) error {
	update := bson.M{
		"$inc": bson.M{
			"totalRedemptions":  redemptions,
			"totalRevenue":      revenueDelta,
			"totalSavingsGiven": savingsDelta,
		},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}
