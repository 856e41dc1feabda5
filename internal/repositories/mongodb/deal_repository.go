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

// Compile-time check to ensure DealRepository implements the interface
var _ repositories.DealRepository = (*DealRepository)(nil)

// DealRepository handles MongoDB operations for Deal
type DealRepository struct {
	collection *mongo.Collection
}

// NewDealRepository creates a new DealRepository
func NewDealRepository(db *mongo.Database) *DealRepository {
	return &DealRepository{
		collection: db.Collection("deals"),
	}
}

// FindByID finds a deal by ID
func (r *DealRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Deal, error) {
	var deal models.Deal
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&deal)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &deal, nil
}

// FindByVendorID finds all deals owned by a vendor
func (r *DealRepository) FindByVendorID(ctx context.Context, vendorID primitive.ObjectID) ([]*models.Deal, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"vendorId": vendorID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var deals []*models.Deal
	if err := cursor.All(ctx, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// Create inserts a new deal
func (r *DealRepository) Create(ctx context.Context, deal *models.Deal) error {
	deal.ID = primitive.NewObjectID()
	deal.CreatedAt = time.Now()
	deal.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, deal)
	return err
}

// Update updates an existing deal
func (r *DealRepository) Update(ctx context.Context, deal *models.Deal) error {
	deal.UpdatedAt = time.Now()
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": deal.ID}, bson.M{"$set": deal})
	return err
}

// SetPin replaces the deal's stored PIN material
func (r *DealRepository) SetPin(ctx context.Context, id primitive.ObjectID, hash, salt string, createdAt time.Time, expiresAt *time.Time) error {
	update := bson.M{
		"storedPin":    hash,
		"pinSalt":      salt,
		"pinCreatedAt": createdAt,
		"updatedAt":    time.Now(),
	}
	if expiresAt != nil {
		update["pinExpiresAt"] = *expiresAt
	}

	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// IncrementRedemptions bumps currentRedemptions with the cap check folded
// into the update filter, so concurrent verifications near the cap race on
// the database rather than on a read-then-write pair.
func (r *DealRepository) IncrementRedemptions(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{
		"_id": id,
		"$or": []bson.M{
			{"maxRedemptions": bson.M{"$exists": false}},
			{"maxRedemptions": nil},
			{"$expr": bson.M{"$lt": []string{"$currentRedemptions", "$maxRedemptions"}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"currentRedemptions": 1},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// DecrementRedemptions backs out one increment, floored at zero.
func (r *DealRepository) DecrementRedemptions(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "currentRedemptions": bson.M{"$gt": 0}}
	update := bson.M{
		"$inc": bson.M{"currentRedemptions": -1},
		"$set": bson.M{"updatedAt": time.Now()},
	}
	_, err := r.collection.UpdateOne(ctx, filter, update)
	return err
}
