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
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure ClaimRepository implements the interface
var _ repositories.ClaimRepository = (*ClaimRepository)(nil)

// ClaimRepository handles MongoDB operations for Claim
type ClaimRepository struct {
	collection *mongo.Collection
}

// NewClaimRepository creates a new ClaimRepository
func NewClaimRepository(db *mongo.Database) *ClaimRepository {
	return &ClaimRepository{
		collection: db.Collection("claims"),
	}
}

// EnsureIndexes creates the unique partial index backing the one pending
// claim allowed per (deal, user). Concurrent claim creation races on the
// database instead of on a find-then-insert pair; anonymous claims carry
// no userId and stay outside the index.
func (r *ClaimRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "dealId", Value: 1}, {Key: "userId", Value: 1}},
		Options: options.Index().
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": models.ClaimStatusClaimed,
				"userId": bson.M{"$exists": true},
			}),
	})
	return err
}

// Create inserts a new claim
func (r *ClaimRepository) Create(ctx context.Context, claim *models.Claim) error {
	claim.ID = primitive.NewObjectID()
	claim.CreatedAt = time.Now()
	claim.UpdatedAt = time.Now()
	_, err := r.collection.InsertOne(ctx, claim)
	if mongo.IsDuplicateKeyError(err) {
		return repositories.ErrDuplicate
	}
	return err
}

// FindByID finds a claim by ID
func (r *ClaimRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Claim, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// FindByClaimCode finds a claim by its channel-specific code
func (r *ClaimRepository) FindByClaimCode(ctx context.Context, code string) (*models.Claim, error) {
	return r.findOne(ctx, bson.M{"claimCode": code}, nil)
}

// FindPendingByDealAndUser finds the outstanding unverified claim for a
// (deal, user) pair
func (r *ClaimRepository) FindPendingByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error) {
	filter := bson.M{
		"dealId":         dealID,
		"userId":         userID,
		"status":         models.ClaimStatusClaimed,
		"vendorVerified": false,
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.M{"claimedAt": -1}))
}

// FindLatestUnverifiedByDeal finds the most recent claim on a deal still
// awaiting vendor verification
func (r *ClaimRepository) FindLatestUnverifiedByDeal(ctx context.Context, dealID primitive.ObjectID) (*models.Claim, error) {
	filter := bson.M{
		"dealId":         dealID,
		"status":         models.ClaimStatusClaimed,
		"vendorVerified": false,
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.M{"claimedAt": -1}))
}

// FindVerifiableByDealAndUser finds the claim a bill amount applies to
func (r *ClaimRepository) FindVerifiableByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID) (*models.Claim, error) {
	filter := bson.M{
		"dealId": dealID,
		"userId": userID,
		"status": bson.M{"$in": []models.ClaimStatus{models.ClaimStatusPinVerified, models.ClaimStatusUsed}},
	}
	return r.findOne(ctx, filter, options.FindOne().SetSort(bson.M{"updatedAt": -1}))
}

// FindPendingByUser finds all of a user's claims awaiting verification
func (r *ClaimRepository) FindPendingByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Claim, error) {
	filter := bson.M{
		"userId":         userID,
		"status":         models.ClaimStatusClaimed,
		"vendorVerified": false,
	}
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"claimedAt": -1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var claims []*models.Claim
	if err := cursor.All(ctx, &claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// Update updates an existing claim
func (r *ClaimRepository) Update(ctx context.Context, claim *models.Claim) error {
	claim.UpdatedAt = time.Now()
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": claim.ID}, bson.M{"$set": claim})
	return err
}

// MarkVendorVerified flips vendorVerified with the flag in the filter, so
// of two concurrent verification calls exactly one matches a document.
func (r *ClaimRepository) MarkVendorVerified(ctx context.Context, id primitive.ObjectID, method models.VerificationMethod, at time.Time) error {
	filter := bson.M{"_id": id, "vendorVerified": false}
	update := bson.M{"$set": bson.M{
		"vendorVerified":     true,
		"status":             models.ClaimStatusPinVerified,
		"verifiedAt":         at,
		"verificationMethod": method,
		"updatedAt":          time.Now(),
	}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// SettleBill finalizes the bill amount in one guarded update. The document
// is returned as it was before the update so the caller can compute the
// delta against any previously applied savings.
func (r *ClaimRepository) SettleBill(ctx context.Context, id primitive.ObjectID, billAmount, actualSavings float64, usedAt time.Time) (*models.Claim, error) {
	filter := bson.M{
		"_id":    id,
		"status": bson.M{"$in": []models.ClaimStatus{models.ClaimStatusPinVerified, models.ClaimStatusUsed}},
	}
	update := bson.M{"$set": bson.M{
		"billAmount":    billAmount,
		"actualSavings": actualSavings,
		"status":        models.ClaimStatusUsed,
		"usedAt":        usedAt,
		"updatedAt":     time.Now(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var before models.Claim
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &before, nil
}

func (r *ClaimRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Claim, error) {
	var claim models.Claim
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&claim)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&claim)
	}
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrNotFound
		}
		return nil, err
	}
	return &claim, nil
}
