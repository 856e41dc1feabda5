package mongodb

import (
	"context"
	"time"

	"github.com/instoredealz-omar/instoreaws-sub000/internal/models"
	"github.com/instoredealz-omar/instoreaws-sub000/internal/repositories"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Compile-time check to ensure PinAttemptRepository implements the interface
var _ repositories.PinAttemptRepository = (*PinAttemptRepository)(nil)

// PinAttemptRepository handles MongoDB operations for the attempt log
type PinAttemptRepository struct {
	collection *mongo.Collection
}

// NewPinAttemptRepository creates a new PinAttemptRepository
func NewPinAttemptRepository(db *mongo.Database) *PinAttemptRepository {
	return &PinAttemptRepository{
		collection: db.Collection("pin_attempts"),
	}
}

// Create appends an attempt. The log is insert-only; no update path exists.
func (r *PinAttemptRepository) Create(ctx context.Context, attempt *models.PinAttempt) error {
	attempt.ID = primitive.NewObjectID()
	_, err := r.collection.InsertOne(ctx, attempt)
	return err
}

// FindRecentByDealAndUser returns attempts in the (deal, user) scope since
// the given instant
func (r *PinAttemptRepository) FindRecentByDealAndUser(ctx context.Context, dealID, userID primitive.ObjectID, since time.Time) ([]models.PinAttempt, error) {
	filter := bson.M{
		"dealId":      dealID,
		"userId":      userID,
		"attemptedAt": bson.M{"$gte": since},
	}
	return r.find(ctx, filter, nil)
}

// FindRecentByDealAndIP returns attempts in the (deal, IP) scope since the
// given instant, used when no user is known. User-attributed attempts are
// excluded; they count in the (deal, user) scope.
func (r *PinAttemptRepository) FindRecentByDealAndIP(ctx context.Context, dealID primitive.ObjectID, ip string, since time.Time) ([]models.PinAttempt, error) {
	filter := bson.M{
		"dealId":      dealID,
		"ipAddress":   ip,
		"userId":      bson.M{"$exists": false},
		"attemptedAt": bson.M{"$gte": since},
	}
	return r.find(ctx, filter, nil)
}

// FindByDeal returns a deal's attempt history with pagination, newest first
func (r *PinAttemptRepository) FindByDeal(ctx context.Context, dealID primitive.ObjectID, page, limit int) ([]models.PinAttempt, error) {
	opts := options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetSort(bson.M{"attemptedAt": -1})
	return r.find(ctx, bson.M{"dealId": dealID}, opts)
}

func (r *PinAttemptRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.PinAttempt, error) {
	var cursor *mongo.Cursor
	var err error
	if opts != nil {
		cursor, err = r.collection.Find(ctx, filter, opts)
	} else {
		cursor, err = r.collection.Find(ctx, filter)
	}
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var attempts []models.PinAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, err
	}
	return attempts, nil
}
