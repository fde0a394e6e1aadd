package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type RefundRepository interface {
	Create(ctx context.Context, refund *models.Refund) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Refund, error)
	Update(ctx context.Context, refund *models.Refund) error
	// GetInFlightByUser returns the user's refunds currently holding retained
	// balance (solicitado or confirmado).
	GetInFlightByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Refund, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID, estado models.RefundState, limit, offset int) ([]*models.Refund, int64, error)
}

type refundRepository struct {
	collection *mongo.Collection
}

func NewRefundRepository(db *mongo.Database) RefundRepository {
	return &refundRepository{
		collection: db.Collection("refunds"),
	}
}

func (r *refundRepository) Create(ctx context.Context, refund *models.Refund) error {
	result, err := r.collection.InsertOne(ctx, refund)
	if err != nil {
		return fmt.Errorf("failed to create refund: %w", err)
	}

	refund.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *refundRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Refund, error) {
	var refund models.Refund
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&refund)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("reembolso", id.Hex())
		}
		return nil, fmt.Errorf("failed to get refund by ID: %w", err)
	}
	return &refund, nil
}

func (r *refundRepository) Update(ctx context.Context, refund *models.Refund) error {
	refund.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": refund.ID}, bson.M{"$set": refund})
	if err != nil {
		return fmt.Errorf("failed to update refund: %w", err)
	}

	if result.MatchedCount == 0 {
		return apierrors.NewNotFound("reembolso", refund.ID.Hex())
	}

	return nil
}

func (r *refundRepository) GetInFlightByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Refund, error) {
	filter := bson.M{
		"user_id": userID,
		"estado":  bson.M{"$in": bson.A{models.RefundSolicitado, models.RefundConfirmado}},
	}

	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to get in-flight refunds: %w", err)
	}
	defer cursor.Close(ctx)

	var refunds []*models.Refund
	for cursor.Next(ctx) {
		var refund models.Refund
		if err := cursor.Decode(&refund); err != nil {
			continue
		}
		refunds = append(refunds, &refund)
	}

	return refunds, cursor.Err()
}

func (r *refundRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, estado models.RefundState, limit, offset int) ([]*models.Refund, int64, error) {
	filter := bson.M{"user_id": userID}
	if estado != "" {
		filter["estado"] = estado
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count refunds: %w", err)
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list refunds: %w", err)
	}
	defer cursor.Close(ctx)

	var refunds []*models.Refund
	for cursor.Next(ctx) {
		var refund models.Refund
		if err := cursor.Decode(&refund); err != nil {
			continue
		}
		refunds = append(refunds, &refund)
	}

	return refunds, total, cursor.Err()
}

// CreateIndexes creates necessary indexes for the refunds collection
func (r *refundRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "estado", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "auction_id", Value: 1}},
		},
		// At most one unsettled request per user, enforced against races that
		// pass the service-level check concurrently.
		{
			Keys: bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"estado": bson.M{"$in": bson.A{models.RefundSolicitado, models.RefundConfirmado}},
				}),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create refund indexes: %w", err)
	}

	return nil
}
