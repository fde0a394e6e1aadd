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

type GuaranteeRepository interface {
	Create(ctx context.Context, guarantee *models.Guarantee) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Guarantee, error)
	// GetActiveWinner returns the ranking=1, estado=activa guarantee for an
	// auction, or NotFound when the slot is empty.
	GetActiveWinner(ctx context.Context, auctionID primitive.ObjectID) (*models.Guarantee, error)
	Update(ctx context.Context, guarantee *models.Guarantee) error
	// TransitionEstado updates the guarantee state only when the expected
	// current state still matches.
	TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.GuaranteeState, motivo string) (bool, error)
	GetByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Guarantee, error)
}

type guaranteeRepository struct {
	collection *mongo.Collection
}

func NewGuaranteeRepository(db *mongo.Database) GuaranteeRepository {
	return &guaranteeRepository{
		collection: db.Collection("guarantees"),
	}
}

func (r *guaranteeRepository) Create(ctx context.Context, guarantee *models.Guarantee) error {
	guarantee.CreatedAt = time.Now()
	guarantee.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, guarantee)
	if err != nil {
		return fmt.Errorf("failed to create guarantee: %w", err)
	}

	guarantee.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *guaranteeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Guarantee, error) {
	var guarantee models.Guarantee
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&guarantee)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("garantia", id.Hex())
		}
		return nil, fmt.Errorf("failed to get guarantee by ID: %w", err)
	}
	return &guarantee, nil
}

func (r *guaranteeRepository) GetActiveWinner(ctx context.Context, auctionID primitive.ObjectID) (*models.Guarantee, error) {
	filter := bson.M{
		"auction_id":       auctionID,
		"posicion_ranking": 1,
		"estado":           models.GuaranteeActiva,
	}

	var guarantee models.Guarantee
	err := r.collection.FindOne(ctx, filter).Decode(&guarantee)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("garantia activa", auctionID.Hex())
		}
		return nil, fmt.Errorf("failed to get active winner guarantee: %w", err)
	}
	return &guarantee, nil
}

func (r *guaranteeRepository) Update(ctx context.Context, guarantee *models.Guarantee) error {
	guarantee.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": guarantee.ID}, bson.M{"$set": guarantee})
	if err != nil {
		return fmt.Errorf("failed to update guarantee: %w", err)
	}

	if result.MatchedCount == 0 {
		return apierrors.NewNotFound("garantia", guarantee.ID.Hex())
	}

	return nil
}

func (r *guaranteeRepository) TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.GuaranteeState, motivo string) (bool, error) {
	set := bson.M{
		"estado":     to,
		"updated_at": time.Now(),
	}
	if motivo != "" {
		set["motivo_reasignacion"] = motivo
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "estado": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition guarantee state: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *guaranteeRepository) GetByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Guarantee, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, bson.M{"auction_id": auctionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get guarantees by auction: %w", err)
	}
	defer cursor.Close(ctx)

	var guarantees []*models.Guarantee
	for cursor.Next(ctx) {
		var guarantee models.Guarantee
		if err := cursor.Decode(&guarantee); err != nil {
			continue
		}
		guarantees = append(guarantees, &guarantee)
	}

	return guarantees, cursor.Err()
}

// CreateIndexes creates necessary indexes for the guarantees collection. The
// partial unique index enforces the single-active-winner invariant at the
// storage layer as well.
func (r *guaranteeRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "auction_id", Value: 1},
				{Key: "posicion_ranking", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"estado": models.GuaranteeActiva}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "estado", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create guarantee indexes: %w", err)
	}

	return nil
}
