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

type AuctionRepository interface {
	Create(ctx context.Context, auction *models.Auction) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Auction, error)
	GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Auction, error)
	Update(ctx context.Context, auction *models.Auction) error
	// TransitionEstado updates the auction state only if it still holds the
	// expected current state. Returns (false, nil) when the precondition no
	// longer matches, which makes callers like the expiration sweep idempotent.
	TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.AuctionState, extra bson.M) (bool, error)
	GetExpired(ctx context.Context, now time.Time, limit int) ([]*models.Auction, error)
}

type auctionRepository struct {
	collection *mongo.Collection
}

func NewAuctionRepository(db *mongo.Database) AuctionRepository {
	return &auctionRepository{
		collection: db.Collection("auctions"),
	}
}

func (r *auctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	auction.CreatedAt = time.Now()
	auction.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, auction)
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}

	auction.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *auctionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Auction, error) {
	var auction models.Auction
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&auction)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("subasta", id.Hex())
		}
		return nil, fmt.Errorf("failed to get auction by ID: %w", err)
	}
	return &auction, nil
}

func (r *auctionRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Auction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := r.collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to get auctions by IDs: %w", err)
	}
	defer cursor.Close(ctx)

	var auctions []*models.Auction
	for cursor.Next(ctx) {
		var auction models.Auction
		if err := cursor.Decode(&auction); err != nil {
			return nil, fmt.Errorf("failed to decode auction: %w", err)
		}
		auctions = append(auctions, &auction)
	}

	return auctions, cursor.Err()
}

func (r *auctionRepository) Update(ctx context.Context, auction *models.Auction) error {
	auction.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": auction.ID}, bson.M{"$set": auction})
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}

	if result.MatchedCount == 0 {
		return apierrors.NewNotFound("subasta", auction.ID.Hex())
	}

	return nil
}

func (r *auctionRepository) TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.AuctionState, extra bson.M) (bool, error) {
	set := bson.M{
		"estado":     to,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		set[k] = v
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "estado": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, fmt.Errorf("failed to transition auction state: %w", err)
	}

	return result.MatchedCount > 0, nil
}

func (r *auctionRepository) GetExpired(ctx context.Context, now time.Time, limit int) ([]*models.Auction, error) {
	// Selection predicate excludes rows already transitioned: running the
	// sweep twice over the same instant finds nothing the second time.
	filter := bson.M{
		"estado":            models.AuctionPendiente,
		"fecha_limite_pago": bson.M{"$ne": nil, "$lt": now},
	}

	opts := options.Find().
		SetLimit(int64(limit)).
		SetSort(bson.M{"fecha_limite_pago": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get expired auctions: %w", err)
	}
	defer cursor.Close(ctx)

	var auctions []*models.Auction
	for cursor.Next(ctx) {
		var auction models.Auction
		if err := cursor.Decode(&auction); err != nil {
			continue
		}
		auctions = append(auctions, &auction)
	}

	return auctions, cursor.Err()
}

// CreateIndexes creates necessary indexes for the auctions collection
func (r *auctionRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "estado", Value: 1}, {Key: "fecha_limite_pago", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "garantia_actual_id", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create auction indexes: %w", err)
	}

	return nil
}
