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

// MovementFilter narrows listing queries over the ledger
type MovementFilter struct {
	UserID    *primitive.ObjectID
	AuctionID *primitive.ObjectID
	Tipo      models.MovementKind
	Estado    models.MovementState
	Limit     int
	Offset    int
}

type MovementRepository interface {
	Create(ctx context.Context, movement *models.Movement) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Movement, error)
	Update(ctx context.Context, movement *models.Movement) error
	// ExistsOperacion reports whether the user already registered an
	// unrejected payment with this bank operation number.
	ExistsOperacion(ctx context.Context, userID primitive.ObjectID, numeroOperacion string) (bool, error)
	GetValidatedByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Movement, error)
	GetValidatedByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) ([]*models.Movement, error)
	GetPendingByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Movement, error)
	List(ctx context.Context, filter MovementFilter) ([]*models.Movement, int64, error)
}

type movementRepository struct {
	collection *mongo.Collection
}

func NewMovementRepository(db *mongo.Database) MovementRepository {
	return &movementRepository{
		collection: db.Collection("movements"),
	}
}

func (r *movementRepository) Create(ctx context.Context, movement *models.Movement) error {
	if err := movement.Validate(); err != nil {
		return apierrors.NewValidation(err.Error(), nil)
	}

	result, err := r.collection.InsertOne(ctx, movement)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apierrors.NewConflict("ya existe un movimiento con ese numero de operacion")
		}
		return fmt.Errorf("failed to create movement: %w", err)
	}

	movement.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *movementRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Movement, error) {
	var movement models.Movement
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&movement)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("movimiento", id.Hex())
		}
		return nil, fmt.Errorf("failed to get movement by ID: %w", err)
	}
	return &movement, nil
}

func (r *movementRepository) Update(ctx context.Context, movement *models.Movement) error {
	movement.UpdatedAt = time.Now()

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": movement.ID}, bson.M{"$set": movement})
	if err != nil {
		return fmt.Errorf("failed to update movement: %w", err)
	}

	if result.MatchedCount == 0 {
		return apierrors.NewNotFound("movimiento", movement.ID.Hex())
	}

	return nil
}

func (r *movementRepository) ExistsOperacion(ctx context.Context, userID primitive.ObjectID, numeroOperacion string) (bool, error) {
	// Rejected payments free their operation number for a corrected retry.
	filter := bson.M{
		"user_id":          userID,
		"numero_operacion": numeroOperacion,
		"estado":           bson.M{"$ne": models.MovementRechazado},
	}

	count, err := r.collection.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check operation number: %w", err)
	}

	return count > 0, nil
}

func (r *movementRepository) GetValidatedByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Movement, error) {
	filter := bson.M{
		"user_id": userID,
		"estado":  models.MovementValidado,
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
}

func (r *movementRepository) GetValidatedByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) ([]*models.Movement, error) {
	filter := bson.M{
		"user_id":    userID,
		"auction_id": auctionID,
		"estado":     models.MovementValidado,
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
}

func (r *movementRepository) GetPendingByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Movement, error) {
	filter := bson.M{
		"auction_id": auctionID,
		"estado":     models.MovementPendiente,
	}
	return r.find(ctx, filter, options.Find().SetSort(bson.M{"created_at": 1}))
}

func (r *movementRepository) List(ctx context.Context, f MovementFilter) ([]*models.Movement, int64, error) {
	filter := bson.M{}
	if f.UserID != nil {
		filter["user_id"] = *f.UserID
	}
	if f.AuctionID != nil {
		filter["auction_id"] = *f.AuctionID
	}
	if f.Tipo != "" {
		filter["tipo"] = f.Tipo
	}
	if f.Estado != "" {
		filter["estado"] = f.Estado
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count movements: %w", err)
	}

	limit := f.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip(int64(f.Offset)).
		SetLimit(int64(limit))

	movements, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	return movements, total, nil
}

func (r *movementRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Movement, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find movements: %w", err)
	}
	defer cursor.Close(ctx)

	var movements []*models.Movement
	for cursor.Next(ctx) {
		var movement models.Movement
		if err := cursor.Decode(&movement); err != nil {
			continue
		}
		movements = append(movements, &movement)
	}

	return movements, cursor.Err()
}

// CreateIndexes creates necessary indexes for the movements collection. The
// partial unique index rejects duplicate operation numbers per user while
// letting a rejected payment be re-registered with the same number.
func (r *movementRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "numero_movimiento", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "numero_operacion", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"tipo":   models.KindPagoGarantia,
					"estado": bson.M{"$in": bson.A{models.MovementPendiente, models.MovementValidado}},
				}),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "estado", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "estado", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create movement indexes: %w", err)
	}

	return nil
}
