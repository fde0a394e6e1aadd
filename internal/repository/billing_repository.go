package repository

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type BillingRepository interface {
	Create(ctx context.Context, billing *models.Billing) error
	GetByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (*models.Billing, error)
	ExistsByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (bool, error)
	// ExistsByDocument reports whether the user already billed with this
	// document number.
	ExistsByDocument(ctx context.Context, userID primitive.ObjectID, numeroDocumento string) (bool, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Billing, error)
	// SumByUser returns the user's total invoiced amount, the saldo_aplicado
	// term of the available-balance formula.
	SumByUser(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error)
}

type billingRepository struct {
	collection *mongo.Collection
}

func NewBillingRepository(db *mongo.Database) BillingRepository {
	return &billingRepository{
		collection: db.Collection("billings"),
	}
}

func (r *billingRepository) Create(ctx context.Context, billing *models.Billing) error {
	result, err := r.collection.InsertOne(ctx, billing)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apierrors.NewConflict("la subasta ya fue facturada")
		}
		return fmt.Errorf("failed to create billing: %w", err)
	}

	billing.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *billingRepository) GetByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (*models.Billing, error) {
	var billing models.Billing
	err := r.collection.FindOne(ctx, bson.M{"user_id": userID, "auction_id": auctionID}).Decode(&billing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apierrors.NewNotFound("facturacion", auctionID.Hex())
		}
		return nil, fmt.Errorf("failed to get billing by auction: %w", err)
	}
	return &billing, nil
}

func (r *billingRepository) ExistsByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (bool, error) {
	count, err := r.collection.CountDocuments(ctx,
		bson.M{"user_id": userID, "auction_id": auctionID},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check billing existence: %w", err)
	}
	return count > 0, nil
}

func (r *billingRepository) ExistsByDocument(ctx context.Context, userID primitive.ObjectID, numeroDocumento string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx,
		bson.M{"user_id": userID, "numero_documento": numeroDocumento},
		options.Count().SetLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to check billing document: %w", err)
	}
	return count > 0, nil
}

func (r *billingRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Billing, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})

	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list billings: %w", err)
	}
	defer cursor.Close(ctx)

	var billings []*models.Billing
	for cursor.Next(ctx) {
		var billing models.Billing
		if err := cursor.Decode(&billing); err != nil {
			continue
		}
		billings = append(billings, &billing)
	}

	return billings, cursor.Err()
}

func (r *billingRepository) SumByUser(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	billings, err := r.ListByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	// Summed in Go rather than an aggregation pipeline: decimal amounts are
	// stored as strings and must not be added as doubles.
	total := decimal.Zero
	for _, b := range billings {
		total = total.Add(b.Monto)
	}

	return total.Round(2), nil
}

// CreateIndexes creates necessary indexes for the billings collection
func (r *billingRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "auction_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "user_id", Value: 1},
				{Key: "numero_documento", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create billing indexes: %w", err)
	}

	return nil
}
