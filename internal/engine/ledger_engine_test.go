package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

func TestLedgerEngine_Append(t *testing.T) {
	ctx := context.Background()
	userID := primitive.NewObjectID()
	auctionID := primitive.NewObjectID()
	guaranteeID := primitive.NewObjectID()

	newPayment := func() *models.Movement {
		return models.NewPendingPayment(userID, auctionID, guaranteeID,
			decimal.RequireFromString("680.00"), "OP-12345", time.Now().Add(-time.Hour), "")
	}

	t.Run("appends a valid payment", func(t *testing.T) {
		repo := new(MockMovementRepository)
		repo.On("ExistsOperacion", ctx, userID, "OP-12345").Return(false, nil)
		repo.On("Create", ctx, mock.AnythingOfType("*models.Movement")).Return(nil)

		err := NewLedgerEngine(repo).Append(ctx, newPayment())

		assert.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("rejects duplicate operation number", func(t *testing.T) {
		repo := new(MockMovementRepository)
		repo.On("ExistsOperacion", ctx, userID, "OP-12345").Return(true, nil)

		err := NewLedgerEngine(repo).Append(ctx, newPayment())

		assert.Error(t, err)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeConflict))
		repo.AssertNotCalled(t, "Create", ctx, mock.Anything)
	})

	t.Run("rejects structurally invalid movement", func(t *testing.T) {
		repo := new(MockMovementRepository)

		m := newPayment()
		m.Monto = decimal.Zero
		err := NewLedgerEngine(repo).Append(ctx, m)

		assert.Error(t, err)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))
		repo.AssertNotCalled(t, "Create", ctx, mock.Anything)
	})

	t.Run("system movements skip the duplicate check", func(t *testing.T) {
		repo := new(MockMovementRepository)
		repo.On("Create", ctx, mock.AnythingOfType("*models.Movement")).Return(nil)

		m := models.NewSystemMovement(userID, models.Salida, models.KindPenalidad,
			decimal.RequireFromString("680.00"), "penalidad por no completar la compra")
		err := NewLedgerEngine(repo).Append(ctx, m)

		assert.NoError(t, err)
		repo.AssertNotCalled(t, "ExistsOperacion", ctx, mock.Anything, mock.Anything)
	})
}
