package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

type accountFixture struct {
	userRepo *MockUserRepository
	ledger   *MockLedgerEngine
	recon    *MockReconciliationEngine
	service  AccountService
}

func newAccountFixture() *accountFixture {
	f := &accountFixture{
		userRepo: new(MockUserRepository),
		ledger:   new(MockLedgerEngine),
		recon:    new(MockReconciliationEngine),
	}
	f.service = NewAccountService(f.userRepo, f.ledger, f.recon, engine.NoopTxRunner{}, openLockManager())
	return f
}

func TestAccountService_CreateUser(t *testing.T) {
	ctx := context.Background()

	validRequest := func() *CreateUserRequest {
		return &CreateUserRequest{
			Nombre: "Maria Quispe",
			Email:  "Maria.Quispe@example.com",
			Rol:    models.RolCliente,
		}
	}

	t.Run("creates a client with zero balances", func(t *testing.T) {
		f := newAccountFixture()
		f.userRepo.On("GetByEmail", ctx, "Maria.Quispe@example.com").Return(
			nil, apierrors.NewNotFound("usuario", ""))
		f.userRepo.On("Create", ctx, mock.AnythingOfType("*models.User")).Return(nil)

		user, err := f.service.CreateUser(ctx, adminCaller(), validRequest())

		assert.NoError(t, err)
		assert.Equal(t, "maria.quispe@example.com", user.Email)
		assert.True(t, user.SaldoTotal.IsZero())
		assert.True(t, user.SaldoRetenido.IsZero())
	})

	t.Run("duplicate email", func(t *testing.T) {
		f := newAccountFixture()
		f.userRepo.On("GetByEmail", ctx, mock.Anything).Return(
			&models.User{ID: primitive.NewObjectID()}, nil)

		_, err := f.service.CreateUser(ctx, adminCaller(), validRequest())

		assert.True(t, apierrors.IsCode(err, apierrors.CodeConflict))
	})

	t.Run("invalid email and rol", func(t *testing.T) {
		f := newAccountFixture()

		req := validRequest()
		req.Email = "sin-arroba"
		_, err := f.service.CreateUser(ctx, adminCaller(), req)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))

		req = validRequest()
		req.Rol = "supervisor"
		_, err = f.service.CreateUser(ctx, adminCaller(), req)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))
	})

	t.Run("clients cannot create users", func(t *testing.T) {
		f := newAccountFixture()

		_, err := f.service.CreateUser(ctx, clientCaller(primitive.NewObjectID()), validRequest())

		assert.True(t, apierrors.IsCode(err, apierrors.CodeForbidden))
	})
}

func TestAccountService_GetBalance(t *testing.T) {
	ctx := context.Background()
	userID := primitive.NewObjectID()

	t.Run("owner reads its balance", func(t *testing.T) {
		f := newAccountFixture()
		f.recon.On("SaldoDisponible", ctx, userID).Return(&engine.BalanceSnapshot{
			UserID:          userID,
			SaldoTotal:      decimal.RequireFromString("680.00"),
			SaldoRetenido:   decimal.RequireFromString("680.00"),
			SaldoDisponible: decimal.Zero,
		}, nil)

		snapshot, err := f.service.GetBalance(ctx, clientCaller(userID), userID)

		assert.NoError(t, err)
		assertBalanceEquals(t, "680.00", snapshot.SaldoTotal)
	})

	t.Run("zero id defaults to the caller", func(t *testing.T) {
		f := newAccountFixture()
		f.recon.On("SaldoDisponible", ctx, userID).Return(&engine.BalanceSnapshot{UserID: userID}, nil)

		_, err := f.service.GetBalance(ctx, clientCaller(userID), primitive.NilObjectID)

		assert.NoError(t, err)
		f.recon.AssertExpectations(t)
	})

	t.Run("clients cannot read other balances", func(t *testing.T) {
		f := newAccountFixture()

		_, err := f.service.GetBalance(ctx, clientCaller(primitive.NewObjectID()), userID)

		assert.True(t, apierrors.IsCode(err, apierrors.CodeForbidden))
	})
}

func TestAccountService_ReconcileBalance(t *testing.T) {
	ctx := context.Background()
	userID := primitive.NewObjectID()

	t.Run("admin forces a cache rebuild", func(t *testing.T) {
		f := newAccountFixture()
		f.userRepo.On("GetByID", ctx, userID).Return(&models.User{ID: userID}, nil)
		f.recon.On("Recompute", ctx, userID).Return(&engine.BalanceSnapshot{UserID: userID}, nil)

		snapshot, err := f.service.ReconcileBalance(ctx, adminCaller(), userID)

		assert.NoError(t, err)
		assert.Equal(t, userID, snapshot.UserID)
	})

	t.Run("clients cannot reconcile", func(t *testing.T) {
		f := newAccountFixture()

		_, err := f.service.ReconcileBalance(ctx, clientCaller(userID), userID)

		assert.True(t, apierrors.IsCode(err, apierrors.CodeForbidden))
	})
}

func TestAccountService_CreateAdjustment(t *testing.T) {
	ctx := context.Background()
	userID := primitive.NewObjectID()

	validRequest := func() *CreateAdjustmentRequest {
		return &CreateAdjustmentRequest{
			Direccion: models.Entrada,
			Monto:     decimal.RequireFromString("150.00"),
			Concepto:  "Correccion de deposito mal registrado",
		}
	}

	t.Run("appends a validated adjustment and recomputes", func(t *testing.T) {
		f := newAccountFixture()
		f.userRepo.On("GetByID", ctx, userID).Return(&models.User{ID: userID}, nil)
		f.ledger.On("Append", ctx, mock.MatchedBy(func(m *models.Movement) bool {
			return m.Tipo == models.KindAjusteManual &&
				m.Direccion == models.Entrada &&
				m.Estado == models.MovementValidado &&
				m.Monto.Equal(decimal.RequireFromString("150.00"))
		})).Return(nil)
		f.recon.On("Recompute", ctx, userID).Return(&engine.BalanceSnapshot{UserID: userID}, nil)

		resp, err := f.service.CreateAdjustment(ctx, adminCaller(), userID, validRequest())

		assert.NoError(t, err)
		assert.Equal(t, models.MovementValidado, resp.Movement.Estado)
		f.ledger.AssertExpectations(t)
		f.recon.AssertExpectations(t)
	})

	t.Run("direccion and concepto are validated", func(t *testing.T) {
		f := newAccountFixture()

		req := validRequest()
		req.Direccion = "lateral"
		_, err := f.service.CreateAdjustment(ctx, adminCaller(), userID, req)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))

		req = validRequest()
		req.Concepto = ""
		_, err = f.service.CreateAdjustment(ctx, adminCaller(), userID, req)
		assert.True(t, apierrors.IsCode(err, apierrors.CodeValidation))
	})

	t.Run("clients cannot adjust balances", func(t *testing.T) {
		f := newAccountFixture()

		_, err := f.service.CreateAdjustment(ctx, clientCaller(userID), userID, validRequest())

		assert.True(t, apierrors.IsCode(err, apierrors.CodeForbidden))
	})
}
