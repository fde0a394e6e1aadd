package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
)

type MockAuctionRepository struct {
	mock.Mock
}

func (m *MockAuctionRepository) Create(ctx context.Context, auction *models.Auction) error {
	args := m.Called(ctx, auction)
	return args.Error(0)
}

func (m *MockAuctionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Auction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Auction), args.Error(1)
}

func (m *MockAuctionRepository) GetByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*models.Auction, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Auction), args.Error(1)
}

func (m *MockAuctionRepository) Update(ctx context.Context, auction *models.Auction) error {
	args := m.Called(ctx, auction)
	return args.Error(0)
}

func (m *MockAuctionRepository) TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.AuctionState, extra bson.M) (bool, error) {
	args := m.Called(ctx, id, from, to, extra)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuctionRepository) GetExpired(ctx context.Context, now time.Time, limit int) ([]*models.Auction, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Auction), args.Error(1)
}

type MockGuaranteeRepository struct {
	mock.Mock
}

func (m *MockGuaranteeRepository) Create(ctx context.Context, guarantee *models.Guarantee) error {
	args := m.Called(ctx, guarantee)
	return args.Error(0)
}

func (m *MockGuaranteeRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Guarantee, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guarantee), args.Error(1)
}

func (m *MockGuaranteeRepository) GetActiveWinner(ctx context.Context, auctionID primitive.ObjectID) (*models.Guarantee, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Guarantee), args.Error(1)
}

func (m *MockGuaranteeRepository) Update(ctx context.Context, guarantee *models.Guarantee) error {
	args := m.Called(ctx, guarantee)
	return args.Error(0)
}

func (m *MockGuaranteeRepository) TransitionEstado(ctx context.Context, id primitive.ObjectID, from, to models.GuaranteeState, motivo string) (bool, error) {
	args := m.Called(ctx, id, from, to, motivo)
	return args.Bool(0), args.Error(1)
}

func (m *MockGuaranteeRepository) GetByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Guarantee, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Guarantee), args.Error(1)
}

type MockMovementRepository struct {
	mock.Mock
}

func (m *MockMovementRepository) Create(ctx context.Context, movement *models.Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

func (m *MockMovementRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Movement, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Movement), args.Error(1)
}

func (m *MockMovementRepository) Update(ctx context.Context, movement *models.Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

func (m *MockMovementRepository) ExistsOperacion(ctx context.Context, userID primitive.ObjectID, numeroOperacion string) (bool, error) {
	args := m.Called(ctx, userID, numeroOperacion)
	return args.Bool(0), args.Error(1)
}

func (m *MockMovementRepository) GetValidatedByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Movement, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Movement), args.Error(1)
}

func (m *MockMovementRepository) GetValidatedByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) ([]*models.Movement, error) {
	args := m.Called(ctx, userID, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Movement), args.Error(1)
}

func (m *MockMovementRepository) GetPendingByAuction(ctx context.Context, auctionID primitive.ObjectID) ([]*models.Movement, error) {
	args := m.Called(ctx, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Movement), args.Error(1)
}

func (m *MockMovementRepository) List(ctx context.Context, filter repository.MovementFilter) ([]*models.Movement, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Movement), args.Get(1).(int64), args.Error(2)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) UpdateSaldos(ctx context.Context, id primitive.ObjectID, saldoTotal, saldoRetenido decimal.Decimal) error {
	args := m.Called(ctx, id, saldoTotal, saldoRetenido)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateSaldoTotal(ctx context.Context, id primitive.ObjectID, saldoTotal decimal.Decimal) error {
	args := m.Called(ctx, id, saldoTotal)
	return args.Error(0)
}

func (m *MockUserRepository) UpdateSaldoRetenido(ctx context.Context, id primitive.ObjectID, saldoRetenido decimal.Decimal) error {
	args := m.Called(ctx, id, saldoRetenido)
	return args.Error(0)
}

type MockRefundRepository struct {
	mock.Mock
}

func (m *MockRefundRepository) Create(ctx context.Context, refund *models.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Refund, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Refund), args.Error(1)
}

func (m *MockRefundRepository) Update(ctx context.Context, refund *models.Refund) error {
	args := m.Called(ctx, refund)
	return args.Error(0)
}

func (m *MockRefundRepository) GetInFlightByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Refund, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Refund), args.Error(1)
}

func (m *MockRefundRepository) ListByUser(ctx context.Context, userID primitive.ObjectID, estado models.RefundState, limit, offset int) ([]*models.Refund, int64, error) {
	args := m.Called(ctx, userID, estado, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Refund), args.Get(1).(int64), args.Error(2)
}

type MockBillingRepository struct {
	mock.Mock
}

func (m *MockBillingRepository) Create(ctx context.Context, billing *models.Billing) error {
	args := m.Called(ctx, billing)
	return args.Error(0)
}

func (m *MockBillingRepository) GetByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (*models.Billing, error) {
	args := m.Called(ctx, userID, auctionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Billing), args.Error(1)
}

func (m *MockBillingRepository) ExistsByAuction(ctx context.Context, userID, auctionID primitive.ObjectID) (bool, error) {
	args := m.Called(ctx, userID, auctionID)
	return args.Bool(0), args.Error(1)
}

func (m *MockBillingRepository) ExistsByDocument(ctx context.Context, userID primitive.ObjectID, numeroDocumento string) (bool, error) {
	args := m.Called(ctx, userID, numeroDocumento)
	return args.Bool(0), args.Error(1)
}

func (m *MockBillingRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]*models.Billing, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Billing), args.Error(1)
}

func (m *MockBillingRepository) SumByUser(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockLockRepository struct {
	mock.Mock
}

func (m *MockLockRepository) AcquireLock(ctx context.Context, key string, ttl time.Duration) (*repository.DistributedLock, error) {
	args := m.Called(ctx, key, ttl)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.DistributedLock), args.Error(1)
}

func (m *MockLockRepository) ReleaseLock(ctx context.Context, lock *repository.DistributedLock) error {
	args := m.Called(ctx, lock)
	return args.Error(0)
}

func (m *MockLockRepository) ExtendLock(ctx context.Context, lock *repository.DistributedLock, ttl time.Duration) error {
	args := m.Called(ctx, lock, ttl)
	return args.Error(0)
}

func (m *MockLockRepository) IsLocked(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type MockLedgerEngine struct {
	mock.Mock
}

func (m *MockLedgerEngine) Append(ctx context.Context, movement *models.Movement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

type MockReconciliationEngine struct {
	mock.Mock
}

func (m *MockReconciliationEngine) RecomputeTotal(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockReconciliationEngine) RecomputeRetained(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockReconciliationEngine) Recompute(ctx context.Context, userID primitive.ObjectID) (*engine.BalanceSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.BalanceSnapshot), args.Error(1)
}

func (m *MockReconciliationEngine) SaldoDisponible(ctx context.Context, userID primitive.ObjectID) (*engine.BalanceSnapshot, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*engine.BalanceSnapshot), args.Error(1)
}

func (m *MockReconciliationEngine) RefundCoverage(ctx context.Context, userID, auctionID primitive.ObjectID) (decimal.Decimal, error) {
	args := m.Called(ctx, userID, auctionID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// openLockManager returns a lock manager whose locks always succeed.
func openLockManager() *repository.UserLockManager {
	lockRepo := new(MockLockRepository)
	lockRepo.On("AcquireLock", mock.Anything, mock.Anything, mock.Anything).
		Return(&repository.DistributedLock{Key: "lock:test", Value: "test"}, nil)
	lockRepo.On("ReleaseLock", mock.Anything, mock.Anything).Return(nil)
	return repository.NewUserLockManager(lockRepo, time.Second)
}

func testNotifications() NotificationService {
	return NewNotificationService(external.NoopNotifier{})
}

func adminCaller() models.Caller {
	return models.Caller{UserID: primitive.NewObjectID(), Rol: models.RolAdmin}
}

func clientCaller(id primitive.ObjectID) models.Caller {
	return models.Caller{UserID: id, Rol: models.RolCliente}
}
