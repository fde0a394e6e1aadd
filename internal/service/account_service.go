package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// AccountService manages users and exposes their derived balances
type AccountService interface {
	CreateUser(ctx context.Context, caller models.Caller, req *CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*models.User, error)
	GetBalance(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*engine.BalanceSnapshot, error)
	ReconcileBalance(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*engine.BalanceSnapshot, error)
	CreateAdjustment(ctx context.Context, caller models.Caller, userID primitive.ObjectID, req *CreateAdjustmentRequest) (*AdjustmentResponse, error)
}

type accountService struct {
	userRepo    repository.UserRepository
	ledger      engine.LedgerEngine
	recon       engine.ReconciliationEngine
	txRunner    engine.TxRunner
	lockManager *repository.UserLockManager
}

func NewAccountService(
	userRepo repository.UserRepository,
	ledger engine.LedgerEngine,
	recon engine.ReconciliationEngine,
	txRunner engine.TxRunner,
	lockManager *repository.UserLockManager,
) AccountService {
	return &accountService{
		userRepo:    userRepo,
		ledger:      ledger,
		recon:       recon,
		txRunner:    txRunner,
		lockManager: lockManager,
	}
}

type CreateUserRequest struct {
	Nombre string `json:"nombre"`
	Email  string `json:"email"`
	Rol    string `json:"rol"`
}

func (s *accountService) CreateUser(ctx context.Context, caller models.Caller, req *CreateUserRequest) (*models.User, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if req.Nombre == "" {
		return nil, apierrors.NewValidation("el nombre es requerido", nil)
	}
	if !strings.Contains(req.Email, "@") {
		return nil, apierrors.NewValidation("email invalido", map[string]interface{}{
			"email": req.Email,
		})
	}
	if req.Rol != models.RolAdmin && req.Rol != models.RolCliente {
		return nil, apierrors.NewValidation("rol invalido", map[string]interface{}{
			"rol": req.Rol,
		})
	}

	if existing, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil && existing != nil {
		return nil, apierrors.NewConflict("el email ya esta registrado")
	}

	user := &models.User{
		Nombre:        req.Nombre,
		Email:         strings.ToLower(req.Email),
		Rol:           req.Rol,
		SaldoTotal:    decimal.Zero,
		SaldoRetenido: decimal.Zero,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID.Hex(),
		"rol":     user.Rol,
	}).Info("User created")

	return user, nil
}

func (s *accountService) GetUser(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*models.User, error) {
	if err := ensureOwnerOrAdmin(caller, userID); err != nil {
		return nil, err
	}
	return s.userRepo.GetByID(ctx, userID)
}

func (s *accountService) GetBalance(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*engine.BalanceSnapshot, error) {
	if userID.IsZero() {
		userID = caller.UserID
	}
	if err := ensureOwnerOrAdmin(caller, userID); err != nil {
		return nil, err
	}
	return s.recon.SaldoDisponible(ctx, userID)
}

// ReconcileBalance forces a cache rebuild from the ledger. An administrative
// repair tool for caches that drifted, for example after a manual data fix.
func (s *accountService) ReconcileBalance(ctx context.Context, caller models.Caller, userID primitive.ObjectID) (*engine.BalanceSnapshot, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockUser(ctx, userID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var snapshot *engine.BalanceSnapshot
	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		snapshot, err = s.recon.Recompute(txCtx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return snapshot, nil
}

type CreateAdjustmentRequest struct {
	Direccion models.MovementDirection `json:"direccion"`
	Monto     decimal.Decimal          `json:"monto"`
	Concepto  string                   `json:"concepto"`
}

type AdjustmentResponse struct {
	Movement *models.Movement        `json:"movement"`
	Balance  *engine.BalanceSnapshot `json:"balance"`
}

// CreateAdjustment appends an already-validated ajuste_manual movement to the
// user's ledger. Corrections go through the ledger like every other balance
// change; the caches are never edited directly.
func (s *accountService) CreateAdjustment(ctx context.Context, caller models.Caller, userID primitive.ObjectID, req *CreateAdjustmentRequest) (*AdjustmentResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if req.Direccion != models.Entrada && req.Direccion != models.Salida {
		return nil, apierrors.NewValidation("direccion invalida", map[string]interface{}{
			"direccion": string(req.Direccion),
		})
	}
	if req.Concepto == "" {
		return nil, apierrors.NewValidation("el ajuste manual requiere un concepto", nil)
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockUser(ctx, userID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	movement := models.NewSystemMovement(userID, req.Direccion, models.KindAjusteManual, req.Monto, req.Concepto)

	var snapshot *engine.BalanceSnapshot
	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Append(txCtx, movement); err != nil {
			return err
		}
		snapshot, err = s.recon.Recompute(txCtx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id":           userID.Hex(),
		"admin_id":          caller.UserID.Hex(),
		"direccion":         movement.Direccion,
		"monto":             movement.Monto.String(),
		"numero_movimiento": movement.NumeroMovimiento,
	}).Info("Manual adjustment applied")

	return &AdjustmentResponse{Movement: movement, Balance: snapshot}, nil
}
