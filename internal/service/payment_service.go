package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// PaymentService handles the guarantee payment workflow: the winning client
// registers a bank deposit, an administrator later validates or rejects it.
type PaymentService interface {
	RegisterPayment(ctx context.Context, caller models.Caller, req *RegisterPaymentRequest) (*RegisterPaymentResponse, error)
	ApprovePayment(ctx context.Context, caller models.Caller, movementID primitive.ObjectID) (*ResolvePaymentResponse, error)
	RejectPayment(ctx context.Context, caller models.Caller, movementID primitive.ObjectID, req *RejectPaymentRequest) (*ResolvePaymentResponse, error)
	GetMovement(ctx context.Context, caller models.Caller, movementID primitive.ObjectID) (*models.Movement, error)
	ListMovements(ctx context.Context, caller models.Caller, req *ListMovementsRequest) (*ListMovementsResponse, error)
}

type paymentService struct {
	auctionRepo   repository.AuctionRepository
	guaranteeRepo repository.GuaranteeRepository
	movementRepo  repository.MovementRepository
	ledger        engine.LedgerEngine
	recon         engine.ReconciliationEngine
	txRunner      engine.TxRunner
	lockManager   *repository.UserLockManager
	notifications NotificationService
}

func NewPaymentService(
	auctionRepo repository.AuctionRepository,
	guaranteeRepo repository.GuaranteeRepository,
	movementRepo repository.MovementRepository,
	ledger engine.LedgerEngine,
	recon engine.ReconciliationEngine,
	txRunner engine.TxRunner,
	lockManager *repository.UserLockManager,
	notifications NotificationService,
) PaymentService {
	return &paymentService{
		auctionRepo:   auctionRepo,
		guaranteeRepo: guaranteeRepo,
		movementRepo:  movementRepo,
		ledger:        ledger,
		recon:         recon,
		txRunner:      txRunner,
		lockManager:   lockManager,
		notifications: notifications,
	}
}

type RegisterPaymentRequest struct {
	AuctionID       primitive.ObjectID `json:"auction_id"`
	Monto           decimal.Decimal    `json:"monto"`
	NumeroOperacion string             `json:"numero_operacion"`
	FechaPago       time.Time          `json:"fecha_pago"`
	ComprobanteURL  string             `json:"comprobante_url,omitempty"`
}

type RegisterPaymentResponse struct {
	Movement *models.Movement `json:"movement"`
	Auction  *models.Auction  `json:"auction"`
}

type RejectPaymentRequest struct {
	Motivo  models.RejectionReason `json:"motivo"`
	Detalle string                 `json:"detalle,omitempty"`
}

type ResolvePaymentResponse struct {
	Movement *models.Movement        `json:"movement"`
	Auction  *models.Auction         `json:"auction"`
	Balance  *engine.BalanceSnapshot `json:"balance,omitempty"`
}

type ListMovementsRequest struct {
	UserID    *primitive.ObjectID  `json:"user_id,omitempty"`
	AuctionID *primitive.ObjectID  `json:"auction_id,omitempty"`
	Tipo      models.MovementKind  `json:"tipo,omitempty"`
	Estado    models.MovementState `json:"estado,omitempty"`
	Limit     int                  `json:"limit,omitempty"`
	Offset    int                  `json:"offset,omitempty"`
}

type ListMovementsResponse struct {
	Movements []*models.Movement `json:"movements"`
	Total     int64              `json:"total"`
}

func (s *paymentService) RegisterPayment(ctx context.Context, caller models.Caller, req *RegisterPaymentRequest) (*RegisterPaymentResponse, error) {
	auction, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	guarantee, err := s.guaranteeRepo.GetActiveWinner(ctx, req.AuctionID)
	if err != nil {
		if apierrors.IsCode(err, apierrors.CodeNotFound) {
			return nil, apierrors.NewConflict("la subasta no tiene ganador asignado")
		}
		return nil, err
	}

	if !caller.IsAdmin() && caller.UserID != guarantee.UserID {
		return nil, apierrors.NewForbidden("solo el ganador asignado puede registrar el pago")
	}

	// en_validacion admits a corrected registration while the previous one is
	// still under review; approval always validates the newest pending payment.
	if auction.Estado != models.AuctionPendiente && auction.Estado != models.AuctionEnValidacion {
		return nil, apierrors.NewConflict(
			"la subasta no admite registro de pago en estado " + string(auction.Estado))
	}

	if req.FechaPago.After(time.Now()) {
		return nil, apierrors.NewValidation("la fecha de pago no puede ser futura", nil)
	}

	if !req.Monto.Equal(guarantee.MontoGarantia) {
		return nil, apierrors.NewValidation("el monto no coincide con la garantia esperada", map[string]interface{}{
			"monto_esperado": guarantee.MontoGarantia.String(),
			"monto_recibido": req.Monto.String(),
		})
	}

	lock, err := s.lockManager.LockUser(ctx, guarantee.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	movement := models.NewPendingPayment(
		guarantee.UserID, auction.ID, guarantee.ID,
		req.Monto, req.NumeroOperacion, req.FechaPago, req.ComprobanteURL)

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.ledger.Append(txCtx, movement); err != nil {
			return err
		}
		if err := auction.Transition(models.AuctionEnValidacion); err != nil {
			return asConflict(err)
		}
		return s.auctionRepo.Update(txCtx, auction)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventPagoRegistrado, guarantee.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"numero_movimiento": movement.NumeroMovimiento,
		"monto":             movement.Monto.String(),
	})

	logrus.WithFields(logrus.Fields{
		"numero_movimiento": movement.NumeroMovimiento,
		"auction_id":        auction.ID.Hex(),
		"user_id":           guarantee.UserID.Hex(),
	}).Info("Guarantee payment registered")

	return &RegisterPaymentResponse{Movement: movement, Auction: auction}, nil
}

func (s *paymentService) ApprovePayment(ctx context.Context, caller models.Caller, movementID primitive.ObjectID) (*ResolvePaymentResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	if movement.Tipo != models.KindPagoGarantia {
		return nil, apierrors.NewConflict("solo los pagos de garantia pasan por validacion")
	}

	if movement.IsResolved() {
		return nil, apierrors.NewAlreadyProcessed("movimiento", movement.NumeroMovimiento)
	}

	lock, err := s.lockManager.LockUser(ctx, movement.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var auction *models.Auction
	var snapshot *engine.BalanceSnapshot

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		// Re-read under the lock: a concurrent resolution may have settled the
		// movement between the pre-check and the lock acquisition.
		movement, err = s.movementRepo.GetByID(txCtx, movementID)
		if err != nil {
			return err
		}
		if err := movement.Aprobar(); err != nil {
			return apierrors.NewAlreadyProcessed("movimiento", movement.NumeroMovimiento)
		}
		if err := s.movementRepo.Update(txCtx, movement); err != nil {
			return err
		}

		auction, err = s.auctionRepo.GetByID(txCtx, *movement.AuctionID)
		if err != nil {
			return err
		}
		if err := auction.Transition(models.AuctionFinalizada); err != nil {
			return asConflict(err)
		}
		if err := s.auctionRepo.Update(txCtx, auction); err != nil {
			return err
		}

		snapshot, err = s.recon.Recompute(txCtx, movement.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventPagoValidado, movement.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"numero_movimiento": movement.NumeroMovimiento,
		"monto":             movement.Monto.String(),
	})

	logrus.WithFields(logrus.Fields{
		"numero_movimiento": movement.NumeroMovimiento,
		"admin_id":          caller.UserID.Hex(),
	}).Info("Guarantee payment approved")

	return &ResolvePaymentResponse{Movement: movement, Auction: auction, Balance: snapshot}, nil
}

func (s *paymentService) RejectPayment(ctx context.Context, caller models.Caller, movementID primitive.ObjectID, req *RejectPaymentRequest) (*ResolvePaymentResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if !models.ValidRejectionReason(req.Motivo) {
		return nil, apierrors.NewValidation("motivo de rechazo invalido", map[string]interface{}{
			"motivo": string(req.Motivo),
		})
	}

	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	if movement.Tipo != models.KindPagoGarantia {
		return nil, apierrors.NewConflict("solo los pagos de garantia pasan por validacion")
	}

	if movement.IsResolved() {
		return nil, apierrors.NewAlreadyProcessed("movimiento", movement.NumeroMovimiento)
	}

	lock, err := s.lockManager.LockUser(ctx, movement.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var auction *models.Auction

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		movement, err = s.movementRepo.GetByID(txCtx, movementID)
		if err != nil {
			return err
		}
		if err := movement.Rechazar(req.Motivo, req.Detalle); err != nil {
			return apierrors.NewAlreadyProcessed("movimiento", movement.NumeroMovimiento)
		}
		if err := s.movementRepo.Update(txCtx, movement); err != nil {
			return err
		}

		// Rejection sends the auction back to pendiente so the winner can
		// register a corrected payment.
		auction, err = s.auctionRepo.GetByID(txCtx, *movement.AuctionID)
		if err != nil {
			return err
		}
		if err := auction.Transition(models.AuctionPendiente); err != nil {
			return asConflict(err)
		}
		return s.auctionRepo.Update(txCtx, auction)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventPagoRechazado, movement.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"numero_movimiento": movement.NumeroMovimiento,
		"motivo":            string(req.Motivo),
	})

	logrus.WithFields(logrus.Fields{
		"numero_movimiento": movement.NumeroMovimiento,
		"motivo":            req.Motivo,
		"admin_id":          caller.UserID.Hex(),
	}).Info("Guarantee payment rejected")

	return &ResolvePaymentResponse{Movement: movement, Auction: auction}, nil
}

func (s *paymentService) GetMovement(ctx context.Context, caller models.Caller, movementID primitive.ObjectID) (*models.Movement, error) {
	movement, err := s.movementRepo.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}

	if err := ensureOwnerOrAdmin(caller, movement.UserID); err != nil {
		return nil, err
	}

	return movement, nil
}

func (s *paymentService) ListMovements(ctx context.Context, caller models.Caller, req *ListMovementsRequest) (*ListMovementsResponse, error) {
	// Clients only see their own ledger; administrators may filter freely.
	if !caller.IsAdmin() {
		req.UserID = &caller.UserID
	}

	movements, total, err := s.movementRepo.List(ctx, repository.MovementFilter{
		UserID:    req.UserID,
		AuctionID: req.AuctionID,
		Tipo:      req.Tipo,
		Estado:    req.Estado,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, err
	}

	return &ListMovementsResponse{Movements: movements, Total: total}, nil
}
