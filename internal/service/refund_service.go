package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// RefundService handles the refund request lifecycle. A request holds its
// amount as retained balance from creation until it is processed, rejected or
// cancelled, so the same funds can never back two concurrent requests.
type RefundService interface {
	CreateRefund(ctx context.Context, caller models.Caller, req *CreateRefundRequest) (*RefundResponse, error)
	ManageRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID, req *ManageRefundRequest) (*RefundResponse, error)
	ProcessRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID, req *ProcessRefundRequest) (*RefundResponse, error)
	CancelRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID) (*RefundResponse, error)
	GetRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID) (*models.Refund, error)
	ListRefunds(ctx context.Context, caller models.Caller, req *ListRefundsRequest) (*ListRefundsResponse, error)
}

type refundService struct {
	refundRepo    repository.RefundRepository
	auctionRepo   repository.AuctionRepository
	userRepo      repository.UserRepository
	ledger        engine.LedgerEngine
	recon         engine.ReconciliationEngine
	txRunner      engine.TxRunner
	lockManager   *repository.UserLockManager
	notifications NotificationService
}

func NewRefundService(
	refundRepo repository.RefundRepository,
	auctionRepo repository.AuctionRepository,
	userRepo repository.UserRepository,
	ledger engine.LedgerEngine,
	recon engine.ReconciliationEngine,
	txRunner engine.TxRunner,
	lockManager *repository.UserLockManager,
	notifications NotificationService,
) RefundService {
	return &refundService{
		refundRepo:    refundRepo,
		auctionRepo:   auctionRepo,
		userRepo:      userRepo,
		ledger:        ledger,
		recon:         recon,
		txRunner:      txRunner,
		lockManager:   lockManager,
		notifications: notifications,
	}
}

// Manage actions
const (
	RefundActionConfirmar = "confirmar"
	RefundActionRechazar  = "rechazar"
)

type CreateRefundRequest struct {
	UserID    primitive.ObjectID  `json:"user_id"`
	Monto     decimal.Decimal     `json:"monto"`
	Tipo      models.RefundType   `json:"tipo"`
	Motivo    string              `json:"motivo"`
	AuctionID *primitive.ObjectID `json:"auction_id,omitempty"`
}

type ManageRefundRequest struct {
	Accion string `json:"accion"`
	Motivo string `json:"motivo,omitempty"`
}

type ProcessRefundRequest struct {
	NumeroTransferencia string `json:"numero_transferencia,omitempty"`
	ComprobanteURL      string `json:"comprobante_url,omitempty"`
}

type RefundResponse struct {
	Refund   *models.Refund          `json:"refund"`
	Movement *models.Movement        `json:"movement,omitempty"`
	Balance  *engine.BalanceSnapshot `json:"balance,omitempty"`
}

type ListRefundsRequest struct {
	UserID *primitive.ObjectID `json:"user_id,omitempty"`
	Estado models.RefundState  `json:"estado,omitempty"`
	Limit  int                 `json:"limit,omitempty"`
	Offset int                 `json:"offset,omitempty"`
}

type ListRefundsResponse struct {
	Refunds []*models.Refund `json:"refunds"`
	Total   int64            `json:"total"`
}

func (s *refundService) CreateRefund(ctx context.Context, caller models.Caller, req *CreateRefundRequest) (*RefundResponse, error) {
	userID := caller.UserID
	if caller.IsAdmin() && !req.UserID.IsZero() {
		userID = req.UserID
	}

	if !models.ValidRefundType(req.Tipo) {
		return nil, apierrors.NewValidation("tipo de reembolso invalido", map[string]interface{}{
			"tipo": string(req.Tipo),
		})
	}

	if req.Monto.LessThanOrEqual(decimal.Zero) || req.Monto.Exponent() < -2 {
		return nil, apierrors.NewValidation("el monto debe ser positivo con maximo 2 decimales", nil)
	}

	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockUser(ctx, userID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	// One request at a time per user: the hold of an unsettled request must
	// resolve before new funds can be asked for.
	inFlight, err := s.refundRepo.GetInFlightByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(inFlight) > 0 {
		return nil, apierrors.NewConflict("el usuario ya tiene un reembolso en curso")
	}

	if req.AuctionID != nil {
		auction, err := s.auctionRepo.GetByID(ctx, *req.AuctionID)
		if err != nil {
			return nil, err
		}
		if !auction.IsRefundable() {
			return nil, apierrors.NewConflict(
				"la subasta no admite reembolsos en estado " + string(auction.Estado))
		}

		coverage, err := s.recon.RefundCoverage(ctx, userID, *req.AuctionID)
		if err != nil {
			return nil, err
		}
		if req.Monto.GreaterThan(coverage) {
			return nil, apierrors.NewValidation("el monto excede la garantia disponible de la subasta", map[string]interface{}{
				"monto_solicitado": req.Monto.String(),
				"monto_disponible": coverage.String(),
			})
		}
	}

	snapshot, err := s.recon.SaldoDisponible(ctx, userID)
	if err != nil {
		return nil, err
	}
	if req.Monto.GreaterThan(snapshot.SaldoDisponible) {
		return nil, apierrors.NewValidation("saldo disponible insuficiente", map[string]interface{}{
			"monto_solicitado": req.Monto.String(),
			"saldo_disponible": snapshot.SaldoDisponible.String(),
		})
	}

	refund := models.NewRefund(userID, req.Monto, req.Tipo, req.Motivo, req.AuctionID)

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.refundRepo.Create(txCtx, refund); err != nil {
			return err
		}
		snapshot, err = s.recon.Recompute(txCtx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventReembolsoCreado, userID.Hex(), auctionHex(refund.AuctionID), map[string]interface{}{
		"refund_id": refund.ID.Hex(),
		"monto":     refund.MontoSolicitado.String(),
		"tipo":      string(refund.Tipo),
	})

	logrus.WithFields(logrus.Fields{
		"refund_id": refund.ID.Hex(),
		"user_id":   userID.Hex(),
		"monto":     refund.MontoSolicitado.String(),
		"tipo":      refund.Tipo,
	}).Info("Refund requested")

	return &RefundResponse{Refund: refund, Balance: snapshot}, nil
}

func (s *refundService) ManageRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID, req *ManageRefundRequest) (*RefundResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}

	if refund.Estado != models.RefundSolicitado {
		return nil, apierrors.NewAlreadyProcessed("reembolso", refund.ID.Hex())
	}

	lock, err := s.lockManager.LockUser(ctx, refund.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var snapshot *engine.BalanceSnapshot
	eventTipo := external.EventReembolsoGestion

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		switch req.Accion {
		case RefundActionConfirmar:
			if err := refund.Confirmar(); err != nil {
				return asConflict(err)
			}
		case RefundActionRechazar:
			if req.Motivo == "" {
				return apierrors.NewValidation("el rechazo de un reembolso requiere un motivo", nil)
			}
			if err := refund.Rechazar(req.Motivo); err != nil {
				return asConflict(err)
			}
		default:
			return apierrors.NewValidation("accion invalida", map[string]interface{}{
				"accion": req.Accion,
			})
		}

		if err := s.refundRepo.Update(txCtx, refund); err != nil {
			return err
		}

		// A rejection releases the hold; a confirmation keeps it.
		snapshot, err = s.recon.Recompute(txCtx, refund.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(eventTipo, refund.UserID.Hex(), auctionHex(refund.AuctionID), map[string]interface{}{
		"refund_id": refund.ID.Hex(),
		"estado":    string(refund.Estado),
	})

	logrus.WithFields(logrus.Fields{
		"refund_id": refund.ID.Hex(),
		"accion":    req.Accion,
		"admin_id":  caller.UserID.Hex(),
	}).Info("Refund managed")

	return &RefundResponse{Refund: refund, Balance: snapshot}, nil
}

func (s *refundService) ProcessRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID, req *ProcessRefundRequest) (*RefundResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}

	if refund.Estado == models.RefundProcesado {
		return nil, apierrors.NewAlreadyProcessed("reembolso", refund.ID.Hex())
	}
	if refund.Estado != models.RefundConfirmado {
		return nil, apierrors.NewConflict(
			"el reembolso debe estar confirmado para procesarse, esta " + string(refund.Estado))
	}

	lock, err := s.lockManager.LockUser(ctx, refund.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var movement *models.Movement
	var snapshot *engine.BalanceSnapshot

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := refund.Procesar(req.NumeroTransferencia, req.ComprobanteURL); err != nil {
			if converted := asConflict(err); converted != err {
				return converted
			}
			return apierrors.NewValidation(err.Error(), nil)
		}
		if err := s.refundRepo.Update(txCtx, refund); err != nil {
			return err
		}

		// devolver_dinero moves money out of the system; mantener_saldo
		// leaves it in place and only consumes the retention.
		direccion := models.Entrada
		concepto := "Reembolso aplicado como saldo disponible"
		if refund.Tipo == models.DevolverDinero {
			direccion = models.Salida
			concepto = "Reembolso transferido, operacion " + refund.NumeroTransferencia
		}

		movement = models.NewSystemMovement(refund.UserID, direccion,
			models.KindReembolso, refund.MontoSolicitado, concepto)
		movement.RefundID = &refund.ID
		movement.AuctionID = refund.AuctionID
		if err := s.ledger.Append(txCtx, movement); err != nil {
			return err
		}

		snapshot, err = s.recon.Recompute(txCtx, refund.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventReembolsoProcesado, refund.UserID.Hex(), auctionHex(refund.AuctionID), map[string]interface{}{
		"refund_id": refund.ID.Hex(),
		"monto":     refund.MontoSolicitado.String(),
		"tipo":      string(refund.Tipo),
	})

	logrus.WithFields(logrus.Fields{
		"refund_id": refund.ID.Hex(),
		"tipo":      refund.Tipo,
		"monto":     refund.MontoSolicitado.String(),
		"admin_id":  caller.UserID.Hex(),
	}).Info("Refund processed")

	return &RefundResponse{Refund: refund, Movement: movement, Balance: snapshot}, nil
}

func (s *refundService) CancelRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID) (*RefundResponse, error) {
	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}

	if err := ensureOwnerOrAdmin(caller, refund.UserID); err != nil {
		return nil, err
	}

	if !refund.IsInFlight() {
		return nil, apierrors.NewAlreadyProcessed("reembolso", refund.ID.Hex())
	}

	lock, err := s.lockManager.LockUser(ctx, refund.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var snapshot *engine.BalanceSnapshot

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := refund.Cancelar(); err != nil {
			return asConflict(err)
		}
		if err := s.refundRepo.Update(txCtx, refund); err != nil {
			return err
		}
		snapshot, err = s.recon.Recompute(txCtx, refund.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventReembolsoGestion, refund.UserID.Hex(), auctionHex(refund.AuctionID), map[string]interface{}{
		"refund_id": refund.ID.Hex(),
		"estado":    string(refund.Estado),
	})

	return &RefundResponse{Refund: refund, Balance: snapshot}, nil
}

func (s *refundService) GetRefund(ctx context.Context, caller models.Caller, refundID primitive.ObjectID) (*models.Refund, error) {
	refund, err := s.refundRepo.GetByID(ctx, refundID)
	if err != nil {
		return nil, err
	}

	if err := ensureOwnerOrAdmin(caller, refund.UserID); err != nil {
		return nil, err
	}

	return refund, nil
}

func (s *refundService) ListRefunds(ctx context.Context, caller models.Caller, req *ListRefundsRequest) (*ListRefundsResponse, error) {
	userID := caller.UserID
	if caller.IsAdmin() && req.UserID != nil {
		userID = *req.UserID
	}

	refunds, total, err := s.refundRepo.ListByUser(ctx, userID, req.Estado, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	return &ListRefundsResponse{Refunds: refunds, Total: total}, nil
}

func auctionHex(id *primitive.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}
