package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/config"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// WinnerService manages auctions and their winner guarantees: assignment,
// reassignment, payment deadline expiration and external competition results.
type WinnerService interface {
	CreateAuction(ctx context.Context, caller models.Caller, req *CreateAuctionRequest) (*models.Auction, error)
	GetAuction(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID) (*AuctionDetailResponse, error)
	AssignWinner(ctx context.Context, caller models.Caller, req *AssignWinnerRequest) (*AssignWinnerResponse, error)
	ReassignWinner(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID, req *ReassignWinnerRequest) (*AssignWinnerResponse, error)
	ExpireOverdueAuctions(ctx context.Context) (*SweepResult, error)
	RecordCompetitionResult(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID, req *CompetitionResultRequest) (*CompetitionResultResponse, error)
}

type winnerService struct {
	auctionRepo   repository.AuctionRepository
	guaranteeRepo repository.GuaranteeRepository
	userRepo      repository.UserRepository
	movementRepo  repository.MovementRepository
	ledger        engine.LedgerEngine
	recon         engine.ReconciliationEngine
	txRunner      engine.TxRunner
	lockManager   *repository.UserLockManager
	notifications NotificationService
	cfg           *config.Config
}

func NewWinnerService(
	auctionRepo repository.AuctionRepository,
	guaranteeRepo repository.GuaranteeRepository,
	userRepo repository.UserRepository,
	movementRepo repository.MovementRepository,
	ledger engine.LedgerEngine,
	recon engine.ReconciliationEngine,
	txRunner engine.TxRunner,
	lockManager *repository.UserLockManager,
	notifications NotificationService,
	cfg *config.Config,
) WinnerService {
	return &winnerService{
		auctionRepo:   auctionRepo,
		guaranteeRepo: guaranteeRepo,
		userRepo:      userRepo,
		movementRepo:  movementRepo,
		ledger:        ledger,
		recon:         recon,
		txRunner:      txRunner,
		lockManager:   lockManager,
		notifications: notifications,
		cfg:           cfg,
	}
}

type CreateAuctionRequest struct {
	DescripcionBien string `json:"descripcion_bien"`
	PlacaBien       string `json:"placa_bien,omitempty"`
}

type AuctionDetailResponse struct {
	Auction    *models.Auction     `json:"auction"`
	Guarantees []*models.Guarantee `json:"guarantees,omitempty"`
}

type AssignWinnerRequest struct {
	AuctionID       primitive.ObjectID `json:"auction_id"`
	UserID          primitive.ObjectID `json:"user_id"`
	MontoOferta     decimal.Decimal    `json:"monto_oferta"`
	FechaLimitePago *time.Time         `json:"fecha_limite_pago,omitempty"`
}

type AssignWinnerResponse struct {
	Auction   *models.Auction   `json:"auction"`
	Guarantee *models.Guarantee `json:"guarantee"`
}

type ReassignWinnerRequest struct {
	UserID          primitive.ObjectID `json:"user_id"`
	MontoOferta     decimal.Decimal    `json:"monto_oferta"`
	Motivo          string             `json:"motivo"`
	FechaLimitePago *time.Time         `json:"fecha_limite_pago,omitempty"`
}

type CompetitionResultRequest struct {
	Resultado models.AuctionState `json:"resultado"`
}

type CompetitionResultResponse struct {
	Auction   *models.Auction   `json:"auction"`
	Guarantee *models.Guarantee `json:"guarantee"`
	// Movement is the ledger entry produced by the result: a guarantee
	// release on perdida or a penalty on penalizada. Nil for ganada.
	Movement *models.Movement        `json:"movement,omitempty"`
	Balance  *engine.BalanceSnapshot `json:"balance,omitempty"`
}

// SweepResult summarizes one expiration sweep run
type SweepResult struct {
	Found     int       `json:"found"`
	Processed int       `json:"processed"`
	Skipped   int       `json:"skipped"`
	Errored   int       `json:"errored"`
	SweptAt   time.Time `json:"swept_at"`
}

func (s *winnerService) CreateAuction(ctx context.Context, caller models.Caller, req *CreateAuctionRequest) (*models.Auction, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if req.DescripcionBien == "" {
		return nil, apierrors.NewValidation("la descripcion del bien es requerida", nil)
	}

	auction := models.NewAuction(req.DescripcionBien, req.PlacaBien)
	if err := s.auctionRepo.Create(ctx, auction); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"auction_id": auction.ID.Hex(),
		"admin_id":   caller.UserID.Hex(),
	}).Info("Auction created")

	return auction, nil
}

func (s *winnerService) GetAuction(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID) (*AuctionDetailResponse, error) {
	auction, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	resp := &AuctionDetailResponse{Auction: auction}

	if caller.IsAdmin() {
		guarantees, err := s.guaranteeRepo.GetByAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		resp.Guarantees = guarantees
	}

	return resp, nil
}

func (s *winnerService) AssignWinner(ctx context.Context, caller models.Caller, req *AssignWinnerRequest) (*AssignWinnerResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if err := validateOffer(req.MontoOferta); err != nil {
		return nil, err
	}

	auction, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if auction.Estado != models.AuctionActiva {
		return nil, apierrors.NewConflict(
			"la subasta ya tiene ganador o no admite asignacion en estado " + string(auction.Estado))
	}

	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockAuction(ctx, auction.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	guarantee := models.NewWinnerGuarantee(auction.ID, req.UserID, req.MontoOferta)
	deadline := s.paymentDeadline(req.FechaLimitePago)

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.guaranteeRepo.Create(txCtx, guarantee); err != nil {
			return err
		}
		auction.MontoOferta = req.MontoOferta.Round(2)
		auction.GarantiaActualID = &guarantee.ID
		auction.FechaLimitePago = &deadline
		if err := auction.Transition(models.AuctionPendiente); err != nil {
			return asConflict(err)
		}
		return s.auctionRepo.Update(txCtx, auction)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventGanadorAsignado, req.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"monto_oferta":      guarantee.MontoOferta.String(),
		"monto_garantia":    guarantee.MontoGarantia.String(),
		"fecha_limite_pago": deadline.Format(time.RFC3339),
	})

	logrus.WithFields(logrus.Fields{
		"auction_id":     auction.ID.Hex(),
		"user_id":        req.UserID.Hex(),
		"monto_garantia": guarantee.MontoGarantia.String(),
	}).Info("Winner assigned")

	return &AssignWinnerResponse{Auction: auction, Guarantee: guarantee}, nil
}

func (s *winnerService) ReassignWinner(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID, req *ReassignWinnerRequest) (*AssignWinnerResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	if req.Motivo == "" {
		return nil, apierrors.NewValidation("la reasignacion requiere un motivo", nil)
	}

	if err := validateOffer(req.MontoOferta); err != nil {
		return nil, err
	}

	auction, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.Estado != models.AuctionPendiente &&
		auction.Estado != models.AuctionEnValidacion &&
		auction.Estado != models.AuctionVencida {
		return nil, apierrors.NewConflict(
			"la subasta no admite reasignacion en estado " + string(auction.Estado))
	}

	current, err := s.guaranteeRepo.GetActiveWinner(ctx, auctionID)
	if err != nil {
		if !apierrors.IsCode(err, apierrors.CodeNotFound) {
			return nil, err
		}
		// The expiration sweep already displaced the winner of a vencida
		// auction; the previous guarantee is still needed to validate the
		// replacement and trace who is being replaced.
		if auction.GarantiaActualID == nil {
			return nil, apierrors.NewConflict("la subasta no tiene ganador que reasignar")
		}
		current, err = s.guaranteeRepo.GetByID(ctx, *auction.GarantiaActualID)
		if err != nil {
			return nil, err
		}
	}

	if current.UserID == req.UserID {
		return nil, apierrors.NewConflict("el nuevo ganador es el mismo usuario actual")
	}

	if _, err := s.userRepo.GetByID(ctx, req.UserID); err != nil {
		return nil, err
	}

	lock, err := s.lockManager.LockAuction(ctx, auction.ID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	guarantee := models.NewWinnerGuarantee(auction.ID, req.UserID, req.MontoOferta)
	deadline := s.paymentDeadline(req.FechaLimitePago)

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if current.Estado == models.GuaranteeActiva {
			displaced, err := s.guaranteeRepo.TransitionEstado(txCtx,
				current.ID, models.GuaranteeActiva, models.GuaranteePerdedora, req.Motivo)
			if err != nil {
				return err
			}
			if !displaced {
				return apierrors.NewConflict("el ganador actual ya fue desplazado")
			}
		}

		// Payments of the displaced winner still awaiting validation can no
		// longer be approved against this auction.
		pending, err := s.movementRepo.GetPendingByAuction(txCtx, auction.ID)
		if err != nil {
			return err
		}
		for _, m := range pending {
			if err := m.Rechazar(models.RechazoOtro, "reasignacion de ganador: "+req.Motivo); err != nil {
				return asConflict(err)
			}
			if err := s.movementRepo.Update(txCtx, m); err != nil {
				return err
			}
		}

		if err := s.guaranteeRepo.Create(txCtx, guarantee); err != nil {
			return err
		}

		auction.MontoOferta = req.MontoOferta.Round(2)
		auction.GarantiaActualID = &guarantee.ID
		auction.FechaLimitePago = &deadline
		if err := auction.Transition(models.AuctionPendiente); err != nil {
			return asConflict(err)
		}
		return s.auctionRepo.Update(txCtx, auction)
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventGanadorReasignado, req.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"usuario_anterior": current.UserID.Hex(),
		"motivo":           req.Motivo,
		"monto_garantia":   guarantee.MontoGarantia.String(),
	})

	logrus.WithFields(logrus.Fields{
		"auction_id":  auction.ID.Hex(),
		"new_user_id": req.UserID.Hex(),
		"old_user_id": current.UserID.Hex(),
		"motivo":      req.Motivo,
	}).Info("Winner reassigned")

	return &AssignWinnerResponse{Auction: auction, Guarantee: guarantee}, nil
}

// ExpireOverdueAuctions moves auctions past their payment deadline from
// pendiente to vencida and displaces their winner guarantees to perdedora.
// Row failures are counted, never fatal, and rows already transitioned by a
// concurrent run are skipped, so the sweep can run repeatedly over the same
// instant without side effects.
func (s *winnerService) ExpireOverdueAuctions(ctx context.Context) (*SweepResult, error) {
	now := time.Now()

	auctions, err := s.auctionRepo.GetExpired(ctx, now, s.cfg.Jobs.SweepBatchSize)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Found: len(auctions), SweptAt: now}

	for _, auction := range auctions {
		ok, err := s.auctionRepo.TransitionEstado(ctx,
			auction.ID, models.AuctionPendiente, models.AuctionVencida, bson.M{})
		if err != nil {
			result.Errored++
			logrus.WithError(err).WithField("auction_id", auction.ID.Hex()).
				Error("Failed to expire auction")
			continue
		}
		if !ok {
			result.Skipped++
			continue
		}
		result.Processed++

		if winner, werr := s.guaranteeRepo.GetActiveWinner(ctx, auction.ID); werr == nil {
			if _, gerr := s.guaranteeRepo.TransitionEstado(ctx, winner.ID,
				models.GuaranteeActiva, models.GuaranteePerdedora, "vencimiento del plazo de pago"); gerr != nil {
				result.Errored++
				logrus.WithError(gerr).WithField("auction_id", auction.ID.Hex()).
					Error("Failed to displace the overdue winner")
			}
			s.notifications.Emit(external.EventSubastaVencida, winner.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
				"fecha_limite_pago": auction.FechaLimitePago,
			})
		}
	}

	logrus.WithFields(logrus.Fields{
		"found":     result.Found,
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"errored":   result.Errored,
	}).Info("Expiration sweep completed")

	return result, nil
}

func (s *winnerService) RecordCompetitionResult(ctx context.Context, caller models.Caller, auctionID primitive.ObjectID, req *CompetitionResultRequest) (*CompetitionResultResponse, error) {
	if err := ensureAdmin(caller); err != nil {
		return nil, err
	}

	switch req.Resultado {
	case models.AuctionGanada, models.AuctionPerdida, models.AuctionPenalizada:
	default:
		return nil, apierrors.NewValidation("resultado de competencia invalido", map[string]interface{}{
			"resultado": string(req.Resultado),
		})
	}

	auction, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	if auction.IsTerminal() || auction.Estado == models.AuctionGanada {
		return nil, apierrors.NewAlreadyProcessed("resultado de la subasta", auction.ID.Hex())
	}

	guarantee, err := s.guaranteeRepo.GetActiveWinner(ctx, auctionID)
	if err != nil {
		if apierrors.IsCode(err, apierrors.CodeNotFound) {
			return nil, apierrors.NewConflict("la subasta no tiene ganador activo")
		}
		return nil, err
	}

	lock, err := s.lockManager.LockUser(ctx, guarantee.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	var movement *models.Movement
	var snapshot *engine.BalanceSnapshot

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := auction.Transition(req.Resultado); err != nil {
			return asConflict(err)
		}
		now := time.Now()
		auction.FechaResultado = &now
		if err := s.auctionRepo.Update(txCtx, auction); err != nil {
			return err
		}

		guaranteeState := models.GuaranteePerdedora
		if req.Resultado == models.AuctionGanada {
			guaranteeState = models.GuaranteeGanadora
		}
		if err := guarantee.Transition(guaranteeState); err != nil {
			return asConflict(err)
		}
		if err := s.guaranteeRepo.Update(txCtx, guarantee); err != nil {
			return err
		}

		// perdida releases the retention through a ledger entry rather than a
		// cache write: the entrada/reembolso movement subtracts from the
		// retained sum and precedes the client's explicit refund request.
		switch req.Resultado {
		case models.AuctionPerdida:
			movement = models.NewSystemMovement(guarantee.UserID, models.Entrada,
				models.KindReembolso, guarantee.MontoGarantia,
				"Liberacion de garantia por subasta perdida "+auction.DescripcionBien)
		case models.AuctionPenalizada:
			movement = models.NewSystemMovement(guarantee.UserID, models.Salida,
				models.KindPenalidad, guarantee.MontoGarantia,
				"Penalidad por incumplimiento en subasta "+auction.DescripcionBien)
		}
		if movement != nil {
			movement.AuctionID = &auction.ID
			movement.GuaranteeID = &guarantee.ID
			if err := s.ledger.Append(txCtx, movement); err != nil {
				return err
			}
		}

		snapshot, err = s.recon.Recompute(txCtx, guarantee.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventResultadoCompeten, guarantee.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"resultado": string(req.Resultado),
	})

	logrus.WithFields(logrus.Fields{
		"auction_id": auction.ID.Hex(),
		"resultado":  req.Resultado,
		"user_id":    guarantee.UserID.Hex(),
	}).Info("Competition result recorded")

	return &CompetitionResultResponse{
		Auction:   auction,
		Guarantee: guarantee,
		Movement:  movement,
		Balance:   snapshot,
	}, nil
}

func (s *winnerService) paymentDeadline(requested *time.Time) time.Time {
	if requested != nil {
		return *requested
	}
	return time.Now().Add(time.Duration(s.cfg.Business.PaymentDeadlineHours) * time.Hour)
}

func validateOffer(offer decimal.Decimal) error {
	if offer.LessThanOrEqual(decimal.Zero) {
		return apierrors.NewValidation("el monto de oferta debe ser positivo", nil)
	}
	if offer.Exponent() < -2 {
		return apierrors.NewValidation("el monto de oferta debe tener como maximo 2 decimales", nil)
	}
	return nil
}
