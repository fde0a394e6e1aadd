package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/engine"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/external"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// BillingService converts a won auction's guarantee into an invoiced amount.
// Billing is terminal for the auction and permanently applies the funds: they
// leave the available balance without a ledger outflow.
type BillingService interface {
	CreateBilling(ctx context.Context, caller models.Caller, req *CreateBillingRequest) (*BillingResponse, error)
	ListBillings(ctx context.Context, caller models.Caller, userID primitive.ObjectID) ([]*models.Billing, error)
}

type billingService struct {
	billingRepo   repository.BillingRepository
	auctionRepo   repository.AuctionRepository
	guaranteeRepo repository.GuaranteeRepository
	recon         engine.ReconciliationEngine
	txRunner      engine.TxRunner
	lockManager   *repository.UserLockManager
	notifications NotificationService
}

func NewBillingService(
	billingRepo repository.BillingRepository,
	auctionRepo repository.AuctionRepository,
	guaranteeRepo repository.GuaranteeRepository,
	recon engine.ReconciliationEngine,
	txRunner engine.TxRunner,
	lockManager *repository.UserLockManager,
	notifications NotificationService,
) BillingService {
	return &billingService{
		billingRepo:   billingRepo,
		auctionRepo:   auctionRepo,
		guaranteeRepo: guaranteeRepo,
		recon:         recon,
		txRunner:      txRunner,
		lockManager:   lockManager,
		notifications: notifications,
	}
}

// Accepted billing document types
const (
	DocumentoRUC = "RUC"
	DocumentoDNI = "DNI"
)

type CreateBillingRequest struct {
	AuctionID         primitive.ObjectID `json:"auction_id"`
	TipoDocumento     string             `json:"tipo_documento"`
	NumeroDocumento   string             `json:"numero_documento"`
	NombreFacturacion string             `json:"nombre_facturacion"`
}

type BillingResponse struct {
	Billing *models.Billing         `json:"billing"`
	Auction *models.Auction         `json:"auction"`
	Balance *engine.BalanceSnapshot `json:"balance,omitempty"`
}

func (s *billingService) CreateBilling(ctx context.Context, caller models.Caller, req *CreateBillingRequest) (*BillingResponse, error) {
	if req.TipoDocumento != DocumentoRUC && req.TipoDocumento != DocumentoDNI {
		return nil, apierrors.NewValidation("tipo de documento invalido", map[string]interface{}{
			"tipo_documento": req.TipoDocumento,
		})
	}
	if req.NumeroDocumento == "" || req.NombreFacturacion == "" {
		return nil, apierrors.NewValidation("numero de documento y nombre de facturacion son requeridos", nil)
	}

	auction, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if auction.Estado == models.AuctionFacturada {
		return nil, apierrors.NewAlreadyProcessed("facturacion de la subasta", auction.ID.Hex())
	}
	if auction.Estado != models.AuctionGanada {
		return nil, apierrors.NewConflict(
			"solo subastas ganadas se facturan, la subasta esta " + string(auction.Estado))
	}
	if auction.GarantiaActualID == nil {
		return nil, apierrors.NewConflict("la subasta no tiene garantia asociada")
	}

	guarantee, err := s.guaranteeRepo.GetByID(ctx, *auction.GarantiaActualID)
	if err != nil {
		return nil, err
	}

	// Billing data belongs to the recorded winner; an administrator may file
	// it on the winner's behalf.
	if err := ensureOwnerOrAdmin(caller, guarantee.UserID); err != nil {
		return nil, err
	}

	exists, err := s.billingRepo.ExistsByAuction(ctx, guarantee.UserID, auction.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apierrors.NewAlreadyProcessed("facturacion de la subasta", auction.ID.Hex())
	}

	dup, err := s.billingRepo.ExistsByDocument(ctx, guarantee.UserID, req.NumeroDocumento)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, apierrors.NewConflict("ya existe una facturacion con el documento " + req.NumeroDocumento)
	}

	lock, err := s.lockManager.LockUser(ctx, guarantee.UserID.Hex())
	if err != nil {
		return nil, err
	}
	defer s.lockManager.Release(ctx, lock)

	// The invoiced amount is what the client effectively paid and still has
	// retained for this auction.
	monto, err := s.recon.RefundCoverage(ctx, guarantee.UserID, auction.ID)
	if err != nil {
		return nil, err
	}
	if monto.IsZero() {
		monto = guarantee.MontoGarantia
	}

	billing := models.NewBilling(guarantee.UserID, auction.ID, monto,
		req.TipoDocumento, req.NumeroDocumento, req.NombreFacturacion)

	var snapshot *engine.BalanceSnapshot

	err = s.txRunner.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.billingRepo.Create(txCtx, billing); err != nil {
			return err
		}
		if err := auction.Transition(models.AuctionFacturada); err != nil {
			return asConflict(err)
		}
		if err := s.auctionRepo.Update(txCtx, auction); err != nil {
			return err
		}
		snapshot, err = s.recon.Recompute(txCtx, guarantee.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifications.Emit(external.EventFacturacionCreada, guarantee.UserID.Hex(), auction.ID.Hex(), map[string]interface{}{
		"billing_id": billing.ID.Hex(),
		"monto":      billing.Monto.String(),
	})

	logrus.WithFields(logrus.Fields{
		"billing_id": billing.ID.Hex(),
		"auction_id": auction.ID.Hex(),
		"user_id":    guarantee.UserID.Hex(),
		"monto":      billing.Monto.String(),
	}).Info("Billing created")

	return &BillingResponse{Billing: billing, Auction: auction, Balance: snapshot}, nil
}

func (s *billingService) ListBillings(ctx context.Context, caller models.Caller, userID primitive.ObjectID) ([]*models.Billing, error) {
	if userID.IsZero() {
		userID = caller.UserID
	}
	if err := ensureOwnerOrAdmin(caller, userID); err != nil {
		return nil, err
	}
	return s.billingRepo.ListByUser(ctx, userID)
}
