package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
)

// ReconciliationEngine derives the balance caches from the ledger. The caches
// on the user document are a performance optimization only: after any
// balance-affecting operation the caches are recomputed from movements,
// auction states and in-flight refunds, never adjusted incrementally.
type ReconciliationEngine interface {
	RecomputeTotal(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error)
	RecomputeRetained(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error)
	// Recompute derives both caches and persists them on the user document.
	Recompute(ctx context.Context, userID primitive.ObjectID) (*BalanceSnapshot, error)
	SaldoDisponible(ctx context.Context, userID primitive.ObjectID) (*BalanceSnapshot, error)
	// RefundCoverage returns how much of an auction's validated guarantee
	// payments has not yet been refunded out.
	RefundCoverage(ctx context.Context, userID, auctionID primitive.ObjectID) (decimal.Decimal, error)
}

// BalanceSnapshot is a consistent read of the three balances
type BalanceSnapshot struct {
	UserID          primitive.ObjectID `json:"user_id"`
	SaldoTotal      decimal.Decimal    `json:"saldo_total"`
	SaldoRetenido   decimal.Decimal    `json:"saldo_retenido"`
	SaldoAplicado   decimal.Decimal    `json:"saldo_aplicado"`
	SaldoDisponible decimal.Decimal    `json:"saldo_disponible"`
	ComputedAt      time.Time          `json:"computed_at"`
}

type reconciliationEngine struct {
	userRepo     repository.UserRepository
	movementRepo repository.MovementRepository
	auctionRepo  repository.AuctionRepository
	refundRepo   repository.RefundRepository
	billingRepo  repository.BillingRepository
}

func NewReconciliationEngine(
	userRepo repository.UserRepository,
	movementRepo repository.MovementRepository,
	auctionRepo repository.AuctionRepository,
	refundRepo repository.RefundRepository,
	billingRepo repository.BillingRepository,
) ReconciliationEngine {
	return &reconciliationEngine{
		userRepo:     userRepo,
		movementRepo: movementRepo,
		auctionRepo:  auctionRepo,
		refundRepo:   refundRepo,
		billingRepo:  billingRepo,
	}
}

// RecomputeTotal sums validated entradas minus validated salidas. Entrada
// reembolsos are excluded: a mantener_saldo refund leaves money where it
// already is, its entry only marks the retention as consumed.
func (e *reconciliationEngine) RecomputeTotal(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	movements, err := e.movementRepo.GetValidatedByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, m := range movements {
		switch m.Direccion {
		case models.Entrada:
			if m.Tipo == models.KindReembolso {
				continue
			}
			total = total.Add(m.Monto)
		case models.Salida:
			total = total.Sub(m.Monto)
		}
	}

	return total.Round(2), nil
}

// RecomputeRetained sums validated guarantee payments whose auction still
// retains funds, minus release entries and penalty movements already issued
// against those auctions, plus the holds of in-flight refund requests. A
// salida reembolso never subtracts here: the payout already left the total,
// and its hold was consumed when the request settled. A penalty consumes
// retention instead of releasing it: the funds leave the total without ever
// becoming available.
func (e *reconciliationEngine) RecomputeRetained(ctx context.Context, userID primitive.ObjectID) (decimal.Decimal, error) {
	movements, err := e.movementRepo.GetValidatedByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}

	retaining, err := e.retainingAuctions(ctx, movements)
	if err != nil {
		return decimal.Zero, err
	}

	retained := decimal.Zero
	for _, m := range movements {
		if m.AuctionID == nil || !retaining[*m.AuctionID] {
			continue
		}
		switch {
		case m.Tipo == models.KindPagoGarantia && m.Direccion == models.Entrada:
			retained = retained.Add(m.Monto)
		case m.Tipo == models.KindReembolso && m.Direccion == models.Entrada,
			m.Tipo == models.KindPenalidad:
			retained = retained.Sub(m.Monto)
		}
	}

	if retained.IsNegative() {
		retained = decimal.Zero
	}

	refunds, err := e.refundRepo.GetInFlightByUser(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range refunds {
		retained = retained.Add(r.MontoSolicitado)
	}

	return retained.Round(2), nil
}

func (e *reconciliationEngine) Recompute(ctx context.Context, userID primitive.ObjectID) (*BalanceSnapshot, error) {
	total, err := e.RecomputeTotal(ctx, userID)
	if err != nil {
		return nil, err
	}

	retained, err := e.RecomputeRetained(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := e.userRepo.UpdateSaldos(ctx, userID, total, retained); err != nil {
		return nil, err
	}

	aplicado, err := e.billingRepo.SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := &BalanceSnapshot{
		UserID:          userID,
		SaldoTotal:      total,
		SaldoRetenido:   retained,
		SaldoAplicado:   aplicado,
		SaldoDisponible: total.Sub(retained).Sub(aplicado).Round(2),
		ComputedAt:      time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"user_id":          userID.Hex(),
		"saldo_total":      snapshot.SaldoTotal.String(),
		"saldo_retenido":   snapshot.SaldoRetenido.String(),
		"saldo_disponible": snapshot.SaldoDisponible.String(),
	}).Debug("Balances reconciled")

	return snapshot, nil
}

// SaldoDisponible reads the cached balances and the invoiced sum without
// recomputing from the ledger.
func (e *reconciliationEngine) SaldoDisponible(ctx context.Context, userID primitive.ObjectID) (*BalanceSnapshot, error) {
	user, err := e.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	aplicado, err := e.billingRepo.SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &BalanceSnapshot{
		UserID:          userID,
		SaldoTotal:      user.SaldoTotal,
		SaldoRetenido:   user.SaldoRetenido,
		SaldoAplicado:   aplicado,
		SaldoDisponible: user.SaldoDisponible(aplicado),
		ComputedAt:      time.Now(),
	}, nil
}

func (e *reconciliationEngine) RefundCoverage(ctx context.Context, userID, auctionID primitive.ObjectID) (decimal.Decimal, error) {
	movements, err := e.movementRepo.GetValidatedByAuction(ctx, userID, auctionID)
	if err != nil {
		return decimal.Zero, err
	}

	coverage := decimal.Zero
	for _, m := range movements {
		switch {
		case m.Tipo == models.KindPagoGarantia && m.Direccion == models.Entrada:
			coverage = coverage.Add(m.Monto)
		case m.Direccion == models.Salida &&
			(m.Tipo == models.KindReembolso || m.Tipo == models.KindPenalidad):
			coverage = coverage.Sub(m.Monto)
		}
	}

	if coverage.IsNegative() {
		coverage = decimal.Zero
	}

	return coverage.Round(2), nil
}

// retainingAuctions resolves which auctions referenced by the movements are
// in a state that keeps the guarantee retained.
func (e *reconciliationEngine) retainingAuctions(ctx context.Context, movements []*models.Movement) (map[primitive.ObjectID]bool, error) {
	seen := make(map[primitive.ObjectID]bool)
	var ids []primitive.ObjectID
	for _, m := range movements {
		if m.AuctionID != nil && !seen[*m.AuctionID] {
			seen[*m.AuctionID] = true
			ids = append(ids, *m.AuctionID)
		}
	}

	auctions, err := e.auctionRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	retaining := make(map[primitive.ObjectID]bool, len(auctions))
	for _, a := range auctions {
		if a.RetainsBalance() {
			retaining[a.ID] = true
		}
	}

	return retaining, nil
}
