package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/repository"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// LedgerEngine is the single entry point for appending movements. The ledger
// is append-only: entries are never deleted and, once resolved, never change.
type LedgerEngine interface {
	Append(ctx context.Context, movement *models.Movement) error
}

type ledgerEngine struct {
	movementRepo repository.MovementRepository
}

func NewLedgerEngine(movementRepo repository.MovementRepository) LedgerEngine {
	return &ledgerEngine{
		movementRepo: movementRepo,
	}
}

func (e *ledgerEngine) Append(ctx context.Context, movement *models.Movement) error {
	if err := movement.Validate(); err != nil {
		return apierrors.NewValidation(err.Error(), nil)
	}

	if movement.Tipo == models.KindPagoGarantia {
		exists, err := e.movementRepo.ExistsOperacion(ctx, movement.UserID, movement.NumeroOperacion)
		if err != nil {
			return fmt.Errorf("failed to check duplicate operation: %w", err)
		}
		if exists {
			return apierrors.NewConflict(
				fmt.Sprintf("el numero de operacion %s ya fue registrado", movement.NumeroOperacion))
		}
	}

	if err := e.movementRepo.Create(ctx, movement); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"numero_movimiento": movement.NumeroMovimiento,
		"user_id":           movement.UserID.Hex(),
		"tipo":              movement.Tipo,
		"direccion":         movement.Direccion,
		"monto":             movement.Monto.String(),
		"estado":            movement.Estado,
	}).Info("Movement appended to ledger")

	return nil
}
