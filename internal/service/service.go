package service

import (
	"errors"

	"github.com/CattCloud/pagos-bob-subastas-api-sub000/internal/models"
	"github.com/CattCloud/pagos-bob-subastas-api-sub000/pkg/apierrors"
)

// ensureAdmin rejects non-administrator callers
func ensureAdmin(caller models.Caller) error {
	if !caller.IsAdmin() {
		return apierrors.NewForbidden("la operacion requiere rol de administrador")
	}
	return nil
}

// ensureOwnerOrAdmin rejects callers that are neither the resource owner nor
// an administrator
func ensureOwnerOrAdmin(caller models.Caller, ownerID interface{ Hex() string }) error {
	if caller.IsAdmin() || caller.UserID.Hex() == ownerID.Hex() {
		return nil
	}
	return apierrors.NewForbidden("el recurso pertenece a otro usuario")
}

// asConflict translates state machine violations into conflict errors while
// leaving business errors untouched
func asConflict(err error) error {
	var illegal *models.IllegalTransitionError
	if errors.As(err, &illegal) {
		return apierrors.NewConflict(illegal.Error())
	}
	return err
}
