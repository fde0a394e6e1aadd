package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuctionState is the lifecycle state of an auction
type AuctionState string

const (
	// AuctionActiva: created, no winner assigned yet
	AuctionActiva AuctionState = "activa"
	// AuctionPendiente: winner assigned, waiting for the guarantee payment
	AuctionPendiente AuctionState = "pendiente"
	// AuctionEnValidacion: payment registered, waiting for admin validation
	AuctionEnValidacion AuctionState = "en_validacion"
	// AuctionFinalizada: guarantee payment validated
	AuctionFinalizada AuctionState = "finalizada"
	// AuctionGanada: external competition won, eligible for billing
	AuctionGanada AuctionState = "ganada"
	// AuctionPerdida: external competition lost, guarantee refundable
	AuctionPerdida AuctionState = "perdida"
	// AuctionPenalizada: penalty applied, retention kept
	AuctionPenalizada AuctionState = "penalizada"
	// AuctionVencida: payment deadline passed without registration
	AuctionVencida AuctionState = "vencida"
	// AuctionFacturada: billed, retention released for this auction
	AuctionFacturada AuctionState = "facturada"
	// AuctionCancelada: cancelled by an administrator
	AuctionCancelada AuctionState = "cancelada"
)

// auctionTransitions is the single source of truth for legal auction state
// changes. Illegal transitions are rejected structurally.
var auctionTransitions = map[AuctionState][]AuctionState{
	AuctionActiva:       {AuctionPendiente, AuctionCancelada},
	AuctionPendiente:    {AuctionEnValidacion, AuctionVencida, AuctionPendiente, AuctionCancelada},
	AuctionEnValidacion: {AuctionFinalizada, AuctionPendiente, AuctionEnValidacion, AuctionCancelada},
	AuctionVencida:      {AuctionPendiente, AuctionCancelada},
	AuctionFinalizada:   {AuctionGanada, AuctionPerdida, AuctionPenalizada},
	AuctionGanada:       {AuctionFacturada},
	AuctionPerdida:      {},
	AuctionPenalizada:   {},
	AuctionFacturada:    {},
	AuctionCancelada:    {},
}

// Auction represents one vehicle auction managed by the intermediary
type Auction struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	DescripcionBien  string             `bson:"descripcion_bien" json:"descripcion_bien"`
	PlacaBien        string             `bson:"placa_bien,omitempty" json:"placa_bien,omitempty"`
	Estado           AuctionState       `bson:"estado" json:"estado"`
	GarantiaActualID *primitive.ObjectID `bson:"garantia_actual_id,omitempty" json:"garantia_actual_id,omitempty"`
	MontoOferta      decimal.Decimal    `bson:"monto_oferta" json:"monto_oferta"`

	FechaLimitePago   *time.Time `bson:"fecha_limite_pago,omitempty" json:"fecha_limite_pago,omitempty"`
	FechaFinalizacion *time.Time `bson:"fecha_finalizacion,omitempty" json:"fecha_finalizacion,omitempty"`
	FechaResultado    *time.Time `bson:"fecha_resultado,omitempty" json:"fecha_resultado,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewAuction creates an auction in estado activa
func NewAuction(descripcion, placa string) *Auction {
	now := time.Now()
	return &Auction{
		DescripcionBien: descripcion,
		PlacaBien:       placa,
		Estado:          AuctionActiva,
		MontoOferta:     decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CanTransition reports whether the auction may move to the target state
func (a *Auction) CanTransition(to AuctionState) bool {
	for _, allowed := range auctionTransitions[a.Estado] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the auction to the target state or returns an error
// naming both states. Self-transitions listed in the table are no-ops.
func (a *Auction) Transition(to AuctionState) error {
	if !a.CanTransition(to) {
		return &IllegalTransitionError{Entity: "subasta", From: string(a.Estado), To: string(to)}
	}
	a.Estado = to
	a.UpdatedAt = time.Now()
	return nil
}

// IsTerminal reports whether no further transitions are possible
func (a *Auction) IsTerminal() bool {
	return len(auctionTransitions[a.Estado]) == 0
}

// RetainsBalance reports whether validated guarantee payments on this auction
// count toward the user's retained balance. Lost and penalized auctions stay
// in the set: the release movement recorded with the competition result, or
// the penalty movement, consumes the retained sum instead of the state change
// freeing it directly.
func (a *Auction) RetainsBalance() bool {
	switch a.Estado {
	case AuctionFinalizada, AuctionGanada, AuctionPerdida, AuctionPenalizada:
		return true
	}
	return false
}

// IsRefundable reports whether the auction is in a state that admits refund
// requests scoped to it
func (a *Auction) IsRefundable() bool {
	return a.Estado == AuctionPerdida || a.Estado == AuctionPenalizada
}

// IllegalTransitionError reports a rejected state change on any of the
// domain state machines.
type IllegalTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *IllegalTransitionError) Error() string {
	return "transicion invalida de " + e.Entity + ": " + e.From + " -> " + e.To
}
