package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GuaranteeState is the lifecycle state of a ranked bid record
type GuaranteeState string

const (
	// GuaranteeActiva: the current winner, obligated to pay the guarantee
	GuaranteeActiva GuaranteeState = "activa"
	// GuaranteeGanadora: the auction was won by this bidder
	GuaranteeGanadora GuaranteeState = "ganadora"
	// GuaranteePerdedora: displaced by reassignment, expiration or loss
	GuaranteePerdedora GuaranteeState = "perdedora"
)

var guaranteeTransitions = map[GuaranteeState][]GuaranteeState{
	GuaranteeActiva:    {GuaranteeGanadora, GuaranteePerdedora},
	GuaranteeGanadora:  {},
	GuaranteePerdedora: {},
}

// GuaranteePercent is the fraction of the winning offer the client must
// deposit as a guarantee.
var GuaranteePercent = decimal.NewFromFloat(0.08)

// GuaranteeAmount computes the exact guarantee owed for an offer, rounded to
// 2 decimals.
func GuaranteeAmount(offer decimal.Decimal) decimal.Decimal {
	return offer.Mul(GuaranteePercent).Round(2)
}

// Guarantee is a ranked bid record. At most one guarantee per non-terminal
// auction holds ranking 1 with estado activa: the current winner.
type Guarantee struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	AuctionID       primitive.ObjectID `bson:"auction_id" json:"auction_id"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	PosicionRanking int                `bson:"posicion_ranking" json:"posicion_ranking"`
	Estado          GuaranteeState     `bson:"estado" json:"estado"`

	MontoOferta   decimal.Decimal `bson:"monto_oferta" json:"monto_oferta"`
	MontoGarantia decimal.Decimal `bson:"monto_garantia" json:"monto_garantia"`

	MotivoReasignacion string `bson:"motivo_reasignacion,omitempty" json:"motivo_reasignacion,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewWinnerGuarantee creates the ranking-1 active guarantee for an auction
func NewWinnerGuarantee(auctionID, userID primitive.ObjectID, offer decimal.Decimal) *Guarantee {
	now := time.Now()
	return &Guarantee{
		AuctionID:       auctionID,
		UserID:          userID,
		PosicionRanking: 1,
		Estado:          GuaranteeActiva,
		MontoOferta:     offer.Round(2),
		MontoGarantia:   GuaranteeAmount(offer),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CanTransition reports whether the guarantee may move to the target state
func (g *Guarantee) CanTransition(to GuaranteeState) bool {
	for _, allowed := range guaranteeTransitions[g.Estado] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the guarantee to the target state or returns an error
func (g *Guarantee) Transition(to GuaranteeState) error {
	if !g.CanTransition(to) {
		return &IllegalTransitionError{Entity: "garantia", From: string(g.Estado), To: string(to)}
	}
	g.Estado = to
	g.UpdatedAt = time.Now()
	return nil
}

// IsCurrentWinner reports whether this record holds the active winner slot
func (g *Guarantee) IsCurrentWinner() bool {
	return g.PosicionRanking == 1 && g.Estado == GuaranteeActiva
}
