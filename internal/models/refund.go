package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RefundState is the lifecycle state of a refund request
type RefundState string

const (
	RefundSolicitado RefundState = "solicitado"
	RefundConfirmado RefundState = "confirmado"
	RefundRechazado  RefundState = "rechazado"
	RefundProcesado  RefundState = "procesado"
	RefundCancelado  RefundState = "cancelado"
)

var refundTransitions = map[RefundState][]RefundState{
	RefundSolicitado: {RefundConfirmado, RefundRechazado, RefundCancelado},
	RefundConfirmado: {RefundProcesado, RefundCancelado},
	RefundRechazado:  {},
	RefundProcesado:  {},
	RefundCancelado:  {},
}

// RefundType selects where the money goes when the refund is processed
type RefundType string

const (
	// MantenerSaldo keeps the funds inside the system as available balance
	MantenerSaldo RefundType = "mantener_saldo"
	// DevolverDinero transfers the funds out of the system
	DevolverDinero RefundType = "devolver_dinero"
)

// ValidRefundType reports whether t is a known refund type
func ValidRefundType(t RefundType) bool {
	return t == MantenerSaldo || t == DevolverDinero
}

// Refund is a client request to release retained funds. While the request is
// solicitado or confirmado its amount participates in the retention hold, so
// the same funds cannot be requested twice concurrently.
type Refund struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID primitive.ObjectID `bson:"user_id" json:"user_id"`

	MontoSolicitado decimal.Decimal `bson:"monto_solicitado" json:"monto_solicitado"`
	Tipo            RefundType      `bson:"tipo_reembolso" json:"tipo_reembolso"`
	Motivo          string          `bson:"motivo" json:"motivo"`
	Estado          RefundState     `bson:"estado" json:"estado"`

	AuctionID *primitive.ObjectID `bson:"auction_id,omitempty" json:"auction_id,omitempty"`

	MotivoRechazo       string     `bson:"motivo_rechazo,omitempty" json:"motivo_rechazo,omitempty"`
	FechaRespuesta      *time.Time `bson:"fecha_respuesta,omitempty" json:"fecha_respuesta,omitempty"`
	FechaProcesamiento  *time.Time `bson:"fecha_procesamiento,omitempty" json:"fecha_procesamiento,omitempty"`
	NumeroTransferencia string     `bson:"numero_transferencia,omitempty" json:"numero_transferencia,omitempty"`
	ComprobanteURL      string     `bson:"comprobante_url,omitempty" json:"comprobante_url,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewRefund creates a refund request in estado solicitado
func NewRefund(userID primitive.ObjectID, monto decimal.Decimal, tipo RefundType, motivo string, auctionID *primitive.ObjectID) *Refund {
	now := time.Now()
	return &Refund{
		UserID:          userID,
		MontoSolicitado: monto.Round(2),
		Tipo:            tipo,
		Motivo:          motivo,
		Estado:          RefundSolicitado,
		AuctionID:       auctionID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// CanTransition reports whether the refund may move to the target state
func (r *Refund) CanTransition(to RefundState) bool {
	for _, allowed := range refundTransitions[r.Estado] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the refund to the target state or returns an error
func (r *Refund) Transition(to RefundState) error {
	if !r.CanTransition(to) {
		return &IllegalTransitionError{Entity: "reembolso", From: string(r.Estado), To: string(to)}
	}
	r.Estado = to
	r.UpdatedAt = time.Now()
	return nil
}

// Confirmar approves the request, keeping the hold in place
func (r *Refund) Confirmar() error {
	if err := r.Transition(RefundConfirmado); err != nil {
		return err
	}
	now := time.Now()
	r.FechaRespuesta = &now
	return nil
}

// Rechazar denies the request; a reason is mandatory
func (r *Refund) Rechazar(motivo string) error {
	if motivo == "" {
		return fmt.Errorf("el rechazo de un reembolso requiere un motivo")
	}
	if err := r.Transition(RefundRechazado); err != nil {
		return err
	}
	now := time.Now()
	r.MotivoRechazo = motivo
	r.FechaRespuesta = &now
	return nil
}

// Procesar settles a confirmed request. Terminal: no reversal exists.
func (r *Refund) Procesar(numeroTransferencia, comprobanteURL string) error {
	if r.Estado != RefundConfirmado {
		return &IllegalTransitionError{Entity: "reembolso", From: string(r.Estado), To: string(RefundProcesado)}
	}
	if r.Tipo == DevolverDinero && numeroTransferencia == "" {
		return fmt.Errorf("devolver_dinero requiere numero de transferencia")
	}
	now := time.Now()
	r.Estado = RefundProcesado
	r.NumeroTransferencia = numeroTransferencia
	r.ComprobanteURL = comprobanteURL
	r.FechaProcesamiento = &now
	r.UpdatedAt = now
	return nil
}

// Cancelar cancels the request and releases its hold
func (r *Refund) Cancelar() error {
	return r.Transition(RefundCancelado)
}

// IsInFlight reports whether the request currently holds retained balance
func (r *Refund) IsInFlight() bool {
	return r.Estado == RefundSolicitado || r.Estado == RefundConfirmado
}
