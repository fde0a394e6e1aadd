package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MovementDirection marks whether funds enter or leave the user's balance
type MovementDirection string

const (
	Entrada MovementDirection = "entrada"
	Salida  MovementDirection = "salida"
)

// MovementKind classifies the ledger entry
type MovementKind string

const (
	KindPagoGarantia MovementKind = "pago_garantia"
	KindReembolso    MovementKind = "reembolso"
	KindPenalidad    MovementKind = "penalidad"
	KindAjusteManual MovementKind = "ajuste_manual"
)

// MovementState is the validation state of a ledger entry. System-generated
// kinds (reembolso, penalidad, ajuste_manual) are created already validated;
// only pago_garantia entries pass through pendiente.
type MovementState string

const (
	MovementPendiente MovementState = "pendiente"
	MovementValidado  MovementState = "validado"
	MovementRechazado MovementState = "rechazado"
)

// RejectionReason is the closed taxonomy for rejected guarantee payments
type RejectionReason string

const (
	RechazoMontoIncorrecto     RejectionReason = "monto_incorrecto"
	RechazoComprobanteInvalido RejectionReason = "comprobante_invalido"
	RechazoOperacionDuplicada  RejectionReason = "operacion_duplicada"
	RechazoDatosInconsistentes RejectionReason = "datos_inconsistentes"
	RechazoOtro                RejectionReason = "otro"
)

// ValidRejectionReason reports whether the reason belongs to the taxonomy
func ValidRejectionReason(r RejectionReason) bool {
	switch r {
	case RechazoMontoIncorrecto, RechazoComprobanteInvalido,
		RechazoOperacionDuplicada, RechazoDatosInconsistentes, RechazoOtro:
		return true
	}
	return false
}

// Movement is one immutable ledger entry. After creation only the resolution
// fields (Estado, FechaResolucion, MotivoRechazo, DetalleRechazo) may change,
// and each movement resolves at most once.
type Movement struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	NumeroMovimiento string             `bson:"numero_movimiento" json:"numero_movimiento"`
	UserID           primitive.ObjectID `bson:"user_id" json:"user_id"`

	Direccion MovementDirection `bson:"direccion" json:"direccion"`
	Tipo      MovementKind      `bson:"tipo" json:"tipo"`
	Monto     decimal.Decimal   `bson:"monto" json:"monto"`
	Estado    MovementState     `bson:"estado" json:"estado"`

	// Correlations to the entities that produced this entry
	AuctionID   *primitive.ObjectID `bson:"auction_id,omitempty" json:"auction_id,omitempty"`
	GuaranteeID *primitive.ObjectID `bson:"guarantee_id,omitempty" json:"guarantee_id,omitempty"`
	RefundID    *primitive.ObjectID `bson:"refund_id,omitempty" json:"refund_id,omitempty"`

	// Payment details, present for pago_garantia entries
	NumeroOperacion string    `bson:"numero_operacion,omitempty" json:"numero_operacion,omitempty"`
	FechaPago       time.Time `bson:"fecha_pago,omitempty" json:"fecha_pago,omitempty"`
	ComprobanteURL  string    `bson:"comprobante_url,omitempty" json:"comprobante_url,omitempty"`

	FechaResolucion *time.Time      `bson:"fecha_resolucion,omitempty" json:"fecha_resolucion,omitempty"`
	MotivoRechazo   RejectionReason `bson:"motivo_rechazo,omitempty" json:"motivo_rechazo,omitempty"`
	DetalleRechazo  string          `bson:"detalle_rechazo,omitempty" json:"detalle_rechazo,omitempty"`
	Concepto        string          `bson:"concepto,omitempty" json:"concepto,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewPendingPayment creates a pago_garantia entry awaiting admin validation
func NewPendingPayment(userID, auctionID, guaranteeID primitive.ObjectID, monto decimal.Decimal, numeroOperacion string, fechaPago time.Time, comprobanteURL string) *Movement {
	now := time.Now()
	return &Movement{
		NumeroMovimiento: newMovementNumber(),
		UserID:           userID,
		Direccion:        Entrada,
		Tipo:             KindPagoGarantia,
		Monto:            monto.Round(2),
		Estado:           MovementPendiente,
		AuctionID:        &auctionID,
		GuaranteeID:      &guaranteeID,
		NumeroOperacion:  numeroOperacion,
		FechaPago:        fechaPago,
		ComprobanteURL:   comprobanteURL,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// NewSystemMovement creates an already-validated entry for system-generated
// kinds (reembolso, penalidad, ajuste_manual)
func NewSystemMovement(userID primitive.ObjectID, direccion MovementDirection, tipo MovementKind, monto decimal.Decimal, concepto string) *Movement {
	now := time.Now()
	resolved := now
	return &Movement{
		NumeroMovimiento: newMovementNumber(),
		UserID:           userID,
		Direccion:        direccion,
		Tipo:             tipo,
		Monto:            monto.Round(2),
		Estado:           MovementValidado,
		Concepto:         concepto,
		FechaResolucion:  &resolved,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func newMovementNumber() string {
	return fmt.Sprintf("MOV-%d-%s", time.Now().Unix(), uuid.New().String()[:8])
}

// Aprobar resolves a pending movement as validated. A movement resolves at
// most once: re-invocations fail.
func (m *Movement) Aprobar() error {
	if m.Estado != MovementPendiente {
		return fmt.Errorf("movimiento %s ya resuelto con estado %s", m.NumeroMovimiento, m.Estado)
	}
	now := time.Now()
	m.Estado = MovementValidado
	m.FechaResolucion = &now
	m.UpdatedAt = now
	return nil
}

// Rechazar resolves a pending movement as rejected with a reason from the
// closed taxonomy plus optional free text
func (m *Movement) Rechazar(motivo RejectionReason, detalle string) error {
	if m.Estado != MovementPendiente {
		return fmt.Errorf("movimiento %s ya resuelto con estado %s", m.NumeroMovimiento, m.Estado)
	}
	if !ValidRejectionReason(motivo) {
		return fmt.Errorf("motivo de rechazo invalido: %s", motivo)
	}
	now := time.Now()
	m.Estado = MovementRechazado
	m.MotivoRechazo = motivo
	m.DetalleRechazo = detalle
	m.FechaResolucion = &now
	m.UpdatedAt = now
	return nil
}

// IsResolved reports whether the movement already left pendiente
func (m *Movement) IsResolved() bool {
	return m.Estado != MovementPendiente
}

// Validate validates the structural invariants of a ledger entry
func (m *Movement) Validate() error {
	if m.UserID.IsZero() {
		return fmt.Errorf("user ID is required")
	}

	if m.Monto.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("el monto debe ser positivo")
	}

	if m.Monto.Exponent() < -2 {
		return fmt.Errorf("el monto debe tener como maximo 2 decimales")
	}

	if m.Direccion != Entrada && m.Direccion != Salida {
		return fmt.Errorf("direccion invalida: %s", m.Direccion)
	}

	switch m.Tipo {
	case KindPagoGarantia:
		if m.NumeroOperacion == "" {
			return fmt.Errorf("numero de operacion es requerido para pagos de garantia")
		}
	case KindReembolso, KindPenalidad, KindAjusteManual:
		if m.Estado == MovementPendiente {
			return fmt.Errorf("movimientos de tipo %s se crean validados", m.Tipo)
		}
	default:
		return fmt.Errorf("tipo de movimiento invalido: %s", m.Tipo)
	}

	switch m.Estado {
	case MovementPendiente, MovementValidado, MovementRechazado:
	default:
		return fmt.Errorf("estado de movimiento invalido: %s", m.Estado)
	}

	return nil
}
