package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User roles. Every operation receives the caller explicitly; there is no
// ambient session state.
const (
	RolAdmin   = "admin"
	RolCliente = "cliente"
)

// User represents a registered client or administrator. The two saldo fields
// are caches derived from the movement ledger; only the reconciliation engine
// writes them.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Nombre string             `bson:"nombre" json:"nombre"`
	Email  string             `bson:"email" json:"email"`
	Rol    string             `bson:"rol" json:"rol"`

	SaldoTotal    decimal.Decimal `bson:"saldo_total" json:"saldo_total"`
	SaldoRetenido decimal.Decimal `bson:"saldo_retenido" json:"saldo_retenido"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Caller identifies who is executing an operation and with which role.
type Caller struct {
	UserID primitive.ObjectID
	Rol    string
}

// IsAdmin returns true for administrator callers
func (c Caller) IsAdmin() bool {
	return c.Rol == RolAdmin
}

// SaldoDisponible derives the freely usable balance. saldoAplicado is the sum
// of billing amounts for the user, which is not cached on the document.
func (u *User) SaldoDisponible(saldoAplicado decimal.Decimal) decimal.Decimal {
	return u.SaldoTotal.Sub(u.SaldoRetenido).Sub(saldoAplicado).Round(2)
}
