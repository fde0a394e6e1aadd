package models

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Billing converts a won-and-paid auction's guarantee into an invoiced
// amount. One per (user, auction), created once and never revised.
type Billing struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	AuctionID primitive.ObjectID `bson:"auction_id" json:"auction_id"`

	Monto             decimal.Decimal `bson:"monto" json:"monto"`
	TipoDocumento     string          `bson:"tipo_documento" json:"tipo_documento"`
	NumeroDocumento   string          `bson:"numero_documento" json:"numero_documento"`
	NombreFacturacion string          `bson:"nombre_facturacion" json:"nombre_facturacion"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// NewBilling creates a billing record
func NewBilling(userID, auctionID primitive.ObjectID, monto decimal.Decimal, tipoDoc, numeroDoc, nombre string) *Billing {
	return &Billing{
		UserID:            userID,
		AuctionID:         auctionID,
		Monto:             monto.Round(2),
		TipoDocumento:     tipoDoc,
		NumeroDocumento:   numeroDoc,
		NombreFacturacion: nombre,
		CreatedAt:         time.Now(),
	}
}
