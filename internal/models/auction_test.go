package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAuction_Transition(t *testing.T) {
	tests := []struct {
		name        string
		from        AuctionState
		to          AuctionState
		expectError bool
	}{
		{"activa to pendiente", AuctionActiva, AuctionPendiente, false},
		{"activa to cancelada", AuctionActiva, AuctionCancelada, false},
		{"activa to finalizada", AuctionActiva, AuctionFinalizada, true},
		{"pendiente to en_validacion", AuctionPendiente, AuctionEnValidacion, false},
		{"pendiente to vencida", AuctionPendiente, AuctionVencida, false},
		{"pendiente self transition", AuctionPendiente, AuctionPendiente, false},
		{"pendiente to ganada", AuctionPendiente, AuctionGanada, true},
		{"en_validacion to finalizada", AuctionEnValidacion, AuctionFinalizada, false},
		{"en_validacion back to pendiente", AuctionEnValidacion, AuctionPendiente, false},
		{"vencida to pendiente", AuctionVencida, AuctionPendiente, false},
		{"vencida to finalizada", AuctionVencida, AuctionFinalizada, true},
		{"finalizada to ganada", AuctionFinalizada, AuctionGanada, false},
		{"finalizada to perdida", AuctionFinalizada, AuctionPerdida, false},
		{"finalizada to penalizada", AuctionFinalizada, AuctionPenalizada, false},
		{"ganada to facturada", AuctionGanada, AuctionFacturada, false},
		{"ganada to perdida", AuctionGanada, AuctionPerdida, true},
		{"perdida is terminal", AuctionPerdida, AuctionPendiente, true},
		{"facturada is terminal", AuctionFacturada, AuctionGanada, true},
		{"cancelada is terminal", AuctionCancelada, AuctionActiva, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auction := &Auction{Estado: tt.from}
			err := auction.Transition(tt.to)

			if tt.expectError {
				assert.Error(t, err)
				var illegal *IllegalTransitionError
				assert.ErrorAs(t, err, &illegal)
				assert.Equal(t, tt.from, auction.Estado)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, auction.Estado)
			}
		})
	}
}

func TestAuction_RetainsBalance(t *testing.T) {
	retaining := []AuctionState{AuctionFinalizada, AuctionGanada, AuctionPerdida, AuctionPenalizada}
	for _, state := range retaining {
		auction := &Auction{Estado: state}
		assert.True(t, auction.RetainsBalance(), "estado %s", state)
	}

	notRetaining := []AuctionState{
		AuctionActiva, AuctionPendiente, AuctionEnValidacion,
		AuctionVencida, AuctionFacturada, AuctionCancelada,
	}
	for _, state := range notRetaining {
		auction := &Auction{Estado: state}
		assert.False(t, auction.RetainsBalance(), "estado %s", state)
	}
}

func TestAuction_IsTerminal(t *testing.T) {
	terminal := []AuctionState{AuctionPerdida, AuctionPenalizada, AuctionFacturada, AuctionCancelada}
	for _, state := range terminal {
		assert.True(t, (&Auction{Estado: state}).IsTerminal(), "estado %s", state)
	}

	assert.False(t, (&Auction{Estado: AuctionGanada}).IsTerminal())
	assert.False(t, (&Auction{Estado: AuctionPendiente}).IsTerminal())
}

func TestGuaranteeAmount(t *testing.T) {
	tests := []struct {
		name     string
		offer    string
		expected string
	}{
		{"standard offer", "8500.00", "680"},
		{"rounding half up", "1234.56", "98.76"},
		{"small offer", "100", "8"},
		{"offer with cents", "10999.99", "880"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offer, err := decimal.NewFromString(tt.offer)
			assert.NoError(t, err)

			amount := GuaranteeAmount(offer)
			expected, _ := decimal.NewFromString(tt.expected)
			assert.True(t, amount.Equal(expected), "expected %s, got %s", expected, amount)
		})
	}
}

func TestGuarantee_Transitions(t *testing.T) {
	g := &Guarantee{Estado: GuaranteeActiva, PosicionRanking: 1}
	assert.True(t, g.IsCurrentWinner())

	assert.NoError(t, g.Transition(GuaranteeGanadora))
	assert.False(t, g.IsCurrentWinner())
	assert.Error(t, g.Transition(GuaranteePerdedora))

	g2 := &Guarantee{Estado: GuaranteeActiva}
	assert.NoError(t, g2.Transition(GuaranteePerdedora))
	assert.Error(t, g2.Transition(GuaranteeActiva))
}
