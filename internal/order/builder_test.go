package order

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

func niftyCE() model.Instrument {
	return model.Instrument{
		Token:         "T1",
		TradingSymbol: "NIFTY05DEC2423500CE",
		Name:          "NIFTY",
		Segment:       model.SegmentNFO,
		Type:          model.TypeOptionIndex,
		Strike:        decimal.NewFromInt(23500),
		LotSize:       25,
		Side:          model.Call,
	}
}

func TestBuild_MarketSell(t *testing.T) {
	req, err := Build(niftyCE(), Params{Side: model.Sell, Lots: 2, OrderType: model.OrderMarket})
	require.NoError(t, err)

	assert.Equal(t, 50, req.Quantity)
	assert.Equal(t, "T1", req.Token)
	assert.Equal(t, "NIFTY05DEC2423500CE", req.TradingSymbol)
	assert.Equal(t, model.SegmentNFO, req.Segment)
	assert.Equal(t, model.Sell, req.Side)
	assert.Equal(t, model.ProductIntraday, req.ProductType)
	assert.Equal(t, model.DurationDay, req.Duration)
	assert.Equal(t, model.VarietyNormal, req.Variety)
	assert.True(t, req.Price.IsZero())
	assert.True(t, req.TriggerPrice.IsZero())
}

func TestBuild_QuantityRoundTrip(t *testing.T) {
	for _, lotSize := range []int{1, 15, 25, 75, 1800} {
		for lots := 1; lots <= 20; lots++ {
			inst := niftyCE()
			inst.LotSize = lotSize
			req, err := Build(inst, Params{Side: model.Buy, Lots: lots, OrderType: model.OrderMarket})
			require.NoError(t, err)
			assert.Equal(t, lots*lotSize, req.Quantity)
		}
	}
}

func TestBuild_MarketIgnoresPrices(t *testing.T) {
	req, err := Build(niftyCE(), Params{
		Side:         model.Sell,
		Lots:         1,
		OrderType:    model.OrderMarket,
		Price:        decimal.NewFromInt(120),
		TriggerPrice: decimal.NewFromInt(110),
	})
	require.NoError(t, err)
	assert.True(t, req.Price.IsZero())
	assert.True(t, req.TriggerPrice.IsZero())
}

func TestBuild_StopLossDefaults(t *testing.T) {
	req, err := Build(niftyCE(), Params{
		Side:         model.Buy,
		Lots:         1,
		OrderType:    model.OrderStopLossLimit,
		Price:        decimal.RequireFromString("150.5"),
		TriggerPrice: decimal.NewFromInt(150),
		ProductType:  model.ProductCarryForward,
		Tag:          "sl-ce",
	})
	require.NoError(t, err)
	assert.Equal(t, model.VarietyStopLoss, req.Variety)
	assert.Equal(t, model.ProductCarryForward, req.ProductType)
	assert.Equal(t, "150.5", req.Price.String())
	assert.Equal(t, "150", req.TriggerPrice.String())
	assert.Equal(t, "sl-ce", req.Tag)
}

func TestBuild_Errors(t *testing.T) {
	noLot := niftyCE()
	noLot.LotSize = 0
	noToken := niftyCE()
	noToken.Token = ""

	tests := []struct {
		name    string
		inst    model.Instrument
		params  Params
		wantErr error
	}{
		{"zero lots", niftyCE(), Params{Side: model.Sell, Lots: 0, OrderType: model.OrderMarket}, ErrInvalidQuantity},
		{"negative lots", niftyCE(), Params{Side: model.Sell, Lots: -1, OrderType: model.OrderMarket}, ErrInvalidQuantity},
		{"no lot size", noLot, Params{Side: model.Sell, Lots: 1, OrderType: model.OrderMarket}, ErrInvalidQuantity},
		{"overflow", niftyCE(), Params{Side: model.Sell, Lots: math.MaxInt32, OrderType: model.OrderMarket}, ErrInvalidQuantity},
		{"limit without price", niftyCE(), Params{Side: model.Sell, Lots: 1, OrderType: model.OrderLimit}, ErrInvalidPrice},
		{"stop without trigger", niftyCE(), Params{Side: model.Sell, Lots: 1, OrderType: model.OrderStopLossMarket}, ErrInvalidPrice},
		{"negative price", niftyCE(), Params{Side: model.Sell, Lots: 1, OrderType: model.OrderLimit, Price: decimal.NewFromInt(-1)}, ErrInvalidPrice},
		{"unknown side", niftyCE(), Params{Side: "HOLD", Lots: 1, OrderType: model.OrderMarket}, ErrInvalidOrder},
		{"unknown order type", niftyCE(), Params{Side: model.Sell, Lots: 1, OrderType: "ICEBERG"}, ErrInvalidOrder},
		{"no token", noToken, Params{Side: model.Sell, Lots: 1, OrderType: model.OrderMarket}, ErrInvalidOrder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.inst, tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
