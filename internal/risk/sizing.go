package risk

import "github.com/shopspring/decimal"

// SignalStrength scores agreement between the predicted move and news sentiment.
// priceSignal is (predicted - current) / current.
func SignalStrength(priceSignal, sentiment float64) float64 {
	switch {
	case priceSignal > 0.05 && sentiment > 0.5:
		return 0.9
	case priceSignal > 0.02 || sentiment > 0.3:
		return 0.7
	default:
		return 0.5
	}
}

// SizingFraction maps signal strength to the share of capital to commit.
func SizingFraction(strength float64) float64 {
	for _, t := range SizingTiers {
		if strength > t.Threshold {
			return t.Fraction
		}
	}
	return defaultSizingFraction
}

// TierSellFraction maps the profit margin over average cost to the share of position to sell.
// Zero means hold.
func TierSellFraction(margin float64) float64 {
	for _, t := range ProfitTiers {
		if margin >= t.Threshold {
			return t.Fraction
		}
	}
	return 0
}

// BuyQuantity sizes an entry so that notional plus fee fits in the committed capital.
// Capital under MinCapitalThreshold is committed in full. The result is truncated to 8 places.
func (c *Controller) BuyQuantity(capital, price, feeRate decimal.Decimal, strength float64) (decimal.Decimal, float64) {
	if !capital.IsPositive() || !price.IsPositive() {
		return decimal.Zero, 0
	}
	cfg := c.GetConfig()
	fraction := SizingFraction(strength)
	if capital.LessThanOrEqual(decimal.NewFromFloat(cfg.MinCapitalThreshold)) {
		fraction = 1
	}
	committed := capital.Mul(decimal.NewFromFloat(fraction))
	perUnit := price.Mul(decimal.NewFromInt(1).Add(feeRate))
	return committed.Div(perUnit).Truncate(qtyPlaces), fraction
}

// TierSellQuantity returns the quantity to take profit at the current price, zero to hold.
func TierSellQuantity(position, avgCost, price decimal.Decimal) (decimal.Decimal, float64) {
	if !position.IsPositive() || !avgCost.IsPositive() {
		return decimal.Zero, 0
	}
	margin, _ := price.Sub(avgCost).Div(avgCost).Float64()
	fraction := TierSellFraction(margin)
	if fraction == 0 {
		return decimal.Zero, 0
	}
	return position.Mul(decimal.NewFromFloat(fraction)).Truncate(qtyPlaces), fraction
}
