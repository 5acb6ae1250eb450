package advisor

import (
	"context"
	"fmt"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

const sourceRules = "rules"

// RuleAdvisor recommends from the predicted move and the sentiment score alone.
type RuleAdvisor struct {
	BuyMove       float64 // predicted rise needed to buy
	SellMove      float64 // predicted fall (positive number) that triggers a sell
	MinSentiment  float64 // buys are vetoed below this
	SellSentiment float64 // sentiment at or below this sells regardless of the move
}

func NewRuleAdvisor() *RuleAdvisor {
	return &RuleAdvisor{BuyMove: 0.01, SellMove: 0.01, MinSentiment: -0.3, SellSentiment: -0.5}
}

// Decide implements strategy.RecommendationProvider.
func (r *RuleAdvisor) Decide(ctx context.Context, dc strategy.DecisionContext) (strategy.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return strategy.Recommendation{}, err
	}
	price := dc.Price.InexactFloat64()
	if price <= 0 {
		return strategy.Recommendation{Action: strategy.ActionHold, Source: sourceRules, Note: "no price"}, nil
	}
	move := (dc.Prediction.PredictedClose - price) / price
	score := dc.Sentiment.Score
	note := fmt.Sprintf("predicted move %.2f%%, sentiment %.2f", move*100, score)

	action := strategy.ActionHold
	switch {
	case move >= r.BuyMove && score >= r.MinSentiment:
		action = strategy.ActionBuy
	case move <= -r.SellMove || score <= r.SellSentiment:
		action = strategy.ActionSell
	}
	return strategy.Recommendation{Action: action, Source: sourceRules, Note: note}, nil
}

// NeutralSentiment always scores zero.
type NeutralSentiment struct{}

func (NeutralSentiment) Sentiment(ctx context.Context, asset ledger.AssetID) (strategy.Sentiment, error) {
	return strategy.Sentiment{Score: 0, Text: "No news source configured."}, ctx.Err()
}
