package advisor

import (
	"math"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"papertrade/internal/ledger"
	"papertrade/internal/strategy"
)

func encodeDecision(dc strategy.DecisionContext) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"asset":           string(dc.Asset),
		"price":           dc.Price.InexactFloat64(),
		"predicted_close": dc.Prediction.PredictedClose,
		"uncertainty":     dc.Prediction.Uncertainty,
		"sentiment_score": dc.Sentiment.Score,
		"sentiment_text":  dc.Sentiment.Text,
		"capital":         dc.Capital.InexactFloat64(),
		"position":        dc.Position.InexactFloat64(),
		"volatility":      dc.Volatility,
		"report":          dc.Report,
	})
}

func decodeDecision(s *structpb.Struct) strategy.DecisionContext {
	f := s.GetFields()
	return strategy.DecisionContext{
		Asset: ledger.AssetID(f["asset"].GetStringValue()),
		Price: decimal.NewFromFloat(f["price"].GetNumberValue()),
		Prediction: strategy.Prediction{
			PredictedClose: f["predicted_close"].GetNumberValue(),
			Uncertainty:    f["uncertainty"].GetNumberValue(),
		},
		Sentiment: strategy.Sentiment{
			Score: f["sentiment_score"].GetNumberValue(),
			Text:  f["sentiment_text"].GetStringValue(),
		},
		Capital:    decimal.NewFromFloat(f["capital"].GetNumberValue()),
		Position:   decimal.NewFromFloat(f["position"].GetNumberValue()),
		Volatility: f["volatility"].GetNumberValue(),
		Report:     f["report"].GetStringValue(),
	}
}

func encodeRecommendation(r strategy.Recommendation) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"action": string(r.Action),
		"source": r.Source,
		"note":   r.Note,
	})
}

// decodeRecommendation reads free-form worker output; unknown actions become HOLD.
func decodeRecommendation(s *structpb.Struct) strategy.Recommendation {
	f := s.GetFields()
	src := f["source"].GetStringValue()
	if src == "" {
		src = sourceRemote
	}
	return strategy.Recommendation{
		Action: strategy.ParseAction(f["action"].GetStringValue()),
		Source: src,
		Note:   f["note"].GetStringValue(),
	}
}

func encodeSentiment(s strategy.Sentiment) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"score": s.Score,
		"text":  s.Text,
	})
}

// decodeSentiment clamps the score into [-1, 1].
func decodeSentiment(s *structpb.Struct) strategy.Sentiment {
	f := s.GetFields()
	score := f["score"].GetNumberValue()
	if math.IsNaN(score) {
		score = 0
	}
	return strategy.Sentiment{
		Score: math.Max(-1, math.Min(1, score)),
		Text:  f["text"].GetStringValue(),
	}
}
