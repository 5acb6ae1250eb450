package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"papertrade/internal/indicators"
	"papertrade/internal/ledger"
	"papertrade/internal/market"
)

const newsWordLimit = 50

type reportInput struct {
	asset          ledger.AssetID
	price          decimal.Decimal
	stats          *market.Stats
	prediction     *Prediction
	sentiment      *Sentiment
	volatility     float64
	ind            indicators.Snapshot
	recommendation string
	capital        decimal.Decimal
	position       decimal.Decimal
	details        string
	truncateNews   bool
}

func money(d decimal.Decimal) string { return "$" + d.StringFixed(2) }

// truncateWords keeps the first n words and marks the cut with an ellipsis.
func truncateWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "..."
}

// renderReport builds the multi-line report and its one-line summary.
func renderReport(in reportInput) (string, string) {
	name := strings.ToUpper(string(in.asset))
	st := in.stats

	change, low, high, volume := "N/A", "N/A", "N/A", "N/A"
	if st != nil {
		change = st.ChangePercent.StringFixed(2) + "%"
		low = money(st.Low)
		high = money(st.High)
		volume = money(st.QuoteVolume)
	}
	predicted, uncertainty := "N/A", ""
	if in.prediction != nil {
		predicted = fmt.Sprintf("$%.2f", in.prediction.PredictedClose)
		uncertainty = fmt.Sprintf(" (±%.2f)", in.prediction.Uncertainty)
	}
	sentiment, news := "N/A", "N/A"
	if in.sentiment != nil {
		sentiment = fmt.Sprintf("%.2f", in.sentiment.Score)
		news = in.sentiment.Text
		if in.truncateNews {
			news = truncateWords(news, newsWordLimit)
		}
		if news == "" {
			news = "N/A"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Report for %s:\n", name)
	fmt.Fprintf(&b, "- Current Price: %s\n", money(in.price))
	fmt.Fprintf(&b, "- 24h Price Change: %s\n", change)
	fmt.Fprintf(&b, "- 24h Low: %s\n", low)
	fmt.Fprintf(&b, "- 24h High: %s\n", high)
	fmt.Fprintf(&b, "- 24h Volume: %s\n", volume)
	fmt.Fprintf(&b, "- Predicted Close: %s%s\n", predicted, uncertainty)
	fmt.Fprintf(&b, "- Volatility: %.4f\n", in.volatility)
	if in.ind.Samples > 0 {
		fmt.Fprintf(&b, "- RSI: %.2f | EMA: %.2f\n", in.ind.RSI, in.ind.EMA)
	}
	fmt.Fprintf(&b, "- News Sentiment: %s\n", sentiment)
	fmt.Fprintf(&b, "- News Text: %s\n", news)
	if in.recommendation != "" {
		fmt.Fprintf(&b, "- Recommendation: %s\n", in.recommendation)
	}
	fmt.Fprintf(&b, "- Current Capital: %s\n", money(in.capital))
	fmt.Fprintf(&b, "- Position: %s %s\n", in.position.StringFixed(8), name)
	if in.details != "" {
		fmt.Fprintf(&b, "Trade Details:\n%s\n", in.details)
	}
	full := strings.TrimSpace(b.String())

	parts := []string{
		name,
		"Price: " + money(in.price),
		"24h Change: " + change,
		"Predicted Close: " + predicted,
		"News Sentiment: " + sentiment,
	}
	if in.recommendation != "" {
		parts = append(parts, "Recommendation: "+in.recommendation)
	}
	parts = append(parts, "Capital: "+money(in.capital))
	if in.details != "" {
		parts = append(parts, strings.SplitN(in.details, "\n", 2)[0])
	}
	return full, strings.Join(parts, " | ")
}
