package shopping

import "strings"

// CardRecommendation is the best card for one retailer.
type CardRecommendation struct {
	Retailer string `json:"retailer"`
	Card     string `json:"card"`
	Rate     string `json:"rate"`
}

var (
	bofaOnline  = CardRecommendation{Card: "BofA Customized Cash", Rate: "3% back (Online Shopping category)"}
	defaultCard = CardRecommendation{Card: "Citi Double Cash", Rate: "2% back on everything"}

	cardTable = map[string]CardRecommendation{
		"Amazon":    {Card: "Amazon Prime Visa", Rate: "5% back"},
		"Costco":    {Card: "Costco Anywhere Visa", Rate: "2% back (Visa only!)"},
		"Best Buy":  bofaOnline,
		"Walmart":   bofaOnline,
		"B&H Photo": bofaOnline,
		"Newegg":    bofaOnline,
		"Target":    {Card: "Target RedCard", Rate: "5% back"},
	}
)

// RecommendCard returns the table entry for a retailer, falling back to a flat 2% card.
func RecommendCard(retailer string) CardRecommendation {
	rec, ok := cardTable[retailer]
	if !ok {
		rec = defaultCard
	}
	rec.Retailer = retailer
	return rec
}

// RecommendCards looks up every retailer in input order.
func RecommendCards(retailers []string) []CardRecommendation {
	out := make([]CardRecommendation, 0, len(retailers))
	for _, r := range retailers {
		out = append(out, RecommendCard(r))
	}
	return out
}

// FormatCardRecommendations renders the recommendations with the store restriction notes.
func FormatCardRecommendations(recs []CardRecommendation) string {
	var b strings.Builder
	b.WriteString("💳 Credit Card Recommendations:\n\n")
	for i, rec := range recs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• " + rec.Retailer + ": " + rec.Card + " - " + rec.Rate)
	}
	b.WriteString("\n\n⚠️ Notes:\n")
	b.WriteString("• Costco only accepts Visa cards\n")
	b.WriteString("• BofA Customized Cash requires setting Online Shopping as your 3% category")
	return b.String()
}
