package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Report parsing
// ==========================

const sampleReport = `Here are the prices I found for PlayStation 5:

1. **Amazon**
   - Base Price: $499.99
   - Tax (est. 8%): $40.00
   - Shipping: FREE
   - **TOTAL: $539.99**
   - URL: https://www.amazon.com/dp/B0CL5KNB9M
   - Cashback: Rakuten 1%
   - 💳 Best card: Amazon Prime Visa (5%)

2. **Best Buy**
   - Base Price: $1,049.00
   - Shipping: $9.99
   - Total: $1,058.99
   - Product URL: **https://www.bestbuy.com/site/ps5**

3. **Some Marketplace**
   - Base Price: $450.00
   - Price unavailable at checkout

Final notes: prices change often.`

func TestParseReport(t *testing.T) {
	records := ParseReport(sampleReport)
	require.Len(t, records, 2)

	amazon := records[0]
	assert.Equal(t, "Amazon", amazon.Retailer)
	assert.Equal(t, 499.99, amazon.BasePrice)
	assert.Equal(t, 40.00, amazon.Tax)
	assert.Equal(t, 0.0, amazon.Shipping)
	assert.Equal(t, 539.99, amazon.TotalPrice)
	assert.Equal(t, "https://www.amazon.com/dp/B0CL5KNB9M", amazon.ProductURL)
	assert.Contains(t, amazon.CashbackInfo, "Rakuten 1%")
	assert.Contains(t, amazon.CreditCardInfo, "Prime Visa")

	bestBuy := records[1]
	assert.Equal(t, "Best Buy", bestBuy.Retailer)
	assert.Equal(t, 1049.00, bestBuy.BasePrice)
	assert.Equal(t, 9.99, bestBuy.Shipping)
	assert.Equal(t, 1058.99, bestBuy.TotalPrice)
	assert.Equal(t, "https://www.bestbuy.com/site/ps5", bestBuy.ProductURL)
}

func TestEstimateMissing(t *testing.T) {
	records := EstimateMissing(ParseReport(sampleReport), 9.25)
	require.Len(t, records, 2)

	assert.Equal(t, 40.00, records[0].Tax)
	assert.Equal(t, 539.99, records[0].TotalPrice)

	assert.InDelta(t, 97.03, records[1].Tax, 0.001)
	assert.Equal(t, 1058.99, records[1].TotalPrice)
}

func TestEstimateMissing_TotalBelowBasePrice(t *testing.T) {
	records := EstimateMissing([]PriceRecord{{Retailer: "Target", BasePrice: 449, Shipping: 9, TotalPrice: 49}}, 9.25)

	assert.InDelta(t, 41.53, records[0].Tax, 0.001)
	assert.InDelta(t, 499.53, records[0].TotalPrice, 0.001)
}

func TestEstimateMissing_ZeroRate(t *testing.T) {
	records := EstimateMissing(ParseReport(sampleReport), 0)
	assert.Zero(t, records[1].Tax)
}

func TestParseReport_NoHeaders(t *testing.T) {
	assert.Empty(t, ParseReport("TOTAL: $10.00\nnothing else"))
	assert.Empty(t, ParseReport(""))
}

func TestRetailerHeader(t *testing.T) {
	tests := []struct {
		line string
		name string
		ok   bool
	}{
		{"**Walmart**", "Walmart", true},
		{"3. **B&H Photo**", "B&H Photo", true},
		{"- **Target**", "Target", true},
		{"**TOTAL: $10.00**", "", false},
		{"****", "", false},
		{"Walmart", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, ok := retailerHeader(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestExtractPrice(t *testing.T) {
	tests := []struct {
		text  string
		want  float64
		found bool
	}{
		{"TOTAL: $1,299.00", 1299.00, true},
		{"Tax (8%): $ 12.50", 12.50, true},
		{"Base Price: 45.10", 45.10, true},
		{"no numbers here", 0, false},
	}

	for _, tt := range tests {
		got, ok := ExtractPrice(tt.text)
		assert.Equal(t, tt.found, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}
