package tracker

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"shopping-agent/internal/shopping"
)

var (
	dollarAmount = regexp.MustCompile(`\$\s*([\d,]+\.?\d*)`)
	anyAmount    = regexp.MustCompile(`([\d,]+\.?\d*)`)
	listPrefix   = regexp.MustCompile(`^(?:\d+[.)]|[-*•])\s+`)
	urlField     = regexp.MustCompile(`(?i)url:\s*(.*)$`)
)

// PriceRecord is one retailer's price as read from an agent report.
type PriceRecord struct {
	ID             int64     `json:"id,omitempty"`
	SessionID      int64     `json:"session_id"`
	Timestamp      time.Time `json:"timestamp"`
	Retailer       string    `json:"retailer"`
	ProductURL     string    `json:"product_url"`
	BasePrice      float64   `json:"base_price"`
	Tax            float64   `json:"tax"`
	Shipping       float64   `json:"shipping"`
	TotalPrice     float64   `json:"total_price"`
	CashbackInfo   string    `json:"cashback_info"`
	CreditCardInfo string    `json:"credit_card_info"`
}

// ParseReport walks a report line by line. A `**Retailer**` header opens a
// record; it is kept only when a total was found before the next header.
func ParseReport(text string) []PriceRecord {
	var (
		records  []PriceRecord
		current  *PriceRecord
		hasTotal bool
	)

	flush := func() {
		if current != nil && hasTotal {
			records = append(records, *current)
		}
	}

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		lower := strings.ToLower(line)

		if name, ok := retailerHeader(line); ok {
			flush()
			current = &PriceRecord{Retailer: name}
			hasTotal = false
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case strings.Contains(lower, "base price:"):
			if p, ok := ExtractPrice(line); ok {
				current.BasePrice = p
			}
		case strings.Contains(line, "Tax") && strings.Contains(line, "$"):
			if p, ok := ExtractPrice(line); ok {
				current.Tax = p
			}
		case strings.Contains(lower, "shipping:"):
			if strings.Contains(lower, "free") {
				current.Shipping = 0
			} else if p, ok := ExtractPrice(line); ok {
				current.Shipping = p
			}
		case strings.Contains(line, "TOTAL:") || strings.Contains(line, "Total:"):
			if p, ok := ExtractPrice(line); ok {
				current.TotalPrice = p
				hasTotal = true
			}
		case strings.Contains(lower, "url:"):
			if m := urlField.FindStringSubmatch(line); m != nil {
				current.ProductURL = strings.TrimSpace(strings.Trim(m[1], "* "))
			}
		case strings.Contains(line, "Cashback"):
			current.CashbackInfo = line
		case strings.Contains(line, "Credit Card") || strings.Contains(line, "💳"):
			current.CreditCardInfo = line
		}
	}
	flush()

	return records
}

// EstimateMissing fills the tax of records that have a base price but no tax
// line, using a flat rate in percent. A total below the base price cannot be
// right and is replaced by the estimated total. A zero rate leaves records as
// they are.
func EstimateMissing(records []PriceRecord, taxRate float64) []PriceRecord {
	if taxRate <= 0 {
		return records
	}
	for i := range records {
		r := &records[i]
		if r.BasePrice <= 0 {
			continue
		}
		if r.Tax == 0 {
			r.Tax = shopping.EstimateTax(r.BasePrice, taxRate)
		}
		if r.TotalPrice < r.BasePrice {
			r.TotalPrice = shopping.EstimateTotal(r.BasePrice, taxRate, r.Shipping)
		}
	}
	return records
}

// retailerHeader recognises `**Name**` with an optional list marker before it.
// Bold lines carrying a colon are fields such as `**TOTAL: $1**`, not headers.
func retailerHeader(line string) (string, bool) {
	line = listPrefix.ReplaceAllString(line, "")
	if len(line) <= 4 || !strings.HasPrefix(line, "**") || !strings.HasSuffix(line, "**") {
		return "", false
	}
	name := strings.TrimSpace(strings.Trim(line, "*"))
	if name == "" || strings.Contains(name, ":") {
		return "", false
	}
	return name, true
}

// ExtractPrice returns the first dollar amount in text, else the first number.
func ExtractPrice(text string) (float64, bool) {
	m := dollarAmount.FindStringSubmatch(text)
	if m == nil {
		m = anyAmount.FindStringSubmatch(text)
	}
	if m == nil {
		return 0, false
	}
	p, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return p, true
}
