// internal/workers/shopping/complete-search/models.go
package completesearch

type Input struct {
	ProductQuery string `json:"productQuery"`
}

type Output struct {
	RunID          string `json:"runId"`
	ProductQuery   string `json:"productQuery"`
	Category       string `json:"category"`
	ProductResults string `json:"productResults"`
	CashbackData   string `json:"cashbackData"`
	CreditCardData string `json:"creditCardData"`
	FinalResults   string `json:"finalResults"`
	DurationMs     int64  `json:"durationMs"`
}

var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"productQuery"},
	"properties": map[string]interface{}{
		"productQuery": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
	},
}
