// internal/workers/shopping/price-check/models.go
package pricecheck

type Input struct {
	SessionID    int64  `json:"sessionId"`
	ProductQuery string `json:"productQuery,omitempty"`
}

type Output struct {
	SessionID    int64         `json:"sessionId"`
	RecordsSaved int           `json:"recordsSaved"`
	Alerts       []AlertOutput `json:"alerts"`
	AlertCount   int           `json:"alertCount"`
}

type AlertOutput struct {
	Retailer      string  `json:"retailer"`
	OldPrice      float64 `json:"oldPrice"`
	NewPrice      float64 `json:"newPrice"`
	ChangePercent float64 `json:"changePercent"`
	Direction     string  `json:"direction"`
}

var inputSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"sessionId"},
	"properties": map[string]interface{}{
		"sessionId": map[string]interface{}{
			"type":    "integer",
			"minimum": 1,
		},
		"productQuery": map[string]interface{}{
			"type": "string",
		},
	},
}
