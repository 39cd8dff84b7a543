// Package shopping holds the static lookup tables: categories, card rewards, URL checks and tax.
package shopping

import "strings"

const (
	CategoryElectronics = "Electronics"
	CategoryClothing    = "Clothing"
	CategoryHome        = "Home/Furniture"
	CategoryBeauty      = "Beauty"
	CategoryGeneral     = "General"
)

type categoryKeywords struct {
	category string
	keywords []string
}

// Order matters: the first group with a matching keyword wins.
var categoryTable = []categoryKeywords{
	{CategoryElectronics, []string{"phone", "laptop", "computer", "tv", "headphone", "airpod", "playstation", "xbox", "nintendo", "camera", "tablet", "watch"}},
	{CategoryClothing, []string{"shirt", "pants", "dress", "jacket", "shoes", "clothing"}},
	{CategoryHome, []string{"sofa", "chair", "table", "bed", "furniture", "mattress"}},
	{CategoryBeauty, []string{"makeup", "skincare", "beauty", "cosmetic"}},
}

// DefaultRetailers are the stores the orchestrator asks about when none are given.
var DefaultRetailers = []string{"Amazon", "Best Buy", "Walmart", "Target", "Costco", "B&H Photo", "Newegg"}

// DetectCategory maps a free-form product query to a coarse category by keyword.
func DetectCategory(query string) string {
	q := strings.ToLower(query)
	for _, group := range categoryTable {
		for _, kw := range group.keywords {
			if strings.Contains(q, kw) {
				return group.category
			}
		}
	}
	return CategoryGeneral
}
