package knowledge

import (
	"fmt"
	"strconv"
	"strings"

	"shopping-agent/internal/vectorstore"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	SourceKnowledgeBase       = "knowledge_base"
	SourceCategoryGuidance    = "category_guidance"
	SourceUniversalExclusions = "universal_exclusions"
	SourceRetailers           = "retailers_knowledge_base"
	SourceCategoryMapping     = "category_mapping"
)

var docNamespace = uuid.MustParse("6f1c8f0e-2f7a-4d4e-9a51-0c3b7f0b5e21")

// TitleID renders a snake_case id for display, e.g. "best_buy" -> "Best Buy".
func TitleID(id string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(id, "_", " "))
}

func docID(parts ...string) string {
	return uuid.NewSHA1(docNamespace, []byte(strings.Join(parts, "/"))).String()
}

// Documents turns the cashback knowledge base into indexable documents.
func (kb *CashbackKB) Documents() []vectorstore.Document {
	var docs []vectorstore.Document

	for _, portalID := range kb.PortalIDs() {
		portal := kb.Portals[portalID]
		name := portal.PortalName(portalID)

		for _, retailerID := range sortedKeys(portal.Retailers) {
			r := portal.Retailers[retailerID]
			baseRate := r.BaseRate
			if baseRate == "" {
				baseRate = "varies"
			}

			rates := make([]string, 0, len(r.Categories))
			for _, cat := range sortedKeys(r.Categories) {
				rates = append(rates, cat+": "+r.Categories[cat])
			}
			categoryText := strings.Join(rates, ", ")
			if categoryText == "" {
				categoryText = "Same as base rate"
			}

			content := strings.Join([]string{
				"Portal: " + name,
				"Retailer: " + TitleID(retailerID),
				"Base Cashback Rate: " + baseRate,
				"Category-Specific Rates: " + categoryText,
				"Notes: " + r.Notes,
			}, "\n")

			docs = append(docs, vectorstore.Document{
				ID:      docID("cashback", portalID, retailerID),
				Content: strings.TrimSpace(content),
				Metadata: map[string]string{
					"portal":    name,
					"portal_id": portalID,
					"retailer":  retailerID,
					"base_rate": baseRate,
					"source":    SourceKnowledgeBase,
				},
			})
		}

		for _, excluded := range portal.Exclusions {
			content := strings.Join([]string{
				"Portal: " + name,
				"Retailer: " + TitleID(excluded),
				"Cashback Rate: NO CASHBACK AVAILABLE",
				fmt.Sprintf("This retailer is explicitly excluded from %s's cashback program.", name),
			}, "\n")

			docs = append(docs, vectorstore.Document{
				ID:      docID("exclusion", portalID, excluded),
				Content: content,
				Metadata: map[string]string{
					"portal":    name,
					"portal_id": portalID,
					"retailer":  excluded,
					"base_rate": "0%",
					"excluded":  "true",
					"source":    SourceKnowledgeBase,
				},
			})
		}
	}

	for _, category := range sortedKeys(kb.CategoryGuidance) {
		g := kb.CategoryGuidance[category]
		title := TitleID(category)
		content := strings.Join([]string{
			"Product Category: " + title,
			"Typical Cashback Range: " + orDefault(g.TypicalRange, "varies"),
			fmt.Sprintf("Best Portal for %s: %s", title, orDefault(g.BestPortal, "varies by retailer")),
			"Notes: " + g.Notes,
		}, "\n")

		docs = append(docs, vectorstore.Document{
			ID:      docID("guidance", category),
			Content: strings.TrimSpace(content),
			Metadata: map[string]string{
				"category": category,
				"source":   SourceCategoryGuidance,
			},
		})
	}

	for _, retailer := range sortedKeys(kb.UniversalExclusions) {
		content := strings.Join([]string{
			"Retailer: " + TitleID(retailer),
			"Cashback Status: UNIVERSALLY EXCLUDED",
			"Reason: " + kb.UniversalExclusions[retailer],
			"This retailer does not participate in any major cashback portal programs.",
		}, "\n")

		docs = append(docs, vectorstore.Document{
			ID:      docID("universal", retailer),
			Content: content,
			Metadata: map[string]string{
				"retailer":            retailer,
				"excluded":            "true",
				"universal_exclusion": "true",
				"source":              SourceUniversalExclusions,
			},
		})
	}

	return docs
}

// Documents turns the retailer knowledge base into indexable documents.
func (kb *RetailersKB) Documents() []vectorstore.Document {
	var docs []vectorstore.Document

	for _, id := range kb.RetailerIDs() {
		r := kb.Retailers[id]
		name := r.DisplayName()

		lines := []string{
			"Retailer: " + name,
			"Domain: " + r.Domain,
			"Search URL Pattern: " + r.SearchURLPattern,
			"Categories: " + strings.Join(r.Categories, ", "),
			"Best For: " + strings.Join(r.BestFor, ", "),
			fmt.Sprintf("Shipping: Free threshold $%s, Standard cost $%s",
				formatAmount(r.Shipping.FreeThreshold), formatAmount(r.Shipping.StandardCost)),
			fmt.Sprintf("Tax Rate (94022): %s%%", formatTaxRate(r.Tax.Rate94022)),
			"Notes: " + r.Notes,
		}
		if r.MembershipRequired {
			lines = append(lines, fmt.Sprintf("Membership Required: Yes, $%s/year", formatFloat(r.MembershipCost)))
		}
		if r.PaymentRestriction != "" {
			lines = append(lines, "Payment Restriction: "+r.PaymentRestriction)
		}

		docs = append(docs, vectorstore.Document{
			ID:      docID("retailer", id),
			Content: strings.TrimSpace(strings.Join(lines, "\n")),
			Metadata: map[string]string{
				"retailer_id":        id,
				"name":               name,
				"domain":             r.Domain,
				"search_url_pattern": r.SearchURLPattern,
				"categories":         strings.Join(r.Categories, ","),
				"source":             SourceRetailers,
			},
		})
	}

	for _, category := range sortedKeys(kb.CategoryRetailers) {
		ids := kb.CategoryRetailers[category]
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			if r, ok := kb.Retailers[id]; ok {
				names = append(names, r.DisplayName())
			}
		}

		content := strings.Join([]string{
			"Product Category: " + category,
			"Recommended Retailers: " + strings.Join(names, ", "),
			fmt.Sprintf("Number of Retailers: %d", len(names)),
			"Search Tip: " + orDefault(kb.SearchTips[category], "Use specific product name"),
		}, "\n")

		docs = append(docs, vectorstore.Document{
			ID:      docID("category", category),
			Content: content,
			Metadata: map[string]string{
				"category":     category,
				"retailer_ids": strings.Join(ids, ","),
				"source":       SourceCategoryMapping,
			},
		})
	}

	return docs
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatAmount(v *float64) string {
	if v == nil {
		return "varies"
	}
	return formatFloat(*v)
}

func formatTaxRate(v *float64) string {
	if v == nil {
		return "9.25"
	}
	return formatFloat(*v)
}
