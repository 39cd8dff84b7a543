package shopping

import (
	"fmt"
	"strings"
)

var (
	searchIndicators  = []string{"/search", "/s?", "searchpage", "query=", "q="}
	productIndicators = []string{"/dp/", "/ip/", "/product/", "/p/", "sku=", "pid="}
)

// URLCheck is the outcome of ValidateURL.
type URLCheck struct {
	URL             string   `json:"url"`
	ExpectedProduct string   `json:"expected_product"`
	Issues          []string `json:"issues"`
}

func (c URLCheck) Valid() bool { return len(c.Issues) == 0 }

// String renders the check the way the tool surfaces report it.
func (c URLCheck) String() string {
	if c.Valid() {
		return fmt.Sprintf("✅ URL appears to be a valid product page for '%s'", c.ExpectedProduct)
	}
	var b strings.Builder
	b.WriteString("❌ URL Validation Issues:\n")
	for i, issue := range c.Issues {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  • " + issue)
	}
	return b.String()
}

// ValidateURL applies the structural product-page heuristics to a URL.
func ValidateURL(rawURL, expectedProduct string) URLCheck {
	check := URLCheck{URL: rawURL, ExpectedProduct: expectedProduct}
	lower := strings.ToLower(rawURL)

	if strings.Count(rawURL, "/") <= 3 {
		check.Issues = append(check.Issues, "URL appears to be a homepage, not a product page")
	}

	for _, ind := range searchIndicators {
		if strings.Contains(lower, ind) {
			check.Issues = append(check.Issues, fmt.Sprintf("URL appears to be a search page (contains '%s')", ind))
			break
		}
	}

	hasProductID := false
	for _, ind := range productIndicators {
		if strings.Contains(lower, ind) {
			hasProductID = true
			break
		}
	}
	if !hasProductID && len(check.Issues) == 0 {
		check.Issues = append(check.Issues, "URL may not contain a product identifier")
	}

	return check
}
