// Package knowledge loads the static cashback and retailer knowledge bases.
package knowledge

// CashbackKB is the cashback portal knowledge base.
type CashbackKB struct {
	LastUpdated         string                      `json:"last_updated"`
	Portals             map[string]Portal           `json:"portals"`
	CategoryGuidance    map[string]CategoryGuidance `json:"category_guidance"`
	UniversalExclusions map[string]string           `json:"universal_exclusions"`
	// PortalOrder lists portal ids as they appear in the source document.
	PortalOrder         []string                    `json:"-"`
}

type Portal struct {
	Name       string                    `json:"name"`
	Exclusions []string                  `json:"exclusions"`
	Retailers  map[string]PortalRetailer `json:"retailers"`
}

type PortalRetailer struct {
	BaseRate   string            `json:"base_rate"`
	Categories map[string]string `json:"categories"`
	Notes      string            `json:"notes"`
}

type CategoryGuidance struct {
	TypicalRange string `json:"typical_range"`
	BestPortal   string `json:"best_portal"`
	Notes        string `json:"notes"`
}

// PortalName falls back to the portal id when no display name is set.
func (p Portal) PortalName(id string) string {
	if p.Name != "" {
		return p.Name
	}
	return id
}

// Excludes reports whether the normalised retailer key is on the portal's exclusion list.
func (p Portal) Excludes(retailerKey string) bool {
	for _, e := range p.Exclusions {
		if e == retailerKey {
			return true
		}
	}
	return false
}

// RetailersKB is the retailer search knowledge base.
type RetailersKB struct {
	LastUpdated       string              `json:"last_updated"`
	Retailers         map[string]Retailer `json:"retailers"`
	CategoryRetailers map[string][]string `json:"category_retailers"`
	SearchTips        map[string]string   `json:"search_tips"`
}

type Retailer struct {
	ID                 string   `json:"-"`
	Name               string   `json:"name"`
	Domain             string   `json:"domain"`
	SearchURLPattern   string   `json:"search_url_pattern"`
	Categories         []string `json:"categories"`
	BestFor            []string `json:"best_for"`
	Shipping           Shipping `json:"shipping"`
	Tax                Tax      `json:"tax"`
	Notes              string   `json:"notes"`
	MembershipRequired bool     `json:"membership_required"`
	MembershipCost     float64  `json:"membership_cost"`
	PaymentRestriction string   `json:"payment_restriction"`
}

type Shipping struct {
	FreeThreshold *float64 `json:"free_threshold"`
	StandardCost  *float64 `json:"standard_cost"`
}

type Tax struct {
	Rate94022 *float64 `json:"rate_94022"`
}

// DisplayName falls back to the retailer id when no name is set.
func (r Retailer) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}
