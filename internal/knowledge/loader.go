package knowledge

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"

	apperrors "shopping-agent/internal/common/errors"
	"shopping-agent/internal/common/logger"
	"shopping-agent/internal/common/validation"
)

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	cashbackSchema  = validation.MustCompile("cashback", mustRead("schemas/cashback.schema.json"))
	retailersSchema = validation.MustCompile("retailers", mustRead("schemas/retailers.schema.json"))
)

func mustRead(name string) []byte {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(err)
	}
	return raw
}

// LoadCashback reads and validates the cashback knowledge base.
// A missing file yields an empty knowledge base.
func LoadCashback(path string, log logger.Logger) (*CashbackKB, error) {
	kb := &CashbackKB{}
	found, err := load(path, cashbackSchema, kb, log)
	if err != nil {
		return nil, err
	}
	if found {
		log.Info("loaded cashback knowledge base", map[string]interface{}{
			"path":        path,
			"lastUpdated": orUnknown(kb.LastUpdated),
			"portals":     len(kb.Portals),
		})
	}
	return kb, nil
}

// LoadRetailers reads and validates the retailer knowledge base.
// A missing file yields an empty knowledge base.
func LoadRetailers(path string, log logger.Logger) (*RetailersKB, error) {
	kb := &RetailersKB{}
	found, err := load(path, retailersSchema, kb, log)
	if err != nil {
		return nil, err
	}
	for id, r := range kb.Retailers {
		r.ID = id
		kb.Retailers[id] = r
	}
	if found {
		log.Info("loaded retailer knowledge base", map[string]interface{}{
			"path":        path,
			"lastUpdated": orUnknown(kb.LastUpdated),
			"retailers":   len(kb.Retailers),
		})
	}
	return kb, nil
}

func load(path string, schema *validation.Schema, out interface{}, log logger.Logger) (bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("knowledge base not found", map[string]interface{}{"path": path})
		return false, nil
	}
	if err != nil {
		return false, apperrors.NewKnowledgeBaseInvalidError(path, err.Error())
	}

	if result := schema.ValidateBytes(raw); !result.Valid {
		return false, apperrors.NewKnowledgeBaseInvalidError(path, result.Error())
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, apperrors.NewKnowledgeBaseInvalidError(path, err.Error())
	}
	return true, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// NormalizeRetailer turns a display name into a knowledge base key, e.g. "B&H Photo" -> "bh_photo".
func NormalizeRetailer(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_", "&", "").Replace(key)
	return key
}

// UnmarshalJSON decodes the knowledge base and remembers the portal order.
func (kb *CashbackKB) UnmarshalJSON(data []byte) error {
	type plain CashbackKB
	if err := json.Unmarshal(data, (*plain)(kb)); err != nil {
		return err
	}
	var doc struct {
		Portals json.RawMessage `json:"portals"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	order, err := objectKeys(doc.Portals)
	if err != nil {
		return err
	}
	kb.PortalOrder = order
	return nil
}

// PortalIDs returns the portal ids in knowledge base order. Portals missing
// from PortalOrder follow in sorted order.
func (kb *CashbackKB) PortalIDs() []string {
	ids := make([]string, 0, len(kb.Portals))
	seen := make(map[string]bool, len(kb.Portals))
	for _, id := range kb.PortalOrder {
		if _, ok := kb.Portals[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, id := range sortedKeys(kb.Portals) {
		if !seen[id] {
			ids = append(ids, id)
		}
	}
	return ids
}

// objectKeys returns the member names of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil
	}

	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := tok.(string)
		keys = append(keys, key)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Guidance returns the guidance for a category, matched case-insensitively.
func (kb *CashbackKB) Guidance(category string) (CategoryGuidance, bool) {
	g, ok := kb.CategoryGuidance[strings.ToLower(category)]
	return g, ok
}

// Empty reports whether nothing was loaded.
func (kb *CashbackKB) Empty() bool {
	return len(kb.Portals) == 0 && len(kb.CategoryGuidance) == 0 && len(kb.UniversalExclusions) == 0
}

// RetailerIDs returns the retailer ids in a stable order.
func (kb *RetailersKB) RetailerIDs() []string {
	return sortedKeys(kb.Retailers)
}

// Empty reports whether nothing was loaded.
func (kb *RetailersKB) Empty() bool {
	return len(kb.Retailers) == 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
