package review

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgallion1/docreview/internal/extract"
	"github.com/dgallion1/docreview/internal/fieldtree"
)

// InventoryPage is one fields_by_page entry. Key is the page as written in the
// document; it is normally a one-based page number.
type InventoryPage struct {
	Key    string
	Fields []extract.Candidate
}

// Inventory is the fields_by_page mapping, in document order.
type Inventory struct {
	Pages []InventoryPage
}

// FieldCount is the number of field descriptors across all pages.
func (inv Inventory) FieldCount() int {
	n := 0
	for _, p := range inv.Pages {
		n += len(p.Fields)
	}
	return n
}

func (inv Inventory) MarshalJSON() ([]byte, error) {
	obj := fieldtree.NewObject()
	for _, p := range inv.Pages {
		fields := p.Fields
		if fields == nil {
			fields = []extract.Candidate{}
		}
		if err := obj.SetValue(p.Key, fields); err != nil {
			return nil, err
		}
	}
	return obj.MarshalJSON()
}

// decodeInventory reads fields_by_page. Descriptors that are not objects or
// lack a field name are dropped with a warning.
func decodeInventory(raw json.RawMessage, log *slog.Logger) (Inventory, error) {
	var inv Inventory
	if len(bytes.TrimSpace(raw)) == 0 || isNull(raw) {
		return inv, nil
	}
	pages := fieldtree.NewObject()
	if err := json.Unmarshal(raw, pages); err != nil {
		return inv, fmt.Errorf("fields_by_page: %w", err)
	}
	for _, key := range pages.Keys() {
		page := InventoryPage{Key: key}
		var descs []json.RawMessage
		if _, err := pages.Decode(key, &descs); err != nil {
			log.Warn("skipping inventory page that is not a list", "page", key, "error", err)
			continue
		}
		for i, d := range descs {
			c, ok := decodeDescriptor(d)
			if !ok {
				log.Warn("skipping inventory field without a name", "page", key, "index", i)
				continue
			}
			page.Fields = append(page.Fields, c)
		}
		inv.Pages = append(inv.Pages, page)
	}
	return inv, nil
}

func decodeDescriptor(raw json.RawMessage) (extract.Candidate, bool) {
	var name struct {
		FieldName string `json:"field_name"`
	}
	if err := json.Unmarshal(raw, &name); err != nil || name.FieldName == "" {
		return extract.Candidate{}, false
	}
	var c extract.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		// Only the name is needed to locate the field.
		return extract.Candidate{FieldName: name.FieldName}, true
	}
	return c, true
}
