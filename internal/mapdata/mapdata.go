// Package mapdata parses community map documents. A document is the
// design-time layout of one map: plot items plus decorative items
// (roads, trees, water) that never enter the ownership ledger.
package mapdata

import (
	"encoding/json"
	"fmt"
	"os"
)

type Document struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Items  []Item `json:"items"`
}

type Item struct {
	ID         string     `json:"id"`
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	Width      float64    `json:"width"`
	Height     float64    `json:"height"`
	Category   string     `json:"category"`
	Properties Properties `json:"properties"`
}

type Properties struct {
	Name  string  `json:"name,omitempty"`
	Price float64 `json:"price,omitempty"`
}

// Load reads and validates a map document from disk.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read map document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("parse map document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate checks structural requirements: ids present and unique,
// dimensions positive on every item.
func (d Document) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("map document missing id")
	}
	seen := make(map[string]struct{}, len(d.Items))
	for i, it := range d.Items {
		if it.ID == "" {
			return fmt.Errorf("item %d missing id", i)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("duplicate item id %q", it.ID)
		}
		seen[it.ID] = struct{}{}
		if it.Width <= 0 || it.Height <= 0 {
			return fmt.Errorf("item %q has non-positive dimensions", it.ID)
		}
	}
	return nil
}

// Plots returns the items whose category is a recognized plot type,
// per isPlot. Decorative items are filtered out.
func (d Document) Plots(isPlot func(category string) bool) []Item {
	var out []Item
	for _, it := range d.Items {
		if isPlot(it.Category) {
			out = append(out, it)
		}
	}
	return out
}
