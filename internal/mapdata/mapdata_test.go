package mapdata

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadValidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	raw := `{
	  "id": "map-1",
	  "name": "Commons",
	  "active": true,
	  "items": [
	    {"id":"p1","x":0,"y":0,"width":2,"height":2,"category":"plot-standard","properties":{"name":"Plot 1","price":100}},
	    {"id":"r1","x":0,"y":2,"width":10,"height":1,"category":"road"}
	  ]
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.ID != "map-1" || len(doc.Items) != 2 {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if doc.Items[0].Properties.Price != 100 {
		t.Fatalf("properties not parsed: %+v", doc.Items[0])
	}

	isPlot := func(cat string) bool { return cat == "plot-standard" }
	plotItems := doc.Plots(isPlot)
	if len(plotItems) != 1 || plotItems[0].ID != "p1" {
		t.Fatalf("plot filter: %+v", plotItems)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		doc  Document
	}{
		{"missing map id", Document{Items: []Item{{ID: "a", Width: 1, Height: 1}}}},
		{"missing item id", Document{ID: "m", Items: []Item{{Width: 1, Height: 1}}}},
		{"duplicate item id", Document{ID: "m", Items: []Item{
			{ID: "a", Width: 1, Height: 1},
			{ID: "a", Width: 1, Height: 1},
		}}},
		{"zero width", Document{ID: "m", Items: []Item{{ID: "a", Width: 0, Height: 1}}}},
		{"negative height", Document{ID: "m", Items: []Item{{ID: "a", Width: 1, Height: -1}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.doc.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "map.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
