package protocol_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

func newCompiler(t *testing.T) *jsonschema.Compiler {
	t.Helper()
	c := jsonschema.NewCompiler()
	// plot.schema.json is cross-referenced by $id, so register every
	// schema file under its canonical URL.
	dir := filepath.Join("..", "..", "schemas")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read schemas dir: %v", err)
	}
	for _, e := range entries {
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatalf("open %s: %v", e.Name(), err)
		}
		url := "https://neighborhood.land/schemas/" + e.Name()
		if err := c.AddResource(url, f); err != nil {
			t.Fatalf("add %s: %v", e.Name(), err)
		}
		f.Close()
	}
	return c
}

func TestSchemas_ValidateSamples(t *testing.T) {
	c := newCompiler(t)
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		s, err := c.Compile("https://neighborhood.land/schemas/" + name)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	validate := func(s *jsonschema.Schema, raw string) {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal sample: %v", err)
		}
		if err := s.Validate(v); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}

	welcomeSchema := compile("welcome.schema.json")
	plotEventSchema := compile("plot_event.schema.json")
	errorSchema := compile("error.schema.json")
	purchaseSchema := compile("purchase_request.schema.json")

	validate(welcomeSchema, `{
	  "type":"WELCOME",
	  "protocol_version":"1.0",
	  "session_id":"S1",
	  "active_map_id":"map-1",
	  "catalogs":{
	    "house_types":{"digest":"deadbeef","count":5},
	    "house_colors":{"digest":"deadbeef","count":10},
	    "plot_types":{"digest":"deadbeef","count":3}
	  }
	}`)

	validate(plotEventSchema, `{
	  "type":"PLOT_EVENT",
	  "kind":"purchase",
	  "at":"2026-03-01T12:00:00Z",
	  "plot":{
	    "id":"plot-a","map_id":"map-1","name":"Plot A",
	    "x":0,"y":0,"width":2,"height":2,
	    "plot_type":"plot-standard","price":100,
	    "owner_id":"acc-1","house_type":"type1","house_color":"red",
	    "likes_count":0,
	    "created_at":"2026-03-01T12:00:00Z","updated_at":"2026-03-01T12:00:00Z"
	  }
	}`)

	validate(errorSchema, `{"type":"ERROR","code":"E_PLOT_ALREADY_OWNED","message":"plot is already owned"}`)
	validate(purchaseSchema, `{"plot_id":"plot-a","house_type":"type1","house_color":"red"}`)
}

func TestSchemas_RejectInvalid(t *testing.T) {
	c := newCompiler(t)
	s, err := c.Compile("https://neighborhood.land/schemas/plot_event.schema.json")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	bad := []string{
		`{"type":"PLOT_EVENT","kind":"demolish","at":"2026-03-01T12:00:00Z","plot":{"id":"p","map_id":"m","x":0,"y":0,"width":1,"height":1,"plot_type":"plot-standard","price":0,"likes_count":0,"created_at":"t","updated_at":"t"}}`,
		`{"type":"PLOT_EVENT","kind":"purchase","at":"2026-03-01T12:00:00Z","plot":{"id":"p","map_id":"m","x":0,"y":0,"width":0,"height":1,"plot_type":"plot-standard","price":0,"likes_count":0,"created_at":"t","updated_at":"t"}}`,
		`{"type":"PLOT_EVENT","kind":"purchase"}`,
	}
	for i, raw := range bad {
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal sample %d: %v", i, err)
		}
		if err := s.Validate(v); err == nil {
			t.Errorf("sample %d validated but should not", i)
		}
	}
}
