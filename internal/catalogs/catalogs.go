// Package catalogs loads the finite decoration and plot-type catalogs from
// the config directory. Catalog digests let clients cache-validate without
// refetching the full data.
package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	HouseTypes  HouseTypeCatalog
	HouseColors HouseColorCatalog
	PlotTypes   PlotTypeCatalog
}

type HouseTypeCatalog struct {
	Palette []string
	Defs    map[string]HouseTypeDef
	Digest  string
}

type HouseTypeDef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type HouseColorCatalog struct {
	Palette []string
	Defs    map[string]HouseColorDef
	Digest  string
}

type HouseColorDef struct {
	ID  string `json:"id"`
	Hex string `json:"hex"`
}

type PlotTypeCatalog struct {
	Palette []string
	Defs    map[string]PlotTypeDef
	Digest  string
}

type PlotTypeDef struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Color         string  `json:"color"`
	DefaultWidth  float64 `json:"default_width"`
	DefaultHeight float64 `json:"default_height"`
	BasePrice     float64 `json:"base_price"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadHouseTypes(filepath.Join(configDir, "house_types.json"), &c.HouseTypes); err != nil {
		return nil, err
	}
	if err := loadHouseColors(filepath.Join(configDir, "house_colors.json"), &c.HouseColors); err != nil {
		return nil, err
	}
	if err := loadPlotTypes(filepath.Join(configDir, "plot_types.json"), &c.PlotTypes); err != nil {
		return nil, err
	}

	return &c, nil
}

// ValidHouseType reports whether id names a known house type.
func (c *Catalogs) ValidHouseType(id string) bool {
	_, ok := c.HouseTypes.Defs[id]
	return ok
}

// ValidHouseColor reports whether id names a known house color.
func (c *Catalogs) ValidHouseColor(id string) bool {
	_, ok := c.HouseColors.Defs[id]
	return ok
}

// ValidPlotType reports whether id names a known plot classification.
func (c *Catalogs) ValidPlotType(id string) bool {
	_, ok := c.PlotTypes.Defs[id]
	return ok
}

// PlotBasePrice returns the catalog price for a plot type, or 0 when the
// type is unknown.
func (c *Catalogs) PlotBasePrice(id string) float64 {
	return c.PlotTypes.Defs[id].BasePrice
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadHouseTypes(path string, out *HouseTypeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []HouseTypeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("house_types.json: %w", err)
	}
	out.Defs = map[string]HouseTypeDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("house_types.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadHouseColors(path string, out *HouseColorCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []HouseColorDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("house_colors.json: %w", err)
	}
	out.Defs = map[string]HouseColorDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("house_colors.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadPlotTypes(path string, out *PlotTypeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PlotTypeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("plot_types.json: %w", err)
	}
	out.Defs = map[string]PlotTypeDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("plot_types.json: empty id")
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}
