package indices

import (
	"fmt"
	"strings"
)

// Formula selects how the two reflectance bands of a Definition are combined.
type Formula int

const (
	// NormalizedDifference computes (A - B) / (A + B).
	NormalizedDifference Formula = iota
	// SoilAdjusted computes (A - B) * (1 + L) / (A + B + L).
	SoilAdjusted
)

func (f Formula) String() string {
	switch f {
	case NormalizedDifference:
		return "normalized-difference"
	case SoilAdjusted:
		return "soil-adjusted"
	default:
		return fmt.Sprintf("formula(%d)", int(f))
	}
}

// Range is a closed numeric interval.
type Range struct {
	Low  float64
	High float64
}

// Span returns High - Low.
func (r Range) Span() float64 {
	return r.High - r.Low
}

// Definition describes a two-band spectral index and how it is displayed.
type Definition struct {
	// Name is the band name the index is computed into (e.g. "NDVI")
	Name string

	// Slug is the lowercase name used in routes (e.g. "ndvi")
	Slug string

	Description string

	Formula Formula

	// BandA and BandB are the surface-reflectance bands combined by Formula
	BandA string
	BandB string

	// SoilFactor is the L term of SoilAdjusted formulas
	SoilFactor float64

	// SceneRange clamps the per-scene index before compositing
	SceneRange Range

	// CompositeRange clamps the composite
	CompositeRange Range

	Palette    []string
	DisplayMin float64
	DisplayMax float64

	DiffPalette []string
	DiffMin     float64
	DiffMax     float64

	// DefaultThreshold is used for change detection when the caller gives none
	DefaultThreshold float64

	// ChangeLabel names what a detected loss means for this index
	ChangeLabel string
}

// MaxChange is the largest absolute difference two composites of this index can have.
func (d Definition) MaxChange() float64 {
	return d.CompositeRange.Span()
}

var NDVI = Definition{
	Name:             "NDVI",
	Slug:             "ndvi",
	Description:      "Normalized Difference Vegetation Index",
	Formula:          NormalizedDifference,
	BandA:            "SR_B5",
	BandB:            "SR_B4",
	SceneRange:       Range{Low: -1, High: 1},
	CompositeRange:   Range{Low: -0.1, High: 0.9},
	Palette:          []string{"#762a83", "#af8dc3", "#e7d4e8", "#d9f0d3", "#7fbf7b", "#1b7837"},
	DisplayMin:       -0.2,
	DisplayMax:       0.8,
	DiffPalette:      []string{"#762a83", "#af8dc3", "#e7d4e8", "#7fbf7b", "#1b7837"},
	DiffMin:          -0.1,
	DiffMax:          0.1,
	DefaultThreshold: 0.2,
	ChangeLabel:      "deforestation",
}

var SAVI = Definition{
	Name:             "SAVI",
	Slug:             "savi",
	Description:      "Soil-Adjusted Vegetation Index",
	Formula:          SoilAdjusted,
	BandA:            "SR_B5",
	BandB:            "SR_B4",
	SoilFactor:       0.5,
	SceneRange:       Range{Low: -1, High: 1},
	CompositeRange:   Range{Low: -0.1, High: 0.9},
	Palette:          []string{"#8c510a", "#d8b365", "#f6e8c3", "#c7eae5", "#5ab4ac", "#01665e"},
	DisplayMin:       -0.1,
	DisplayMax:       0.7,
	DiffPalette:      []string{"#8c510a", "#d8b365", "#f5f5f5", "#5ab4ac", "#01665e"},
	DiffMin:          -0.1,
	DiffMax:          0.1,
	DefaultThreshold: 0.2,
	ChangeLabel:      "vegetation loss",
}

var NBR = Definition{
	Name:             "NBR",
	Slug:             "nbr",
	Description:      "Normalized Burn Ratio",
	Formula:          NormalizedDifference,
	BandA:            "SR_B5",
	BandB:            "SR_B7",
	SceneRange:       Range{Low: -1, High: 1},
	CompositeRange:   Range{Low: -1, High: 1},
	Palette:          []string{"#a50026", "#f46d43", "#fee08b", "#d9ef8b", "#66bd63", "#006837"},
	DisplayMin:       -0.5,
	DisplayMax:       0.8,
	DiffPalette:      []string{"#1a9850", "#91cf60", "#ffffbf", "#fc8d59", "#d73027"},
	DiffMin:          -0.5,
	DiffMax:          0.5,
	DefaultThreshold: 0.27,
	ChangeLabel:      "burn",
}

// Definitions lists every index the gateway serves.
var Definitions = []Definition{NDVI, SAVI, NBR}

// Lookup finds a definition by slug or name, case-insensitively.
func Lookup(name string) (Definition, bool) {
	for _, d := range Definitions {
		if strings.EqualFold(d.Slug, name) || strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Definition{}, false
}

// Names returns the slugs of all definitions.
func Names() []string {
	names := make([]string, len(Definitions))
	for i, d := range Definitions {
		names[i] = d.Slug
	}
	return names
}
