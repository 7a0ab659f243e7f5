package pricing

import (
	"sort"

	"caprep-backend/catalog"
)

// PriceTable holds the rupee constants the tier formulas consult. A zero
// value means "use defaults" field-wise is NOT supported; callers override
// the whole table or none (Selection.Table == nil).
type PriceTable struct {
	Subject              int `json:"subject"`
	Combo                int `json:"combo"`
	AllSubjects          int `json:"all_subjects"`
	AllSeriesAllSubjects int `json:"all_series_all_subjects"`
	// Paper is kept for compatibility with the historical table; no pricing
	// branch consults it.
	Paper int `json:"paper"`
}

// DefaultPriceTable returns the current published constants.
func DefaultPriceTable() PriceTable {
	return PriceTable{
		Subject:              450,
		Combo:                1200,
		AllSubjects:          2000,
		AllSeriesAllSubjects: 6000,
		Paper:                400,
	}
}

// Selection is one pricing request. SeriesInstances is only meaningful for
// the full-syllabus tier; other tiers ignore it.
type Selection struct {
	SeriesType      catalog.SeriesType `json:"series_type"`
	SeriesInstances []string           `json:"series_instances"`
	Group           string             `json:"group"`
	Subjects        []string           `json:"subjects"`
	Table           *PriceTable        `json:"-"`
}

// Quote is the computed price for a Selection. FinalPrice currently always
// equals BasePrice; it exists so discounts can land without a wire change.
type Quote struct {
	BasePrice   int `json:"base_price"`
	TotalPapers int `json:"total_papers"`
	FinalPrice  int `json:"final_price"`
}

// Price computes the quote for a selection. It is pure and total: an
// invalid or empty selection yields a zero quote, never an error. Callers
// must treat a zero price as "nothing to charge", not as free access.
func Price(sel Selection) Quote {
	if !catalog.Valid(sel.SeriesType) {
		return Quote{}
	}
	table := DefaultPriceTable()
	if sel.Table != nil {
		table = *sel.Table
	}
	subjects := dedup(sel.Subjects)
	n := len(subjects)
	seriesCount := 1
	if catalog.HasSeriesMultiplier(sel.SeriesType) {
		seriesCount = len(dedup(sel.SeriesInstances))
		if seriesCount == 0 {
			return Quote{}
		}
	}
	if sel.Group == "" || n == 0 {
		return Quote{}
	}
	base := subjectTierPrice(table, n, sel.Group, seriesCount)
	papers := n * catalog.PapersPerSubject(sel.SeriesType) * seriesCount
	return Quote{BasePrice: base, TotalPapers: papers, FinalPrice: base}
}

// subjectTierPrice is the shared per-tier formula. seriesCount is 1 for
// every tier without a series multiplier, which makes the flat
// all-series-all-subjects combo reachable only from the full syllabus.
// The n==5 branch deliberately does not require group "Both": a five-subject
// selection inside a single group cannot be produced through the catalog
// (a group holds at most three subjects) but the historical fallback is kept
// so Price stays total.
func subjectTierPrice(t PriceTable, n int, group string, seriesCount int) int {
	switch {
	case n == 5 && group == catalog.GroupBoth && seriesCount == 3:
		return t.AllSeriesAllSubjects
	case n == 5:
		return t.AllSubjects * seriesCount
	case n >= 3:
		return t.Combo * seriesCount
	default:
		return n * t.Subject * seriesCount
	}
}

// dedup collapses duplicates and returns a sorted copy.
func dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
