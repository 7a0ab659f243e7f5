package catalog

// SeriesType identifies one of the four test-series product families.
type SeriesType string

const (
	FullSyllabus       SeriesType = "full_syllabus"
	HalfSyllabus       SeriesType = "half_syllabus"
	ThirtyPercent      SeriesType = "thirty_percent"
	SuccessfulSpecials SeriesType = "successful_specials"
)

// Subject groups as sold. "Both" is the union of Group 1 and Group 2.
const (
	GroupOne  = "Group 1"
	GroupTwo  = "Group 2"
	GroupBoth = "Both"
)

// SeriesInstances are the parallel full-syllabus batches a student can pick.
// Only the full syllabus series varies by instance.
var SeriesInstances = []string{"Series 1", "Series 2", "Series 3"}

var groupSubjects = map[string][]string{
	GroupOne: {"FR", "AFM", "Audit"},
	GroupTwo: {"DT", "IDT"},
}

type seriesDef struct {
	label               string
	papersPerSubject    int
	hasSeriesMultiplier bool
}

var seriesDefs = map[SeriesType]seriesDef{
	FullSyllabus:       {label: "Full Syllabus", papersPerSubject: 1, hasSeriesMultiplier: true},
	HalfSyllabus:       {label: "50% Syllabus", papersPerSubject: 2},
	ThirtyPercent:      {label: "30% Syllabus", papersPerSubject: 3},
	SuccessfulSpecials: {label: "CA Successful Specials", papersPerSubject: 6},
}

// SubjectsForGroup returns the subjects sold under a group. Unknown groups
// return nil.
func SubjectsForGroup(group string) []string {
	if group == GroupBoth {
		out := append([]string{}, groupSubjects[GroupOne]...)
		return append(out, groupSubjects[GroupTwo]...)
	}
	return append([]string(nil), groupSubjects[group]...)
}

// PapersPerSubject returns how many papers each subject carries for a tier,
// or 0 for an unknown tier.
func PapersPerSubject(st SeriesType) int {
	return seriesDefs[st].papersPerSubject
}

// HasSeriesMultiplier reports whether the tier price scales with the number
// of selected series instances.
func HasSeriesMultiplier(st SeriesType) bool {
	return seriesDefs[st].hasSeriesMultiplier
}

// Label returns the display name of a tier ("" for unknown tiers).
func Label(st SeriesType) string {
	return seriesDefs[st].label
}

// Valid reports whether st is one of the four sold tiers.
func Valid(st SeriesType) bool {
	_, ok := seriesDefs[st]
	return ok
}

// Types lists the tiers in display order.
func Types() []SeriesType {
	return []SeriesType{FullSyllabus, HalfSyllabus, ThirtyPercent, SuccessfulSpecials}
}
