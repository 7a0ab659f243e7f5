package enrollments

import "sort"

// Aggregate merges purchase rows into one entitlement per product. Subjects
// are unioned (duplicates collapse, so feeding the same row twice changes
// nothing), the earliest enrollment date wins and the latest non-nil expiry
// wins. Every input row lands in exactly one output entitlement; callers
// decide which rows qualify (normally only paid ones).
func Aggregate(records []Enrollment) map[ProductKey]Entitlement {
	out := map[ProductKey]Entitlement{}
	subjectSets := map[ProductKey]map[string]bool{}
	for _, rec := range records {
		key := rec.Key()
		ent, ok := out[key]
		if !ok {
			ent = Entitlement{
				ProductType:    rec.ProductType,
				ProductID:      rec.ProductID,
				EnrollmentDate: rec.EnrollmentDate,
				ExpiryDate:     rec.ExpiryDate,
			}
			subjectSets[key] = map[string]bool{}
		} else {
			if rec.EnrollmentDate.Before(ent.EnrollmentDate) {
				ent.EnrollmentDate = rec.EnrollmentDate
			}
			if rec.ExpiryDate != nil && (ent.ExpiryDate == nil || rec.ExpiryDate.After(*ent.ExpiryDate)) {
				ent.ExpiryDate = rec.ExpiryDate
			}
		}
		for _, s := range rec.Subjects {
			subjectSets[key][s] = true
		}
		out[key] = ent
	}
	for key, set := range subjectSets {
		ent := out[key]
		ent.Subjects = sortedKeys(set)
		out[key] = ent
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	out := []string{}
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
