package store

import "sort"

// sortRecords orders records oldest first. Stable so that records sharing
// a timestamp keep their append order within a key.
func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timestamp.Before(recs[j].Timestamp)
	})
}

// applyWindow applies the Since and Limit parts of a filter to an
// oldest-first slice.
func applyWindow(recs []Record, filter Filter) []Record {
	if !filter.Since.IsZero() {
		idx := 0
		for idx < len(recs) && recs[idx].Timestamp.Before(filter.Since) {
			idx++
		}
		recs = recs[idx:]
	}
	if filter.Limit > 0 && len(recs) > filter.Limit {
		recs = recs[len(recs)-filter.Limit:]
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}
