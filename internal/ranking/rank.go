// Package ranking scores candidate dates by how many participants are
// available on them.  It does no I/O.
package ranking

import (
	"sort"

	"github.com/iliyamo/datepoll/internal/model"
)

// RankedDate is one entry of the top-dates list.
type RankedDate struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Rank  int    `json:"rank"`
}

// RankDates counts, for every date in dates, the records that list it as
// available.  The result is sorted by count, highest first, with ties kept
// in the order of dates.  Dates nobody marked are dropped, so fewer than
// limit entries (possibly none) may come back.  Ranks run 1..k over the
// returned entries.  A limit of zero or less returns every counted date.
//
// Only counts matter, so permuting availabilities never changes the result.
func RankDates(dates []string, availabilities []model.Availability, limit int) []RankedDate {
	counts := make(map[string]int, len(dates))
	for _, a := range availabilities {
		seen := make(map[string]struct{}, len(a.AvailableDates))
		for _, d := range a.AvailableDates {
			if _, dup := seen[d]; dup {
				continue
			}
			seen[d] = struct{}{}
			counts[d]++
		}
	}

	out := make([]RankedDate, 0, len(dates))
	listed := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		if _, dup := listed[d]; dup {
			continue
		}
		listed[d] = struct{}{}
		if c := counts[d]; c > 0 {
			out = append(out, RankedDate{Date: d, Count: c})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
