package result

import (
	"sort"

	"github.com/volatiletech/null/v8"
)

// Rank assigns sequential 1-based positions by descending percentage. Equal percentages are
// ordered by StudentID, then by their order in records. Only Position is modified.
// records are expected to share one GroupKey; the returned slice is in ranked order.
func Rank(records []Result) []Result {
	ranked := make([]Result, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Percentage != ranked[j].Percentage {
			return ranked[i].Percentage > ranked[j].Percentage
		}
		return ranked[i].StudentID < ranked[j].StudentID
	})
	for i := range ranked {
		ranked[i].Position = null.IntFrom(i + 1)
	}
	return ranked
}

// RankGroup ranks the rankable members of key inside ledger, in place, and clears the
// position of members that are not rankable (draft, rejected).
func RankGroup(ledger []Result, key GroupKey) {
	idx := make([]int, 0)
	members := make([]Result, 0)
	for i := range ledger {
		if ledger[i].Group() != key {
			continue
		}
		if !ledger[i].Status.Rankable() {
			ledger[i].Position = null.Int{}
			continue
		}
		idx = append(idx, i)
		members = append(members, ledger[i])
	}

	byID := make(map[string]null.Int, len(members))
	for _, r := range Rank(members) {
		byID[r.ID] = r.Position
	}
	for _, i := range idx {
		ledger[i].Position = byID[ledger[i].ID]
	}
}

// isRanked reports whether any member of key currently holds a position.
func isRanked(ledger []Result, key GroupKey) bool {
	for _, r := range ledger {
		if r.Group() == key && r.Position.Valid {
			return true
		}
	}
	return false
}
