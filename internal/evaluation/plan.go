package evaluation

import (
	"sort"

	"github.com/LaliChicken/active-role-bot/internal/activity"
)

// Plan lists the role changes needed to make the holders match the winners.
type Plan struct {
	Grants  []string
	Revokes []string
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Grants) == 0 && len(p.Revokes) == 0
}

// Winners returns the members whose count reaches threshold, ordered by count descending and then
// member id.
func Winners(counts []activity.MemberCount, threshold int) []activity.MemberCount {
	winners := make([]activity.MemberCount, 0, len(counts))
	for _, count := range counts {
		if count.Count >= int64(threshold) {
			winners = append(winners, count)
		}
	}
	sort.SliceStable(winners, func(i, j int) bool {
		if winners[i].Count != winners[j].Count {
			return winners[i].Count > winners[j].Count
		}
		return winners[i].MemberID < winners[j].MemberID
	})
	return winners
}

// Diff computes the grants and revokes that turn holders into exactly winners.
func Diff(winners []activity.MemberCount, holders []string) Plan {
	winnerSet := make(map[string]struct{}, len(winners))
	for _, winner := range winners {
		winnerSet[winner.MemberID] = struct{}{}
	}
	holderSet := make(map[string]struct{}, len(holders))
	for _, holder := range holders {
		holderSet[holder] = struct{}{}
	}

	plan := Plan{}
	for memberID := range winnerSet {
		if _, ok := holderSet[memberID]; !ok {
			plan.Grants = append(plan.Grants, memberID)
		}
	}
	for memberID := range holderSet {
		if _, ok := winnerSet[memberID]; !ok {
			plan.Revokes = append(plan.Revokes, memberID)
		}
	}
	sort.Strings(plan.Grants)
	sort.Strings(plan.Revokes)
	return plan
}
