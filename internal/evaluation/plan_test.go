package evaluation

import (
	"testing"

	"github.com/LaliChicken/active-role-bot/internal/activity"
)

func TestWinnersOrderedByCountThenID(t *testing.T) {
	counts := []activity.MemberCount{
		{MemberID: "member-c", Count: 10},
		{MemberID: "member-a", Count: 10},
		{MemberID: "member-b", Count: 14},
		{MemberID: "member-d", Count: 9},
	}
	winners := Winners(counts, 10)
	expected := []string{"member-b", "member-a", "member-c"}
	if len(winners) != len(expected) {
		t.Fatalf("expected %d winners, got %+v", len(expected), winners)
	}
	for index, memberID := range expected {
		if winners[index].MemberID != memberID {
			t.Fatalf("position %d: expected %s, got %s", index, memberID, winners[index].MemberID)
		}
	}
}

func TestDiffProducesSortedGrantsAndRevokes(t *testing.T) {
	winners := []activity.MemberCount{{MemberID: "z"}, {MemberID: "a"}, {MemberID: "m"}}
	holders := []string{"m", "q", "b"}

	plan := Diff(winners, holders)
	if got := plan.Grants; len(got) != 2 || got[0] != "a" || got[1] != "z" {
		t.Fatalf("unexpected grants %v", got)
	}
	if got := plan.Revokes; len(got) != 2 || got[0] != "b" || got[1] != "q" {
		t.Fatalf("unexpected revokes %v", got)
	}
	if !Diff(winners, []string{"a", "m", "z"}).Empty() {
		t.Fatalf("expected matching sets to produce an empty plan")
	}
}

func TestBuildSummaryKeepsShortListsIntact(t *testing.T) {
	winners := []activity.MemberCount{{MemberID: "member-a", Count: 12}, {MemberID: "member-b", Count: 11}}
	summary := BuildSummary("guild-1", "role-1", "2025-08-11", 10, winners)
	if summary.Truncated || summary.Hidden() != 0 {
		t.Fatalf("expected untruncated summary, got %+v", summary)
	}
	if body := summary.Body(); body != "<@member-a> (12)\n<@member-b> (11)" {
		t.Fatalf("unexpected body %q", body)
	}
	if footer := summary.Footer(); footer != "Week starting 2025-08-11 • Threshold: 10" {
		t.Fatalf("unexpected footer %q", footer)
	}
}
