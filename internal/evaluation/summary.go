package evaluation

import (
	"fmt"
	"strings"

	"github.com/LaliChicken/active-role-bot/internal/activity"
)

// MaxSummaryEntries bounds how many winners a summary lists.
const MaxSummaryEntries = 20

// Summary is the weekly announcement sent to a community after a run.
type Summary struct {
	CommunityID string
	RoleID      string
	WeekStart   string
	Threshold   int
	Winners     []activity.MemberCount
	Total       int
	Truncated   bool
}

// BuildSummary keeps the first MaxSummaryEntries winners and marks the rest as truncated.
func BuildSummary(communityID, roleID, weekStart string, threshold int, winners []activity.MemberCount) Summary {
	listed := winners
	truncated := false
	if len(listed) > MaxSummaryEntries {
		listed = listed[:MaxSummaryEntries]
		truncated = true
	}
	return Summary{
		CommunityID: communityID,
		RoleID:      roleID,
		WeekStart:   weekStart,
		Threshold:   threshold,
		Winners:     append([]activity.MemberCount(nil), listed...),
		Total:       len(winners),
		Truncated:   truncated,
	}
}

// Hidden is the number of winners left out of the listing.
func (s Summary) Hidden() int {
	return s.Total - len(s.Winners)
}

// Title is the heading used by notifiers.
func (s Summary) Title() string {
	return "Weekly Active Members"
}

// Body renders the winner list as plain text with platform mentions.
func (s Summary) Body() string {
	if len(s.Winners) == 0 {
		return fmt.Sprintf("No one reached %d messages last week.", s.Threshold)
	}
	var builder strings.Builder
	for index, winner := range s.Winners {
		if index > 0 {
			builder.WriteString("\n")
		}
		fmt.Fprintf(&builder, "<@%s> (%d)", winner.MemberID, winner.Count)
	}
	if s.Truncated {
		fmt.Fprintf(&builder, "\n…and %d more", s.Hidden())
	}
	return builder.String()
}

// Footer describes the evaluated window.
func (s Summary) Footer() string {
	return fmt.Sprintf("Week starting %s • Threshold: %d", s.WeekStart, s.Threshold)
}
