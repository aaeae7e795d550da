// Package challenge implements the monthly challenge system: a
// deterministic challenge generator, an incremental progress tracker
// with idempotent milestone bonuses, and a pure reward calculator.
package challenge

import (
	"fmt"
	"hash/fnv"
	"time"

	"github.com/rise-habits/rise/internal/domain"
)

var categories = [...]domain.ChallengeCategory{
	domain.CategoryHabits,
	domain.CategoryJournal,
	domain.CategoryGoals,
	domain.CategoryConsistency,
}

// GenerateMonthly builds the challenge for a month ("2006-01" format).
// Generation is deterministic: the category comes from a hash of the
// month tag, so every device derives the same challenge without
// coordination. The star level grows with the run of consecutive
// completed months, clamped into 1..5.
func GenerateMonthly(month string, consecutiveCompleted int) (domain.MonthlyChallenge, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return domain.MonthlyChallenge{}, fmt.Errorf("parse month %q: %w", month, err)
	}
	end := start.AddDate(0, 1, 0).Add(-time.Second)

	star := 1 + consecutiveCompleted
	if star > 5 {
		star = 5
	}

	h := fnv.New32a()
	h.Write([]byte(month))
	category := categories[int(h.Sum32())%len(categories)]

	return domain.MonthlyChallenge{
		ID:           "challenge-" + month,
		Month:        month,
		StartDate:    start,
		EndDate:      end,
		StarLevel:    star,
		BaseXPReward: BaseRewardForStar(star),
		Category:     category,
		Requirements: requirementsFor(category, star),
	}, nil
}

// requirementsFor scales the counted goals with the star level.
func requirementsFor(category domain.ChallengeCategory, star int) []domain.ChallengeRequirement {
	switch category {
	case domain.CategoryHabits:
		return []domain.ChallengeRequirement{
			{Key: domain.SourceHabitCompletion, Target: 15 + 5*star, Description: "Complete habits"},
			{Key: domain.SourceHabitBonus, Target: 2 * star, Description: "Earn habit bonuses"},
		}
	case domain.CategoryJournal:
		return []domain.ChallengeRequirement{
			{Key: domain.SourceJournalEntry, Target: 15 + 3*star, Description: "Write journal entries"},
			{Key: domain.SourceJournalBonus, Target: 3 * star, Description: "Write extra entries"},
		}
	case domain.CategoryGoals:
		return []domain.ChallengeRequirement{
			{Key: domain.SourceGoalProgress, Target: 10 + 4*star, Description: "Make progress on goals"},
			{Key: domain.SourceGoalCompletion, Target: star, Description: "Complete goals"},
		}
	default: // consistency: a little of everything
		return []domain.ChallengeRequirement{
			{Key: domain.SourceJournalEntry, Target: 8 + 2*star, Description: "Write journal entries"},
			{Key: domain.SourceHabitCompletion, Target: 8 + 2*star, Description: "Complete habits"},
			{Key: domain.SourceGoalProgress, Target: 4 + 2*star, Description: "Make progress on goals"},
		}
	}
}

// sourceCategory maps an XP source to the feature category it belongs
// to, for the daily multi-feature snapshots.
func sourceCategory(src domain.XPSource) string {
	switch src {
	case domain.SourceJournalEntry, domain.SourceJournalBonus:
		return "journal"
	case domain.SourceHabitCompletion, domain.SourceHabitBonus:
		return "habits"
	case domain.SourceGoalProgress, domain.SourceGoalCompletion:
		return "goals"
	default:
		return "system"
	}
}
