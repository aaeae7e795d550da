package ledger

import (
	"math"

	"github.com/rise-habits/rise/internal/domain"
)

// MaxLevel caps the level curve.
const MaxLevel = 100

// levelTitles maps each band of ten levels to a title.
var levelTitles = [...]string{
	"Newcomer",    // 1-9
	"Beginner",    // 10-19
	"Apprentice",  // 20-29
	"Explorer",    // 30-39
	"Achiever",    // 40-49
	"Specialist",  // 50-59
	"Expert",      // 60-69
	"Master",      // 70-79
	"Grandmaster", // 80-89
	"Legend",      // 90-100
}

// XPForLevel returns the lifetime XP threshold for a level. Thresholds
// grow exponentially, 100 * 1.2^(level-1), so early levels come fast
// and later ones reward sustained habits.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	return int64(100 * math.Pow(1.2, float64(level-1)))
}

// LevelForXP maps a lifetime XP total onto the curve, capped at
// MaxLevel.
func LevelForXP(xp int64) int {
	level := 1
	for level < MaxLevel {
		if xp < XPForLevel(level + 1) {
			return level
		}
		level++
	}
	return MaxLevel
}

// TitleForLevel returns the display title for a level.
func TitleForLevel(level int) string {
	idx := level / 10
	if idx >= len(levelTitles) {
		idx = len(levelTitles) - 1
	}
	return levelTitles[idx]
}

// LevelInfoForXP computes the full level record for a cumulative XP
// total: level, title, XP remaining to the next level, progress toward
// it, and whether the level is a milestone (every 10th).
func LevelInfoForXP(xp int64) domain.LevelInfo {
	level := LevelForXP(xp)
	info := domain.LevelInfo{
		Level:     level,
		Title:     TitleForLevel(level),
		TotalXP:   xp,
		Milestone: level%10 == 0,
	}
	if level >= MaxLevel {
		info.ProgressPct = 100
		return info
	}

	this := XPForLevel(level)
	next := XPForLevel(level + 1)
	info.XPToNext = next - xp
	if info.XPToNext < 0 {
		info.XPToNext = 0
	}
	if span := next - this; span > 0 {
		info.ProgressPct = float64(xp-this) / float64(span) * 100
	}
	return info
}
