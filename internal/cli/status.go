package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rise-habits/rise/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show level, XP, streak and challenge at a glance",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	now := time.Now().UTC()

	level := e.Ledger.Level()
	today, err := e.Ledger.TodayXP(now)
	if err != nil {
		return err
	}
	fmt.Printf("Level %d (%s) — %d XP total, %d today\n", level.Level, level.Title, level.TotalXP, today)
	if level.XPToNext > 0 {
		fmt.Printf("  %d XP to level %d (%.0f%%)\n", level.XPToNext, level.Level+1, level.ProgressPct)
	}

	st, err := e.Streak.State(now)
	if err != nil {
		return err
	}
	fmt.Printf("Streak: %d days (%s), longest %d\n", st.CurrentStreak, st.Status(), st.LongestStreak)
	if debt := st.OutstandingDebt(); debt > 0 {
		fmt.Printf("  %d missed day(s) to repay\n", debt)
	}

	ch, p, err := e.Tracker.Active(now)
	if err != nil {
		fmt.Println("Challenge: none active")
		return nil
	}
	fmt.Printf("Challenge %s: %d-star %s, %.0f%% complete\n", ch.Month, ch.StarLevel, ch.Category, p.CompletionPercentage)
	return nil
}
