package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rise-habits/rise/internal/daemon"
	"github.com/rise-habits/rise/internal/domain"
)

func init() {
	streakCmd.AddCommand(streakEntryCmd)
	streakCmd.AddCommand(streakWarmupCmd)
	streakCmd.AddCommand(streakResetDebtCmd)
	rootCmd.AddCommand(streakCmd)
}

var streakCmd = &cobra.Command{
	Use:   "streak",
	Short: "Show the journal streak",
	RunE:  runStreakShow,
}

var streakEntryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Record a qualifying journal entry for today",
	RunE:  runStreakEntry,
}

var streakWarmupCmd = &cobra.Command{
	Use:   "warmup",
	Short: "Repay one missed day (one ad watch)",
	RunE:  runStreakWarmup,
}

var streakResetDebtCmd = &cobra.Command{
	Use:   "reset-debt",
	Short: "Force-clear all streak debt (escape hatch)",
	RunE:  runStreakResetDebt,
}

func runStreakShow(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := e.Streak.Recalculate(time.Now().UTC())
	if err != nil {
		return err
	}

	fmt.Printf("Current: %d days (%s)\n", st.CurrentStreak, st.Status())
	fmt.Printf("Longest: %d days\n", st.LongestStreak)
	fmt.Printf("Badges:  %d star, %d flame, %d crown\n", st.StarCount, st.FlameCount, st.CrownCount)
	for _, p := range st.WarmUpPayments {
		state := "unpaid"
		if p.IsComplete {
			state = "paid"
		}
		fmt.Printf("  missed %s: %s\n", p.MissedDate, state)
	}
	return nil
}

func runStreakEntry(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := e.Streak.RecordEntry(time.Now().UTC())
	if errors.Is(err, domain.ErrEntryWhileFrozen) {
		fmt.Printf("Streak is frozen with %d missed day(s). Run 'rise streak warmup' to repay.\n", st.OutstandingDebt())
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Streak: %d days\n", st.CurrentStreak)
	return nil
}

func runStreakWarmup(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	st, err := e.Streak.ApplySingleWarmUpPayment(time.Now().UTC())
	if errors.Is(err, domain.ErrNoOutstandingDebt) {
		fmt.Println("No missed days to repay.")
		return nil
	}
	if err != nil {
		return err
	}

	if remaining := st.OutstandingDebt(); remaining > 0 {
		fmt.Printf("Payment recorded, %d missed day(s) remaining.\n", remaining)
	} else {
		fmt.Println("All debt repaid, streak unfrozen.")
	}
	return nil
}

func runStreakResetDebt(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	if _, err := e.Streak.ExecuteForceResetDebt("cli_manual", time.Now().UTC()); err != nil {
		return err
	}
	fmt.Println("Debt cleared.")
	return nil
}
