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
	challengeCmd.AddCommand(challengeRewardCmd)
	challengeCmd.AddCommand(challengeFinalizeCmd)
	rootCmd.AddCommand(challengeCmd)
}

var challengeCmd = &cobra.Command{
	Use:   "challenge",
	Short: "Show the active monthly challenge",
	RunE:  runChallengeShow,
}

var challengeRewardCmd = &cobra.Command{
	Use:   "reward",
	Short: "Preview the reward for the active challenge",
	RunE:  runChallengeReward,
}

var challengeFinalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Finalize the active challenge and award its reward",
	RunE:  runChallengeFinalize,
}

func runChallengeShow(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	ch, p, err := e.Tracker.Active(time.Now().UTC())
	if errors.Is(err, domain.ErrNoActiveChallenge) {
		fmt.Println("No active challenge this month.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %d★)\n", ch.ID, ch.Category, ch.StarLevel)
	fmt.Printf("Completion: %.1f%%\n", p.CompletionPercentage)
	fmt.Printf("Active days: %d (consistency %.0f%%)\n", p.DaysActive, p.DailyConsistency*100)
	for _, r := range ch.Requirements {
		fmt.Printf("  %s: %d/%d\n", r.Key, p.Progress[r.Key], r.Target)
	}
	for _, m := range []int{25, 50, 75} {
		if p.MilestonesReached[m] {
			fmt.Printf("  milestone %d%% reached\n", m)
		}
	}
	return nil
}

func runChallengeReward(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := e.Tracker.PreviewReward(time.Now().UTC())
	if errors.Is(err, domain.ErrNoActiveChallenge) {
		fmt.Println("No active challenge this month.")
		return nil
	}
	if err != nil {
		return err
	}
	printReward(r)
	return nil
}

func runChallengeFinalize(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	r, err := e.Tracker.Finalize(time.Now().UTC())
	switch {
	case errors.Is(err, domain.ErrNoActiveChallenge):
		fmt.Println("No active challenge this month.")
		return nil
	case errors.Is(err, domain.ErrChallengeFinalized):
		fmt.Println("This month's challenge is already finalized.")
		return nil
	case err != nil:
		return err
	}
	printReward(r)
	return nil
}

func printReward(r domain.RewardResult) {
	fmt.Printf("Base:       %d XP\n", r.BaseXPReward)
	fmt.Printf("Completion: %d XP\n", r.CompletionBonus)
	fmt.Printf("Streak:     %d XP\n", r.StreakBonus)
	fmt.Printf("Milestones: %d XP\n", r.MilestoneBonus)
	fmt.Printf("Total:      %d XP (%s)\n", r.TotalXPAwarded, r.RewardTier)
	if !r.IsBalanced {
		fmt.Printf("Note: %s\n", r.BalanceNote)
	}
}
