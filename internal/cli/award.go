package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rise-habits/rise/internal/app/ledger"
	"github.com/rise-habits/rise/internal/daemon"
	"github.com/rise-habits/rise/internal/domain"
)

func init() {
	awardCmd.Flags().StringVar(&awardSourceID, "source-id", "", "Identifier of the habit/goal/entry behind the award")
	awardCmd.Flags().StringVar(&awardDescription, "description", "", "Human-readable award description")
	rootCmd.AddCommand(awardCmd)
}

var (
	awardSourceID    string
	awardDescription string
)

var awardCmd = &cobra.Command{
	Use:   "award <source> <amount>",
	Short: "Award XP through the ledger's anti-abuse policy",
	Args:  cobra.ExactArgs(2),
	RunE:  runAward,
}

func runAward(cmd *cobra.Command, args []string) error {
	amount, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("amount must be an integer: %w", err)
	}

	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Ledger.AddXP(amount, ledger.AddXPOptions{
		Source:      domain.XPSource(args[0]),
		SourceID:    awardSourceID,
		Description: awardDescription,
	})
	if err != nil {
		return err
	}

	if !res.Success {
		fmt.Printf("Rejected (%s). Total unchanged at %d XP.\n", res.Reason, res.TotalXP)
		return nil
	}
	fmt.Printf("+%d XP — total %d\n", res.XPGained, res.TotalXP)
	if res.LeveledUp {
		fmt.Printf("Level up! %d → %d\n", res.PreviousLevel, res.NewLevel)
	}
	return nil
}
