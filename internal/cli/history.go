package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rise-habits/rise/internal/daemon"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 25, "maximum transactions to show")
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"log"},
	Short:   "List recent XP transactions",
	RunE:    runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	e, err := daemon.New()
	if err != nil {
		return err
	}
	defer e.Close()

	txs, err := e.Ledger.History(historyLimit)
	if err != nil {
		return err
	}

	if len(txs) == 0 {
		fmt.Println("No XP earned yet. Run 'rise award' to record something.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tSOURCE\tAMOUNT\tDESCRIPTION")
	for _, tx := range txs {
		fmt.Fprintf(w, "%s\t%s\t%+d\t%s\n",
			tx.Date.Format("2006-01-02 15:04"),
			tx.Source,
			tx.Amount,
			tx.Description,
		)
	}
	return w.Flush()
}
