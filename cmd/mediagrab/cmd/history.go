package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/peterzhang0216/mediagrab/internal/helpers"
	"github.com/peterzhang0216/mediagrab/internal/history"
)

var historyLimitFlag int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show finished downloads, most recent first",
	RunE:  runHistoryShow,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the download history",
	RunE:  runHistoryClear,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "l", 0, "Maximum entries to show (0 shows all)")
	historyCmd.AddCommand(historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase()

	entries := history.New(db).Entries()
	if historyLimitFlag > 0 && len(entries) > historyLimitFlag {
		entries = entries[:historyLimitFlag]
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "History is empty.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tWHEN\tOUTCOME\tTYPE\tSIZE\tFILE\tURL")
	for i, e := range entries {
		size := "-"
		if e.Size > 0 {
			size = helpers.BytesToSize(uint64(e.Size))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, e.EndTime.Format("2006-01-02 15:04"), e.Outcome, e.Type, size, e.Filename, e.URL)
	}
	return w.Flush()
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase()

	history.New(db).Clear()
	fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
	return nil
}
