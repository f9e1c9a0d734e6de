package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/peterzhang0216/mediagrab/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change persisted settings",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a setting override",
	Long: `Set stores a user override in the local database, where it survives
restarts and sits above the config file in precedence. Recognized keys:
concurrency, speed-limit, by-website, by-type, save-path.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	defer closeDatabase()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "save-path\t%s\n", globalConfig.DefaultPath)
	fmt.Fprintf(w, "database\t%s\n", databasePath(globalConfig))
	fmt.Fprintf(w, "concurrency\t%d\n", globalConfig.MaxConcurrentDownloads)
	fmt.Fprintf(w, "speed-limit\t%d KB/s\n", globalConfig.DownloadSpeedLimitKBps)
	fmt.Fprintf(w, "by-website\t%t\n", globalConfig.CategorizeByWebsite)
	fmt.Fprintf(w, "by-type\t%t\n", globalConfig.CategorizeByType)
	fmt.Fprintf(w, "log-level\t%s\n", globalConfig.LogLevel)
	return w.Flush()
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase()

	settings := config.LoadSettings(db)
	if err := config.SetSetting(&settings, args[0], args[1]); err != nil {
		return err
	}
	if err := config.SaveSettings(db, settings); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s = %s\n", args[0], args[1])
	return nil
}
