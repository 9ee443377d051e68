package cmd

import (
	"github.com/spf13/cobra"

	"yaftp/internal/watch"
)

var enqueueInput string

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue names...",
	Short: "Append file names to the input file",
	Long: `Append names to the input file, one per line. A client running
"yaftp get --watch" picks them up and downloads them.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := watch.AppendNames(cfg.Client.InputFile, args); err != nil {
			logger.Fatalf("Enqueue failed: %v", err)
		}
		logger.WithField("count", len(args)).Infof("Queued names in %s", cfg.Client.InputFile)
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVarP(&enqueueInput, "input", "i", "", "input file with one name per line")

	bindFlags(enqueueCmd, map[string]string{
		"input": "client.input_file",
	})
}
