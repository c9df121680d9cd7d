package cmd

import (
	"fmt"

	"github.com/JaymoCodes/xdm/internal/console"

	"github.com/spf13/cobra"
)

var listFinished bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads",
	Long:  `Lists the downloads in progress, or the finished ones with --finished.`,
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listFinished, "finished", "f", false, "List finished downloads")
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	inProgress, finished := a.ctrl.Lists()
	if listFinished {
		fmt.Fprintf(stdout, "\nFinished downloads (%d):\n\n", len(finished))
		console.RenderFinished(stdout, finished)
		return nil
	}
	fmt.Fprintf(stdout, "\nDownloads in progress (%d):\n\n", len(inProgress))
	console.RenderInProgress(stdout, inProgress)
	return nil
}
