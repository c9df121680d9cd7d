package cmd

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/index"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search QUERY",
	Short: "Search both download lists",
	Long: `Full-text search over names, addresses and folders of every download.

Examples:
  xdm search ubuntu
  xdm search "name:debian kind:torrent"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", index.DefaultLimit, "Maximum number of results")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if a.index == nil {
		return errors.New("search index is disabled")
	}
	hits, err := a.ctrl.Search(strings.Join(args, " "), searchLimit)
	if err != nil {
		return err
	}

	inProgress, finished := a.ctrl.Lists()
	names := make(map[string]string, len(inProgress)+len(finished))
	for _, e := range inProgress {
		names[e.ID] = e.Name
	}
	for _, e := range finished {
		names[e.ID] = e.Name
	}

	fmt.Fprintf(stdout, "\nFound %d match(es):\n\n", len(hits))
	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tList\tScore\tID")
	fmt.Fprintln(tw, "----\t----\t-----\t--")
	for _, h := range hits {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\n", helpers.TruncateString(names[h.ID], 40), h.Collection, h.Score, h.ID)
	}
	return tw.Flush()
}
