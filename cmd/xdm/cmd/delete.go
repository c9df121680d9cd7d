package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/controller"
	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/models"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const confirmYes = "yes"

// Package-level variables for delete flags
var (
	deleteIDs      []string
	deleteSearch   string
	deleteFinished bool
	deleteForce    bool
	deleteDryRun   bool
)

func init() {
	rootCmd.AddCommand(deleteCmd)

	deleteCmd.Flags().StringSliceVarP(&deleteIDs, "id", "i", []string{}, "Download ID(s) to delete")
	deleteCmd.Flags().StringVarP(&deleteSearch, "search", "s", "", "Search by name and select entries to delete")
	deleteCmd.Flags().BoolVar(&deleteFinished, "finished", false, "Delete from the finished list instead of the in-progress list")
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation prompt")
	deleteCmd.Flags().BoolVarP(&deleteDryRun, "dry-run", "n", false, "Show what would be deleted without deleting")
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete downloads from a list",
	Long: `Delete downloads by ID or search query. Running downloads are stopped
first. Files already on disk are left alone.

Examples:
  # Delete one download in progress
  xdm delete --id 6f1c2a4e-...

  # Search finished downloads and pick the ones to delete
  xdm delete --finished --search "ubuntu"

  # Preview what would be deleted (dry run)
  xdm delete --search iso --dry-run`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

// listRow is one download of either list, flattened for display.
type listRow struct {
	ID     string
	Name   string
	Status string
	Size   int64
	Folder string
}

func runDelete(cmd *cobra.Command, args []string) error {
	if len(deleteIDs) == 0 && deleteSearch == "" {
		_ = cmd.Usage()
		return fmt.Errorf("at least one selection method is required: --id or --search")
	}

	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	view := models.ViewInProgress
	if deleteFinished {
		view = models.ViewFinished
	}
	rows := findRowsToDelete(a.ctrl, view)
	if len(rows) == 0 {
		log.Info("No entries found matching the specified criteria.")
		return nil
	}

	if deleteSearch != "" {
		rows = interactiveSelectRows(rows)
		if len(rows) == 0 {
			log.Info("No entries selected for deletion.")
			return nil
		}
	}

	displayDeletionTable(rows)

	if !confirmDeletion(rows, deleteForce, deleteDryRun) {
		log.Info("Deletion canceled.")
		return nil
	}
	if deleteDryRun {
		log.Info("Dry run complete. No changes were made.")
		return nil
	}

	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	deleteWithoutPrompt(a, view, ids)

	remaining := 0
	inProgress, finished := a.ctrl.Lists()
	known := make(map[string]struct{}, len(inProgress)+len(finished))
	for _, e := range inProgress {
		known[e.ID] = struct{}{}
	}
	for _, e := range finished {
		known[e.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; ok {
			remaining++
		}
	}
	summary := fmt.Sprintf("Deletion complete: %d deleted", len(ids)-remaining)
	if remaining > 0 {
		summary += fmt.Sprintf(", %d kept", remaining)
	}
	log.Info(summary)
	return nil
}

// deleteWithoutPrompt selects ids in view and runs the delete gesture. The
// user has already confirmed, so the controller's confirmation is answered yes.
func deleteWithoutPrompt(a *app, view models.View, ids []string) {
	a.peer.AssumeYes(true)
	defer a.peer.AssumeYes(assumeYesFlag)
	a.peer.Select(view, ids...)
	a.ctrl.HandleGesture(controller.GestureDelete)
	a.ctrl.Flush()
}

// findRowsToDelete finds all downloads of view matching the provided criteria
func findRowsToDelete(ctrl *controller.Controller, view models.View) []listRow {
	inProgress, finished := ctrl.Lists()

	var all []listRow
	if view == models.ViewFinished {
		for _, e := range finished {
			all = append(all, listRow{ID: e.ID, Name: e.Name, Status: "Finished", Size: e.FileSize, Folder: e.TargetDir})
		}
	} else {
		for _, e := range inProgress {
			all = append(all, listRow{ID: e.ID, Name: e.Name, Status: string(e.Status), Size: e.Size, Folder: e.TargetDir})
		}
	}

	idSet := make(map[string]struct{})
	for _, id := range deleteIDs {
		idSet[id] = struct{}{}
	}
	searchLower := strings.ToLower(deleteSearch)

	var matched []listRow
	for _, r := range all {
		matches := false
		if _, ok := idSet[r.ID]; ok {
			matches = true
		}
		if searchLower != "" && strings.Contains(strings.ToLower(r.Name), searchLower) {
			matches = true
		}
		if matches {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Name < matched[j].Name
	})
	return matched
}

// interactiveSelectRows displays numbered rows and lets user select which to delete
func interactiveSelectRows(rows []listRow) []listRow {
	fmt.Printf("\nFound %d entries matching \"%s\":\n\n", len(rows), deleteSearch)

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tName\tStatus\tSize\tID")
	fmt.Fprintln(tw, "  -\t----\t------\t----\t--")
	for i, r := range rows {
		fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%s\n",
			i+1,
			helpers.TruncateString(r.Name, 40),
			r.Status,
			helpers.FormatSize(float64(r.Size)),
			r.ID,
		)
	}
	tw.Flush()

	fmt.Println()
	fmt.Print("Enter numbers to delete (e.g., 1,3,5 or 1-3 or 'all', or 'q' to cancel): ")

	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		log.WithError(err).Error("Error reading input")
		return nil
	}

	input = strings.TrimSpace(strings.ToLower(input))
	if input == "q" || input == "quit" || input == "cancel" || input == "" {
		return nil
	}

	selectedIndices := parseSelection(input, len(rows))
	if len(selectedIndices) == 0 {
		fmt.Println("No valid selection made.")
		return nil
	}

	selected := make([]listRow, 0, len(selectedIndices))
	for _, idx := range selectedIndices {
		selected = append(selected, rows[idx])
	}
	return selected
}

// parseSelection parses user input like "1,3,5" or "1-3" or "all" into indices
func parseSelection(input string, max int) []int {
	if input == "all" {
		indices := make([]int, max)
		for i := range indices {
			indices[i] = i
		}
		return indices
	}

	indexSet := make(map[int]struct{})
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			rangeParts := strings.Split(part, "-")
			if len(rangeParts) == 2 {
				start, err1 := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
				end, err2 := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
				if err1 == nil && err2 == nil && start >= 1 && end <= max && start <= end {
					for i := start; i <= end; i++ {
						indexSet[i-1] = struct{}{}
					}
				}
			}
			continue
		}

		num, err := strconv.Atoi(part)
		if err == nil && num >= 1 && num <= max {
			indexSet[num-1] = struct{}{}
		}
	}

	indices := make([]int, 0, len(indexSet))
	for idx := range indexSet {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices
}

// displayDeletionTable shows a formatted table of rows to be deleted
func displayDeletionTable(rows []listRow) {
	fmt.Printf("\nEntries to be deleted (%d total):\n\n", len(rows))

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tStatus\tSize\tFolder\tID")
	fmt.Fprintln(tw, "----\t------\t----\t------\t--")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			helpers.TruncateString(r.Name, 30),
			r.Status,
			helpers.FormatSize(float64(r.Size)),
			helpers.TruncateString(r.Folder, 30),
			r.ID,
		)
	}
	tw.Flush()
}

// confirmDeletion prompts the user to confirm deletion
func confirmDeletion(rows []listRow, force bool, dryRun bool) bool {
	if dryRun {
		fmt.Println("\n[DRY RUN] The above entries would be deleted. No changes will be made.")
		return true
	}
	if force || assumeYesFlag {
		log.Info("Skipping confirmation due to --force flag.")
		return true
	}

	fmt.Printf("\nDelete %d entries? This cannot be undone. (y/N): ", len(rows))

	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		log.WithError(err).Error("Error reading input")
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == confirmYes
}
