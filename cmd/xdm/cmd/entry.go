package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show the properties of a download",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()

		view, err := viewOf(a, args[0])
		if err != nil {
			return err
		}
		item := affordance.MenuProperties
		if view == models.ViewFinished {
			item = affordance.MenuFinishedProperties
		}
		return runMenu(a, view, item, args[0])
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename ID PATH",
	Short: "Change the folder and file name of a download in progress",
	Long: `Sets where a download in progress is saved. PATH may be a bare file name,
which keeps the current folder.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInProgressPrompt(affordance.MenuSaveAs, args[0], args[1])
	},
}

var relinkCmd = &cobra.Command{
	Use:   "relink ID URL",
	Short: "Replace the address of a download in progress",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInProgressPrompt(affordance.MenuRefresh, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(showCmd, renameCmd, relinkCmd)
}

// viewOf reports which list holds id.
func viewOf(a *app, id string) (models.View, error) {
	if _, ok := a.ctrl.Entry(id); ok {
		return models.ViewInProgress, nil
	}
	_, finished := a.ctrl.Lists()
	for _, e := range finished {
		if e.ID == id {
			return models.ViewFinished, nil
		}
	}
	return models.ViewInProgress, fmt.Errorf("no download with id %s", id)
}

// runMenu selects id in view and runs the context menu item.
func runMenu(a *app, view models.View, item affordance.MenuItem, id string) error {
	before := len(a.peer.Messages())
	a.peer.Select(view, id)
	a.ctrl.HandleMenu(item)
	a.ctrl.Flush()
	if msgs := a.peer.Messages(); len(msgs) > before {
		return fmt.Errorf("%s", msgs[len(msgs)-1])
	}
	return nil
}

// runInProgressPrompt answers the prompt of a menu item with answer.
func runInProgressPrompt(item affordance.MenuItem, id, answer string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, ok := a.ctrl.Entry(id); !ok {
		return fmt.Errorf("no download in progress with id %s", id)
	}
	a.peer.QueueAnswer(answer)
	if err := runMenu(a, models.ViewInProgress, item, id); err != nil {
		return err
	}
	e, _ := a.ctrl.Entry(id)
	fmt.Fprintf(stdout, "%s\t%s\n", filepath.Join(e.TargetDir, e.Name), e.PrimaryURL)
	return nil
}
