package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/JaymoCodes/xdm/internal/controller"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write both download lists to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListFile(controller.GestureExport, args[0])
	},
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge downloads from a file into the lists",
	Long:  `Adds the downloads in FILE to both lists. Downloads that are already known keep their current state.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runListFile(controller.GestureImport, args[0])
	},
}

var clearFinishedCmd = &cobra.Command{
	Use:   "clear-finished",
	Short: "Remove every finished download from the list",
	Long:  `Empties the finished list. Downloaded files are left on disk.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()

		_, before := a.ctrl.Lists()
		a.ctrl.HandleGesture(controller.GestureClearFinished)
		a.ctrl.Flush()
		log.Infof("Removed %d finished download(s)", len(before))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd, importCmd, clearFinishedCmd)
}

// runListFile hands path to the controller's file chooser and runs g.
func runListFile(g controller.Gesture, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	before := len(a.peer.Messages())
	a.peer.QueueFile(abs)
	a.ctrl.HandleGesture(g)
	a.ctrl.Flush()

	if msgs := a.peer.Messages(); len(msgs) > before {
		return fmt.Errorf("%s", msgs[len(msgs)-1])
	}
	inProgress, finished := a.ctrl.Lists()
	log.WithField("path", abs).Infof("%s done: %d in progress, %d finished", g, len(inProgress), len(finished))
	return nil
}
