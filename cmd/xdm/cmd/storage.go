package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/persistence"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var storageResetForce bool

var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Inspect and repair the stored download lists",
	Long: `Works directly on the configured storage backend. Do not run it while
another xdm command is using the same data directory.`,
}

var storageListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records with their size and integrity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMaintainer(func(b persistence.Backend, m persistence.Maintainer) error {
			return listRecords(stdout, b, m)
		})
	},
}

var storageResetCmd = &cobra.Command{
	Use:   "reset RECORD",
	Short: "Drop a stored record so the list starts empty",
	Long: `Removes RECORD from storage. Use it when a list is reported as corrupt.
The next run starts that list empty. Downloaded files are left on disk.

Examples:
  xdm storage reset inprogress-downloads.db --force`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !storageResetForce && !assumeYesFlag && !confirmReset(name) {
			log.Info("Reset cancelled")
			return nil
		}
		return withMaintainer(func(_ persistence.Backend, m persistence.Maintainer) error {
			return resetRecord(m, name)
		})
	},
}

func init() {
	rootCmd.AddCommand(storageCmd)
	storageCmd.AddCommand(storageListCmd, storageResetCmd)
	storageResetCmd.Flags().BoolVarP(&storageResetForce, "force", "f", false, "Skip the confirmation prompt")
}

// withMaintainer opens the configured backend for fn and closes it after.
func withMaintainer(fn func(persistence.Backend, persistence.Maintainer) error) error {
	b, err := persistence.Open(globalConfig.Storage.Backend, globalConfig.DataDir)
	if err != nil {
		return fmt.Errorf("opening %s storage: %w", globalConfig.Storage.Backend, err)
	}
	defer b.Close()

	m, ok := b.(persistence.Maintainer)
	if !ok {
		return fmt.Errorf("storage backend %q cannot list records", globalConfig.Storage.Backend)
	}
	return fn(b, m)
}

func listRecords(w io.Writer, b persistence.Backend, m persistence.Maintainer) error {
	names, err := m.Records()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Fprintln(w, "No records stored.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tSIZE\tSTATE")
	for _, name := range names {
		payload, err := b.Read(name)
		state := "ok"
		if err != nil {
			state = "unreadable"
			if errors.Is(err, persistence.ErrCorrupt) {
				state = "corrupt"
			}
			log.WithError(err).WithField("record", name).Debug("Record failed to load")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, helpers.FormatSize(float64(len(payload))), state)
	}
	return tw.Flush()
}

func resetRecord(m persistence.Maintainer, name string) error {
	if err := m.Remove(name); err != nil {
		if errors.Is(err, persistence.ErrNotExist) {
			return fmt.Errorf("no stored record named %s", name)
		}
		return err
	}
	log.WithField("record", name).Info("Record removed")
	return nil
}

func confirmReset(name string) bool {
	fmt.Fprintf(stdout, "Drop stored record %s? The list it holds is lost. (y/N): ", name)
	input, err := stdin.ReadString('\n')
	if err != nil && input == "" {
		log.WithError(err).Error("Error reading input")
		return false
	}
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "y" || input == confirmYes
}
