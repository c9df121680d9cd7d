package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/JaymoCodes/xdm/internal/helpers"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var assignQueueID string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage download queues",
	Long:  `List, create, rename and remove queues, and move downloads into them.`,
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "Queue ID\tName\tDownloads")
		fmt.Fprintln(tw, "--------\t----\t---------")
		for _, q := range a.queues.Queues() {
			fmt.Fprintf(tw, "%s\t%s\t%d\n", q.ID, helpers.TruncateString(q.Name, 30), len(q.DownloadIDs))
		}
		return tw.Flush()
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()

		q, err := a.queues.AddQueue(args[0])
		if err != nil {
			return err
		}
		log.WithField("queue", q.ID).Infof("Created queue %q", q.Name)
		fmt.Fprintln(stdout, q.ID)
		return nil
	},
}

var queueRenameCmd = &cobra.Command{
	Use:   "rename QUEUE_ID NAME",
	Short: "Rename a queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.queues.RenameQueue(args[0], args[1])
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove QUEUE_ID",
	Short: "Remove a queue; its downloads stay in the lists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openGlobalApp()
		if err != nil {
			return err
		}
		defer a.Close()
		return a.queues.RemoveQueue(args[0])
	},
}

var queueAssignCmd = &cobra.Command{
	Use:   "assign ID...",
	Short: "Move downloads in progress into a queue",
	Long: `Moves downloads into a queue. Without --queue the available queues are
listed and nothing is moved.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQueueAssign,
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRenameCmd, queueRemoveCmd, queueAssignCmd)
	queueAssignCmd.Flags().StringVarP(&assignQueueID, "queue", "q", "", "Queue ID to move the downloads to")
}

func runQueueAssign(cmd *cobra.Command, args []string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if assignQueueID != "" {
		if _, ok := a.queues.Get(assignQueueID); !ok {
			return fmt.Errorf("unknown queue %q", assignQueueID)
		}
		a.peer.ChooseQueue(assignQueueID)
	}
	a.ctrl.MoveToQueue(args, a.cfg.Downloads.ConfirmMoveToQueue)
	a.ctrl.Flush()

	if q, ok := a.queues.Get(assignQueueID); ok && assignQueueID != "" {
		log.WithField("queue", q.ID).Infof("Queue %q now holds %d download(s)", q.Name, len(q.DownloadIDs))
	}
	return nil
}
