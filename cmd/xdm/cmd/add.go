package cmd

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/JaymoCodes/xdm/internal/exchange"
	"github.com/JaymoCodes/xdm/internal/models"
	"github.com/JaymoCodes/xdm/internal/paths"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Package-level variables for add flags
var (
	addName       string
	addDir        string
	addKind       string
	addUser       string
	addPassword   string
	addSpeedLimit int64
	addQueue      string
	addStart      bool
)

var addCmd = &cobra.Command{
	Use:   "add URL",
	Short: "Add a new download",
	Long: `Adds a stopped download at the top of the in-progress list.

Examples:
  # Add a download into the default folder for its category
  xdm add https://example.com/file.zip

  # Add with a name, into a queue, and start it straight away
  xdm add https://example.com/file.zip --name archive.zip --queue night --start`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

var addTorrentCmd = &cobra.Command{
	Use:   "add-torrent FILE",
	Short: "Add a download from a .torrent file",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddTorrent,
}

func init() {
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(addTorrentCmd)

	for _, c := range []*cobra.Command{addCmd, addTorrentCmd} {
		c.Flags().StringVarP(&addDir, "dir", "d", "", "Target folder (default from Downloads.DefaultDir and Downloads.DirPattern)")
		c.Flags().StringVarP(&addQueue, "queue", "q", "", "Queue ID to place the download in")
	}
	addCmd.Flags().StringVarP(&addName, "name", "n", "", "File name (default from the server)")
	addCmd.Flags().StringVar(&addKind, "type", models.KindHTTP, "Download type (http, hls, dash, torrent)")
	addCmd.Flags().StringVar(&addUser, "user", "", "User name for the server")
	addCmd.Flags().StringVar(&addPassword, "password", "", "Password for the server")
	addCmd.Flags().Int64Var(&addSpeedLimit, "speed-limit", 0, "Speed limit in KiB/s (0 uses the configured default)")
	addCmd.Flags().BoolVar(&addStart, "start", false, "Start the download and show progress")
}

func runAdd(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("not a valid download address: %s", args[0])
	}

	entry := models.DownloadEntry{
		ID:               uuid.NewString(),
		Name:             addName,
		PrimaryURL:       u.String(),
		DownloadType:     addKind,
		MaxSpeedLimitKiB: addSpeedLimit,
		DateAdded:        time.Now(),
	}
	if addUser != "" {
		entry.Authentication = &models.AuthenticationInfo{UserName: addUser, Password: addPassword}
	}
	if entry.Name == "" {
		entry.Name = filepath.Base(u.Path)
		if entry.Name == "." || entry.Name == "/" {
			entry.Name = ""
		}
	}
	if entry.TargetDir, err = targetDir(entry); err != nil {
		return err
	}
	return addAndMaybeStart(entry)
}

func runAddTorrent(cmd *cobra.Command, args []string) error {
	e, err := exchange.EntryFromTorrent(args[0], "")
	if err != nil {
		return err
	}
	e.DateAdded = time.Now()
	if e.TargetDir, err = targetDir(e.DownloadEntry); err != nil {
		return err
	}
	return addAndMaybeStart(e.DownloadEntry)
}

// targetDir is --dir, or the configured default folder expanded for entry.
func targetDir(entry models.DownloadEntry) (string, error) {
	if addDir != "" {
		return filepath.Abs(addDir)
	}
	root, err := filepath.Abs(globalConfig.Downloads.DefaultDir)
	if err != nil {
		return "", err
	}
	return paths.TargetDir(root, globalConfig.Downloads.DirPattern, entry, entry.DateAdded)
}

func addAndMaybeStart(entry models.DownloadEntry) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	a.ctrl.AddDownload(entry)
	if addQueue != "" {
		a.peer.ChooseQueue(addQueue)
		a.ctrl.MoveToQueue([]string{entry.ID}, false)
	}
	a.ctrl.Flush()

	if _, ok := a.ctrl.Entry(entry.ID); !ok {
		return fmt.Errorf("download %s was not added", entry.PrimaryURL)
	}
	log.WithField("id", entry.ID).Infof("Added %s to %s", entry.PrimaryURL, entry.TargetDir)
	fmt.Println(entry.ID)

	if addStart {
		return runTransfers(a, func() { a.ctrl.ResumeDownload(entry.ID) })
	}
	return nil
}
