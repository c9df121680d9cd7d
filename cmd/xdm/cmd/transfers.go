package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/JaymoCodes/xdm/internal/affordance"
	"github.com/JaymoCodes/xdm/internal/controller"
	"github.com/JaymoCodes/xdm/internal/models"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	frameInterval          = 250 * time.Millisecond
	metricsShutdownTimeout = 5 * time.Second
)

var startCmd = &cobra.Command{
	Use:   "start [ID...]",
	Short: "Transfer downloads and show their progress",
	Long: `Starts the given downloads, or every download in progress that is not
running, and shows live progress until they end. Ctrl+C stops the transfers;
partial data is kept and the next start resumes it.`,
	RunE: runStart,
}

var restartCmd = &cobra.Command{
	Use:   "restart ID",
	Short: "Discard the progress of a download and transfer it again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenuTransfer(models.ViewInProgress, affordance.MenuRestart, args[0])
	},
}

var againCmd = &cobra.Command{
	Use:   "again ID",
	Short: "Move a finished download back to the in-progress list and transfer it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenuTransfer(models.ViewFinished, affordance.MenuDownloadAgain, args[0])
	},
}

func init() {
	rootCmd.AddCommand(startCmd, restartCmd, againCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ids := args
	if len(ids) == 0 {
		inProgress, _ := a.ctrl.Lists()
		for _, e := range inProgress {
			if !e.Status.IsActive() {
				ids = append(ids, e.ID)
			}
		}
	}
	if len(ids) == 0 {
		log.Info("Nothing to start.")
		return nil
	}
	return runTransfers(a, func() {
		a.peer.Select(models.ViewInProgress, ids...)
		a.ctrl.HandleGesture(controller.GestureResume)
	})
}

func runMenuTransfer(view models.View, item affordance.MenuItem, id string) error {
	a, err := openGlobalApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if v, err := viewOf(a, id); err != nil {
		return err
	} else if v != view {
		return fmt.Errorf("download %s is not in the %s list", id, view)
	}
	return runTransfers(a, func() {
		a.peer.Select(view, id)
		a.ctrl.HandleMenu(item)
	})
}

// runTransfers runs kick, then redraws the in-progress list until every
// transfer it started has ended or the user interrupts.
func runTransfers(a *app, kick func()) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if srv := serveMetrics(a); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// --- Progress Display Setup ---
	writer := uilive.New()
	writer.Out = stdout
	a.peer.SetOutput(writer.Bypass())
	defer a.peer.SetOutput(stdout)

	var dirty atomic.Bool
	dirty.Store(true)
	a.peer.OnChange(func() { dirty.Store(true) })
	defer a.peer.OnChange(nil)

	kick()
	// Resume reaches the engine through the loop; after Flush every transfer
	// is counted by Wait.
	a.ctrl.Flush()

	done := make(chan struct{})
	go func() {
		a.engine.Wait()
		close(done)
	}()

	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	interrupt := ctx.Done()
	for running := true; running; {
		select {
		case <-interrupt:
			interrupt = nil
			log.Info("Interrupted, stopping transfers...")
			go a.engine.Close()
		case <-done:
			running = false
		case <-ticker.C:
			if dirty.Swap(false) {
				drawFrame(a, writer)
			}
		}
	}

	a.ctrl.Flush()
	drawFrame(a, writer)

	inProgress, finished := a.ctrl.Lists()
	log.Infof("Transfers ended: %d in progress, %d finished.", len(inProgress), len(finished))
	return nil
}

// drawFrame replaces the previous frame with the current in-progress list.
func drawFrame(a *app, writer *uilive.Writer) {
	var buf bytes.Buffer
	a.peer.Render(&buf)
	_, _ = writer.Write(buf.Bytes())
	_ = writer.Flush()
}

// serveMetrics exposes the Prometheus registry while transfers run.
func serveMetrics(a *app) *http.Server {
	if a.cfg.Metrics.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
	log.Infof("Serving metrics on http://%s/metrics", a.cfg.Metrics.Addr)
	return srv
}
