package cmd

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/JaymoCodes/xdm/internal/console"
	"github.com/JaymoCodes/xdm/internal/controller"
	"github.com/JaymoCodes/xdm/internal/dispatch"
	"github.com/JaymoCodes/xdm/internal/engine"
	"github.com/JaymoCodes/xdm/internal/helpers"
	"github.com/JaymoCodes/xdm/internal/index"
	"github.com/JaymoCodes/xdm/internal/metrics"
	"github.com/JaymoCodes/xdm/internal/models"
	"github.com/JaymoCodes/xdm/internal/persistence"
	"github.com/JaymoCodes/xdm/internal/queue"

	log "github.com/sirupsen/logrus"
)

const metricsNamespace = "xdm"

var (
	// stdin is shared by the commands and the console adapter so neither
	// loses input buffered by the other.
	stdin            = bufio.NewReader(os.Stdin)
	stdout io.Writer = os.Stdout
)

// app is one fully wired controller with everything it owns.
type app struct {
	cfg     models.Config
	gateway *persistence.Gateway
	writer  *persistence.Writer
	loop    *dispatch.Loop
	queues  *queue.Manager
	index   *index.Index
	metrics *metrics.Metrics
	engine  *engine.Engine
	httpLog *engine.LoggingTransport
	peer    *console.Peer
	ctrl    *controller.Controller
}

// appOptions are the per-command knobs of the console adapter.
type appOptions struct {
	In        io.Reader
	Out       io.Writer
	AssumeYes bool
}

// openApp wires storage, queues, index, engine and controller from cfg.
func openApp(cfg models.Config, opts appOptions) (*app, error) {
	if !helpers.CheckAndMakeDir(cfg.DataDir) {
		return nil, fmt.Errorf("data directory %s is not usable", cfg.DataDir)
	}

	a := &app{cfg: cfg, metrics: metrics.New(metricsNamespace)}

	backend, err := persistence.Open(cfg.Storage.Backend, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Backend, err)
	}
	a.gateway = persistence.NewGateway(backend, a.metrics)
	a.writer = persistence.NewWriter(a.gateway)

	if a.queues, err = queue.Load(cfg.Queues.File); err != nil {
		a.writer.Close()
		_ = a.gateway.Close()
		return nil, fmt.Errorf("loading queues: %w", err)
	}

	if cfg.Index.Enabled {
		if a.index, err = index.OpenOrCreate(cfg.Index.Path); err != nil {
			log.WithError(err).Warn("Search index unavailable, continuing without it")
			a.index = nil
		}
	}

	var engineOpts []engine.Option
	if cfg.Engine.HTTPLogFile != "" {
		lt, err := engine.NewLoggingTransport(nil, cfg.Engine.HTTPLogFile)
		if err != nil {
			log.WithError(err).Error("Failed to initialize HTTP logging transport, logging disabled.")
		} else {
			log.Infof("HTTP logging to file: %s", cfg.Engine.HTTPLogFile)
			a.httpLog = lt
			engineOpts = append(engineOpts, engine.WithHTTPClient(&http.Client{Transport: lt}))
		}
	}
	a.engine = engine.New(cfg.Engine.MaxConcurrent, engineOpts...)

	a.peer = console.New(console.Options{In: opts.In, Out: opts.Out, AssumeYes: opts.AssumeYes})
	a.loop = dispatch.New()

	a.ctrl = controller.New(controller.Deps{
		Peer:     a.peer,
		Engine:   a.engine,
		Loop:     a.loop,
		Queues:   a.queues,
		Gateway:  a.gateway,
		Writer:   a.writer,
		Index:    a.index,
		Metrics:  a.metrics,
		Settings: settingsFrom(cfg),
	})
	a.engine.Attach(a.ctrl)
	return a, nil
}

func settingsFrom(cfg models.Config) controller.Settings {
	return controller.Settings{
		Throttle:             time.Duration(cfg.Progress.ThrottleMs) * time.Millisecond,
		ConfirmDelete:        cfg.Downloads.ConfirmDelete,
		ConfirmMoveToQueue:   cfg.Downloads.ConfirmMoveToQueue,
		DefaultSpeedLimitKiB: cfg.Downloads.DefaultSpeedLimitKB,
		HelpURL:              cfg.Links.Help,
		SupportURL:           cfg.Links.Support,
		BugReportURL:         cfg.Links.BugReport,
	}
}

// Close stops transfers and makes sure every list change reached storage.
func (a *app) Close() {
	a.engine.Close()
	a.ctrl.Flush()
	a.loop.Stop()
	<-a.loop.Done()
	a.writer.Close()
	if err := a.gateway.Close(); err != nil {
		log.WithError(err).Warn("Error closing storage")
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			log.WithError(err).Warn("Error closing search index")
		}
	}
	if a.httpLog != nil {
		if err := a.httpLog.Close(); err != nil {
			log.WithError(err).Warn("Error closing HTTP log")
		}
	}
}

// openGlobalApp opens the app for the loaded global config, reading answers from stdin.
func openGlobalApp() (*app, error) {
	return openApp(globalConfig, appOptions{In: stdin, Out: stdout, AssumeYes: assumeYesFlag})
}
