package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/OCAP2/drone-tracker/internal/api"
	"github.com/OCAP2/drone-tracker/internal/config"
	"github.com/OCAP2/drone-tracker/internal/control"
	"github.com/OCAP2/drone-tracker/internal/dispatcher"
	"github.com/OCAP2/drone-tracker/internal/drone"
	"github.com/OCAP2/drone-tracker/internal/geo"
	"github.com/OCAP2/drone-tracker/internal/logging"
	"github.com/OCAP2/drone-tracker/internal/monitor"
	intOtel "github.com/OCAP2/drone-tracker/internal/otel"
	"github.com/OCAP2/drone-tracker/internal/session"
	"github.com/OCAP2/drone-tracker/internal/storage"
	"github.com/OCAP2/drone-tracker/internal/worker"
	"github.com/spf13/cobra"
)

// shutdownTimeout bounds flushing logs and telemetry on the way out.
const shutdownTimeout = 5 * time.Second

type runOptions struct {
	configDir string
	verbose   bool
}

// app holds every long-lived service of one run.
type app struct {
	start   time.Time
	logsDir string
	out     io.Writer

	logManager   *logging.SlogManager
	logger       *slog.Logger
	otelProvider *intOtel.Provider
	closers      []io.Closer

	drone      *drone.Drone
	sessions   *session.Context
	projector  *geo.Projector
	dispatcher *dispatcher.Dispatcher
	backend    storage.Backend
	worker     *worker.Manager
	publisher  *worker.Publisher
	controller *control.Controller
	monitor    *monitor.Service

	shutdownOnce sync.Once
}

func runTracker(cmd *cobra.Command, opts runOptions) error {
	if err := config.Load(opts.configDir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v, using defaults\n", err)
	}

	a := &app{start: time.Now(), out: cmd.OutOrStdout()}
	a.logsDir = config.GetString("logsDir")

	exit := func(code int) {
		a.shutdown()
		os.Exit(code)
	}
	if err := a.setup(opts, exit); err != nil {
		a.shutdown()
		return err
	}
	defer a.shutdown()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return a.repl(ctx, cmd.InOrStdin())
}

func (a *app) setup(opts runOptions, exit func(int)) error {
	droneCfg := config.GetDroneConfig()
	a.drone = drone.New(droneCfg.ID, drone.WithBattery(droneCfg.InitialBattery), drone.WithSensors(droneCfg.Sensors...))
	a.sessions = session.NewContext()
	a.projector = geo.NewProjector(droneCfg.HomeLatitude, droneCfg.HomeLongitude)

	if err := a.initLogging(opts.verbose); err != nil {
		return err
	}
	a.logger.Info("Starting up...", "version", Version, "build", BuildDate, "drone", a.drone.ID())

	var err error
	a.dispatcher, err = dispatcher.New(a.logger)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	a.backend, err = a.initStorage(config.GetStorageConfig())
	if err != nil {
		return err
	}

	workerDeps := worker.Dependencies{LogManager: a.logManager}
	if apiCfg := config.GetAPIConfig(); apiCfg.Enabled {
		client := api.New(apiCfg.ServerURL, apiCfg.APIKey)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.Healthcheck(ctx); err != nil {
			a.logger.Warn("Recordings server not reachable, uploads may fail", "url", apiCfg.ServerURL, "error", err)
		}
		cancel()
		workerDeps.Uploader = client
	}
	a.worker = worker.NewManager(workerDeps, a.backend)
	a.worker.RegisterHandlers(a.dispatcher)
	a.publisher = worker.NewPublisher(a.dispatcher, a.logger)

	a.controller = control.New(control.Dependencies{
		Drone:    a.drone,
		Sessions: a.sessions,
		Recorder: a.publisher,
		Logger:   a.logger,
		Exit:     exit,
	})
	a.controller.RegisterHandlers(a.dispatcher)

	if config.GetBool("monitor.enabled") {
		a.monitor = monitor.NewService(monitor.Dependencies{
			LogManager: a.logManager,
			Snapshot:   a.controller.Status,
			Sessions:   a.sessions,
			Worker:     a.worker,
			Dispatcher: a.dispatcher,
			Publisher:  a.publisher,
			Dir:        a.logsDir,
		})
		if err := a.monitor.Start(); err != nil {
			a.logger.Warn("Failed to start status monitor", "error", err)
		}
	}

	a.logger.Info("Drone ready", "drone", a.drone.ID(), "battery", a.drone.BatteryPercent())
	return nil
}

func (a *app) initLogging(verbose bool) error {
	if err := os.MkdirAll(a.logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	logFile, err := os.OpenFile(logging.LogFilePath(a.logsDir, ProgramName, a.start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	a.closers = append(a.closers, logFile)

	out := logging.Outputs{
		File: logFile,
		Context: func() []slog.Attr {
			return []slog.Attr{slog.String("drone", a.drone.ID()), slog.Bool("flying", a.drone.IsFlying())}
		},
	}
	if verbose {
		out.Console = os.Stderr
	}

	var warnings []error

	if gl := config.GetGraylogConfig(); gl.Enabled {
		w, err := logging.NewGELFWriter(gl.Address)
		if err != nil {
			warnings = append(warnings, err)
		} else {
			out.GELF = w
			a.closers = append(a.closers, w)
		}
	}

	otelCfg := config.GetOTelConfig()
	var otelFile *os.File
	if otelCfg.Enabled {
		otelFile, err = os.OpenFile(logging.LogFilePath(a.logsDir, ProgramName+".otel", a.start), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("failed to open OTel log file: %w", err))
			otelFile = nil
		}
	}
	var otelWriter io.Writer
	if otelFile != nil {
		otelWriter = otelFile
		a.closers = append(a.closers, otelFile)
	}
	providerCfg := intOtel.FromSettings(otelCfg, otelWriter)
	providerCfg.ServiceVersion = Version
	providerCfg.DroneID = a.drone.ID()
	a.otelProvider, err = intOtel.New(providerCfg)
	if err != nil {
		warnings = append(warnings, fmt.Errorf("failed to initialize OTel: %w", err))
	} else {
		out.OTel = a.otelProvider.LoggerProvider()
	}

	a.logManager = logging.NewSlogManager()
	a.logManager.Setup(out, config.GetString("logLevel"))
	a.logger = a.logManager.Logger()

	for _, w := range warnings {
		a.logger.Warn("Logging output unavailable", "error", w)
	}
	return nil
}

// shutdown drains the record queue into the backends and releases every
// output. Safe to call more than once.
func (a *app) shutdown() {
	a.shutdownOnce.Do(func() {
		if a.controller != nil {
			a.controller.Land()
		}
		if a.monitor != nil {
			a.monitor.Stop()
		}
		if a.dispatcher != nil {
			a.dispatcher.Close()
		}
		if a.worker != nil {
			a.worker.WaitUploads()
		}
		if a.backend != nil {
			if err := a.backend.Close(); err != nil && a.logger != nil {
				a.logger.Error("Failed to close storage", "error", err)
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.logManager != nil {
			a.logger.Info("Shutting down")
			if err := a.logManager.Flush(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
			}
		}
		if a.otelProvider != nil {
			if err := a.otelProvider.Shutdown(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
			}
		}

		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			errs = append(errs, a.closers[i].Close())
		}
		if err := errors.Join(errs...); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log outputs: %v\n", err)
		}
	})
}

func (a *app) exportPath(name string) string {
	return filepath.Join(a.logsDir, fmt.Sprintf("%s_%s", name, a.start.Format("20060102_150405")))
}
