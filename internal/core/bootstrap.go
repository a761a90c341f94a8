package core

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/verba-project/verba/internal/backend"
	"github.com/verba-project/verba/internal/config"
	"github.com/verba-project/verba/internal/logging"
	"github.com/verba-project/verba/internal/notify"
	"github.com/verba-project/verba/internal/repository/gormdb"
	"github.com/verba-project/verba/internal/service"
	"github.com/verba-project/verba/internal/version"
)

// shutdownSlack is added to the configured grace period when stopping the
// backend on exit, leaving room for the hard kill.
const shutdownSlack = 3 * time.Second

// Options 控制 Bootstrap 的可选行为
type Options struct {
	// Spawner overrides how backend processes are started (tests).
	Spawner backend.Spawner
	// KeepLogOutput leaves the standard logger untouched instead of teeing it
	// into <data>/verba.log.
	KeepLogOutput bool
	// LogConsole receives log lines next to the log file; defaults to stdout.
	LogConsole io.Writer
	// DisableNotifications turns desktop notifications off regardless of config.
	DisableNotifications bool
}

// Components 外壳运行时组件
type Components struct {
	Config     *config.Config
	Supervisor *backend.Supervisor
	// History is nil when the history database could not be opened.
	History  *service.LaunchHistoryService
	Notifier *notify.Notifier

	closers []io.Closer
}

// Bootstrap wires the supervisor, history, notifier and log files from cfg.
// Nothing here is fatal: a missing resource directory surfaces as a failed
// launch and an unusable history database disables history.
func Bootstrap(cfg *config.Config, opts Options) *Components {
	c := &Components{Config: cfg}

	if !opts.KeepLogOutput {
		c.closers = append(c.closers, logging.Setup(cfg.LogPath(), opts.LogConsole))
	}

	log.Printf("[Core] Verba %s", version.Full())
	log.Printf("[Core] Data directory: %s", cfg.DataDir)
	if cfg.ResourceErr != nil {
		log.Printf("[Core] Warning: resource directory lookup failed: %v", cfg.ResourceErr)
	} else {
		log.Printf("[Core] Resource directory: %s", cfg.ResourceDir)
	}

	db, err := gormdb.NewDBWithDSN(cfg.HistoryDSN())
	if err != nil {
		log.Printf("[Core] Warning: launch history disabled: %v", err)
	} else {
		c.closers = append(c.closers, db)
		c.History = service.NewLaunchHistoryService(gormdb.NewLaunchRecordRepository(db))
		c.History.RecoverStale()
	}

	pidFile := backend.NewPIDFile(cfg.PIDPath())
	if reaped, err := backend.ReapOrphan(pidFile, cfg.ShutdownGrace); err != nil {
		log.Printf("[Core] Warning: failed to reap orphaned backend: %v", err)
	} else if reaped {
		log.Printf("[Core] Terminated a backend left running by a previous session")
	}

	backendLog := logging.NewRotator(cfg.BackendLogPath(), logging.DefaultRotate)
	c.closers = append(c.closers, backendLog)

	launcher := backend.NewLauncher(backend.LauncherOptions{
		Layout:      backend.Layout{Dir: cfg.ResourceDir, Err: cfg.ResourceErr},
		Spawner:     opts.Spawner,
		Interpreter: cfg.Python,
		Output:      backendLog,
	})
	c.Supervisor = backend.NewSupervisor(launcher, backend.SupervisorOptions{
		Grace:   cfg.ShutdownGrace,
		PIDFile: pidFile,
	})

	c.Notifier = notify.New(cfg.Notify && !opts.DisableNotifications)

	if c.History != nil {
		c.Supervisor.Subscribe(c.History.Record)
	}
	c.Supervisor.Subscribe(c.Notifier.BackendStatus)

	return c
}

// ShutdownTimeout bounds a full backend stop including the hard kill.
func (c *Components) ShutdownTimeout() time.Duration {
	return c.Config.ShutdownGrace + shutdownSlack
}

// Shutdown stops the backend and releases every resource. Safe to call once.
func (c *Components) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.ShutdownTimeout())
	defer cancel()

	var errs []error
	if err := c.Supervisor.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
