// verba - run the Verba backend without the desktop shell
//
// Usage:
//
//	verba [flags]
//
// The backend is started with the same interpreter fallback as the desktop
// app and supervised until it exits or the process receives SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	flag "github.com/spf13/pflag"
	"github.com/verba-project/verba/internal/backend"
	"github.com/verba-project/verba/internal/config"
	"github.com/verba-project/verba/internal/core"
	"github.com/verba-project/verba/internal/version"
	"golang.org/x/sync/errgroup"
)

type cliOptions struct {
	overrides   config.Overrides
	jsonOutput  bool
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("verba", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.overrides.ResourceDir, "resources", "", "Resource directory containing backend/main.py (overrides "+config.EnvResourceDir+")")
	fs.StringVar(&o.overrides.DataDir, "data", "", "Data directory for history and logs (default: ~/.config/verba)")
	fs.StringVar(&o.overrides.Python, "python", "", "Interpreter tried before the bundled and system ones (overrides "+config.EnvPython+")")
	fs.DurationVar(&o.overrides.ShutdownGrace, "grace", 0, "Time the backend gets to exit after SIGTERM before it is killed")
	fs.BoolVar(&o.jsonOutput, "json", false, "Print status changes as JSON lines")
	fs.BoolVarP(&o.showVersion, "version", "v", false, "Show version information and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return &o, nil
}

// exitCode maps the final backend status to the process exit code.
func exitCode(st backend.Status) int {
	switch st.State {
	case backend.StateStopped:
		return 0
	case backend.StateExited:
		if st.ExitCode != nil && *st.ExitCode == 0 {
			return 0
		}
		return 1
	default:
		return 1
	}
}

// statusPrinter writes one line per status change.
type statusPrinter struct {
	w          io.Writer
	jsonOutput bool
}

func (p statusPrinter) Print(st backend.Status) {
	if p.jsonOutput {
		b, err := sonic.Marshal(st)
		if err != nil {
			log.Printf("[CLI] Failed to encode status: %v", err)
			return
		}
		fmt.Fprintln(p.w, string(b))
		return
	}
	switch st.State {
	case backend.StateFailed:
		fmt.Fprintf(p.w, "failed: %s\n", st.Error)
	case backend.StateExited:
		code := -1
		if st.ExitCode != nil {
			code = *st.ExitCode
		}
		fmt.Fprintf(p.w, "exited: code %d\n", code)
	default:
		fmt.Fprintf(p.w, "%s: %s\n", st.State, st.Message)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, "verba", version.Full())
		return 0
	}

	cfg, err := config.Load(opts.overrides)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	c := core.Bootstrap(cfg, core.Options{DisableNotifications: true, LogConsole: stderr})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout())
		defer cancel()
		if err := c.Shutdown(shutdownCtx); err != nil {
			log.Printf("[CLI] Shutdown error: %v", err)
		}
	}()

	printer := statusPrinter{w: stdout, jsonOutput: opts.jsonOutput}
	c.Supervisor.Subscribe(printer.Print)

	// installed before the launch so a signal during it still stops the child
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := c.Supervisor.Start(sigCtx); err != nil {
		return 1
	}

	var final backend.Status
	exited := make(chan struct{})
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(func() error {
		defer close(exited)
		st, err := c.Supervisor.Wait(context.WithoutCancel(gctx))
		final = st
		return err
	})
	g.Go(func() error {
		select {
		case <-exited:
			return nil
		case <-gctx.Done():
		}
		log.Println("[CLI] Interrupted, stopping backend...")
		stopCtx, cancel := context.WithTimeout(context.Background(), c.ShutdownTimeout())
		defer cancel()
		return c.Supervisor.Stop(stopCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("[CLI] Supervision error: %v", err)
		return 1
	}
	return exitCode(final)
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	start := time.Now()
	code := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	log.Printf("[CLI] Exiting with code %d after %v", code, time.Since(start).Round(time.Millisecond))
	os.Exit(code)
}
