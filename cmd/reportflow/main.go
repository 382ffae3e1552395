// cmd/reportflow/main.go
//
// This is the entry point for the reportflow CLI.
//
//	reportflow                    launch the dashboard in the current project
//	reportflow layout graph.json  print the laid-out graph as JSON
//
// The TUI owns the terminal, so structured logs go to .reportflow/logs.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/reportflow/internal/backend"
	"github.com/kingrea/reportflow/internal/bridge"
	"github.com/kingrea/reportflow/internal/config"
	"github.com/kingrea/reportflow/internal/layout"
	"github.com/kingrea/reportflow/internal/logbook"
	"github.com/kingrea/reportflow/internal/logging"
	"github.com/kingrea/reportflow/internal/pipeline"
	"github.com/kingrea/reportflow/internal/session"
	"github.com/kingrea/reportflow/internal/tui"
)

// Version is set at build time.
var Version = "dev"

type options struct {
	projectDir string
	sessionID  string
	backendURL string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "reportflow: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("reportflow", flag.ContinueOnError)
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("working directory: %w", err)
	}
	var opts options
	fs.StringVar(&opts.projectDir, "project", cwd, "project directory holding .reportflow/")
	fs.StringVar(&opts.sessionID, "session", defaultSessionID(), "session id; reruns from the same shell share state")
	fs.StringVar(&opts.backendURL, "backend", "", "backend base URL (overrides config and REPORTFLOW_BACKEND_URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.NewConfig(opts.projectDir)
	if err != nil {
		return err
	}
	if opts.backendURL != "" {
		cfg.Project.Backend.URL = opts.backendURL
	}
	engine := layout.NewEngine(layout.Options{
		NodeSep: cfg.Project.Layout.NodeSep,
		RankSep: cfg.Project.Layout.RankSep,
		EdgeSep: cfg.Project.Layout.EdgeSep,
	})

	if rest := fs.Args(); len(rest) > 0 {
		switch rest[0] {
		case "layout":
			if len(rest) != 2 {
				return errors.New("usage: reportflow layout <graph.json>")
			}
			return runLayout(engine, rest[1], stdout)
		default:
			return fmt.Errorf("unknown command %q", rest[0])
		}
	}
	return runDashboard(cfg, opts, engine)
}

func runDashboard(cfg *config.Config, opts options, engine *layout.Engine) error {
	if err := config.InitDir(cfg.ProjectDir); err != nil {
		return fmt.Errorf("init %s: %w", config.Dir, err)
	}
	logFile, err := logging.New(cfg.LogPath(), logging.Options{
		Level:   cfg.LogLevel(),
		Format:  cfg.Project.Logging.Format,
		Service: "reportflow",
		Version: Version,
	})
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := logFile.With("session", opts.sessionID)
	slog.SetDefault(logger)

	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, opts.sessionID)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	client := backend.New(cfg.Project.Backend.URL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.Project.Backend.Timeout}),
		backend.WithLogger(logger),
		backend.WithMetrics(backend.NewMetrics(registry)),
	)
	checkBackend(ctx, client, logger, journal)

	orch := pipeline.New(ctx, client, store,
		pipeline.WithLogger(logger),
		pipeline.WithJournal(journal),
	)
	app := tui.NewApp(orch,
		tui.WithContext(ctx),
		tui.WithEngine(engine),
		tui.WithLogbook(journal),
		tui.WithLogger(logger),
	)
	server := bridge.NewServer(bridge.SettingsFromConfig(cfg), orch,
		bridge.WithEngine(engine),
		bridge.WithGatherer(registry),
		bridge.WithLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, app)
	})
	err = g.Wait()
	logger.Info("reportflow stopped", "error", err)
	return err
}

// openStore selects the session store named in config.
func openStore(ctx context.Context, cfg *config.Config, sessionID string) (session.Store, func(), error) {
	switch cfg.Project.Session.Backend {
	case config.SessionMemory:
		return session.NewMemoryStore(), func() {}, nil
	case config.SessionNATS:
		kv, err := session.OpenKVStore(ctx, session.KVOptions{
			URL:       cfg.Project.Session.NATSURL,
			SessionID: sessionID,
			TTL:       cfg.Project.Session.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return kv, kv.Close, nil
	default:
		pruned, err := session.PruneFileSessions(cfg.SessionsDir(), session.PruneOptions{
			TTL:   cfg.Project.Session.TTL,
			Alive: processAlive,
		})
		if err != nil {
			slog.Warn("session prune failed", "error", err)
		}
		if len(pruned) > 0 {
			slog.Info("pruned expired sessions", "sessions", pruned)
		}
		fsStore, err := session.NewFileStore(cfg.SessionsDir(), sessionID)
		if err != nil {
			return nil, nil, err
		}
		return fsStore, func() {}, nil
	}
}

func checkBackend(ctx context.Context, client *backend.Client, logger *slog.Logger, journal *logbook.Logbook) {
	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	health, err := client.Health(healthCtx)
	if err != nil {
		logger.Warn("backend unavailable", "url", client.BaseURL(), "error", err)
		journal.Warn("backend %s is not reachable", client.BaseURL())
		return
	}
	logger.Info("backend ready", "url", client.BaseURL(), "status", health.Status, "version", health.Version)
}

// defaultSessionID ties state to the launching shell, so a rerun from the
// same terminal picks up where the last one stopped.
func defaultSessionID() string {
	return session.ShellID(os.Getppid())
}

// processAlive reports whether pid still runs. A permission error means the
// process exists but belongs to someone else.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
