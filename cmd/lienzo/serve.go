package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rendis/lienzo/internal/diagram"
	"github.com/rendis/lienzo/internal/expressions"
	"github.com/rendis/lienzo/internal/identity"
	"github.com/rendis/lienzo/internal/logging"
	"github.com/rendis/lienzo/internal/panel"
	"github.com/rendis/lienzo/internal/render"
	"github.com/rendis/lienzo/internal/scheduler"
	"github.com/rendis/lienzo/internal/store"
	"github.com/rendis/lienzo/internal/streaming"
	"github.com/rendis/lienzo/internal/theme"
	"github.com/rendis/lienzo/internal/validation"
	"github.com/rendis/lienzo/internal/watcher"
	"github.com/rendis/lienzo/internal/workspace"
	"github.com/rendis/lienzo/pkg/mcp"
	"github.com/rendis/lienzo/pkg/schema"
)

// eventRetention is how long recorded session activity is kept.
const eventRetention = 30 * 24 * time.Hour

func runServe(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("lienzo", flag.ContinueOnError)
	showVersion := bindFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		printVersion()
		return nil
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := slog.New(logging.NewCorrelationHandler(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}),
	))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Store ---
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		return err
	}

	// --- Themes ---
	catalog := theme.NewCatalog()
	if cfg.ThemeCatalog != "" {
		if err := loadCatalog(catalog, cfg.ThemeCatalog, logger); err != nil {
			return err
		}
	}

	// --- Identity + renderer ---
	resolver, err := buildResolver(cfg)
	if err != nil {
		return err
	}
	renderer, checker := buildRenderer(cfg, logger)

	// --- Watched source file ---
	hub := streaming.NewMemoryHub()
	var ws *workspace.Workspace
	var fileWatcher *watcher.Watcher
	initial := diagram.DefaultTemplate()
	if cfg.WatchFile != "" {
		fileWatcher = watcher.New(cfg.WatchFile, func(src string) {
			if ws != nil {
				ws.SetSource(src, false)
			}
		}, logger)
		initial, err = loadWatched(fileWatcher, initial)
		if err != nil {
			return err
		}
	}

	// --- Workspace ---
	ws, err = workspace.New(renderer, catalog,
		workspace.WithSessionID(cfg.Session),
		workspace.WithSource(initial),
		workspace.WithTheme(cfg.Theme),
		workspace.WithViewSize(cfg.ViewportWidth, cfg.ViewportHeight),
		workspace.WithHub(hub),
		workspace.WithResolver(resolver),
		workspace.WithStore(st),
		workspace.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if err := openSession(ctx, ws, st, fileWatcher != nil, initial); err != nil {
		ws.Close()
		return err
	}
	logger.Info("workspace ready", "renderer", cfg.Renderer, "theme", ws.ThemeID())

	// --- Activity log ---
	activity := store.NewEventLog(st)
	go func() {
		if err := activity.Record(ctx, hub, ws.ID(), logger); err != nil {
			logger.Error("activity recorder stopped", "error", err)
		}
	}()

	// --- Scheduler ---
	sched := scheduler.NewScheduler(0, logger)
	for _, job := range []scheduler.Job{
		scheduler.AutosaveJob(cfg.AutosaveCron, ws, logger),
		scheduler.VacuumJob(cfg.VacuumCron, st, eventRetention, logger),
	} {
		if err := sched.Add(job); err != nil {
			ws.Close()
			return err
		}
	}
	if err := sched.Start(ctx); err != nil {
		ws.Close()
		return err
	}

	// --- File watcher ---
	if fileWatcher != nil {
		go func() {
			if err := fileWatcher.Watch(ctx); err != nil {
				logger.Error("file watcher stopped", "error", err)
			}
		}()
		go mirrorSource(ctx, hub, ws, fileWatcher, logger)
	}

	// --- Panel ---
	var httpServer *http.Server
	if cfg.ListenAddr != "" {
		ps := panel.NewPanelServer(panel.PanelDeps{
			Workspace: ws,
			Hub:       hub,
			Store:     st,
			Activity:  activity,
			Scheduler: sched,
			Logger:    logger,
		})
		httpServer = &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           ps.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("panel listening", "addr", cfg.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("panel server error", "error", err)
				cancel()
			}
		}()
	}

	// --- MCP over stdio ---
	if cfg.MCP {
		engines, err := expressions.NewEngines()
		if err != nil {
			ws.Close()
			return err
		}
		srv := mcp.NewLienzoServer(mcp.LienzoServerDeps{
			Workspace:   ws,
			Engines:     engines,
			Hub:         hub,
			Checker:     checker,
			ASCIIBinDir: cfg.MermaidASCIIDir,
			Logger:      logger,
		})
		notifier := mcp.NewMCPNotifier(srv.MCPServer(), srv.Sessions(), logger)
		go func() {
			if err := notifier.Forward(ctx, hub, ws.ID()); err != nil {
				logger.Warn("mcp notifier stopped", "error", err)
			}
		}()
		go func() {
			if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("mcp server error", "error", err)
			}
			// stdin closed: the client is gone.
			cancel()
		}()
	}

	// --- Signals ---
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigs)

	active := cfg
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-sigs:
			if sig == syscall.SIGHUP {
				active = reloadConfig(active, level, catalog, logger)
				continue
			}
			logger.Info("shutting down", "signal", sig.String())
			break loop
		}
	}

	return shutdown(ws, sched, httpServer, cancel, logger)
}

// shutdown stops the surfaces, then saves the session one last time.
func shutdown(ws *workspace.Workspace, sched *scheduler.Scheduler, httpServer *http.Server, cancel context.CancelFunc, logger *slog.Logger) error {
	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("panel shutdown error", "error", err)
		}
	}
	if err := sched.Stop(); err != nil {
		logger.Warn("scheduler stop error", "error", err)
	}

	saved, err := ws.Autosave(shutdownCtx)
	if err != nil {
		logger.Error("final save failed", "error", err)
	} else if saved {
		logger.Info("session saved")
	}
	cancel()
	ws.Close()
	return err
}

// openSession restores the configured session, or creates it when the
// store has never seen it. A watched file wins over the stored source.
func openSession(ctx context.Context, ws *workspace.Workspace, st store.Store, watched bool, initial string) error {
	err := ws.Restore(ctx)
	switch {
	case err == nil:
		if watched && ws.Source() != initial {
			ws.SetSource(initial, false)
		}
		return nil
	case schema.HasCode(err, schema.ErrCodeNotFound):
		if err := st.CreateSession(ctx, ws.Snapshot()); err != nil {
			return err
		}
		ws.Start()
		return nil
	default:
		return err
	}
}

// loadWatched reads the watched file, creating it with fallback when it
// does not exist yet.
func loadWatched(w *watcher.Watcher, fallback string) (string, error) {
	src, err := w.Load()
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if err := w.Write(fallback); err != nil {
		return "", err
	}
	return fallback, nil
}

// mirrorSource writes source edits made through the panel or MCP back to
// the watched file.
func mirrorSource(ctx context.Context, hub streaming.EventHub, ws *workspace.Workspace, w *watcher.Watcher, logger *slog.Logger) {
	ch, unsub, err := hub.Subscribe(ctx, streaming.EventFilter{
		SessionID:  ws.ID(),
		EventTypes: []string{schema.EventHistoryChanged},
	})
	if err != nil {
		logger.Error("source mirror subscribe failed", "error", err)
		return
	}
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			if err := w.Write(ws.Source()); err != nil {
				logger.Warn("source mirror write failed", "error", err)
			}
		}
	}
}

func loadCatalog(catalog *theme.Catalog, path string, logger *slog.Logger) error {
	result, err := catalog.LoadFile(path)
	if err != nil {
		return fmt.Errorf("theme catalog %s: %w", path, err)
	}
	for _, w := range result.Warnings {
		logger.Warn("theme catalog warning", "path", w.Path, "message", w.Message)
	}
	return nil
}

func buildResolver(cfg Config) (*identity.Resolver, error) {
	opts := []identity.Option{identity.WithLocale(cfg.Locale)}
	if r := cfg.ClassifierRules; r.Node != "" || r.EdgeLabel != "" {
		rc, err := identity.NewRuleClassifier(r.Node, r.EdgeLabel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, identity.WithClassifier(rc))
	}
	return identity.NewResolver(opts...), nil
}

// buildRenderer returns the configured renderer and, for the in-process
// renderer, the matching source checker.
func buildRenderer(cfg Config, logger *slog.Logger) (render.Renderer, validation.SourceChecker) {
	if cfg.Renderer == rendererMermaidCLI {
		return &diagram.MermaidCLIRenderer{Path: cfg.MermaidCLIPath, Logger: logger}, nil
	}
	return diagram.NewGraphvizRenderer(logger), validation.FlowchartChecker{}
}

// reloadConfig re-reads settings on SIGHUP and applies what can change
// without a restart.
func reloadConfig(old Config, level *slog.LevelVar, catalog *theme.Catalog, logger *slog.Logger) Config {
	next, err := loadConfig()
	if err != nil {
		logger.Error("config reload failed", "error", err)
		return old
	}
	d := diffConfigs(old, next)
	if d.LogLevelChanged {
		level.Set(logging.ParseLevel(next.LogLevel))
		logger.Info("log level changed", "level", next.LogLevel)
	}
	if d.ThemeCatalogChanged && next.ThemeCatalog != "" {
		if err := loadCatalog(catalog, next.ThemeCatalog, logger); err != nil {
			logger.Error("theme catalog reload failed", "error", err)
		}
	}
	if len(d.RestartNeeded) > 0 {
		logger.Warn("config changes need a restart", "fields", d.RestartNeeded)
	}
	return next
}
