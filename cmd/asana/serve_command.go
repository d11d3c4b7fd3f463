package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/ayusman/asana/internal/app"
	"github.com/ayusman/asana/internal/capture"
	"github.com/ayusman/asana/internal/classify"
	"github.com/ayusman/asana/internal/config"
	"github.com/ayusman/asana/internal/detector"
	"github.com/ayusman/asana/internal/logging"
	"github.com/ayusman/asana/internal/plugin"
	"github.com/ayusman/asana/internal/pose"
	"github.com/ayusman/asana/internal/server"
	"github.com/ayusman/asana/internal/store"
	"github.com/ayusman/asana/internal/tray"
)

const maxConcurrentPlugins = 4

func newServeCommand(ctx *commandContext) *cobra.Command {
	var poseFlag string
	var trayFlag bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coaching server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var startPose pose.Label
			if strings.TrimSpace(poseFlag) != "" {
				startPose, err = pose.ParseLabel(poseFlag)
				if err != nil {
					return err
				}
			}

			return serve(cmd.Context(), cfg, startPose, trayFlag || cfg.Tray.Enabled)
		},
	}

	cmd.Flags().StringVarP(&poseFlag, "pose", "p", "", "Start a session for this pose immediately")
	cmd.Flags().BoolVar(&trayFlag, "tray", false, "Show the system tray icon")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, startPose pose.Label, withTray bool) error {
	if parent == nil {
		parent = context.Background()
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another asana instance is already running")
	}
	defer lock.Unlock()

	st, err := store.NewWithLogger(cfg.DatabasePath(), logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	det, err := detector.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	defer det.Close()

	classifier, err := classify.New(cfg)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	srvCfg := server.Config{
		StaticDir: cfg.Server.StaticDir,
		Store:     st,
		Logger:    logger,
	}
	if srvCfg.StaticDir == "" {
		srvCfg.StaticDir = findWebDir(cfg.Storage.DataDir)
	}
	if tc, ok := classifier.(*classify.TemplateClassifier); ok {
		n, err := tc.LoadStored(st.Templates())
		if err != nil {
			logger.Warn("failed to load trained templates", "error", err)
		}
		logger.Info("classifier ready", "kind", cfg.Classifier.Kind, "templates", n)
		srvCfg.Templates = tc
	}
	if rd, ok := det.(*detector.RemoteDetector); ok {
		srvCfg.Detector = rd
	}

	manager := plugin.NewManager(cfg.Plugins.Dir)
	manager.SetLogger(logger)
	if err := manager.Discover(); err != nil {
		logger.Warn("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}
	for _, p := range manager.List() {
		logger.Info("plugin loaded", "plugin", p.Manifest.Name, "events", p.Manifest.Events)
	}
	dispatcher := plugin.NewDispatcher(manager, plugin.NewExecutor(cfg.Plugins.TimeoutMs), maxConcurrentPlugins, logger)
	// Runs after the session stop below, so session_stopped gets its grace.
	defer dispatcher.Close()

	coach := app.New(app.Config{
		Camera:       newCamera(cfg),
		Detector:     det,
		Classifier:   classifier,
		Recorder:     st.Sessions(),
		Dispatcher:   dispatcher,
		TickInterval: cfg.TickInterval(),
		Logger:       logger,
	})

	hub := server.NewHub(logger)
	coach.AddReporter(hub)
	srvCfg.Session = coach
	srvCfg.Frames = coach
	srvCfg.Hub = hub

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Sessions outlive individual requests; they end at shutdown.
	sessionCtx := context.WithoutCancel(ctx)
	defer func() {
		if coach.Running() {
			if _, err := coach.Stop(); err != nil {
				logger.Warn("failed to stop session", "error", err)
			}
		}
	}()

	if startPose != "" {
		if err := coach.Start(sessionCtx, startPose); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
	}

	srv := server.New(srvCfg)
	if !withTray {
		return srv.ListenAndServe(ctx, cfg.Server.Listen)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Server.Listen)
		stop()
	}()

	t := newTray(sessionCtx, coach, startPose, cfg.Server.Listen, stop, logger)
	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()

	stop()
	return <-errCh
}

func newCamera(cfg *config.Config) capture.Camera {
	if cfg.Detector.Source == config.SourceMock {
		return capture.NewBlankCamera(cfg.Camera.Width, cfg.Camera.Height)
	}
	return capture.NewCamera(capture.Options{
		Device: cfg.Camera.Device,
		Width:  cfg.Camera.Width,
		Height: cfg.Camera.Height,
	})
}

func newTray(ctx context.Context, coach *app.App, target pose.Label, listen string, quit func(), logger *slog.Logger) *tray.Tray {
	t := tray.New(target)
	t.SetRunning(coach.Running())
	coach.AddReporter(t)

	t.OnToggle(func(running bool) {
		if running {
			if err := coach.Start(ctx, t.Target()); err != nil {
				logger.Warn("failed to start session", "error", err)
				t.SetRunning(false)
			}
			return
		}
		if _, err := coach.Stop(); err != nil && !errors.Is(err, app.ErrNotRunning) {
			logger.Warn("failed to stop session", "error", err)
		}
	})
	t.OnSelect(func(label pose.Label) {
		if !coach.Running() {
			return
		}
		if err := coach.SetTarget(label); err != nil {
			logger.Warn("failed to change target", "pose", label, "error", err)
		}
	})
	t.OnSettings(func() {
		if err := openBrowser(localURL(listen)); err != nil {
			logger.Warn("failed to open browser", "error", err)
		}
	})
	t.OnQuit(quit)
	return t
}

func localURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		listen = "localhost" + listen
	}
	return "http://" + listen
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the web UI in the working directory, its parents
// and the data directory. It returns "" when none exists.
func findWebDir(dataDir string) string {
	candidates := []string{"web", "../web", "../../web"}
	if dataDir != "" {
		candidates = append(candidates, filepath.Join(dataDir, "web"))
	}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
