package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/autocam/internal/app"
	"github.com/ayusman/autocam/internal/capture"
	"github.com/ayusman/autocam/internal/config"
	"github.com/ayusman/autocam/internal/detector"
	"github.com/ayusman/autocam/internal/hook"
	"github.com/ayusman/autocam/internal/log"
	"github.com/ayusman/autocam/internal/obs"
	"github.com/ayusman/autocam/internal/server"
	"github.com/ayusman/autocam/internal/source"
	"github.com/ayusman/autocam/internal/store"
	"github.com/ayusman/autocam/internal/tray"
)

func init() {
	// The menu bar event loop must own the main thread on macOS.
	runtime.LockOSThread()
}

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file")
	useTray := flag.Bool("tray", false, "show a menu bar item")
	pretty := flag.Bool("pretty", false, "human readable log output")
	flag.Parse()

	log.Configure(log.Config{Pretty: *pretty})
	logger := log.WithComponent("main")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load configuration")
		return 1
	}
	log.Reconfigure(log.Config{Level: cfg.Log.Level, Pretty: *pretty || cfg.Log.Pretty})
	logger = log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := newSource(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("face tracking unavailable")
		return 1
	}

	sink := obs.NewSink(obs.Config{
		Host:     cfg.OBS.Host,
		Port:     cfg.OBS.Port,
		Password: cfg.OBS.Password,
		Timeout:  cfg.OBS.Timeout,
	})
	checkOBS(ctx, sink, cfg, logger)

	st := openStore(cfg, logger)
	if st != nil {
		defer st.Close()
	}

	hub := server.NewHub()
	opts := []app.Option{app.WithObserver(hub.Publish)}
	if st != nil {
		opts = append(opts, app.WithStore(st))
	}

	hooks := newHookRunner(cfg, logger)
	if hooks != nil {
		opts = append(opts, app.WithObserver(hooks.Notify))
	}

	var menu *tray.Tray
	if *useTray {
		menu = tray.New(true)
		opts = append(opts, app.WithObserver(menu.Notify))
	}

	a, err := app.New(app.Config{
		Scenes:           cfg.SceneSet(),
		Thresholds:       cfg.SceneThresholds(),
		TickPeriod:       cfg.TickPeriod,
		SourceErrorLimit: cfg.Source.ErrorLimit,
		SwitchTimeout:    cfg.OBS.Timeout,
	}, src, sink, opts...)
	if err != nil {
		logger.Error().Err(err).Msg("failed to create app")
		src.Close()
		sink.Close()
		return 1
	}

	holder := config.NewHolder(cfg, *configPath)
	holder.OnReload(func(next config.Config) {
		if err := a.SetThresholds(next.SceneThresholds()); err != nil {
			logger.Warn().Err(err).Msg("reloaded thresholds rejected")
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		return holder.Watch(gctx)
	})
	if hooks != nil {
		g.Go(func() error {
			return hooks.Run(gctx)
		})
	}
	if cfg.Server.Addr != "" {
		var ctl server.Controller = a
		if menu != nil {
			ctl = trayedController{App: a, menu: menu}
		}
		srv := server.New(server.Config{App: ctl, Store: st, Hub: hub})
		g.Go(func() error {
			return srv.Run(gctx, cfg.Server.Addr)
		})
	}
	if menu != nil {
		menu.SetEnabled(a.IsEnabled())
		menu.OnToggle(a.SetEnabled)
		menu.OnQuit(stop)
		if cfg.Server.Addr != "" {
			url := "http://" + cfg.Server.Addr + "/api/status"
			menu.OnStatus(func() { openBrowser(url, logger) })
		}

		done := make(chan error, 1)
		go func() {
			done <- g.Wait()
			menu.Quit()
		}()
		menu.Run()
		stop()
		return exitCode(<-done, logger)
	}

	return exitCode(g.Wait(), logger)
}

// trayedController keeps the menu in step when switching is toggled over HTTP.
type trayedController struct {
	*app.App
	menu *tray.Tray
}

func (c trayedController) SetEnabled(enabled bool) {
	c.App.SetEnabled(enabled)
	c.menu.SetEnabled(enabled)
}

func newSource(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*source.Face, error) {
	index := cfg.Camera.Index
	if cfg.Camera.AutoDetect {
		index = capture.NewDiscovery().FindPrimaryIndex(ctx, index)
	}
	camera := capture.NewCamera(index)
	camera.SetFPS(cfg.Camera.FPS)

	detCfg := detector.DefaultConfig()
	detCfg.MinConfidence = cfg.Detector.MinConfidence
	detCfg.MinTrackingConf = cfg.Detector.MinConfidence
	detCfg.Script = cfg.Detector.Script
	detCfg.Python = cfg.Detector.Python

	det, err := detector.NewFaceMeshDetector(detCfg)
	if err != nil {
		return nil, err
	}

	logger.Info().Int("camera", index).Msg("using face mesh tracking")
	return source.NewFace(camera, det), nil
}

// checkOBS connects early so a misconfigured address or password shows up at
// startup. Failures are not fatal; the sink redials on the first switch.
func checkOBS(ctx context.Context, sink *obs.Sink, cfg config.Config, logger zerolog.Logger) {
	if err := sink.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("OBS not reachable, will retry on first switch")
		return
	}

	set := cfg.SceneSet()
	missing, err := sink.MissingScenes(ctx, set.High, set.Low)
	if err != nil {
		logger.Warn().Err(err).Msg("could not list OBS scenes")
		return
	}
	for _, id := range missing {
		logger.Warn().Str("scene", string(id)).Msg("configured scene does not exist in OBS")
	}
	if current, err := sink.CurrentScene(ctx); err == nil {
		logger.Info().Str("scene", string(current)).Msg("OBS program scene")
	}
}

func openStore(cfg config.Config, logger zerolog.Logger) *store.Store {
	if cfg.Store.Path == "" {
		return nil
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.Store.Path).Msg("transition journal disabled")
		return nil
	}

	if cfg.Store.Retain > 0 {
		removed, err := st.Transitions().Prune(cfg.Store.Retain)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to prune transition journal")
		} else if removed > 0 {
			logger.Info().Int64("removed", removed).Msg("pruned transition journal")
		}
	}
	return st
}

func newHookRunner(cfg config.Config, logger zerolog.Logger) *hook.Runner {
	if cfg.Hooks.Dir == "" {
		return nil
	}

	manager := hook.NewManager(cfg.Hooks.Dir)
	if err := manager.Discover(); err != nil {
		logger.Warn().Err(err).Str("dir", cfg.Hooks.Dir).Msg("failed to discover hooks")
		return nil
	}
	if n := len(manager.List()); n > 0 {
		logger.Info().Int("count", n).Str("dir", cfg.Hooks.Dir).Msg("loaded transition hooks")
	}
	return hook.NewRunner(manager, hook.NewExecutor(cfg.Hooks.Timeout))
}

func exitCode(err error, logger zerolog.Logger) int {
	switch {
	case err == nil:
		logger.Info().Msg("shut down")
		return 0
	case errors.Is(err, app.ErrSourceUnavailable):
		logger.Error().Err(err).Msg("could not open camera")
	case errors.Is(err, app.ErrSourceLost):
		logger.Error().Err(err).Msg("camera stopped delivering frames")
	default:
		logger.Error().Err(err).Msg("exiting on error")
	}
	return 1
}

func openBrowser(url string, logger zerolog.Logger) {
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	if err := exec.Command(name, url).Start(); err != nil {
		logger.Warn().Err(err).Str("url", url).Msg("could not open browser")
	}
}
