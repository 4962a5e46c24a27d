// Package app owns the window and the render loop.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"

	"github.com/eden-gfx/eden/internal/config"
	"github.com/eden-gfx/eden/internal/images"
	"github.com/eden-gfx/eden/internal/renderer"
	"github.com/eden-gfx/eden/internal/scenes"
	"github.com/eden-gfx/eden/internal/shaders"
)

type App struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *scenes.Registry

	window   *sdl.Window
	renderer *renderer.Renderer
	assets   *scenes.DiskAssets

	sceneStart time.Duration
	stats      frameStats
}

func New(cfg config.Config, registry *scenes.Registry, logger *slog.Logger) *App {
	return &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
	}
}

// Run opens the window and renders until it is closed or ctx is done. It must
// be called from the main OS thread.
func (a *App) Run(ctx context.Context) error {
	err := a.initWindow()
	if err != nil {
		return err
	}
	defer a.cleanup()

	a.renderer, err = renderer.New(a.window, renderer.Options{
		ApplicationName:   a.cfg.Window.Title,
		Validation:        a.cfg.Renderer.Validation,
		VSync:             a.cfg.Renderer.VSync,
		MSAA:              a.cfg.Renderer.MSAA,
		PipelineCachePath: a.cfg.Renderer.PipelineCache,
	}, a.logger)
	if err != nil {
		return errors.Wrap(err, "create renderer")
	}

	imageOptions := images.DefaultOptions()
	imageOptions.MaxDimension = a.renderer.MaxTextureDimension()
	a.assets = &scenes.DiskAssets{
		Resolve:      a.cfg.AssetPath,
		TextureNames: a.cfg.Assets.Textures,
		MeshName:     a.cfg.Assets.Mesh,
		MeshTexture:  a.cfg.Assets.MeshTexture,
		Shaders:      shaders.NewLibrary(a.cfg.Assets.ShaderDir),
		ImageOptions: imageOptions,
	}

	err = a.loadScene(ctx, a.cfg.Scene)
	if err != nil {
		return err
	}

	return a.mainLoop(ctx)
}

func (a *App) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "init sdl")
	}

	window, err := sdl.CreateWindow(a.cfg.Window.Title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(a.cfg.Window.Width), int32(a.cfg.Window.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return errors.Wrap(err, "create window")
	}
	a.window = window

	return nil
}

func (a *App) cleanup() {
	if a.renderer != nil {
		a.renderer.Destroy()
		a.renderer = nil
	}

	if a.window != nil {
		_ = a.window.Destroy()
		a.window = nil
	}
	sdl.Quit()
}

func (a *App) loadScene(ctx context.Context, name string) error {
	scene, err := a.registry.Build(ctx, name, a.assets)
	if err != nil {
		return err
	}

	err = a.renderer.Load(scene)
	if err != nil {
		return err
	}

	a.sceneStart = hrtime.Now()
	return nil
}

// switchScene replaces the current scene. A failure keeps the old one on
// screen.
func (a *App) switchScene(ctx context.Context, name string) {
	if name == a.renderer.Scene() {
		return
	}

	err := a.loadScene(ctx, name)
	if err != nil {
		a.logger.Error("scene switch failed", "scene", name, "current", a.renderer.Scene(), "error", err)
	}
}

func (a *App) mainLoop(ctx context.Context) error {
	rendering := true
	a.stats.reset(hrtime.Now())

appLoop:
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down", "reason", context.Cause(ctx))
			break appLoop
		default:
		}

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.KeyboardEvent:
				if e.Type != sdl.KEYDOWN || e.Repeat != 0 {
					continue
				}
				if e.Keysym.Sym == sdl.K_ESCAPE {
					break appLoop
				}
				if index, ok := sceneKey(e.Keysym.Sym); ok {
					if name, ok := a.registry.NameAt(index); ok {
						a.switchScene(ctx, name)
					}
				}
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					rendering = false
				case sdl.WINDOWEVENT_RESTORED:
					rendering = true
				case sdl.WINDOWEVENT_SIZE_CHANGED:
					w, h := a.window.GetSize()
					if w > 0 && h > 0 {
						rendering = true
						err := a.renderer.Resize()
						if err != nil {
							return err
						}
					} else {
						rendering = false
					}
				}
			}
		}

		if !rendering {
			sdl.Delay(16)
			continue
		}

		now := hrtime.Now()
		err := a.renderer.DrawFrame(now - a.sceneStart)
		if err != nil {
			return errors.Wrap(err, "draw frame")
		}

		if fps, ok := a.stats.tick(hrtime.Now()); ok {
			a.logger.Debug("frame rate", "scene", a.renderer.Scene(), "fps", fps)
		}
	}

	return a.renderer.WaitIdle()
}

// sceneKey maps the number keys 1-9 onto registry indices.
func sceneKey(key sdl.Keycode) (int, bool) {
	if key < sdl.K_1 || key > sdl.K_9 {
		return 0, false
	}
	return int(key - sdl.K_1), true
}

// frameStats counts frames over one-second windows.
type frameStats struct {
	windowStart time.Duration
	frames      int
}

func (s *frameStats) reset(now time.Duration) {
	s.windowStart = now
	s.frames = 0
}

// tick records a frame. Once a second has passed it returns the frame rate
// over that second and starts a new window.
func (s *frameStats) tick(now time.Duration) (float64, bool) {
	s.frames++
	elapsed := now - s.windowStart
	if elapsed < time.Second {
		return 0, false
	}

	fps := float64(s.frames) / elapsed.Seconds()
	s.reset(now)
	return fps, true
}
