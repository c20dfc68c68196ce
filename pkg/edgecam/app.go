package edgecam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-edgecam/pkg/capture"
	"github.com/teslashibe/go-edgecam/pkg/display"
	"github.com/teslashibe/go-edgecam/pkg/edge"
	"github.com/teslashibe/go-edgecam/pkg/pipeline"
	"github.com/teslashibe/go-edgecam/pkg/web"
)

// stopTimeout bounds the pipeline teardown on shutdown.
const stopTimeout = 5 * time.Second

// App is the edgecam application orchestrator.
// It owns every component and their lifecycle.
type App struct {
	config Config
	logger *slog.Logger
	clock  clock.Clock

	camera   *capture.Camera
	detector edge.Detector
	proc     *edge.Processor
	sink     *display.Sink
	coord    *pipeline.Coordinator
	server   *web.Server

	// OnReady is called once Run has started every component.
	OnReady func()
}

// New validates cfg and creates an application. Environment overrides are
// applied by the caller through Config.LoadEnvConfig.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		config: cfg,
		logger: logger,
		clock:  clock.New(),
	}, nil
}

// Init builds every component. Call it after New and before Run.
func (a *App) Init() error {
	var err error

	a.camera, err = capture.New(a.config.Capture,
		capture.WithLogger(a.logger.With("component", "capture")),
	)
	if err != nil {
		return fmt.Errorf("capture: %w", err)
	}

	a.detector, err = edge.New(a.config.Edge, a.logger)
	if err != nil {
		return fmt.Errorf("edge: %w", err)
	}
	a.proc, err = edge.NewProcessor(a.detector, edge.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("edge: %w", err)
	}

	if a.config.Web.Enabled {
		a.server = web.NewServer(a.config.Web, a.logger)
	}

	surface, err := a.newSurface()
	if err != nil {
		return fmt.Errorf("display: %w", err)
	}
	a.sink = display.NewSink(surface, display.WithLogger(a.logger))

	a.coord, err = pipeline.New(a.camera, a.proc, a.sink,
		pipeline.WithConfig(a.config.Pipeline),
		pipeline.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	if a.server != nil {
		a.server.Attach(a.coord)
	}

	a.logger.Info("edgecam initialized",
		"capture", a.camera.Name(),
		"edge", a.proc.Name(),
		"display", surface.Name(),
		"mode", a.config.Pipeline.Mode,
		"web", a.config.Web.Enabled,
	)
	return nil
}

func (a *App) newSurface() (display.Surface, error) {
	switch a.config.Display.Surface {
	case SurfaceWeb:
		return a.server.Surface(), nil
	case SurfaceWindow:
		return display.NewWindowSurface(a.config.Display.Title)
	case SurfaceNone:
		return display.NewMemorySurface(), nil
	default:
		if a.server != nil {
			return a.server.Surface(), nil
		}
		if display.WindowAvailable {
			return display.NewWindowSurface(a.config.Display.Title)
		}
		return display.NewMemorySurface(), nil
	}
}

// Run starts the viewer, the pipeline and the statistics log, and blocks
// until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a.coord == nil {
		return errors.New("edgecam: Run called before Init")
	}

	g, gctx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error { return a.server.Run(gctx) })
	}

	if a.config.AutoStart {
		if err := a.coord.Start(gctx); err != nil {
			if a.server == nil {
				return fmt.Errorf("start pipeline: %w", err)
			}
			a.logger.Error("pipeline did not start; retry from the viewer", "error", err)
		}
	}

	if a.config.StatsInterval > 0 {
		g.Go(func() error {
			a.logStats(gctx, a.config.StatsInterval)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		return a.coord.Stop(stopCtx)
	})

	if a.OnReady != nil {
		a.OnReady()
	}
	return g.Wait()
}

// logStats logs the statistics report every interval while a session runs.
func (a *App) logStats(ctx context.Context, interval time.Duration) {
	ticker := a.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r, ok := a.coord.Stats()
			if !ok || !r.Running {
				continue
			}
			a.logger.Info("pipeline stats",
				"summary", r.String(),
				"processed", r.FramesProcessed,
				"dropped", r.FramesDropped,
				"skipped", r.FramesSkipped,
			)
		}
	}
}

// Shutdown stops the pipeline and releases the detector.
func (a *App) Shutdown() {
	if a.coord != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		if err := a.coord.Stop(ctx); err != nil {
			a.logger.Warn("pipeline stop failed", "error", err)
		}
		cancel()
	}
	if a.proc != nil {
		if err := a.proc.Close(); err != nil {
			a.logger.Warn("edge detector close failed", "error", err)
		}
	}
	a.logger.Info("edgecam stopped")
}

// Pipeline returns the coordinator, available after Init.
func (a *App) Pipeline() *pipeline.Coordinator { return a.coord }

// Camera returns the capture source, available after Init.
func (a *App) Camera() *capture.Camera { return a.camera }
