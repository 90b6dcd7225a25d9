package mediator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"promptstudio/config"
	"promptstudio/internal/clients/speech"
	"promptstudio/internal/dependencies"
	"promptstudio/internal/generation"
	"promptstudio/internal/services"
	"promptstudio/internal/telemetry"
	"promptstudio/utils"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

type App struct {
	api       *services.Api
	hub       *services.Hub
	health    *dependencies.Health
	telemetry *telemetry.Telemetry
	// settings
	Config config.Config
}

func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	if err := utils.EnsureDir(cfg.Generator.OutputDir); err != nil {
		return nil, fmt.Errorf("error creating output dir: %w", err)
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("error setting up telemetry: %w", err)
	}
	metrics, err := telemetry.NewInstruments(nil)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("error creating instruments: %w", err)
	}

	orchestrator, err := generation.NewOrchestrator(cfg.Generator)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("error creating newapp: %w", err)
	}

	app := &App{
		hub:       services.NewHub(),
		telemetry: tel,
		Config:    cfg,
	}
	deps := services.Dependencies{
		Generator:      orchestrator,
		Speech:         speech.NewClient(cfg.Speech),
		Hub:            app.hub,
		Metrics:        metrics,
		MetricsHandler: tel.MetricsHandler,
	}
	if cfg.Health.GrpcPort != "" {
		app.health = dependencies.NewHealth()
		deps.Status = app.health
	}
	app.api = services.NewApi(cfg, deps)
	return app, nil
}

// Start binds every listener up front, then serves until ctx is cancelled
// or a listener fails, and shuts everything down.
func (a *App) Start(ctx context.Context) error {
	httpLn, err := net.Listen("tcp", fmt.Sprint(":", a.Config.Api.Port))
	if err != nil {
		_ = a.Shutdown()
		return fmt.Errorf("error listening for http: %w", err)
	}
	var healthLn net.Listener
	if a.health != nil {
		healthLn, err = net.Listen("tcp", fmt.Sprint(":", a.Config.Health.GrpcPort))
		if err != nil {
			_ = httpLn.Close()
			_ = a.Shutdown()
			return fmt.Errorf("error listening for health checks: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "component", "mediator", "addr", httpLn.Addr().String())
		if err := a.api.Serve(httpLn); err != nil && !errors.Is(err, net.ErrClosed) {
			return err
		}
		return nil
	})
	if healthLn != nil {
		g.Go(func() error { return a.health.Serve(healthLn) })
	}
	g.Go(func() error {
		<-gctx.Done()
		err := a.Shutdown()
		// unblocks Serve if it had not started accepting when shutdown ran
		_ = httpLn.Close()
		return err
	})

	return g.Wait()
}

func (a *App) Shutdown() error {
	log.Info("shutting down", "component", "mediator")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.health != nil {
		a.health.Close()
	}
	a.hub.Shutdown()

	var errs []error
	if err := a.api.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	return errors.Join(errs...)
}
