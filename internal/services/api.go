package services

import (
	"context"
	"net"
	"net/http"
	"os"

	"promptstudio/config"
	"promptstudio/internal/clients/speech"
	"promptstudio/internal/generation"
	"promptstudio/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

type Generator interface {
	Generate(ctx context.Context, req generation.Request) (generation.Result, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, req speech.Request) (*speech.Stream, error)
}

// ServiceStatus receives availability changes for the generate and speech
// backends.
type ServiceStatus interface {
	SetServing(service string, serving bool)
}

type Dependencies struct {
	Generator      Generator
	Speech         Synthesizer
	Hub            *Hub
	Metrics        *telemetry.Instruments
	MetricsHandler http.Handler
	Status         ServiceStatus
}

type Api struct {
	server    *fiber.App
	generator Generator
	speech    Synthesizer
	hub       *Hub
	metrics   *telemetry.Instruments
	status    ServiceStatus

	allowedOrigins string
	staticDir      string
	generatorCfg   config.GeneratorConfig
	defaultVoice   string
}

func NewApi(cfg config.Config, deps Dependencies) *Api {
	if cfg.Api.AllowedOrigins == "" {
		cfg.Api.AllowedOrigins = "*"
	}

	a := &Api{
		server: fiber.New(fiber.Config{
			BodyLimit:             cfg.Api.BodyLimitBytes,
			DisableStartupMessage: true,
		}),
		generator:      deps.Generator,
		speech:         deps.Speech,
		hub:            deps.Hub,
		metrics:        deps.Metrics,
		status:         deps.Status,
		allowedOrigins: cfg.Api.AllowedOrigins,
		staticDir:      cfg.Api.StaticDir,
		generatorCfg:   cfg.Generator,
		defaultVoice:   cfg.Speech.DefaultVoice,
	}

	allowCredentials := a.allowedOrigins != "*"

	a.server.Use(RequestLogger())
	a.server.Use(cors.New(cors.Config{
		AllowOrigins:     a.allowedOrigins,
		AllowCredentials: allowCredentials,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Content-Type,Authorization,Accept,Origin",
	}))

	a.addRoutes(deps.MetricsHandler)
	return a
}

// Serve runs the API on an existing listener.
func (a *Api) Serve(ln net.Listener) error {
	return a.server.Listener(ln)
}

func (a *Api) Shutdown(ctx context.Context) error {
	return a.server.ShutdownWithContext(ctx)
}

func (a *Api) setServing(service string, serving bool) {
	if a.status != nil {
		a.status.SetServing(service, serving)
	}
}

func (a *Api) addRoutes(metricsHandler http.Handler) {
	a.server.Add("GET", "/health", a.Health())
	a.server.Add("POST", "/generate", a.Generate())
	a.server.Add("POST", "/tts", a.Tts())

	if metricsHandler != nil {
		a.server.Get("/metrics", adaptor.HTTPHandler(metricsHandler))
	}

	// websocket connection
	if a.hub != nil {
		a.server.Use("/ws", a.WsUpgrade())
		a.server.Get("/ws", a.Notifications())
	}

	// generated artifacts, then the browser front-end
	if a.generatorCfg.OutputDir != "" {
		a.server.Static(a.generatorCfg.PublicPrefix, a.generatorCfg.OutputDir)
	}
	if info, err := os.Stat(a.staticDir); err == nil && info.IsDir() {
		a.server.Static("/", a.staticDir)
	}
}
