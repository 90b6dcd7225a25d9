package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Api       ApiConfig       `yaml:"api"`
	Generator GeneratorConfig `yaml:"generator"`
	Speech    SpeechConfig    `yaml:"speech"`
	Health    HealthConfig    `yaml:"health"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ApiConfig struct {
	Port           string `yaml:"port"`
	AllowedOrigins string `yaml:"allowedOrigins"`
	// StaticDir holds the browser front-end. Skipped when it does not exist.
	StaticDir      string `yaml:"staticDir"`
	BodyLimitBytes int    `yaml:"bodyLimitBytes"`
}

type GeneratorConfig struct {
	// Command is split with shell rules, e.g. "python generate.py".
	Command           string `yaml:"command"`
	WorkDir           string `yaml:"workDir"`
	OutputDir         string `yaml:"outputDir"`
	PublicPrefix      string `yaml:"publicPrefix"`
	ResultSentinel    string `yaml:"resultSentinel"`
	DefaultSteps      int    `yaml:"defaultSteps"`
	DefaultImageCount int    `yaml:"defaultImageCount"`
	MaxSteps          int    `yaml:"maxSteps"`
	MaxImages         int    `yaml:"maxImages"`
	MaxConcurrent     int    `yaml:"maxConcurrent"`
	MaxOutputBytes    int    `yaml:"maxOutputBytes"`
	TimeoutMs         int    `yaml:"timeoutMs"`
}

type SpeechConfig struct {
	Endpoint           string `yaml:"endpoint"`
	DefaultVoice       string `yaml:"defaultVoice"`
	DefaultContentType string `yaml:"defaultContentType"`
	DefaultDisposition string `yaml:"defaultDisposition"`
	TimeoutMs          int    `yaml:"timeoutMs"`
}

type HealthConfig struct {
	// GrpcPort enables the grpc.health.v1 endpoint when set.
	GrpcPort string `yaml:"grpcPort"`
}

type TelemetryConfig struct {
	ServiceName  string `yaml:"serviceName"`
	Environment  string `yaml:"environment"`
	OtlpEndpoint string `yaml:"otlpEndpoint"`
	OtlpInsecure bool   `yaml:"otlpInsecure"`
	StdoutTraces bool   `yaml:"stdoutTraces"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	DefaultVoice       = "vi-VN-HoaiMyNeural"
	DefaultContentType = "audio/mpeg"
	DefaultDisposition = "attachment; filename=speech.mp3"
)

// ApplyDefaults fills every zero value with the documented default.
func (c *Config) ApplyDefaults() {
	if c.Api.Port == "" {
		c.Api.Port = "3000"
	}
	if c.Api.AllowedOrigins == "" {
		c.Api.AllowedOrigins = "*"
	}
	if c.Api.StaticDir == "" {
		c.Api.StaticDir = "public"
	}
	if c.Api.BodyLimitBytes <= 0 {
		c.Api.BodyLimitBytes = 1 << 20
	}

	g := &c.Generator
	if strings.TrimSpace(g.Command) == "" {
		g.Command = "python generate.py"
	}
	if g.WorkDir == "" {
		g.WorkDir = "."
	}
	if g.OutputDir == "" {
		g.OutputDir = "public/generated"
	}
	if g.PublicPrefix == "" {
		g.PublicPrefix = "/generated"
	}
	g.PublicPrefix = "/" + strings.Trim(g.PublicPrefix, "/")
	if g.DefaultSteps == 0 {
		g.DefaultSteps = 20
	}
	if g.DefaultImageCount == 0 {
		g.DefaultImageCount = 4
	}
	if g.MaxSteps == 0 {
		g.MaxSteps = 150
	}
	if g.MaxImages == 0 {
		g.MaxImages = 16
	}
	if g.MaxConcurrent == 0 {
		g.MaxConcurrent = 1
	}
	if g.MaxOutputBytes == 0 {
		g.MaxOutputBytes = 1 << 20
	}
	if g.TimeoutMs == 0 {
		g.TimeoutMs = int((10 * time.Minute).Milliseconds())
	}

	s := &c.Speech
	if s.Endpoint == "" {
		s.Endpoint = "http://localhost:5001/tts"
	}
	if s.DefaultVoice == "" {
		s.DefaultVoice = DefaultVoice
	}
	if s.DefaultContentType == "" {
		s.DefaultContentType = DefaultContentType
	}
	if s.DefaultDisposition == "" {
		s.DefaultDisposition = DefaultDisposition
	}
	if s.TimeoutMs == 0 {
		s.TimeoutMs = int((2 * time.Minute).Milliseconds())
	}

	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "promptstudio"
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c Config) Validate() error {
	var errs []error
	g := c.Generator
	if strings.TrimSpace(g.Command) == "" {
		errs = append(errs, errors.New("generator.command is empty"))
	}
	if g.DefaultSteps < 1 {
		errs = append(errs, fmt.Errorf("generator.defaultSteps must be > 0, got %d", g.DefaultSteps))
	}
	if g.DefaultImageCount < 1 {
		errs = append(errs, fmt.Errorf("generator.defaultImageCount must be > 0, got %d", g.DefaultImageCount))
	}
	if g.DefaultSteps > g.MaxSteps {
		errs = append(errs, fmt.Errorf("generator.defaultSteps %d exceeds maxSteps %d", g.DefaultSteps, g.MaxSteps))
	}
	if g.DefaultImageCount > g.MaxImages {
		errs = append(errs, fmt.Errorf("generator.defaultImageCount %d exceeds maxImages %d", g.DefaultImageCount, g.MaxImages))
	}
	if g.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("generator.maxConcurrent must be > 0, got %d", g.MaxConcurrent))
	}
	if g.MaxOutputBytes < 1 {
		errs = append(errs, fmt.Errorf("generator.maxOutputBytes must be > 0, got %d", g.MaxOutputBytes))
	}
	if g.TimeoutMs < 0 || c.Speech.TimeoutMs < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if !strings.HasPrefix(c.Speech.Endpoint, "http://") && !strings.HasPrefix(c.Speech.Endpoint, "https://") {
		errs = append(errs, fmt.Errorf("speech.endpoint must be an http(s) url, got %q", c.Speech.Endpoint))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text, json or logfmt, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (g GeneratorConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

func (s SpeechConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}
