package generation

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"

	"promptstudio/config"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Orchestrator runs the external image worker once per request and turns its
// output into a Result.
type Orchestrator struct {
	command      []string
	workDir      string
	outputDir    string
	publicPrefix string
	sentinel     string
	maxOutput    int
	timeout      time.Duration
	waitDelay    time.Duration

	slots  *semaphore.Weighted
	logger *log.Logger
	tracer trace.Tracer
}

func NewOrchestrator(cfg config.GeneratorConfig) (*Orchestrator, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse generator command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("generator command empty")
	}

	slots := cfg.MaxConcurrent
	if slots < 1 {
		slots = 1
	}

	return &Orchestrator{
		command:      args,
		workDir:      cfg.WorkDir,
		outputDir:    cfg.OutputDir,
		publicPrefix: cfg.PublicPrefix,
		sentinel:     cfg.ResultSentinel,
		maxOutput:    cfg.MaxOutputBytes,
		timeout:      cfg.Timeout(),
		waitDelay:    5 * time.Second,
		slots:        semaphore.NewWeighted(int64(slots)),
		logger:       log.With("component", "generator"),
		tracer:       otel.Tracer("promptstudio/generation"),
	}, nil
}

type processOutcome struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

func (o *Orchestrator) Generate(ctx context.Context, req Request) (Result, error) {
	ctx, span := o.tracer.Start(ctx, "generation.Generate", trace.WithAttributes(
		attribute.Int("prompt.length", len(req.Prompt)),
		attribute.Int("steps", req.Steps),
		attribute.Int("images", req.Images),
	))
	defer span.End()

	result, err := o.generate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var genErr *Error
		if errors.As(err, &genErr) {
			span.SetAttributes(attribute.String("outcome", genErr.Kind.String()))
		}
		return Result{}, err
	}
	outcome := "success"
	if result.Partial() {
		outcome = "partial"
	}
	span.SetAttributes(attribute.String("outcome", outcome), attribute.Int("found", len(result.Locators)))
	return result, nil
}

func (o *Orchestrator) generate(ctx context.Context, req Request) (Result, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	if err := o.slots.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, timeoutError("", fmt.Errorf("waiting for a free worker slot: %w", err))
		}
		return Result{}, processError(err.Error(), fmt.Errorf("waiting for a free worker slot: %w", err))
	}
	defer o.slots.Release(1)

	out := o.run(ctx, req)
	if out.err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.logger.Error("worker timed out", "timeout", o.timeout)
			return Result{}, timeoutError(out.stderr, ctx.Err())
		}
		o.logger.Error("worker failed", "exitCode", out.exitCode, "err", out.err, "stderr", out.stderr)
		var exitErr *exec.ExitError
		if errors.As(out.err, &exitErr) {
			return Result{}, processError(out.stderr, out.err)
		}
		// The worker never ran, so there is no stderr to report.
		return Result{}, processError(out.err.Error(), out.err)
	}

	line := SelectResultLine(out.stdout, o.sentinel)
	o.logger.Debug("worker result line", "line", line)

	names, err := ParseFileNames(line)
	if err != nil {
		o.logger.Error("failed to parse worker result", "line", line, "err", err)
		return Result{}, invalidOutputError(out.stdout, err)
	}

	locators, missing := Reconcile(o.outputDir, o.publicPrefix, names)
	if locators == nil {
		locators = []string{}
	}
	if len(locators) == 0 && len(missing) > 0 {
		o.logger.Error("generated files not found", "missing", missing)
		return Result{}, missingError(missing)
	}
	if len(missing) > 0 {
		o.logger.Warn("some generated files not found", "missing", missing, "found", len(locators))
	} else {
		o.logger.Info("images generated", "count", len(locators))
	}

	return Result{Locators: locators, Missing: missing}, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) processOutcome {
	args := append([]string{}, o.command[1:]...)
	args = append(args, req.Prompt, strconv.Itoa(req.Steps), strconv.Itoa(req.Images))

	cmd := exec.CommandContext(ctx, o.command[0], args...)
	cmd.Dir = o.workDir
	cmd.WaitDelay = o.waitDelay

	stdout := newOutputCapture(o.maxOutput, func(line string) {
		o.logger.Debug("worker stdout", "line", line)
		if req.OnOutput != nil {
			req.OnOutput(line)
		}
	})
	stderr := newOutputCapture(o.maxOutput, func(line string) {
		o.logger.Debug("worker stderr", "line", line)
	})
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	o.logger.Info("starting worker", "steps", req.Steps, "images", req.Images, "prompt", req.Prompt)
	start := time.Now()
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	exitCode := -1
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	o.logger.Info("worker exited", "exitCode", exitCode, "dur", time.Since(start).String(), "stdoutTruncated", stdout.Truncated())

	return processOutcome{
		stdout:   stdout.String(),
		stderr:   stderr.String(),
		exitCode: exitCode,
		err:      err,
	}
}
