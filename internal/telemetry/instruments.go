package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments records request outcomes for both endpoints. A nil
// *Instruments is valid and records nothing.
type Instruments struct {
	generations        metric.Int64Counter
	generationDuration metric.Float64Histogram
	speech             metric.Int64Counter
	speechBytes        metric.Int64Counter
}

func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter("promptstudio")
	}

	generations, err := meter.Int64Counter("promptstudio.generate.requests",
		metric.WithDescription("Image generation requests by outcome"))
	if err != nil {
		return nil, err
	}
	generationDuration, err := meter.Float64Histogram("promptstudio.generate.duration",
		metric.WithDescription("Image worker wall time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	speech, err := meter.Int64Counter("promptstudio.tts.requests",
		metric.WithDescription("Speech proxy requests by outcome"))
	if err != nil {
		return nil, err
	}
	speechBytes, err := meter.Int64Counter("promptstudio.tts.bytes",
		metric.WithDescription("Audio bytes relayed to callers"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		generations:        generations,
		generationDuration: generationDuration,
		speech:             speech,
		speechBytes:        speechBytes,
	}, nil
}

func (i *Instruments) RecordGeneration(ctx context.Context, outcome string, dur time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	i.generations.Add(ctx, 1, attrs)
	i.generationDuration.Record(ctx, dur.Seconds(), attrs)
}

func (i *Instruments) RecordSpeech(ctx context.Context, outcome string, bytes int64) {
	if i == nil {
		return
	}
	i.speech.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if bytes > 0 {
		i.speechBytes.Add(ctx, bytes)
	}
}
