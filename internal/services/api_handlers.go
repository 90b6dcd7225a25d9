package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"promptstudio/internal/clients/speech"
	"promptstudio/internal/dependencies"
	"promptstudio/internal/generation"
	"promptstudio/types"
	"promptstudio/utils"

	"github.com/gofiber/fiber/v2"
)

const streamChunkSize = 32 << 10

func (a *Api) Health() fiber.Handler {
	return func(ctx *fiber.Ctx) error {

		return ctx.Status(fiber.StatusOK).JSON(types.HealthResponse{
			Status:    fiber.StatusOK,
			TimeStamp: time.Now().Unix(),
		})
	}
}

func (a *Api) Generate() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		logger := HttpLogger("generate", ctx)

		var requestBody types.GenerateRequest
		if err := ctx.BodyParser(&requestBody); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "invalid body",
				Details: err.Error(),
			})
		}

		if strings.TrimSpace(requestBody.Prompt) == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error: "No prompt provided",
			})
		}

		steps := requestBody.Steps.Or(a.generatorCfg.DefaultSteps)
		if steps < 1 || steps > a.generatorCfg.MaxSteps {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "Invalid steps",
				Details: fmt.Sprintf("steps must be between 1 and %d", a.generatorCfg.MaxSteps),
			})
		}
		images := requestBody.NumImages.Or(a.generatorCfg.DefaultImageCount)
		if images < 1 || images > a.generatorCfg.MaxImages {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "Invalid numImages",
				Details: fmt.Sprintf("numImages must be between 1 and %d", a.generatorCfg.MaxImages),
			})
		}

		jobID := utils.NewJobID()
		clientID := strings.TrimSpace(requestBody.ClientID)
		logger.Info("generating images", "jobId", jobID, "images", images, "steps", steps, "prompt", requestBody.Prompt)

		req := generation.Request{
			Prompt: requestBody.Prompt,
			Steps:  steps,
			Images: images,
		}
		if clientID != "" && a.hub != nil {
			req.OnOutput = func(line string) {
				a.hub.SendTo(clientID, WSEvent{Type: EventGenerateProgress, JobID: jobID, Line: line})
			}
		}

		start := time.Now()
		result, err := a.generator.Generate(ctx.UserContext(), req)
		if err != nil {
			status, payload, outcome := generationFailure(err)
			a.setServing(dependencies.GenerateService, !generation.WorkerUnavailable(err))
			a.metrics.RecordGeneration(ctx.UserContext(), outcome, time.Since(start))
			a.notify(clientID, WSEvent{Type: EventGenerateFailed, JobID: jobID, Message: payload.Error})
			logger.Error("image generation failed", "jobId", jobID, "status", status, "err", err)
			return ctx.Status(status).JSON(payload)
		}

		response := types.GenerateResponse{ImageUrls: result.Locators}
		status, outcome := fiber.StatusOK, "success"
		if result.Partial() {
			response.Warning = result.Warning()
			status, outcome = fiber.StatusPartialContent, "partial"
		}

		a.setServing(dependencies.GenerateService, true)
		a.metrics.RecordGeneration(ctx.UserContext(), outcome, time.Since(start))
		a.notify(clientID, WSEvent{
			Type:      EventGenerateCompleted,
			JobID:     jobID,
			ImageUrls: response.ImageUrls,
			Message:   response.Warning,
		})
		return ctx.Status(status).JSON(response)
	}
}

func generationFailure(err error) (int, types.ErrorResponse, string) {
	var genErr *generation.Error
	if !errors.As(err, &genErr) {
		return fiber.StatusInternalServerError, types.ErrorResponse{
			Error:   "Image generation failed",
			Details: err.Error(),
		}, "error"
	}

	status := fiber.StatusInternalServerError
	if genErr.Kind == generation.KindTimeout {
		status = fiber.StatusGatewayTimeout
	}
	return status, types.ErrorResponse{Error: genErr.Message, Details: genErr.Details}, genErr.Kind.String()
}

func (a *Api) notify(clientID string, event WSEvent) {
	if clientID == "" || a.hub == nil {
		return
	}
	a.hub.SendTo(clientID, event)
}

func (a *Api) Tts() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		logger := HttpLogger("tts", ctx)

		var requestBody types.TtsRequest
		if err := ctx.BodyParser(&requestBody); err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error:   "invalid body",
				Details: err.Error(),
			})
		}

		if strings.TrimSpace(requestBody.Text) == "" {
			return ctx.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{
				Error: "No text provided",
			})
		}
		voice := strings.TrimSpace(requestBody.Voice)
		if voice == "" {
			voice = a.defaultVoice
		}

		// The stream outlives this handler, so it must not borrow the request context.
		stream, err := a.speech.Synthesize(context.Background(), speech.Request{Text: requestBody.Text, Voice: voice})
		if err != nil {
			status, outcome := fiber.StatusInternalServerError, "error"
			var speechErr *speech.Error
			if errors.As(err, &speechErr) {
				outcome = speechErr.Kind.String()
				if speechErr.Kind == speech.KindTimeout {
					status = fiber.StatusGatewayTimeout
				}
				// an error status still proves the service is up
				a.setServing(dependencies.SpeechService, speechErr.Kind != speech.KindUnreachable)
			}
			a.metrics.RecordSpeech(context.Background(), outcome, 0)
			logger.Error("tts proxy error", "err", err)
			return ctx.Status(status).JSON(types.ErrorResponse{
				Error:   "TTS generation failed",
				Details: err.Error(),
			})
		}

		a.setServing(dependencies.SpeechService, true)
		ctx.Set(fiber.HeaderContentType, stream.ContentType)
		ctx.Set(fiber.HeaderContentDisposition, stream.ContentDisposition)
		ctx.Status(fiber.StatusOK)

		metrics := a.metrics
		ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer stream.Body.Close()

			n, err := relay(w, stream.Body)
			outcome := "success"
			if err != nil {
				outcome = "aborted"
				logger.Warn("tts stream interrupted", "bytes", n, "err", err)
			} else {
				logger.Debug("tts stream finished", "bytes", n, "contentType", stream.ContentType)
			}
			metrics.RecordSpeech(context.Background(), outcome, n)
		})
		return nil
	}
}

// relay copies src to w one chunk at a time, flushing after each so the
// caller sees audio as soon as the synthesis service produces it. Flush blocks
// on the client connection, which keeps reads paced to the caller.
func relay(w *bufio.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, streamChunkSize)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return total, err
			}
			if err := w.Flush(); err != nil {
				return total, err
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}
