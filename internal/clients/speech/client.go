package speech

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"promptstudio/config"
	"promptstudio/internal/clients/transport"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrEmptyText = errors.New("no text provided")

type Kind int

const (
	KindUnreachable Kind = iota + 1
	KindStatus
	KindNoBody
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindUnreachable:
		return "unreachable"
	case KindStatus:
		return "status"
	case KindNoBody:
		return "no_body"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

type Request struct {
	Text  string `json:"text"`
	Voice string `json:"voice"`
}

// Stream is a successful synthesis response. Body must be closed.
type Stream struct {
	ContentType        string
	ContentDisposition string
	Body               io.ReadCloser
}

type Client struct {
	httpClient *http.Client
	endpoint   string
	timeout    time.Duration

	defaultVoice       string
	defaultContentType string
	defaultDisposition string

	logger *log.Logger
	tracer trace.Tracer
}

func NewClient(cfg config.SpeechConfig) *Client {
	return &Client{
		// No client timeout: it would also cut off long audio bodies.
		httpClient:         &http.Client{},
		endpoint:           cfg.Endpoint,
		timeout:            cfg.Timeout(),
		defaultVoice:       cfg.DefaultVoice,
		defaultContentType: cfg.DefaultContentType,
		defaultDisposition: cfg.DefaultDisposition,
		logger:             log.With("component", "speech"),
		tracer:             otel.Tracer("promptstudio/speech"),
	}
}

// Synthesize forwards one request to the synthesis service. The returned
// stream has already produced its first byte; the deadline keeps running
// until Body is closed.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Stream, error) {
	if req.Text == "" {
		return nil, ErrEmptyText
	}
	if req.Voice == "" {
		req.Voice = c.defaultVoice
	}

	ctx, span := c.tracer.Start(ctx, "speech.Synthesize", trace.WithAttributes(
		attribute.Int("text.length", len(req.Text)),
		attribute.String("voice", req.Voice),
	))

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}

	stream, err := c.open(ctx, req)
	if err != nil {
		cancel()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	stream.Body = &streamBody{ReadCloser: stream.Body, done: func() {
		cancel()
		span.End()
	}}
	return stream, nil
}

func (c *Client) open(ctx context.Context, req Request) (*Stream, error) {
	c.logger.Info("tts request", "voice", req.Voice, "text", preview(req.Text, 50))

	resp, err := transport.PostJSON(c.httpClient, ctx, c.endpoint, req, nil)
	if err != nil {
		var statusErr *transport.StatusError
		switch {
		case errors.As(err, &statusErr):
			c.logger.Error("tts server error", "status", statusErr.Status, "body", statusErr.Body)
			return nil, &Error{Kind: KindStatus, Message: "TTS server error: " + statusErr.Body, Err: err}
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &Error{Kind: KindTimeout, Message: "TTS server timed out", Err: err}
		default:
			c.logger.Error("tts server unreachable", "err", err)
			return nil, &Error{Kind: KindUnreachable, Message: fmt.Sprintf("TTS server unreachable: %v", err), Err: err}
		}
	}

	body := bufio.NewReaderSize(resp.Body, 32<<10)
	if _, err := body.Peek(1); err != nil {
		_ = resp.Body.Close()
		switch {
		case errors.Is(err, io.EOF):
			return nil, &Error{Kind: KindNoBody, Message: "No response body from TTS server", Err: err}
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &Error{Kind: KindTimeout, Message: "TTS server timed out", Err: err}
		default:
			return nil, &Error{Kind: KindUnreachable, Message: fmt.Sprintf("TTS server read failed: %v", err), Err: err}
		}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = c.defaultContentType
	}
	disposition := resp.Header.Get("Content-Disposition")
	if disposition == "" {
		disposition = c.defaultDisposition
	}

	return &Stream{
		ContentType:        contentType,
		ContentDisposition: disposition,
		Body:               readCloser{Reader: body, Closer: resp.Body},
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

type streamBody struct {
	io.ReadCloser
	done   func()
	closed bool
}

func (s *streamBody) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.ReadCloser.Close()
	s.done()
	return err
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
