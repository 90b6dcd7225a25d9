package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"

	"promptstudio/utils"
)

type Request struct {
	Prompt string
	Steps  int
	Images int
	// OnOutput receives each stdout line of the worker as it is written.
	OnOutput func(line string)
}

type Result struct {
	Locators []string
	Missing  []string
}

func (r Result) Partial() bool { return len(r.Missing) > 0 }

func (r Result) Warning() string {
	if !r.Partial() {
		return ""
	}
	return "Some images failed to generate: " + strings.Join(r.Missing, ", ")
}

type Kind int

const (
	KindProcess Kind = iota + 1
	KindInvalidOutput
	KindArtifactsMissing
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindProcess:
		return "process"
	case KindInvalidOutput:
		return "invalid_output"
	case KindArtifactsMissing:
		return "artifacts_missing"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a terminal generation failure. Message is safe to show to the
// browser; Details carries the diagnostic payload for the kind.
type Error struct {
	Kind    Kind
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// WorkerUnavailable reports whether err means the worker could not be
// started at all, e.g. a missing executable.
func WorkerUnavailable(err error) bool {
	var genErr *Error
	if !errors.As(err, &genErr) || genErr.Kind != KindProcess || genErr.Err == nil {
		return false
	}
	var exitErr *exec.ExitError
	if errors.As(genErr.Err, &exitErr) {
		return false
	}
	return !errors.Is(genErr.Err, context.Canceled)
}

func processError(details string, err error) *Error {
	return &Error{Kind: KindProcess, Message: "Image generation failed", Details: details, Err: err}
}

func invalidOutputError(stdout string, err error) *Error {
	return &Error{Kind: KindInvalidOutput, Message: "Invalid response from image generation", Details: stdout, Err: err}
}

func missingError(missing []string) *Error {
	if missing == nil {
		missing = []string{}
	}
	return &Error{Kind: KindArtifactsMissing, Message: "Generated image files not found", Details: missing}
}

func timeoutError(stderr string, err error) *Error {
	return &Error{Kind: KindTimeout, Message: "Image generation timed out", Details: stderr, Err: err}
}

var (
	ErrNoResultLine = errors.New("no result line in worker output")
	ErrNotAList     = errors.New("result line is not a list of file names")
)

// SelectResultLine returns the last non-blank line of worker stdout. Earlier
// lines are never considered. When sentinel is set and prefixes that line it
// is stripped.
func SelectResultLine(stdout, sentinel string) string {
	lines := strings.Split(stdout, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if sentinel != "" && strings.HasPrefix(line, sentinel) {
			line = strings.TrimSpace(strings.TrimPrefix(line, sentinel))
		}
		return line
	}
	return ""
}

// ParseFileNames decodes a result line as a JSON array of strings.
func ParseFileNames(line string) ([]string, error) {
	if line == "" {
		return nil, ErrNoResultLine
	}
	var raw any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("decode result line: %w", err)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, ErrNotAList
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, ErrNotAList
		}
		names = append(names, name)
	}
	return names, nil
}

// Reconcile splits declared names into browser locators for files present in
// outputDir (declared order kept) and the names that are missing.
func Reconcile(outputDir, publicPrefix string, names []string) (locators, missing []string) {
	prefix := strings.TrimRight(publicPrefix, "/")
	for _, name := range names {
		path, err := utils.ArtifactPath(outputDir, name)
		if err != nil || !utils.RegularFileExists(path) {
			missing = append(missing, name)
			continue
		}
		locators = append(locators, prefix+"/"+url.PathEscape(name))
	}
	return locators, missing
}
