package generation

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectResultLine(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		sentinel string
		want     string
	}{
		{"last_line", "a\nb\n[\"x.png\"]", "", `["x.png"]`},
		{"skips_trailing_blank", "log\n[\"x.png\"]\n\n  \n", "", `["x.png"]`},
		{"crlf", "log\r\n[\"x.png\"]\r\n", "", `["x.png"]`},
		{"empty", "", "", ""},
		{"only_blank", "\n\n", "", ""},
		{"sentinel_stripped", "log\n@@RESULT@@ [\"a.png\"]\n", "@@RESULT@@", `["a.png"]`},
		{"last_sentinel", "@@RESULT@@ [\"a.png\"]\n@@RESULT@@ [\"b.png\"]\n", "@@RESULT@@", `["b.png"]`},
		{"earlier_sentinel_ignored", "@@RESULT@@ warming up\n[\"a.png\"]\n", "@@RESULT@@", `["a.png"]`},
		{"earlier_sentinel_result_ignored", "@@RESULT@@ [\"a.png\"]\n[\"b.png\"]\n", "@@RESULT@@", `["b.png"]`},
		{"sentinel_before_trailing_log", "@@RESULT@@ [\"a.png\"]\ndone\n", "@@RESULT@@", "done"},
		{"sentinel_absent_falls_back", "log\n[\"a.png\"]\n", "@@RESULT@@", `["a.png"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectResultLine(tt.stdout, tt.sentinel))
		})
	}
}

func TestParseFileNames(t *testing.T) {
	names, err := ParseFileNames(`["a.png", "b c.png"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b c.png"}, names)

	names, err = ParseFileNames(`[]`)
	require.NoError(t, err)
	assert.Empty(t, names)

	_, err = ParseFileNames("")
	assert.ErrorIs(t, err, ErrNoResultLine)

	for _, line := range []string{`null`, `"a.png"`, `{"a":1}`, `[1,2]`} {
		_, err = ParseFileNames(line)
		assert.ErrorIs(t, err, ErrNotAList, line)
	}

	_, err = ParseFileNames(`["a.png"`)
	assert.Error(t, err)
}

func TestReconcile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a b.png"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "c.png"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.png"), 0o755))

	locators, missing := Reconcile(dir, "/generated/", []string{"c.png", "folder.png", "a b.png", "zz.png"})
	assert.Equal(t, []string{"/generated/c.png", "/generated/a%20b.png"}, locators)
	assert.Equal(t, []string{"folder.png", "zz.png"}, missing)
}

func TestOutputCapture(t *testing.T) {
	t.Run("splits_lines_across_writes", func(t *testing.T) {
		var lines []string
		c := newOutputCapture(1024, func(l string) { lines = append(lines, l) })
		_, _ = c.Write([]byte("load"))
		_, _ = c.Write([]byte("ing\nstep 1\nst"))
		_, _ = c.Write([]byte("ep 2\r\n[\"a.png\"]"))
		c.Flush()
		assert.Equal(t, []string{"loading", "step 1", "step 2", `["a.png"]`}, lines)
		assert.Equal(t, "loading\nstep 1\nstep 2\r\n[\"a.png\"]", c.String())
		assert.False(t, c.Truncated())
	})

	t.Run("keeps_tail", func(t *testing.T) {
		c := newOutputCapture(8, nil)
		_, _ = c.Write([]byte("0123456789"))
		_, _ = c.Write([]byte("ab"))
		assert.True(t, c.Truncated())
		assert.Equal(t, "...[truncated 4 bytes]\n456789ab", c.String())
		assert.True(t, strings.HasSuffix(c.String(), "ab"))
	})

	t.Run("small_writes_over_limit", func(t *testing.T) {
		c := newOutputCapture(4, nil)
		for _, s := range []string{"ab", "cd", "ef"} {
			_, _ = c.Write([]byte(s))
		}
		assert.Equal(t, "...[truncated 2 bytes]\ncdef", c.String())
	})
}

func TestWorkerUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"untyped", errors.New("boom"), false},
		{"not_found", processError("exec: not found", exec.ErrNotFound), true},
		{"exit", processError("stderr", &exec.ExitError{}), false},
		{"cancelled_wait", processError("context canceled", context.Canceled), false},
		{"timeout", timeoutError("", context.DeadlineExceeded), false},
		{"missing", missingError([]string{"a.png"}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WorkerUnavailable(tt.err))
		})
	}
}
