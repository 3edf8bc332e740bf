package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var captureMu sync.Mutex

// captureOutput runs fn with command output redirected to a buffer.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	captureMu.Lock()
	defer captureMu.Unlock()

	prev := stdout
	var buf bytes.Buffer
	stdout = &buf
	defer func() { stdout = prev }()

	fn()
	return buf.String()
}

// withJSON enables JSON output for the duration of the test.
func withJSON(t *testing.T, on bool) {
	t.Helper()
	prev := jsonOutput
	jsonOutput = on
	t.Cleanup(func() { jsonOutput = prev })
}

// withProject points commands at root for the duration of the test.
func withProject(t *testing.T, root string) {
	t.Helper()
	prev := resolvedProjectPath
	resolvedProjectPath = root
	t.Cleanup(func() { resolvedProjectPath = prev })
}

// withStdin feeds answers to confirmation prompts.
func withStdin(t *testing.T, input string, interactive bool) {
	t.Helper()
	prevIn, prevTTY := stdin, isInteractive
	stdin = io.Reader(strings.NewReader(input))
	isInteractive = func() bool { return interactive }
	t.Cleanup(func() {
		stdin = prevIn
		isInteractive = prevTTY
	})
}

type envelope struct {
	OK       bool            `json:"ok"`
	Data     json.RawMessage `json:"data"`
	Error    *ErrorInfo      `json:"error"`
	Warnings []Warning       `json:"warnings"`
	Meta     *Meta           `json:"meta"`
}

func parseEnvelope(t *testing.T, out string) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(out), &env), "output: %s", out)
	return env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), "data: %s", env.Data)
	return v
}
