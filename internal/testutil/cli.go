package testutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// The acat binary is built once per test process.
var (
	buildOnce sync.Once
	binPath   string
	binErr    error
)

// CLIResult is a parsed JSON envelope from one acat invocation.
type CLIResult struct {
	OK       bool                   `json:"ok"`
	Data     map[string]interface{} `json:"data,omitempty"`
	Error    *CLIError              `json:"error,omitempty"`
	Warnings []CLIWarning           `json:"warnings,omitempty"`
	Meta     *CLIMeta               `json:"meta,omitempty"`

	Stdout   string `json:"-"`
	ExitCode int    `json:"-"`
}

// CLIError is the envelope's error object.
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
}

// CLIWarning is one envelope warning, usually a diagnostic.
type CLIWarning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

type CLIMeta struct {
	Count          int    `json:"count,omitempty"`
	CatalogVersion uint64 `json:"catalog_version,omitempty"`
	ElapsedMs      int64  `json:"elapsed_ms,omitempty"`
}

// BuildCLI compiles ./cmd/acat into a temp directory and returns the
// binary's path. Later calls reuse the first build.
func BuildCLI(t *testing.T) string {
	t.Helper()
	buildOnce.Do(func() {
		root, err := moduleRoot()
		if err != nil {
			binErr = err
			return
		}
		dir, err := os.MkdirTemp("", "acat-cli-*")
		if err != nil {
			binErr = err
			return
		}
		name := "acat"
		if runtime.GOOS == "windows" {
			name += ".exe"
		}
		out := filepath.Join(dir, name)
		cmd := exec.Command("go", "build", "-o", out, "./cmd/acat")
		cmd.Dir = root
		if output, err := cmd.CombinedOutput(); err != nil {
			binErr = fmt.Errorf("go build: %w\n%s", err, output)
			return
		}
		binPath = out
	})
	if binErr != nil {
		t.Fatalf("failed to build acat: %v", binErr)
	}
	return binPath
}

func moduleRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("go.mod not found")
		}
		dir = parent
	}
}

// RunCLI runs acat against the project with --json and an empty global
// config, and parses the envelope from stdout.
func (p *TestProject) RunCLI(args ...string) *CLIResult {
	p.t.Helper()
	return p.run("", args)
}

// RunCLIWithStdin is RunCLI with stdin attached.
func (p *TestProject) RunCLIWithStdin(stdin string, args ...string) *CLIResult {
	p.t.Helper()
	return p.run(stdin, args)
}

func (p *TestProject) run(stdin string, args []string) *CLIResult {
	p.t.Helper()
	bin := BuildCLI(p.t)

	globalConfig := filepath.Join(p.t.TempDir(), "config.toml")
	if err := os.WriteFile(globalConfig, nil, 0o644); err != nil {
		p.t.Fatalf("write global config: %v", err)
	}

	cmd := exec.Command(bin, append([]string{"--project", p.Path, "--config", globalConfig, "--json"}, args...)...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	// Logs go to stderr; stdout carries only the envelope.
	stdout, err := cmd.Output()

	res := &CLIResult{Stdout: string(stdout)}
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		res.ExitCode = -1
	}

	if err := json.Unmarshal(stdout, res); err != nil {
		res.OK = false
		res.Error = &CLIError{
			Code:    "PARSE_ERROR",
			Message: "unparseable output: " + err.Error(),
			Details: map[string]interface{}{"raw": res.Stdout},
		}
	}
	return res
}

// MustSucceed fails the test unless the envelope reports ok.
func (r *CLIResult) MustSucceed(t *testing.T) *CLIResult {
	t.Helper()
	if r.OK {
		return r
	}
	msg := "no error object"
	if r.Error != nil {
		msg = r.Error.Code + ": " + r.Error.Message
	}
	t.Fatalf("command failed (exit %d): %s\nstdout: %s", r.ExitCode, msg, r.Stdout)
	return r
}

// MustFail fails the test unless the command failed with code.
func (r *CLIResult) MustFail(t *testing.T, code string) *CLIResult {
	t.Helper()
	switch {
	case r.OK:
		t.Fatalf("expected failure %s, command succeeded\nstdout: %s", code, r.Stdout)
	case r.Error == nil:
		t.Fatalf("expected failure %s, got no error object\nstdout: %s", code, r.Stdout)
	case r.Error.Code != code:
		t.Fatalf("expected failure %s, got %s: %s", code, r.Error.Code, r.Error.Message)
	case r.ExitCode == 0:
		t.Fatalf("expected non-zero exit for %s", code)
	}
	return r
}

// AssertHasWarning checks for a warning with code.
func (r *CLIResult) AssertHasWarning(t *testing.T, code string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Code == code {
			return
		}
	}
	t.Errorf("no warning %s in %+v", code, r.Warnings)
}

// DataList returns Data[key] as a list, or nil.
func (r *CLIResult) DataList(key string) []interface{} {
	list, _ := r.Data[key].([]interface{})
	return list
}

// DataString returns Data[key] as a string, or "".
func (r *CLIResult) DataString(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

// DataNumber returns Data[key] as a number, or 0.
func (r *CLIResult) DataNumber(key string) float64 {
	n, _ := r.Data[key].(float64)
	return n
}
