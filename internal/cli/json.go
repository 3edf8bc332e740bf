package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aidanlsb/assetcat/internal/diag"
)

// Global JSON output flag
var jsonOutput bool

// stdout is where command output goes. Tests swap it.
var stdout io.Writer = os.Stdout

// Response is the standard JSON envelope for all CLI output.
type Response struct {
	OK       bool        `json:"ok"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorInfo  `json:"error,omitempty"`
	Warnings []Warning   `json:"warnings,omitempty"`
	Meta     *Meta       `json:"meta,omitempty"`
}

// ErrorInfo contains structured error information.
type ErrorInfo struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	Suggestion string      `json:"suggestion,omitempty"`
}

// Warning represents a non-fatal warning.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

// Meta contains metadata about the response.
type Meta struct {
	Count          int    `json:"count,omitempty"`
	CatalogVersion uint64 `json:"catalog_version,omitempty"`
	ElapsedMs      int64  `json:"elapsed_ms,omitempty"`
}

// outputJSON outputs the response as JSON to stdout.
func outputJSON(resp Response) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(resp)
}

// outputSuccess outputs a successful JSON response.
func outputSuccess(data interface{}, meta *Meta) {
	outputJSON(Response{
		OK:   true,
		Data: data,
		Meta: meta,
	})
}

// outputSuccessWithWarnings outputs a successful JSON response with warnings.
func outputSuccessWithWarnings(data interface{}, warnings []Warning, meta *Meta) {
	outputJSON(Response{
		OK:       true,
		Data:     data,
		Warnings: warnings,
		Meta:     meta,
	})
}

// outputError outputs an error JSON response.
func outputError(code, message string, details interface{}, suggestion string) {
	outputJSON(Response{
		OK: false,
		Error: &ErrorInfo{
			Code:       code,
			Message:    message,
			Details:    details,
			Suggestion: suggestion,
		},
	})
}

// isJSONOutput returns true if JSON output is enabled.
func isJSONOutput() bool {
	return jsonOutput
}

// handleError handles an error appropriately based on output mode.
// In JSON mode, outputs a JSON error and returns errSilent so the process
// still exits non-zero. In text mode, returns the error for Execute.
func handleError(code string, err error, suggestion string) error {
	if jsonOutput {
		outputError(code, err.Error(), nil, suggestion)
		return errSilent
	}
	if suggestion != "" {
		return fmt.Errorf("%w\n\n%s", err, suggestion)
	}
	return err
}

// handleErrorMsg handles an error message appropriately based on output mode.
func handleErrorMsg(code, message, suggestion string) error {
	return handleError(code, errors.New(message), suggestion)
}

// handleErrorWithDetails handles an error with structured details.
func handleErrorWithDetails(code, message, suggestion string, details interface{}) error {
	if jsonOutput {
		outputError(code, message, details, suggestion)
		return errSilent
	}
	return errors.New(message)
}

// diagnosticWarnings converts warning and error diagnostics to envelope
// warnings. Info diagnostics are left to the data payload.
func diagnosticWarnings(list diag.List) []Warning {
	var out []Warning
	for _, d := range list {
		if d.Severity == diag.SeverityInfo {
			continue
		}
		out = append(out, Warning{Code: d.Code, Message: d.Message, Ref: d.Object.String()})
	}
	return out
}

// outf prints a line of text output.
func outf(format string, args ...interface{}) {
	fmt.Fprintf(stdout, format+"\n", args...)
}
