package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/cassiomorais/posqueue/internal/client"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // The operation ran but did not succeed (rejected request, failed submissions)
	ExitCommandError = 2 // Command error (bad input, daemon unreachable, config unreadable)
)

// ExitError carries the process exit code out of a command. Commands print
// their own error output before returning one.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns ExitFailure for errors that are not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Error codes reported by the CLI itself, next to the control API codes.
const (
	ErrCodeUnreachable  = "unreachable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeConfig       = "config_error"
	ErrCodeSyncFailed   = "sync_failed"
)

// OutputFormatter writes command results as text or as a JSON envelope.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose output, kept off Writer so JSON stays parseable
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status string    `json:"status"` // "ok" or "error"
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// payloadDocument is implemented by control API responses that carry stored
// payloads; they are written without re-encoding.
type payloadDocument interface {
	AppendJSON(dst []byte) ([]byte, error)
}

// Success writes data. In text mode render draws it; a nil render prints
// data with fmt.
func (f *OutputFormatter) Success(data any, render func(w io.Writer) error) error {
	if f.Format == "json" {
		if doc, ok := data.(payloadDocument); ok {
			out, err := doc.AppendJSON([]byte(`{"status":"ok","data":`))
			if err != nil {
				return err
			}
			_, err = f.Writer.Write(append(out, '}', '\n'))
			return err
		}
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	if render == nil {
		_, err := fmt.Fprintln(f.Writer, data)
		return err
	}
	return render(f.Writer)
}

func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
// A control API rejection exits with ExitFailure; anything else means the
// request never got an answer.
func (f *OutputFormatter) Fail(message string, err error) error {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == "" {
			code = fmt.Sprintf("http_%d", apiErr.StatusCode)
		}
		f.Error(code, apiErr.Message, nil)
		return WrapExitError(ExitFailure, message, err)
	}

	f.Error(ErrCodeUnreachable, err.Error(), nil)
	return WrapExitError(ExitCommandError, message, err)
}

// Invalid reports bad command input.
func (f *OutputFormatter) Invalid(message string) error {
	f.Error(ErrCodeInvalidInput, message, nil)
	return NewExitError(ExitCommandError, message)
}

func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	w := f.ErrWriter
	if w == nil {
		w = f.Writer
	}
	fmt.Fprintf(w, format+"\n", args...)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
