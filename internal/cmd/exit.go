package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	apperrors "github.com/courseflow/courseflow/internal/errors"
)

var defaultExit = os.Exit

// osExit is swapped in tests.
var osExit = defaultExit

// ExitCodeFor maps a command error onto the foundry exit code catalog.
// Errors that carry no envelope exit with ExitFailure.
func ExitCodeFor(err error) foundry.ExitCode {
	var envelope *errors.ErrorEnvelope
	if err == nil || !stderrors.As(err, &envelope) {
		return foundry.ExitFailure
	}
	switch envelope.Code {
	case apperrors.CodeConfigInvalid, apperrors.CodeValidationFailed, apperrors.CodeInvalidInput:
		return foundry.ExitConfigInvalid
	case apperrors.CodeDatabase, apperrors.CodeExternalService, apperrors.CodeUnavailable, apperrors.CodeTimeout:
		return foundry.ExitExternalServiceUnavailable
	case apperrors.CodeNotFound:
		return foundry.ExitFileNotFound
	default:
		return foundry.ExitFailure
	}
}

// Exit terminates with the exit code ExitCodeFor picks for err.
func Exit(msg string, err error) {
	ExitWithCodeStderr(ExitCodeFor(err), msg, err)
}

// ExitWithCode logs err with its exit code metadata and terminates.
// A nil logger falls back to stderr, which covers failures before the CLI
// logger exists.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		fmt.Fprintf(os.Stderr, "FATAL: %s: %v (exit code: %d)\n", msg, err, exitCode)
		osExit(int(exitCode))
		return
	}

	if logger == nil {
		writeFatal(os.Stderr, info.Code, info.Name, msg, err)
		osExit(info.Code)
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	fields = append(fields, envelopeFields(err)...)
	logger.Error(msg, fields...)
	osExit(info.Code)
}

// ExitWithCodeStderr writes the failure to stderr and terminates.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	code, name := int(exitCode), "UNKNOWN"
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		code, name = info.Code, info.Name
	}
	writeFatal(os.Stderr, code, name, msg, err)
	osExit(code)
}

func writeFatal(w io.Writer, code int, name, msg string, err error) {
	var envelope *errors.ErrorEnvelope
	switch {
	case err == nil:
		fmt.Fprintf(w, "FATAL: %s\n", msg)
	case stderrors.As(err, &envelope):
		fmt.Fprintf(w, "FATAL: %s [%s]: %s\n", msg, envelope.Code, envelope.Message)
		if cause := originalError(envelope); cause != nil {
			fmt.Fprintf(w, "Cause: %v\n", cause)
		}
	default:
		fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}
	fmt.Fprintf(w, "Exit Code: %d (%s)\n", code, name)
}

func envelopeFields(err error) []zap.Field {
	var envelope *errors.ErrorEnvelope
	if !stderrors.As(err, &envelope) {
		return []zap.Field{zap.Error(err)}
	}
	fields := []zap.Field{
		zap.String("error_code", envelope.Code),
		zap.String("error_message", envelope.Message),
		zap.String("correlation_id", envelope.CorrelationID),
	}
	if envelope.Context != nil {
		fields = append(fields, zap.Any("error_context", envelope.Context))
	}
	if cause := originalError(envelope); cause != nil {
		fields = append(fields, zap.Error(cause))
	}
	return fields
}

// originalError recovers the cause recorded by the apperrors Wrap helpers.
func originalError(envelope *errors.ErrorEnvelope) error {
	if cause, ok := envelope.Original.(error); ok && cause != nil {
		return cause
	}
	if msg, ok := envelope.Context["wrapped_error"].(string); ok && msg != "" {
		return stderrors.New(msg)
	}
	return nil
}
