// Package failure defines the error taxonomy shared by every provisioning step.
package failure

import (
	"context"
	"errors"
	"fmt"
)

// ErrCancelled marks a run that ended because its context was cancelled.
var ErrCancelled = errors.New("provisioning cancelled")

// ConfigurationError reports an unresolvable reference or contradictory input.
type ConfigurationError struct {
	Message string
	Cause   error
}

// NewConfigurationError constructs a ConfigurationError from a format string.
func NewConfigurationError(format string, arguments ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, arguments...)}
}

// WrapConfigurationError constructs a ConfigurationError with an underlying cause.
func WrapConfigurationError(cause error, format string, arguments ...any) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, arguments...), Cause: cause}
}

func (configurationError *ConfigurationError) Error() string {
	if configurationError.Cause == nil {
		return "configuration error: " + configurationError.Message
	}
	return fmt.Sprintf("configuration error: %s: %v", configurationError.Message, configurationError.Cause)
}

func (configurationError *ConfigurationError) Unwrap() error {
	return configurationError.Cause
}

// CommandError reports an external command that exited with a non-zero status.
// CommandLine and Output never contain masked argument values.
type CommandError struct {
	Message     string
	CommandLine string
	ExitCode    int
	Output      string
}

// ExitCodeNotStarted marks a CommandError for a command that could not be launched.
const ExitCodeNotStarted = -1

func (commandError *CommandError) Error() string {
	if commandError.ExitCode == ExitCodeNotStarted {
		return fmt.Sprintf("%s: %s could not be started", commandError.Message, commandError.CommandLine)
	}
	return fmt.Sprintf("%s: %s exited with status %d", commandError.Message, commandError.CommandLine, commandError.ExitCode)
}

// ResourceError reports a failed workspace or node filesystem operation.
type ResourceError struct {
	Operation string
	Path      string
	Cause     error
}

// NewResourceError constructs a ResourceError.
func NewResourceError(operation string, path string, cause error) *ResourceError {
	return &ResourceError{Operation: operation, Path: path, Cause: cause}
}

func (resourceError *ResourceError) Error() string {
	if resourceError.Path == "" {
		return fmt.Sprintf("%s: %v", resourceError.Operation, resourceError.Cause)
	}
	return fmt.Sprintf("%s %s: %v", resourceError.Operation, resourceError.Path, resourceError.Cause)
}

func (resourceError *ResourceError) Unwrap() error {
	return resourceError.Cause
}

// Cancelled wraps a context error so that callers can match ErrCancelled.
func Cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// FromContext returns a cancellation error when the context has ended, nil otherwise.
func FromContext(ctx context.Context) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Cancelled(ctxErr)
	}
	return nil
}

// IsConfiguration reports whether err carries a ConfigurationError.
func IsConfiguration(err error) bool {
	var configurationError *ConfigurationError
	return errors.As(err, &configurationError)
}

// IsCommand reports whether err carries a CommandError.
func IsCommand(err error) bool {
	var commandError *CommandError
	return errors.As(err, &commandError)
}

// IsResource reports whether err carries a ResourceError.
func IsResource(err error) bool {
	var resourceError *ResourceError
	return errors.As(err, &resourceError)
}

// IsCancelled reports whether err reflects a cancelled run.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
