package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	TypeConsole = "CONSOLE"
	TypeJSON    = "JSON"

	// MaskPlaceholder replaces every registered secret in emitted log text.
	MaskPlaceholder = "********"

	// secrets shorter than this are masked only where they stand as a whole token.
	minimumSubstringSecretLength = 4
)

// Field represents a logging attribute.
type Field struct {
	Key   string
	Value any
}

// String creates a string Field.
func String(key string, value string) Field {
	return Field{Key: key, Value: value}
}

// Strings creates a []string Field.
func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int Field.
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Duration creates a time.Duration Field.
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// ErrorField creates an error Field using the key "error".
func ErrorField(err error) Field {
	return Field{Key: "error", Value: err}
}

// NormalizeType validates and normalizes a logging type string.
func NormalizeType(rawValue string) (string, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(rawValue))
	if sanitized == "" {
		sanitized = TypeConsole
	}
	switch sanitized {
	case TypeConsole, TypeJSON:
		return sanitized, nil
	default:
		return "", fmt.Errorf("unsupported logging type %s", rawValue)
	}
}

// Service provides logging capabilities with console and JSON modes.
// Values registered through RegisterSecret never reach the underlying logger.
type Service struct {
	loggingType string
	logger      *zap.Logger

	secretsMutex sync.RWMutex
	secrets      []string
}

// NewService constructs a logging Service using the provided type.
func NewService(loggingType string) (*Service, error) {
	normalized, err := NormalizeType(loggingType)
	if err != nil {
		return nil, err
	}
	logger, err := newZapLogger(normalized)
	if err != nil {
		return nil, err
	}
	return NewServiceWithLogger(normalized, logger)
}

// NewServiceWithLogger constructs a Service using an existing zap logger.
func NewServiceWithLogger(loggingType string, logger *zap.Logger) (*Service, error) {
	return &Service{loggingType: loggingType, logger: logger}, nil
}

// NewTestService constructs a Service that discards every entry.
func NewTestService(loggingType string) *Service {
	return &Service{loggingType: loggingType, logger: zap.NewNop()}
}

// Type returns the current logging type.
func (service *Service) Type() string {
	return service.loggingType
}

// RegisterSecret masks the value in every subsequent message and field.
// Values shorter than four bytes are masked only as whole tokens.
func (service *Service) RegisterSecret(value string) {
	if value == "" {
		return
	}
	service.secretsMutex.Lock()
	defer service.secretsMutex.Unlock()
	for _, existing := range service.secrets {
		if existing == value {
			return
		}
	}
	service.secrets = append(service.secrets, value)
}

// Redact replaces every registered secret in text with MaskPlaceholder.
func (service *Service) Redact(text string) string {
	service.secretsMutex.RLock()
	defer service.secretsMutex.RUnlock()
	for _, secretValue := range service.secrets {
		if len(secretValue) < minimumSubstringSecretLength {
			text = replaceWholeTokens(text, secretValue)
			continue
		}
		text = strings.ReplaceAll(text, secretValue, MaskPlaceholder)
	}
	return text
}

// replaceWholeTokens masks occurrences of value that are not embedded in a
// longer run of letters or digits.
func replaceWholeTokens(text string, value string) string {
	var builder strings.Builder
	remaining := text
	consumed := 0
	for {
		index := strings.Index(remaining, value)
		if index < 0 {
			builder.WriteString(remaining)
			return builder.String()
		}
		start := consumed + index
		end := start + len(value)
		builder.WriteString(remaining[:index])
		if isTokenBoundary(text, start-1) && isTokenBoundary(text, end) {
			builder.WriteString(MaskPlaceholder)
		} else {
			builder.WriteString(value)
		}
		remaining = remaining[index+len(value):]
		consumed = end
	}
}

func isTokenBoundary(text string, position int) bool {
	if position < 0 || position >= len(text) {
		return true
	}
	character := text[position]
	isLetter := (character >= 'a' && character <= 'z') || (character >= 'A' && character <= 'Z')
	isDigit := character >= '0' && character <= '9'
	return !isLetter && !isDigit
}

// Info writes an informational message.
func (service *Service) Info(message string, fields ...Field) {
	service.log(zapcore.InfoLevel, message, nil, fields...)
}

// Warn writes a warning with the provided error.
func (service *Service) Warn(message string, err error, fields ...Field) {
	service.log(zapcore.WarnLevel, message, err, fields...)
}

// Error writes an error message with the provided error.
func (service *Service) Error(message string, err error, fields ...Field) {
	service.log(zapcore.ErrorLevel, message, err, fields...)
}

// Sync flushes buffered log entries.
func (service *Service) Sync() error {
	return service.logger.Sync()
}

func (service *Service) log(level zapcore.Level, message string, err error, fields ...Field) {
	if err != nil {
		fields = append(fields, ErrorField(err))
	}
	message = service.Redact(message)
	fields = service.redactFields(fields)
	if service.loggingType == TypeConsole {
		formatted := formatConsoleMessage(message, fields)
		service.logger.Info(formatted)
		return
	}
	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		zapFields = append(zapFields, convertToZapField(field))
	}
	switch level {
	case zapcore.ErrorLevel:
		service.logger.Error(message, zapFields...)
	case zapcore.WarnLevel:
		service.logger.Warn(message, zapFields...)
	default:
		service.logger.Info(message, zapFields...)
	}
}

func (service *Service) redactFields(fields []Field) []Field {
	redacted := make([]Field, 0, len(fields))
	for _, field := range fields {
		switch value := field.Value.(type) {
		case string:
			redacted = append(redacted, String(field.Key, service.Redact(value)))
		case []string:
			values := make([]string, 0, len(value))
			for _, item := range value {
				values = append(values, service.Redact(item))
			}
			redacted = append(redacted, Strings(field.Key, values))
		case error:
			redacted = append(redacted, Field{Key: field.Key, Value: redactedError{message: service.Redact(value.Error())}})
		default:
			redacted = append(redacted, field)
		}
	}
	return redacted
}

type redactedError struct {
	message string
}

func (err redactedError) Error() string {
	return err.message
}

func convertToZapField(field Field) zap.Field {
	switch value := field.Value.(type) {
	case error:
		return zap.NamedError(field.Key, value)
	case []string:
		return zap.Strings(field.Key, value)
	case string:
		return zap.String(field.Key, value)
	case time.Duration:
		return zap.Duration(field.Key, value)
	case int:
		return zap.Int(field.Key, value)
	default:
		return zap.Any(field.Key, value)
	}
}

func formatConsoleMessage(message string, fields []Field) string {
	if len(fields) == 0 {
		return message
	}
	var builder strings.Builder
	builder.WriteString(message)
	for _, field := range fields {
		builder.WriteString(" ")
		builder.WriteString(field.Key)
		builder.WriteString("=")
		builder.WriteString(formatConsoleValue(field.Value))
	}
	return builder.String()
}

func formatConsoleValue(value any) string {
	switch typed := value.(type) {
	case string:
		return fmt.Sprintf("\"%s\"", typed)
	case []string:
		return fmt.Sprintf("[%s]", strings.Join(typed, ","))
	case error:
		return fmt.Sprintf("\"%s\"", typed.Error())
	default:
		return fmt.Sprint(typed)
	}
}

func newZapLogger(loggingType string) (*zap.Logger, error) {
	switch loggingType {
	case TypeConsole:
		encoderConfig := zapcore.EncoderConfig{
			MessageKey:    "msg",
			LevelKey:      "",
			TimeKey:       "",
			NameKey:       "",
			CallerKey:     "",
			FunctionKey:   "",
			StacktraceKey: "",
			LineEnding:    zapcore.DefaultLineEnding,
		}
		core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(os.Stderr), zapcore.InfoLevel)
		return zap.New(core), nil
	case TypeJSON:
		return zap.NewProduction()
	default:
		return nil, fmt.Errorf("unsupported logging type %s", loggingType)
	}
}
