// Package errors provides a structured error system for steambridge with
// error codes, categories, and context.
package errors

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for steambridge operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave    ErrorCode = "CONFIG_SAVE"
	ErrCodeMissingAppID  ErrorCode = "MISSING_APP_ID"

	// Platform / library environment errors (fatal to init)
	ErrCodeUnsupportedPlatform ErrorCode = "UNSUPPORTED_PLATFORM"
	ErrCodeLibraryNotFound     ErrorCode = "LIBRARY_NOT_FOUND"
	ErrCodeLibraryLoad         ErrorCode = "LIBRARY_LOAD"
	ErrCodeSymbolMissing       ErrorCode = "SYMBOL_MISSING"
	ErrCodeMarkerWrite         ErrorCode = "MARKER_WRITE"

	// State errors
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"

	// Native-call errors (one operation, state unaffected)
	ErrCodeNativeCallFailed ErrorCode = "NATIVE_CALL_FAILED"
	ErrCodeNativeInitFailed ErrorCode = "NATIVE_INIT_FAILED"
	ErrCodeSteamNotRunning  ErrorCode = "STEAM_NOT_RUNNING"
	ErrCodePanicRecovered   ErrorCode = "PANIC_RECOVERED"

	// Operation errors
	ErrCodeNotAvailable       ErrorCode = "NOT_AVAILABLE"
	ErrCodeCallTimeout        ErrorCode = "CALL_TIMEOUT"
	ErrCodeCallFailed         ErrorCode = "CALL_FAILED"
	ErrCodeUnknownAchievement ErrorCode = "UNKNOWN_ACHIEVEMENT"
	ErrCodeStoreFailed        ErrorCode = "STORE_FAILED"
	ErrCodeInvalidArgument    ErrorCode = "INVALID_ARGUMENT"

	// Internal errors
	ErrCodeStateStore    ErrorCode = "STATE_STORE"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryPlatform      ErrorCategory = "platform"
	CategoryState         ErrorCategory = "state"
	CategoryNative        ErrorCategory = "native"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// BridgeError represents a structured error with context and metadata.
type BridgeError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Retryable marks transient conditions such as a request/poll answer
	// that has not arrived yet.
	Retryable  bool `json:"retryable"`
	UserFacing bool `json:"user_facing"`

	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *BridgeError) Is(target error) bool {
	if bridgeErr, ok := target.(*BridgeError); ok {
		return e.Code == bridgeErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *BridgeError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if e.RequestID != "" {
		parts = append(parts, fmt.Sprintf("RequestID=%s", e.RequestID))
	}

	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("BridgeError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *BridgeError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new steambridge error with default values.
func NewError(code ErrorCode, message string) *BridgeError {
	return &BridgeError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Context:    make(map[string]string),
		Retryable:  IsRetryableByDefault(code),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "MISSING_CONFIG") ||
		strings.HasPrefix(codeStr, "CONFIG_") || codeStr == "MISSING_APP_ID":
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "UNSUPPORTED_") || strings.HasPrefix(codeStr, "LIBRARY_") ||
		strings.HasPrefix(codeStr, "SYMBOL_") || strings.HasPrefix(codeStr, "MARKER_"):
		return CategoryPlatform
	case strings.HasPrefix(codeStr, "NOT_INITIALIZED") || strings.HasPrefix(codeStr, "ALREADY_") ||
		strings.HasPrefix(codeStr, "INVALID_STATE"):
		return CategoryState
	case strings.HasPrefix(codeStr, "NATIVE_") || strings.HasPrefix(codeStr, "STEAM_") ||
		strings.HasPrefix(codeStr, "PANIC_"):
		return CategoryNative
	case strings.HasPrefix(codeStr, "NOT_AVAILABLE") || strings.HasPrefix(codeStr, "CALL_") ||
		strings.HasPrefix(codeStr, "UNKNOWN_ACHIEVEMENT") || strings.HasPrefix(codeStr, "STORE_") ||
		strings.HasPrefix(codeStr, "INVALID_ARGUMENT"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeNotAvailable: true,
		ErrCodeCallTimeout:  true,
	}
	return retryableCodes[code]
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	userFacingCodes := map[ErrorCode]bool{
		ErrCodeInvalidConfig:       true,
		ErrCodeMissingConfig:       true,
		ErrCodeMissingAppID:        true,
		ErrCodeUnsupportedPlatform: true,
		ErrCodeLibraryNotFound:     true,
		ErrCodeSteamNotRunning:     true,
		ErrCodeNotInitialized:      true,
		ErrCodeCallTimeout:         true,
	}
	return userFacingCodes[code]
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") { // Skip frames from this file
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *BridgeError) WithContext(key, value string) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *BridgeError) WithDetail(key string, value interface{}) *BridgeError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *BridgeError) WithOperation(operation string) *BridgeError {
	e.Operation = operation
	return e
}

// WithRequestID sets the request id for an error
func (e *BridgeError) WithRequestID(id string) *BridgeError {
	e.RequestID = id
	return e
}

// WithCause sets the underlying cause
func (e *BridgeError) WithCause(cause error) *BridgeError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *BridgeError) WithStack() *BridgeError {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *BridgeError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeUnsupportedPlatform: "This operating system / architecture pair has no Steamworks " +
			"redistributable. Run on 64-bit Windows, Linux, or macOS.",
		ErrCodeLibraryNotFound: "The steam_api shared library was not found under the SDK root. " +
			"Download the Steamworks SDK and place redistributable_bin at the configured location.",
		ErrCodeLibraryLoad: "The steam_api library exists but could not be loaded. " +
			"Check that its architecture matches the process and that OS dependencies are present.",
		ErrCodeSymbolMissing: "A required flat-API symbol is absent. " +
			"The SDK binary is probably older than the binding; update the redistributable.",
		ErrCodeSteamNotRunning: "The Steam client is not running or the user is not logged in. " +
			"Start Steam, or enable the mock backend for offline development.",
		ErrCodeNativeInitFailed: "SteamAPI_Init failed. Verify the app id, that steam_appid.txt is " +
			"writable in the working directory, and that Steam is running.",
		ErrCodeMissingAppID: "No application id configured. Set steam.app_id in the configuration " +
			"file or export SteamAppId.",
		ErrCodeNotInitialized: "The client has not been initialized. Call Init before issuing " +
			"feature operations.",
		ErrCodeCallTimeout: "The Steam backend did not answer within the poll window. " +
			"Re-issue the read; consider raising polling.timeout for slow connections.",
		ErrCodeNotAvailable: "The requested value has not arrived yet. Pump callbacks and re-poll.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details and consult the documentation."
}

// UserFacingMessage returns a simplified message suitable for end users
func (e *BridgeError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred. Please contact support if this persists."
	}

	messages := map[ErrorCode]string{
		ErrCodeInvalidConfig:       "Invalid configuration",
		ErrCodeMissingConfig:       "Configuration file not found",
		ErrCodeMissingAppID:        "Steam application id not configured",
		ErrCodeUnsupportedPlatform: "Platform not supported by the Steamworks SDK",
		ErrCodeLibraryNotFound:     "Steamworks library not found",
		ErrCodeSteamNotRunning:     "Steam is not running",
		ErrCodeNotInitialized:      "Steam client not initialized",
		ErrCodeCallTimeout:         "Steam did not answer in time",
	}

	if msg, exists := messages[e.Code]; exists {
		return msg
	}

	return e.Message
}
