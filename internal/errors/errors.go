package errors

import "fmt"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AppError carries an internal message for logs and a user-facing message
// rendered to the chat as-is.
type AppError struct {
	Code        string
	Message     string
	UserMessage string
	Severity    Severity
	Retryable   bool
	cause       error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}

	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.cause
}

func (e *AppError) Cause() error {
	return e.Unwrap()
}

// NewAuthError covers bad credentials, expired sessions, and failures to parse
// the SSO login page or public key.
func NewAuthError(msg, userMsg string) *AppError {
	return &AppError{
		Code:        "E100",
		Message:     msg,
		UserMessage: userMsg,
		Severity:    SeverityLow,
		Retryable:   false,
		cause:       nil,
	}
}

func NewNetworkError(msg, userMsg string, cause error) *AppError {
	return &AppError{
		Code:        "E200",
		Message:     msg,
		UserMessage: userMsg,
		Severity:    SeverityMedium,
		Retryable:   true,
		cause:       cause,
	}
}

func NewParseError(msg string, cause error) *AppError {
	return &AppError{
		Code:        "E300",
		Message:     fmt.Sprintf("transcript parse error: %s", msg),
		UserMessage: "成绩单解析失败，可能是教务网返回了异常数据",
		Severity:    SeverityMedium,
		Retryable:   false,
		cause:       cause,
	}
}

func NewCryptoError(cause error) *AppError {
	var underlyingMsg string
	if cause != nil {
		underlyingMsg = cause.Error()
	}

	return &AppError{
		Code:        "E400",
		Message:     fmt.Sprintf("crypto error: %s", underlyingMsg),
		UserMessage: "数据解密失败",
		Severity:    SeverityHigh,
		Retryable:   false,
		cause:       cause,
	}
}

// NewStateError reports an inconsistency in stored dialog state, e.g. a missing
// cached username when the password step is reached.
func NewStateError(msg, userMsg string) *AppError {
	return &AppError{
		Code:        "E500",
		Message:     msg,
		UserMessage: userMsg,
		Severity:    SeverityHigh,
		Retryable:   false,
		cause:       nil,
	}
}
