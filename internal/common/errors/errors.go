// Package errors provides standardized error handling for the sync service.
package errors

import (
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidSignature ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"

	ErrCodeAuthorizationDenied ErrorCode = "AUTHORIZATION_DENIED"
	ErrCodeClaimConflict       ErrorCode = "CLAIM_CONFLICT"

	ErrCodeRecordNotFound       ErrorCode = "RECORD_NOT_FOUND"
	ErrCodeDatabaseFailed       ErrorCode = "DATABASE_FAILED"
	ErrCodeForumServiceFailed   ErrorCode = "FORUM_SERVICE_FAILED"
	ErrCodeChatServiceFailed    ErrorCode = "CHAT_SERVICE_FAILED"
	ErrCodeArchiveStepFailed    ErrorCode = "ARCHIVE_STEP_FAILED"
	ErrCodeModeTargetMismatch   ErrorCode = "MODE_TARGET_MISMATCH"
	ErrCodeFatalConfig          ErrorCode = "FATAL_CONFIG"
	ErrCodeRecordAlreadyClosed  ErrorCode = "RECORD_ALREADY_CLOSED"
	ErrCodeNotificationFailed   ErrorCode = "NOTIFICATION_FAILED"
	ErrCodeAuditIndexingFailed  ErrorCode = "AUDIT_INDEXING_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is lets callers match on code with errors.Is against a sentinel.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// CodeOf extracts the error code from any error, or empty for foreign errors.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return ""
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidSignatureError rejects a webhook whose signature matched no
// configured secret. Never retryable and never mutates state.
func NewInvalidSignatureError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSignature,
		Message:   "Webhook signature verification failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedPayloadError rejects a payload that failed schema validation.
func NewMalformedPayloadError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedPayload,
		Message:   "Inbound payload failed validation",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuthorizationDeniedError is surfaced only to the requesting actor.
func NewAuthorizationDeniedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthorizationDenied,
		Message:   "You do not have permission to perform this action",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewClaimConflictError reports a lost claim race; the current owner is
// carried in Metadata so the ingestor can name the winner.
func NewClaimConflictError(topicID int64, claimedBy string) *StandardError {
	return &StandardError{
		Code:      ErrCodeClaimConflict,
		Message:   "Application is already claimed",
		Details:   fmt.Sprintf("topicId: %d", topicID),
		Retryable: false,
		Metadata:  map[string]interface{}{"claimedBy": claimedBy},
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable missing-record error.
func NewRecordNotFoundError(topicID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   "No application record for topic",
		Details:   fmt.Sprintf("topicId: %d", topicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseFailedError creates a retryable database error.
func NewDatabaseFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewForumServiceError creates a retryable forum collaborator error.
func NewForumServiceError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeForumServiceFailed,
		Message:   "Forum service call failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewChatServiceError creates a retryable chat collaborator error.
func NewChatServiceError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeChatServiceFailed,
		Message:   "Chat service call failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewArchiveStepFailedError records which archive step degraded.
func NewArchiveStepFailedError(step string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeArchiveStepFailed,
		Message:   "Archive workflow step failed",
		Details:   fmt.Sprintf("step: %s, error: %s", step, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"step": step},
		Timestamp: time.Now().UTC(),
	}
}

// NewModeTargetMismatchError refuses a mutating call outside the allowlisted
// destination for the current mode. Fails closed, never retryable.
func NewModeTargetMismatchError(mode string, guildID, channelID int64) *StandardError {
	return &StandardError{
		Code:    ErrCodeModeTargetMismatch,
		Message: "Destination not allowlisted for current mode",
		Details: fmt.Sprintf("mode: %s, guildId: %d, channelId: %d", mode, guildID, channelID),
		Metadata: map[string]interface{}{
			"mode": mode,
		},
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewFatalConfigError refuses process startup; no partial startup.
func NewFatalConfigError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeFatalConfig,
		Message:   "Invalid or incomplete configuration",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordAlreadyClosedError rejects mutation of an archived record.
func NewRecordAlreadyClosedError(topicID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordAlreadyClosed,
		Message:   "Record is archived and accepts no further mutation",
		Details:   fmt.Sprintf("topicId: %d", topicID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationFailedError creates a retryable operator-notification error.
func NewNotificationFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Operator notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewAuditIndexingFailedError creates a non-retryable audit-index error;
// indexing is best effort and never blocks the mutation path.
func NewAuditIndexingFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuditIndexingFailed,
		Message:   "Workflow log indexing failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification Tables
// ==========================

// ErrorCategory groups codes for logging and metrics.
type ErrorCategory string

const (
	CategoryValidation      ErrorCategory = "validation"
	CategoryAuthorization   ErrorCategory = "authorization"
	CategoryConflict        ErrorCategory = "conflict"
	CategoryExternalService ErrorCategory = "external_service"
	CategoryConfig          ErrorCategory = "config"
	CategoryInternal        ErrorCategory = "internal"
)

var errorCategories = map[ErrorCode]ErrorCategory{
	ErrCodeInvalidSignature:    CategoryValidation,
	ErrCodeMalformedPayload:    CategoryValidation,
	ErrCodeAuthorizationDenied: CategoryAuthorization,
	ErrCodeClaimConflict:       CategoryConflict,
	ErrCodeRecordNotFound:      CategoryInternal,
	ErrCodeDatabaseFailed:      CategoryExternalService,
	ErrCodeForumServiceFailed:  CategoryExternalService,
	ErrCodeChatServiceFailed:   CategoryExternalService,
	ErrCodeArchiveStepFailed:   CategoryExternalService,
	ErrCodeModeTargetMismatch:  CategoryConfig,
	ErrCodeFatalConfig:         CategoryConfig,
	ErrCodeRecordAlreadyClosed: CategoryConflict,
	ErrCodeNotificationFailed:  CategoryExternalService,
	ErrCodeAuditIndexingFailed: CategoryExternalService,
}

// GetErrorCategory returns the category for a code.
func GetErrorCategory(code ErrorCode) ErrorCategory {
	if cat, ok := errorCategories[code]; ok {
		return cat
	}
	return CategoryInternal
}

// retryCounts fixes the retry ceiling per code. Zero means throw, don't retry.
var retryCounts = map[ErrorCode]int{
	ErrCodeDatabaseFailed:     3,
	ErrCodeForumServiceFailed: 3,
	ErrCodeChatServiceFailed:  3,
	ErrCodeArchiveStepFailed:  3,
	ErrCodeNotificationFailed: 2,
}

// GetRetryCount returns the bounded retry ceiling for a code.
func GetRetryCount(code ErrorCode) int {
	if n, ok := retryCounts[code]; ok {
		return n
	}
	return 0
}

// IsRetryable reports whether an arbitrary error should be retried.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}
