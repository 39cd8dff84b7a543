// Package errors provides standardized error handling for the agent surfaces and BPMN workflow integration.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeWebSearchTimeout   ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeWebSearchFailed    ErrorCode = "WEB_SEARCH_FAILED"
	ErrCodeLLMTimeout         ErrorCode = "LLM_TIMEOUT"
	ErrCodeLLMSynthesisFailed ErrorCode = "LLM_SYNTHESIS_FAILED"
	ErrCodeEmbeddingFailed    ErrorCode = "EMBEDDING_FAILED"

	ErrCodeKnowledgeBaseInvalid  ErrorCode = "KNOWLEDGE_BASE_INVALID"
	ErrCodeKnowledgeBaseNotFound ErrorCode = "KNOWLEDGE_BASE_NOT_FOUND"
	ErrCodeIndexBuildFailed      ErrorCode = "INDEX_BUILD_FAILED"
	ErrCodeIndexQueryFailed      ErrorCode = "INDEX_QUERY_FAILED"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeDatabaseInsertFailed     ErrorCode = "DATABASE_INSERT_FAILED"

	ErrCodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionNotActive ErrorCode = "SESSION_NOT_ACTIVE"

	ErrCodeToolArgumentsInvalid ErrorCode = "TOOL_ARGUMENTS_INVALID"
	ErrCodeUnknownTool          ErrorCode = "UNKNOWN_TOOL"
	ErrCodeUnknownServer        ErrorCode = "UNKNOWN_SERVER"

	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeConfigInvalid          ErrorCode = "CONFIG_INVALID"
	ErrCodeJobInputInvalid        ErrorCode = "JOB_INPUT_INVALID"

	ErrCodeExternalService  ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout          ErrorCode = "TIMEOUT_ERROR"
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Err       error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is and errors.As.
func (e *StandardError) Unwrap() error {
	return e.Err
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}

	for k, v := range e.ErrorVariables {
		vars[k] = v
	}

	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Err:       cause,
	}
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewWebSearchTimeoutError creates a retryable web search timeout error.
func NewWebSearchTimeoutError(query string) *StandardError {
	return newError(ErrCodeWebSearchTimeout, "Web search API timeout", fmt.Sprintf("query: %s", query), true, nil)
}

// NewWebSearchFailedError creates a retryable web search error.
func NewWebSearchFailedError(err error) *StandardError {
	return newError(ErrCodeWebSearchFailed, "Web search API error", causeText(err), true, err)
}

// NewLLMTimeoutError creates a retryable LLM timeout error.
func NewLLMTimeoutError(err error) *StandardError {
	return newError(ErrCodeLLMTimeout, "LLM request timeout", causeText(err), true, err)
}

// NewLLMSynthesisFailedError creates a retryable LLM API error.
func NewLLMSynthesisFailedError(err error) *StandardError {
	return newError(ErrCodeLLMSynthesisFailed, "LLM API error", causeText(err), true, err)
}

// NewEmbeddingFailedError creates a retryable embedding error.
func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "Embedding request failed", causeText(err), true, err)
}

// NewKnowledgeBaseInvalidError creates a non-retryable knowledge base validation error.
func NewKnowledgeBaseInvalidError(path, details string) *StandardError {
	return newError(ErrCodeKnowledgeBaseInvalid, "Knowledge base failed validation", fmt.Sprintf("path: %s, %s", path, details), false, nil)
}

// NewKnowledgeBaseNotFoundError creates a non-retryable missing knowledge base error.
func NewKnowledgeBaseNotFoundError(path string) *StandardError {
	return newError(ErrCodeKnowledgeBaseNotFound, "Knowledge base not found", fmt.Sprintf("path: %s", path), false, nil)
}

// NewIndexBuildFailedError creates a retryable vector index build error.
func NewIndexBuildFailedError(index string, err error) *StandardError {
	return newError(ErrCodeIndexBuildFailed, "Vector index build failed", fmt.Sprintf("index: %s, error: %s", index, causeText(err)), true, err)
}

// NewIndexQueryFailedError creates a retryable vector index query error.
func NewIndexQueryFailedError(index string, err error) *StandardError {
	return newError(ErrCodeIndexQueryFailed, "Vector index query failed", fmt.Sprintf("index: %s, error: %s", index, causeText(err)), true, err)
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", causeText(err), true, err)
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(queryType string, err error) *StandardError {
	return newError(ErrCodeQueryExecutionFailed, "Database query execution error", fmt.Sprintf("queryType: %s, error: %s", queryType, causeText(err)), true, err)
}

// NewDatabaseInsertFailedError creates a retryable database insert error.
func NewDatabaseInsertFailedError(table string, err error) *StandardError {
	return newError(ErrCodeDatabaseInsertFailed, "Database insert operation failed", fmt.Sprintf("table: %s, error: %s", table, causeText(err)), true, err)
}

// NewSessionNotFoundError creates a non-retryable tracking session error.
func NewSessionNotFoundError(sessionID int64) *StandardError {
	return newError(ErrCodeSessionNotFound, "Tracking session not found", fmt.Sprintf("sessionId: %d", sessionID), false, nil)
}

// NewSessionNotActiveError creates a non-retryable tracking session error.
func NewSessionNotActiveError(sessionID int64) *StandardError {
	return newError(ErrCodeSessionNotActive, "Tracking session is not active", fmt.Sprintf("sessionId: %d", sessionID), false, nil)
}

// NewToolArgumentsInvalidError creates a non-retryable tool argument error.
func NewToolArgumentsInvalidError(tool, details string) *StandardError {
	return newError(ErrCodeToolArgumentsInvalid, "Invalid tool arguments", fmt.Sprintf("tool: %s, %s", tool, details), false, nil)
}

// NewUnknownToolError creates a non-retryable unknown tool error.
func NewUnknownToolError(tool string) *StandardError {
	return newError(ErrCodeUnknownTool, fmt.Sprintf("Unknown tool: %s", tool), "", false, nil)
}

// NewUnknownServerError creates a non-retryable unknown server error.
func NewUnknownServerError(server string) *StandardError {
	return newError(ErrCodeUnknownServer, fmt.Sprintf("Unknown server: %s", server), "", false, nil)
}

// NewNotificationSendFailedError creates a retryable notification send error.
func NewNotificationSendFailedError(notificationType string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed", fmt.Sprintf("type: %s, error: %s", notificationType, causeText(err)), true, err)
}

// NewConfigInvalidError creates a non-retryable configuration error.
func NewConfigInvalidError(details string) *StandardError {
	return newError(ErrCodeConfigInvalid, "Invalid configuration", details, false, nil)
}

// NewJobInputInvalidError creates a non-retryable job variables error.
func NewJobInputInvalidError(taskType, details string) *StandardError {
	return newError(ErrCodeJobInputInvalid, "Invalid job input", fmt.Sprintf("taskType: %s, %s", taskType, details), false, nil)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service '%s' error", service), causeText(err), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Service '%s' timeout", service), causeText(err), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeResourceNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes thrown into process models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeWebSearchTimeout:         "WEB_SEARCH_TIMEOUT",
	ErrCodeWebSearchFailed:          "WEB_SEARCH_FAILED",
	ErrCodeLLMTimeout:               "LLM_TIMEOUT",
	ErrCodeLLMSynthesisFailed:       "LLM_SYNTHESIS_FAILED",
	ErrCodeEmbeddingFailed:          "EMBEDDING_FAILED",
	ErrCodeKnowledgeBaseInvalid:     "KNOWLEDGE_BASE_INVALID",
	ErrCodeKnowledgeBaseNotFound:    "KNOWLEDGE_BASE_NOT_FOUND",
	ErrCodeIndexBuildFailed:         "INDEX_BUILD_FAILED",
	ErrCodeIndexQueryFailed:         "INDEX_QUERY_FAILED",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeQueryExecutionFailed:     "QUERY_EXECUTION_FAILED",
	ErrCodeDatabaseInsertFailed:     "DATABASE_INSERT_FAILED",
	ErrCodeSessionNotFound:          "SESSION_NOT_FOUND",
	ErrCodeSessionNotActive:         "SESSION_NOT_ACTIVE",
	ErrCodeToolArgumentsInvalid:     "TOOL_ARGUMENTS_INVALID",
	ErrCodeUnknownTool:              "UNKNOWN_TOOL",
	ErrCodeUnknownServer:            "UNKNOWN_SERVER",
	ErrCodeNotificationSendFailed:   "NOTIFICATION_SEND_FAILED",
	ErrCodeConfigInvalid:            "CONFIG_INVALID",
	ErrCodeJobInputInvalid:          "JOB_INPUT_INVALID",
}

// GetRetryCount returns the recommended retry count for an error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeWebSearchFailed,
		ErrCodeLLMSynthesisFailed,
		ErrCodeEmbeddingFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeDatabaseInsertFailed,
		ErrCodeIndexBuildFailed,
		ErrCodeIndexQueryFailed,
		ErrCodeNotificationSendFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeWebSearchTimeout, ErrCodeTimeout:
		return 2

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a *StandardError when one is in the chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY_EXECUTION"):
		return "DATABASE"
	case strings.Contains(codeStr, "WEB_SEARCH"):
		return "SEARCH"
	case strings.Contains(codeStr, "LLM") || strings.Contains(codeStr, "EMBEDDING"):
		return "AI"
	case strings.Contains(codeStr, "KNOWLEDGE") || strings.Contains(codeStr, "INDEX"):
		return "KNOWLEDGE"
	case strings.Contains(codeStr, "SESSION"):
		return "TRACKING"
	case strings.Contains(codeStr, "TOOL") || strings.Contains(codeStr, "SERVER"):
		return "TOOLS"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
