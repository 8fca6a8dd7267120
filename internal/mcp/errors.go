// Package mcp implements the Model Context Protocol (MCP) server for amanrecall.
package mcp

import (
	"context"
	"errors"
	"fmt"

	rerrors "github.com/Aman-CERP/amanrecall/internal/errors"
	"github.com/Aman-CERP/amanrecall/internal/store"
)

// Custom MCP error codes for amanrecall.
const (
	// ErrCodeStoreUnavailable indicates the fragment store cannot be read.
	ErrCodeStoreUnavailable = -32001

	// ErrCodeEmbeddingFailed indicates the embedding backend failed.
	ErrCodeEmbeddingFailed = -32002

	// ErrCodeTimeout indicates the request timed out or was cancelled.
	ErrCodeTimeout = -32003

	// ErrCodeFragmentNotFound indicates a fragment id does not exist.
	ErrCodeFragmentNotFound = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors. Context errors are
// checked first so a cancelled search reports a timeout whatever wraps it.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	}

	var recallErr *rerrors.RecallError
	if errors.As(err, &recallErr) {
		return mapRecallError(recallErr)
	}

	switch {
	case errors.Is(err, store.ErrClosed):
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: "Fragment store is closed."}
	case errors.Is(err, store.ErrNotFound):
		return &MCPError{Code: ErrCodeFragmentNotFound, Message: "Fragment not found."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeFragmentNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

func mapRecallError(re *rerrors.RecallError) *MCPError {
	message := re.Message
	if re.Suggestion != "" {
		message = fmt.Sprintf("%s %s", re.Message, re.Suggestion)
	}

	switch re.Category {
	case rerrors.CategoryStore:
		switch re.Code {
		case rerrors.ErrCodeFragmentAbsent:
			return &MCPError{Code: ErrCodeFragmentNotFound, Message: message}
		default:
			return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
		}
	case rerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case rerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	}

	switch re.Code {
	case rerrors.ErrCodeEmbeddingFailed:
		return &MCPError{Code: ErrCodeEmbeddingFailed, Message: message}
	case rerrors.ErrCodeSearchFailed:
		// Hydration is the only search failure that surfaces; it is a store read.
		return &MCPError{Code: ErrCodeStoreUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
