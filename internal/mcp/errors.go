// Package mcp exposes the indexing and query pipelines as Model Context
// Protocol tools over stdio.
package mcp

import (
	"context"
	"errors"
	"fmt"

	mferrors "github.com/magicfolder/magicfolder/internal/errors"
)

// Application error codes, in the JSON-RPC server range.
const (
	ErrCodeFileNotFound      = -32004
	ErrCodeReadFailed        = -32005
	ErrCodeUpstream          = -32010
	ErrCodeDimensionMismatch = -32011
	ErrCodeStorage           = -32012
	ErrCodeTimeout           = -32003

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError is a protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts pipeline errors to MCP errors by kind.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	if me, ok := mferrors.As(err); ok {
		return mapKind(me)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Resource '%s' not found.", uri),
	}
}

func mapKind(me *mferrors.Error) *MCPError {
	message := me.Message
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s %s", me.Message, me.Suggestion)
	}

	switch me.Kind {
	case mferrors.KindNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case mferrors.KindValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case mferrors.KindUpstream:
		return &MCPError{Code: ErrCodeUpstream, Message: message}
	case mferrors.KindDimensionMismatch, mferrors.KindSchemaMismatch:
		return &MCPError{Code: ErrCodeDimensionMismatch, Message: message}
	case mferrors.KindStorage:
		if mferrors.HasKind(me, mferrors.KindDimensionMismatch) {
			return &MCPError{Code: ErrCodeDimensionMismatch, Message: message}
		}
		return &MCPError{Code: ErrCodeStorage, Message: message}
	case mferrors.KindIO:
		return &MCPError{Code: ErrCodeReadFailed, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
