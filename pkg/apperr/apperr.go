// Package apperr 定义服务层对外暴露的错误分类。
//
// 每个错误携带稳定的 Code，handler 据此映射 HTTP 状态码；
// Metadata 用于携带结构化细节（例如预算超限时的可分配上限）。
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code 错误分类
type Code string

const (
	CodeValidation             Code = "VALIDATION"
	CodePermissionDenied       Code = "PERMISSION_DENIED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidStateTransition Code = "INVALID_STATE_TRANSITION"
	CodeBudgetExceeded         Code = "BUDGET_EXCEEDED"
	CodeConcurrencyConflict    Code = "CONCURRENCY_CONFLICT"
	CodeInternal               Code = "INTERNAL"
)

// Error 业务错误
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 按 Code 比较，使 errors.Is(err, apperr.New(CodeNotFound, "")) 成立
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus 返回对应的 HTTP 状态码
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidStateTransition, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodeBudgetExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// New 创建错误
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf 创建带格式化消息的错误
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithMetadata 返回附加了一个 metadata 键值的副本
func (e *Error) WithMetadata(key, value string) *Error {
	md := make(map[string]string, len(e.Metadata)+1)
	for k, v := range e.Metadata {
		md[k] = v
	}
	md[key] = value
	cp := *e
	cp.Metadata = md
	return &cp
}

// CodeOf 提取错误码；非 *Error 返回 CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// As 提取 *Error
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// InvalidTransition 状态流转非法，消息中同时给出当前与目标状态
func InvalidTransition(from, to string) *Error {
	return Newf(CodeInvalidStateTransition, "cannot transition from %s to %s", from, to).
		WithMetadata("from", from).
		WithMetadata("to", to)
}
