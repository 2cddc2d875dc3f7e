package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别，决定 HTTP 状态码。
type Kind string

const (
	KindValidation   Kind = "validation"
	KindBadRequest   Kind = "bad_request"
	KindUnauthorized Kind = "unauthorized"
	KindExpired      Kind = "expired"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindTooMany      Kind = "too_many_requests"
	KindInternal     Kind = "internal"
)

// InternalMessage 是未分类错误对外暴露的统一文案。
const InternalMessage = "Internal Server Error"

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindBadRequest:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindExpired:      http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindTooMany:      http.StatusTooManyRequests,
	KindInternal:     http.StatusInternalServerError,
}

// Error 是业务层抛出的带类别错误，由统一错误中间件序列化为 {status, message}。
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error // 原始错误，仅用于日志
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按类别比较，便于 errors.Is(err, apperr.NotFound("")) 之类的断言。
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New 创建指定类别的错误。
func New(kind Kind, message string) *Error {
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

// Wrap 创建指定类别的错误并保留底层原因。
func Wrap(kind Kind, message string, err error) *Error {
	e := New(kind, message)
	e.Err = err
	return e
}

func Validation(message string) *Error   { return New(KindValidation, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func Expired(message string) *Error      { return New(KindExpired, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func TooMany(message string) *Error      { return New(KindTooMany, message) }

// Internal 包装未知错误，对外只暴露通用文案。
func Internal(err error) *Error {
	return Wrap(KindInternal, InternalMessage, err)
}

// From 将任意错误转换为 *Error，非业务错误统一视为 500。
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// KindOf 返回错误类别，非业务错误返回 KindInternal。
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}
