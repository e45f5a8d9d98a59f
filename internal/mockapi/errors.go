package mockapi

import (
	"errors"
	"net/http"
)

var (
	// ErrAuthentication 凭据不匹配。
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound 端点不存在或记录不存在。
	ErrNotFound = errors.New("not found")
)

// AuthenticationError 登录失败，Message 可直接展示给用户。
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

func (e *AuthenticationError) Is(target error) bool { return target == ErrAuthentication }

// StatusCode 对应的 HTTP 状态码。
func (e *AuthenticationError) StatusCode() int { return http.StatusUnauthorized }

// NotFoundError 未知端点或记录 ID 不存在。
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StatusCode 对应的 HTTP 状态码。
func (e *NotFoundError) StatusCode() int { return http.StatusNotFound }
