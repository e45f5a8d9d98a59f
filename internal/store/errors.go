package store

import (
	"errors"

	"todoapp/internal/mockapi"
)

// ErrNotAuthenticated 没有登录用户时调用需要用户的操作。
var ErrNotAuthenticated = errors.New("Usuario no autenticado")

// ErrTaskNotFound 本地集合中不存在该任务。
var ErrTaskNotFound = errors.New("task not found in store")

// userMessage 把 API 错误转成可展示的文案，其余失败使用 fallback。
func userMessage(err error, fallback string) string {
	var authErr *mockapi.AuthenticationError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	var nfErr *mockapi.NotFoundError
	if errors.As(err, &nfErr) && nfErr.Message != "" {
		return nfErr.Message
	}
	return fallback
}
