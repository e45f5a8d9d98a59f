package model

// Response 是 Mock API 统一的响应包装。
//
// 失败不会以 Success=false 的形式返回，而是直接返回 error。
type Response[T any] struct {
	Data       T      `json:"data"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message,omitempty"`
}

// OK 构造成功响应。
func OK[T any](data T, code int) Response[T] {
	return Response[T]{Data: data, Success: true, StatusCode: code}
}
