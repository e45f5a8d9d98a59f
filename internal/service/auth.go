// Package service 是 store 与 Mock API 之间的薄适配层。
//
// 替换为真实 HTTP 客户端时只需要实现同样的接口，store 无需修改。
package service

import (
	"context"

	"todoapp/internal/model"
)

// AuthAPI 登录端点。
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (model.Response[model.User], error)
}

// AuthService 认证服务。
type AuthService struct {
	api AuthAPI
}

// NewAuthService 创建认证服务。
func NewAuthService(api AuthAPI) *AuthService {
	return &AuthService{api: api}
}

// Login 使用凭据登录，返回用户信息。
func (s *AuthService) Login(ctx context.Context, creds model.LoginCredentials) (model.User, error) {
	resp, err := s.api.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		return model.User{}, err
	}
	return resp.Data, nil
}
