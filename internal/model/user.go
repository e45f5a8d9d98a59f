package model

// User 表示已登录的用户。
//
// 只能通过登录成功创建，登录后不再修改，注销时清除。
type User struct {
	Entity
	Email string `json:"email"` // 登录邮箱
	Name  string `json:"name"`  // 显示名称
	Token string `json:"token"` // 会话凭证（静态字符串，仅做存在性校验）
}

// LoginCredentials 登录凭据。
type LoginCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
