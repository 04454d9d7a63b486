package service

import "errors"

// 业务层通用错误，handler 按错误类型映射 HTTP 状态码。
var (
	ErrUsernameTaken      = errors.New("username taken")
	ErrNicknameTaken      = errors.New("nickname taken")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrSameUser           = errors.New("chat requires two distinct users")
	ErrNotAMember         = errors.New("not a chat member")
)
