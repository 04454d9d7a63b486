package ws

import "time"

// SystemNotice 构造面向全体在线连接的系统通知载荷，经注册表广播。
func SystemNotice(content string) map[string]interface{} {
	return map[string]interface{}{
		"type":    "system",
		"content": content,
		"time":    time.Now().UTC().Format(time.RFC3339),
	}
}
