package taskqueue

import (
	"time"

	"github.com/google/uuid"
)

// MailKind 邮件类型。
type MailKind string

const (
	MailVerify MailKind = "verify" // 账号验证
	MailReset  MailKind = "reset"  // 重置密码
)

// MailMessage 表示邮件队列中的一条待发送邮件。
//
// ID 在首次入队时生成，重试时保持不变，用于发送端幂等。
type MailMessage struct {
	ID        string    `json:"id"`
	Kind      MailKind  `json:"kind"`
	To        string    `json:"to"`
	Username  string    `json:"username"`
	Code      string    `json:"code"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expires_at"` // 验证码过期时间（UTC）
	Timestamp time.Time `json:"timestamp"`  // 消息创建时间
	Retry     int       `json:"retry"`      // 重试次数
}

// NewMailMessage 创建一条新的邮件消息。
func NewMailMessage(kind MailKind, to, username, code, link string, expiresAt time.Time) *MailMessage {
	return &MailMessage{
		ID:        uuid.NewString(),
		Kind:      kind,
		To:        to,
		Username:  username,
		Code:      code,
		Link:      link,
		ExpiresAt: expiresAt.UTC(),
		Timestamp: time.Now().UTC(),
	}
}
