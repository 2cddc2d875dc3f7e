package notify

import (
	"context"

	"ngeblog/internal/pkg/taskqueue"
)

// Sender 将一条邮件消息真正投递出去。
type Sender interface {
	// SendMail 渲染并发送邮件，返回错误时由调用方决定是否重试。
	SendMail(ctx context.Context, msg *taskqueue.MailMessage) error
}
