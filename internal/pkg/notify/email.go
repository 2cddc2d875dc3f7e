package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"ngeblog/internal/config"
	"ngeblog/internal/pkg/taskqueue"

	"gopkg.in/gomail.v2"
)

// ErrNotConfigured SMTP 配置不完整。
var ErrNotConfigured = errors.New("email config missing")

// dialFunc 发送已组装好的邮件，测试中替换。
type dialFunc func(cfg *config.EmailConfig, m *gomail.Message) error

// EmailNotifier 通过 SMTP 发送账号验证与重置密码邮件。
type EmailNotifier struct {
	cfg    *config.EmailConfig
	logger *slog.Logger
	send   dialFunc
}

// NewEmailNotifier 创建一个新的邮件通知器。
func NewEmailNotifier(cfg *config.EmailConfig, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		send:   dialAndSend,
	}
}

func dialAndSend(cfg *config.EmailConfig, m *gomail.Message) error {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass)
	return d.DialAndSend(m)
}

// SendMail 实现 Sender。
func (n *EmailNotifier) SendMail(ctx context.Context, msg *taskqueue.MailMessage) error {
	if n.cfg == nil || n.cfg.SMTPHost == "" || n.cfg.FromEmail == "" {
		return ErrNotConfigured
	}
	if msg == nil || strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, body, err := Render(msg)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.cfg.FromEmail)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := n.send(n.cfg, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("email sent",
		slog.String("mail_id", msg.ID),
		slog.String("kind", string(msg.Kind)))
	return nil
}

// Render 按邮件类型生成主题与 HTML 正文。
func Render(msg *taskqueue.MailMessage) (string, string, error) {
	var subject, heading, intro string
	switch msg.Kind {
	case taskqueue.MailVerify:
		subject = "[Ngeblog] Please verify your account"
		heading = "Please verify your account"
		intro = "Use the code below to verify your account."
	case taskqueue.MailReset:
		subject = "[Ngeblog] Reset your password"
		heading = "Reset your password"
		intro = "Use the code below to reset your password. If you did not request this, you can ignore this email."
	default:
		return "", "", fmt.Errorf("unknown mail kind %q", msg.Kind)
	}

	name := msg.Username
	if name == "" {
		name = msg.To
	}

	linkBlock := ""
	if msg.Link != "" {
		link := html.EscapeString(msg.Link)
		linkBlock = fmt.Sprintf(`<p style="text-align:center;"><a href="%s" style="display:inline-block;padding:12px 20px;background:#2563eb;color:#fff;text-decoration:none;border-radius:8px;">Open link</a></p>
    <p style="font-size:12px;color:#6b7280;">%s</p>`, link, link)
	}

	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8" /></head>
<body style="font-family: Arial, sans-serif; background: #f6f7fb; color: #1f2937;">
  <div style="max-width: 520px; margin: 24px auto; padding: 20px; background: #fff; border-radius: 12px;">
    <h2>%s</h2>
    <p>Hi %s,</p>
    <p>%s</p>
    <div style="font-size: 28px; font-weight: bold; letter-spacing: 3px; text-align: center;">%s</div>
    <p>This code expires at %s.</p>
    %s
  </div>
</body>
</html>`,
		heading,
		html.EscapeString(name),
		intro,
		html.EscapeString(msg.Code),
		formatExpiry(msg.ExpiresAt),
		linkBlock,
	)
	return subject, body, nil
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04 MST")
}
