package mailer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/metrics"
	"ngeblog/internal/pkg/otp"
	"ngeblog/internal/pkg/taskqueue"
)

// enqueueTimeout 入队超时，与请求本身的取消解耦。
const enqueueTimeout = 3 * time.Second

// Submitter 邮件入队。
type Submitter interface {
	SubmitMail(ctx context.Context, msg *taskqueue.MailMessage) error
}

// LinkEncoder 生成邮件链接中的签名载荷。
type LinkEncoder interface {
	EncodeContext(purpose otp.Purpose, userUUID string, expiresAt time.Time) (string, error)
}

// Dispatcher 组装验证/重置邮件并写入邮件队列。
//
// 入队失败只记录日志和指标，不影响调用方的 HTTP 响应。
type Dispatcher struct {
	submitter   Submitter
	links       LinkEncoder
	redirectURL string
	logger      *slog.Logger
}

// NewDispatcher 创建邮件分发器。
func NewDispatcher(submitter Submitter, links LinkEncoder, redirectURL string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		submitter:   submitter,
		links:       links,
		redirectURL: strings.TrimRight(redirectURL, "/"),
		logger:      logger,
	}
}

// SendVerification 发送账号验证邮件。
func (d *Dispatcher) SendVerification(ctx context.Context, user *model.User, code string, expiresAt time.Time) {
	d.dispatch(ctx, taskqueue.MailVerify, otp.PurposeVerify, user, code, expiresAt)
}

// SendReset 发送重置密码邮件。
func (d *Dispatcher) SendReset(ctx context.Context, user *model.User, code string, expiresAt time.Time) {
	d.dispatch(ctx, taskqueue.MailReset, otp.PurposeResetPassword, user, code, expiresAt)
}

func (d *Dispatcher) dispatch(ctx context.Context, kind taskqueue.MailKind, purpose otp.Purpose, user *model.User, code string, expiresAt time.Time) {
	if user == nil {
		return
	}

	link, err := d.Link(purpose, user.UUID, expiresAt)
	if err != nil {
		metrics.MailEnqueueFailedTotal.WithLabelValues(string(kind)).Inc()
		d.logger.Error("build mail link failed",
			slog.String("kind", string(kind)),
			slog.String("user_uuid", user.UUID),
			slog.String("error", err.Error()))
		return
	}

	msg := taskqueue.NewMailMessage(kind, user.Email, user.Username, code, link, expiresAt)

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()
	if err := d.submitter.SubmitMail(sendCtx, msg); err != nil {
		metrics.MailEnqueueFailedTotal.WithLabelValues(string(kind)).Inc()
		d.logger.Error("enqueue mail failed",
			slog.String("mail_id", msg.ID),
			slog.String("kind", string(kind)),
			slog.String("user_uuid", user.UUID),
			slog.String("error", err.Error()))
		return
	}
	metrics.MailEnqueuedTotal.WithLabelValues(string(kind)).Inc()
}

// Link 返回 <redirect>/auth/verify/<token>。
func (d *Dispatcher) Link(purpose otp.Purpose, userUUID string, expiresAt time.Time) (string, error) {
	tok, err := d.links.EncodeContext(purpose, userUUID, expiresAt)
	if err != nil {
		return "", err
	}
	return d.redirectURL + "/auth/verify/" + tok, nil
}
