package otp

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/token"
)

// CodeLength 验证码位数。
const CodeLength = 6

// DefaultTTL 验证码默认有效期。
const DefaultTTL = 24 * time.Hour

// Purpose 验证码用途。
type Purpose string

const (
	PurposeVerify        Purpose = "verify"
	PurposeResetPassword Purpose = "resetPassword"
)

// Valid 判断用途是否可识别。
func (p Purpose) Valid() bool {
	return p == PurposeVerify || p == PurposeResetPassword
}

// Context 是链接中携带的 {purpose, uuid}。
type Context struct {
	Purpose Purpose
	UUID    string
}

// Signer 签发与校验链接载荷。
type Signer interface {
	SignAction(subject string, action string, expiresAt time.Time) (string, error)
	ParseAction(raw string) (*token.ActionClaims, error)
}

// Manager 负责验证码的生成、签发与校验，所有时间均为 UTC。
type Manager struct {
	ttl    time.Duration
	signer Signer
	now    func() time.Time
}

// NewManager 创建验证码管理器。
func NewManager(ttl time.Duration, signer Signer) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		ttl:    ttl,
		signer: signer,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock 替换时钟，主要用于测试。
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = func() time.Time { return now().UTC() }
	return m
}

// Now 返回管理器使用的当前时间（UTC）。
func (m *Manager) Now() time.Time {
	return m.now()
}

// Generate 生成 6 位数字验证码。
func (m *Manager) Generate() (string, error) {
	buf := make([]byte, CodeLength)
	ten := big.NewInt(10)
	for i := range buf {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		buf[i] = '0' + byte(n.Int64())
	}
	return string(buf), nil
}

// Issue 为用户生成新验证码并写入用户对象，返回验证码与过期时间；持久化由调用方负责。
func (m *Manager) Issue(user *model.User) (string, time.Time, error) {
	code, err := m.Generate()
	if err != nil {
		return "", time.Time{}, err
	}
	expiresAt := m.now().Add(m.ttl)
	user.SetOTP(code, expiresAt)
	return code, expiresAt, nil
}

// Verify 校验验证码。过期检查先于比对，过期时无论验证码是否正确都返回 Expired。
// 校验成功不会清除验证码。
func (m *Manager) Verify(user *model.User, code string) error {
	if user == nil || user.IsDeleted() {
		return apperr.NotFound("User does not exist")
	}
	if user.OTPExpiresAt != nil && m.now().After(user.OTPExpiresAt.UTC()) {
		return apperr.Expired("Token Expired")
	}
	if user.OTP == nil || user.OTPExpiresAt == nil {
		return apperr.Unauthorized("Invalid credentials")
	}
	supplied := strings.TrimSpace(code)
	if subtle.ConstantTimeCompare([]byte(*user.OTP), []byte(supplied)) != 1 {
		return apperr.Unauthorized("Invalid credentials")
	}
	return nil
}

// EncodeContext 生成邮件链接使用的签名载荷。
func (m *Manager) EncodeContext(purpose Purpose, userUUID string, expiresAt time.Time) (string, error) {
	if !purpose.Valid() {
		return "", fmt.Errorf("unknown purpose %q", purpose)
	}
	return m.signer.SignAction(userUUID, string(purpose), expiresAt)
}

// DecodeContext 解析链接载荷，只接受签名载荷。
func (m *Manager) DecodeContext(raw string) (Context, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Context{}, apperr.Validation("uuid is required")
	}

	claims, err := m.signer.ParseAction(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return Context{}, apperr.Expired("Token Expired")
		}
		return Context{}, apperr.BadRequest("Invalid verification context")
	}
	purpose := Purpose(claims.Action)
	if !purpose.Valid() || claims.Subject == "" {
		return Context{}, apperr.BadRequest("Invalid verification context")
	}
	return Context{Purpose: purpose, UUID: claims.Subject}, nil
}
