package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/metrics"
	"ngeblog/internal/pkg/otp"
	"ngeblog/internal/pkg/token"
	"ngeblog/internal/store"

	"github.com/google/uuid"
)

// Notifier 发送验证/重置邮件，调用方不关心投递结果。
type Notifier interface {
	SendVerification(ctx context.Context, user *model.User, code string, expiresAt time.Time)
	SendReset(ctx context.Context, user *model.User, code string, expiresAt time.Time)
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// LoginInput Username 既可以是用户名也可以是邮箱。
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyInput UUID 为邮件链接中的载荷。
type VerifyInput struct {
	UUID  string `json:"uuid"`
	Token string `json:"token"`
}

type ResetPasswordInput struct {
	UUID            string `json:"uuid"`
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type ChangeUsernameInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

// Session 登录/注册结果。
type Session struct {
	Token string
	User  *model.User
}

// Service 账号注册、登录、验证与资料变更。
type Service struct {
	users  store.UserRepository
	tokens *token.Service
	otps   *otp.Manager
	notify Notifier
	logger *slog.Logger
}

// NewService 创建认证服务。
func NewService(users store.UserRepository, tokens *token.Service, otps *otp.Manager, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		otps:   otps,
		notify: notifier,
		logger: logger,
	}
}

// Register 创建未验证用户及其空资料，签发会话令牌并发送验证邮件。
// 用户名/邮箱唯一性由数据库唯一索引保证。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = normalizeEmail(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if err := in.validate(); err != nil {
		return nil, err
	}

	hash, err := s.tokens.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	user := &model.User{
		UUID:     uuid.NewString(),
		Username: in.Username,
		Email:    in.Email,
		Phone:    in.Phone,
		Password: hash,
		Role:     model.RoleStandard,
		Status:   model.StatusUnverified,
	}
	code, expiresAt, err := s.otps.Issue(user)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := s.users.CreateWithProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateUsername):
			return nil, apperr.Conflict("Username already exists")
		case errors.Is(err, store.ErrDuplicateEmail):
			return nil, apperr.Conflict("Email already exists")
		case store.IsDuplicate(err):
			return nil, apperr.Conflict("User already exists")
		}
		return nil, apperr.Internal(err)
	}

	tok, err := s.tokens.Sign(user.ID, user.UUID, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.notify.SendVerification(ctx, user, code, expiresAt)
	s.event("register")
	s.logger.Info("user registered", slog.String("user_uuid", user.UUID))
	return &Session{Token: tok, User: user}, nil
}

// Login 用户名或邮箱登录。
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := in.validate(); err != nil {
		return nil, err
	}

	var (
		user *model.User
		err  error
	)
	if isEmail(in.Username) {
		user, err = s.users.FindByEmail(ctx, normalizeEmail(in.Username))
	} else {
		user, err = s.users.FindByUsername(ctx, in.Username)
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound()
		}
		return nil, apperr.Internal(err)
	}
	if user.IsDeleted() {
		return nil, errUserNotFound()
	}
	if !s.tokens.ComparePassword(in.Password, user.Password) {
		s.event("login_failed")
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	tok, err := s.tokens.Sign(user.ID, user.UUID, user.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.event("login")
	return &Session{Token: tok, User: user}, nil
}

// KeepLogin 按令牌中的 uuid 重新加载用户。
func (s *Service) KeepLogin(ctx context.Context, userUUID string) (*model.User, error) {
	user, err := s.users.FindByUUID(ctx, userUUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound()
		}
		return nil, apperr.Internal(err)
	}
	if user.IsDeleted() {
		return nil, errUserNotFound()
	}
	return user, nil
}

// VerifyAccount 校验验证码并将账号置为已验证。
func (s *Service) VerifyAccount(ctx context.Context, in VerifyInput) error {
	if err := in.validate(); err != nil {
		return err
	}
	user, err := s.userFromContext(ctx, in.UUID, otp.PurposeVerify)
	if err != nil {
		return err
	}
	if err := s.otps.Verify(user, in.Token); err != nil {
		s.event("verify_failed")
		return err
	}

	user.ClearOTP()
	user.Status = model.StatusVerified
	if err := s.update(ctx, user.ID, map[string]interface{}{
		"status":         model.StatusVerified,
		"otp":            nil,
		"otp_expires_at": nil,
	}); err != nil {
		return err
	}
	s.event("verify")
	return nil
}

// ResetPassword 校验验证码并替换密码。
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if err := (VerifyInput{UUID: in.UUID, Token: in.Token}).validate(); err != nil {
		return err
	}
	if err := in.validatePassword(); err != nil {
		return err
	}
	user, err := s.userFromContext(ctx, in.UUID, otp.PurposeResetPassword)
	if err != nil {
		return err
	}
	if err := s.otps.Verify(user, in.Token); err != nil {
		s.event("reset_failed")
		return err
	}

	hash, err := s.tokens.HashPassword(in.NewPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	user.ClearOTP()
	if err := s.update(ctx, user.ID, map[string]interface{}{
		"password":       hash,
		"otp":            nil,
		"otp_expires_at": nil,
	}); err != nil {
		return err
	}
	s.event("reset_password")
	return nil
}

// userFromContext 解析链接载荷，用途与接口不符时返回 BadRequest。
func (s *Service) userFromContext(ctx context.Context, raw string, want otp.Purpose) (*model.User, error) {
	vc, err := s.otps.DecodeContext(raw)
	if err != nil {
		return nil, err
	}
	if vc.Purpose != want {
		return nil, apperr.BadRequest("Invalid verification context")
	}
	user, err := s.users.FindByUUID(ctx, vc.UUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errUserNotFound()
		}
		return nil, apperr.Internal(err)
	}
	return user, nil
}

// RequestOtp 为当前用户重新生成验证码，已验证账号不允许。
func (s *Service) RequestOtp(ctx context.Context, userID uint) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsVerified() {
		return apperr.Forbidden("Your account has been verified")
	}
	if err := s.reissue(ctx, user, nil); err != nil {
		return err
	}
	s.notify.SendVerification(ctx, user, *user.OTP, *user.OTPExpiresAt)
	s.event("request_otp")
	return nil
}

func (s *Service) ChangeUsername(ctx context.Context, userID uint, in ChangeUsernameInput) error {
	user, err := s.loadVerified(ctx, userID)
	if err != nil {
		return err
	}
	in.Username = strings.TrimSpace(in.Username)
	if err := in.validate(); err != nil {
		return err
	}
	if !s.tokens.ComparePassword(in.Password, user.Password) {
		return apperr.Unauthorized("Invalid credentials")
	}
	if user.Username == in.Username {
		return apperr.BadRequest("Please insert new username")
	}

	err = s.users.Update(ctx, user.ID, map[string]interface{}{"username": in.Username})
	if store.IsDuplicate(err) {
		return apperr.Conflict("Username is already taken")
	}
	if err != nil {
		return internalOrNotFound(err)
	}
	return nil
}

// ChangeEmail 更换邮箱后账号回到未验证状态，并向新邮箱发送验证码。
func (s *Service) ChangeEmail(ctx context.Context, userID uint, email string) error {
	user, err := s.loadVerified(ctx, userID)
	if err != nil {
		return err
	}
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	if user.Email == email {
		return apperr.BadRequest("Please input new email")
	}

	err = s.reissue(ctx, user, map[string]interface{}{
		"email":  email,
		"status": model.StatusUnverified,
	})
	if store.IsDuplicate(err) {
		return apperr.Conflict("Email is already taken")
	}
	if err != nil {
		return err
	}
	user.Email = email
	user.Status = model.StatusUnverified

	s.notify.SendVerification(ctx, user, *user.OTP, *user.OTPExpiresAt)
	s.event("change_email")
	return nil
}

func (s *Service) ChangePhone(ctx context.Context, userID uint, phone string) error {
	user, err := s.loadVerified(ctx, userID)
	if err != nil {
		return err
	}
	phone = strings.TrimSpace(phone)
	if err := validatePhone(phone); err != nil {
		return err
	}
	return s.update(ctx, user.ID, map[string]interface{}{"phone": phone})
}

func (s *Service) ChangePassword(ctx context.Context, userID uint, in ChangePasswordInput) error {
	user, err := s.loadVerified(ctx, userID)
	if err != nil {
		return err
	}
	if err := in.validate(); err != nil {
		return err
	}
	if !s.tokens.ComparePassword(in.CurrentPassword, user.Password) {
		return apperr.Unauthorized("Invalid Password")
	}
	hash, err := s.tokens.HashPassword(in.NewPassword)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.update(ctx, user.ID, map[string]interface{}{"password": hash}); err != nil {
		return err
	}
	s.event("change_password")
	return nil
}

// ForgotPassword 无论账号状态都会重新生成验证码并发送重置邮件。
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Email does not exist")
		}
		return apperr.Internal(err)
	}
	if err := s.reissue(ctx, user, nil); err != nil {
		return err
	}
	s.notify.SendReset(ctx, user, *user.OTP, *user.OTPExpiresAt)
	s.event("forgot_password")
	return nil
}

// DeleteAccount 软删除，仅修改状态。
func (s *Service) DeleteAccount(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, user.ID, map[string]interface{}{"status": model.StatusDeleted}); err != nil {
		return nil, err
	}
	user.Status = model.StatusDeleted
	s.event("delete_account")
	s.logger.Info("account deleted", slog.String("user_uuid", user.UUID))
	return user, nil
}

// reissue 生成新验证码并与 extra 一起写库。
func (s *Service) reissue(ctx context.Context, user *model.User, extra map[string]interface{}) error {
	if _, _, err := s.otps.Issue(user); err != nil {
		return apperr.Internal(err)
	}
	fields := map[string]interface{}{
		"otp":            *user.OTP,
		"otp_expires_at": *user.OTPExpiresAt,
	}
	for k, v := range extra {
		fields[k] = v
	}
	err := s.users.Update(ctx, user.ID, fields)
	if store.IsDuplicate(err) {
		return err
	}
	if err != nil {
		return internalOrNotFound(err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, internalOrNotFound(err)
	}
	if user.IsDeleted() {
		return nil, errUserNotFound()
	}
	return user, nil
}

func (s *Service) loadVerified(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Status == model.StatusUnverified {
		return nil, apperr.Forbidden("User not verified")
	}
	return user, nil
}

func (s *Service) update(ctx context.Context, id uint, fields map[string]interface{}) error {
	if err := s.users.Update(ctx, id, fields); err != nil {
		return internalOrNotFound(err)
	}
	return nil
}

func (s *Service) event(name string) {
	metrics.AuthEventsTotal.WithLabelValues(name).Inc()
}

func internalOrNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return errUserNotFound()
	}
	return apperr.Internal(err)
}

func errUserNotFound() error {
	return apperr.NotFound("User does not exist")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
