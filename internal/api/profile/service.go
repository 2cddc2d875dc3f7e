package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/storage"
	"ngeblog/internal/store"

	validation "github.com/go-ozzo/ozzo-validation"
)

// imagePrefix 头像在存储中的目录。
const imagePrefix = "profiles"

// UpdateInput 未提供的字段保持不变。
type UpdateInput struct {
	FullName *string `json:"fullName"`
	Bio      *string `json:"bio"`
}

func (in UpdateInput) validate() error {
	if in.FullName != nil {
		err := validation.Validate(strings.TrimSpace(*in.FullName),
			validation.RuneLength(0, 128).Error("Full name must be at most 128 characters"))
		if err != nil {
			return apperr.Validation(err.Error())
		}
	}
	if in.Bio != nil {
		err := validation.Validate(*in.Bio,
			validation.RuneLength(0, 1000).Error("Bio must be at most 1000 characters"))
		if err != nil {
			return apperr.Validation(err.Error())
		}
	}
	return nil
}

// Service 用户资料读取、修改与头像上传。
type Service struct {
	users  store.UserRepository
	images storage.ImageStore
	logger *slog.Logger
}

// NewService 创建资料服务。images 为 nil 时不支持上传头像。
func NewService(users store.UserRepository, images storage.ImageStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, images: images, logger: logger}
}

// Get 返回当前用户的资料。
func (s *Service) Get(ctx context.Context, userID uint) (*model.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("Profile not found")
		}
		return nil, apperr.Internal(err)
	}
	return profile, nil
}

// Update 修改姓名与简介，仅限已验证用户。
func (s *Service) Update(ctx context.Context, userID uint, in UpdateInput) error {
	if _, err := s.loadVerified(ctx, userID); err != nil {
		return err
	}
	if err := in.validate(); err != nil {
		return err
	}

	fields := map[string]interface{}{}
	if in.FullName != nil {
		fields["full_name"] = strings.TrimSpace(*in.FullName)
	}
	if in.Bio != nil {
		fields["bio"] = *in.Bio
	}
	if err := s.users.UpdateProfile(ctx, userID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Profile not found")
		}
		return apperr.Internal(err)
	}
	return nil
}

// UploadImage 上传新头像并替换旧图，返回图片 URL。
func (s *Service) UploadImage(ctx context.Context, userID uint, upload *storage.Upload) (string, error) {
	if _, err := s.loadVerified(ctx, userID); err != nil {
		return "", err
	}
	if upload == nil {
		return "", apperr.Validation("Please upload an image.")
	}

	previous := ""
	if profile, err := s.users.GetProfile(ctx, userID); err == nil {
		previous = profile.ProfileImg
	}

	url, err := storage.Save(ctx, s.images, imagePrefix, upload)
	if err != nil {
		return "", storage.AsAppError(err)
	}

	if err := s.users.UpdateProfile(ctx, userID, map[string]interface{}{"profile_img": url}); err != nil {
		s.discard(ctx, url)
		if errors.Is(err, store.ErrNotFound) {
			return "", apperr.NotFound("Profile not found")
		}
		return "", apperr.Internal(err)
	}

	if previous != "" && previous != url {
		s.discard(ctx, previous)
	}
	return url, nil
}

// discard 删除不再引用的图片，失败只记录日志。
func (s *Service) discard(ctx context.Context, url string) {
	if s.images == nil {
		return
	}
	if err := s.images.Delete(ctx, url); err != nil {
		s.logger.Warn("delete profile image failed",
			slog.String("url", url),
			slog.String("error", err.Error()))
	}
}

func (s *Service) loadVerified(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound("User does not exist")
		}
		return nil, apperr.Internal(err)
	}
	if user.IsDeleted() {
		return nil, apperr.NotFound("User does not exist")
	}
	if !user.IsVerified() {
		return nil, apperr.Forbidden("User not verified")
	}
	return user, nil
}
