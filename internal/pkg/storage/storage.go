package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	appcfg "ngeblog/internal/config"
	"ngeblog/internal/pkg/apperr"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// MaxImageSize 单张图片上限。
const MaxImageSize = 5 << 20

var (
	// ErrDisabled 未配置存储桶。
	ErrDisabled = errors.New("image storage disabled")
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("image exceeds size limit")
)

// Upload 一次图片上传。
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Check 校验类型与大小。
func (u *Upload) Check() error {
	if !strings.HasPrefix(strings.ToLower(u.ContentType), "image/") {
		return ErrNotImage
	}
	if u.Size > MaxImageSize {
		return ErrTooLarge
	}
	return nil
}

// FromFileHeader 打开 multipart 文件，调用方负责关闭返回的 Closer。
func FromFileHeader(fh *multipart.FileHeader) (*Upload, io.Closer, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open upload: %w", err)
	}
	return &Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	}, f, nil
}

// Save 将上传写入 store 的 prefix 目录。
func Save(ctx context.Context, store ImageStore, prefix string, u *Upload) (string, error) {
	if store == nil {
		return "", ErrDisabled
	}
	if err := u.Check(); err != nil {
		return "", err
	}
	return store.Put(ctx, prefix, u.Filename, u.ContentType, u.Body, u.Size)
}

// ImageStore 图片存储。
type ImageStore interface {
	// Put 上传对象并返回对外访问 URL。
	Put(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error)
	// Delete 按 Put 返回的 URL 删除对象，URL 不属于本存储时忽略。
	Delete(ctx context.Context, url string) error
}

type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store 基于 S3 兼容服务（AWS S3 / MinIO）的图片存储。
type S3Store struct {
	client  objectAPI
	bucket  string
	baseURL string
}

// NewS3Store 根据配置创建存储，Bucket 为空时返回 ErrDisabled。
func NewS3Store(ctx context.Context, cfg appcfg.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, ErrDisabled
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: publicBase(cfg, region),
	}, nil
}

func publicBase(cfg appcfg.StorageConfig, region string) string {
	switch {
	case cfg.PublicURL != "":
		return strings.TrimRight(cfg.PublicURL, "/")
	case cfg.Endpoint != "":
		return strings.TrimRight(cfg.Endpoint, "/") + "/" + cfg.Bucket
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}
}

// Put 实现 ImageStore。
func (s *S3Store) Put(ctx context.Context, prefix, filename, contentType string, body io.Reader, size int64) (string, error) {
	key := ObjectKey(prefix, filename)
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.baseURL + "/" + key, nil
}

// Delete 实现 ImageStore。
func (s *S3Store) Delete(ctx context.Context, url string) error {
	key, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok || key == "" {
		return nil
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// ObjectKey 生成 prefix/<uuid><ext>，保留原文件扩展名。
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	key := uuid.NewString() + ext
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// AsAppError 将上传相关错误转换为对外错误。
func AsAppError(err error) error {
	switch {
	case errors.Is(err, ErrDisabled):
		return apperr.BadRequest("Image upload is not available")
	case errors.Is(err, ErrNotImage):
		return apperr.Validation("Only image files are allowed")
	case errors.Is(err, ErrTooLarge):
		return apperr.Validation("Image must be at most 5MB")
	default:
		return apperr.Internal(err)
	}
}
