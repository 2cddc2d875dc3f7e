package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	appcfg "ngeblog/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	deletes []string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deletes = append(f.deletes, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	key := ObjectKey("/blogs/", "Photo.JPG")
	assert.True(t, strings.HasPrefix(key, "blogs/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	assert.NotContains(t, ObjectKey("", "noext"), "/")
}

func TestPublicBase(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com", publicBase(appcfg.StorageConfig{Bucket: "b", PublicURL: "https://cdn.example.com/"}, "us-east-1"))
	assert.Equal(t, "http://127.0.0.1:9000/b", publicBase(appcfg.StorageConfig{Bucket: "b", Endpoint: "http://127.0.0.1:9000"}, "us-east-1"))
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", publicBase(appcfg.StorageConfig{Bucket: "b"}, "eu-west-1"))
}

func TestS3Store_PutAndDelete(t *testing.T) {
	api := &fakeS3{}
	s := &S3Store{client: api, bucket: "images", baseURL: "http://minio:9000/images"}

	url, err := s.Put(context.Background(), "profiles", "me.png", "image/png", strings.NewReader("png"), 3)
	require.NoError(t, err)
	require.Len(t, api.puts, 1)
	assert.Equal(t, "images", aws.ToString(api.puts[0].Bucket))
	assert.Equal(t, "image/png", aws.ToString(api.puts[0].ContentType))
	assert.True(t, strings.HasPrefix(url, "http://minio:9000/images/profiles/"))

	require.NoError(t, s.Delete(context.Background(), url))
	require.Len(t, api.deletes, 1)
	assert.Equal(t, aws.ToString(api.puts[0].Key), api.deletes[0])

	// 外部 URL 不处理
	require.NoError(t, s.Delete(context.Background(), "https://elsewhere.example.com/x.png"))
	assert.Len(t, api.deletes, 1)
}

func TestS3Store_PutError(t *testing.T) {
	s := &S3Store{client: &fakeS3{err: errors.New("denied")}, bucket: "images", baseURL: "http://minio:9000/images"}
	_, err := s.Put(context.Background(), "blogs", "a.png", "", strings.NewReader("x"), 0)
	assert.ErrorContains(t, err, "denied")
}

func TestNewS3Store_Disabled(t *testing.T) {
	_, err := NewS3Store(context.Background(), appcfg.StorageConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSave_ChecksUpload(t *testing.T) {
	api := &fakeS3{}
	s := &S3Store{client: api, bucket: "images", baseURL: "http://minio:9000/images"}
	ctx := context.Background()

	_, err := Save(ctx, s, "blogs", &Upload{Filename: "a.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrNotImage)

	_, err = Save(ctx, s, "blogs", &Upload{Filename: "a.png", ContentType: "image/png", Size: MaxImageSize + 1, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Save(ctx, nil, "blogs", &Upload{Filename: "a.png", ContentType: "image/png", Size: 1, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, ErrDisabled)

	url, err := Save(ctx, s, "blogs", &Upload{Filename: "a.png", ContentType: "IMAGE/PNG", Size: 1, Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://minio:9000/images/blogs/"))
	assert.Len(t, api.puts, 1)
}
