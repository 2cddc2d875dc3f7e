package profile

import (
	"context"
	"strings"
	"testing"

	"ngeblog/internal/model"
	"ngeblog/internal/pkg/apperr"
	"ngeblog/internal/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func pngUpload(name string) *storage.Upload {
	return &storage.Upload{Filename: name, ContentType: "image/png", Size: 3, Body: strings.NewReader("png")}
}

func TestService_Get(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusUnverified)
	svc := NewService(users, nil, nil)

	p, err := svc.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(1), p.UserID)

	_, err = svc.Get(context.Background(), 99)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_UpdateRequiresVerified(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusUnverified)
	svc := NewService(users, nil, nil)

	err := svc.Update(context.Background(), 1, UpdateInput{FullName: strPtr("Alice")})
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
}

func TestService_UpdatePartial(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusVerified)
	svc := NewService(users, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Update(ctx, 1, UpdateInput{FullName: strPtr("  Alice Doe "), Bio: strPtr("hello")}))
	require.NoError(t, svc.Update(ctx, 1, UpdateInput{Bio: strPtr("updated")}))

	p, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Alice Doe", p.FullName)
	assert.Equal(t, "updated", p.Bio)
}

func TestService_UpdateValidation(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusVerified)
	svc := NewService(users, nil, nil)

	err := svc.Update(context.Background(), 1, UpdateInput{Bio: strPtr(strings.Repeat("x", 1001))})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, "Bio must be at most 1000 characters", err.Error())
}

func TestService_UploadImageReplacesPrevious(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusVerified)
	images := newMemImages()
	svc := NewService(users, images, nil)
	ctx := context.Background()

	first, err := svc.UploadImage(ctx, 1, pngUpload("a.png"))
	require.NoError(t, err)
	second, err := svc.UploadImage(ctx, 1, pngUpload("b.png"))
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	p, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, second, p.ProfileImg)
	assert.Equal(t, []string{first}, images.deleted)
}

func TestService_UploadImageErrors(t *testing.T) {
	users := newMemUsers()
	users.add(1, model.StatusVerified)
	users.add(2, model.StatusUnverified)
	ctx := context.Background()

	disabled := NewService(users, nil, nil)
	_, err := disabled.UploadImage(ctx, 1, pngUpload("a.png"))
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))

	svc := NewService(users, newMemImages(), nil)
	_, err = svc.UploadImage(ctx, 2, pngUpload("a.png"))
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.UploadImage(ctx, 1, &storage.Upload{Filename: "a.txt", ContentType: "text/plain", Size: 1, Body: strings.NewReader("x")})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UploadImage(ctx, 1, nil)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
