package store

import (
	"context"
	"errors"
	"testing"

	"ngeblog/internal/model"

	"github.com/DATA-DOG/go-sqlmock"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: gormLogger.Default.LogMode(gormLogger.Silent)})
	require.NoError(t, err)
	return db, mock
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"not found", gorm.ErrRecordNotFound, ErrNotFound},
		{"username", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'users.uk_users_username'"}, ErrDuplicateUsername},
		{"email", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'users.uk_users_email'"}, ErrDuplicateEmail},
		{"other unique", &mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry '1-2' for key 'likes.uk_likes_blog_user'"}, ErrDuplicate},
		{"gorm duplicated", gorm.ErrDuplicatedKey, ErrDuplicate},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, translate(tc.in), tc.want)
		})
	}

	other := errors.New("connection refused")
	assert.Equal(t, other, translate(other))
	assert.NoError(t, translate(nil))
}

func TestCreateWithProfile_DuplicateUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'users.uk_users_username'"})
	mock.ExpectRollback()

	err := repo.CreateWithProfile(context.Background(), &model.User{
		UUID:     "0b6c2f6e-3f5e-4f43-9a43-6c1c9e1f7a10",
		Username: "alice",
		Email:    "alice@example.com",
		Password: "hash",
	})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.True(t, IsDuplicate(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithProfile_CreatesProfileInSameTransaction(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `profiles`").WillReturnResult(sqlmock.NewResult(3, 1))
	mock.ExpectCommit()

	user := &model.User{UUID: "u-7", Username: "alice", Email: "alice@example.com", Password: "hash"}
	require.NoError(t, repo.CreateWithProfile(context.Background(), user))
	assert.Equal(t, uint(7), user.ID)
	require.NotNil(t, user.Profile)
	assert.Equal(t, uint(7), user.Profile.UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithProfile_ProfileFailureRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `users`").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `profiles`").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.CreateWithProfile(context.Background(), &model.User{UUID: "u-7", Username: "alice", Email: "a@b.c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE email = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "uuid", "username", "email"}))

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_DuplicateEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `users` SET").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry 'b@b.c' for key 'users.uk_users_email'"})
	mock.ExpectRollback()

	err := repo.Update(context.Background(), 1, map[string]interface{}{"email": "b@b.c"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleLike_InsertThenDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlogRepository(db)

	// 第一次：不存在，插入
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `likes` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}))
	mock.ExpectExec("INSERT INTO `likes`").WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectCommit()

	liked, like, err := repo.ToggleLike(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.True(t, liked)
	require.NotNil(t, like)
	assert.Equal(t, uint(11), like.ID)

	// 第二次：已存在，删除
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `likes` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}).AddRow(11, 5, 9))
	mock.ExpectExec("DELETE FROM `likes` WHERE blog_id = \\? AND user_id = \\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	liked, like, err = repo.ToggleLike(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Nil(t, like)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleLike_ConcurrentInsertCountsAsLiked(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `likes` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}))
	mock.ExpectExec("INSERT INTO `likes`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1062, Message: "Duplicate entry '5-9' for key 'uk_likes_blog_user'"})
	mock.ExpectQuery("SELECT \\* FROM `likes` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}).AddRow(12, 5, 9))
	mock.ExpectCommit()

	liked, like, err := repo.ToggleLike(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.True(t, liked)
	require.NotNil(t, like)
	assert.Equal(t, uint(12), like.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestToggleSave_RetriesOnceAfterDeadlock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlogRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `saves` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}))
	mock.ExpectExec("INSERT INTO `saves`").
		WillReturnError(&mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT \\* FROM `saves` WHERE blog_id = \\? AND user_id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "blog_id", "user_id"}))
	mock.ExpectExec("INSERT INTO `saves`").WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectCommit()

	saved, save, err := repo.ToggleSave(context.Background(), 5, 9)
	require.NoError(t, err)
	assert.True(t, saved)
	require.NotNil(t, save)
	assert.Equal(t, uint(21), save.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_ReturnsTotalAndAuthor(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlogRepository(db)

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `blogs`").
		WillReturnRows(sqlmock.NewRows([]string{"count(*)"}).AddRow(15))
	mock.ExpectQuery("SELECT blogs\\.\\*").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "title", "content", "category_id", "status", "blog_img", "total_likes", "author_username", "author_profile_img"}).
			AddRow(11, 2, "t", "c", 1, 1, "", 4, "alice", "https://img/a.png"))

	items, total, err := repo.List(context.Background(), BlogFilter{Offset: 10, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(15), total)
	require.Len(t, items, 1)
	assert.Equal(t, int64(4), items[0].TotalLikes)
	assert.Equal(t, "alice", items[0].User.Username)
	assert.Equal(t, "https://img/a.png", items[0].User.ProfileImg)
	assert.NoError(t, mock.ExpectationsWereMet())
}
