package store

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

const (
	// mysqlDuplicateEntry 是 MySQL 唯一约束冲突的错误码。
	mysqlDuplicateEntry = 1062
	mysqlDeadlock       = 1213
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate key")
	ErrDuplicateUsername = errors.New("duplicate username")
	ErrDuplicateEmail    = errors.New("duplicate email")
)

// translate 将驱动/ORM 错误转换为存储层错误，其它错误原样返回。
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		switch {
		case strings.Contains(me.Message, "uk_users_username"):
			return ErrDuplicateUsername
		case strings.Contains(me.Message, "uk_users_email"):
			return ErrDuplicateEmail
		default:
			return ErrDuplicate
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// IsDuplicate 判断错误是否为任意唯一约束冲突。
func isMySQLError(err error, number uint16) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == number
}

func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate) || errors.Is(err, ErrDuplicateUsername) || errors.Is(err, ErrDuplicateEmail)
}
