package model

import "time"

// UserStatus 账号状态。deleted 为终态。
type UserStatus int

const (
	StatusUnverified UserStatus = 0 // 未验证邮箱
	StatusVerified   UserStatus = 1 // 已验证
	StatusDeleted    UserStatus = 2 // 软删除
)

// UserRole 用户角色。
type UserRole int

const (
	RoleElevated UserRole = 1
	RoleStandard UserRole = 2
)

// User 表示系统用户。
//
// Password、OTP 与过期时间不参与 JSON 序列化，任何返回给客户端的用户对象都不含这些字段。
type User struct {
	ID           uint       `gorm:"primaryKey" json:"id"`                                // 内部 ID
	UUID         string     `gorm:"type:char(36);uniqueIndex:uk_users_uuid" json:"uuid"` // 对外标识
	Username     string     `gorm:"type:varchar(64);uniqueIndex:uk_users_username" json:"username"`
	Email        string     `gorm:"type:varchar(191);uniqueIndex:uk_users_email" json:"email"`
	Phone        string     `gorm:"type:varchar(16)" json:"phone"`
	Password     string     `gorm:"not null" json:"-"`                                   // bcrypt 哈希
	Role         UserRole   `gorm:"default:2" json:"role"`                               // 1: elevated, 2: standard
	Status       UserStatus `gorm:"default:0" json:"status"`                             // 0: unverified, 1: verified, 2: deleted
	OTP          *string    `gorm:"column:otp;type:varchar(16)" json:"-"`                // 一次性验证码
	OTPExpiresAt *time.Time `gorm:"column:otp_expires_at" json:"-"`                      // 验证码过期时间（UTC）
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Profile *Profile `gorm:"foreignKey:UserID" json:"profile,omitempty"`
}

// SetOTP 同时写入验证码与过期时间。
func (u *User) SetOTP(code string, expiresAt time.Time) {
	exp := expiresAt.UTC()
	u.OTP = &code
	u.OTPExpiresAt = &exp
}

// ClearOTP 同时清空验证码与过期时间。
func (u *User) ClearOTP() {
	u.OTP = nil
	u.OTPExpiresAt = nil
}

func (u *User) IsDeleted() bool {
	return u.Status == StatusDeleted
}

func (u *User) IsVerified() bool {
	return u.Status == StatusVerified
}

// Profile 是 User 的一对一扩展，随用户一起创建。
type Profile struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"uniqueIndex;not null" json:"userId"`
	FullName   string    `gorm:"type:varchar(128)" json:"fullName"`
	Bio        string    `gorm:"type:text" json:"bio"`
	ProfileImg string    `gorm:"type:varchar(512)" json:"profileImg"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
