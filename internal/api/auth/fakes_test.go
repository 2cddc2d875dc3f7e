package auth

import (
	"context"
	"sync"
	"time"

	"ngeblog/internal/model"
	"ngeblog/internal/store"
)

// memUsers 内存版 UserRepository，模拟唯一索引。
type memUsers struct {
	mu     sync.Mutex
	nextID uint
	byID   map[uint]*model.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[uint]*model.User{}}
}

func clone(u *model.User) *model.User {
	cp := *u
	if u.OTP != nil {
		code := *u.OTP
		cp.OTP = &code
	}
	if u.OTPExpiresAt != nil {
		exp := *u.OTPExpiresAt
		cp.OTPExpiresAt = &exp
	}
	if u.Profile != nil {
		p := *u.Profile
		cp.Profile = &p
	}
	return &cp
}

func (m *memUsers) conflict(id uint, username, email string) error {
	for _, u := range m.byID {
		if u.ID == id {
			continue
		}
		if username != "" && u.Username == username {
			return store.ErrDuplicateUsername
		}
		if email != "" && u.Email == email {
			return store.ErrDuplicateEmail
		}
	}
	return nil
}

func (m *memUsers) CreateWithProfile(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.conflict(0, user.Username, user.Email); err != nil {
		return err
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	user.Profile = &model.Profile{ID: user.ID, UserID: user.ID}
	m.byID[user.ID] = clone(user)
	return nil
}

func (m *memUsers) find(match func(*model.User) bool) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.ID == id })
}

func (m *memUsers) FindByUUID(_ context.Context, uuid string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.UUID == uuid })
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Username == username })
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return m.find(func(u *model.User) bool { return u.Email == email })
}

func (m *memUsers) Update(_ context.Context, id uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	username, _ := fields["username"].(string)
	email, _ := fields["email"].(string)
	if err := m.conflict(id, username, email); err != nil {
		return err
	}
	for k, v := range fields {
		switch k {
		case "username":
			u.Username = v.(string)
		case "email":
			u.Email = v.(string)
		case "phone":
			u.Phone = v.(string)
		case "password":
			u.Password = v.(string)
		case "status":
			u.Status = v.(model.UserStatus)
		case "otp":
			if v == nil {
				u.OTP = nil
			} else {
				code := v.(string)
				u.OTP = &code
			}
		case "otp_expires_at":
			if v == nil {
				u.OTPExpiresAt = nil
			} else {
				exp := v.(time.Time)
				u.OTPExpiresAt = &exp
			}
		}
	}
	return nil
}

func (m *memUsers) GetProfile(_ context.Context, userID uint) (*model.Profile, error) {
	u, err := m.FindByID(context.Background(), userID)
	if err != nil {
		return nil, err
	}
	return u.Profile, nil
}

func (m *memUsers) UpdateProfile(context.Context, uint, map[string]interface{}) error {
	return nil
}

func (m *memUsers) get(id uint) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.byID[id])
}

type sentMail struct {
	kind string
	to   string
	code string
	exp  time.Time
	uuid string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *captureNotifier) SendVerification(_ context.Context, user *model.User, code string, exp time.Time) {
	n.record("verify", user, code, exp)
}

func (n *captureNotifier) SendReset(_ context.Context, user *model.User, code string, exp time.Time) {
	n.record("reset", user, code, exp)
}

func (n *captureNotifier) record(kind string, user *model.User, code string, exp time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: kind, to: user.Email, code: code, exp: exp, uuid: user.UUID})
}

func (n *captureNotifier) last() sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return sentMail{}
	}
	return n.sent[len(n.sent)-1]
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}
