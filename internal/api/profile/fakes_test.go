package profile

import (
	"context"
	"errors"
	"io"
	"sync"

	"ngeblog/internal/model"
	"ngeblog/internal/store"
)

// memUsers 只实现资料相关方法的内存仓储。
type memUsers struct {
	mu       sync.Mutex
	users    map[uint]*model.User
	profiles map[uint]*model.Profile
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[uint]*model.User{}, profiles: map[uint]*model.Profile{}}
}

func (m *memUsers) add(id uint, status model.UserStatus) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{ID: id, UUID: "uuid-" + string(rune('a'+id)), Username: "user", Status: status, Role: model.RoleStandard}
	m.users[id] = u
	m.profiles[id] = &model.Profile{ID: id, UserID: id}
	return u
}

func (m *memUsers) CreateWithProfile(context.Context, *model.User) error {
	return errors.New("not supported")
}

func (m *memUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByUUID(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByUsername(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func (m *memUsers) FindByEmail(context.Context, string) (*model.User, error) {
	return nil, store.ErrNotFound
}

func (m *memUsers) Update(context.Context, uint, map[string]interface{}) error {
	return nil
}

func (m *memUsers) GetProfile(_ context.Context, userID uint) (*model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memUsers) UpdateProfile(_ context.Context, userID uint, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range fields {
		switch k {
		case "full_name":
			p.FullName = v.(string)
		case "bio":
			p.Bio = v.(string)
		case "profile_img":
			p.ProfileImg = v.(string)
		}
	}
	return nil
}

// memImages 记录上传与删除的图片存储。
type memImages struct {
	mu      sync.Mutex
	n       int
	objects map[string][]byte
	deleted []string
}

func newMemImages() *memImages {
	return &memImages{objects: map[string][]byte{}}
}

func (m *memImages) Put(_ context.Context, prefix, filename, _ string, body io.Reader, _ int64) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	url := "https://img.example.com/" + prefix + "/" + string(rune('0'+m.n)) + "-" + filename
	m.objects[url] = data
	return url, nil
}

func (m *memImages) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, url)
	m.deleted = append(m.deleted, url)
	return nil
}
