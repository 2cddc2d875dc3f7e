package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"ngeblog/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	audienceSession = "session"
	audienceAction  = "action"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims 会话令牌载荷：{id, uuid, role}。
type Claims struct {
	jwt.RegisteredClaims
	ID   uint           `json:"id"`
	UUID string         `json:"uuid"`
	Role model.UserRole `json:"role"`
}

// ActionClaims 邮件链接中携带的签名载荷，Subject 为目标用户 uuid。
type ActionClaims struct {
	jwt.RegisteredClaims
	Action string `json:"act"`
}

// Service 负责签发/校验令牌以及密码哈希。
type Service struct {
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// NewService 创建令牌服务。ttl <= 0 时默认 24h，cost 非法时使用 bcrypt.DefaultCost。
func NewService(secret string, ttl time.Duration, cost int) *Service {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{
		secret: []byte(secret),
		ttl:    ttl,
		cost:   cost,
		now:    time.Now,
	}
}

// Sign 签发会话令牌（HS256）。
func (s *Service) Sign(id uint, uuid string, role model.UserRole) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(id), 10),
			Audience:  jwt.ClaimStrings{audienceSession},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ID:   id,
		UUID: uuid,
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse 校验会话令牌，只接受 HS256。
func (s *Service) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	if err := s.parse(raw, claims, audienceSession); err != nil {
		return nil, err
	}
	if claims.UUID == "" || claims.ID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SignAction 签发带用途的链接载荷。
func (s *Service) SignAction(subject string, action string, expiresAt time.Time) (string, error) {
	claims := ActionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audienceAction},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Action: action,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign action: %w", err)
	}
	return signed, nil
}

// ParseAction 校验链接载荷。
func (s *Service) ParseAction(raw string) (*ActionClaims, error) {
	claims := &ActionClaims{}
	if err := s.parse(raw, claims, audienceAction); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Action == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) parse(raw string, claims jwt.Claims, audience string) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpiredToken
		}
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// HashPassword 使用 bcrypt 生成带盐哈希。
func (s *Service) HashPassword(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword 比较明文与哈希。
func (s *Service) ComparePassword(secret string, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
