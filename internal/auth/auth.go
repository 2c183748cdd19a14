package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// =============================================================================
// 会话令牌与 API Key
// =============================================================================

// APIKeyPrefix API Key 固定前缀
const APIKeyPrefix = "mda_"

// DefaultSessionTTL 会话有效期
const DefaultSessionTTL = 7 * 24 * time.Hour

// 认证方式
const (
	MethodSession = "session"
	MethodAPIKey  = "api_key"
)

var (
	// ErrNoSecret 未配置签名密钥
	ErrNoSecret = errors.New("session secret is not configured")
	// ErrInvalidToken 令牌无效或已过期
	ErrInvalidToken = errors.New("invalid or expired session token")
)

// SessionClaims 会话令牌载荷
type SessionClaims struct {
	jwt.RegisteredClaims
}

// Identity 认证结果
type Identity struct {
	UserID string
	Method string
}

// SessionIssuer 签发与校验 HS256 会话令牌
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionIssuer ttl <= 0 时使用 7 天
func NewSessionIssuer(secret string, ttl time.Duration, issuer string) *SessionIssuer {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionIssuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// Enabled 是否配置了密钥
func (s *SessionIssuer) Enabled() bool { return len(s.secret) > 0 }

// Issue 为用户签发会话令牌
func (s *SessionIssuer) Issue(userID string) (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrNoSecret
	}
	if userID == "" {
		return "", time.Time{}, errors.New("user id is required")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := SessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   userID,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return token, expires, nil
}

// Verify 校验令牌并返回用户 ID
func (s *SessionIssuer) Verify(token string) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	var claims SessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// GenerateAPIKey 生成 mda_<签名16位>_<随机8字节hex> 格式的 API Key
func GenerateAPIKey(secret, userID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(userID + ":" + hex.EncodeToString(nonce)))
	signature := hex.EncodeToString(mac.Sum(nil))[:16]

	suffix := make([]byte, 8)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	return APIKeyPrefix + signature + "_" + hex.EncodeToString(suffix), nil
}

// APIKeyUser 校验 API Key 格式，返回对应的用户标识。
// 只检查格式，不查询已签发的 key。
func APIKeyUser(key string) (string, bool) {
	if !strings.HasPrefix(key, APIKeyPrefix) || len(key) <= 20 {
		return "", false
	}
	return "api_user_" + key[:8], true
}

// Authenticator 依次尝试会话令牌与 API Key
type Authenticator struct {
	sessions *SessionIssuer
}

// NewAuthenticator sessions 可为 nil
func NewAuthenticator(sessions *SessionIssuer) *Authenticator {
	return &Authenticator{sessions: sessions}
}

// Authenticate sessionToken 来自 X-Session-Token，authorization 为 Authorization 头
func (a *Authenticator) Authenticate(sessionToken, authorization string) (Identity, bool) {
	if sessionToken != "" && a.sessions != nil && a.sessions.Enabled() {
		if user, err := a.sessions.Verify(sessionToken); err == nil {
			return Identity{UserID: user, Method: MethodSession}, true
		}
	}
	if key, ok := strings.CutPrefix(authorization, "Bearer "); ok {
		if user, ok := APIKeyUser(strings.TrimSpace(key)); ok {
			return Identity{UserID: user, Method: MethodAPIKey}, true
		}
	}
	return Identity{}, false
}
