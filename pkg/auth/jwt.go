// Package auth 解析身份服务签发的 HS256 bearer token。
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"civicfund/pkg/rbac"
)

// Identity token 中携带的调用者身份
type Identity struct {
	UserID string
	Role   string
}

// Claims sub 为用户 ID，role 为 rbac 角色
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

var ErrMissingSubject = errors.New("token has no subject")

// GenerateToken creates a token for a given user ID and role.
func GenerateToken(userID, role, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates token and extracts the caller identity.
func ParseToken(tokenStr, secret string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return Identity{}, ErrMissingSubject
	}

	return Identity{
		UserID: claims.Subject,
		Role:   rbac.NormalizeRole(claims.Role),
	}, nil
}

// ExtractToken 从 Authorization: Bearer <token> 中取出 token
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
