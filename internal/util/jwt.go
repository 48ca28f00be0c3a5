package util

import (
	"errors"
	"recall_edu_backend/internal/model"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenIssuer 签发方，解析时强制校验
const TokenIssuer = "recall_edu_backend"

// ClaimsContextKey 鉴权中间件写入 gin.Context 的键
const ClaimsContextKey = "claims"

var ErrTokenSubject = errors.New("token subject does not match user id")

// Claims 访问令牌载荷。Subject 为用户 ID 的十进制字符串，与 UserID 必须一致
type Claims struct {
	UserID uint           `json:"uid"`
	Role   model.UserRole `json:"role"`
	Name   string         `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessStudent 学生只能访问自己的数据，教师和管理员不受限
func (c *Claims) CanAccessStudent(studentID uint) bool {
	return c.Role != model.Student || c.UserID == studentID
}

func IssueAccessToken(user *model.User, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		Role:   user.Role,
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    TokenIssuer,
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseAccessToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject != strconv.FormatUint(uint64(claims.UserID), 10) {
		return nil, ErrTokenSubject
	}
	return claims, nil
}

func ClaimsFromContext(c *gin.Context) *Claims {
	v, ok := c.Get(ClaimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*Claims)
	return claims
}
