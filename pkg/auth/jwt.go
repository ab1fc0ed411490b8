package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleMember   = "member"
	RoleOperator = "operator" // 运营后台角色
)

var ErrInvalidToken = errors.New("令牌无效")

// Claims 会话声明
// 会员身份与级别都从令牌取，请求体里的 user_id 一律不认
type Claims struct {
	UserID int64  `json:"user_id"`
	Tier   string `json:"tier"` // RETAIL / WHOLESALE
	Role   string `json:"role"` // member / operator
	jwt.RegisteredClaims
}

type Service struct {
	secretKey []byte
}

func NewService(secretKey string) *Service {
	return &Service{secretKey: []byte(secretKey)}
}

// GenerateToken 签发令牌（会话签发本身由外部账号系统负责，这里供测试与内部工具使用）
func (s *Service) GenerateToken(userID int64, tier, role string) (string, error) {
	claims := &Claims{
		UserID: userID,
		Tier:   tier,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken 校验令牌并取出声明
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: 非预期的签名算法 %v", ErrInvalidToken, token.Header["alg"])
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
