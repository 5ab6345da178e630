package middleware

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/JrMarcco/jdelivery/internal/errs"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	actorContextKey = "jdelivery_actor"
	issuer          = "jdelivery"
)

// Claims 签发给适配器的 token，Subject 为适配器名称。
type Claims struct {
	jwt.RegisteredClaims
}

// JwtBuilder 适配器回调鉴权。
// 使用 ed25519 密钥对签名（EdDSA），服务端只需要公钥即可校验。
type JwtBuilder struct {
	priKey ed25519.PrivateKey
	pubKey ed25519.PublicKey
	now    func() time.Time
}

// Sign 为适配器签发 token
func (b *JwtBuilder) Sign(adapterName string, ttl time.Duration) (string, error) {
	if b.priKey == nil {
		return "", fmt.Errorf("[jdelivery] jwt private key not configured")
	}

	now := b.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   adapterName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(b.priKey)
}

// Verify 校验 token 并返回适配器名称
func (b *JwtBuilder) Verify(token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(*jwt.Token) (any, error) { return b.pubKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(b.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", errs.ErrInvalidToken)
	}
	return claims.Subject, nil
}

func (b *JwtBuilder) Build() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "missing bearer token",
			})
			return
		}

		actor, err := b.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": err.Error(),
			})
			return
		}
		c.Set(actorContextKey, actor)
		c.Next()
	}
}

// ActorFrom 获取 token 中的适配器名称，未开启鉴权时返回空串。
func ActorFrom(c *gin.Context) string {
	return c.GetString(actorContextKey)
}

func NewJwtBuilder(priKey ed25519.PrivateKey, pubKey ed25519.PublicKey) *JwtBuilder {
	return &JwtBuilder{
		priKey: priKey,
		pubKey: pubKey,
		now:    time.Now,
	}
}
