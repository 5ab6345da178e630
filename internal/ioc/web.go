package ioc

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"time"

	"github.com/JrMarcco/jdelivery/internal/api/web"
	"github.com/JrMarcco/jdelivery/internal/api/web/middleware"
	"github.com/JrMarcco/jdelivery/internal/pkg/idempotent"
	"github.com/gin-gonic/gin"
	gcache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var WebFxOpt = fx.Provide(
	web.NewDeliveryJobHandler,
	InitIdempotentStrategy,
	InitGinEngine,
)

// InitIdempotentStrategy 多实例部署必须使用 redis
func InitIdempotentStrategy(rc redis.Cmdable, localCache *gcache.Cache) idempotent.Strategy {
	type config struct {
		Store   string        `mapstructure:"store"`
		Expires time.Duration `mapstructure:"expires"`
	}
	cfg := config{Store: "redis", Expires: 24 * time.Hour}
	if err := viper.UnmarshalKey("web.idempotent", &cfg); err != nil {
		panic(err)
	}

	if cfg.Store == "local" {
		return idempotent.NewLocalStrategy(localCache, cfg.Expires)
	}
	return idempotent.NewRedisStrategy(rc, cfg.Expires)
}

func InitGinEngine(
	handler *web.DeliveryJobHandler, strategy idempotent.Strategy, logger *zap.Logger,
) *gin.Engine {
	type JwtConfig struct {
		Enabled bool   `mapstructure:"enabled"`
		PriPem  string `mapstructure:"private"`
		PubPem  string `mapstructure:"public"`
	}

	type RateLimitConfig struct {
		Rps   float64       `mapstructure:"rps"`
		Burst int           `mapstructure:"burst"`
		TTL   time.Duration `mapstructure:"ttl"`
	}

	type Config struct {
		Mode      string          `mapstructure:"mode"`
		Jwt       JwtConfig       `mapstructure:"jwt"`
		RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	}

	cfg := Config{Mode: gin.ReleaseMode}
	if err := viper.UnmarshalKey("web", &cfg); err != nil {
		panic(err)
	}
	gin.SetMode(cfg.Mode)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.AccessLog(logger),
		middleware.RateLimit(cfg.RateLimit.Rps, cfg.RateLimit.Burst, cfg.RateLimit.TTL),
	)

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	callbackMiddlewares := make([]gin.HandlerFunc, 0, 2)
	if cfg.Jwt.Enabled {
		priKey, pubKey := loadJwtKeypair(cfg.Jwt.PriPem, cfg.Jwt.PubPem)
		callbackMiddlewares = append(callbackMiddlewares, middleware.NewJwtBuilder(priKey, pubKey).Build())
	}
	// 重复回调直接返回 job 当前状态
	callbackMiddlewares = append(
		callbackMiddlewares,
		middleware.NewIdempotentBuilder(strategy, handler.GetJob, logger).Build(),
	)

	handler.RegisterRoutes(engine, callbackMiddlewares...)
	return engine
}

// loadJwtKeypair 加载 jwt 密钥对。
//
// PEM 块本身标注的是密钥对，而不是具体的 ed25519 密钥对。
// 所有标准公钥格式都需要先由 x509 包处理进行转换后类型断言才能获得 ed25519 密钥对。
// 只校验 token 的实例可以不配置私钥。
func loadJwtKeypair(priPem, pubPem string) (ed25519.PrivateKey, ed25519.PublicKey) {
	pubKeyBlock, _ := pem.Decode([]byte(pubPem))
	if pubKeyBlock == nil {
		panic("failed to decode public key PEM")
	}
	publicKey, err := x509.ParsePKIXPublicKey(pubKeyBlock.Bytes)
	if err != nil {
		panic(err)
	}

	if priPem == "" {
		return nil, publicKey.(ed25519.PublicKey)
	}

	priKeyBlock, _ := pem.Decode([]byte(priPem))
	if priKeyBlock == nil {
		panic("failed to decode private key PEM")
	}
	priKey, err := x509.ParsePKCS8PrivateKey(priKeyBlock.Bytes)
	if err != nil {
		panic(err)
	}

	return priKey.(ed25519.PrivateKey), publicKey.(ed25519.PublicKey)
}
