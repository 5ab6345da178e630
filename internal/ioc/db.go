package ioc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/JrMarcco/jdelivery/internal/pkg/isolation"
	"github.com/JrMarcco/jdelivery/internal/pkg/sharding"
	"github.com/JrMarcco/jdelivery/internal/repository/dao"
	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const (
	StorageDriverMysql  = "mysql"
	StorageDriverMemory = "memory"
)

var DBFxOpt = fx.Provide(
	InitDeliveryJobDAO,
	fx.Annotate(
		InitShardingStrategy,
		fx.As(new(sharding.Strategy)),
	),
)

type mysqlConfig struct {
	Primary         string        `mapstructure:"primary"`
	Replica         string        `mapstructure:"replica"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// InitDeliveryJobDAO 根据 storage.driver 选择存储实现，memory 只用于本地开发与单实例测试。
func InitDeliveryJobDAO(lc fx.Lifecycle, logger *zap.Logger) dao.DeliveryJobDAO {
	driver := viper.GetString("storage.driver")
	switch driver {
	case StorageDriverMemory:
		logger.Warn("[jdelivery] using in-memory storage, data will be lost on restart")
		return dao.NewMemoryDeliveryJobDAO()
	case StorageDriverMysql, "":
		return dao.NewDefaultDeliveryJobDAO(InitDB(lc))
	default:
		panic(fmt.Sprintf("[jdelivery] unknown storage driver %q", driver))
	}
}

func InitDB(lc fx.Lifecycle) *gorm.DB {
	cfg := mysqlConfig{}
	if err := viper.UnmarshalKey("db.mysql", &cfg); err != nil {
		panic(err)
	}

	primary := openSqlDB(cfg.Primary, cfg)
	replica := primary
	if cfg.Replica != "" && cfg.Replica != cfg.Primary {
		replica = openSqlDB(cfg.Replica, cfg)
	}

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn: isolation.NewDB(primary, replica),
	}), &gorm.Config{})
	if err != nil {
		panic(err)
	}

	if cfg.AutoMigrate {
		if err = db.AutoMigrate(&dao.DeliveryJob{}, &dao.DeliveryMethod{}, &dao.DeliveryHistory{}); err != nil {
			panic(err)
		}
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if replica != primary {
				_ = replica.Close()
			}
			return primary.Close()
		},
	})
	return db
}

func openSqlDB(dsn string, cfg mysqlConfig) *sql.DB {
	sqlDB, err := sql.Open("mysql", dsn)
	if err != nil {
		panic(err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return sqlDB
}

func InitShardingStrategy() sharding.HashStrategy {
	return sharding.NewHashStrategy(viper.GetUint64("scheduler.partitions"))
}
