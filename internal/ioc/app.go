package ioc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/JrMarcco/jdelivery/internal/pkg/registry"
	"github.com/JrMarcco/jdelivery/internal/service/dispatch"
	"github.com/JrMarcco/jdelivery/internal/service/schedule"
	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var AppFxOpt = fx.Provide(
	InitApp,
)

var AppFxInvoke = fx.Invoke(
	AppLifecycle,
)

type App struct {
	server *http.Server

	consumer  dispatch.Consumer
	worker    *dispatch.Worker
	scheduler schedule.Scheduler
	// 调度器的运行周期与 App 一致
	cancelScheduler context.CancelFunc

	timeout  time.Duration
	registry registry.Registry
	si       registry.ServiceInstance

	logger *zap.Logger
}

type AppParams struct {
	fx.In

	Engine    *gin.Engine
	Consumer  dispatch.Consumer
	Worker    *dispatch.Worker
	Scheduler schedule.Scheduler
	Registry  registry.Registry `optional:"true"`
	Logger    *zap.Logger
}

func InitApp(p AppParams) *App {
	type config struct {
		Name            string        `mapstructure:"name"`
		Addr            string        `mapstructure:"addr"`
		CallbackBaseUrl string        `mapstructure:"callback_base_url"`
		Timeout         time.Duration `mapstructure:"timeout"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	}
	cfg := &config{Name: "jdelivery", Timeout: 3 * time.Second}
	if err := viper.UnmarshalKey("app", cfg); err != nil {
		panic(err)
	}

	return &App{
		server: &http.Server{
			Addr:         cfg.Addr,
			Handler:      p.Engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		consumer:  p.Consumer,
		worker:    p.Worker,
		scheduler: p.Scheduler,
		timeout:   cfg.Timeout,
		registry:  p.Registry,
		si: registry.ServiceInstance{
			Name:            cfg.Name,
			Addr:            cfg.Addr,
			CallbackBaseUrl: cfg.CallbackBaseUrl,
		},
		logger: p.Logger,
	}
}

func AppLifecycle(lc fx.Lifecycle, app *App) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// 先启动派发消费端，保证调度器推进产生的任务有人处理
			if err := app.consumer.Start(app.worker); err != nil {
				return err
			}

			schedCtx, cancel := context.WithCancel(context.Background())
			app.cancelScheduler = cancel
			if err := app.scheduler.Start(schedCtx); err != nil {
				return err
			}

			ln, err := net.Listen("tcp", app.server.Addr)
			if err != nil {
				return err
			}

			// 启动 http 服务器
			go func() {
				if serveErr := app.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
					app.logger.Fatal("[jdelivery] http server stopped unexpectedly", zap.Error(serveErr))
				}
			}()
			app.logger.Info("[jdelivery] http server started", zap.String("addr", app.server.Addr))

			// 注册服务到注册中心
			if app.registry != nil {
				registerCtx, cancel := context.WithTimeout(context.Background(), app.timeout)
				regErr := app.registry.Register(registerCtx, app.si)
				cancel()

				if regErr != nil {
					return regErr
				}
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if app.registry != nil {
				unregisterCtx, cancel := context.WithTimeout(context.Background(), app.timeout)
				if err := app.registry.Unregister(unregisterCtx, app.si); err != nil {
					// 记录错误但不返回，确保服务器能够正常关闭
					app.logger.Error("[jdelivery] unregister service failed", zap.Error(err))
				}
				cancel()
				_ = app.registry.Close()
			}

			// 优雅退出：停止接收请求，再停止调度与派发
			shutdownErr := app.server.Shutdown(ctx)
			if app.cancelScheduler != nil {
				app.cancelScheduler()
			}
			app.consumer.Stop()
			return shutdownErr
		},
	})
}
