package app

import (
	"context"
	"fmt"

	"verdict/internal/cache"
	"verdict/internal/config"
	"verdict/internal/logger"
	"verdict/internal/safety"
	"verdict/internal/scheduler"
	httpapi "verdict/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务与后台清扫。
type App struct {
	cfg      *config.Config
	server   *httpapi.Server
	cache    *cache.DecisionCache
	policies *safety.PolicyRegistry
	closers  []func() error
	Summary  *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return build(cfg)
}

// Run 启动 HTTP 服务与过期清扫，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)

	if a.server != nil {
		group.Go(func() error {
			if err := a.server.Start(ctx); err != nil {
				return fmt.Errorf("http server error: %w", err)
			}
			return nil
		})
	}

	if a.cache != nil && a.cfg.Cache.SweepInterval() > 0 {
		sweeper := scheduler.NewIntervalScheduler(ctx, "cache-sweeper", a.cfg.Cache.SweepInterval())
		group.Go(func() error {
			sweeper.Start(func() {
				sctx, cancel := context.WithTimeout(ctx, a.cfg.Cache.StoreTimeout())
				defer cancel()
				removed, err := a.cache.SweepExpired(sctx)
				if err != nil {
					logger.Warnf("cache-sweeper: 清扫失败: %v", err)
					return
				}
				if removed > 0 {
					logger.Infof("cache-sweeper: 清理过期决策 %d 条", removed)
				}
			})
			return nil
		})
	}

	err := group.Wait()
	a.Close()
	return err
}

// Close 释放持久层资源。幂等。
func (a *App) Close() {
	if a == nil {
		return
	}
	for _, fn := range a.closers {
		if err := fn(); err != nil {
			logger.Warnf("app: 关闭资源失败: %v", err)
		}
	}
	a.closers = nil
}
