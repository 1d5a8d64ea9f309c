package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/moyu3390/netty-game-server/internal/app"
	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/gateway"
	"github.com/moyu3390/netty-game-server/internal/health"
	"github.com/moyu3390/netty-game-server/internal/httpserver"
	"github.com/moyu3390/netty-game-server/internal/metrics"
	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
)

// shutdownTimeout 优雅关闭总时限
const shutdownTimeout = 10 * time.Second

// Run 统一启动流程，阻塞直至 ctx 取消后完成优雅关闭。
// 依赖（Redis、命令路由）全部就绪后才开始监听 TCP。
func Run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting game server", zap.String("name", cfg.App.Name), zap.String("env", cfg.App.Env))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics()
	ready := health.New()
	serverID := app.GenerateServerID(cfg.App.ServerID)

	// ========== 阶段2: Redis（可选）==========
	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	ready.SetRedisReady(true)

	// ========== 阶段3: 会话与命令路由 ==========
	sessions, presence := app.NewSessionManager(cfg.Session, redisClient, serverID, log)

	cat, err := app.NewCatalog(cfg.Dispatch.CatalogPath, log)
	if err != nil {
		log.Error("load command catalog failed", zap.Error(err))
		return err
	}
	disp, err := app.NewDispatcher(cfg.Dispatch, sessions, cat, appm, log)
	if err != nil {
		log.Error("command router initialization failed", zap.Error(err))
		return err
	}

	// ========== 阶段4: HTTP 运维服务 ==========
	healthAgg := app.NewHealthAggregator(sessions)
	app.AddRedisChecker(healthAgg, redisClient)

	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(reg), ready.Ready)
	commands := app.CommandInfos(disp.Registry, cat)
	httpSrv.Register(func(r *gin.Engine) {
		health.RegisterHTTPRoutes(r, healthAgg)
		httpserver.RegisterCommandRoutes(r, func() []httpserver.CommandInfo { return commands })
	})
	go func() {
		if err := httpSrv.Start(); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http server started", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: TCP 网关 ==========
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	tcpSrv, err := app.NewTCPServer(cfg.TCP, appm, log)
	if err != nil {
		log.Error("tcp server initialization failed", zap.Error(err))
		return err
	}
	gw := gateway.New(runCtx, gateway.Options{
		Router:           disp.Router,
		Sessions:         sessions,
		Codec:            frame.JSONCodec{},
		Catalog:          cat,
		Metrics:          appm,
		Logger:           log.Named("gateway"),
		MaxFrameLen:      cfg.Dispatch.MaxFrameLen,
		ErrorResponseCmd: cfg.Dispatch.ErrorResponseCmd,
	})
	tcpSrv.SetConnHandler(gw.ConnHandler())

	if err := tcpSrv.Start(); err != nil {
		log.Error("tcp server start failed", zap.Error(err))
		_ = httpSrv.Shutdown(context.Background())
		return err
	}
	ready.SetTCPReady(true)
	app.AddTCPChecker(healthAgg, tcpSrv)
	log.Info("tcp server started", zap.String("addr", tcpSrv.Addr().String()), zap.String("server_id", serverID))

	sweeper := app.NewSessionSweeper(sessions, cfg.Session.SweepInterval, log)
	go sweeper.Start(runCtx)

	log.Info("all services ready, waiting for connections")

	// ========== 阶段6: 等待关闭 ==========
	<-ctx.Done()
	log.Info("shutting down...")
	ready.Drain()

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()

	if err := httpSrv.Shutdown(sctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	log.Info("http server stopped")

	if err := tcpSrv.Shutdown(sctx); err != nil {
		log.Warn("tcp server shutdown", zap.Error(err))
	}
	log.Info("tcp server stopped")

	cancel()
	if presence != nil {
		if err := presence.Cleanup(sctx); err != nil {
			log.Warn("presence cleanup failed", zap.Error(err))
		}
	}

	log.Info("shutdown complete")
	return nil
}
