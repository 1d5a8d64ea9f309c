package app

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/dispatch"
	"github.com/moyu3390/netty-game-server/internal/game"
	"github.com/moyu3390/netty-game-server/internal/httpserver"
	"github.com/moyu3390/netty-game-server/internal/metrics"
	"github.com/moyu3390/netty-game-server/internal/protocol/catalog"
	"github.com/moyu3390/netty-game-server/internal/protocol/frame"
	"github.com/moyu3390/netty-game-server/internal/session"
)

// NewCatalog 内置命令名与配置文件合并，配置文件中的名称优先
func NewCatalog(path string, logger *zap.Logger) (*catalog.Catalog, error) {
	builtin := catalog.New(game.CommandNames())
	if path == "" {
		return builtin, nil
	}
	loaded, err := catalog.Load(path)
	if err != nil {
		return nil, err
	}
	logger.Info("command catalog loaded", zap.String("path", path), zap.Int("commands", len(loaded.Codes())))
	return builtin.Merge(loaded), nil
}

// Dispatcher 组装完成的命令分发组件
type Dispatcher struct {
	Router   *dispatch.Router
	Registry *dispatch.StaticRegistry
	Handlers *game.Handlers
}

// NewDispatcher 注册游戏模块并构建命令路由
func NewDispatcher(
	cfg cfgpkg.DispatchConfig,
	sessions *session.Manager,
	cat *catalog.Catalog,
	appm *metrics.AppMetrics,
	logger *zap.Logger,
) (*Dispatcher, error) {
	resolver := dispatch.NewPayloadResolver(frame.JSONCodec{},
		dispatch.WithSessionType(reflect.TypeFor[*session.Session]()))

	deps := game.Deps{
		Sessions:   sessions,
		Logger:     logger.Named("game"),
		RatePerSec: cfg.RatePerSec,
		RateBurst:  cfg.RateBurst,
	}
	if appm != nil {
		deps.OnHeartbeat = appm.HeartbeatTotal.Inc
	}

	b := dispatch.NewBuilder().Validate(resolver)
	handlers := game.Register(b, deps)
	reg, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}

	opts := []dispatch.Option{
		dispatch.WithArgumentResolver(resolver),
		dispatch.WithLogger(logger.Named("dispatch")),
	}
	if appm != nil {
		opts = append(opts, dispatch.WithObserver(metrics.NewDispatchObserver(appm, cat.Name)))
	}
	router, err := dispatch.NewRouter(reg, opts...)
	if err != nil {
		return nil, fmt.Errorf("build command router: %w", err)
	}

	logger.Info("command router ready", zap.Int("commands", len(reg.Commands())))
	return &Dispatcher{Router: router, Registry: reg, Handlers: handlers}, nil
}

// CommandInfos 列出已注册命令，供 /commands 使用
func CommandInfos(reg *dispatch.StaticRegistry, cat *catalog.Catalog) []httpserver.CommandInfo {
	cmds := reg.Commands()
	out := make([]httpserver.CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		m := reg.Handler(cmd)
		out = append(out, httpserver.CommandInfo{
			Cmd:         cmd,
			Name:        cat.Name(cmd),
			ResponseCmd: m.ResponseCmd,
			Handler:     m.Name,
		})
	}
	return out
}
