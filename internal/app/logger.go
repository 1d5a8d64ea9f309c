package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/logging"
)

// NewLogger 初始化日志并替换全局 logger
func NewLogger(cfg cfgpkg.LoggingConfig) (*zap.Logger, error) {
	logger, err := logging.InitLogger(cfg)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
