package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
	"github.com/moyu3390/netty-game-server/internal/metrics"
	"github.com/moyu3390/netty-game-server/internal/tcpserver"
)

// NewTCPServer 根据配置创建 TCP 服务器并接入指标回调
func NewTCPServer(cfg cfgpkg.TCPConfig, appm *metrics.AppMetrics, logger *zap.Logger) (*tcpserver.Server, error) {
	srv, err := tcpserver.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if appm != nil {
		srv.SetMetricsCallbacks(
			func() { appm.TCPAccepted.Inc() },
			func(n int) { appm.TCPBytesReceived.Add(float64(n)) },
			func(reason string) { appm.TCPRejected.WithLabelValues(reason).Inc() },
		)
	}
	return srv, nil
}
