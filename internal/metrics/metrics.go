package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moyu3390/netty-game-server/internal/dispatch"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TCPAccepted      prometheus.Counter
	TCPBytesReceived prometheus.Counter
	TCPRejected      *prometheus.CounterVec // labels: reason=rate|limit|circuit|pool
	FrameDecodeTotal *prometheus.CounterVec // labels: result=ok|dropped
	DispatchTotal    *prometheus.CounterVec // labels: cmd, outcome
	DispatchDuration *prometheus.HistogramVec
	ErrorFrames      prometheus.Counter // 下发的错误帧
	OnlineGauge      prometheus.Gauge   // 当前会话数
	PlayersGauge     prometheus.Gauge   // 已登录玩家数
	HeartbeatTotal   prometheus.Counter // 心跳计数
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_accept_total",
			Help: "Total accepted TCP connections.",
		}),
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		TCPRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tcp_rejected_total",
			Help: "TCP connections rejected at admission.",
		}, []string{"reason"}),
		FrameDecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_decode_total",
			Help: "Decoded frames and bytes dropped while resynchronising.",
		}, []string{"result"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_total",
			Help: "Dispatched requests by command and outcome.",
		}, []string{"cmd", "outcome"}),
		DispatchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Handler dispatch latency.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"cmd"}),
		ErrorFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_error_frames_total",
			Help: "Error frames written for unresolved dispatch failures.",
		}),
		OnlineGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_online_count",
			Help: "Current number of connected sessions.",
		}),
		PlayersGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "session_player_count",
			Help: "Current number of logged-in players.",
		}),
		HeartbeatTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "session_heartbeat_total",
			Help: "Total heartbeats observed.",
		}),
	}
	reg.MustRegister(m.TCPAccepted, m.TCPBytesReceived, m.TCPRejected, m.FrameDecodeTotal,
		m.DispatchTotal, m.DispatchDuration, m.ErrorFrames, m.OnlineGauge, m.PlayersGauge, m.HeartbeatTotal)
	return m
}

// UnknownCmdLabel 未注册命令统一使用的标签，命令码由客户端决定，不能直接作为标签
const UnknownCmdLabel = "unknown"

// DispatchObserver 将分发结果写入指标，实现 dispatch.Observer
type DispatchObserver struct {
	m    *AppMetrics
	name func(cmd int32) string
}

// NewDispatchObserver name 用于把已注册命令码转换为指标标签
func NewDispatchObserver(m *AppMetrics, name func(cmd int32) string) *DispatchObserver {
	return &DispatchObserver{m: m, name: name}
}

// ObserveDispatch 实现 dispatch.Observer
func (o *DispatchObserver) ObserveDispatch(cmd int32, outcome dispatch.Outcome, elapsed time.Duration) {
	if outcome == dispatch.OutcomeUnknown {
		o.m.DispatchTotal.WithLabelValues(UnknownCmdLabel, string(outcome)).Inc()
		return
	}
	label := o.name(cmd)
	o.m.DispatchTotal.WithLabelValues(label, string(outcome)).Inc()
	o.m.DispatchDuration.WithLabelValues(label).Observe(elapsed.Seconds())
}
