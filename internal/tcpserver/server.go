package tcpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants"
	"go.uber.org/zap"

	cfgpkg "github.com/moyu3390/netty-game-server/internal/config"
)

// 拒绝连接原因（指标标签）
const (
	RejectRate    = "rate"
	RejectLimit   = "limit"
	RejectCircuit = "circuit"
	RejectPool    = "pool"
)

var rejectReasons = [...]string{RejectRate, RejectLimit, RejectCircuit, RejectPool}

// Server TCP 网关：accept 限速 -> 连接许可 -> 熔断保护下提交到协程池
type Server struct {
	cfg    cfgpkg.TCPConfig
	logger *zap.Logger

	ln       net.Listener
	wg       sync.WaitGroup
	stopC    chan struct{}
	stopOnce sync.Once

	nextConnID  uint64
	conns       sync.Map // id -> *ConnContext
	pool        *ants.Pool
	limiter     *ConnectionLimiter
	acceptRate  *AcceptLimiter
	breaker     *CircuitBreaker
	rejected    map[string]*atomic.Int64 // reason -> 累计拒绝数，键在 New 中固定

	connHandler func(*ConnContext)

	// 可选指标回调
	onAccept    func()
	onRecvBytes func(n int)
	onReject    func(reason string)
}

// New 创建 TCP 网关
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 10000
	}
	s := &Server{
		cfg:         cfg,
		logger:      logger,
		stopC:       make(chan struct{}),
		limiter:     NewConnectionLimiter(cfg.MaxConnections, cfg.AcquireTimeout),
		acceptRate:  NewAcceptLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		breaker:     NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Timeout),
		rejected:    make(map[string]*atomic.Int64, len(rejectReasons)),
	}
	for _, r := range rejectReasons {
		s.rejected[r] = new(atomic.Int64)
	}
	pool, err := ants.NewPool(cfg.MaxConnections, ants.WithPanicHandler(func(i interface{}) {
		logger.Error("connection goroutine panic", zap.Any("panic", i), zap.Stack("stack"))
	}))
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	s.pool = pool
	s.breaker.SetStateChangeCallback(func(from, to State) {
		logger.Warn("accept circuit breaker state changed",
			zap.String("from", from.String()), zap.String("to", to.String()))
	})
	return s, nil
}

// SetConnHandler 设置新连接处理回调（在读循环启动前调用，用于安装 OnRead/OnClose）
func (s *Server) SetConnHandler(h func(*ConnContext)) { s.connHandler = h }

// SetMetricsCallbacks 设置指标回调
func (s *Server) SetMetricsCallbacks(onAccept func(), onRecvBytes func(int), onReject func(string)) {
	s.onAccept, s.onRecvBytes, s.onReject = onAccept, onRecvBytes, onReject
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp server listening", zap.String("addr", ln.Addr().String()))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
	return nil
}

// Addr 实际监听地址（Start 之后有效）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if s.onAccept != nil {
			s.onAccept()
		}
		s.admit(conn)
	}
}

// admit 依次经过限速、连接许可与熔断保护，失败时立即关闭连接
func (s *Server) admit(c net.Conn) {
	if !s.acceptRate.Allow() {
		s.reject(c, RejectRate, nil)
		return
	}
	if err := s.limiter.Acquire(context.Background()); err != nil {
		s.reject(c, RejectLimit, err)
		return
	}

	cc := newConnContext(s, c)
	s.wg.Add(1)
	err := s.breaker.Call(func() error {
		return s.pool.Submit(func() {
			defer s.wg.Done()
			defer s.limiter.Release()
			s.serve(cc)
		})
	})
	if err != nil {
		s.wg.Done()
		s.limiter.Release()
		reason := RejectPool
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			reason = RejectCircuit
		}
		s.reject(c, reason, err)
	}
}

func (s *Server) reject(c net.Conn, reason string, err error) {
	s.rejected[reason].Add(1)
	if s.onReject != nil {
		s.onReject(reason)
	}
	s.logger.Debug("connection rejected",
		zap.String("remote_addr", c.RemoteAddr().String()),
		zap.String("reason", reason),
		zap.Error(err))
	_ = c.Close()
}

func (s *Server) serve(cc *ConnContext) {
	s.conns.Store(cc.id, cc)
	defer s.conns.Delete(cc.id)
	if s.connHandler != nil {
		s.connHandler(cc)
	}
	cc.run()
}

// Shutdown 优雅关闭监听、断开所有连接并等待其退出
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopC)
		if s.ln != nil {
			_ = s.ln.Close()
		}
	})
	s.conns.Range(func(_, v any) bool {
		_ = v.(*ConnContext).Close()
		return true
	})
	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		s.pool.Release()
		return nil
	}
}

// ActiveConnections 当前连接数
func (s *Server) ActiveConnections() int { return s.limiter.Current() }

// LimiterStats 连接许可统计
func (s *Server) LimiterStats() LimiterStats { return s.limiter.Stats() }

// AcceptRateStats accept 限速统计
func (s *Server) AcceptRateStats() AcceptRateStats {
	return s.acceptRate.snapshot(s.rejected[RejectRate].Load())
}

// RejectStats 按原因的累计拒绝数
func (s *Server) RejectStats() map[string]int64 {
	out := make(map[string]int64, len(s.rejected))
	for reason, n := range s.rejected {
		out[reason] = n.Load()
	}
	return out
}

// BreakerStats 熔断器统计
func (s *Server) BreakerStats() CircuitBreakerStats { return s.breaker.Stats() }

// BreakerState 熔断器状态
func (s *Server) BreakerState() State { return s.breaker.State() }

// PoolStats 协程池统计
func (s *Server) PoolStats() PoolStats {
	return PoolStats{Running: s.pool.Running(), Capacity: s.pool.Cap()}
}

// PoolStats 协程池统计信息
type PoolStats struct {
	Running  int `json:"running"`
	Capacity int `json:"capacity"`
}
