package tcpserver

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrConnClosed 连接已关闭
	ErrConnClosed = errors.New("connection closed")
	// ErrWriteQueueTimeout 写队列已满且等待超时
	ErrWriteQueueTimeout = errors.New("write queue timeout")
)

// ConnContext 为每个 TCP 连接提供读/写循环与回调能力
type ConnContext struct {
	s      *Server
	c      net.Conn
	id     uint64
	writeC chan []byte
	closed atomic.Bool
	closeC chan struct{}
	doneC  chan struct{}

	onRead func([]byte)

	closeMu  sync.Mutex
	onClose  []func()
	lastRead atomic.Int64
}

func newConnContext(s *Server, c net.Conn) *ConnContext {
	q := s.cfg.WriteQueue
	if q <= 0 {
		q = 128
	}
	cc := &ConnContext{
		s:      s,
		c:      c,
		id:     atomic.AddUint64(&s.nextConnID, 1),
		writeC: make(chan []byte, q),
		closeC: make(chan struct{}),
		doneC:  make(chan struct{}),
	}
	cc.lastRead.Store(time.Now().UnixNano())
	return cc
}

// ID 返回连接ID（单进程唯一递增）
func (cc *ConnContext) ID() uint64 { return cc.id }

// RemoteAddr 返回远端地址
func (cc *ConnContext) RemoteAddr() net.Addr { return cc.c.RemoteAddr() }

// SetOnRead 安装读取回调（收到上行原始字节时触发，回调期间 p 有效）
func (cc *ConnContext) SetOnRead(h func(p []byte)) { cc.onRead = h }

// OnClose 注册连接结束回调，按注册顺序执行
func (cc *ConnContext) OnClose(fn func()) {
	cc.closeMu.Lock()
	cc.onClose = append(cc.onClose, fn)
	cc.closeMu.Unlock()
}

// LastRead 最近一次收到数据的时间
func (cc *ConnContext) LastRead() time.Time { return time.Unix(0, cc.lastRead.Load()) }

// Write 异步写入，受写队列与写超时影响
func (cc *ConnContext) Write(b []byte) error {
	if cc.closed.Load() {
		return ErrConnClosed
	}
	// 复制一份，避免调用方复用底层切片
	dup := make([]byte, len(b))
	copy(dup, b)
	to := cc.s.cfg.WriteTimeout
	if to <= 0 {
		to = 5 * time.Second
	}
	timer := time.NewTimer(to)
	defer timer.Stop()
	select {
	case cc.writeC <- dup:
		return nil
	case <-cc.closeC:
		return ErrConnClosed
	case <-timer.C:
		return ErrWriteQueueTimeout
	}
}

// Close 关闭连接，写循环随之退出，未写出的数据丢弃
func (cc *ConnContext) Close() error {
	if !cc.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(cc.closeC)
	return cc.c.Close()
}

// Done 返回连接关闭通知通道
func (cc *ConnContext) Done() <-chan struct{} { return cc.doneC }

// run 启动读/写循环，阻塞直至连接结束
func (cc *ConnContext) run() {
	defer cc.finish()

	doneW := make(chan struct{})
	go func() {
		defer close(doneW)
		cc.writeLoop()
	}()

	cc.readLoop()
	_ = cc.Close()
	<-doneW
}

func (cc *ConnContext) writeLoop() {
	for {
		select {
		case msg := <-cc.writeC:
			if cc.s.cfg.WriteTimeout > 0 {
				_ = cc.c.SetWriteDeadline(time.Now().Add(cc.s.cfg.WriteTimeout))
			}
			if _, err := cc.c.Write(msg); err != nil {
				_ = cc.Close()
				return
			}
		case <-cc.closeC:
			return
		}
	}
}

func (cc *ConnContext) readLoop() {
	size := cc.s.cfg.ReadBufferSize
	if size <= 0 {
		size = 4096
	}
	buf := make([]byte, size)
	for {
		if cc.s.cfg.ReadTimeout > 0 {
			_ = cc.c.SetReadDeadline(time.Now().Add(cc.s.cfg.ReadTimeout))
		}
		n, err := cc.c.Read(buf)
		if n > 0 {
			cc.lastRead.Store(time.Now().UnixNano())
			if cc.s.onRecvBytes != nil {
				cc.s.onRecvBytes(n)
			}
			if cc.onRead != nil {
				cc.onRead(buf[:n])
			}
		}
		if err != nil {
			// 读空闲超时视为连接失活
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				cc.s.logger.Debug("tcp read idle timeout",
					zap.Uint64("conn_id", cc.id), zap.String("remote_addr", cc.RemoteAddr().String()))
			}
			return
		}
	}
}

func (cc *ConnContext) finish() {
	cc.closeMu.Lock()
	hooks := cc.onClose
	cc.onClose = nil
	cc.closeMu.Unlock()
	for _, fn := range hooks {
		fn()
	}
	close(cc.doneC)
}
