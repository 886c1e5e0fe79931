// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package taskmsg

import (
	"errors"
	"net"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/kont"
	"code.hybscloud.com/taskmsg/transport"
	"go.uber.org/zap"
)

// DefaultMaintenanceInterval is how often a Server cleans up finished sessions.
const DefaultMaintenanceInterval = 2 * time.Second

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(srv *Server) { srv.logger = l }
}

// WithMaintenanceInterval sets the session cleanup period.
func WithMaintenanceInterval(d time.Duration) ServerOption {
	return func(srv *Server) { srv.maintenance = d }
}

// Server accepts worker connections and hands each to the Manager.
// Accepting runs as a protocol on the scheduler; session cleanup runs on a
// ticker. A running server holds a work guard on the scheduler.
type Server struct {
	sched       *Scheduler
	manager     *Manager
	listener    transport.Listener
	logger      *zap.Logger
	maintenance time.Duration

	guard    *WorkGuard
	closing  atomix.Uint32
	accepted atomix.Uint64
	started  atomix.Uint32
	stop     chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer creates a server accepting from l.
func NewServer(sched *Scheduler, manager *Manager, l transport.Listener, opts ...ServerOption) *Server {
	srv := &Server{
		sched:       sched,
		manager:     manager,
		listener:    l,
		logger:      zap.NewNop(),
		maintenance: DefaultMaintenanceInterval,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.maintenance <= 0 {
		srv.maintenance = DefaultMaintenanceInterval
	}
	return srv
}

// Addr returns the listener address.
func (srv *Server) Addr() net.Addr { return srv.listener.Addr() }

// Accepted returns the number of connections accepted so far.
func (srv *Server) Accepted() uint64 { return srv.accepted.Load() }

// Start begins accepting and periodic maintenance.
func (srv *Server) Start() {
	if !srv.started.CompareAndSwap(0, 1) {
		return
	}
	srv.guard = srv.sched.NewWorkGuard()
	srv.logger.Info("server listening", zap.String("addr", addrString(srv.Addr())))
	Spawn(srv.sched, Defer(srv.acceptLoop), func(r kont.Either[error, struct{}]) {
		if err, ok := r.GetLeft(); ok {
			srv.logger.Warn("accept loop ended", zap.Error(err))
		}
		close(srv.done)
	})
	srv.wg.Go(srv.maintain)
}

// Stop closes the listener, stops maintenance and releases the work guard.
// Sessions keep running; use Manager.Shutdown to end them.
func (srv *Server) Stop() error {
	var err error
	srv.stopOnce.Do(func() {
		srv.closing.Store(1)
		close(srv.stop)
		err = srv.listener.Close()
		srv.wg.Wait()
		if srv.started.Load() != 0 {
			srv.guard.Release()
		}
		srv.logger.Info("server stopped", zap.Uint64("accepted", srv.Accepted()))
	})
	return err
}

// Done is closed when the accept protocol has finished.
func (srv *Server) Done() <-chan struct{} { return srv.done }

func (srv *Server) acceptLoop() kont.Eff[struct{}] {
	return Loop(struct{}{}, func(struct{}) kont.Eff[iteration] {
		return AcceptBind(srv.listener, func(r AcceptResult) kont.Eff[iteration] {
			return kont.Pure(srv.handle(r))
		})
	})
}

func (srv *Server) handle(r AcceptResult) iteration {
	if r.Err != nil {
		if srv.closing.Load() != 0 || errors.Is(r.Err, net.ErrClosed) {
			return finished
		}
		srv.logger.Warn("accept failed", zap.Error(r.Err))
		return proceed
	}
	if srv.closing.Load() != 0 {
		_ = r.Stream.Close()
		return finished
	}
	srv.accepted.Add(1)
	if _, err := srv.manager.CreateSession(r.Stream); err != nil {
		srv.logger.Warn("create session failed", zap.Error(err))
		_ = r.Stream.Close()
	}
	return proceed
}

func (srv *Server) maintain() {
	ticker := time.NewTicker(srv.maintenance)
	defer ticker.Stop()
	for {
		select {
		case <-srv.stop:
			return
		case <-ticker.C:
			if n := srv.manager.CleanupCompletedSessions(); n > 0 {
				srv.logger.Debug("cleaned up sessions", zap.Int("removed", n))
			}
		}
	}
}
