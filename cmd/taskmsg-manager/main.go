// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command taskmsg-manager distributes generated tasks to connected workers.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"code.hybscloud.com/taskmsg"
	"code.hybscloud.com/taskmsg/codec"
	"code.hybscloud.com/taskmsg/config"
	"code.hybscloud.com/taskmsg/observability"
	"code.hybscloud.com/taskmsg/skill"
	"code.hybscloud.com/taskmsg/transport"
	"go.uber.org/zap"
)

// shutdownTimeout bounds how long sessions get to finish after a signal.
const shutdownTimeout = 10 * time.Second

type options struct {
	configPath string
	kind       string
	addr       string
	threads    int
	tasks      int
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default: search for taskmsg.yaml)")
	flag.StringVar(&opts.kind, "kind", "", "transport kind: tcp|quic|ws|winpipe|mem (overrides config)")
	flag.StringVar(&opts.addr, "addr", "", "listen address (overrides config)")
	flag.IntVar(&opts.threads, "threads", 0, "scheduler threads (overrides config)")
	flag.IntVar(&opts.tasks, "tasks", -1, "initial task count (overrides config)")
	flag.Parse()
	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	mc := cfg.Manager
	if opts.kind != "" {
		mc.Transport.Kind = opts.kind
	}
	if opts.addr != "" {
		mc.Transport.Address = opts.addr
	}
	if opts.threads > 0 {
		mc.IOThreads = opts.threads
	}
	if opts.tasks >= 0 {
		mc.InitialTasks = opts.tasks
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named(cfg.AppName)

	kind, err := transport.ParseKind(mc.Transport.Kind)
	if err != nil {
		logger.Error("invalid transport", zap.Error(err))
		return 2
	}
	c, err := codec.ByName(cfg.Codec)
	if err != nil {
		logger.Error("invalid codec", zap.Error(err))
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := transport.Listen(ctx, kind, mc.Transport.Address)
	if err != nil {
		logger.Error("listen failed", zap.Stringer("kind", kind), zap.String("addr", mc.Transport.Address), zap.Error(err))
		return 1
	}

	sched := taskmsg.NewScheduler(
		taskmsg.WithThreads(mc.IOThreads),
		taskmsg.WithPollInterval(mc.PollInterval),
		taskmsg.WithLogger(logger.Named("scheduler")))
	manager := taskmsg.NewManager(sched,
		taskmsg.WithManagerLogger(logger.Named("manager")),
		taskmsg.WithMaxBodySize(mc.MaxBodySize))
	server := taskmsg.NewServer(sched, manager, l,
		taskmsg.WithServerLogger(logger.Named("server")),
		taskmsg.WithMaintenanceInterval(mc.MaintenanceInterval))

	sched.Start()
	server.Start()
	logger.Info("manager started",
		zap.Stringer("transport", kind),
		zap.String("addr", addrString(server)),
		zap.Int("threads", sched.Threads()),
		zap.String("codec", c.Name()))

	gen := skill.NewGenerator(c, new(taskmsg.TaskIDs))
	if n, err := gen.Fill(manager.Queue(), mc.InitialTasks); err != nil {
		logger.Warn("initial task generation failed", zap.Error(err))
	} else {
		logger.Info("initial tasks queued", zap.Int("count", n))
	}
	if mc.Refill.Enable {
		policy := skill.RefillPolicy{Low: mc.Refill.Low, Amount: mc.Refill.Amount, Interval: mc.Refill.Interval}
		go gen.Monitor(ctx, manager.Queue(), policy, logger.Named("generator"))
	}
	if mc.StatsInterval > 0 {
		go logStatistics(ctx, sched, manager, mc.StatsInterval)
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	if err := server.Stop(); err != nil {
		logger.Debug("listener close", zap.Error(err))
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Shutdown(sctx); err != nil {
		logger.Warn("sessions did not finish in time", zap.Error(err))
	}
	manager.CleanupCompletedSessions()
	manager.LogStatistics()
	sched.Stop()
	sched.LogStatistics()
	return 0
}

func logStatistics(ctx context.Context, sched *taskmsg.Scheduler, manager *taskmsg.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			manager.LogStatistics()
			sched.LogStatistics()
		}
	}
}

func addrString(srv *taskmsg.Server) string {
	if a := srv.Addr(); a != nil {
		return a.String()
	}
	return ""
}
