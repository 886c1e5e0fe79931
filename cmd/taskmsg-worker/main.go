// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command taskmsg-worker connects to a manager and runs the tasks it sends.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"code.hybscloud.com/taskmsg/codec"
	"code.hybscloud.com/taskmsg/config"
	"code.hybscloud.com/taskmsg/observability"
	"code.hybscloud.com/taskmsg/skill"
	"code.hybscloud.com/taskmsg/transport"
	"code.hybscloud.com/taskmsg/worker"
	"go.uber.org/zap"
)

type options struct {
	configPath string
	kind       string
	addr       string
	name       string
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "path to config file (default: search for taskmsg.yaml)")
	flag.StringVar(&opts.kind, "kind", "", "transport kind: tcp|quic|ws|winpipe (overrides config)")
	flag.StringVar(&opts.addr, "addr", "", "manager address (overrides config)")
	flag.StringVar(&opts.name, "name", "", "logical worker name (overrides config)")
	flag.Parse()
	os.Exit(run(opts))
}

func run(opts options) int {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	wc := cfg.Worker
	if opts.kind != "" {
		wc.Transport.Kind = opts.kind
	}
	if opts.addr != "" {
		wc.Transport.Address = opts.addr
	}
	if opts.name != "" {
		wc.Name = opts.name
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = logger.Sync() }()
	logger = logger.Named(wc.Name)

	kind, err := transport.ParseKind(wc.Transport.Kind)
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

	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return transport.Dial(ctx, kind, wc.Transport.Address)
	}
	w := worker.New(dial, skill.NewRegistry(c),
		worker.WithLogger(logger),
		worker.WithReconnectDelay(wc.ReconnectDelay),
		worker.WithMaxBodySize(cfg.Manager.MaxBodySize))

	logger.Info("worker starting",
		zap.Stringer("transport", kind),
		zap.String("addr", wc.Transport.Address),
		zap.String("codec", c.Name()))
	err = w.Run(ctx)
	st := w.Stats()
	logger.Info("worker stopped",
		zap.Uint64("connections", st.Connections),
		zap.Uint64("processed", st.TasksProcessed),
		zap.Uint64("failed", st.TasksFailed),
		zap.Uint64("bytes_received", st.BytesReceived),
		zap.Uint64("bytes_sent", st.BytesSent))
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker failed", zap.Error(err))
		return 1
	}
	return 0
}
