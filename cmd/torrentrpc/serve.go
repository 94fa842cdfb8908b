package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/funvibe/torrentrpc/internal/command"
	"github.com/funvibe/torrentrpc/internal/config"
	"github.com/funvibe/torrentrpc/internal/core"
	"github.com/funvibe/torrentrpc/internal/engine"
	"github.com/funvibe/torrentrpc/internal/object"
	"github.com/funvibe/torrentrpc/internal/persist"
	"github.com/funvibe/torrentrpc/internal/rpc"
	"github.com/funvibe/torrentrpc/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the command engine over XML-RPC, JSON-RPC and gRPC",
	RunE:  runServe,
}

var (
	listenAddr     string
	grpcListenAddr string
)

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "override the HTTP listen address")
	serveCmd.Flags().StringVar(&grpcListenAddr, "grpc-listen", "", "override the gRPC listen address")
}

// daemon holds the single engine instance and everything registered on it.
type daemon struct {
	engine  *engine.Engine
	manager *core.Manager
	bridge  *rpc.Bridge
	store   *persist.Store
}

// newDaemon builds the engine, the scheduler and the bridge, then runs the
// startup commands. With withStorage set, saved methods are restored after
// the startup commands; names those commands defined keep their new
// definition.
func newDaemon(cfg *config.Config, withStorage bool) (*daemon, error) {
	d := &daemon{
		engine:  engine.New(),
		manager: core.NewManager(),
	}
	d.engine.Out = os.Stdout

	if err := d.engine.InstallScheduler(d.manager, d.manager); err != nil {
		return nil, fmt.Errorf("install scheduler: %w", err)
	}
	if _, err := d.engine.Call(config.MaxActiveCommand+config.SetSuffix, command.NoTarget(), object.Int(cfg.Scheduler.MaxActive)); err != nil {
		return nil, fmt.Errorf("scheduler.max_active: %w", err)
	}

	bridge, err := rpc.NewBridge(d.engine)
	if err != nil {
		return nil, fmt.Errorf("rpc bridge: %w", err)
	}
	dialect, err := rpc.ParseDialect(cfg.RPC.Dialect)
	if err != nil {
		return nil, err
	}
	limit, err := cfg.SizeLimitBytes()
	if err != nil {
		return nil, err
	}
	if err := bridge.SetSizeLimit(limit); err != nil {
		return nil, err
	}
	bridge.SetDialect(dialect)
	bridge.SetReadonly(cfg.RPC.Readonly)
	bridge.UseManager(d.manager)
	d.bridge = bridge

	if withStorage && cfg.Storage.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
		store, err := persist.Open(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		d.store = store
		if _, err := store.Stage(context.Background()); err != nil {
			d.close()
			return nil, err
		}
		if err := persist.Install(d.engine, store); err != nil {
			d.close()
			return nil, err
		}
	}

	for _, line := range cfg.Startup {
		if _, err := d.engine.Eval(line, command.NoTarget()); err != nil {
			d.close()
			return nil, fmt.Errorf("startup command %q: %w", line, err)
		}
	}
	if d.store != nil {
		d.store.RestoreStaged(d.engine)
	}
	return d, nil
}

func (d *daemon) close() {
	if d.store != nil {
		_ = d.store.Close()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.RPC.Listen = listenAddr
	}
	if grpcListenAddr != "" {
		cfg.RPC.GRPCListen = grpcListenAddr
	}

	d, err := newDaemon(cfg, true)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loop := server.NewLoop()
	go loop.Run(loopCtx)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := server.NewMetrics(reg)

	errCh := make(chan error, 2)
	httpSrv := &http.Server{
		Addr:              cfg.RPC.Listen,
		Handler:           server.New(d.bridge, loop, metrics, reg).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("XML-RPC on http://%s/RPC2, JSON-RPC on /jsonrpc, metrics on /metrics", cfg.RPC.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var grpcStop func()
	if cfg.RPC.GRPCListen != "" {
		grpcSrv, err := server.NewGRPC(d.bridge, loop, metrics)
		if err != nil {
			return err
		}
		lis, err := net.Listen("tcp", cfg.RPC.GRPCListen)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			log.Infof("gRPC %s on %s", rpc.CommandsService, cfg.RPC.GRPCListen)
			if err := grpcSrv.Serve(lis); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		grpcStop = grpcSrv.GracefulStop
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err = <-errCh:
		log.Errorf("server failed: %s", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := httpSrv.Shutdown(shutdownCtx); serr != nil {
		log.Warnf("http shutdown: %s", serr)
	}
	if grpcStop != nil {
		grpcStop()
	}

	if d.store != nil {
		var saveErr error
		if derr := loop.Do(shutdownCtx, func() {
			_, saveErr = d.store.SaveEngine(shutdownCtx, d.engine)
		}); derr != nil {
			saveErr = derr
		}
		if saveErr != nil {
			log.Errorf("saving methods: %s", saveErr)
		}
	}
	return err
}
