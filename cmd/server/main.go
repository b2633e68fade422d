package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/graflow/graflow/cmd/server/config"
	"github.com/graflow/graflow/internal/domain/runner"
	graflowhttp "github.com/graflow/graflow/internal/infrastructure/http"
	natsbridge "github.com/graflow/graflow/internal/infrastructure/messaging/nats"
	"github.com/graflow/graflow/internal/infrastructure/monitoring"
	"github.com/graflow/graflow/internal/infrastructure/registry"
	"github.com/graflow/graflow/internal/infrastructure/transport"
)

// staleRunnerThreshold is how long a runner may go without a heartbeat
// before the cron sweep evicts it from the registry.
const staleRunnerThreshold = 90 * time.Second

func main() {
	root := &cobra.Command{
		Use:   "graflow-server",
		Short: "graflow is a dependency-driven shell-pipeline scheduling engine",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(GetVersion().String())
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the graflow HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

// serve wires the registry, transport bridge and HTTP router, then blocks
// until an interrupt signal or the registry self-terminates with no
// workspaces remaining. Exit code 2 signals a port-bind or singleton
// failure (§6.6); any other startup error exits 1 via log.Fatal.
func serve() error {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	fmt.Printf("graflow server — listening on %s\n", cfg.ServerAddr())
	fmt.Printf("state dir: %s\n", cfg.Storage.StateDir)

	ln, err := net.Listen("tcp", cfg.ServerAddr())
	if err != nil {
		fmt.Fprintf(os.Stderr, "bind %s: %v\n", cfg.ServerAddr(), err)
		os.Exit(2)
	}

	metrics := monitoring.New("graflow")

	var publisher *natsbridge.Publisher
	if cfg.NATS.Enabled {
		logger := watermill.NewStdLogger(false, false)
		publisher, err = natsbridge.NewPublisher(cfg.NATS.URL, logger)
		if err != nil {
			log.Fatalf("failed to create NATS publisher: %v", err)
		}
		defer publisher.Close()
		fmt.Println("NATS publisher connected:", cfg.NATS.URL)
	}
	bridge := transport.NewBridge(publisher)
	runners := runner.NewRegistry()

	sched := cron.New()
	sched.AddFunc("@every 1m", func() {
		removed := runners.CleanupStale(staleRunnerThreshold)
		if removed > 0 {
			log.Printf("swept %d stale runner(s)", removed)
		}
		metrics.RunnersConnected.Set(float64(runners.Count()))
	})
	sched.Start()
	defer sched.Stop()

	shutdown := make(chan struct{})
	reg := registry.New(registry.Config{
		StateDir:      cfg.Storage.StateDir,
		QueueCapacity: cfg.Server.QueueCapacity,
		IdleGrace:     cfg.Server.IdleGrace,
		LogMaxBytes:   cfg.Storage.LogMaxBytes,
		OnEmpty: func() {
			close(shutdown)
		},
	}, metrics, bridge)

	e := graflowhttp.New(reg, bridge, metrics, runners, graflowhttp.Config{
		Version:         GetVersion().ShortVersion(),
		MutationWait:    cfg.Server.MutationWait,
		RateLimitPerSec: cfg.Server.RateLimitPerSec,
		RateLimitBurst:  cfg.Server.RateLimitBurst,
	})

	e.Listener = ln
	go func() {
		if err := e.Start(cfg.ServerAddr()); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-shutdown:
		fmt.Println("no workspaces remain, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if err := reg.Shutdown(shutdownCtx); err != nil {
		log.Printf("registry shutdown error: %v", err)
	}

	fmt.Println("shutdown complete")
	return nil
}
