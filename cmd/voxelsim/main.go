package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxelsim/internal/config"
	"voxelsim/internal/engine"
	"voxelsim/internal/network"
	"voxelsim/internal/storage"
)

func main() {
	var (
		cfgPath string
		frames  int
		listen  string
	)
	flag.StringVar(&cfgPath, "config", "", "path to simulation configuration file (JSON or YAML)")
	flag.IntVar(&frames, "frames", -1, "stop after this many frames (overrides host.maxFrames when >= 0)")
	flag.StringVar(&listen, "listen", "", "telemetry websocket address (overrides telemetry.listen)")
	flag.Parse()

	logger := log.New(log.Writer(), "voxelsim ", log.LstdFlags|log.Lmicroseconds)

	if wrote, err := writeConfigFromEnv(cfgPath); err != nil {
		logger.Fatalf("sync config from environment: %v", err)
	} else if wrote {
		logger.Printf("wrote configuration from environment to %s", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if frames >= 0 {
		cfg.Host.MaxFrames = frames
	}
	if listen != "" {
		cfg.Telemetry.Listen = listen
	}

	var (
		hub *network.Hub
		pub engine.Publisher
	)
	if cfg.Telemetry.Listen != "" {
		hub = network.NewHub(log.New(log.Writer(), "network ", log.LstdFlags|log.Lmicroseconds))
		pub = hub
	}

	world, err := engine.New(cfg, logger, pub)
	if err != nil {
		logger.Fatalf("initialise world: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	var store *storage.ChunkLog
	if cfg.Storage.Path != "" {
		store, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			logger.Fatalf("open chunk storage: %v", err)
		}
		defer store.Close()
	}
	if err := loadWorld(ctx, world, store); err != nil {
		logger.Fatalf("load world: %v", err)
	}

	var srv *http.Server
	if hub != nil {
		hub.OnConnect(world.Hello)
		hub.Register(network.MessageEdit, world.HandleEdit)
		srv = serveTelemetry(cfg.Telemetry, hub, logger)
	}

	runErr := world.Run(ctx)

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Printf("telemetry shutdown: %v", err)
		}
		stop()
		hub.Close()
	}

	if store != nil {
		if _, err := world.Save(store); err != nil {
			logger.Printf("save world: %v", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Fatalf("simulation exited with error: %v", runErr)
	}
	stats := world.LastStats()
	logger.Printf("finished at frame %d: water %.2f, %d debris queued", stats.Frame, stats.WaterTotal, stats.DebrisQueued)
}

// loadWorld restores persisted chunks and falls back to terrain generation
// when nothing was stored.
func loadWorld(ctx context.Context, world *engine.World, store *storage.ChunkLog) error {
	if store != nil && store.Len() > 0 {
		if _, err := world.Restore(store); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		return nil
	}
	if err := world.Generate(ctx); err != nil {
		return err
	}
	if store != nil {
		if _, err := world.Save(store); err != nil {
			return fmt.Errorf("save generated terrain: %w", err)
		}
	}
	return nil
}

func serveTelemetry(cfg config.TelemetryConfig, hub *network.Hub, logger *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, hub)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("telemetry listening on %s%s", cfg.Listen, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("telemetry server: %v", err)
		}
	}()
	return srv
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
