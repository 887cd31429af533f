package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"voxelsim/internal/audio"
	"voxelsim/internal/config"
	"voxelsim/internal/engine"
	"voxelsim/internal/network"
	"voxelsim/internal/terrain"
	"voxelsim/internal/view"
)

func main() {
	var (
		cfgPath string
		logPath string
		mute    bool
	)
	flag.StringVar(&cfgPath, "config", "", "path to simulation configuration file (JSON or YAML)")
	flag.StringVar(&logPath, "log", "", "write logs to this file instead of discarding them")
	flag.BoolVar(&mute, "mute", false, "disable audio")
	flag.Parse()

	logger, closeLog, err := openLog(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	world, err := engine.New(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise world: %v\n", err)
		os.Exit(1)
	}
	if err := world.Generate(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "generate world: %v\n", err)
		os.Exit(1)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "create screen: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "init screen: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	player := audio.NewPlayer()
	if !mute {
		if err := player.Initialize(); err != nil {
			// Non-fatal, the viewer runs without sound
			logger.Printf("audio initialisation failed: %v", err)
		}
	}
	defer player.Close()
	world.OnReverb(player.SetReverb)

	region := terrain.Region(cfg.Terrain)
	renderer := view.NewRenderer(screen, region.Min.X, region.Min.Y, cfg.Acoustics.Listener.Z)
	run(screen, world, renderer, player, logger)
}

func run(screen tcell.Screen, world *engine.World, renderer *view.Renderer, player *audio.Player, logger *log.Logger) {
	ticker := time.NewTicker(world.Config().Host.FrameInterval.Duration())
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	renderer.Draw(world)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !handleKey(world, renderer, ev) {
					return
				}
				renderer.Draw(world)
			case *tcell.EventResize:
				screen.Sync()
			}

		case <-ticker.C:
			step(world, renderer, player, logger)
		}
	}
}

// step advances one frame, sounds collapses and redraws before flushing so
// this frame's debris is still highlighted.
func step(world *engine.World, renderer *view.Renderer, player *audio.Player, logger *log.Logger) engine.FrameStats {
	stats := world.Frame()
	if stats.DebrisRemoved > 0 {
		player.PlayCollapse()
	}
	renderer.Draw(world)
	if err := world.Flush(); err != nil {
		logger.Printf("flush frame %d: %v", stats.Frame, err)
	}
	return stats
}

func handleKey(world *engine.World, renderer *view.Renderer, ev *tcell.EventKey) bool {
	x, y, z := renderer.Center()
	switch renderer.HandleKey(ev) {
	case view.ActionQuit:
		return false
	case view.ActionRelisten:
		world.Relisten(x, y, z)
	case view.ActionPlace:
		world.QueueEdit(network.Edit{X: x, Y: y, Z: z, Density: 1})
	case view.ActionCarve:
		world.QueueEdit(network.Edit{X: x, Y: y, Z: z, Density: 0})
	}
	return true
}

func openLog(path string) (*log.Logger, func(), error) {
	if path == "" {
		return log.New(io.Discard, "", 0), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return log.New(f, "voxelview ", log.LstdFlags|log.Lmicroseconds), func() { f.Close() }, nil
}
