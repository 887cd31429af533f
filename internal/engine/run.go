package engine

import (
	"context"
	"time"
)

const statsLogEvery = 300

// Run drives frames at the configured interval and flushes telemetry on its
// own ticker. It returns nil after MaxFrames frames and ctx.Err() when
// cancelled.
func (w *World) Run(ctx context.Context) error {
	frameTicker := time.NewTicker(w.cfg.Host.FrameInterval.Duration())
	defer frameTicker.Stop()

	var flushC <-chan time.Time
	flushEveryFrame := false
	if w.publisher != nil {
		if interval := w.cfg.Telemetry.Interval.Duration(); interval > 0 {
			flushTicker := time.NewTicker(interval)
			defer flushTicker.Stop()
			flushC = flushTicker.C
		} else {
			flushEveryFrame = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.flush()
			return ctx.Err()
		case <-frameTicker.C:
			stats := w.Frame()
			if flushEveryFrame {
				w.flush()
			}
			if stats.Frame%statsLogEvery == 0 {
				w.logger.Printf("frame %d: water %.2f over %d cells, %d chunks verified, %d debris queued, weather %s",
					stats.Frame, stats.WaterTotal, stats.WaterActive, stats.ChunksVerified, stats.DebrisQueued, stats.Weather.Kind)
			}
			if max := w.cfg.Host.MaxFrames; max > 0 && stats.Frame >= uint64(max) {
				w.flush()
				w.logger.Printf("stopping after %d frames", stats.Frame)
				return nil
			}
		case <-flushC:
			w.flush()
		}
	}
}

func (w *World) flush() {
	if err := w.Flush(); err != nil {
		w.logger.Printf("flush telemetry: %v", err)
	}
}
