package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelsim/internal/acoustics"
	"voxelsim/internal/config"
	"voxelsim/internal/grid"
	"voxelsim/internal/network"
	"voxelsim/internal/raycast"
	"voxelsim/internal/structure"
	"voxelsim/internal/terrain"
	"voxelsim/internal/water"
	"voxelsim/internal/weather"
)

// listenerFrameLimit is how many frames an escaping listener walk runs before
// its partial estimate is published and the walk restarts.
const listenerFrameLimit = 16

// Publisher fans messages out to telemetry clients.
type Publisher interface {
	Broadcast(msgType network.MessageType, payload any) (int, error)
}

// FrameStats summarises one simulation frame.
type FrameStats struct {
	Frame          uint64         `json:"frame"`
	Edits          int            `json:"edits"`
	WaterLost      float32        `json:"waterLost"`
	Rain           float32        `json:"rain"`
	SourceWater    float32        `json:"sourceWater"`
	WaterActive    int            `json:"waterActive"`
	WaterProcessed int            `json:"waterProcessed"`
	WaterChanges   int            `json:"waterChanges"`
	WaterTotal     float64        `json:"waterTotal"`
	ChunksVerified int            `json:"chunksVerified"`
	CellsVisited   int            `json:"cellsVisited"`
	SweepComplete  bool           `json:"sweepComplete"`
	Debris         int            `json:"debris"`
	DebrisRemoved  int            `json:"debrisRemoved"`
	DebrisQueued   int            `json:"debrisQueued"`
	PrunedChunks   int            `json:"prunedChunks"`
	ZonePublished  bool           `json:"zonePublished"`
	Reverb         network.Reverb `json:"reverb"`
	Weather        weather.State  `json:"weather"`
	Duration       time.Duration  `json:"duration"`
}

// World owns every field of one simulation host and advances them in a fixed
// order each frame. Frame, Flush and the accessors must be called from a single
// goroutine; QueueEdit, HandleEdit and Hello are safe from any goroutine.
type World struct {
	cfg       *config.Config
	logger    *log.Logger
	publisher Publisher

	density   *grid.Grid[float32]
	essence   *grid.FieldLayer[mgl32.Vec4]
	generator *terrain.NoiseGenerator
	water     *water.Simulation
	integrity *structure.Integrity
	listener  *acoustics.ZoneEstimator
	env       *weather.Environment
	rain      *weather.RainEmitter

	edits  *Queue[network.Edit]
	debris *Queue[structure.DebrisEvent]
	queued map[uint64]struct{}

	densityDeltas *deltaAccumulator
	waterDeltas   *deltaAccumulator
	deltaSeq      uint64
	removed       []network.Debris
	dirty         map[grid.ChunkKey]struct{}

	frame        atomic.Uint64
	chunks       atomic.Int64
	listenFrames int
	zone         acoustics.ZoneEstimate
	reverb       acoustics.ReverbParams
	reverbDirty  bool
	onReverb     func(acoustics.ReverbParams)
	last         FrameStats
	now          func() time.Time
}

func New(cfg *config.Config, logger *log.Logger, publisher Publisher) (*World, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if logger == nil {
		logger = log.New(log.Writer(), "voxelsim ", log.LstdFlags|log.Lmicroseconds)
	}

	density := grid.New[float32]()
	w := &World{
		cfg:           cfg,
		logger:        logger,
		publisher:     publisher,
		density:       density,
		essence:       grid.NewFieldLayer[mgl32.Vec4](grid.LayerEssence),
		generator:     terrain.NewNoiseGenerator(cfg.Terrain, logger),
		water:         water.NewSimulation(density),
		integrity:     structure.NewIntegrity(),
		listener:      acoustics.NewZoneEstimator(cfg.Acoustics.Threshold),
		env:           weather.New(weather.FromConfig(cfg.Weather)),
		rain:          weather.NewRainEmitter(terrain.Region(cfg.Terrain), cfg.Weather.RainRate, cfg.Weather.Seed),
		edits:         NewQueue[network.Edit](),
		debris:        NewQueue[structure.DebrisEvent](),
		queued:        make(map[uint64]struct{}),
		dirty:         make(map[grid.ChunkKey]struct{}),
		densityDeltas: newDeltaAccumulator(network.LayerDensity),
		waterDeltas:   newDeltaAccumulator(network.LayerWater),
		now:           time.Now,
	}

	w.water.SetPerFrameBudget(cfg.Water.PerFrameBudget)
	w.water.OnChange(func(ev water.ChangeEvent) {
		w.waterDeltas.add(ev.Coord, ev.Previous, ev.Level, network.ChangeReasonFlow)
	})

	w.integrity.SetPerFrameBudget(cfg.Structure.PerFrameBudget.Duration())
	w.integrity.SetDensityThreshold(cfg.Structure.DensityThreshold)
	w.integrity.OnDebris(w.enqueueDebris)

	l := cfg.Acoustics.Listener
	w.listener.Reset(l.X, l.Y, l.Z)
	return w, nil
}

// Generate fills the configured terrain region.
func (w *World) Generate(ctx context.Context) error {
	region := terrain.Region(w.cfg.Terrain)
	if err := w.generator.Generate(ctx, w.density, w.essence, region); err != nil {
		return fmt.Errorf("generate terrain: %w", err)
	}
	w.markAllDirty()
	w.chunks.Store(int64(w.density.ChunkCount()))
	w.logger.Printf("terrain ready: %d chunks in region %v..%v", w.density.ChunkCount(), region.Min, region.Max)
	return nil
}

func (w *World) Config() *config.Config                { return w.cfg }
func (w *World) Density() *grid.Grid[float32]          { return w.density }
func (w *World) Essence() *grid.FieldLayer[mgl32.Vec4] { return w.essence }
func (w *World) Water() *water.Simulation              { return w.water }
func (w *World) Weather() *weather.Environment         { return w.env }
func (w *World) Frames() uint64                        { return w.frame.Load() }
func (w *World) LastStats() FrameStats                 { return w.last }
func (w *World) Zone() acoustics.ZoneEstimate          { return w.zone }
func (w *World) Reverb() acoustics.ReverbParams        { return w.reverb }

// PendingDebris returns the debris reported since the last Flush.
func (w *World) PendingDebris() []network.Debris {
	return append([]network.Debris(nil), w.removed...)
}

// OnReverb registers a callback run on the frame goroutine whenever new
// reverb parameters are published.
func (w *World) OnReverb(cb func(acoustics.ReverbParams)) {
	w.onReverb = cb
}

// Hello describes the host to a newly connected telemetry client.
func (w *World) Hello() any {
	return network.Hello{
		Frame:     w.frame.Load(),
		ChunkSize: grid.ChunkSize,
		Chunks:    int(w.chunks.Load()),
	}
}

// QueueEdit schedules a density overwrite for the next frame. Edits outside
// the addressable range are dropped when applied.
func (w *World) QueueEdit(edit network.Edit) {
	w.edits.Enqueue(edit)
}

// HandleEdit decodes an edit message from a telemetry client.
func (w *World) HandleEdit(ctx context.Context, env network.Envelope) {
	var edit network.Edit
	if err := network.DecodePayload(env, &edit); err != nil {
		w.logger.Printf("decode edit: %v", err)
		return
	}
	if !grid.Addressable(edit.X, edit.Y, edit.Z) {
		w.logger.Printf("reject edit at (%d,%d,%d): outside the addressable range", edit.X, edit.Y, edit.Z)
		return
	}
	w.QueueEdit(edit)
}

// Relisten moves the acoustic listener and restarts its walk.
func (w *World) Relisten(x, y, z int) {
	w.cfg.Acoustics.Listener = config.Cell{X: x, Y: y, Z: z}
	w.listener.Reset(x, y, z)
	w.listenFrames = 0
}

// Probe casts a ray against the density field using the structural threshold.
func (w *World) Probe(origin, dir mgl32.Vec3, maxDistance float32) (raycast.Hit, bool) {
	return raycast.CastRay(w.density, origin, dir, maxDistance, w.cfg.Structure.DensityThreshold)
}

// Frame advances every subsystem once: edits, weather and rain, water sources,
// water flow, structural integrity, debris removal and the acoustic walk.
func (w *World) Frame() FrameStats {
	start := w.now()
	stats := FrameStats{Frame: w.frame.Load() + 1}

	var supported bool
	stats.Edits, stats.WaterLost, supported = w.applyEdits()
	if supported {
		// queued reports predate the new support and are re-found by the sweep
		w.dropQueuedDebris()
	}

	state := w.env.Step(w.cfg.Host.FrameInterval.Duration())
	stats.Weather = state
	stats.Rain = w.rain.Fall(w.density, w.water, state.Precipitation)
	for _, src := range w.cfg.Water.Sources {
		stats.SourceWater += w.water.AddWater(src.X, src.Y, src.Z, src.Rate)
	}

	ws := w.water.Step()
	stats.WaterActive = ws.ActiveCells
	stats.WaterProcessed = ws.ProcessedCells
	stats.WaterChanges = ws.Changes
	stats.WaterTotal = ws.TotalWater

	is := w.integrity.Update(w.density)
	stats.ChunksVerified = is.ChunksVerified
	stats.CellsVisited = is.CellsVisited
	stats.SweepComplete = is.SweepComplete
	stats.Debris = is.Debris

	stats.DebrisRemoved, stats.PrunedChunks = w.clearDebris()
	stats.DebrisQueued = w.debris.Len()

	stats.ZonePublished = w.advanceListener()
	stats.Reverb = w.reverbPayload()

	w.frame.Store(stats.Frame)
	w.chunks.Store(int64(w.density.ChunkCount()))
	stats.Duration = w.now().Sub(start)
	w.last = stats
	return stats
}

// applyEdits writes queued edits. It returns the number applied, the water
// that solid edits could not displace, and whether any edit added matter.
func (w *World) applyEdits() (applied int, lost float32, supported bool) {
	batch := w.edits.Drain(0)
	for _, edit := range batch {
		if !grid.Addressable(edit.X, edit.Y, edit.Z) {
			w.logger.Printf("drop edit at (%d,%d,%d): outside the addressable range", edit.X, edit.Y, edit.Z)
			continue
		}
		applied++
		after := clampDensity(edit.Density)
		before := w.density.Get(edit.X, edit.Y, edit.Z)
		if before == after {
			continue
		}
		w.density.Set(edit.X, edit.Y, edit.Z, after)
		if after >= w.cfg.Structure.DensityThreshold {
			if before < w.cfg.Structure.DensityThreshold {
				supported = true
			}
			if w.essence.Get(edit.X, edit.Y, edit.Z) == (mgl32.Vec4{}) {
				w.essence.Set(edit.X, edit.Y, edit.Z, terrain.Stone)
			}
		} else {
			w.essence.Set(edit.X, edit.Y, edit.Z, mgl32.Vec4{})
		}
		if after >= water.SolidThreshold {
			lost += w.displaceWater(edit.X, edit.Y, edit.Z)
		}
		w.densityDeltas.add(grid.Coord{X: edit.X, Y: edit.Y, Z: edit.Z}, before, after, network.ChangeReasonEdit)
		cc, _, _, _ := grid.ChunkOf(edit.X, edit.Y, edit.Z)
		w.markDirty(cc)
	}
	if lost > 0 {
		w.logger.Printf("solid edits left %.3f water with nowhere to go", lost)
	}
	return applied, lost, supported
}

// up first, then sideways, then down
var displaceOrder = [...]grid.Coord{{Y: 1}, {X: 1}, {X: -1}, {Z: 1}, {Z: -1}, {Y: -1}}

const displaceSearchLimit = 64

// displaceWater moves the water of a cell that just became solid into the
// nearest open cells, searching outward through non-solid space. It returns
// the amount that found no room.
func (w *World) displaceWater(x, y, z int) float32 {
	remaining := w.water.RemoveWater(x, y, z)
	if remaining <= 0 {
		return 0
	}
	origin := grid.Coord{X: x, Y: y, Z: z}
	w.waterDeltas.add(origin, remaining, 0, network.ChangeReasonEdit)

	queue := []grid.Coord{origin}
	seen := map[grid.Coord]struct{}{origin: {}}
	for head := 0; head < len(queue) && remaining > 0 && len(seen) <= displaceSearchLimit; head++ {
		for _, off := range displaceOrder {
			n := queue[head].Add(off)
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			if w.density.Get(n.X, n.Y, n.Z) >= water.SolidThreshold {
				continue
			}
			prev := w.water.Level(n.X, n.Y, n.Z)
			if accepted := w.water.AddWater(n.X, n.Y, n.Z, remaining); accepted > 0 {
				w.waterDeltas.add(n, prev, prev+accepted, network.ChangeReasonEdit)
				remaining -= accepted
				if remaining <= 0 {
					break
				}
			}
			queue = append(queue, n)
		}
	}
	return remaining
}

func (w *World) dropQueuedDebris() {
	w.debris.Drain(0)
	clear(w.queued)
}

func (w *World) enqueueDebris(ev structure.DebrisEvent) {
	key := grid.CellKey(ev.X, ev.Y, ev.Z)
	if _, ok := w.queued[key]; ok {
		return
	}
	w.queued[key] = struct{}{}
	w.debris.Enqueue(ev)
}

// clearDebris drains queued debris and, when configured, turns it to air.
// Chunks left without any matter are dropped from the grid.
func (w *World) clearDebris() (removed, pruned int) {
	batch := w.debris.Drain(w.cfg.Host.DebrisPerFrame)
	if len(batch) == 0 {
		return 0, 0
	}
	touched := make(map[grid.ChunkCoord]struct{})
	for _, ev := range batch {
		delete(w.queued, grid.CellKey(ev.X, ev.Y, ev.Z))
		report := network.Debris{X: ev.X, Y: ev.Y, Z: ev.Z, Density: ev.Density}
		if w.cfg.Host.RemoveDebris {
			before := w.density.Get(ev.X, ev.Y, ev.Z)
			if before >= w.cfg.Structure.DensityThreshold {
				w.density.Set(ev.X, ev.Y, ev.Z, 0)
				w.essence.Set(ev.X, ev.Y, ev.Z, mgl32.Vec4{})
				w.densityDeltas.add(grid.Coord{X: ev.X, Y: ev.Y, Z: ev.Z}, before, 0, network.ChangeReasonCollapse)
				cc, _, _, _ := grid.ChunkOf(ev.X, ev.Y, ev.Z)
				touched[cc] = struct{}{}
				w.markDirty(cc)
				report.Removed = true
				removed++
			}
		}
		w.removed = append(w.removed, report)
	}
	for cc := range touched {
		if w.pruneChunk(cc) {
			pruned++
		}
	}
	return removed, pruned
}

func (w *World) pruneChunk(cc grid.ChunkCoord) bool {
	empty := w.density.ForEachCell(cc.X, cc.Y, cc.Z, func(x, y, z int, v float32) bool {
		return v == 0
	})
	if !empty {
		return false
	}
	w.essence.Grid().RemoveChunk(cc.X, cc.Y, cc.Z)
	return w.density.RemoveChunk(cc.X, cc.Y, cc.Z)
}

// advanceListener spends this frame's acoustic budget and publishes an estimate
// when the walk seals or has run for listenerFrameLimit frames.
func (w *World) advanceListener() bool {
	complete := w.listener.AdvanceBFS(w.density, w.cfg.Acoustics.MaxVoxelsPerFrame)
	w.listenFrames++
	if !complete && w.listenFrames < listenerFrameLimit {
		return false
	}
	w.zone = w.listener.Estimate()
	w.reverb = acoustics.MapToReverbParams(w.zone, w.cfg.Acoustics.VoxelSize)
	w.reverbDirty = true
	if w.onReverb != nil {
		w.onReverb(w.reverb)
	}
	start := w.listener.Start()
	w.listener.Reset(start.X, start.Y, start.Z)
	w.listenFrames = 0
	return true
}

func (w *World) reverbPayload() network.Reverb {
	return network.Reverb{
		Volume:      w.zone.Volume,
		SurfaceArea: w.zone.SurfaceArea,
		Openness:    w.zone.Openness,
		Complete:    w.zone.Complete,
		DecayTime:   w.reverb.DecayTime,
		Damping:     w.reverb.Damping,
		WetMix:      w.reverb.WetMix,
	}
}

// Flush publishes everything accumulated since the previous flush. Deltas are
// dropped when no publisher is attached.
func (w *World) Flush() error {
	deltas := append(w.densityDeltas.flush(&w.deltaSeq), w.waterDeltas.flush(&w.deltaSeq)...)
	removed := w.removed
	w.removed = nil
	dirty := w.reverbDirty
	w.reverbDirty = false
	if w.publisher == nil {
		return nil
	}

	var errs []error
	for _, delta := range deltas {
		if _, err := w.publisher.Broadcast(network.MessageChunkDelta, delta); err != nil {
			errs = append(errs, fmt.Errorf("broadcast chunk delta %d: %w", delta.Seq, err))
		}
	}
	if len(removed) > 0 {
		if _, err := w.publisher.Broadcast(network.MessageDebris, removed); err != nil {
			errs = append(errs, fmt.Errorf("broadcast debris: %w", err))
		}
	}
	if dirty {
		if _, err := w.publisher.Broadcast(network.MessageReverb, w.reverbPayload()); err != nil {
			errs = append(errs, fmt.Errorf("broadcast reverb: %w", err))
		}
	}
	if _, err := w.publisher.Broadcast(network.MessageFrameStats, w.last); err != nil {
		errs = append(errs, fmt.Errorf("broadcast frame stats: %w", err))
	}
	return errors.Join(errs...)
}

func clampDensity(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
