package acoustics

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

const (
	MinDecayTime float32 = 0.1
	MaxDecayTime float32 = 3.0
	MinDamping   float32 = 0.1
	MaxDamping   float32 = 0.9

	// Sabine constant and a uniform absorption coefficient for voxel faces.
	sabine     = 0.161
	absorption = 0.3
)

// ReverbParams drive a reverb effect for the zone a listener stands in.
type ReverbParams struct {
	DecayTime float32
	Damping   float32
	WetMix    float32
}

// MapToReverbParams converts a zone estimate into clamped reverb settings.
// Volume scales with voxelSize cubed and surface with its square; a
// non-positive voxelSize is treated as one.
func MapToReverbParams(zone ZoneEstimate, voxelSize float32) ReverbParams {
	if voxelSize <= 0 {
		voxelSize = 1
	}
	v := float32(zone.Volume) * voxelSize * voxelSize * voxelSize
	s := float32(zone.SurfaceArea) * voxelSize * voxelSize

	decay := MinDecayTime
	if s > 0 {
		decay = clamp(sabine*v/(absorption*s), MinDecayTime, MaxDecayTime)
	}

	damping := MinDamping
	if zone.Volume > 0 {
		damping = clamp(float32(zone.SurfaceArea)/float32(zone.Volume), MinDamping, MaxDamping)
	}

	openness := clamp(zone.Openness, 0, 1)
	wet := clamp((decay/MaxDecayTime)*(1-0.5*openness), 0, 1)

	return ReverbParams{DecayTime: decay, Damping: damping, WetMix: wet}
}

var combDelays = [...]time.Duration{
	29700 * time.Microsecond,
	37100 * time.Microsecond,
	41100 * time.Microsecond,
	43700 * time.Microsecond,
}

type comb struct {
	buf      [][2]float64
	pos      int
	delay    float64
	feedback float64
	store    [2]float64
}

// Reverb is a parallel comb-filter reverb applied to a source stream.
type Reverb struct {
	src     beep.Streamer
	combs   []comb
	damping float64
	wet     float64
}

// NewReverb wraps src. Parameters can be swapped while streaming via SetParams.
func NewReverb(src beep.Streamer, params ReverbParams, rate beep.SampleRate) *Reverb {
	r := &Reverb{src: src, combs: make([]comb, len(combDelays))}
	for i, d := range combDelays {
		n := rate.N(d)
		if n < 1 {
			n = 1
		}
		r.combs[i] = comb{buf: make([][2]float64, n), delay: d.Seconds()}
	}
	r.SetParams(params)
	return r
}

// SetParams applies new decay, damping and mix values. Each comb's feedback
// is chosen so its echoes fall by 60dB over the decay time.
func (r *Reverb) SetParams(params ReverbParams) {
	decay := float64(clamp(params.DecayTime, MinDecayTime, MaxDecayTime))
	r.damping = float64(clamp(params.Damping, 0, 1))
	r.wet = float64(clamp(params.WetMix, 0, 1))
	for i := range r.combs {
		r.combs[i].feedback = math.Pow(0.001, r.combs[i].delay/decay)
	}
}

func (r *Reverb) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = r.src.Stream(samples)
	scale := 1 / float64(len(r.combs))
	for i := 0; i < n; i++ {
		in := samples[i]
		var acc [2]float64
		for j := range r.combs {
			c := &r.combs[j]
			for ch := 0; ch < 2; ch++ {
				y := c.buf[c.pos][ch]
				c.store[ch] = y*(1-r.damping) + c.store[ch]*r.damping
				c.buf[c.pos][ch] = in[ch] + c.store[ch]*c.feedback
				acc[ch] += y
			}
			c.pos++
			if c.pos == len(c.buf) {
				c.pos = 0
			}
		}
		for ch := 0; ch < 2; ch++ {
			samples[i][ch] = in[ch]*(1-r.wet) + acc[ch]*scale*r.wet
		}
	}
	return n, ok
}

func (r *Reverb) Err() error { return r.src.Err() }
