// Package audio plays simulation events through the speaker with the current
// listener's reverb applied.
package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"voxelsim/internal/acoustics"
)

const (
	SampleRate = beep.SampleRate(44100)

	collapseTone     = 110.0
	collapseDuration = 60 * time.Millisecond
	collapseGain     = 0.4
)

// Player mixes event sounds onto the speaker. Every method is a no-op until
// Initialize succeeds, so callers may keep running without an audio device.
type Player struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	params      acoustics.ReverbParams
	initialized bool
}

func NewPlayer() *Player {
	return &Player{
		mixer:  &beep.Mixer{},
		params: acoustics.ReverbParams{DecayTime: acoustics.MinDecayTime, Damping: acoustics.MinDamping},
	}
}

func (p *Player) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}
	if err := speaker.Init(SampleRate, SampleRate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(p.mixer)
	p.initialized = true
	return nil
}

// SetReverb changes the room applied to sounds started afterwards.
func (p *Player) SetReverb(params acoustics.ReverbParams) {
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
}

func (p *Player) Reverb() acoustics.ReverbParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// PlayCollapse queues one collapse thud and reports whether it was queued.
func (p *Player) PlayCollapse() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return false
	}
	s, err := collapseStreamer(p.params)
	if err != nil {
		return false
	}
	speaker.Lock()
	p.mixer.Add(s)
	speaker.Unlock()
	return true
}

func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return
	}
	speaker.Lock()
	p.mixer.Clear()
	speaker.Unlock()
	speaker.Close()
	p.initialized = false
}

// collapseStreamer is a short low tone followed by enough silence for the
// reverb tail to ring out.
func collapseStreamer(params acoustics.ReverbParams) (beep.Streamer, error) {
	tone, err := generators.SineTone(SampleRate, collapseTone)
	if err != nil {
		return nil, err
	}
	tail := time.Duration(float64(params.DecayTime) * float64(time.Second))
	dry := beep.Seq(
		beep.Take(SampleRate.N(collapseDuration), gain(tone, collapseGain)),
		beep.Silence(SampleRate.N(tail)),
	)
	return acoustics.NewReverb(dry, params, SampleRate), nil
}

func gain(s beep.Streamer, g float64) beep.Streamer {
	return beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		n, ok := s.Stream(samples)
		for i := 0; i < n; i++ {
			samples[i][0] *= g
			samples[i][1] *= g
		}
		return n, ok
	})
}
