package acoustics

import (
	"math"
	"testing"

	"github.com/gopxl/beep"

	"voxelsim/internal/grid"
)

// sealedBox builds a solid shell spanning [0,size) on every axis.
func sealedBox(size int) *grid.Grid[float32] {
	density := grid.New[float32]()
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				if x == 0 || y == 0 || z == 0 || x == size-1 || y == size-1 || z == size-1 {
					density.Set(x, y, z, 1)
				}
			}
		}
	}
	return density
}

func openField() *grid.Grid[float32] {
	density := grid.New[float32]()
	for x := -40; x <= 40; x++ {
		for z := -40; z <= 40; z++ {
			density.Set(x, 0, z, 1)
		}
	}
	return density
}

func TestSealedBoxZone(t *testing.T) {
	density := sealedBox(12)
	zone := EstimateZone(density, 5, 5, 5, 100000, DefaultThreshold)

	want := ZoneEstimate{Volume: 1000, SurfaceArea: 600, Openness: 0, Complete: true}
	if zone != want {
		t.Fatalf("unexpected zone: got %+v want %+v", zone, want)
	}

	params := MapToReverbParams(zone, 1)
	if math.Abs(float64(params.DecayTime)-0.8944) > 1e-3 {
		t.Fatalf("unexpected decay time: got %v want ~0.894", params.DecayTime)
	}
	if math.Abs(float64(params.Damping)-0.6) > 1e-6 {
		t.Fatalf("unexpected damping: got %v want 0.6", params.Damping)
	}
	if math.Abs(float64(params.WetMix)-float64(params.DecayTime)/3) > 1e-6 {
		t.Fatalf("sealed zone wet mix should be decay/3, got %v", params.WetMix)
	}
}

func TestIncrementalMatchesOneShot(t *testing.T) {
	tests := []struct {
		name    string
		density *grid.Grid[float32]
		budgets []int
	}{
		{name: "sealed box", density: sealedBox(12), budgets: []int{1, 99, 300, 400, 200}},
		{name: "open field", density: openField(), budgets: []int{250, 250, 250, 250}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := 0
			est := NewZoneEstimator(DefaultThreshold)
			est.Reset(5, 5, 5)
			for _, b := range tt.budgets {
				est.AdvanceBFS(tt.density, b)
				total += b
			}
			got := est.Estimate()
			want := EstimateZone(tt.density, 5, 5, 5, total, DefaultThreshold)
			if got != want {
				t.Fatalf("incremental walk diverged: got %+v want %+v", got, want)
			}
		})
	}
}

func TestOpenFieldIsPartlyOpen(t *testing.T) {
	zone := EstimateZone(openField(), 0, 1, 0, 500, DefaultThreshold)
	if zone.Complete {
		t.Fatalf("an open field cannot be exhausted in 500 voxels")
	}
	if zone.Volume != 500 {
		t.Fatalf("unexpected volume: got %d want 500", zone.Volume)
	}
	if zone.Openness <= 0 || zone.Openness >= 1 {
		t.Fatalf("openness out of range: %v", zone.Openness)
	}

	p := MapToReverbParams(zone, 1)
	if p.WetMix >= p.DecayTime/MaxDecayTime {
		t.Fatalf("openness should dry the mix: wet %v decay %v", p.WetMix, p.DecayTime)
	}
}

func TestSolidStartHasNoVolume(t *testing.T) {
	density := sealedBox(4)
	zone := EstimateZone(density, 0, 0, 0, 100, DefaultThreshold)
	want := ZoneEstimate{Complete: true}
	if zone != want {
		t.Fatalf("unexpected zone: got %+v want %+v", zone, want)
	}
}

func TestAdvanceBFSIgnoresNonPositiveBudget(t *testing.T) {
	est := NewZoneEstimator(DefaultThreshold)
	est.Reset(5, 5, 5)
	if est.AdvanceBFS(sealedBox(12), 0) {
		t.Fatalf("zero budget must not complete the walk")
	}
	if got := est.Estimate(); got != (ZoneEstimate{}) {
		t.Fatalf("zero budget must do no work, got %+v", got)
	}
}

func TestReverbParamsStayInRange(t *testing.T) {
	zones := []ZoneEstimate{
		{},
		{Complete: true},
		{Volume: 1, SurfaceArea: 6},
		{Volume: 1000000, SurfaceArea: 6},
		{Volume: 1000000, SurfaceArea: 0, Openness: 1},
		{Volume: 0, SurfaceArea: 40},
		{Volume: 27, SurfaceArea: 54, Openness: 0.5},
	}
	for _, zone := range zones {
		for _, size := range []float32{-1, 0, 0.25, 1, 4} {
			p := MapToReverbParams(zone, size)
			if p.DecayTime < MinDecayTime || p.DecayTime > MaxDecayTime {
				t.Fatalf("decay out of range for %+v size %v: %v", zone, size, p.DecayTime)
			}
			if p.Damping < MinDamping || p.Damping > MaxDamping {
				t.Fatalf("damping out of range for %+v size %v: %v", zone, size, p.Damping)
			}
			if p.WetMix < 0 || p.WetMix > 1 {
				t.Fatalf("wet mix out of range for %+v size %v: %v", zone, size, p.WetMix)
			}
		}
	}
}

// impulse emits a single full-scale sample followed by silence.
type impulse struct {
	pos, length int
}

func (s *impulse) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if s.pos >= s.length {
			return i, i > 0
		}
		v := 0.0
		if s.pos == 0 {
			v = 1
		}
		samples[i] = [2]float64{v, v}
		s.pos++
	}
	return len(samples), true
}

func (s *impulse) Err() error { return nil }

func TestReverbDryPassesThrough(t *testing.T) {
	rate := beep.SampleRate(44100)
	r := NewReverb(&impulse{length: 64}, ReverbParams{DecayTime: 1, Damping: 0.5, WetMix: 0}, rate)
	samples := make([][2]float64, 64)
	n, ok := r.Stream(samples)
	if n != 64 || !ok {
		t.Fatalf("unexpected stream result: n=%d ok=%v", n, ok)
	}
	if samples[0] != [2]float64{1, 1} {
		t.Fatalf("dry signal altered: %v", samples[0])
	}
	for i := 1; i < n; i++ {
		if samples[i] != [2]float64{} {
			t.Fatalf("dry output gained a tail at %d: %v", i, samples[i])
		}
	}
}

func TestReverbWetTail(t *testing.T) {
	rate := beep.SampleRate(44100)
	r := NewReverb(&impulse{length: 8192}, ReverbParams{DecayTime: 2, Damping: 0.3, WetMix: 1}, rate)
	samples := make([][2]float64, 8192)
	n, _ := r.Stream(samples)
	if n != len(samples) {
		t.Fatalf("unexpected sample count: got %d want %d", n, len(samples))
	}

	first := rate.N(combDelays[0])
	var tail float64
	for i, s := range samples {
		if math.Abs(s[0]) > 1 || math.Abs(s[1]) > 1 {
			t.Fatalf("sample %d out of range: %v", i, s)
		}
		if i < first && s != [2]float64{} {
			t.Fatalf("echo arrived before the shortest delay at %d", i)
		}
		tail += math.Abs(s[0])
	}
	if tail == 0 {
		t.Fatalf("expected an echo tail")
	}
	if r.Err() != nil {
		t.Fatalf("unexpected error: %v", r.Err())
	}
}

func TestReverbEndsWithSource(t *testing.T) {
	rate := beep.SampleRate(8000)
	r := NewReverb(&impulse{length: 10}, MapToReverbParams(ZoneEstimate{Volume: 8, SurfaceArea: 24}, 1), rate)
	samples := make([][2]float64, 32)
	if n, ok := r.Stream(samples); n != 10 || !ok {
		t.Fatalf("unexpected first read: n=%d ok=%v", n, ok)
	}
	if n, ok := r.Stream(samples); n != 0 || ok {
		t.Fatalf("expected drained source: n=%d ok=%v", n, ok)
	}
}
