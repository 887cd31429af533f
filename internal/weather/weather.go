package weather

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"voxelsim/internal/config"
)

type Kind string

const (
	Clear Kind = "clear"
	Rain  Kind = "rain"
	Storm Kind = "storm"
)

type Phase string

const (
	PhaseDawn  Phase = "dawn"
	PhaseDay   Phase = "day"
	PhaseDusk  Phase = "dusk"
	PhaseNight Phase = "night"
)

type Config struct {
	DayLength          time.Duration
	WeatherMinDuration time.Duration
	WeatherMaxDuration time.Duration
	StormChance        float64
	RainChance         float64
	Seed               int64
}

// FromConfig converts the file configuration.
func FromConfig(cfg config.WeatherConfig) Config {
	return Config{
		DayLength:          cfg.DayLength.Duration(),
		WeatherMinDuration: cfg.WeatherMinDuration.Duration(),
		WeatherMaxDuration: cfg.WeatherMaxDuration.Duration(),
		StormChance:        cfg.StormChance,
		RainChance:         cfg.RainChance,
		Seed:               cfg.Seed,
	}
}

type State struct {
	TimeOfDay     float64 `json:"timeOfDay"`
	Phase         Phase   `json:"phase"`
	Kind          Kind    `json:"kind"`
	Intensity     float64 `json:"intensity"`
	Precipitation float64 `json:"precipitation"`
	Ambient       float64 `json:"ambient"`
}

// Environment advances a day cycle and rolls weather spells on a seeded RNG.
type Environment struct {
	mu           sync.Mutex
	cfg          Config
	rng          *rand.Rand
	state        State
	dayProgress  float64
	weatherTimer time.Duration
}

func New(cfg Config) *Environment {
	cfg = applyDefaults(cfg)
	env := &Environment{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	env.dayProgress = 0.5
	env.state = State{TimeOfDay: 12, Phase: PhaseDay, Kind: Clear}
	env.state.Ambient = computeAmbient(env.dayProgress, env.state)
	env.weatherTimer = env.randomWeatherDuration()
	return env
}

func applyDefaults(cfg Config) Config {
	if cfg.DayLength <= 0 {
		cfg.DayLength = 20 * time.Minute
	}
	if cfg.WeatherMinDuration <= 0 {
		cfg.WeatherMinDuration = 30 * time.Second
	}
	if cfg.WeatherMaxDuration < cfg.WeatherMinDuration {
		cfg.WeatherMaxDuration = cfg.WeatherMinDuration + 2*time.Minute
	}
	if cfg.StormChance < 0 {
		cfg.StormChance = 0
	}
	if cfg.RainChance < 0 {
		cfg.RainChance = 0
	}
	if total := cfg.StormChance + cfg.RainChance; total > 1 {
		cfg.StormChance /= total
		cfg.RainChance /= total
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	return cfg
}

// Step advances the clock by delta. A non-positive delta advances one 16ms frame.
func (e *Environment) Step(delta time.Duration) State {
	if delta <= 0 {
		delta = 16 * time.Millisecond
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.dayProgress += float64(delta) / float64(e.cfg.DayLength)
	for e.dayProgress >= 1 {
		e.dayProgress -= 1
	}
	hours := e.dayProgress * 24

	e.weatherTimer -= delta
	if e.weatherTimer <= 0 {
		e.rollWeather()
		e.weatherTimer = e.randomWeatherDuration()
	}

	e.state.TimeOfDay = hours
	e.state.Phase = determinePhase(hours)
	e.state.Ambient = computeAmbient(e.dayProgress, e.state)
	return e.state
}

func (e *Environment) CurrentState() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Force sets the current spell until the next roll. Used by tooling and tests.
func (e *Environment) Force(kind Kind, intensity float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.Kind = kind
	e.state.Intensity = clamp01(intensity)
	e.state.Precipitation = 0
	if kind != Clear {
		e.state.Precipitation = e.state.Intensity
	}
	e.state.Ambient = computeAmbient(e.dayProgress, e.state)
}

func (e *Environment) rollWeather() {
	roll := e.rng.Float64()
	kind := Clear
	switch {
	case roll < e.cfg.StormChance:
		kind = Storm
	case roll < e.cfg.StormChance+e.cfg.RainChance:
		kind = Rain
	}

	intensity := 0.0
	switch kind {
	case Rain:
		intensity = 0.35 + e.rng.Float64()*0.4
	case Storm:
		intensity = 0.65 + e.rng.Float64()*0.35
	}
	e.state.Kind = kind
	e.state.Intensity = clamp01(intensity)
	e.state.Precipitation = e.state.Intensity
}

func (e *Environment) randomWeatherDuration() time.Duration {
	if e.cfg.WeatherMaxDuration <= e.cfg.WeatherMinDuration {
		return e.cfg.WeatherMinDuration
	}
	span := e.cfg.WeatherMaxDuration - e.cfg.WeatherMinDuration
	return e.cfg.WeatherMinDuration + time.Duration(e.rng.Float64()*float64(span))
}

func determinePhase(hour float64) Phase {
	switch {
	case hour >= 5 && hour < 7:
		return PhaseDawn
	case hour >= 7 && hour < 18:
		return PhaseDay
	case hour >= 18 && hour < 21:
		return PhaseDusk
	default:
		return PhaseNight
	}
}

// computeAmbient follows the sun height and darkens with weather intensity.
func computeAmbient(progress float64, state State) float64 {
	sunHeight := math.Cos((progress - 0.5) * 2 * math.Pi)
	if sunHeight < 0 {
		sunHeight = 0
	}
	ambient := 0.12 + 0.88*sunHeight
	if state.Phase == PhaseNight {
		ambient = 0.08 + 0.12*sunHeight
	}
	return clamp01(ambient * (1 - 0.35*state.Intensity))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
